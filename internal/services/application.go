package services

import (
	"strings"

	"github.com/ensemble/backend/internal/models"
	"github.com/ensemble/backend/pkg/response"
	"gorm.io/gorm"
)

type ApplicationService struct {
	db *gorm.DB
}

func NewApplicationService(db *gorm.DB) *ApplicationService {
	return &ApplicationService{db: db}
}

type ApplicationRequest struct {
	TeamID      uint   `json:"team_id" binding:"required"`
	Name        string `json:"name" binding:"required,max=200"`
	TLA         string `json:"tla" binding:"max=20"`
	Description string `json:"description" binding:"max=1000"`
	SVP         string `json:"svp" binding:"max=200"`
	VP          string `json:"vp" binding:"max=200"`
	Director    string `json:"director" binding:"max=200"`
	AppOwner    string `json:"app_owner" binding:"max=200"`
	AppManager  string `json:"app_manager" binding:"max=200"`
	UnitCIO     string `json:"unit_cio" binding:"max=200"`
	IsActive    *bool  `json:"is_active"`
}

func (s *ApplicationService) Create(caller *Caller, req *ApplicationRequest) (*models.Application, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	team, err := loadTeam(s.db, req.TeamID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(caller, "create", PolicyAdmin, Resource{Kind: "applications", TeamID: team.ID}); err != nil {
		return nil, err
	}
	if team.Status != models.TeamStatusApproved {
		return nil, response.NewBadRequest("Applications can only be added to approved teams")
	}

	app := &models.Application{TeamID: team.ID, IsActive: true, CreatedBy: caller.UserID}
	applyApplication(app, req)
	if err := s.db.Create(app).Error; err != nil {
		return nil, err
	}
	return app, nil
}

func (s *ApplicationService) Update(caller *Caller, id uint, req *ApplicationRequest) (*models.Application, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	app, err := loadApplication(s.db, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(caller, "update", PolicyAdmin, Resource{Kind: "applications", TeamID: app.TeamID}); err != nil {
		return nil, err
	}
	if req.TeamID != app.TeamID {
		return nil, response.NewBadRequest("Applications cannot be moved between teams")
	}
	applyApplication(app, req)
	if err := s.db.Save(app).Error; err != nil {
		return nil, err
	}
	return app, nil
}

func (s *ApplicationService) Delete(caller *Caller, id uint) error {
	app, err := loadApplication(s.db, id)
	if err != nil {
		return err
	}
	if err := Authorize(caller, "delete", PolicyAdmin, Resource{Kind: "applications", TeamID: app.TeamID}); err != nil {
		return err
	}
	return s.db.Delete(app).Error
}

func (s *ApplicationService) Get(caller *Caller, id uint) (*models.Application, error) {
	app, err := loadApplication(s.db, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(caller, "view", PolicyMember, Resource{Kind: "applications", TeamID: app.TeamID}); err != nil {
		return nil, err
	}
	return app, nil
}

func (s *ApplicationService) List(caller *Caller, teamID uint) ([]models.Application, error) {
	if err := Authorize(caller, "view", PolicyMember, Resource{Kind: "applications", TeamID: teamID}); err != nil {
		return nil, err
	}
	var apps []models.Application
	if err := s.db.Where("team_id = ?", teamID).Order("name ASC").Find(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}

func applyApplication(app *models.Application, req *ApplicationRequest) {
	app.Name = strings.TrimSpace(req.Name)
	app.TLA = strings.ToUpper(strings.TrimSpace(req.TLA))
	app.Description = req.Description
	app.SVP = strings.TrimSpace(req.SVP)
	app.VP = strings.TrimSpace(req.VP)
	app.Director = strings.TrimSpace(req.Director)
	app.AppOwner = strings.TrimSpace(req.AppOwner)
	app.AppManager = strings.TrimSpace(req.AppManager)
	app.UnitCIO = strings.TrimSpace(req.UnitCIO)
	if req.IsActive != nil {
		app.IsActive = *req.IsActive
	}
}
