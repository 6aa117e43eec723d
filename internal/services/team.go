package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ensemble/backend/internal/models"
	"github.com/ensemble/backend/pkg/response"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TeamService handles team registration and membership.
type TeamService struct {
	db       *gorm.DB
	notifier Notifier
	now      func() time.Time
}

func NewTeamService(db *gorm.DB, notifier Notifier) *TeamService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &TeamService{db: db, notifier: notifier, now: time.Now}
}

type RegisterTeamRequest struct {
	Name        string `json:"name" binding:"required,max=200"`
	Description string `json:"description" binding:"max=1000"`
}

type ReviewTeamRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

type TeamListRequest struct {
	Status string `form:"status" binding:"omitempty,oneof=PENDING APPROVED REJECTED"`
	Mine   bool   `form:"mine"`
}

type AddMemberRequest struct {
	UserID uint   `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required,oneof=ADMIN MEMBER"`
}

type UpdateMemberRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=ADMIN MEMBER"`
}

// RegisterTeam files a pending team. System admins are notified.
func (s *TeamService) RegisterTeam(caller *Caller, req *RegisterTeamRequest) (*models.Team, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	if caller == nil {
		return nil, response.NewUnauthorized("Not authenticated")
	}
	name := strings.TrimSpace(req.Name)
	team := &models.Team{
		Name:        name,
		Description: req.Description,
		Status:      models.TeamStatusPending,
		IsActive:    false,
		RequestedBy: caller.UserID,
	}
	if err := s.db.Create(team).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, response.NewConflict(fmt.Sprintf("Team name %q is already in use", name))
		}
		return nil, err
	}

	requester := s.user(caller.UserID)
	var reviewers []models.User
	s.db.Where("role = ? AND is_active = ?", models.UserRoleAdmin, true).Find(&reviewers)
	go s.notifier.TeamRegistered(team, requester, reviewers)

	LogInfo("Team", "Register", fmt.Sprintf("Team %q registration submitted", name), &caller.UserID, "", "", nil)
	return team, nil
}

// ApproveTeam activates a pending team and makes the requester its admin.
func (s *TeamService) ApproveTeam(caller *Caller, id uint) (*models.Team, error) {
	if err := RequireSystemAdmin(caller, "review team registrations"); err != nil {
		return nil, err
	}
	team, err := loadTeam(s.db, id)
	if err != nil {
		return nil, err
	}
	if team.Status != models.TeamStatusPending {
		return nil, response.NewConflict("Team registration has already been reviewed")
	}

	now := s.now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Team{}).Where("id = ? AND status = ?", team.ID, models.TeamStatusPending).
			Updates(map[string]interface{}{
				"status":      models.TeamStatusApproved,
				"is_active":   true,
				"reviewed_by": caller.UserID,
				"reviewed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return response.NewConflict("Team registration has already been reviewed")
		}
		if team.RequestedBy == 0 {
			return nil
		}
		perm := &models.TeamPermission{TeamID: team.ID, UserID: team.RequestedBy, Role: models.TeamRoleAdmin}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "team_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"role": models.TeamRoleAdmin}),
		}).Create(perm).Error
	})
	if err != nil {
		return nil, err
	}

	team, err = loadTeam(s.db, id)
	if err != nil {
		return nil, err
	}
	go s.notifier.TeamReviewed(team, s.user(team.RequestedBy))
	LogInfo("Team", "Approve", fmt.Sprintf("Team %q approved", team.Name), &caller.UserID, "", "", nil)
	return team, nil
}

func (s *TeamService) RejectTeam(caller *Caller, id uint, req *ReviewTeamRequest) (*models.Team, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	if err := RequireSystemAdmin(caller, "review team registrations"); err != nil {
		return nil, err
	}
	team, err := loadTeam(s.db, id)
	if err != nil {
		return nil, err
	}
	res := s.db.Model(&models.Team{}).Where("id = ? AND status = ?", team.ID, models.TeamStatusPending).
		Updates(map[string]interface{}{
			"status":           models.TeamStatusRejected,
			"is_active":        false,
			"reviewed_by":      caller.UserID,
			"reviewed_at":      s.now(),
			"rejection_reason": req.Reason,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, response.NewConflict("Team registration has already been reviewed")
	}

	team, err = loadTeam(s.db, id)
	if err != nil {
		return nil, err
	}
	go s.notifier.TeamReviewed(team, s.user(team.RequestedBy))
	LogInfo("Team", "Reject", fmt.Sprintf("Team %q rejected", team.Name), &caller.UserID, "", "", nil)
	return team, nil
}

// ListTeams returns approved teams to everyone. System admins may filter
// by any status; Mine limits the list to the caller's memberships.
func (s *TeamService) ListTeams(caller *Caller, req *TeamListRequest) ([]models.Team, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	if caller == nil {
		return nil, response.NewUnauthorized("Not authenticated")
	}
	query := s.db.Model(&models.Team{})
	switch {
	case req.Status != "" && caller.IsSystemAdmin:
		query = query.Where("status = ?", req.Status)
	case req.Status == models.TeamStatusPending || req.Status == models.TeamStatusRejected:
		// Non-admins only see their own pending or rejected requests.
		query = query.Where("status = ? AND requested_by = ?", req.Status, caller.UserID)
	default:
		query = query.Where("status = ?", models.TeamStatusApproved)
	}
	if req.Mine {
		query = query.Where("id IN ?", append(caller.TeamIDs(), 0))
	}
	var teams []models.Team
	if err := query.Order("name ASC").Find(&teams).Error; err != nil {
		return nil, err
	}
	return teams, nil
}

func (s *TeamService) GetTeam(id uint) (*models.Team, error) {
	return loadTeam(s.db, id)
}

func (s *TeamService) ListMembers(caller *Caller, teamID uint) ([]models.TeamPermission, error) {
	if _, err := loadTeam(s.db, teamID); err != nil {
		return nil, err
	}
	if err := Authorize(caller, "view", PolicyMember, Resource{Kind: "team members", TeamID: teamID}); err != nil {
		return nil, err
	}
	var members []models.TeamPermission
	if err := s.db.Preload("User").Where("team_id = ?", teamID).Order("id ASC").Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

func (s *TeamService) AddMember(caller *Caller, teamID uint, req *AddMemberRequest) (*models.TeamPermission, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	team, err := loadTeam(s.db, teamID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(caller, "add", PolicyAdmin, Resource{Kind: "team members", TeamID: teamID}); err != nil {
		return nil, err
	}
	if team.Status != models.TeamStatusApproved {
		return nil, response.NewBadRequest("Members can only be added to approved teams")
	}
	user := s.user(req.UserID)
	if user == nil {
		return nil, response.NewNotFound("User not found")
	}

	perm := &models.TeamPermission{TeamID: teamID, UserID: req.UserID, Role: req.Role}
	if err := s.db.Create(perm).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, response.NewConflict("User is already a member of this team")
		}
		return nil, err
	}
	perm.User = user
	LogInfo("Team", "AddMember", fmt.Sprintf("Added %s to team %d as %s", user.Username, teamID, req.Role), &caller.UserID, "", "", nil)
	return perm, nil
}

func (s *TeamService) UpdateMemberRole(caller *Caller, teamID, userID uint, req *UpdateMemberRoleRequest) (*models.TeamPermission, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	if err := Authorize(caller, "update", PolicyAdmin, Resource{Kind: "team members", TeamID: teamID}); err != nil {
		return nil, err
	}
	perm, err := s.membership(teamID, userID)
	if err != nil {
		return nil, err
	}
	if perm.Role == models.TeamRoleAdmin && req.Role != models.TeamRoleAdmin {
		if err := s.ensureAnotherAdmin(teamID, userID); err != nil {
			return nil, err
		}
	}
	if err := s.db.Model(perm).Update("role", req.Role).Error; err != nil {
		return nil, err
	}
	return perm, nil
}

func (s *TeamService) RemoveMember(caller *Caller, teamID, userID uint) error {
	if err := Authorize(caller, "remove", PolicyAdmin, Resource{Kind: "team members", TeamID: teamID}); err != nil {
		return err
	}
	perm, err := s.membership(teamID, userID)
	if err != nil {
		return err
	}
	if perm.Role == models.TeamRoleAdmin {
		if err := s.ensureAnotherAdmin(teamID, userID); err != nil {
			return err
		}
	}
	if err := s.db.Delete(perm).Error; err != nil {
		return err
	}
	LogInfo("Team", "RemoveMember", fmt.Sprintf("Removed user %d from team %d", userID, teamID), &caller.UserID, "", "", nil)
	return nil
}

func (s *TeamService) membership(teamID, userID uint) (*models.TeamPermission, error) {
	var perm models.TeamPermission
	if err := s.db.Where("team_id = ? AND user_id = ?", teamID, userID).First(&perm).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("Team member not found")
		}
		return nil, err
	}
	return &perm, nil
}

func (s *TeamService) ensureAnotherAdmin(teamID, userID uint) error {
	var admins int64
	if err := s.db.Model(&models.TeamPermission{}).
		Where("team_id = ? AND role = ? AND user_id <> ?", teamID, models.TeamRoleAdmin, userID).
		Count(&admins).Error; err != nil {
		return err
	}
	if admins == 0 {
		return response.NewBadRequest("A team must keep at least one admin")
	}
	return nil
}

func (s *TeamService) user(id uint) *models.User {
	if id == 0 {
		return nil
	}
	var u models.User
	if err := s.db.First(&u, id).Error; err != nil {
		return nil
	}
	return &u
}
