package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ensemble/backend/internal/models"
	"github.com/ensemble/backend/internal/utils"
	"github.com/ensemble/backend/pkg/logger"
	"github.com/ensemble/backend/pkg/response"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const identifierAttempts = 3

var hundred = decimal.NewFromInt(100)

type ScorecardService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewScorecardService(db *gorm.DB) *ScorecardService {
	return &ScorecardService{db: db, now: time.Now}
}

type CreateEntryRequest struct {
	ApplicationID         uint             `json:"application_id" binding:"required"`
	Name                  string           `json:"name" binding:"required,max=200"`
	ScorecardIdentifier   string           `json:"scorecard_identifier" binding:"omitempty,max=150"`
	Description           string           `json:"description" binding:"max=1000"`
	AvailabilityThreshold *decimal.Decimal `json:"availability_threshold"`
	VolumeChangeThreshold *decimal.Decimal `json:"volume_change_threshold"`
}

type UpdateEntryRequest struct {
	Name                  *string          `json:"name" binding:"omitempty,min=1,max=200"`
	ScorecardIdentifier   *string          `json:"scorecard_identifier" binding:"omitempty,min=1,max=150"`
	Description           *string          `json:"description" binding:"omitempty,max=1000"`
	AvailabilityThreshold *decimal.Decimal `json:"availability_threshold"`
	VolumeChangeThreshold *decimal.Decimal `json:"volume_change_threshold"`
	ClearThresholds       bool             `json:"clear_thresholds"`
}

type UpsertAvailabilityRequest struct {
	ScorecardEntryID uint            `json:"scorecard_entry_id" binding:"required"`
	Year             int             `json:"year" binding:"required"`
	Month            int             `json:"month" binding:"required"`
	Availability     decimal.Decimal `json:"availability"`
	Reason           string          `json:"reason"`
}

type UpsertVolumeRequest struct {
	ScorecardEntryID uint   `json:"scorecard_entry_id" binding:"required"`
	Year             int    `json:"year" binding:"required"`
	Month            int    `json:"month" binding:"required"`
	Volume           int64  `json:"volume" binding:"min=0"`
	Reason           string `json:"reason"`
}

func validateThresholds(availability, volume *decimal.Decimal) error {
	if availability != nil && (availability.IsNegative() || availability.GreaterThan(hundred)) {
		return response.NewBadRequest("availability_threshold must be between 0 and 100")
	}
	if volume != nil && volume.IsNegative() {
		return response.NewBadRequest("volume_change_threshold must not be negative")
	}
	return nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

func identifierConflict(identifier string) error {
	return response.NewConflict(fmt.Sprintf("Scorecard identifier %q is already in use", identifier))
}

// CreateEntry adds a metric definition to an application. A blank
// identifier is generated from the name; a supplied one must be unused.
func (s *ScorecardService) CreateEntry(caller *Caller, req *CreateEntryRequest) (*models.ScorecardEntry, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	app, err := loadApplication(s.db, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(caller, "create", PolicyAdmin, Resource{Kind: "scorecard entries", TeamID: app.TeamID}); err != nil {
		return nil, err
	}
	if err := validateThresholds(req.AvailabilityThreshold, req.VolumeChangeThreshold); err != nil {
		return nil, err
	}

	identifier := strings.TrimSpace(req.ScorecardIdentifier)
	generated := identifier == ""

	entry := &models.ScorecardEntry{
		ApplicationID:         app.ID,
		Name:                  strings.TrimSpace(req.Name),
		Description:           req.Description,
		AvailabilityThreshold: nullDecimal(req.AvailabilityThreshold),
		VolumeChangeThreshold: nullDecimal(req.VolumeChangeThreshold),
		CreatedBy:             caller.UserID,
	}

	for attempt := 0; ; attempt++ {
		if generated {
			identifier = utils.GenerateIdentifier(entry.Name)
		}
		entry.ID = 0
		entry.ScorecardIdentifier = identifier

		err := s.db.Create(entry).Error
		if err == nil {
			break
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
		if !generated || attempt+1 >= identifierAttempts {
			return nil, identifierConflict(identifier)
		}
	}

	LogInfo("Scorecard", "CreateEntry", fmt.Sprintf("Created scorecard entry %s", entry.ScorecardIdentifier), &caller.UserID, "", "", map[string]interface{}{
		"application_id": app.ID,
		"entry_id":       entry.ID,
	})
	return entry, nil
}

func (s *ScorecardService) loadEntry(id uint) (*models.ScorecardEntry, *models.Application, error) {
	var entry models.ScorecardEntry
	if err := s.db.First(&entry, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, response.NewNotFound("Scorecard entry not found")
		}
		return nil, nil, err
	}
	app, err := loadApplication(s.db, entry.ApplicationID)
	if err != nil {
		return nil, nil, err
	}
	return &entry, app, nil
}

func (s *ScorecardService) GetEntry(caller *Caller, id uint) (*models.ScorecardEntry, error) {
	entry, app, err := s.loadEntry(id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(caller, "view", PolicyMember, Resource{Kind: "scorecard entries", TeamID: app.TeamID}); err != nil {
		return nil, err
	}
	entry.Application = app
	return entry, nil
}

func (s *ScorecardService) UpdateEntry(caller *Caller, id uint, req *UpdateEntryRequest) (*models.ScorecardEntry, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	entry, app, err := s.loadEntry(id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(caller, "update", PolicyAdmin, Resource{Kind: "scorecard entries", TeamID: app.TeamID}); err != nil {
		return nil, err
	}
	if err := validateThresholds(req.AvailabilityThreshold, req.VolumeChangeThreshold); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.ScorecardIdentifier != nil {
		updates["scorecard_identifier"] = strings.TrimSpace(*req.ScorecardIdentifier)
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.ClearThresholds {
		updates["availability_threshold"] = decimal.NullDecimal{}
		updates["volume_change_threshold"] = decimal.NullDecimal{}
	}
	if req.AvailabilityThreshold != nil {
		updates["availability_threshold"] = nullDecimal(req.AvailabilityThreshold)
	}
	if req.VolumeChangeThreshold != nil {
		updates["volume_change_threshold"] = nullDecimal(req.VolumeChangeThreshold)
	}
	if len(updates) == 0 {
		return entry, nil
	}

	if err := s.db.Model(entry).Updates(updates).Error; err != nil {
		if isUniqueViolation(err) && req.ScorecardIdentifier != nil {
			return nil, identifierConflict(strings.TrimSpace(*req.ScorecardIdentifier))
		}
		return nil, err
	}
	if err := s.db.First(entry, entry.ID).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// DeleteEntry removes an entry and all of its monthly records.
func (s *ScorecardService) DeleteEntry(caller *Caller, id uint) error {
	entry, app, err := s.loadEntry(id)
	if err != nil {
		return err
	}
	if err := Authorize(caller, "delete", PolicyAdmin, Resource{Kind: "scorecard entries", TeamID: app.TeamID}); err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("scorecard_entry_id = ?", entry.ID).Delete(&models.AvailabilityRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("scorecard_entry_id = ?", entry.ID).Delete(&models.VolumeRecord{}).Error; err != nil {
			return err
		}
		return tx.Delete(entry).Error
	})
	if err != nil {
		return err
	}

	LogInfo("Scorecard", "DeleteEntry", fmt.Sprintf("Deleted scorecard entry %s", entry.ScorecardIdentifier), &caller.UserID, "", "", nil)
	return nil
}

// ListEntries returns a team's entries, optionally for one application.
func (s *ScorecardService) ListEntries(caller *Caller, teamID uint, applicationID *uint) ([]models.ScorecardEntry, error) {
	if err := Authorize(caller, "view", PolicyMember, Resource{Kind: "scorecard entries", TeamID: teamID}); err != nil {
		return nil, err
	}
	teamApps := s.db.Model(&models.Application{}).Select("id").Where("team_id = ?", teamID)
	query := s.db.Preload("Application").Where("application_id IN (?)", teamApps)
	if applicationID != nil {
		query = query.Where("application_id = ?", *applicationID)
	}
	var entries []models.ScorecardEntry
	if err := query.Order("id ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// UpsertAvailability writes one month of availability. Concurrent writers
// for the same (entry, year, month) converge on a single row.
func (s *ScorecardService) UpsertAvailability(caller *Caller, req *UpsertAvailabilityRequest) (*models.AvailabilityRecord, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	if err := validatePeriod(req.Year, req.Month); err != nil {
		return nil, err
	}
	if req.Availability.IsNegative() || req.Availability.GreaterThan(hundred) {
		return nil, response.NewBadRequest("availability must be between 0 and 100")
	}
	entry, app, err := s.loadEntry(req.ScorecardEntryID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(caller, "update", PolicyMember, Resource{Kind: "scorecard data", TeamID: app.TeamID}); err != nil {
		return nil, err
	}

	now := s.now()
	record := &models.AvailabilityRecord{
		ScorecardEntryID: entry.ID,
		Year:             req.Year,
		Month:            req.Month,
		Availability:     req.Availability,
		Reason:           req.Reason,
		CreatedBy:        caller.UserID,
		CreatedAt:        now,
	}
	err = s.db.Clauses(clause.OnConflict{
		Columns: periodColumns(),
		DoUpdates: clause.Assignments(map[string]interface{}{
			"availability": req.Availability,
			"reason":       req.Reason,
			"updated_by":   caller.UserID,
			"updated_at":   now,
		}),
	}).Create(record).Error
	if err != nil {
		return nil, err
	}

	var stored models.AvailabilityRecord
	if err := s.db.Where("scorecard_entry_id = ? AND year = ? AND month = ?", entry.ID, req.Year, req.Month).
		First(&stored).Error; err != nil {
		return nil, err
	}
	logger.Debug().Uint("entry_id", entry.ID).Int("year", req.Year).Int("month", req.Month).Msg("availability upserted")
	return &stored, nil
}

// UpsertVolume writes one month of volume with the same semantics as
// UpsertAvailability.
func (s *ScorecardService) UpsertVolume(caller *Caller, req *UpsertVolumeRequest) (*models.VolumeRecord, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	if err := validatePeriod(req.Year, req.Month); err != nil {
		return nil, err
	}
	entry, app, err := s.loadEntry(req.ScorecardEntryID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(caller, "update", PolicyMember, Resource{Kind: "scorecard data", TeamID: app.TeamID}); err != nil {
		return nil, err
	}

	now := s.now()
	record := &models.VolumeRecord{
		ScorecardEntryID: entry.ID,
		Year:             req.Year,
		Month:            req.Month,
		Volume:           req.Volume,
		Reason:           req.Reason,
		CreatedBy:        caller.UserID,
		CreatedAt:        now,
	}
	err = s.db.Clauses(clause.OnConflict{
		Columns: periodColumns(),
		DoUpdates: clause.Assignments(map[string]interface{}{
			"volume":     req.Volume,
			"reason":     req.Reason,
			"updated_by": caller.UserID,
			"updated_at": now,
		}),
	}).Create(record).Error
	if err != nil {
		return nil, err
	}

	var stored models.VolumeRecord
	if err := s.db.Where("scorecard_entry_id = ? AND year = ? AND month = ?", entry.ID, req.Year, req.Month).
		First(&stored).Error; err != nil {
		return nil, err
	}
	logger.Debug().Uint("entry_id", entry.ID).Int("year", req.Year).Int("month", req.Month).Msg("volume upserted")
	return &stored, nil
}

func periodColumns() []clause.Column {
	return []clause.Column{{Name: "scorecard_entry_id"}, {Name: "year"}, {Name: "month"}}
}
