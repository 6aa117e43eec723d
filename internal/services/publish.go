package services

import (
	"fmt"
	"time"

	"github.com/ensemble/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PublishService controls which team months are visible enterprise-wide.
type PublishService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewPublishService(db *gorm.DB) *PublishService {
	return &PublishService{db: db, now: time.Now}
}

type PublishRequest struct {
	TeamID uint `json:"team_id" binding:"required"`
	Year   int  `json:"year" binding:"required"`
	Month  int  `json:"month" binding:"required"`
}

// MonthPublishState is one month of a team's publish calendar.
type MonthPublishState struct {
	Month          int        `json:"month"`
	IsPublished    bool       `json:"is_published"`
	PublishedAt    *time.Time `json:"published_at"`
	PublishedBy    *uint      `json:"published_by"`
	UnpublishedAt  *time.Time `json:"unpublished_at"`
	PendingChanges int        `json:"pending_changes"`
}

func (s *PublishService) authorize(caller *Caller, action string, req *PublishRequest) error {
	if err := validateInput(req); err != nil {
		return err
	}
	if err := validatePeriod(req.Year, req.Month); err != nil {
		return err
	}
	if _, err := loadTeam(s.db, req.TeamID); err != nil {
		return err
	}
	return Authorize(caller, action, PolicyAdmin, Resource{Kind: "scorecard data", TeamID: req.TeamID})
}

// Publish marks a team month live and stamps it with a fresh PublishedAt.
// Republishing moves the stamp forward, which makes every record written
// since the previous publish visible.
func (s *PublishService) Publish(caller *Caller, req *PublishRequest) (*models.PublishStatus, error) {
	if err := s.authorize(caller, "publish", req); err != nil {
		return nil, err
	}

	now := s.now()
	status := &models.PublishStatus{
		TeamID:      req.TeamID,
		Year:        req.Year,
		Month:       req.Month,
		IsPublished: true,
		PublishedBy: uintPtr(caller.UserID),
		PublishedAt: timePtr(now),
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "team_id"}, {Name: "year"}, {Name: "month"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"is_published": true,
			"published_by": caller.UserID,
			"published_at": now,
			"updated_at":   now,
		}),
	}).Create(status).Error
	if err != nil {
		return nil, err
	}

	stored, err := s.find(req.TeamID, req.Year, req.Month)
	if err != nil {
		return nil, err
	}

	LogInfo("Scorecard", "Publish", fmt.Sprintf("Published %04d-%02d for team %d", req.Year, req.Month, req.TeamID), &caller.UserID, "", "", nil)
	return stored, nil
}

// Unpublish hides a team month. It is a no-op when the month was never
// published.
func (s *PublishService) Unpublish(caller *Caller, req *PublishRequest) (*models.PublishStatus, error) {
	if err := s.authorize(caller, "unpublish", req); err != nil {
		return nil, err
	}

	now := s.now()
	result := s.db.Model(&models.PublishStatus{}).
		Where("team_id = ? AND year = ? AND month = ?", req.TeamID, req.Year, req.Month).
		Updates(map[string]interface{}{
			"is_published":   false,
			"unpublished_by": caller.UserID,
			"unpublished_at": now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}

	LogInfo("Scorecard", "Unpublish", fmt.Sprintf("Unpublished %04d-%02d for team %d", req.Year, req.Month, req.TeamID), &caller.UserID, "", "", nil)
	return s.find(req.TeamID, req.Year, req.Month)
}

func (s *PublishService) find(teamID uint, year, month int) (*models.PublishStatus, error) {
	var status models.PublishStatus
	if err := s.db.Where("team_id = ? AND year = ? AND month = ?", teamID, year, month).First(&status).Error; err != nil {
		return nil, err
	}
	return &status, nil
}

// GetPublishStatuses returns all twelve months of a team's year. Pending
// changes count records written after the month's publish stamp.
func (s *PublishService) GetPublishStatuses(caller *Caller, teamID uint, year int) ([]MonthPublishState, error) {
	if err := validatePeriod(year, 1); err != nil {
		return nil, err
	}
	if _, err := loadTeam(s.db, teamID); err != nil {
		return nil, err
	}
	if err := Authorize(caller, "view", PolicyMember, Resource{Kind: "scorecard data", TeamID: teamID}); err != nil {
		return nil, err
	}

	var statuses []models.PublishStatus
	if err := s.db.Where("team_id = ? AND year = ?", teamID, year).Find(&statuses).Error; err != nil {
		return nil, err
	}
	pending, err := s.pendingChanges(teamID, year, statuses)
	if err != nil {
		return nil, err
	}

	states := make([]MonthPublishState, 12)
	for i := range states {
		states[i].Month = i + 1
		states[i].PendingChanges = pending[i+1]
	}
	for _, st := range statuses {
		if st.Month < 1 || st.Month > 12 {
			continue
		}
		m := &states[st.Month-1]
		m.IsPublished = st.IsPublished
		m.PublishedAt = st.PublishedAt
		m.PublishedBy = st.PublishedBy
		m.UnpublishedAt = st.UnpublishedAt
	}
	return states, nil
}

func (s *PublishService) pendingChanges(teamID uint, year int, statuses []models.PublishStatus) (map[int]int, error) {
	live := make(map[int]time.Time)
	for i := range statuses {
		if statuses[i].IsLive() {
			live[statuses[i].Month] = *statuses[i].PublishedAt
		}
	}

	entryIDs := s.db.Model(&models.ScorecardEntry{}).Select("id").
		Where("application_id IN (?)", s.db.Model(&models.Application{}).Select("id").Where("team_id = ?", teamID))

	var availability []models.AvailabilityRecord
	if err := s.db.Where("scorecard_entry_id IN (?) AND year = ?", entryIDs, year).Find(&availability).Error; err != nil {
		return nil, err
	}
	var volume []models.VolumeRecord
	if err := s.db.Where("scorecard_entry_id IN (?) AND year = ?", entryIDs, year).Find(&volume).Error; err != nil {
		return nil, err
	}

	pending := make(map[int]int)
	count := func(month int, modified time.Time) {
		publishedAt, ok := live[month]
		if !ok || modified.After(publishedAt) {
			pending[month]++
		}
	}
	for i := range availability {
		count(availability[i].Month, availability[i].LastModified())
	}
	for i := range volume {
		count(volume[i].Month, volume[i].LastModified())
	}
	return pending, nil
}
