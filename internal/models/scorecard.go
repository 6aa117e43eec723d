package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScorecardEntry is a tracked metric definition for an application.
// Entries are hard-deleted so identifiers can be reused.
type ScorecardEntry struct {
	ID                    uint                `gorm:"primaryKey" json:"id"`
	ApplicationID         uint                `gorm:"index;not null" json:"application_id"`
	Application           *Application        `gorm:"foreignKey:ApplicationID" json:"application,omitempty"`
	ScorecardIdentifier   string              `gorm:"uniqueIndex;size:150;not null" json:"scorecard_identifier"`
	Name                  string              `gorm:"size:200;not null" json:"name"`
	Description           string              `gorm:"size:1000" json:"description"`
	AvailabilityThreshold decimal.NullDecimal `gorm:"type:decimal(7,3)" json:"availability_threshold"`  // % SLA floor
	VolumeChangeThreshold decimal.NullDecimal `gorm:"type:decimal(9,3)" json:"volume_change_threshold"` // % month-over-month
	CreatedBy             uint                `json:"created_by"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

// AvailabilityRecord holds one month of availability for an entry.
// UpdatedAt stays nil until the row is rewritten.
type AvailabilityRecord struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	ScorecardEntryID uint            `gorm:"uniqueIndex:idx_availability_period;not null" json:"scorecard_entry_id"`
	Year             int             `gorm:"uniqueIndex:idx_availability_period;not null" json:"year"`
	Month            int             `gorm:"uniqueIndex:idx_availability_period;not null" json:"month"`
	Availability     decimal.Decimal `gorm:"type:decimal(7,3);not null" json:"availability"`
	Reason           string          `gorm:"type:text" json:"reason"`
	CreatedBy        uint            `json:"created_by"`
	UpdatedBy        *uint           `json:"updated_by"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        *time.Time      `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// VolumeRecord holds one month of transaction volume for an entry.
type VolumeRecord struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	ScorecardEntryID uint       `gorm:"uniqueIndex:idx_volume_period;not null" json:"scorecard_entry_id"`
	Year             int        `gorm:"uniqueIndex:idx_volume_period;not null" json:"year"`
	Month            int        `gorm:"uniqueIndex:idx_volume_period;not null" json:"month"`
	Volume           int64      `gorm:"not null" json:"volume"`
	Reason           string     `gorm:"type:text" json:"reason"`
	CreatedBy        uint       `json:"created_by"`
	UpdatedBy        *uint      `json:"updated_by"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        *time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// PublishStatus tracks whether a team's month is visible enterprise-wide.
// Rows are never deleted; unpublishing flips the flag.
type PublishStatus struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	TeamID        uint       `gorm:"uniqueIndex:idx_publish_period;not null" json:"team_id"`
	Year          int        `gorm:"uniqueIndex:idx_publish_period;not null" json:"year"`
	Month         int        `gorm:"uniqueIndex:idx_publish_period;not null" json:"month"`
	IsPublished   bool       `gorm:"not null;default:false" json:"is_published"`
	PublishedBy   *uint      `json:"published_by"`
	PublishedAt   *time.Time `json:"published_at"`
	UnpublishedBy *uint      `json:"unpublished_by"`
	UnpublishedAt *time.Time `json:"unpublished_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (ScorecardEntry) TableName() string     { return "scorecard_entries" }
func (AvailabilityRecord) TableName() string { return "scorecard_availability" }
func (VolumeRecord) TableName() string       { return "scorecard_volume" }
func (PublishStatus) TableName() string      { return "scorecard_publish_status" }

// LastModified is the staleness timestamp compared against PublishedAt.
func (r *AvailabilityRecord) LastModified() time.Time {
	if r.UpdatedAt != nil {
		return *r.UpdatedAt
	}
	return r.CreatedAt
}

func (r *VolumeRecord) LastModified() time.Time {
	if r.UpdatedAt != nil {
		return *r.UpdatedAt
	}
	return r.CreatedAt
}

// IsLive reports whether the month is currently visible enterprise-wide.
func (p *PublishStatus) IsLive() bool {
	return p != nil && p.IsPublished && p.PublishedAt != nil
}
