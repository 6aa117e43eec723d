package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	VisibilityPrivate = "private"
	VisibilityPublic  = "public"
)

// Link is a team bookmark. Private links are visible to their creator and
// team admins only.
type Link struct {
	ID            uint                        `gorm:"primaryKey" json:"id"`
	TeamID        uint                        `gorm:"index;not null" json:"team_id"`
	ApplicationID *uint                       `gorm:"index" json:"application_id"`
	Title         string                      `gorm:"size:300;not null" json:"title"`
	URL           string                      `gorm:"size:2000;not null" json:"url"`
	Description   string                      `gorm:"size:2000" json:"description"`
	Tags          datatypes.JSONSlice[string] `json:"tags"`
	Visibility    string                      `gorm:"size:20;not null;default:private" json:"visibility"`
	CreatedBy     uint                        `gorm:"index" json:"created_by"`
	CreatedAt     time.Time                   `json:"created_at"`
	UpdatedAt     time.Time                   `json:"updated_at"`
	DeletedAt     gorm.DeletedAt              `gorm:"index" json:"-"`
}

func (Link) TableName() string { return "links" }
