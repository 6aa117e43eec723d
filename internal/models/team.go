package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	TeamStatusPending  = "PENDING"
	TeamStatusApproved = "APPROVED"
	TeamStatusRejected = "REJECTED"
)

const (
	TeamRoleAdmin  = "ADMIN"
	TeamRoleMember = "MEMBER"
)

// Team is a registered operations team. Only approved teams are active.
type Team struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Name            string         `gorm:"uniqueIndex;size:200;not null" json:"name"`
	Description     string         `gorm:"size:1000" json:"description"`
	IsActive        bool           `gorm:"default:false;index" json:"is_active"`
	Status          string         `gorm:"size:20;default:PENDING;index" json:"status"`
	RequestedBy     uint           `json:"requested_by"`
	ReviewedBy      *uint          `json:"reviewed_by"`
	ReviewedAt      *time.Time     `json:"reviewed_at"`
	RejectionReason string         `gorm:"size:1000" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// TeamPermission grants a user a role within a team.
type TeamPermission struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TeamID    uint      `gorm:"uniqueIndex:idx_team_user;not null" json:"team_id"`
	UserID    uint      `gorm:"uniqueIndex:idx_team_user;not null;index" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role      string    `gorm:"size:20;not null;default:MEMBER" json:"role"` // ADMIN, MEMBER
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Application is an application owned by a team. Leadership fields feed
// the enterprise scorecard filters.
type Application struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	TeamID      uint           `gorm:"index;not null" json:"team_id"`
	Name        string         `gorm:"size:200;not null" json:"name"`
	TLA         string         `gorm:"column:tla;size:20" json:"tla"`
	Description string         `gorm:"size:1000" json:"description"`
	IsActive    bool           `gorm:"default:true;index" json:"is_active"`
	SVP         string         `gorm:"column:svp;size:200" json:"svp"`
	VP          string         `gorm:"column:vp;size:200" json:"vp"`
	Director    string         `gorm:"size:200" json:"director"`
	AppOwner    string         `gorm:"size:200" json:"app_owner"`
	AppManager  string         `gorm:"size:200" json:"app_manager"`
	UnitCIO     string         `gorm:"column:unit_cio;size:200" json:"unit_cio"`
	CreatedBy   uint           `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Team) TableName() string           { return "teams" }
func (TeamPermission) TableName() string { return "team_permissions" }
func (Application) TableName() string    { return "applications" }
