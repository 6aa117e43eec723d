package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	SectionRFC    = "RFC"
	SectionINC    = "INC"
	SectionAlerts = "ALERTS"
	SectionMIM    = "MIM"
	SectionComms  = "COMMS"
	SectionFYI    = "FYI"
)

// TurnoverSections lists sections in display order.
var TurnoverSections = []string{SectionRFC, SectionINC, SectionAlerts, SectionMIM, SectionComms, SectionFYI}

// TurnoverEntry is a shift handover item for one application.
type TurnoverEntry struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	TeamID          uint           `gorm:"index;not null" json:"team_id"`
	ApplicationID   uint           `gorm:"index;not null" json:"application_id"`
	Application     *Application   `gorm:"foreignKey:ApplicationID" json:"application,omitempty"`
	Section         string         `gorm:"size:10;not null;index" json:"section"`
	Title           string         `gorm:"size:500;not null" json:"title"`
	Description     string         `gorm:"type:text" json:"description"`
	Comments        string         `gorm:"type:text" json:"comments"`
	IsImportant     bool           `gorm:"default:false" json:"is_important"`
	ItsmQueueItemID *uint          `gorm:"index" json:"itsm_queue_item_id,omitempty"`
	CreatedBy       uint           `json:"created_by"`
	UpdatedBy       *uint          `json:"updated_by"`
	ResolvedAt      *time.Time     `gorm:"index" json:"resolved_at"`
	ResolvedBy      *uint          `json:"resolved_by"`
	RfcDetails      *RfcDetail     `gorm:"foreignKey:TurnoverEntryID" json:"rfc_details,omitempty"`
	IncDetails      *IncDetail     `gorm:"foreignKey:TurnoverEntryID" json:"inc_details,omitempty"`
	MimDetails      *MimDetail     `gorm:"foreignKey:TurnoverEntryID" json:"mim_details,omitempty"`
	CommsDetails    *CommsDetail   `gorm:"foreignKey:TurnoverEntryID" json:"comms_details,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

type RfcDetail struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	TurnoverEntryID uint   `gorm:"uniqueIndex;not null" json:"turnover_entry_id"`
	RfcNumber       string `gorm:"size:50" json:"rfc_number"`
	RfcStatus       string `gorm:"size:100" json:"rfc_status"`
	ValidatedBy     string `gorm:"size:200" json:"validated_by"`
	StartDate       string `gorm:"size:50" json:"start_date"`
	EndDate         string `gorm:"size:50" json:"end_date"`
}

type IncDetail struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	TurnoverEntryID uint   `gorm:"uniqueIndex;not null" json:"turnover_entry_id"`
	IncidentNumber  string `gorm:"size:50" json:"incident_number"`
	Priority        string `gorm:"size:50" json:"priority"`
	State           string `gorm:"size:100" json:"state"`
	AssignmentGroup string `gorm:"size:200" json:"assignment_group"`
}

type MimDetail struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	TurnoverEntryID uint   `gorm:"uniqueIndex;not null" json:"turnover_entry_id"`
	BridgeLink      string `gorm:"size:500" json:"bridge_link"`
	Channel         string `gorm:"size:200" json:"channel"`
	Commander       string `gorm:"size:200" json:"commander"`
}

type CommsDetail struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	TurnoverEntryID uint   `gorm:"uniqueIndex;not null" json:"turnover_entry_id"`
	Audience        string `gorm:"size:200" json:"audience"`
	Channel         string `gorm:"size:200" json:"channel"`
	SentAt          string `gorm:"size:50" json:"sent_at"`
}

// FinalizedTurnover is an immutable handover snapshot taken at dispatch.
type FinalizedTurnover struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	TeamID            uint           `gorm:"index;not null" json:"team_id"`
	FinalizedBy       uint           `gorm:"not null" json:"finalized_by"`
	FinalizedAt       time.Time      `gorm:"index;not null" json:"finalized_at"`
	Notes             string         `gorm:"type:text" json:"notes"`
	TotalApplications int            `json:"total_applications"`
	TotalEntries      int            `json:"total_entries"`
	ImportantCount    int            `json:"important_count"`
	SnapshotData      datatypes.JSON `json:"snapshot_data"`
	CreatedAt         time.Time      `json:"created_at"`
}

func (TurnoverEntry) TableName() string     { return "turnover_entries" }
func (RfcDetail) TableName() string         { return "turnover_rfc_details" }
func (IncDetail) TableName() string         { return "turnover_inc_details" }
func (MimDetail) TableName() string         { return "turnover_mim_details" }
func (CommsDetail) TableName() string       { return "turnover_comms_details" }
func (FinalizedTurnover) TableName() string { return "finalized_turnovers" }
