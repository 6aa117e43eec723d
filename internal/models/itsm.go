package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

const (
	ItsmTypeRFC = "RFC"
	ItsmTypeINC = "INC"
)

const (
	QueueStatusPending  = "PENDING"
	QueueStatusImported = "IMPORTED"
	QueueStatusRejected = "REJECTED"
)

const (
	ImportModeAuto   = "AUTO"
	ImportModeReview = "REVIEW"
)

// Match sources record which signal resolved a queue item's application.
const (
	MatchSourceRecord    = "record"
	MatchSourceWorkgroup = "workgroup"
	MatchSourceCmdbCi    = "cmdb_ci"
	MatchSourceFallback  = "fallback"
	MatchSourceManual    = "manual"
	MatchSourceNone      = "none"
)

// AppWorkgroup maps an ITSM assignment group to an application.
type AppWorkgroup struct {
	ApplicationID uint   `json:"application_id" binding:"required"`
	Type          string `json:"type" binding:"required,oneof=RFC INC"`
	GroupName     string `json:"group_name" binding:"required"`
}

// AppCmdbCi maps a CMDB configuration item name to an application.
type AppCmdbCi struct {
	ApplicationID uint   `json:"application_id" binding:"required"`
	CmdbCiName    string `json:"cmdb_ci_name" binding:"required"`
}

// TurnoverSettings holds a team's ITSM matching rules and import modes.
type TurnoverSettings struct {
	ID            uint                              `gorm:"primaryKey" json:"id"`
	TeamID        uint                              `gorm:"uniqueIndex;not null" json:"team_id"`
	AppWorkgroups datatypes.JSONSlice[AppWorkgroup] `json:"app_workgroups"`
	AppCmdbCis    datatypes.JSONSlice[AppCmdbCi]    `json:"app_cmdb_cis"`
	RfcImportMode string                            `gorm:"size:10;default:REVIEW" json:"rfc_import_mode"`
	IncImportMode string                            `gorm:"size:10;default:REVIEW" json:"inc_import_mode"`
	MaxSearchDays int                               `gorm:"default:7" json:"max_search_days"`
	LastSyncedAt  *time.Time                        `json:"last_synced_at"`
	LastSyncError string                            `gorm:"type:text" json:"last_sync_error,omitempty"`
	CreatedAt     time.Time                         `json:"created_at"`
	UpdatedAt     time.Time                         `json:"updated_at"`
}

// ImportMode returns the configured mode for an ITSM type.
func (s *TurnoverSettings) ImportMode(itemType string) string {
	mode := s.RfcImportMode
	if itemType == ItsmTypeINC {
		mode = s.IncImportMode
	}
	if mode == ImportModeAuto {
		return ImportModeAuto
	}
	return ImportModeReview
}

// Workgroups returns the configured group names for an ITSM type, deduplicated.
func (s *TurnoverSettings) Workgroups(itemType string) []string {
	seen := make(map[string]bool)
	var groups []string
	for _, wg := range s.AppWorkgroups {
		key := strings.ToLower(strings.TrimSpace(wg.GroupName))
		if wg.Type != itemType || key == "" || seen[key] {
			continue
		}
		seen[key] = true
		groups = append(groups, strings.TrimSpace(wg.GroupName))
	}
	return groups
}

// ItsmReviewQueueItem stages an external ticket until an operator imports
// or rejects it. IMPORTED and REJECTED are terminal.
type ItsmReviewQueueItem struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	TeamID          uint              `gorm:"uniqueIndex:idx_queue_team_external;not null" json:"team_id"`
	ExternalID      string            `gorm:"uniqueIndex:idx_queue_team_external;size:100;not null" json:"external_id"`
	Type            string            `gorm:"size:10;not null;index" json:"type"`
	ApplicationID   *uint             `gorm:"index" json:"application_id"`
	MatchSource     string            `gorm:"size:20;default:none" json:"match_source"`
	MatchedCmdbCi   string            `gorm:"size:200" json:"matched_cmdb_ci,omitempty"`
	RawData         datatypes.JSONMap `json:"raw_data"`
	Status          string            `gorm:"size:20;not null;default:PENDING;index" json:"status"`
	ProcessedBy     *uint             `json:"processed_by"`
	ProcessedAt     *time.Time        `json:"processed_at"`
	TurnoverEntryID *uint             `json:"turnover_entry_id"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (TurnoverSettings) TableName() string    { return "turnover_settings" }
func (ItsmReviewQueueItem) TableName() string { return "itsm_review_queue" }

// Payload reads a string field from the raw ticket, accepting ServiceNow
// reference objects ({"display_value": ...}) as well as plain values.
func (q *ItsmReviewQueueItem) Payload(key string) string {
	return PayloadString(q.RawData, key)
}

// State returns the ticket status, preferring incident_state for incidents.
func (q *ItsmReviewQueueItem) State() string {
	if s := q.Payload("incident_state"); s != "" {
		return s
	}
	return q.Payload("state")
}

// IsClosed reports whether the ticket is in the Closed state.
func (q *ItsmReviewQueueItem) IsClosed() bool {
	state := strings.TrimSpace(q.State())
	return strings.EqualFold(state, "Closed") || state == "7"
}

// IsTerminal reports whether the item has already been imported or rejected.
func (q *ItsmReviewQueueItem) IsTerminal() bool {
	return q.Status == QueueStatusImported || q.Status == QueueStatusRejected
}

// PayloadString extracts a string from an opaque ticket payload.
func PayloadString(data map[string]interface{}, key string) string {
	v, ok := data[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case map[string]interface{}:
		if dv, ok := val["display_value"].(string); ok {
			return dv
		}
		if dv, ok := val["value"].(string); ok {
			return dv
		}
		return ""
	default:
		return fmt.Sprint(val)
	}
}
