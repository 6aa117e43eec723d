package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ensemble/backend/internal/models"
	"github.com/ensemble/backend/pkg/response"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	finalizeCooldownKey     = "turnover_finalize_cooldown_minutes"
	defaultFinalizeCooldown = 15 * time.Minute
)

type TurnoverService struct {
	db              *gorm.DB
	configs         *SystemConfigService
	defaultCooldown time.Duration
	now             func() time.Time
}

// NewTurnoverService uses cooldown unless the system config overrides it.
func NewTurnoverService(db *gorm.DB, cooldown time.Duration) *TurnoverService {
	if cooldown <= 0 {
		cooldown = defaultFinalizeCooldown
	}
	return &TurnoverService{
		db:              db,
		configs:         NewSystemConfigService(db),
		defaultCooldown: cooldown,
		now:             time.Now,
	}
}

type CreateTurnoverEntryRequest struct {
	ApplicationID uint                `json:"application_id" binding:"required"`
	Section       string              `json:"section" binding:"required,oneof=RFC INC ALERTS MIM COMMS FYI"`
	Title         string              `json:"title" binding:"required,max=500"`
	Description   string              `json:"description"`
	Comments      string              `json:"comments"`
	IsImportant   bool                `json:"is_important"`
	RfcDetails    *models.RfcDetail   `json:"rfc_details"`
	IncDetails    *models.IncDetail   `json:"inc_details"`
	MimDetails    *models.MimDetail   `json:"mim_details"`
	CommsDetails  *models.CommsDetail `json:"comms_details"`
}

type UpdateTurnoverEntryRequest struct {
	Title        *string             `json:"title" binding:"omitempty,min=1,max=500"`
	Description  *string             `json:"description"`
	Comments     *string             `json:"comments"`
	IsImportant  *bool               `json:"is_important"`
	RfcDetails   *models.RfcDetail   `json:"rfc_details"`
	IncDetails   *models.IncDetail   `json:"inc_details"`
	MimDetails   *models.MimDetail   `json:"mim_details"`
	CommsDetails *models.CommsDetail `json:"comms_details"`
}

type FinalizeRequest struct {
	Notes string `json:"notes" binding:"max=5000"`
}

type FinalizedListRequest struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

type FinalizedListResponse struct {
	Total    int64                      `json:"total"`
	Page     int                        `json:"page"`
	PageSize int                        `json:"page_size"`
	Items    []models.FinalizedTurnover `json:"items"`
}

// SectionGroup holds one section's entries for an application.
type SectionGroup struct {
	Section string                 `json:"section"`
	Entries []models.TurnoverEntry `json:"entries"`
}

// ApplicationTurnover groups an application's entries by section.
type ApplicationTurnover struct {
	Application models.Application `json:"application"`
	Sections    []SectionGroup     `json:"sections"`
}

type TurnoverBoard struct {
	TeamID         uint                  `json:"team_id"`
	Applications   []ApplicationTurnover `json:"applications"`
	TotalEntries   int                   `json:"total_entries"`
	ImportantCount int                   `json:"important_count"`
	LastFinalized  *time.Time            `json:"last_finalized,omitempty"`
}

// turnoverSnapshot is the JSON frozen into a finalized turnover.
type turnoverSnapshot struct {
	TeamID       uint                  `json:"team_id"`
	FinalizedAt  time.Time             `json:"finalized_at"`
	Applications []ApplicationTurnover `json:"applications"`
}

func (s *TurnoverService) loadEntry(id uint) (*models.TurnoverEntry, error) {
	var entry models.TurnoverEntry
	err := s.db.Preload("RfcDetails").Preload("IncDetails").Preload("MimDetails").Preload("CommsDetails").
		First(&entry, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("Turnover entry not found")
		}
		return nil, err
	}
	return &entry, nil
}

// CreateEntry adds a handover item. Only the detail block matching the
// section is stored.
func (s *TurnoverService) CreateEntry(caller *Caller, req *CreateTurnoverEntryRequest) (*models.TurnoverEntry, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	app, err := loadApplication(s.db, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(caller, "create", PolicyMember, Resource{Kind: "turnover entries", TeamID: app.TeamID}); err != nil {
		return nil, err
	}

	entry := &models.TurnoverEntry{
		TeamID:        app.TeamID,
		ApplicationID: app.ID,
		Section:       req.Section,
		Title:         req.Title,
		Description:   req.Description,
		Comments:      req.Comments,
		IsImportant:   req.IsImportant,
		CreatedBy:     caller.UserID,
	}
	attachDetails(entry, req.RfcDetails, req.IncDetails, req.MimDetails, req.CommsDetails)

	if err := s.db.Create(entry).Error; err != nil {
		return nil, err
	}
	return s.loadEntry(entry.ID)
}

func attachDetails(entry *models.TurnoverEntry, rfc *models.RfcDetail, inc *models.IncDetail, mim *models.MimDetail, comms *models.CommsDetail) {
	switch entry.Section {
	case models.SectionRFC:
		if rfc != nil {
			rfc.ID, rfc.TurnoverEntryID = 0, 0
			entry.RfcDetails = rfc
		}
	case models.SectionINC:
		if inc != nil {
			inc.ID, inc.TurnoverEntryID = 0, 0
			entry.IncDetails = inc
		}
	case models.SectionMIM:
		if mim != nil {
			mim.ID, mim.TurnoverEntryID = 0, 0
			entry.MimDetails = mim
		}
	case models.SectionComms:
		if comms != nil {
			comms.ID, comms.TurnoverEntryID = 0, 0
			entry.CommsDetails = comms
		}
	}
}

// UpdateEntry edits an entry; creators and team admins may edit.
func (s *TurnoverService) UpdateEntry(caller *Caller, id uint, req *UpdateTurnoverEntryRequest) (*models.TurnoverEntry, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	entry, err := s.loadEntry(id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(caller, "update", PolicyOwnerOrAdmin, Resource{Kind: "turnover entries", TeamID: entry.TeamID, OwnerID: entry.CreatedBy}); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"updated_by": caller.UserID}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Comments != nil {
		updates["comments"] = *req.Comments
	}
	if req.IsImportant != nil {
		updates["is_important"] = *req.IsImportant
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.TurnoverEntry{}).Where("id = ?", entry.ID).Updates(updates).Error; err != nil {
			return err
		}
		return saveDetails(tx, entry, req)
	})
	if err != nil {
		return nil, err
	}
	return s.loadEntry(entry.ID)
}

// saveDetails replaces the section detail row when one is supplied.
func saveDetails(tx *gorm.DB, entry *models.TurnoverEntry, req *UpdateTurnoverEntryRequest) error {
	var detail interface{}
	var model interface{}
	switch entry.Section {
	case models.SectionRFC:
		if req.RfcDetails != nil {
			req.RfcDetails.ID, req.RfcDetails.TurnoverEntryID = 0, entry.ID
			detail, model = req.RfcDetails, &models.RfcDetail{}
		}
	case models.SectionINC:
		if req.IncDetails != nil {
			req.IncDetails.ID, req.IncDetails.TurnoverEntryID = 0, entry.ID
			detail, model = req.IncDetails, &models.IncDetail{}
		}
	case models.SectionMIM:
		if req.MimDetails != nil {
			req.MimDetails.ID, req.MimDetails.TurnoverEntryID = 0, entry.ID
			detail, model = req.MimDetails, &models.MimDetail{}
		}
	case models.SectionComms:
		if req.CommsDetails != nil {
			req.CommsDetails.ID, req.CommsDetails.TurnoverEntryID = 0, entry.ID
			detail, model = req.CommsDetails, &models.CommsDetail{}
		}
	}
	if detail == nil {
		return nil
	}
	if err := tx.Where("turnover_entry_id = ?", entry.ID).Delete(model).Error; err != nil {
		return err
	}
	return tx.Create(detail).Error
}

// ToggleImportant flips the important flag.
func (s *TurnoverService) ToggleImportant(caller *Caller, id uint) (*models.TurnoverEntry, error) {
	entry, err := s.loadEntry(id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(caller, "flag", PolicyMember, Resource{Kind: "turnover entries", TeamID: entry.TeamID}); err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.TurnoverEntry{}).Where("id = ?", entry.ID).
		Updates(map[string]interface{}{"is_important": !entry.IsImportant, "updated_by": caller.UserID}).Error; err != nil {
		return nil, err
	}
	return s.loadEntry(entry.ID)
}

// Resolve marks an entry done; resolved entries drop out of the board and
// of future snapshots.
func (s *TurnoverService) Resolve(caller *Caller, id uint) (*models.TurnoverEntry, error) {
	return s.setResolved(caller, id, true)
}

func (s *TurnoverService) Reopen(caller *Caller, id uint) (*models.TurnoverEntry, error) {
	return s.setResolved(caller, id, false)
}

func (s *TurnoverService) setResolved(caller *Caller, id uint, resolved bool) (*models.TurnoverEntry, error) {
	entry, err := s.loadEntry(id)
	if err != nil {
		return nil, err
	}
	action := "resolve"
	if !resolved {
		action = "reopen"
	}
	if err := Authorize(caller, action, PolicyMember, Resource{Kind: "turnover entries", TeamID: entry.TeamID}); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"resolved_at": nil, "resolved_by": nil, "updated_by": caller.UserID}
	if resolved {
		updates["resolved_at"] = s.now()
		updates["resolved_by"] = caller.UserID
	}
	if err := s.db.Model(&models.TurnoverEntry{}).Where("id = ?", entry.ID).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.loadEntry(entry.ID)
}

// DeleteEntry soft-deletes an entry; creators and team admins may delete.
func (s *TurnoverService) DeleteEntry(caller *Caller, id uint) error {
	entry, err := s.loadEntry(id)
	if err != nil {
		return err
	}
	if err := Authorize(caller, "delete", PolicyOwnerOrAdmin, Resource{Kind: "turnover entries", TeamID: entry.TeamID, OwnerID: entry.CreatedBy}); err != nil {
		return err
	}
	return s.db.Delete(&models.TurnoverEntry{}, entry.ID).Error
}

// ListEntries returns the team's board grouped by application then section.
func (s *TurnoverService) ListEntries(caller *Caller, teamID uint, includeResolved bool) (*TurnoverBoard, error) {
	if _, err := loadTeam(s.db, teamID); err != nil {
		return nil, err
	}
	if err := Authorize(caller, "view", PolicyMember, Resource{Kind: "turnover entries", TeamID: teamID}); err != nil {
		return nil, err
	}

	entries, err := s.teamEntries(teamID, includeResolved)
	if err != nil {
		return nil, err
	}
	board := &TurnoverBoard{TeamID: teamID, Applications: groupEntries(entries)}
	for _, e := range entries {
		board.TotalEntries++
		if e.IsImportant {
			board.ImportantCount++
		}
	}
	if last, err := s.lastFinalized(teamID); err == nil && last != nil {
		board.LastFinalized = &last.FinalizedAt
	}
	return board, nil
}

func (s *TurnoverService) teamEntries(teamID uint, includeResolved bool) ([]models.TurnoverEntry, error) {
	query := s.db.Preload("Application").Preload("RfcDetails").Preload("IncDetails").
		Preload("MimDetails").Preload("CommsDetails").Where("team_id = ?", teamID)
	if !includeResolved {
		query = query.Where("resolved_at IS NULL")
	}
	var entries []models.TurnoverEntry
	if err := query.Order("is_important DESC, created_at ASC, id ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func groupEntries(entries []models.TurnoverEntry) []ApplicationTurnover {
	order := make(map[string]int, len(models.TurnoverSections))
	for i, sec := range models.TurnoverSections {
		order[sec] = i
	}

	byApp := make(map[uint]*ApplicationTurnover)
	var appIDs []uint
	for _, e := range entries {
		group, ok := byApp[e.ApplicationID]
		if !ok {
			group = &ApplicationTurnover{}
			if e.Application != nil {
				group.Application = *e.Application
			} else {
				group.Application = models.Application{ID: e.ApplicationID}
			}
			byApp[e.ApplicationID] = group
			appIDs = append(appIDs, e.ApplicationID)
		}
		idx := -1
		for i := range group.Sections {
			if group.Sections[i].Section == e.Section {
				idx = i
				break
			}
		}
		if idx < 0 {
			group.Sections = append(group.Sections, SectionGroup{Section: e.Section})
			idx = len(group.Sections) - 1
		}
		e.Application = nil
		group.Sections[idx].Entries = append(group.Sections[idx].Entries, e)
	}

	out := make([]ApplicationTurnover, 0, len(appIDs))
	for _, id := range appIDs {
		group := byApp[id]
		sort.SliceStable(group.Sections, func(i, j int) bool {
			return order[group.Sections[i].Section] < order[group.Sections[j].Section]
		})
		out = append(out, *group)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Application.Name < out[j].Application.Name
	})
	return out
}

func (s *TurnoverService) cooldown() time.Duration {
	raw := s.configs.GetWithDefault(finalizeCooldownKey, "")
	if minutes, err := strconv.Atoi(raw); err == nil && minutes >= 0 {
		return time.Duration(minutes) * time.Minute
	}
	return s.defaultCooldown
}

func (s *TurnoverService) lastFinalized(teamID uint) (*models.FinalizedTurnover, error) {
	var last models.FinalizedTurnover
	err := s.db.Where("team_id = ?", teamID).Order("finalized_at DESC, id DESC").First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &last, nil
}

// Finalize freezes the team's unresolved entries into a snapshot. A second
// finalize inside the cooldown window is rejected.
func (s *TurnoverService) Finalize(caller *Caller, teamID uint, req *FinalizeRequest) (*models.FinalizedTurnover, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	if _, err := loadTeam(s.db, teamID); err != nil {
		return nil, err
	}
	if err := Authorize(caller, "finalize", PolicyMember, Resource{Kind: "turnovers", TeamID: teamID}); err != nil {
		return nil, err
	}

	now := s.now()
	last, err := s.lastFinalized(teamID)
	if err != nil {
		return nil, err
	}
	if cooldown := s.cooldown(); last != nil && now.Sub(last.FinalizedAt) < cooldown {
		next := last.FinalizedAt.Add(cooldown)
		return nil, response.NewConflict(fmt.Sprintf("Turnover was finalized at %s; try again after %s",
			last.FinalizedAt.Format(time.RFC3339), next.Format(time.RFC3339)))
	}

	entries, err := s.teamEntries(teamID, false)
	if err != nil {
		return nil, err
	}
	groups := groupEntries(entries)
	snapshot, err := json.Marshal(turnoverSnapshot{TeamID: teamID, FinalizedAt: now, Applications: groups})
	if err != nil {
		return nil, err
	}

	finalized := &models.FinalizedTurnover{
		TeamID:            teamID,
		FinalizedBy:       caller.UserID,
		FinalizedAt:       now,
		Notes:             req.Notes,
		TotalApplications: len(groups),
		TotalEntries:      len(entries),
		SnapshotData:      datatypes.JSON(snapshot),
	}
	for _, e := range entries {
		if e.IsImportant {
			finalized.ImportantCount++
		}
	}
	if err := s.db.Create(finalized).Error; err != nil {
		return nil, err
	}

	LogInfo("Turnover", "Finalize", fmt.Sprintf("Finalized turnover for team %d with %d entries", teamID, finalized.TotalEntries), &caller.UserID, "", "", nil)
	return finalized, nil
}

// ListFinalized pages through a team's snapshots, newest first. Snapshot
// bodies are omitted from the list.
func (s *TurnoverService) ListFinalized(caller *Caller, teamID uint, req *FinalizedListRequest) (*FinalizedListResponse, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	if err := Authorize(caller, "view", PolicyMember, Resource{Kind: "turnovers", TeamID: teamID}); err != nil {
		return nil, err
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	query := s.db.Model(&models.FinalizedTurnover{}).Where("team_id = ?", teamID)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}
	var items []models.FinalizedTurnover
	if err := query.Omit("snapshot_data").Order("finalized_at DESC, id DESC").
		Offset((req.Page - 1) * req.PageSize).Limit(req.PageSize).Find(&items).Error; err != nil {
		return nil, err
	}
	return &FinalizedListResponse{Total: total, Page: req.Page, PageSize: req.PageSize, Items: items}, nil
}

func (s *TurnoverService) GetFinalized(caller *Caller, id uint) (*models.FinalizedTurnover, error) {
	var finalized models.FinalizedTurnover
	if err := s.db.First(&finalized, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("Finalized turnover not found")
		}
		return nil, err
	}
	if err := Authorize(caller, "view", PolicyMember, Resource{Kind: "turnovers", TeamID: finalized.TeamID}); err != nil {
		return nil, err
	}
	return &finalized, nil
}
