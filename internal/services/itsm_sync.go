package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ensemble/backend/internal/models"
	"github.com/ensemble/backend/internal/services/itsm"
	"github.com/ensemble/backend/pkg/logger"
	"github.com/ensemble/backend/pkg/response"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultResolvedWithinDays = 7

// ItsmService reconciles external tickets into a team's review queue and
// imports accepted items as turnover entries.
type ItsmService struct {
	db                   *gorm.DB
	source               itsm.Source
	locker               SyncLocker
	defaultMaxSearchDays int
	now                  func() time.Time
}

// NewItsmService wires the service. A nil source makes every sync fail
// with an ExternalSyncError; a nil locker disables cross-process locking.
func NewItsmService(db *gorm.DB, source itsm.Source, locker SyncLocker, defaultMaxSearchDays int) *ItsmService {
	if locker == nil {
		locker = noopSyncLocker{}
	}
	if defaultMaxSearchDays <= 0 {
		defaultMaxSearchDays = 7
	}
	return &ItsmService{
		db:                   db,
		source:               source,
		locker:               locker,
		defaultMaxSearchDays: defaultMaxSearchDays,
		now:                  time.Now,
	}
}

type SyncRequest struct {
	TeamID                uint  `json:"team_id" binding:"required"`
	FallbackApplicationID *uint `json:"fallback_application_id"`
}

type SyncResult struct {
	Fetched      int        `json:"fetched"`
	Created      int        `json:"created"`
	Skipped      int        `json:"skipped"`
	Rematched    int        `json:"rematched"`
	AutoImported int        `json:"auto_imported"`
	InProgress   bool       `json:"in_progress,omitempty"`
	SyncedAt     *time.Time `json:"synced_at,omitempty"`
	Warnings     []string   `json:"warnings,omitempty"`
}

type ReviewQueueRequest struct {
	TeamID             uint `form:"team_id" json:"team_id" binding:"required"`
	IncludeResolved    bool `form:"include_resolved" json:"include_resolved"`
	ResolvedWithinDays int  `form:"resolved_within_days" json:"resolved_within_days" binding:"omitempty,min=1,max=90"`
}

type ProcessQueueItemRequest struct {
	Action        string `json:"action" binding:"required,oneof=IMPORT REJECT"`
	ApplicationID *uint  `json:"application_id"`
}

type ProcessResult struct {
	Item  *models.ItsmReviewQueueItem `json:"item"`
	Entry *models.TurnoverEntry       `json:"entry,omitempty"`
}

type BulkQueueRequest struct {
	ItemIDs               []uint `json:"item_ids" binding:"required,min=1,max=500"`
	FallbackApplicationID *uint  `json:"fallback_application_id"`
}

type UpdateSettingsRequest struct {
	AppWorkgroups []models.AppWorkgroup `json:"app_workgroups" binding:"omitempty,dive"`
	AppCmdbCis    []models.AppCmdbCi    `json:"app_cmdb_cis" binding:"omitempty,dive"`
	RfcImportMode string                `json:"rfc_import_mode" binding:"omitempty,oneof=AUTO REVIEW"`
	IncImportMode string                `json:"inc_import_mode" binding:"omitempty,oneof=AUTO REVIEW"`
	MaxSearchDays int                   `json:"max_search_days" binding:"omitempty,min=1,max=90"`
}

// SyncItems pulls the team's tickets into the review queue. Tickets already
// queued are skipped, so re-syncing never revives items an operator has
// resolved. The one exception is a PENDING item with no application: it is
// matched again so mappings added since the last sync take effect. In AUTO
// mode, items with a resolved application are imported immediately.
func (s *ItsmService) SyncItems(ctx context.Context, caller *Caller, req *SyncRequest) (*SyncResult, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	if _, err := loadTeam(s.db, req.TeamID); err != nil {
		return nil, err
	}
	if err := Authorize(caller, "sync", PolicyMember, Resource{Kind: "ITSM records", TeamID: req.TeamID}); err != nil {
		return nil, err
	}
	if req.FallbackApplicationID != nil {
		if _, err := s.teamApplication(s.db, req.TeamID, *req.FallbackApplicationID); err != nil {
			return nil, err
		}
	}
	return s.syncTeam(ctx, req.TeamID, caller.UserID, req.FallbackApplicationID)
}

// EnqueueSync authorizes a sync and hands it to the background queue.
func (s *ItsmService) EnqueueSync(caller *Caller, req *SyncRequest, queue TaskQueue) error {
	if err := validateInput(req); err != nil {
		return err
	}
	if _, err := loadTeam(s.db, req.TeamID); err != nil {
		return err
	}
	if err := Authorize(caller, "sync", PolicyMember, Resource{Kind: "ITSM records", TeamID: req.TeamID}); err != nil {
		return err
	}
	if queue == nil {
		return response.NewServerError("Sync queue is not initialized")
	}
	err := queue.Enqueue(&SyncTask{TeamID: req.TeamID, UserID: caller.UserID, FallbackApplicationID: req.FallbackApplicationID})
	if errors.Is(err, ErrSyncInProgress) {
		return response.NewConflict(err.Error())
	}
	return err
}

func (s *ItsmService) syncTeam(ctx context.Context, teamID, userID uint, fallback *uint) (*SyncResult, error) {
	log := logger.Component("itsm").With().Uint("team_id", teamID).Logger()

	settings, err := s.loadSettings(teamID)
	if err != nil {
		return nil, err
	}
	fetch := itsm.FetchRequest{
		RFCWorkgroups: settings.Workgroups(models.ItsmTypeRFC),
		INCWorkgroups: settings.Workgroups(models.ItsmTypeINC),
		MaxSearchDays: settings.MaxSearchDays,
	}
	if fetch.MaxSearchDays <= 0 {
		fetch.MaxSearchDays = s.defaultMaxSearchDays
	}
	result := &SyncResult{}
	if len(fetch.RFCWorkgroups) == 0 && len(fetch.INCWorkgroups) == 0 {
		result.Warnings = append(result.Warnings, "No ITSM workgroups configured for this team")
		return result, nil
	}
	if s.source == nil {
		return nil, response.NewExternalSync("ITSM integration is not configured")
	}

	release, err := s.locker.Acquire(ctx, teamID)
	defer release()
	if errors.Is(err, ErrSyncInProgress) {
		result.InProgress = true
		result.Warnings = append(result.Warnings, err.Error())
		return result, nil
	}
	if err != nil {
		log.Warn().Err(err).Msg("sync lock unavailable, continuing without it")
	}

	records, err := s.source.Fetch(ctx, fetch)
	if err != nil {
		log.Error().Err(err).Msg("ITSM fetch failed")
		s.db.Model(&models.TurnoverSettings{}).Where("team_id = ?", teamID).Update("last_sync_error", err.Error())
		return nil, response.NewExternalSync(fmt.Sprintf("Failed to fetch ITSM records: %v", err))
	}
	result.Fetched = len(records)

	apps, err := s.teamApplicationSet(teamID)
	if err != nil {
		return nil, err
	}
	matcher := itsm.NewMatcher(settings.AppWorkgroups, settings.AppCmdbCis, apps)

	for _, rec := range records {
		if rec.ExternalID == "" || (rec.Type != models.ItsmTypeRFC && rec.Type != models.ItsmTypeINC) {
			result.Skipped++
			continue
		}
		match := matcher.Resolve(rec)
		item := &models.ItsmReviewQueueItem{
			TeamID:        teamID,
			ExternalID:    rec.ExternalID,
			Type:          rec.Type,
			ApplicationID: match.ApplicationID,
			MatchSource:   match.Source,
			MatchedCmdbCi: match.CmdbCi,
			RawData:       rec.Payload,
			Status:        models.QueueStatusPending,
		}
		res := s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "team_id"}, {Name: "external_id"}},
			DoNothing: true,
		}).Create(item)
		if res.Error != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", rec.ExternalID, res.Error))
			continue
		}
		if res.RowsAffected == 0 {
			rematched, err := s.rematchPending(teamID, rec.ExternalID, match)
			if err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", rec.ExternalID, err))
				continue
			}
			if rematched == nil {
				result.Skipped++
				continue
			}
			item = rematched
			result.Rematched++
		} else {
			result.Created++
		}

		if settings.ImportMode(rec.Type) != models.ImportModeAuto {
			continue
		}
		appID, source := item.ApplicationID, item.MatchSource
		if appID == nil && fallback != nil {
			appID, source = fallback, models.MatchSourceFallback
		}
		if appID == nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s left pending: no application matched", rec.ExternalID))
			continue
		}
		if _, _, err := s.importItem(item.ID, userID, appID, source); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", rec.ExternalID, err))
			continue
		}
		result.AutoImported++
	}

	now := s.now()
	result.SyncedAt = &now
	s.db.Model(&models.TurnoverSettings{}).Where("team_id = ?", teamID).
		Updates(map[string]interface{}{"last_synced_at": now, "last_sync_error": ""})

	log.Info().Int("fetched", result.Fetched).Int("created", result.Created).
		Int("skipped", result.Skipped).Int("rematched", result.Rematched).Int("auto_imported", result.AutoImported).Msg("ITSM sync complete")
	return result, nil
}

// rematchPending applies a fresh match to a queued item that is still PENDING
// and unresolved. It returns nil when nothing changed.
func (s *ItsmService) rematchPending(teamID uint, externalID string, match itsm.Match) (*models.ItsmReviewQueueItem, error) {
	if match.ApplicationID == nil {
		return nil, nil
	}
	res := s.db.Model(&models.ItsmReviewQueueItem{}).
		Where("team_id = ? AND external_id = ? AND status = ? AND application_id IS NULL",
			teamID, externalID, models.QueueStatusPending).
		Updates(map[string]interface{}{
			"application_id":  *match.ApplicationID,
			"match_source":    match.Source,
			"matched_cmdb_ci": match.CmdbCi,
		})
	if res.Error != nil || res.RowsAffected == 0 {
		return nil, res.Error
	}
	var item models.ItsmReviewQueueItem
	if err := s.db.Where("team_id = ? AND external_id = ?", teamID, externalID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// SyncAutoTeams runs a sync for every team with an AUTO import mode. It is
// driven by the scheduler and never returns an error; failures are logged.
func (s *ItsmService) SyncAutoTeams(ctx context.Context) {
	var settings []models.TurnoverSettings
	if err := s.db.Where("rfc_import_mode = ? OR inc_import_mode = ?", models.ImportModeAuto, models.ImportModeAuto).
		Find(&settings).Error; err != nil {
		logger.Errorf("[ITSM] Failed to load auto-sync teams: %v", err)
		return
	}
	for _, st := range settings {
		if _, err := s.syncTeam(ctx, st.TeamID, 0, nil); err != nil {
			logger.Warnf("[ITSM] Scheduled sync for team %d failed: %v", st.TeamID, err)
		}
	}
}

// ProcessSyncTask runs a queued background sync on behalf of a user.
func (s *ItsmService) ProcessSyncTask(ctx context.Context, task *SyncTask) error {
	caller, err := NewPermissionService(s.db).LoadCaller(task.UserID)
	if err != nil {
		return err
	}
	_, err = s.SyncItems(ctx, caller, &SyncRequest{TeamID: task.TeamID, FallbackApplicationID: task.FallbackApplicationID})
	return err
}

// GetReviewQueue lists pending items, plus recently resolved ones when
// asked. Closed incidents sort after open ones; order is otherwise stable.
func (s *ItsmService) GetReviewQueue(caller *Caller, req *ReviewQueueRequest) ([]models.ItsmReviewQueueItem, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	if _, err := loadTeam(s.db, req.TeamID); err != nil {
		return nil, err
	}
	if err := Authorize(caller, "view", PolicyMember, Resource{Kind: "review queue items", TeamID: req.TeamID}); err != nil {
		return nil, err
	}

	query := s.db.Where("team_id = ?", req.TeamID)
	if req.IncludeResolved {
		days := req.ResolvedWithinDays
		if days == 0 {
			days = defaultResolvedWithinDays
		}
		cutoff := s.now().AddDate(0, 0, -days)
		query = query.Where("status = ? OR processed_at >= ?", models.QueueStatusPending, cutoff)
	} else {
		query = query.Where("status = ?", models.QueueStatusPending)
	}

	var items []models.ItsmReviewQueueItem
	if err := query.Order("created_at ASC, id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	sortQueue(items)
	return items, nil
}

func sortQueue(items []models.ItsmReviewQueueItem) {
	rank := func(it *models.ItsmReviewQueueItem) int {
		if it.Type == models.ItsmTypeINC && it.IsClosed() {
			return 1
		}
		return 0
	}
	sort.SliceStable(items, func(i, j int) bool {
		return rank(&items[i]) < rank(&items[j])
	})
}

// ProcessReviewQueueItem imports or rejects one pending item. An explicit
// application id overrides the matched one.
func (s *ItsmService) ProcessReviewQueueItem(caller *Caller, itemID uint, req *ProcessQueueItemRequest) (*ProcessResult, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	item, err := s.loadItem(itemID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(caller, "process", PolicyMember, Resource{Kind: "review queue items", TeamID: item.TeamID}); err != nil {
		return nil, err
	}

	if req.Action == "REJECT" {
		item, err := s.rejectItem(item.ID, caller.UserID)
		if err != nil {
			return nil, err
		}
		return &ProcessResult{Item: item}, nil
	}

	appID, source := item.ApplicationID, item.MatchSource
	if req.ApplicationID != nil {
		appID, source = req.ApplicationID, models.MatchSourceManual
	}
	item, entry, err := s.importItem(item.ID, caller.UserID, appID, source)
	if err != nil {
		return nil, err
	}
	return &ProcessResult{Item: item, Entry: entry}, nil
}

// BulkImportItems imports many items. Items without a matched application
// use the fallback when one is given. Failures are reported per item.
func (s *ItsmService) BulkImportItems(caller *Caller, req *BulkQueueRequest) (*BulkResult, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	itemIDs := uniqueIDs(req.ItemIDs)
	result := &BulkResult{}
	for _, id := range itemIDs {
		item, err := s.loadItem(id)
		if err != nil {
			result.fail(fmt.Sprintf("item %d", id), err)
			continue
		}
		if err := Authorize(caller, "import", PolicyMember, Resource{Kind: "review queue items", TeamID: item.TeamID}); err != nil {
			result.fail(item.ExternalID, err)
			continue
		}
		appID, source := item.ApplicationID, item.MatchSource
		if appID == nil && req.FallbackApplicationID != nil {
			appID, source = req.FallbackApplicationID, models.MatchSourceFallback
		}
		if _, _, err := s.importItem(item.ID, caller.UserID, appID, source); err != nil {
			result.fail(item.ExternalID, err)
			continue
		}
		result.Count++
	}
	result.summarize("Imported", len(itemIDs))
	LogInfo("ITSM", "BulkImport", result.Message, &caller.UserID, "", "", nil)
	return result, nil
}

// BulkRejectItems rejects many items with per-item error reporting.
func (s *ItsmService) BulkRejectItems(caller *Caller, req *BulkQueueRequest) (*BulkResult, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	itemIDs := uniqueIDs(req.ItemIDs)
	result := &BulkResult{}
	for _, id := range itemIDs {
		item, err := s.loadItem(id)
		if err != nil {
			result.fail(fmt.Sprintf("item %d", id), err)
			continue
		}
		if err := Authorize(caller, "reject", PolicyMember, Resource{Kind: "review queue items", TeamID: item.TeamID}); err != nil {
			result.fail(item.ExternalID, err)
			continue
		}
		if _, err := s.rejectItem(item.ID, caller.UserID); err != nil {
			result.fail(item.ExternalID, err)
			continue
		}
		result.Count++
	}
	result.summarize("Rejected", len(itemIDs))
	LogInfo("ITSM", "BulkReject", result.Message, &caller.UserID, "", "", nil)
	return result, nil
}

func alreadyProcessed(item *models.ItsmReviewQueueItem) error {
	return response.NewNotFound(fmt.Sprintf("Review queue item %s not found or already processed", item.ExternalID))
}

// importItem moves a PENDING item to IMPORTED and creates its turnover
// entry in one transaction. The status-guarded update makes a second
// import of the same item fail instead of duplicating the entry.
func (s *ItsmService) importItem(itemID, userID uint, appID *uint, source string) (*models.ItsmReviewQueueItem, *models.TurnoverEntry, error) {
	var item models.ItsmReviewQueueItem
	var entry *models.TurnoverEntry

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&item, itemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return response.NewNotFound("Review queue item not found")
			}
			return err
		}
		if item.IsTerminal() {
			return alreadyProcessed(&item)
		}
		if appID == nil {
			return response.NewBadRequest(fmt.Sprintf("No application matched %s; choose one to import it", item.ExternalID))
		}
		app, err := s.teamApplication(tx, item.TeamID, *appID)
		if err != nil {
			return err
		}

		now := s.now()
		res := tx.Model(&models.ItsmReviewQueueItem{}).
			Where("id = ? AND status = ?", item.ID, models.QueueStatusPending).
			Updates(map[string]interface{}{
				"status":         models.QueueStatusImported,
				"application_id": app.ID,
				"match_source":   source,
				"processed_by":   userID,
				"processed_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return alreadyProcessed(&item)
		}

		entry = turnoverEntryFromItem(&item, app, userID)
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.ItsmReviewQueueItem{}).Where("id = ?", item.ID).
			Update("turnover_entry_id", entry.ID).Error; err != nil {
			return err
		}
		return tx.First(&item, item.ID).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &item, entry, nil
}

func (s *ItsmService) rejectItem(itemID, userID uint) (*models.ItsmReviewQueueItem, error) {
	item, err := s.loadItem(itemID)
	if err != nil {
		return nil, err
	}
	if item.IsTerminal() {
		return nil, alreadyProcessed(item)
	}
	res := s.db.Model(&models.ItsmReviewQueueItem{}).
		Where("id = ? AND status = ?", item.ID, models.QueueStatusPending).
		Updates(map[string]interface{}{
			"status":       models.QueueStatusRejected,
			"processed_by": userID,
			"processed_at": s.now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, alreadyProcessed(item)
	}
	return s.loadItem(item.ID)
}

// turnoverEntryFromItem maps a ticket payload onto a turnover entry with
// section-specific details.
func turnoverEntryFromItem(item *models.ItsmReviewQueueItem, app *models.Application, userID uint) *models.TurnoverEntry {
	title := item.Payload("short_description")
	if title == "" {
		title = item.ExternalID
	} else {
		title = item.ExternalID + ": " + title
	}
	if len(title) > 500 {
		title = title[:500]
	}

	entry := &models.TurnoverEntry{
		TeamID:          item.TeamID,
		ApplicationID:   app.ID,
		Title:           title,
		Description:     item.Payload("description"),
		ItsmQueueItemID: uintPtr(item.ID),
		CreatedBy:       userID,
	}
	switch item.Type {
	case models.ItsmTypeRFC:
		entry.Section = models.SectionRFC
		entry.RfcDetails = &models.RfcDetail{
			RfcNumber:   item.ExternalID,
			RfcStatus:   item.State(),
			ValidatedBy: item.Payload("assigned_to"),
			StartDate:   item.Payload("start_date"),
			EndDate:     item.Payload("end_date"),
		}
	default:
		entry.Section = models.SectionINC
		entry.IsImportant = isHighPriority(item.Payload("priority"))
		entry.IncDetails = &models.IncDetail{
			IncidentNumber:  item.ExternalID,
			Priority:        item.Payload("priority"),
			State:           item.State(),
			AssignmentGroup: item.Payload("assignment_group"),
		}
	}
	return entry
}

// isHighPriority flags P1 and P2 incidents ("1 - Critical", "2 - High").
func isHighPriority(priority string) bool {
	p := strings.TrimSpace(priority)
	return strings.HasPrefix(p, "1") || strings.HasPrefix(p, "2")
}

func (s *ItsmService) loadItem(id uint) (*models.ItsmReviewQueueItem, error) {
	var item models.ItsmReviewQueueItem
	if err := s.db.First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("Review queue item not found")
		}
		return nil, err
	}
	return &item, nil
}

func (s *ItsmService) teamApplication(tx *gorm.DB, teamID, appID uint) (*models.Application, error) {
	var app models.Application
	if err := tx.Where("id = ? AND team_id = ?", appID, teamID).First(&app).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("Application not found in this team")
		}
		return nil, err
	}
	return &app, nil
}

func (s *ItsmService) teamApplicationSet(teamID uint) (map[uint]bool, error) {
	var ids []uint
	if err := s.db.Model(&models.Application{}).Where("team_id = ?", teamID).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	set := make(map[uint]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

func (s *ItsmService) loadSettings(teamID uint) (*models.TurnoverSettings, error) {
	var settings models.TurnoverSettings
	err := s.db.Where("team_id = ?", teamID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.TurnoverSettings{
			TeamID:        teamID,
			RfcImportMode: models.ImportModeReview,
			IncImportMode: models.ImportModeReview,
			MaxSearchDays: s.defaultMaxSearchDays,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// GetTurnoverSettings returns stored settings or the defaults.
func (s *ItsmService) GetTurnoverSettings(caller *Caller, teamID uint) (*models.TurnoverSettings, error) {
	if _, err := loadTeam(s.db, teamID); err != nil {
		return nil, err
	}
	if err := Authorize(caller, "view", PolicyMember, Resource{Kind: "turnover settings", TeamID: teamID}); err != nil {
		return nil, err
	}
	return s.loadSettings(teamID)
}

// UpdateTurnoverSettings replaces the team's mappings and import modes.
// Every mapping must point at one of the team's applications.
func (s *ItsmService) UpdateTurnoverSettings(caller *Caller, teamID uint, req *UpdateSettingsRequest) (*models.TurnoverSettings, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	if _, err := loadTeam(s.db, teamID); err != nil {
		return nil, err
	}
	if err := Authorize(caller, "update", PolicyAdmin, Resource{Kind: "turnover settings", TeamID: teamID}); err != nil {
		return nil, err
	}
	apps, err := s.teamApplicationSet(teamID)
	if err != nil {
		return nil, err
	}
	for _, wg := range req.AppWorkgroups {
		if !apps[wg.ApplicationID] {
			return nil, response.NewBadRequest(fmt.Sprintf("Workgroup %q maps to application %d outside this team", wg.GroupName, wg.ApplicationID))
		}
	}
	for _, ci := range req.AppCmdbCis {
		if !apps[ci.ApplicationID] {
			return nil, response.NewBadRequest(fmt.Sprintf("CMDB CI %q maps to application %d outside this team", ci.CmdbCiName, ci.ApplicationID))
		}
	}

	current, err := s.loadSettings(teamID)
	if err != nil {
		return nil, err
	}
	settings := &models.TurnoverSettings{
		TeamID:        teamID,
		AppWorkgroups: req.AppWorkgroups,
		AppCmdbCis:    req.AppCmdbCis,
		RfcImportMode: firstNonEmpty(req.RfcImportMode, current.RfcImportMode),
		IncImportMode: firstNonEmpty(req.IncImportMode, current.IncImportMode),
		MaxSearchDays: current.MaxSearchDays,
	}
	if req.MaxSearchDays > 0 {
		settings.MaxSearchDays = req.MaxSearchDays
	}
	if settings.AppWorkgroups == nil {
		settings.AppWorkgroups = []models.AppWorkgroup{}
	}
	if settings.AppCmdbCis == nil {
		settings.AppCmdbCis = []models.AppCmdbCi{}
	}

	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "team_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"app_workgroups", "app_cmdb_cis", "rfc_import_mode", "inc_import_mode", "max_search_days", "updated_at"}),
	}).Create(settings).Error
	if err != nil {
		return nil, err
	}

	LogInfo("ITSM", "UpdateSettings", fmt.Sprintf("Updated turnover settings for team %d", teamID), &caller.UserID, "", "", nil)
	return s.loadSettings(teamID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
