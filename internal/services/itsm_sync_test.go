package services

import (
	"context"
	"errors"
	"testing"

	"github.com/ensemble/backend/internal/models"
	"github.com/ensemble/backend/internal/services/itsm"
	"github.com/ensemble/backend/pkg/response"
)

type itsmHarness struct {
	*fixture
	ledger  *models.Application
	records []itsm.Record
	fetches []itsm.FetchRequest
	fail    error
	svc     *ItsmService
}

func newItsmHarness(t *testing.T) *itsmHarness {
	t.Helper()
	f := newFixture(t)
	h := &itsmHarness{fixture: f}
	h.ledger = createApplication(t, f.db, f.team.ID, "Ledger")

	source := itsm.SourceFunc(func(ctx context.Context, req itsm.FetchRequest) ([]itsm.Record, error) {
		h.fetches = append(h.fetches, req)
		if h.fail != nil {
			return nil, h.fail
		}
		return h.records, nil
	})
	h.svc = NewItsmService(f.db, source, nil, 7)
	h.svc.now = newTestClock().Now

	_, err := h.svc.UpdateTurnoverSettings(f.admin, f.team.ID, &UpdateSettingsRequest{
		AppWorkgroups: []models.AppWorkgroup{
			{ApplicationID: f.app.ID, Type: models.ItsmTypeRFC, GroupName: "Payments-Change"},
			{ApplicationID: h.ledger.ID, Type: models.ItsmTypeRFC, GroupName: "Payments-Change"},
			{ApplicationID: f.app.ID, Type: models.ItsmTypeINC, GroupName: "Payments-Ops"},
		},
		AppCmdbCis: []models.AppCmdbCi{{ApplicationID: h.ledger.ID, CmdbCiName: "ledger-db"}},
	})
	mustNoErr(t, err, "update settings")

	h.records = []itsm.Record{
		ticket("CHG0001", models.ItsmTypeRFC, "Payments-Change", "LEDGER-DB", "Scheduled", "Rotate ledger certs"),
		ticket("INC0001", models.ItsmTypeINC, "Payments-Ops", "", "Closed", "Checkout latency"),
		ticket("INC0002", models.ItsmTypeINC, "Payments-Ops", "", "In Progress", "Refund failures"),
		ticket("CHG0002", models.ItsmTypeRFC, "Payments-Change", "", "New", "Patch gateway hosts"),
	}
	h.records[2].Payload["priority"] = "2 - High"
	return h
}

func ticket(number, typ, group, ci, state, desc string) itsm.Record {
	payload := map[string]interface{}{
		"number":            number,
		"assignment_group":  map[string]interface{}{"display_value": group},
		"short_description": desc,
		"state":             state,
	}
	if ci != "" {
		payload["cmdb_ci"] = map[string]interface{}{"display_value": ci}
	}
	return itsm.Record{ExternalID: number, Type: typ, Payload: payload}
}

func (h *itsmHarness) sync(t *testing.T) *SyncResult {
	t.Helper()
	res, err := h.svc.SyncItems(context.Background(), h.member, &SyncRequest{TeamID: h.team.ID})
	mustNoErr(t, err, "sync")
	return res
}

func (h *itsmHarness) queue(t *testing.T, includeResolved bool) []models.ItsmReviewQueueItem {
	t.Helper()
	items, err := h.svc.GetReviewQueue(h.member, &ReviewQueueRequest{TeamID: h.team.ID, IncludeResolved: includeResolved})
	mustNoErr(t, err, "review queue")
	return items
}

func queueByExternalID(items []models.ItsmReviewQueueItem) map[string]models.ItsmReviewQueueItem {
	out := make(map[string]models.ItsmReviewQueueItem, len(items))
	for _, it := range items {
		out[it.ExternalID] = it
	}
	return out
}

func TestSyncItems_MatchesAndDedups(t *testing.T) {
	h := newItsmHarness(t)

	res := h.sync(t)
	if res.Fetched != 4 || res.Created != 4 || res.Skipped != 0 {
		t.Fatalf("first sync = %+v, expected 4 fetched 4 created", res)
	}
	if len(h.fetches) != 1 {
		t.Fatalf("fetch calls = %d, expected 1", len(h.fetches))
	}
	if got := h.fetches[0]; len(got.RFCWorkgroups) != 1 || len(got.INCWorkgroups) != 1 || got.MaxSearchDays != 7 {
		t.Errorf("fetch request = %+v", got)
	}

	items := queueByExternalID(h.queue(t, false))
	tests := []struct {
		id     string
		app    *uint
		source string
	}{
		{"CHG0001", &h.ledger.ID, models.MatchSourceCmdbCi},
		{"INC0001", &h.app.ID, models.MatchSourceWorkgroup},
		{"INC0002", &h.app.ID, models.MatchSourceWorkgroup},
		{"CHG0002", nil, models.MatchSourceNone},
	}
	for _, tt := range tests {
		it, ok := items[tt.id]
		if !ok {
			t.Errorf("%s missing from queue", tt.id)
			continue
		}
		if it.MatchSource != tt.source {
			t.Errorf("%s match source = %q, expected %q", tt.id, it.MatchSource, tt.source)
		}
		switch {
		case tt.app == nil && it.ApplicationID != nil:
			t.Errorf("%s application = %d, expected none", tt.id, *it.ApplicationID)
		case tt.app != nil && (it.ApplicationID == nil || *it.ApplicationID != *tt.app):
			t.Errorf("%s application = %v, expected %d", tt.id, it.ApplicationID, *tt.app)
		}
	}
	if items["CHG0001"].MatchedCmdbCi != "LEDGER-DB" {
		t.Errorf("matched cmdb ci = %q, expected LEDGER-DB", items["CHG0001"].MatchedCmdbCi)
	}

	res = h.sync(t)
	if res.Created != 0 || res.Skipped != 4 {
		t.Errorf("re-sync = %+v, expected 0 created 4 skipped", res)
	}
	var count int64
	h.db.Model(&models.ItsmReviewQueueItem{}).Count(&count)
	if count != 4 {
		t.Errorf("queue rows = %d, expected 4", count)
	}
}

func TestSyncItems_RematchesUnresolvedPending(t *testing.T) {
	h := newItsmHarness(t)
	h.records[3].Payload["cmdb_ci"] = "GATEWAY-HOSTS"
	h.sync(t)

	// Reject one resolved item so re-sync must leave it alone.
	items := queueByExternalID(h.queue(t, false))
	if _, err := h.svc.BulkRejectItems(h.member, &BulkQueueRequest{ItemIDs: []uint{items["INC0002"].ID}}); err != nil {
		t.Fatalf("reject: %v", err)
	}

	_, err := h.svc.UpdateTurnoverSettings(h.admin, h.team.ID, &UpdateSettingsRequest{
		AppWorkgroups: []models.AppWorkgroup{
			{ApplicationID: h.app.ID, Type: models.ItsmTypeRFC, GroupName: "Payments-Change"},
			{ApplicationID: h.ledger.ID, Type: models.ItsmTypeRFC, GroupName: "Payments-Change"},
			{ApplicationID: h.app.ID, Type: models.ItsmTypeINC, GroupName: "Payments-Ops"},
		},
		AppCmdbCis: []models.AppCmdbCi{
			{ApplicationID: h.ledger.ID, CmdbCiName: "ledger-db"},
			{ApplicationID: h.app.ID, CmdbCiName: "gateway-hosts"},
		},
	})
	mustNoErr(t, err, "add ci mapping")

	res := h.sync(t)
	if res.Created != 0 || res.Rematched != 1 || res.Skipped != 3 {
		t.Errorf("re-sync = %+v, expected 1 rematched 3 skipped", res)
	}

	all := queueByExternalID(h.queue(t, true))
	chg := all["CHG0002"]
	if chg.ApplicationID == nil || *chg.ApplicationID != h.app.ID || chg.MatchSource != models.MatchSourceCmdbCi {
		t.Errorf("CHG0002 = app %v source %q, expected cmdb_ci match to %d", chg.ApplicationID, chg.MatchSource, h.app.ID)
	}
	if chg.Status != models.QueueStatusPending {
		t.Errorf("CHG0002 status = %q, expected PENDING in review mode", chg.Status)
	}
	if all["INC0002"].Status != models.QueueStatusRejected {
		t.Errorf("INC0002 status = %q, expected to stay rejected", all["INC0002"].Status)
	}

	res = h.sync(t)
	if res.Rematched != 0 || res.Skipped != 4 {
		t.Errorf("third sync = %+v, expected nothing rematched", res)
	}
}

func TestGetReviewQueue_ClosedIncidentsLast(t *testing.T) {
	h := newItsmHarness(t)
	h.sync(t)

	items := h.queue(t, false)
	var order []string
	for _, it := range items {
		order = append(order, it.ExternalID)
	}
	expected := []string{"CHG0001", "INC0002", "CHG0002", "INC0001"}
	if len(order) != len(expected) {
		t.Fatalf("queue = %v, expected %v", order, expected)
	}
	for i := range expected {
		if order[i] != expected[i] {
			t.Fatalf("queue = %v, expected %v", order, expected)
		}
	}
}

func TestProcessReviewQueueItem_ImportOnce(t *testing.T) {
	h := newItsmHarness(t)
	h.sync(t)
	items := queueByExternalID(h.queue(t, false))
	chg := items["CHG0001"]

	res, err := h.svc.ProcessReviewQueueItem(h.member, chg.ID, &ProcessQueueItemRequest{Action: "IMPORT"})
	if err != nil {
		t.Fatalf("import error = %v", err)
	}
	if res.Item.Status != models.QueueStatusImported || res.Item.TurnoverEntryID == nil {
		t.Errorf("imported item = %+v", res.Item)
	}
	if res.Entry.Section != models.SectionRFC || res.Entry.ApplicationID != h.ledger.ID {
		t.Errorf("entry section/app = %s/%d, expected RFC/%d", res.Entry.Section, res.Entry.ApplicationID, h.ledger.ID)
	}
	if res.Entry.Title != "CHG0001: Rotate ledger certs" {
		t.Errorf("entry title = %q", res.Entry.Title)
	}

	_, err = h.svc.ProcessReviewQueueItem(h.member, chg.ID, &ProcessQueueItemRequest{Action: "IMPORT"})
	if !response.IsNotFound(err) {
		t.Errorf("second import error = %v, expected not found", err)
	}
	_, err = h.svc.ProcessReviewQueueItem(h.member, chg.ID, &ProcessQueueItemRequest{Action: "REJECT"})
	if !response.IsNotFound(err) {
		t.Errorf("reject after import error = %v, expected not found", err)
	}

	var entries int64
	h.db.Model(&models.TurnoverEntry{}).Where("itsm_queue_item_id = ?", chg.ID).Count(&entries)
	if entries != 1 {
		t.Errorf("turnover entries = %d, expected 1", entries)
	}

	// Imported items drop out of the default view and come back with the
	// resolved window.
	if _, ok := queueByExternalID(h.queue(t, false))["CHG0001"]; ok {
		t.Error("imported item still listed as pending")
	}
	if _, ok := queueByExternalID(h.queue(t, true))["CHG0001"]; !ok {
		t.Error("imported item missing from resolved view")
	}
}

func TestProcessReviewQueueItem_ManualApplication(t *testing.T) {
	h := newItsmHarness(t)
	h.sync(t)
	chg := queueByExternalID(h.queue(t, false))["CHG0002"]

	_, err := h.svc.ProcessReviewQueueItem(h.member, chg.ID, &ProcessQueueItemRequest{Action: "IMPORT"})
	if !response.IsBadRequest(err) {
		t.Fatalf("import without application error = %v, expected bad request", err)
	}

	other := createApplication(t, h.db, h.other.Permissions[0].TeamID, "Storage Array")
	_, err = h.svc.ProcessReviewQueueItem(h.member, chg.ID, &ProcessQueueItemRequest{Action: "IMPORT", ApplicationID: &other.ID})
	if !response.IsNotFound(err) {
		t.Errorf("import into foreign application error = %v, expected not found", err)
	}

	res, err := h.svc.ProcessReviewQueueItem(h.member, chg.ID, &ProcessQueueItemRequest{Action: "IMPORT", ApplicationID: &h.app.ID})
	mustNoErr(t, err, "manual import")
	if res.Item.MatchSource != models.MatchSourceManual {
		t.Errorf("match source = %q, expected manual", res.Item.MatchSource)
	}
}

func TestProcessReviewQueueItem_Forbidden(t *testing.T) {
	h := newItsmHarness(t)
	h.sync(t)
	item := h.queue(t, false)[0]

	_, err := h.svc.ProcessReviewQueueItem(h.other, item.ID, &ProcessQueueItemRequest{Action: "REJECT"})
	if !response.IsForbidden(err) {
		t.Errorf("foreign team reject error = %v, expected forbidden", err)
	}
	if _, err := h.svc.GetReviewQueue(h.other, &ReviewQueueRequest{TeamID: h.team.ID}); !response.IsForbidden(err) {
		t.Errorf("foreign team queue error = %v, expected forbidden", err)
	}
}

func TestBulkImportItems_PartialFailure(t *testing.T) {
	h := newItsmHarness(t)
	h.sync(t)
	items := queueByExternalID(h.queue(t, false))

	res, err := h.svc.BulkImportItems(h.member, &BulkQueueRequest{
		ItemIDs: []uint{items["CHG0002"].ID, items["INC0002"].ID, 9999},
	})
	mustNoErr(t, err, "bulk import")
	if res.Count != 1 || res.Failed != 2 {
		t.Errorf("bulk result = %+v, expected 1 imported 2 failed", res)
	}
	if res.Message != "Imported 1 of 3 items; 2 failed" {
		t.Errorf("message = %q", res.Message)
	}

	var inc models.TurnoverEntry
	mustNoErr(t, h.db.Where("itsm_queue_item_id = ?", items["INC0002"].ID).First(&inc).Error, "load INC entry")
	if !inc.IsImportant {
		t.Error("P2 incident should be flagged important")
	}

	res, err = h.svc.BulkImportItems(h.member, &BulkQueueRequest{
		ItemIDs:               []uint{items["CHG0002"].ID},
		FallbackApplicationID: &h.ledger.ID,
	})
	mustNoErr(t, err, "bulk import with fallback")
	if res.Count != 1 {
		t.Errorf("fallback import result = %+v", res)
	}
	var chg models.ItsmReviewQueueItem
	h.db.First(&chg, items["CHG0002"].ID)
	if chg.MatchSource != models.MatchSourceFallback {
		t.Errorf("match source = %q, expected fallback", chg.MatchSource)
	}
}

func TestBulkRejectItems(t *testing.T) {
	h := newItsmHarness(t)
	h.sync(t)
	items := h.queue(t, false)
	ids := []uint{items[0].ID, items[1].ID}

	res, err := h.svc.BulkRejectItems(h.member, &BulkQueueRequest{ItemIDs: ids})
	mustNoErr(t, err, "bulk reject")
	if res.Count != 2 || res.Failed != 0 {
		t.Errorf("bulk reject = %+v", res)
	}
	res, _ = h.svc.BulkRejectItems(h.member, &BulkQueueRequest{ItemIDs: ids})
	if res.Count != 0 || res.Failed != 2 {
		t.Errorf("second bulk reject = %+v, expected both to fail", res)
	}

	// Rejected tickets stay rejected across syncs.
	h.sync(t)
	if got := len(h.queue(t, false)); got != 2 {
		t.Errorf("pending after re-sync = %d, expected 2", got)
	}
}

func TestSyncItems_AutoImport(t *testing.T) {
	h := newItsmHarness(t)
	_, err := h.svc.UpdateTurnoverSettings(h.admin, h.team.ID, &UpdateSettingsRequest{
		AppWorkgroups: []models.AppWorkgroup{
			{ApplicationID: h.app.ID, Type: models.ItsmTypeRFC, GroupName: "Payments-Change"},
			{ApplicationID: h.ledger.ID, Type: models.ItsmTypeRFC, GroupName: "Payments-Change"},
			{ApplicationID: h.app.ID, Type: models.ItsmTypeINC, GroupName: "Payments-Ops"},
		},
		RfcImportMode: models.ImportModeAuto,
	})
	mustNoErr(t, err, "enable auto")

	res := h.sync(t)
	// CHG0001 no longer has a CMDB mapping and CHG0002 never matched.
	if res.AutoImported != 0 || len(res.Warnings) != 2 {
		t.Errorf("auto sync without fallback = %+v", res)
	}

	h2 := newItsmHarness(t)
	_, err = h2.svc.UpdateTurnoverSettings(h2.admin, h2.team.ID, &UpdateSettingsRequest{
		AppCmdbCis:    []models.AppCmdbCi{{ApplicationID: h2.ledger.ID, CmdbCiName: "ledger-db"}},
		AppWorkgroups: []models.AppWorkgroup{{ApplicationID: h2.app.ID, Type: models.ItsmTypeRFC, GroupName: "Payments-Change"}},
		RfcImportMode: models.ImportModeAuto,
	})
	mustNoErr(t, err, "enable auto")
	h2.records = h2.records[:1]
	res, err = h2.svc.SyncItems(context.Background(), h2.member, &SyncRequest{TeamID: h2.team.ID, FallbackApplicationID: &h2.ledger.ID})
	mustNoErr(t, err, "auto sync")
	if res.Created != 1 || res.AutoImported != 1 {
		t.Errorf("auto sync = %+v, expected 1 created 1 imported", res)
	}
	if got := len(h2.queue(t, false)); got != 0 {
		t.Errorf("pending after auto import = %d, expected 0", got)
	}
}

func TestSyncItems_SourceFailure(t *testing.T) {
	h := newItsmHarness(t)
	h.sync(t)
	h.fail = errors.New("connection refused")

	_, err := h.svc.SyncItems(context.Background(), h.member, &SyncRequest{TeamID: h.team.ID})
	if !response.IsExternalSync(err) {
		t.Fatalf("sync error = %v, expected external sync error", err)
	}
	if got := len(h.queue(t, false)); got != 4 {
		t.Errorf("queue after failed sync = %d, expected 4", got)
	}
	settings, err := h.svc.GetTurnoverSettings(h.member, h.team.ID)
	mustNoErr(t, err, "settings")
	if settings.LastSyncError == "" {
		t.Error("last sync error should be recorded")
	}
}

func TestSyncItems_Unconfigured(t *testing.T) {
	f := newFixture(t)
	svc := NewItsmService(f.db, nil, nil, 0)

	res, err := svc.SyncItems(context.Background(), f.member, &SyncRequest{TeamID: f.team.ID})
	mustNoErr(t, err, "sync without workgroups")
	if len(res.Warnings) != 1 || res.Created != 0 {
		t.Errorf("sync without workgroups = %+v", res)
	}

	_, err = svc.UpdateTurnoverSettings(f.admin, f.team.ID, &UpdateSettingsRequest{
		AppWorkgroups: []models.AppWorkgroup{{ApplicationID: f.app.ID, Type: models.ItsmTypeINC, GroupName: "Payments-Ops"}},
	})
	mustNoErr(t, err, "settings")
	_, err = svc.SyncItems(context.Background(), f.member, &SyncRequest{TeamID: f.team.ID})
	if !response.IsExternalSync(err) {
		t.Errorf("sync without source error = %v, expected external sync error", err)
	}
}

func TestUpdateTurnoverSettings_Validation(t *testing.T) {
	h := newItsmHarness(t)

	_, err := h.svc.UpdateTurnoverSettings(h.member, h.team.ID, &UpdateSettingsRequest{})
	if !response.IsForbidden(err) {
		t.Errorf("member update error = %v, expected forbidden", err)
	}

	foreign := createApplication(t, h.db, h.other.Permissions[0].TeamID, "Storage Array")
	_, err = h.svc.UpdateTurnoverSettings(h.admin, h.team.ID, &UpdateSettingsRequest{
		AppCmdbCis: []models.AppCmdbCi{{ApplicationID: foreign.ID, CmdbCiName: "san-01"}},
	})
	if !response.IsBadRequest(err) {
		t.Errorf("foreign mapping error = %v, expected bad request", err)
	}

	settings, err := h.svc.UpdateTurnoverSettings(h.admin, h.team.ID, &UpdateSettingsRequest{MaxSearchDays: 14})
	mustNoErr(t, err, "update max days")
	if settings.MaxSearchDays != 14 || len(settings.AppWorkgroups) != 0 {
		t.Errorf("settings = %+v", settings)
	}
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, uint) (func(), error) {
	return func() {}, ErrSyncInProgress
}

func TestSyncItems_InProgress(t *testing.T) {
	h := newItsmHarness(t)
	h.svc.locker = busyLocker{}

	res := h.sync(t)
	if !res.InProgress || res.Created != 0 {
		t.Errorf("locked sync = %+v, expected in progress", res)
	}
	if len(h.fetches) != 0 {
		t.Errorf("fetch calls = %d, expected none while locked", len(h.fetches))
	}
}

func TestEnqueueSync(t *testing.T) {
	h := newItsmHarness(t)
	queue := NewSyncQueue()
	done := make(chan error, 1)
	queue.SetProcessor(func(ctx context.Context, task *SyncTask) error {
		err := h.svc.ProcessSyncTask(ctx, task)
		done <- err
		return err
	})

	if err := h.svc.EnqueueSync(h.other, &SyncRequest{TeamID: h.team.ID}, queue); !response.IsForbidden(err) {
		t.Errorf("foreign enqueue error = %v, expected forbidden", err)
	}
	mustNoErr(t, h.svc.EnqueueSync(h.member, &SyncRequest{TeamID: h.team.ID}, queue), "enqueue")
	mustNoErr(t, <-done, "process task")

	var count int64
	h.db.Model(&models.ItsmReviewQueueItem{}).Count(&count)
	if count != 4 {
		t.Errorf("queue rows = %d, expected 4", count)
	}
}
