package services

import (
	"sync"
	"testing"
	"time"

	"github.com/ensemble/backend/internal/models"
	"github.com/ensemble/backend/pkg/response"
	"github.com/shopspring/decimal"
)

type scorecardHarness struct {
	*fixture
	clock     *testClock
	scorecard *ScorecardService
	publish   *PublishService
	view      *ScorecardViewService
	entry     *models.ScorecardEntry
}

func newScorecardHarness(t *testing.T) *scorecardHarness {
	t.Helper()
	f := newFixture(t)
	clock := newTestClock()
	h := &scorecardHarness{
		fixture:   f,
		clock:     clock,
		scorecard: NewScorecardService(f.db),
		publish:   NewPublishService(f.db),
		view:      NewScorecardViewService(f.db),
	}
	h.scorecard.now = clock.Now
	h.publish.now = clock.Now

	threshold := decimal.RequireFromString("99.5")
	entry, err := h.scorecard.CreateEntry(f.admin, &CreateEntryRequest{
		ApplicationID:         f.app.ID,
		Name:                  "Checkout API",
		AvailabilityThreshold: &threshold,
	})
	mustNoErr(t, err, "create entry")
	h.entry = entry
	return h
}

func (h *scorecardHarness) upsertAvailability(t *testing.T, year, month int, value string) {
	t.Helper()
	_, err := h.scorecard.UpsertAvailability(h.member, &UpsertAvailabilityRequest{
		ScorecardEntryID: h.entry.ID,
		Year:             year,
		Month:            month,
		Availability:     decimal.RequireFromString(value),
	})
	mustNoErr(t, err, "upsert availability")
}

func (h *scorecardHarness) publishMonth(t *testing.T, year, month int) {
	t.Helper()
	_, err := h.publish.Publish(h.admin, &PublishRequest{TeamID: h.team.ID, Year: year, Month: month})
	mustNoErr(t, err, "publish")
}

func (h *scorecardHarness) globalAvailability(t *testing.T, year int) []models.AvailabilityRecord {
	t.Helper()
	data, err := h.view.GetGlobalScorecardData(&GlobalScorecardRequest{Year: year})
	mustNoErr(t, err, "global data")
	return data.Availability
}

func TestScorecardService_CreateEntryGeneratesIdentifier(t *testing.T) {
	h := newScorecardHarness(t)
	if len(h.entry.ScorecardIdentifier) != len("checkout-api-")+6 {
		t.Errorf("identifier = %q, expected checkout-api-xxxxxx", h.entry.ScorecardIdentifier)
	}
}

func TestScorecardService_CreateEntryRequiresAdmin(t *testing.T) {
	h := newScorecardHarness(t)
	_, err := h.scorecard.CreateEntry(h.member, &CreateEntryRequest{ApplicationID: h.app.ID, Name: "Search"})
	if !response.IsForbidden(err) {
		t.Errorf("expected ForbiddenError, got %v", err)
	}
	_, err = h.scorecard.CreateEntry(h.admin, &CreateEntryRequest{ApplicationID: 9999, Name: "Search"})
	if !response.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
	_, err = h.scorecard.CreateEntry(h.admin, &CreateEntryRequest{ApplicationID: h.app.ID})
	if !response.IsBadRequest(err) {
		t.Errorf("expected BadRequest for missing name, got %v", err)
	}
}

func TestScorecardService_DuplicateIdentifierConflicts(t *testing.T) {
	h := newScorecardHarness(t)
	_, err := h.scorecard.CreateEntry(h.admin, &CreateEntryRequest{
		ApplicationID:       h.app.ID,
		Name:                "Other",
		ScorecardIdentifier: h.entry.ScorecardIdentifier,
	})
	if !response.IsConflict(err) {
		t.Errorf("expected ConflictError, got %v", err)
	}

	second, err := h.scorecard.CreateEntry(h.admin, &CreateEntryRequest{ApplicationID: h.app.ID, Name: "Other"})
	mustNoErr(t, err, "create second")
	_, err = h.scorecard.UpdateEntry(h.admin, second.ID, &UpdateEntryRequest{ScorecardIdentifier: &h.entry.ScorecardIdentifier})
	if !response.IsConflict(err) {
		t.Errorf("rename onto existing identifier: expected ConflictError, got %v", err)
	}
}

func TestScorecardService_ConcurrentIdentifierCreate(t *testing.T) {
	h := newScorecardHarness(t)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.scorecard.CreateEntry(h.admin, &CreateEntryRequest{
				ApplicationID:       h.app.ID,
				Name:                "Shared",
				ScorecardIdentifier: "shared-metric",
			})
		}(i)
	}
	wg.Wait()

	succeeded, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case response.IsConflict(err):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || conflicts != writers-1 {
		t.Errorf("succeeded=%d conflicts=%d, expected 1 and %d", succeeded, conflicts, writers-1)
	}
}

func TestScorecardService_UpsertIsSingleRow(t *testing.T) {
	h := newScorecardHarness(t)
	h.upsertAvailability(t, 2025, 2, "99.9")
	h.upsertAvailability(t, 2025, 2, "98.1")

	var rows []models.AvailabilityRecord
	h.db.Where("scorecard_entry_id = ?", h.entry.ID).Find(&rows)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, expected 1", len(rows))
	}
	if !rows[0].Availability.Equal(decimal.RequireFromString("98.1")) {
		t.Errorf("availability = %s, expected 98.1", rows[0].Availability)
	}
	if rows[0].UpdatedAt == nil || !rows[0].UpdatedAt.After(rows[0].CreatedAt) {
		t.Errorf("updated_at should be set after rewrite, got %v", rows[0].UpdatedAt)
	}
}

func TestScorecardService_UpsertValidation(t *testing.T) {
	h := newScorecardHarness(t)

	tests := []struct {
		name  string
		month int
		value string
	}{
		{"month zero", 0, "99"},
		{"month thirteen", 13, "99"},
		{"negative availability", 2, "-1"},
		{"availability above 100", 2, "100.01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.scorecard.UpsertAvailability(h.member, &UpsertAvailabilityRequest{
				ScorecardEntryID: h.entry.ID, Year: 2025, Month: tt.month,
				Availability: decimal.RequireFromString(tt.value),
			})
			if !response.IsBadRequest(err) {
				t.Errorf("expected BadRequest, got %v", err)
			}
		})
	}

	_, err := h.scorecard.UpsertVolume(h.other, &UpsertVolumeRequest{ScorecardEntryID: h.entry.ID, Year: 2025, Month: 2, Volume: 10})
	if !response.IsForbidden(err) {
		t.Errorf("other team upsert: expected ForbiddenError, got %v", err)
	}
}

func TestGlobalScorecard_HidesUnpublishedAndStale(t *testing.T) {
	h := newScorecardHarness(t)

	h.upsertAvailability(t, 2025, 3, "99.9")
	if got := h.globalAvailability(t, 2025); len(got) != 0 {
		t.Fatalf("unpublished month visible: %d records", len(got))
	}

	h.publishMonth(t, 2025, 3)
	if got := h.globalAvailability(t, 2025); len(got) != 1 {
		t.Fatalf("published month: %d records, expected 1", len(got))
	}

	h.upsertAvailability(t, 2025, 3, "97.0")
	if got := h.globalAvailability(t, 2025); len(got) != 0 {
		t.Errorf("record edited after publish should be hidden, got %d", len(got))
	}

	h.publishMonth(t, 2025, 3)
	got := h.globalAvailability(t, 2025)
	if len(got) != 1 || !got[0].Availability.Equal(decimal.RequireFromString("97")) {
		t.Errorf("republish should surface the edited value, got %+v", got)
	}
}

func TestGlobalScorecard_UnpublishHidesMonth(t *testing.T) {
	h := newScorecardHarness(t)
	h.upsertAvailability(t, 2025, 4, "99.9")
	h.publishMonth(t, 2025, 4)

	status, err := h.publish.Unpublish(h.admin, &PublishRequest{TeamID: h.team.ID, Year: 2025, Month: 4})
	mustNoErr(t, err, "unpublish")
	if status == nil || status.IsPublished {
		t.Fatalf("status after unpublish = %+v", status)
	}
	if got := h.globalAvailability(t, 2025); len(got) != 0 {
		t.Errorf("unpublished month visible: %d records", len(got))
	}

	status, err = h.publish.Unpublish(h.admin, &PublishRequest{TeamID: h.team.ID, Year: 2025, Month: 5})
	if err != nil || status != nil {
		t.Errorf("unpublishing a never-published month should be a no-op, got %+v, %v", status, err)
	}
}

func TestPublishService_RequiresAdmin(t *testing.T) {
	h := newScorecardHarness(t)
	_, err := h.publish.Publish(h.member, &PublishRequest{TeamID: h.team.ID, Year: 2025, Month: 1})
	if !response.IsForbidden(err) {
		t.Errorf("expected ForbiddenError, got %v", err)
	}
	_, err = h.publish.Publish(h.admin, &PublishRequest{TeamID: h.team.ID, Year: 2025, Month: 13})
	if !response.IsBadRequest(err) {
		t.Errorf("expected BadRequest, got %v", err)
	}
	_, err = h.publish.Publish(h.admin, &PublishRequest{TeamID: 9999, Year: 2025, Month: 1})
	if !response.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestPublishService_StatusesReportPendingChanges(t *testing.T) {
	h := newScorecardHarness(t)
	h.upsertAvailability(t, 2025, 6, "99.9")
	h.publishMonth(t, 2025, 6)
	h.upsertAvailability(t, 2025, 7, "99.9")

	states, err := h.publish.GetPublishStatuses(h.member, h.team.ID, 2025)
	mustNoErr(t, err, "statuses")
	if len(states) != 12 {
		t.Fatalf("states = %d, expected 12", len(states))
	}
	if !states[5].IsPublished || states[5].PendingChanges != 0 {
		t.Errorf("june = %+v, expected published with no pending changes", states[5])
	}
	if states[6].IsPublished || states[6].PendingChanges != 1 {
		t.Errorf("july = %+v, expected unpublished with 1 pending change", states[6])
	}
}

func TestGlobalScorecard_IncludesPriorYearAndStats(t *testing.T) {
	h := newScorecardHarness(t)

	volumeThreshold := decimal.NewFromInt(20)
	_, err := h.scorecard.UpdateEntry(h.admin, h.entry.ID, &UpdateEntryRequest{VolumeChangeThreshold: &volumeThreshold})
	mustNoErr(t, err, "update entry")

	for _, v := range []struct {
		year, month int
		volume      int64
	}{{2024, 12, 1000}, {2025, 1, 1500}} {
		_, err := h.scorecard.UpsertVolume(h.member, &UpsertVolumeRequest{
			ScorecardEntryID: h.entry.ID, Year: v.year, Month: v.month, Volume: v.volume,
		})
		mustNoErr(t, err, "upsert volume")
	}
	h.upsertAvailability(t, 2025, 1, "98.0")

	h.clock.Advance(time.Minute)
	h.publishMonth(t, 2024, 12)
	h.publishMonth(t, 2025, 1)

	data, err := h.view.GetGlobalScorecardData(&GlobalScorecardRequest{Year: 2025})
	mustNoErr(t, err, "global data")
	if len(data.Volume) != 2 {
		t.Fatalf("volume records = %d, expected 2 (includes prior December)", len(data.Volume))
	}
	if len(data.PublishTimestamps) != 2 {
		t.Errorf("publish timestamps = %d, expected 2", len(data.PublishTimestamps))
	}
	if data.Stats.AvailabilityBreaches != 1 {
		t.Errorf("availability breaches = %d, expected 1", data.Stats.AvailabilityBreaches)
	}
	if data.Stats.VolumeBreaches != 1 {
		t.Errorf("volume breaches = %d, expected 1 (50%% jump over 20%% threshold)", data.Stats.VolumeBreaches)
	}
	if data.Stats.VolumeReported != 1 {
		t.Errorf("volume reported = %d, expected 1 for the requested year", data.Stats.VolumeReported)
	}
}

func TestGlobalScorecard_LeadershipFilter(t *testing.T) {
	h := newScorecardHarness(t)
	h.db.Model(h.app).Updates(map[string]interface{}{"vp": "Dana Whitfield", "director": "Lee Park"})
	other := createApplication(t, h.db, h.team.ID, "Ledger")
	h.db.Model(other).Update("vp", "Sam Ortiz")

	data, err := h.view.GetGlobalScorecardData(&GlobalScorecardRequest{Year: 2025, LeadershipFilter: "whit"})
	mustNoErr(t, err, "filter any")
	if len(data.Applications) != 1 || data.Applications[0].ID != h.app.ID {
		t.Errorf("filter 'whit' matched %d applications", len(data.Applications))
	}

	data, err = h.view.GetGlobalScorecardData(&GlobalScorecardRequest{Year: 2025, LeadershipFilter: "park", LeadershipType: "vp"})
	mustNoErr(t, err, "filter typed")
	if len(data.Applications) != 0 {
		t.Errorf("typed filter should only match the vp column, got %d", len(data.Applications))
	}

	if got := data.LeadershipOptions.VP; len(got) != 2 || got[0] != "Dana Whitfield" {
		t.Errorf("vp options = %v", got)
	}

	_, err = h.view.GetGlobalScorecardData(&GlobalScorecardRequest{Year: 2025, LeadershipType: "cfo"})
	if !response.IsBadRequest(err) {
		t.Errorf("unknown leadership type: expected BadRequest, got %v", err)
	}
}

func TestTeamScorecard_ShowsDrafts(t *testing.T) {
	h := newScorecardHarness(t)
	h.upsertAvailability(t, 2025, 8, "99.9")

	data, err := h.view.GetTeamScorecardData(h.member, h.team.ID, 2025)
	mustNoErr(t, err, "team data")
	if len(data.Availability) != 1 {
		t.Errorf("team view should include unpublished records, got %d", len(data.Availability))
	}

	if _, err := h.view.GetTeamScorecardData(h.other, h.team.ID, 2025); !response.IsForbidden(err) {
		t.Errorf("outsider: expected ForbiddenError, got %v", err)
	}
}

func TestComputeStats_JanuaryComparesPriorDecember(t *testing.T) {
	entry := models.ScorecardEntry{ID: 1, VolumeChangeThreshold: decimal.NewNullDecimal(decimal.NewFromInt(10))}
	volume := []models.VolumeRecord{
		{ScorecardEntryID: 1, Year: 2024, Month: 12, Volume: 200},
		{ScorecardEntryID: 1, Year: 2025, Month: 1, Volume: 100},
		{ScorecardEntryID: 1, Year: 2025, Month: 2, Volume: 105},
	}
	stats := computeStats(2025, nil, []models.ScorecardEntry{entry}, nil, volume)
	if stats.VolumeBreaches != 1 {
		t.Fatalf("breaches = %d, expected 1", stats.VolumeBreaches)
	}
	b := stats.Breaches[0]
	if b.Month != 1 || !b.Value.Equal(decimal.NewFromInt(-50)) {
		t.Errorf("breach = %+v, expected January at -50%%", b)
	}
}

func TestScorecardService_DeleteEntryRemovesRecords(t *testing.T) {
	h := newScorecardHarness(t)
	h.upsertAvailability(t, 2025, 2, "99.9")

	if err := h.scorecard.DeleteEntry(h.member, h.entry.ID); !response.IsForbidden(err) {
		t.Errorf("member delete: expected ForbiddenError, got %v", err)
	}
	mustNoErr(t, h.scorecard.DeleteEntry(h.admin, h.entry.ID), "delete")

	var count int64
	h.db.Model(&models.AvailabilityRecord{}).Where("scorecard_entry_id = ?", h.entry.ID).Count(&count)
	if count != 0 {
		t.Errorf("availability rows left = %d", count)
	}
	if _, err := h.scorecard.GetEntry(h.admin, h.entry.ID); !response.IsNotFound(err) {
		t.Errorf("expected NotFoundError after delete, got %v", err)
	}
}
