package models

import (
	"testing"
	"time"
)

func TestPayloadString(t *testing.T) {
	data := map[string]interface{}{
		"number":           "INC0001",
		"assignment_group": map[string]interface{}{"display_value": "Payments-Ops", "link": "https://x"},
		"cmdb_ci":          map[string]interface{}{"value": "abc123"},
		"reassignment":     float64(2),
		"empty_ref":        map[string]interface{}{},
		"nothing":          nil,
	}
	tests := []struct {
		key      string
		expected string
	}{
		{"number", "INC0001"},
		{"assignment_group", "Payments-Ops"},
		{"cmdb_ci", "abc123"},
		{"reassignment", "2"},
		{"empty_ref", ""},
		{"nothing", ""},
		{"missing", ""},
	}
	for _, tt := range tests {
		if got := PayloadString(data, tt.key); got != tt.expected {
			t.Errorf("PayloadString(%q) = %q, expected %q", tt.key, got, tt.expected)
		}
	}
}

func TestItsmReviewQueueItem_IsClosed(t *testing.T) {
	tests := []struct {
		name     string
		raw      map[string]interface{}
		expected bool
	}{
		{"closed state", map[string]interface{}{"state": "Closed"}, true},
		{"numeric closed", map[string]interface{}{"state": "7"}, true},
		{"incident_state wins", map[string]interface{}{"state": "Closed", "incident_state": "In Progress"}, false},
		{"lowercase", map[string]interface{}{"incident_state": " closed "}, true},
		{"resolved is not closed", map[string]interface{}{"state": "Resolved"}, false},
		{"no state", map[string]interface{}{}, false},
	}
	for _, tt := range tests {
		item := ItsmReviewQueueItem{RawData: tt.raw}
		if got := item.IsClosed(); got != tt.expected {
			t.Errorf("%s: IsClosed() = %v, expected %v", tt.name, got, tt.expected)
		}
	}
}

func TestItsmReviewQueueItem_IsTerminal(t *testing.T) {
	for status, expected := range map[string]bool{
		QueueStatusPending:  false,
		QueueStatusImported: true,
		QueueStatusRejected: true,
	} {
		item := ItsmReviewQueueItem{Status: status}
		if got := item.IsTerminal(); got != expected {
			t.Errorf("IsTerminal(%s) = %v, expected %v", status, got, expected)
		}
	}
}

func TestTurnoverSettings_ModesAndWorkgroups(t *testing.T) {
	s := &TurnoverSettings{
		RfcImportMode: ImportModeAuto,
		IncImportMode: "bogus",
		AppWorkgroups: []AppWorkgroup{
			{ApplicationID: 1, Type: ItsmTypeRFC, GroupName: "Change-A"},
			{ApplicationID: 2, Type: ItsmTypeRFC, GroupName: " change-a "},
			{ApplicationID: 1, Type: ItsmTypeINC, GroupName: "Ops"},
			{ApplicationID: 1, Type: ItsmTypeINC, GroupName: ""},
		},
	}
	if got := s.ImportMode(ItsmTypeRFC); got != ImportModeAuto {
		t.Errorf("RFC mode = %q, expected AUTO", got)
	}
	if got := s.ImportMode(ItsmTypeINC); got != ImportModeReview {
		t.Errorf("INC mode = %q, expected REVIEW for unknown value", got)
	}
	if got := s.Workgroups(ItsmTypeRFC); len(got) != 1 || got[0] != "Change-A" {
		t.Errorf("RFC workgroups = %v, expected [Change-A]", got)
	}
	if got := s.Workgroups(ItsmTypeINC); len(got) != 1 {
		t.Errorf("INC workgroups = %v, expected [Ops]", got)
	}
}

func TestLastModifiedAndIsLive(t *testing.T) {
	created := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)

	rec := AvailabilityRecord{CreatedAt: created}
	if !rec.LastModified().Equal(created) {
		t.Errorf("LastModified() = %v, expected created time", rec.LastModified())
	}
	rec.UpdatedAt = &updated
	if !rec.LastModified().Equal(updated) {
		t.Errorf("LastModified() = %v, expected updated time", rec.LastModified())
	}
	vol := VolumeRecord{CreatedAt: created, UpdatedAt: &updated}
	if !vol.LastModified().Equal(updated) {
		t.Errorf("volume LastModified() = %v, expected updated time", vol.LastModified())
	}

	var nilStatus *PublishStatus
	if nilStatus.IsLive() {
		t.Error("nil status should not be live")
	}
	if (&PublishStatus{IsPublished: true}).IsLive() {
		t.Error("status without PublishedAt should not be live")
	}
	if !(&PublishStatus{IsPublished: true, PublishedAt: &created}).IsLive() {
		t.Error("published status should be live")
	}
}
