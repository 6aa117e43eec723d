package services

import (
	"testing"

	"github.com/ensemble/backend/internal/config"
)

func TestScheduler_RegistersConfiguredJobs(t *testing.T) {
	db := newTestDB(t)
	logs := NewSystemLogService(db)
	itsmSvc := NewItsmService(db, nil, nil, 7)

	tests := []struct {
		name      string
		logCron   string
		syncCron  string
		itsm      *ItsmService
		wantCount int
	}{
		{"log cleanup only", "0 3 * * *", "", itsmSvc, 1},
		{"both jobs", "0 3 * * *", "*/15 * * * *", itsmSvc, 2},
		{"invalid expression skipped", "not a cron", "*/15 * * * *", itsmSvc, 1},
		{"sync without service", "", "*/15 * * * *", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Log.CleanupCron = tt.logCron
			cfg.ITSM.AutoSyncCron = tt.syncCron
			s := NewScheduler(cfg, logs, tt.itsm)
			s.Start()
			defer s.Stop()
			if got := s.Entries(); got != tt.wantCount {
				t.Errorf("Entries() = %d, expected %d", got, tt.wantCount)
			}
		})
	}
}
