package services

import (
	"context"
	"time"

	"github.com/ensemble/backend/internal/config"
	"github.com/ensemble/backend/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Scheduler runs periodic maintenance: system log cleanup and, when
// configured, ITSM sync for teams in AUTO import mode.
type Scheduler struct {
	cron     *cron.Cron
	logs     *SystemLogService
	itsm     *ItsmService
	syncCron string
	logCron  string
}

func NewScheduler(cfg *config.Config, logs *SystemLogService, itsmSvc *ItsmService) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		logs:     logs,
		itsm:     itsmSvc,
		syncCron: cfg.ITSM.AutoSyncCron,
		logCron:  cfg.Log.CleanupCron,
	}
}

// Start registers jobs and starts the cron loop. A bad expression is
// logged and that job is skipped.
func (s *Scheduler) Start() {
	if s.logCron != "" && s.logs != nil {
		if _, err := s.cron.AddFunc(s.logCron, s.logs.RunCleanup); err != nil {
			logger.Errorf("[Scheduler] Invalid log cleanup cron %q: %v", s.logCron, err)
		} else {
			logger.Infof("[Scheduler] Log cleanup scheduled (cron: %s)", s.logCron)
		}
	}
	if s.syncCron != "" && s.itsm != nil {
		if _, err := s.cron.AddFunc(s.syncCron, s.runAutoSync); err != nil {
			logger.Errorf("[Scheduler] Invalid ITSM sync cron %q: %v", s.syncCron, err)
		} else {
			logger.Infof("[Scheduler] ITSM auto sync scheduled (cron: %s)", s.syncCron)
		}
	}
	s.cron.Start()
}

func (s *Scheduler) runAutoSync() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	s.itsm.SyncAutoTeams(ctx)
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Infof("[Scheduler] Stopped")
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
