package main

import (
	"time"

	"github.com/ensemble/backend/internal/config"
	"github.com/ensemble/backend/internal/models"
	"github.com/ensemble/backend/internal/services"
	"github.com/ensemble/backend/internal/services/itsm"
	"github.com/ensemble/backend/internal/utils"
	"github.com/ensemble/backend/pkg/logger"
	"gorm.io/gorm"
)

// appServices holds the services shared between handlers and background jobs.
type appServices struct {
	db          *gorm.DB
	permissions *services.PermissionService
	teams       *services.TeamService
	apps        *services.ApplicationService
	itsm        *services.ItsmService
	turnover    *services.TurnoverService
	systemLogs  *services.SystemLogService
	locker      services.SyncLocker
	taskQueue   services.TaskQueue
	worker      *services.Worker
	scheduler   *services.Scheduler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	if err := models.SeedDefaultData(cfg); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default data")
	}
	db := models.GetDB()

	services.InitSystemLogger(db)

	if err := services.NewAuthService(db, &cfg.JWT).CreateAdminIfNotExists(); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	// A nil *ServiceNowClient must not become a non-nil interface.
	var source itsm.Source
	if client := itsm.NewServiceNowClient(&cfg.ITSM); client != nil {
		source = client
	} else {
		logger.Warn().Msg("ITSM base_url not set, sync is disabled")
	}

	locker := services.NewSyncLocker(&cfg.Redis)
	itsmService := services.NewItsmService(db, source, locker, cfg.ITSM.DefaultMaxSearchDays)

	taskQueue := services.InitTaskQueue(cfg)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(itsmService.ProcessSyncTask)
	}

	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.InitWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(itsmService.ProcessSyncTask)
			if err := worker.Start(); err != nil {
				logger.Errorf("Failed to start sync worker: %v", err)
			}
		}
	}

	systemLogs := services.NewSystemLogService(db)
	scheduler := services.NewScheduler(cfg, systemLogs, itsmService)
	scheduler.Start()

	var notifier services.Notifier
	if cfg.Email.Host != "" {
		notifier = services.NewEmailService(db, cfg.Email)
	}

	cooldown := time.Duration(cfg.Turnover.FinalizeCooldownMinutes) * time.Minute

	return &appServices{
		db:          db,
		permissions: services.NewPermissionService(db),
		teams:       services.NewTeamService(db, notifier),
		apps:        services.NewApplicationService(db),
		itsm:        itsmService,
		turnover:    services.NewTurnoverService(db, cooldown),
		systemLogs:  systemLogs,
		locker:      locker,
		taskQueue:   taskQueue,
		worker:      worker,
		scheduler:   scheduler,
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.scheduler.Stop()
	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
	if closer, ok := s.locker.(*services.RedisSyncLocker); ok {
		closer.Close()
	}
	logger.Info().Msg("All background services stopped")
}
