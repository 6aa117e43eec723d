package main

import (
	"github.com/ensemble/backend/internal/config"
	"github.com/ensemble/backend/internal/handlers"
	"github.com/ensemble/backend/internal/middleware"
	"github.com/ensemble/backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, cfg *config.Config, svc *appServices) {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	healthHandler := handlers.NewHealthHandler(svc.db, svc.taskQueue)
	r.GET("/health", healthHandler.CheckHealth)

	authHandler := handlers.NewAuthHandler(svc.db, cfg)
	loginLimiter := middleware.NewRateLimiter(1, 10)

	// ITSM pulls hit the upstream instance, so they are limited per user.
	syncRate, syncBurst := cfg.ITSM.SyncRatePerSecond, cfg.ITSM.SyncBurst
	if syncRate <= 0 {
		syncRate = 0.2
	}
	if syncBurst <= 0 {
		syncBurst = 3
	}
	syncLimiter := middleware.NewUserRateLimiter(syncRate, syncBurst)

	api := r.Group("/api")
	{
		api.POST("/auth/login", loginLimiter.Middleware(), authHandler.Login)

		protected := api.Group("")
		protected.Use(middleware.AuthRequired(), middleware.LoadCaller(svc.permissions), middleware.AuditLog())
		{
			protected.GET("/auth/me", authHandler.GetCurrentUser)
			protected.POST("/auth/logout", authHandler.Logout)
			protected.POST("/auth/change-password", authHandler.ChangePassword)
			protected.GET("/users", authHandler.ListUsers)

			// Teams and applications
			teamHandler := handlers.NewTeamHandler(svc.teams, svc.apps)
			protected.GET("/teams", teamHandler.List)
			protected.POST("/teams", teamHandler.Register)
			protected.GET("/teams/:id", teamHandler.Get)
			protected.GET("/teams/:id/members", teamHandler.ListMembers)
			protected.POST("/teams/:id/members", teamHandler.AddMember)
			protected.PUT("/teams/:id/members/:user_id", teamHandler.UpdateMember)
			protected.DELETE("/teams/:id/members/:user_id", teamHandler.RemoveMember)
			protected.GET("/teams/:id/applications", teamHandler.ListApplications)
			protected.POST("/applications", teamHandler.CreateApplication)
			protected.GET("/applications/:id", teamHandler.GetApplication)
			protected.PUT("/applications/:id", teamHandler.UpdateApplication)
			protected.DELETE("/applications/:id", teamHandler.DeleteApplication)

			// Scorecard
			scorecardHandler := handlers.NewScorecardHandler(svc.db)
			protected.GET("/scorecard/global", scorecardHandler.Global)
			protected.GET("/scorecard/teams/:id", scorecardHandler.Team)
			protected.GET("/scorecard/teams/:id/entries", scorecardHandler.ListEntries)
			protected.GET("/scorecard/teams/:id/publish-status", scorecardHandler.PublishStatuses)
			protected.POST("/scorecard/entries", scorecardHandler.CreateEntry)
			protected.GET("/scorecard/entries/:id", scorecardHandler.GetEntry)
			protected.PUT("/scorecard/entries/:id", scorecardHandler.UpdateEntry)
			protected.DELETE("/scorecard/entries/:id", scorecardHandler.DeleteEntry)
			protected.PUT("/scorecard/availability", scorecardHandler.UpsertAvailability)
			protected.PUT("/scorecard/volume", scorecardHandler.UpsertVolume)
			protected.POST("/scorecard/publish", scorecardHandler.Publish)
			protected.POST("/scorecard/unpublish", scorecardHandler.Unpublish)

			// ITSM review queue
			itsmHandler := handlers.NewItsmHandler(svc.itsm, svc.taskQueue)
			protected.POST("/itsm/sync", syncLimiter.Middleware(), itsmHandler.Sync)
			protected.POST("/itsm/sync/async", syncLimiter.Middleware(), itsmHandler.EnqueueSync)
			protected.GET("/itsm/queue", itsmHandler.Queue)
			protected.POST("/itsm/queue/:id/process", itsmHandler.Process)
			protected.POST("/itsm/queue/bulk-import", itsmHandler.BulkImport)
			protected.POST("/itsm/queue/bulk-reject", itsmHandler.BulkReject)
			protected.GET("/itsm/teams/:id/settings", itsmHandler.GetSettings)
			protected.PUT("/itsm/teams/:id/settings", itsmHandler.UpdateSettings)

			// Turnover
			turnoverHandler := handlers.NewTurnoverHandler(svc.turnover)
			protected.GET("/turnover/teams/:id", turnoverHandler.Board)
			protected.POST("/turnover/teams/:id/finalize", turnoverHandler.Finalize)
			protected.GET("/turnover/teams/:id/finalized", turnoverHandler.ListFinalized)
			protected.GET("/turnover/finalized/:id", turnoverHandler.GetFinalized)
			protected.POST("/turnover/entries", turnoverHandler.CreateEntry)
			protected.PUT("/turnover/entries/:id", turnoverHandler.UpdateEntry)
			protected.DELETE("/turnover/entries/:id", turnoverHandler.DeleteEntry)
			protected.PATCH("/turnover/entries/:id/important", turnoverHandler.ToggleImportant)
			protected.POST("/turnover/entries/:id/resolve", turnoverHandler.Resolve)
			protected.POST("/turnover/entries/:id/reopen", turnoverHandler.Reopen)

			// Links
			linkHandler := handlers.NewLinkHandler(svc.db)
			protected.GET("/links", linkHandler.List)
			protected.POST("/links", linkHandler.Create)
			protected.PUT("/links/:id", linkHandler.Update)
			protected.DELETE("/links/:id", linkHandler.Delete)
			protected.POST("/links/bulk-update", linkHandler.BulkUpdate)
		}

		// System admin routes
		admin := api.Group("")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired(), middleware.LoadCaller(svc.permissions), middleware.AuditLog())
		{
			teamHandler := handlers.NewTeamHandler(svc.teams, svc.apps)
			admin.POST("/teams/:id/approve", teamHandler.Approve)
			admin.POST("/teams/:id/reject", teamHandler.Reject)

			admin.POST("/users", authHandler.CreateUser)

			systemLogHandler := handlers.NewSystemLogHandler(svc.db)
			admin.GET("/system-logs", systemLogHandler.List)
			admin.GET("/system-logs/modules", systemLogHandler.GetModules)
			admin.POST("/system-logs/cleanup", systemLogHandler.Cleanup)

			systemConfigHandler := handlers.NewSystemConfigHandler(svc.db)
			admin.GET("/system-configs", systemConfigHandler.List)
			admin.PUT("/system-configs/:key", systemConfigHandler.Update)
		}
	}
}
