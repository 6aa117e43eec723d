package handlers

import (
	"net/http"

	"github.com/ensemble/backend/internal/models"
	"github.com/ensemble/backend/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler reports the state of the database and sync queue.
type HealthHandler struct {
	db    *gorm.DB
	queue services.TaskQueue
}

func NewHealthHandler(db *gorm.DB, queue services.TaskQueue) *HealthHandler {
	return &HealthHandler{db: db, queue: queue}
}

// CheckHealth returns the health status of all subsystems.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := http.StatusOK

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	}
	if overall != "healthy" {
		status = http.StatusServiceUnavailable
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	var pendingItems int64
	h.db.Model(&models.ItsmReviewQueueItem{}).Where("status = ?", models.QueueStatusPending).Count(&pendingItems)

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "ensemble",
		"components": gin.H{
			"database":            dbStatus,
			"queue_mode":          queueMode,
			"pending_queue_items": pendingItems,
		},
	})
}
