package handlers

import (
	"net/http"

	"github.com/ensemble/backend/internal/middleware"
	"github.com/ensemble/backend/internal/services"
	"github.com/ensemble/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type ItsmHandler struct {
	itsmService *services.ItsmService
	queue       services.TaskQueue
}

func NewItsmHandler(itsmService *services.ItsmService, queue services.TaskQueue) *ItsmHandler {
	return &ItsmHandler{itsmService: itsmService, queue: queue}
}

// Sync pulls tickets for a team and waits for the result
// POST /api/itsm/sync
func (h *ItsmHandler) Sync(c *gin.Context) {
	var req services.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	result, err := h.itsmService.SyncItems(c.Request.Context(), middleware.GetCaller(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// EnqueueSync schedules a background sync
// POST /api/itsm/sync/async
func (h *ItsmHandler) EnqueueSync(c *gin.Context) {
	var req services.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.itsmService.EnqueueSync(middleware.GetCaller(c), &req, h.queue); err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusAccepted, response.Response{Code: 0, Message: "sync queued"})
}

// Queue lists review queue items
// GET /api/itsm/queue?team_id=&include_resolved=&resolved_within_days=
func (h *ItsmHandler) Queue(c *gin.Context) {
	var req services.ReviewQueueRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	items, err := h.itsmService.GetReviewQueue(middleware.GetCaller(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, items)
}

// Process imports or rejects one item
// POST /api/itsm/queue/:id/process
func (h *ItsmHandler) Process(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req services.ProcessQueueItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	result, err := h.itsmService.ProcessReviewQueueItem(middleware.GetCaller(c), id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// BulkImport
// POST /api/itsm/queue/bulk-import
func (h *ItsmHandler) BulkImport(c *gin.Context) {
	var req services.BulkQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	result, err := h.itsmService.BulkImportItems(middleware.GetCaller(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// BulkReject
// POST /api/itsm/queue/bulk-reject
func (h *ItsmHandler) BulkReject(c *gin.Context) {
	var req services.BulkQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	result, err := h.itsmService.BulkRejectItems(middleware.GetCaller(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// GetSettings
// GET /api/itsm/teams/:id/settings
func (h *ItsmHandler) GetSettings(c *gin.Context) {
	teamID, ok := parseID(c, "id")
	if !ok {
		return
	}
	settings, err := h.itsmService.GetTurnoverSettings(middleware.GetCaller(c), teamID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, settings)
}

// UpdateSettings
// PUT /api/itsm/teams/:id/settings
func (h *ItsmHandler) UpdateSettings(c *gin.Context) {
	teamID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	settings, err := h.itsmService.UpdateTurnoverSettings(middleware.GetCaller(c), teamID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, settings)
}
