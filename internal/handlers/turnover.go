package handlers

import (
	"strconv"

	"github.com/ensemble/backend/internal/middleware"
	"github.com/ensemble/backend/internal/models"
	"github.com/ensemble/backend/internal/services"
	"github.com/ensemble/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type TurnoverHandler struct {
	turnoverService *services.TurnoverService
}

func NewTurnoverHandler(turnoverService *services.TurnoverService) *TurnoverHandler {
	return &TurnoverHandler{turnoverService: turnoverService}
}

// Board returns the team's open entries grouped by application and section
// GET /api/turnover/teams/:id?include_resolved=
func (h *TurnoverHandler) Board(c *gin.Context) {
	teamID, ok := parseID(c, "id")
	if !ok {
		return
	}
	includeResolved, _ := strconv.ParseBool(c.DefaultQuery("include_resolved", "false"))
	board, err := h.turnoverService.ListEntries(middleware.GetCaller(c), teamID, includeResolved)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, board)
}

// CreateEntry
// POST /api/turnover/entries
func (h *TurnoverHandler) CreateEntry(c *gin.Context) {
	var req services.CreateTurnoverEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	entry, err := h.turnoverService.CreateEntry(middleware.GetCaller(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// UpdateEntry
// PUT /api/turnover/entries/:id
func (h *TurnoverHandler) UpdateEntry(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateTurnoverEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	entry, err := h.turnoverService.UpdateEntry(middleware.GetCaller(c), id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, entry)
}

// DeleteEntry
// DELETE /api/turnover/entries/:id
func (h *TurnoverHandler) DeleteEntry(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.turnoverService.DeleteEntry(middleware.GetCaller(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "entry deleted"})
}

// ToggleImportant
// PATCH /api/turnover/entries/:id/important
func (h *TurnoverHandler) ToggleImportant(c *gin.Context) {
	h.transition(c, h.turnoverService.ToggleImportant)
}

// Resolve
// POST /api/turnover/entries/:id/resolve
func (h *TurnoverHandler) Resolve(c *gin.Context) {
	h.transition(c, h.turnoverService.Resolve)
}

// Reopen
// POST /api/turnover/entries/:id/reopen
func (h *TurnoverHandler) Reopen(c *gin.Context) {
	h.transition(c, h.turnoverService.Reopen)
}

func (h *TurnoverHandler) transition(c *gin.Context, fn func(*services.Caller, uint) (*models.TurnoverEntry, error)) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	entry, err := fn(middleware.GetCaller(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, entry)
}

// Finalize snapshots the team's board
// POST /api/turnover/teams/:id/finalize
func (h *TurnoverHandler) Finalize(c *gin.Context) {
	teamID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req services.FinalizeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	finalized, err := h.turnoverService.Finalize(middleware.GetCaller(c), teamID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, finalized)
}

// ListFinalized
// GET /api/turnover/teams/:id/finalized?page=&page_size=
func (h *TurnoverHandler) ListFinalized(c *gin.Context) {
	teamID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req services.FinalizedListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	resp, err := h.turnoverService.ListFinalized(middleware.GetCaller(c), teamID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// GetFinalized
// GET /api/turnover/finalized/:id
func (h *TurnoverHandler) GetFinalized(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	finalized, err := h.turnoverService.GetFinalized(middleware.GetCaller(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, finalized)
}
