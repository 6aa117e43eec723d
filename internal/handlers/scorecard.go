package handlers

import (
	"github.com/ensemble/backend/internal/middleware"
	"github.com/ensemble/backend/internal/services"
	"github.com/ensemble/backend/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ScorecardHandler struct {
	scorecardService *services.ScorecardService
	publishService   *services.PublishService
	viewService      *services.ScorecardViewService
}

func NewScorecardHandler(db *gorm.DB) *ScorecardHandler {
	return &ScorecardHandler{
		scorecardService: services.NewScorecardService(db),
		publishService:   services.NewPublishService(db),
		viewService:      services.NewScorecardViewService(db),
	}
}

// ListEntries
// GET /api/scorecard/teams/:id/entries?application_id=
func (h *ScorecardHandler) ListEntries(c *gin.Context) {
	teamID, ok := parseID(c, "id")
	if !ok {
		return
	}
	appID, ok := queryUint(c, "application_id")
	if !ok {
		return
	}
	entries, err := h.scorecardService.ListEntries(middleware.GetCaller(c), teamID, appID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, entries)
}

// CreateEntry
// POST /api/scorecard/entries
func (h *ScorecardHandler) CreateEntry(c *gin.Context) {
	var req services.CreateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	entry, err := h.scorecardService.CreateEntry(middleware.GetCaller(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// GetEntry
// GET /api/scorecard/entries/:id
func (h *ScorecardHandler) GetEntry(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	entry, err := h.scorecardService.GetEntry(middleware.GetCaller(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, entry)
}

// UpdateEntry
// PUT /api/scorecard/entries/:id
func (h *ScorecardHandler) UpdateEntry(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	entry, err := h.scorecardService.UpdateEntry(middleware.GetCaller(c), id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, entry)
}

// DeleteEntry
// DELETE /api/scorecard/entries/:id
func (h *ScorecardHandler) DeleteEntry(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.scorecardService.DeleteEntry(middleware.GetCaller(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "entry deleted"})
}

// UpsertAvailability
// PUT /api/scorecard/availability
func (h *ScorecardHandler) UpsertAvailability(c *gin.Context) {
	var req services.UpsertAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	record, err := h.scorecardService.UpsertAvailability(middleware.GetCaller(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, record)
}

// UpsertVolume
// PUT /api/scorecard/volume
func (h *ScorecardHandler) UpsertVolume(c *gin.Context) {
	var req services.UpsertVolumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	record, err := h.scorecardService.UpsertVolume(middleware.GetCaller(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, record)
}

// Publish makes a team month visible on the global scorecard
// POST /api/scorecard/publish
func (h *ScorecardHandler) Publish(c *gin.Context) {
	var req services.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	status, err := h.publishService.Publish(middleware.GetCaller(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status)
}

// Unpublish
// POST /api/scorecard/unpublish
func (h *ScorecardHandler) Unpublish(c *gin.Context) {
	var req services.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	status, err := h.publishService.Unpublish(middleware.GetCaller(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status)
}

// PublishStatuses returns the twelve-month publish calendar
// GET /api/scorecard/teams/:id/publish-status?year=
func (h *ScorecardHandler) PublishStatuses(c *gin.Context) {
	teamID, ok := parseID(c, "id")
	if !ok {
		return
	}
	year, ok := queryYear(c)
	if !ok {
		return
	}
	states, err := h.publishService.GetPublishStatuses(middleware.GetCaller(c), teamID, year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, states)
}

// Global returns published data for every team
// GET /api/scorecard/global?year=&leadership_type=&leadership_filter=
func (h *ScorecardHandler) Global(c *gin.Context) {
	var req services.GlobalScorecardRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	data, err := h.viewService.GetGlobalScorecardData(&req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, data)
}

// Team returns a team's working data including unpublished edits
// GET /api/scorecard/teams/:id?year=
func (h *ScorecardHandler) Team(c *gin.Context) {
	teamID, ok := parseID(c, "id")
	if !ok {
		return
	}
	year, ok := queryYear(c)
	if !ok {
		return
	}
	data, err := h.viewService.GetTeamScorecardData(middleware.GetCaller(c), teamID, year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, data)
}
