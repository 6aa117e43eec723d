package handlers

import (
	"github.com/ensemble/backend/internal/middleware"
	"github.com/ensemble/backend/internal/services"
	"github.com/ensemble/backend/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type LinkHandler struct {
	linkService *services.LinkService
}

func NewLinkHandler(db *gorm.DB) *LinkHandler {
	return &LinkHandler{linkService: services.NewLinkService(db)}
}

// List
// GET /api/links?team_id=&application_id=&tag=&search=
func (h *LinkHandler) List(c *gin.Context) {
	var req services.ListLinksRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	links, err := h.linkService.ListLinks(middleware.GetCaller(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, links)
}

// Create
// POST /api/links
func (h *LinkHandler) Create(c *gin.Context) {
	var req services.CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	link, err := h.linkService.CreateLink(middleware.GetCaller(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, link)
}

// Update
// PUT /api/links/:id
func (h *LinkHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	link, err := h.linkService.UpdateLink(middleware.GetCaller(c), id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, link)
}

// Delete
// DELETE /api/links/:id
func (h *LinkHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.linkService.DeleteLink(middleware.GetCaller(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "link deleted"})
}

// BulkUpdate applies one change set to many links
// POST /api/links/bulk-update
func (h *LinkHandler) BulkUpdate(c *gin.Context) {
	var req services.BulkUpdateLinksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	result, err := h.linkService.BulkUpdateLinks(middleware.GetCaller(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}
