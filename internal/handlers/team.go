package handlers

import (
	"github.com/ensemble/backend/internal/middleware"
	"github.com/ensemble/backend/internal/services"
	"github.com/ensemble/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type TeamHandler struct {
	teamService *services.TeamService
	appService  *services.ApplicationService
}

func NewTeamHandler(teams *services.TeamService, apps *services.ApplicationService) *TeamHandler {
	return &TeamHandler{teamService: teams, appService: apps}
}

// Register files a team registration request
// POST /api/teams
func (h *TeamHandler) Register(c *gin.Context) {
	var req services.RegisterTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	team, err := h.teamService.RegisterTeam(middleware.GetCaller(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, team)
}

// List
// GET /api/teams?status=&mine=
func (h *TeamHandler) List(c *gin.Context) {
	var req services.TeamListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	teams, err := h.teamService.ListTeams(middleware.GetCaller(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, teams)
}

// Get
// GET /api/teams/:id
func (h *TeamHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	team, err := h.teamService.GetTeam(id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, team)
}

// Approve
// POST /api/teams/:id/approve
func (h *TeamHandler) Approve(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	team, err := h.teamService.ApproveTeam(middleware.GetCaller(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, team)
}

// Reject
// POST /api/teams/:id/reject
func (h *TeamHandler) Reject(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req services.ReviewTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	team, err := h.teamService.RejectTeam(middleware.GetCaller(c), id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, team)
}

// ListMembers
// GET /api/teams/:id/members
func (h *TeamHandler) ListMembers(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	members, err := h.teamService.ListMembers(middleware.GetCaller(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, members)
}

// AddMember
// POST /api/teams/:id/members
func (h *TeamHandler) AddMember(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req services.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	perm, err := h.teamService.AddMember(middleware.GetCaller(c), id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, perm)
}

// UpdateMember
// PUT /api/teams/:id/members/:user_id
func (h *TeamHandler) UpdateMember(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	userID, ok := parseID(c, "user_id")
	if !ok {
		return
	}
	var req services.UpdateMemberRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	perm, err := h.teamService.UpdateMemberRole(middleware.GetCaller(c), id, userID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, perm)
}

// RemoveMember
// DELETE /api/teams/:id/members/:user_id
func (h *TeamHandler) RemoveMember(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	userID, ok := parseID(c, "user_id")
	if !ok {
		return
	}
	if err := h.teamService.RemoveMember(middleware.GetCaller(c), id, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "member removed"})
}

// ListApplications
// GET /api/teams/:id/applications
func (h *TeamHandler) ListApplications(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	apps, err := h.appService.List(middleware.GetCaller(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, apps)
}

// CreateApplication
// POST /api/applications
func (h *TeamHandler) CreateApplication(c *gin.Context) {
	var req services.ApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	app, err := h.appService.Create(middleware.GetCaller(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// GetApplication
// GET /api/applications/:id
func (h *TeamHandler) GetApplication(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	app, err := h.appService.Get(middleware.GetCaller(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, app)
}

// UpdateApplication
// PUT /api/applications/:id
func (h *TeamHandler) UpdateApplication(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req services.ApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	app, err := h.appService.Update(middleware.GetCaller(c), id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, app)
}

// DeleteApplication
// DELETE /api/applications/:id
func (h *TeamHandler) DeleteApplication(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.appService.Delete(middleware.GetCaller(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "application deleted"})
}
