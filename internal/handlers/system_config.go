package handlers

import (
	"github.com/ensemble/backend/internal/middleware"
	"github.com/ensemble/backend/internal/services"
	"github.com/ensemble/backend/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type SystemConfigHandler struct {
	configService *services.SystemConfigService
}

func NewSystemConfigHandler(db *gorm.DB) *SystemConfigHandler {
	return &SystemConfigHandler{
		configService: services.NewSystemConfigService(db),
	}
}

// List returns every config row, optionally filtered by group
// GET /api/system-configs?group=
func (h *SystemConfigHandler) List(c *gin.Context) {
	var (
		err  error
		resp interface{}
	)
	if group := c.Query("group"); group != "" {
		resp, err = h.configService.GetByGroup(group)
	} else {
		resp, err = h.configService.List()
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// Update
// PUT /api/system-configs/:key
func (h *SystemConfigHandler) Update(c *gin.Context) {
	var req services.UpdateSystemConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	cfg, err := h.configService.Update(middleware.GetCaller(c), c.Param("key"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, cfg)
}
