package middleware

import (
	"net/http"
	"strings"

	"github.com/ensemble/backend/internal/models"
	"github.com/ensemble/backend/internal/services"
	"github.com/ensemble/backend/internal/utils"
	"github.com/ensemble/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
	ContextRole     = "role"
	ContextCaller   = "caller"
)

// AuthRequired is a middleware that checks for a valid JWT token
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "authorization header required")
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Set(ContextRole, claims.Role)

		c.Next()
	}
}

// LoadCaller resolves the authenticated user's team memberships once per
// request. It must run after AuthRequired.
func LoadCaller(perms *services.PermissionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := perms.LoadCaller(GetUserID(c))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(ContextCaller, caller)
		c.Next()
	}
}

// AdminRequired is a middleware that checks for the system admin role
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(ContextRole)
		if !exists || role != models.UserRoleAdmin {
			c.JSON(http.StatusForbidden, response.Response{Code: 403, Message: "admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetCaller returns the caller set by LoadCaller, or nil.
func GetCaller(c *gin.Context) *services.Caller {
	if v, exists := c.Get(ContextCaller); exists {
		if caller, ok := v.(*services.Caller); ok {
			return caller
		}
	}
	return nil
}

// GetUserID gets the current user ID from context
func GetUserID(c *gin.Context) uint {
	if id, exists := c.Get(ContextUserID); exists {
		return id.(uint)
	}
	return 0
}

// GetUsername gets the current username from context
func GetUsername(c *gin.Context) string {
	if username, exists := c.Get(ContextUsername); exists {
		return username.(string)
	}
	return ""
}

// GetRole gets the current user role from context
func GetRole(c *gin.Context) string {
	if role, exists := c.Get(ContextRole); exists {
		return role.(string)
	}
	return ""
}
