package handlers

import (
	"strconv"

	"github.com/ensemble/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

// parseID reads a uint path parameter, writing a 400 when it is malformed.
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// queryUint reads an optional uint query parameter.
func queryUint(c *gin.Context, name string) (*uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return nil, false
	}
	id := uint(v)
	return &id, true
}

// queryYear reads the required year query parameter.
func queryYear(c *gin.Context) (int, bool) {
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil || year < 1 {
		response.BadRequest(c, "year is required")
		return 0, false
	}
	return year, true
}
