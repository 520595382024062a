package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"autopilot/internal/models"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// Fail maps engine errors onto HTTP statuses.
func Fail(c *gin.Context, err error) {
	Error(c, statusFor(err), err.Error(), nil)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrNotRollbackable),
		errors.Is(err, models.ErrCampaignBusy),
		errors.Is(err, models.ErrApprovalRequired):
		return http.StatusConflict
	case errors.Is(err, models.ErrGuardrailViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrRollbackFailed),
		errors.Is(err, models.ErrPlatformAction):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrExecutionTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadRequest
	}
}

func intQuery(c *gin.Context, key string, def int) int {
	if val := c.Query(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

func stringQueryPtr(c *gin.Context, key string) *string {
	if v := strings.TrimSpace(c.Query(key)); v != "" {
		return &v
	}
	return nil
}

func boolPtr(v bool) *bool { return &v }

func paginationMeta(limit, offset int, total int64) map[string]any {
	if limit <= 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	return map[string]any{
		"limit":    limit,
		"offset":   offset,
		"total":    total,
		"has_next": int64(offset+limit) < total,
	}
}
