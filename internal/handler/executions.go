package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"autopilot/internal/auth"
	"autopilot/internal/repository"
	"autopilot/internal/service"
)

type ExecutionsHandler struct {
	Engine  *service.Engine
	Archive repository.Archive
	JWT     auth.JWT
}

func (h *ExecutionsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1")
	g.GET("/queue", h.queue)
	g.GET("/executions", h.list)
	g.GET("/executions/:id", h.get)
	g.GET("/feedback", h.feedback)
	g.POST("/executions/:id/rollback", auth.Middleware(h.JWT), h.rollback)
}

func (h *ExecutionsHandler) queue(c *gin.Context) {
	Ok(c, h.Engine.QueueStatus(), nil)
}

func (h *ExecutionsHandler) get(c *gin.Context) {
	item, err := h.Engine.Execution(strings.TrimSpace(c.Param("id")))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, item, nil)
}

func (h *ExecutionsHandler) list(c *gin.Context) {
	if h.Archive == nil {
		Error(c, http.StatusServiceUnavailable, "archive unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	items, err := h.Archive.ListExecutions(c.Request.Context(), repository.ListExecutionsParams{
		Limit:      limit,
		Offset:     offset,
		DecisionID: stringQueryPtr(c, "decision_id"),
		CampaignID: stringQueryPtr(c, "campaign_id"),
		Status:     stringQueryPtr(c, "status"),
		OrderBy:    "created_at",
		Asc:        boolPtr(false),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"limit": limit, "offset": offset})
}

func (h *ExecutionsHandler) feedback(c *gin.Context) {
	if h.Archive == nil {
		Error(c, http.StatusServiceUnavailable, "archive unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	items, err := h.Archive.ListFeedback(c.Request.Context(), repository.ListFeedbackParams{
		Limit:   limit,
		Offset:  offset,
		Kind:    stringQueryPtr(c, "decision_type"),
		Quality: stringQueryPtr(c, "quality"),
		OrderBy: "created_at",
		Asc:     boolPtr(false),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"limit": limit, "offset": offset})
}

func (h *ExecutionsHandler) rollback(c *gin.Context) {
	item, err := h.Engine.RollbackExecution(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, item, nil)
}
