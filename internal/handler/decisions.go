package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"autopilot/internal/auth"
	"autopilot/internal/models"
	"autopilot/internal/repository"
	"autopilot/internal/service"
)

// DecisionsHandler exposes decision cycles and the approval workflow.
type DecisionsHandler struct {
	Engine  *service.Engine
	Archive repository.Archive
	JWT     auth.JWT
}

func (h *DecisionsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1")
	g.GET("/decisions", h.list)
	g.GET("/decisions/:id", h.get)
	g.GET("/calibration", h.calibration)

	w := g.Group("", auth.Middleware(h.JWT))
	w.POST("/cycles", h.runCycle)
	w.POST("/decisions/:id/approve", h.approve)
	w.POST("/decisions/:id/reject", h.reject)
	w.POST("/decisions/:id/enqueue", h.enqueue)
	w.POST("/decisions/:id/learn", h.learn)
}

func (h *DecisionsHandler) runCycle(c *gin.Context) {
	var req models.DecisionContext
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	req.CampaignID = strings.TrimSpace(req.CampaignID)
	if req.CampaignID == "" {
		Error(c, http.StatusBadRequest, "campaign_id is required", nil)
		return
	}
	res, err := h.Engine.RunCycle(c.Request.Context(), req, req.BusinessGoals)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, res, map[string]any{
		"decisions":        len(res.Decisions),
		"enqueued":         len(res.Enqueued),
		"pending_approval": len(res.PendingApproval),
	})
}

// list reads the archive when one is configured and the in-memory working set otherwise.
func (h *DecisionsHandler) list(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	campaign := stringQueryPtr(c, "campaign_id")
	status := stringQueryPtr(c, "approval_status")
	if h.Archive != nil {
		items, err := h.Archive.ListDecisions(c.Request.Context(), repository.ListDecisionsParams{
			Limit:          limit,
			Offset:         offset,
			CampaignID:     campaign,
			Kind:           stringQueryPtr(c, "decision_type"),
			ApprovalStatus: status,
			OrderBy:        "created_at",
			Asc:            boolPtr(false),
		})
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		Ok(c, items, map[string]any{"limit": limit, "offset": offset, "source": "archive"})
		return
	}
	items := h.Engine.Queue.Decisions(func(d *models.Decision) bool {
		if campaign != nil && d.CampaignID != *campaign {
			return false
		}
		return status == nil || string(d.ApprovalStatus) == *status
	})
	total := int64(len(items))
	if offset < 0 {
		offset = 0
	}
	if offset > len(items) {
		offset = len(items)
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

func (h *DecisionsHandler) get(c *gin.Context) {
	d, err := h.Engine.Decision(strings.TrimSpace(c.Param("id")))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, d, nil)
}

func (h *DecisionsHandler) calibration(c *gin.Context) {
	Ok(c, h.Engine.Calibration(), nil)
}

type approvalRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

func (h *DecisionsHandler) approve(c *gin.Context) {
	var req approvalRequest
	_ = c.ShouldBindJSON(&req)
	actor := auth.Actor(c, req.Actor)
	if actor == "" {
		Error(c, http.StatusBadRequest, "actor is required", nil)
		return
	}
	d, execID, err := h.Engine.Approve(c.Request.Context(), strings.TrimSpace(c.Param("id")), actor)
	if err != nil {
		if d != nil {
			Error(c, statusFor(err), err.Error(), map[string]any{"approval_status": d.ApprovalStatus})
			return
		}
		Fail(c, err)
		return
	}
	Ok(c, d, map[string]any{"execution_id": execID})
}

func (h *DecisionsHandler) reject(c *gin.Context) {
	var req approvalRequest
	_ = c.ShouldBindJSON(&req)
	actor := auth.Actor(c, req.Actor)
	if actor == "" {
		Error(c, http.StatusBadRequest, "actor is required", nil)
		return
	}
	d, err := h.Engine.Reject(c.Request.Context(), strings.TrimSpace(c.Param("id")), actor, strings.TrimSpace(req.Reason))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, d, nil)
}

type enqueueRequest struct {
	Priority    int        `json:"priority"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

func (h *DecisionsHandler) enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	var at time.Time
	if req.ScheduledAt != nil {
		at = *req.ScheduledAt
	}
	execID, err := h.Engine.Enqueue(c.Request.Context(), strings.TrimSpace(c.Param("id")), req.Priority, at)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, map[string]any{"execution_id": execID}, nil)
}

type learnRequest struct {
	ActualResults map[string]float64 `json:"actual_results"`
}

func (h *DecisionsHandler) learn(c *gin.Context) {
	var req learnRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.ActualResults) == 0 {
		Error(c, http.StatusBadRequest, "actual_results is required", nil)
		return
	}
	fb, err := h.Engine.Learn(c.Request.Context(), strings.TrimSpace(c.Param("id")), req.ActualResults)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, fb, nil)
}
