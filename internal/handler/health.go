package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"autopilot/internal/db"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports liveness and readiness. DB and Cache are optional: the engine
// runs without an archive or a shared rollback ledger.
type HealthHandler struct {
	DB    *db.DB
	Cache any
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
}

func (h *HealthHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) ready(c *gin.Context) {
	checks := gin.H{"db": "disabled", "cache": "memory"}
	if h.DB != nil {
		if err := db.Ping(c.Request.Context(), h.DB); err != nil {
			checks["db"] = "unreachable"
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_unreachable", "checks": checks})
			return
		}
		checks["db"] = "ok"
	}
	if p, ok := h.Cache.(pinger); ok {
		if err := p.Ping(c.Request.Context()); err != nil {
			checks["cache"] = "unreachable"
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "cache_unreachable", "checks": checks})
			return
		}
		checks["cache"] = "ok"
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
}
