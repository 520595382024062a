package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"autopilot/internal/auth"
	"autopilot/internal/repository"
	"autopilot/internal/service"
)

const switchPrefix = "feature."

// SystemSettingsHandler exposes the feature switches the engine consults each cycle.
type SystemSettingsHandler struct {
	Repo     repository.Settings
	Settings *service.SystemSettingsService
	JWT      auth.JWT
}

func (h *SystemSettingsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/system-settings")
	g.GET("/switches", h.listSwitches)
	g.GET("/switches/:name", h.getSwitch)

	w := g.Group("", auth.Middleware(h.JWT))
	w.PUT("/switches/:name", h.putSwitch)
}

func (h *SystemSettingsHandler) listSwitches(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "settings unavailable", nil)
		return
	}
	prefix := switchPrefix
	limit := intQuery(c, "limit", 200)
	offset := intQuery(c, "offset", 0)
	params := repository.ListSystemSettingsParams{
		Limit:   limit,
		Offset:  offset,
		Prefix:  &prefix,
		OrderBy: "key",
		Asc:     boolPtr(true),
	}
	items, err := h.Repo.ListSystemSettings(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountSystemSettings(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		enabled := false
		_ = json.Unmarshal(it.Value, &enabled)
		out = append(out, map[string]any{
			"name":       strings.TrimPrefix(it.Key, switchPrefix),
			"key":        it.Key,
			"enabled":    enabled,
			"updated_at": it.UpdatedAt,
		})
	}
	Ok(c, out, paginationMeta(limit, offset, total))
}

func (h *SystemSettingsHandler) getSwitch(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	key := switchPrefix + name
	Ok(c, map[string]any{
		"name":    name,
		"key":     key,
		"enabled": h.Settings.IsEnabled(c.Request.Context(), key, false),
	}, nil)
}

type putSwitchRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *SystemSettingsHandler) putSwitch(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings unavailable", nil)
		return
	}
	name := strings.TrimSpace(c.Param("name"))
	var req putSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		Error(c, http.StatusBadRequest, "enabled is required", nil)
		return
	}
	key := switchPrefix + name
	if err := h.Settings.SetEnabled(c.Request.Context(), key, *req.Enabled); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, map[string]any{
		"name":    name,
		"key":     key,
		"enabled": *req.Enabled,
	}, nil)
}
