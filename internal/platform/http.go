package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"autopilot/internal/models"
)

// HTTPAdapter posts actions as JSON to a platform gateway endpoint.
type HTTPAdapter struct {
	Endpoint string
	APIKey   string
	HTTP     *http.Client
}

type actionRequest struct {
	Step       int            `json:"step"`
	Platform   string         `json:"platform"`
	CampaignID string         `json:"campaign_id"`
	ActionType string         `json:"action_type"`
	Parameters map[string]any `json:"parameters"`
}

type actionResponse struct {
	Success bool               `json:"success"`
	Error   string             `json:"error"`
	Impact  map[string]float64 `json:"impact"`
}

func (h *HTTPAdapter) Execute(ctx context.Context, action models.PlatformAction) (models.ActionOutcome, error) {
	base := strings.TrimRight(strings.TrimSpace(h.Endpoint), "/")
	if base == "" {
		return models.ActionOutcome{}, fmt.Errorf("%w: endpoint for %s is empty", models.ErrPlatformAction, action.Platform)
	}
	body, err := json.Marshal(actionRequest{
		Step:       action.Step,
		Platform:   action.Platform,
		CampaignID: action.CampaignID,
		ActionType: string(action.Kind),
		Parameters: action.Params,
	})
	if err != nil {
		return models.ActionOutcome{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/actions", bytes.NewReader(body))
	if err != nil {
		return models.ActionOutcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(h.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := h.httpClient().Do(req)
	if err != nil {
		return models.ActionOutcome{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.ActionOutcome{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.ActionOutcome{}, fmt.Errorf("%w: %s http %d: %s", models.ErrPlatformAction, action.Platform, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var ar actionResponse
	if err := json.Unmarshal(b, &ar); err != nil {
		return models.ActionOutcome{}, fmt.Errorf("%w: decode response: %v", models.ErrPlatformAction, err)
	}
	return models.ActionOutcome{Success: ar.Success, Impact: ar.Impact, Message: ar.Error}, nil
}

func (h *HTTPAdapter) httpClient() *http.Client {
	if h.HTTP != nil {
		return h.HTTP
	}
	return &http.Client{Timeout: 30 * time.Second}
}
