package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"autopilot/internal/models"
)

// OutcomeSource reports the performance observed after a decision was executed.
// ok=false means no observation is available yet.
type OutcomeSource interface {
	Outcome(ctx context.Context, d *models.Decision) (actual map[string]float64, ok bool, err error)
}

// Outcome asks the decision's platform adapter for observed results when it can report them.
func (r *Router) Outcome(ctx context.Context, d *models.Decision) (map[string]float64, bool, error) {
	if d == nil {
		return nil, false, nil
	}
	key := strings.ToLower(strings.TrimSpace(d.Platform))
	r.mu.RLock()
	a, ok := r.adapters[key]
	r.mu.RUnlock()
	if !ok {
		a = r.Default
	}
	src, ok := a.(OutcomeSource)
	if !ok {
		return nil, false, nil
	}
	return src.Outcome(ctx, d)
}

// Outcome on a dry run reports the prediction itself: simulated executions match their forecast.
func (d *DryRun) Outcome(ctx context.Context, dec *models.Decision) (map[string]float64, bool, error) {
	if dec == nil || len(dec.ExpectedImpact) == 0 {
		return nil, false, nil
	}
	out := make(map[string]float64, len(dec.ExpectedImpact))
	for k, v := range dec.ExpectedImpact {
		out[k] = v
	}
	return out, true, nil
}

type outcomeResponse struct {
	Ready  bool               `json:"ready"`
	Actual map[string]float64 `json:"actual"`
}

// Outcome fetches GET {endpoint}/outcomes?campaign_id=..&decision_id=..
func (h *HTTPAdapter) Outcome(ctx context.Context, d *models.Decision) (map[string]float64, bool, error) {
	base := strings.TrimRight(strings.TrimSpace(h.Endpoint), "/")
	if base == "" || d == nil {
		return nil, false, nil
	}
	q := url.Values{}
	q.Set("campaign_id", d.CampaignID)
	q.Set("decision_id", d.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/outcomes?"+q.Encode(), nil)
	if err != nil {
		return nil, false, err
	}
	if key := strings.TrimSpace(h.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := h.httpClient().Do(req)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, false, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("outcome %s http %d: %s", d.Platform, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var or outcomeResponse
	if err := json.Unmarshal(b, &or); err != nil {
		return nil, false, fmt.Errorf("decode outcome: %w", err)
	}
	if !or.Ready {
		return nil, false, nil
	}
	return or.Actual, true, nil
}
