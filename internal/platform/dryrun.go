package platform

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"autopilot/internal/models"
)

// DryRun reports success for every action without calling any platform.
// Latency simulates the round trip and honours context cancellation.
type DryRun struct {
	Latency time.Duration
	Logger  *zap.Logger

	mu    sync.Mutex
	calls []models.PlatformAction
}

func (d *DryRun) Execute(ctx context.Context, action models.PlatformAction) (models.ActionOutcome, error) {
	if d.Latency > 0 {
		t := time.NewTimer(d.Latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return models.ActionOutcome{}, ctx.Err()
		case <-t.C:
		}
	}
	d.mu.Lock()
	d.calls = append(d.calls, action.Clone())
	d.mu.Unlock()
	if d.Logger != nil {
		d.Logger.Info("platform: dry-run action",
			zap.String("platform", action.Platform),
			zap.String("campaign_id", action.CampaignID),
			zap.String("action_type", string(action.Kind)),
			zap.Int("step", action.Step),
		)
	}
	return models.ActionOutcome{
		Success: true,
		Impact:  simulatedImpact(action),
		Message: "dry run",
	}, nil
}

// Calls returns the actions seen so far, in order.
func (d *DryRun) Calls() []models.PlatformAction {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.PlatformAction(nil), d.calls...)
}

func simulatedImpact(action models.PlatformAction) map[string]float64 {
	impact := map[string]float64{}
	switch action.Kind {
	case models.ActionUpdateBudget, models.ActionWithdrawBudget, models.ActionAllocateBudget:
		impact["budget_updated"] = 1
		if v, ok := action.Params["delta"].(float64); ok {
			impact["budget_delta"] = v
		}
	case models.ActionUpdateBid:
		impact["bids_updated"] = 1
	case models.ActionUpdateStatus, models.ActionEmergencyStop:
		impact["status_changed"] = 1
	case models.ActionUpdateTargeting:
		impact["targeting_updated"] = 1
	case models.ActionUpdateCreative:
		impact["creative_updated"] = 1
	}
	return impact
}
