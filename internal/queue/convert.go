package queue

import (
	"fmt"
	"time"

	"autopilot/internal/models"
)

type converter func(d *models.Decision) []models.PlatformAction

// conversions turns an approved decision into its ordered platform actions.
var conversions = map[models.DecisionKind]converter{
	models.KindBudgetIncrease:       budgetChange,
	models.KindBudgetDecrease:       budgetChange,
	models.KindBidIncrease:          bidChange,
	models.KindBidDecrease:          bidChange,
	models.KindCampaignPause:        statusChange("paused"),
	models.KindCampaignResume:       statusChange("active"),
	models.KindTargetingAdjustment:  settingsChange("targeting", models.ActionUpdateTargeting),
	models.KindCreativeOptimization: settingsChange("creative", models.ActionUpdateCreative),
	models.KindPlatformReallocation: transfer,
	models.KindEmergencyStop:        emergencyStop,
}

// Actions converts d with the given per-action retry budget and attempt timeout.
func Actions(d *models.Decision, retries int, timeout time.Duration) ([]models.PlatformAction, error) {
	if d == nil {
		return nil, fmt.Errorf("decision is required")
	}
	conv, ok := conversions[d.Kind]
	if !ok {
		return nil, fmt.Errorf("no action conversion for decision type %q", d.Kind)
	}
	actions := conv(d)
	if len(actions) == 0 {
		return nil, fmt.Errorf("decision %s produced no actions", d.ID)
	}
	for i := range actions {
		a := &actions[i]
		a.Step = i
		a.CampaignID = d.CampaignID
		if a.Platform == "" {
			a.Platform = d.Platform
		}
		a.RetryBudget = retries
		a.Timeout = timeout
	}
	return actions, nil
}

func budgetChange(d *models.Decision) []models.PlatformAction {
	newBudget := d.Float("new_budget")
	return []models.PlatformAction{{
		Kind: models.ActionUpdateBudget,
		Params: map[string]any{
			"new_budget":  newBudget,
			"delta":       newBudget - d.Float("current_budget"),
			"budget_type": "daily",
		},
	}}
}

func bidChange(d *models.Decision) []models.PlatformAction {
	return []models.PlatformAction{{
		Kind:   models.ActionUpdateBid,
		Params: map[string]any{"new_bid": d.Float("new_bid")},
	}}
}

func statusChange(status string) converter {
	return func(d *models.Decision) []models.PlatformAction {
		return []models.PlatformAction{{
			Kind:   models.ActionUpdateStatus,
			Params: map[string]any{"status": status},
		}}
	}
}

func settingsChange(key string, kind models.ActionKind) converter {
	return func(d *models.Decision) []models.PlatformAction {
		return []models.PlatformAction{{
			Kind:   kind,
			Params: map[string]any{"settings": d.ProposedAction[key]},
		}}
	}
}

func transfer(d *models.Decision) []models.PlatformAction {
	amount := d.Float("amount")
	from := d.String("from_platform")
	if from == "" {
		from = d.Platform
	}
	return []models.PlatformAction{
		{
			Platform: from,
			Kind:     models.ActionWithdrawBudget,
			Params:   map[string]any{"amount": amount, "delta": -amount},
		},
		{
			Platform: d.String("to_platform"),
			Kind:     models.ActionAllocateBudget,
			Params:   map[string]any{"amount": amount, "delta": amount},
		},
	}
}

func emergencyStop(d *models.Decision) []models.PlatformAction {
	return []models.PlatformAction{{
		Kind:   models.ActionEmergencyStop,
		Params: map[string]any{"status": "paused", "reason": d.Reasoning},
	}}
}
