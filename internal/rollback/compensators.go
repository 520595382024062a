package rollback

import "autopilot/internal/models"

// Compensator maps one succeeded forward action to the action that undoes it.
// ok=false means the forward action has nothing to undo.
type Compensator func(d *models.Decision, forward models.PlatformAction) (models.PlatformAction, bool)

// defaultCompensators is keyed by decision kind; every kind must have an entry.
func defaultCompensators() map[models.DecisionKind]Compensator {
	return map[models.DecisionKind]Compensator{
		models.KindBudgetIncrease:       restoreBudget,
		models.KindBudgetDecrease:       restoreBudget,
		models.KindBidIncrease:          restoreBid,
		models.KindBidDecrease:          restoreBid,
		models.KindCampaignPause:        restoreStatus,
		models.KindCampaignResume:       restoreStatus,
		models.KindTargetingAdjustment:  restoreSetting("previous_targeting", models.ActionUpdateTargeting),
		models.KindCreativeOptimization: restoreSetting("previous_creative", models.ActionUpdateCreative),
		models.KindPlatformReallocation: reverseTransfer,
		models.KindEmergencyStop:        restoreStatus,
	}
}

func compensating(forward models.PlatformAction, kind models.ActionKind, params map[string]any) models.PlatformAction {
	params["compensates_step"] = forward.Step
	return models.PlatformAction{
		Step:        forward.Step,
		Platform:    forward.Platform,
		CampaignID:  forward.CampaignID,
		Kind:        kind,
		Params:      params,
		RetryBudget: forward.RetryBudget,
		Timeout:     forward.Timeout,
	}
}

func restoreBudget(d *models.Decision, forward models.PlatformAction) (models.PlatformAction, bool) {
	if forward.Kind != models.ActionUpdateBudget {
		return models.PlatformAction{}, false
	}
	original := d.Float("current_budget")
	return compensating(forward, models.ActionUpdateBudget, map[string]any{
		"new_budget":  original,
		"delta":       original - d.Float("new_budget"),
		"budget_type": "daily",
	}), true
}

func restoreBid(d *models.Decision, forward models.PlatformAction) (models.PlatformAction, bool) {
	if forward.Kind != models.ActionUpdateBid {
		return models.PlatformAction{}, false
	}
	return compensating(forward, models.ActionUpdateBid, map[string]any{
		"new_bid": d.Float("current_bid"),
	}), true
}

func restoreStatus(d *models.Decision, forward models.PlatformAction) (models.PlatformAction, bool) {
	if forward.Kind != models.ActionUpdateStatus && forward.Kind != models.ActionEmergencyStop {
		return models.PlatformAction{}, false
	}
	prev := d.String("previous_status")
	if prev == "" {
		prev = "active"
	}
	return compensating(forward, models.ActionUpdateStatus, map[string]any{
		"status": prev,
	}), true
}

func restoreSetting(key string, kind models.ActionKind) Compensator {
	return func(d *models.Decision, forward models.PlatformAction) (models.PlatformAction, bool) {
		if forward.Kind != kind {
			return models.PlatformAction{}, false
		}
		prev, ok := d.ProposedAction[key]
		if !ok {
			return models.PlatformAction{}, false
		}
		return compensating(forward, kind, map[string]any{"settings": prev}), true
	}
}

func reverseTransfer(d *models.Decision, forward models.PlatformAction) (models.PlatformAction, bool) {
	amount, _ := forward.Params["amount"].(float64)
	switch forward.Kind {
	case models.ActionWithdrawBudget:
		return compensating(forward, models.ActionAllocateBudget, map[string]any{"amount": amount, "delta": amount}), true
	case models.ActionAllocateBudget:
		return compensating(forward, models.ActionWithdrawBudget, map[string]any{"amount": amount, "delta": -amount}), true
	}
	return models.PlatformAction{}, false
}
