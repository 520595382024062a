package guardrail

import "autopilot/internal/models"

var spendIncreasing = []models.DecisionKind{models.KindBudgetIncrease, models.KindBidIncrease}

// Defaults returns the built-in guardrail set.
func Defaults() []models.Guardrail {
	return []models.Guardrail{
		{
			Name:           "daily_budget_limit",
			Description:    "proposed daily budget must stay below 1.5x the current budget",
			Threshold:      1.5,
			Operator:       models.OpLess,
			Risk:           models.RiskHigh,
			BlockExecution: true,
			AlertRequired:  true,
			Scope:          []models.DecisionKind{models.KindBudgetIncrease, models.KindBudgetDecrease},
		},
		{
			Name:           "minimum_roas_threshold",
			Description:    "spend may only grow while ROAS is at least 1.5",
			Threshold:      1.5,
			Operator:       models.OpGreaterEqual,
			Risk:           models.RiskCritical,
			BlockExecution: true,
			AlertRequired:  true,
			Scope:          spendIncreasing,
		},
		{
			Name:          "maximum_spend_increase",
			Description:   "projected spend must grow by less than 30%",
			Threshold:     1.3,
			Operator:      models.OpLess,
			Risk:          models.RiskMedium,
			AlertRequired: true,
		},
		{
			Name:        "performance_decline_threshold",
			Description: "current ROAS should hold at least 80% of the historical mean",
			Threshold:   0.8,
			Operator:    models.OpGreaterEqual,
			Risk:        models.RiskHigh,
		},
		{
			Name:           "conversion_rate_floor",
			Description:    "spend may only grow while conversion rate is at least 1%",
			Threshold:      0.01,
			Operator:       models.OpGreaterEqual,
			Risk:           models.RiskHigh,
			BlockExecution: true,
			Scope:          spendIncreasing,
		},
	}
}
