package guardrail

import "autopilot/internal/models"

// extractor computes a guardrail's test value. ok=false means the guardrail does not apply.
type extractor func(d *models.Decision, ctx models.DecisionContext) (value float64, ok bool)

var extractors = map[string]extractor{
	"daily_budget_limit":            budgetRatio,
	"minimum_roas_threshold":        currentROAS,
	"maximum_spend_increase":        spendMultiplier,
	"performance_decline_threshold": performanceRatio,
	"conversion_rate_floor":         conversionRate,
}

func budgetRatio(d *models.Decision, ctx models.DecisionContext) (float64, bool) {
	current := d.Float("current_budget")
	if current == 0 {
		current = ctx.BudgetConstraints["daily_budget"]
	}
	proposed := current
	if _, ok := d.ProposedAction["new_budget"]; ok {
		proposed = d.Float("new_budget")
	}
	return proposed / atLeastOne(current), true
}

func currentROAS(d *models.Decision, ctx models.DecisionContext) (float64, bool) {
	return ctx.ROAS(), true
}

func spendMultiplier(d *models.Decision, ctx models.DecisionContext) (float64, bool) {
	current := ctx.CurrentPerformance["spend"]
	mult, ok := d.ExpectedImpact["spend_multiplier"]
	if !ok {
		mult = 1.0
	}
	return current * mult / atLeastOne(current), true
}

func performanceRatio(d *models.Decision, ctx models.DecisionContext) (float64, bool) {
	hist, ok := ctx.HistoricalROAS()
	if !ok || hist <= 0 {
		return 0, false
	}
	return ctx.ROAS() / hist, true
}

// conversionRate needs click data; a snapshot without clicks cannot judge the funnel.
func conversionRate(d *models.Decision, ctx models.DecisionContext) (float64, bool) {
	if _, ok := ctx.CurrentPerformance["clicks"]; !ok {
		return 0, false
	}
	return ctx.ConversionRate(), true
}

func atLeastOne(v float64) float64 {
	if v < 1 {
		return 1
	}
	return v
}
