package decision

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"autopilot/internal/models"
)

const (
	DefaultTargetROAS          = 3.0
	DefaultEmergencySpendFloor = 500.0
)

// Rule proposes at most one decision for a context. Returned decisions carry only the
// rule-specific fields; the generator stamps identity, timestamps and policy.
type Rule interface {
	Name() string
	Evaluate(ctx models.DecisionContext, goals map[string]float64) *models.Decision
}

// DefaultRules returns the built-in rule set in evaluation order.
func DefaultRules(emergencySpendFloor float64) []Rule {
	if emergencySpendFloor <= 0 {
		emergencySpendFloor = DefaultEmergencySpendFloor
	}
	return []Rule{
		BudgetIncreaseRule{},
		BudgetDecreaseRule{},
		CampaignPauseRule{},
		BidIncreaseRule{},
		ReallocationRule{},
		EmergencyStopRule{SpendFloor: emergencySpendFloor},
	}
}

func targetROAS(ctx models.DecisionContext, goals map[string]float64) float64 {
	if v, ok := goals["target_roas"]; ok && v > 0 {
		return v
	}
	if v, ok := ctx.BusinessGoals["target_roas"]; ok && v > 0 {
		return v
	}
	return DefaultTargetROAS
}

var (
	thirty      = decimal.RequireFromString("0.3")
	twenty      = decimal.RequireFromString("0.2")
	quarter     = decimal.RequireFromString("0.25")
	bidStep     = decimal.RequireFromString("1.15")
	hundred     = decimal.NewFromInt(100)
	moneyPlaces = int32(2)
)

func money(d decimal.Decimal) float64 {
	f, _ := d.Round(moneyPlaces).Float64()
	return f
}

type BudgetIncreaseRule struct{}

func (BudgetIncreaseRule) Name() string { return "budget_increase" }

func (BudgetIncreaseRule) Evaluate(ctx models.DecisionContext, goals map[string]float64) *models.Decision {
	roas := ctx.ROAS()
	target := targetROAS(ctx, goals)
	if roas < target*1.2 {
		return nil
	}
	current := decimal.NewFromFloat(ctx.BudgetConstraints["daily_budget"])
	if !current.IsPositive() {
		return nil
	}
	maxBudget := current.Mul(decimal.NewFromInt(2))
	if v, ok := ctx.BudgetConstraints["max_daily_budget"]; ok {
		maxBudget = decimal.NewFromFloat(v)
	}
	headroom := maxBudget.Sub(current)
	if !headroom.IsPositive() {
		return nil
	}
	increase := decimal.Min(current.Mul(thirty), headroom).Round(moneyPlaces)
	if !increase.IsPositive() {
		return nil
	}
	newBudget := current.Add(increase)
	pct := increase.Div(current).Mul(hundred)
	return &models.Decision{
		Kind: models.KindBudgetIncrease,
		ProposedAction: map[string]any{
			"action":            "increase_budget",
			"current_budget":    money(current),
			"new_budget":        money(newBudget),
			"change_amount":     money(increase),
			"change_percentage": money(pct),
		},
		Reasoning:          fmt.Sprintf("ROAS %.2fx is at least 20%% above target %.2fx; scaling budget by %s%%", roas, target, pct.StringFixed(1)),
		Confidence:         0.8,
		Risk:               models.RiskMedium,
		AutoExecuteAllowed: true,
		ExpectedImpact: map[string]float64{
			"revenue_impact":   money(increase) * roas,
			"spend_increase":   money(increase),
			"spend_multiplier": money(newBudget) / money(current),
		},
	}
}

type BudgetDecreaseRule struct{}

func (BudgetDecreaseRule) Name() string { return "budget_decrease" }

func (BudgetDecreaseRule) Evaluate(ctx models.DecisionContext, goals map[string]float64) *models.Decision {
	roas := ctx.ROAS()
	target := targetROAS(ctx, goals)
	if roas >= target*0.7 || roas < 1.0 {
		return nil
	}
	current := decimal.NewFromFloat(ctx.BudgetConstraints["daily_budget"])
	if !current.IsPositive() {
		return nil
	}
	cut := current.Mul(twenty).Round(moneyPlaces)
	newBudget := current.Sub(cut)
	return &models.Decision{
		Kind: models.KindBudgetDecrease,
		ProposedAction: map[string]any{
			"action":            "decrease_budget",
			"current_budget":    money(current),
			"new_budget":        money(newBudget),
			"change_amount":     -money(cut),
			"change_percentage": -20.0,
		},
		Reasoning:  fmt.Sprintf("ROAS %.2fx is more than 30%% below target %.2fx; cutting budget by 20%%", roas, target),
		Confidence: 0.7,
		Risk:       models.RiskLow,
		ExpectedImpact: map[string]float64{
			"revenue_impact":   -money(cut) * roas,
			"cost_reduction":   money(cut),
			"spend_multiplier": money(newBudget) / money(current),
		},
	}
}

type CampaignPauseRule struct{}

func (CampaignPauseRule) Name() string { return "campaign_pause" }

func (CampaignPauseRule) Evaluate(ctx models.DecisionContext, goals map[string]float64) *models.Decision {
	roas := ctx.ROAS()
	if roas >= 1.0 {
		return nil
	}
	spend := ctx.CurrentPerformance["spend"]
	revenue := ctx.CurrentPerformance["revenue"]
	return &models.Decision{
		Kind: models.KindCampaignPause,
		ProposedAction: map[string]any{
			"action":          "pause_campaign",
			"previous_status": "active",
			"reason":          "negative_return",
		},
		Reasoning:             fmt.Sprintf("ROAS %.2fx is below break-even; pausing to stop losses", roas),
		Confidence:            0.95,
		Risk:                  models.RiskHigh,
		RequiresHumanApproval: true,
		ExpectedImpact: map[string]float64{
			"revenue_impact": spend - revenue,
			"cost_savings":   spend,
		},
	}
}

type BidIncreaseRule struct{}

func (BidIncreaseRule) Name() string { return "bid_increase" }

func (BidIncreaseRule) Evaluate(ctx models.DecisionContext, goals map[string]float64) *models.Decision {
	cvr := ctx.ConversionRate()
	if cvr <= 0.1 {
		return nil
	}
	bid := ctx.BudgetConstraints["current_bid"]
	if bid <= 0 {
		clicks := ctx.CurrentPerformance["clicks"]
		if clicks < 1 {
			clicks = 1
		}
		bid = ctx.CurrentPerformance["spend"] / clicks
	}
	current := decimal.NewFromFloat(bid)
	next := current.Mul(bidStep)
	revenue := ctx.CurrentPerformance["revenue"]
	return &models.Decision{
		Kind: models.KindBidIncrease,
		ProposedAction: map[string]any{
			"action":         "increase_bids",
			"current_bid":    money(current),
			"new_bid":        money(next),
			"bid_adjustment": 15.0,
		},
		Reasoning:  fmt.Sprintf("conversion rate %.1f%% supports more aggressive bidding", cvr*100),
		Confidence: 0.75,
		Risk:       models.RiskMedium,
		ExpectedImpact: map[string]float64{
			"revenue_impact":      revenue * 0.2,
			"conversion_increase": 20.0,
			"spend_multiplier":    1.15,
		},
	}
}

type ReallocationRule struct{}

func (ReallocationRule) Name() string { return "platform_reallocation" }

func (ReallocationRule) Evaluate(ctx models.DecisionContext, goals map[string]float64) *models.Decision {
	roas := ctx.ROAS()
	if roas >= 2.0 {
		return nil
	}
	best, bestROAS := bestSibling(ctx)
	if best == "" || bestROAS <= roas {
		return nil
	}
	budget := decimal.NewFromFloat(ctx.BudgetConstraints["daily_budget"])
	if !budget.IsPositive() {
		return nil
	}
	moved := budget.Mul(quarter).Round(moneyPlaces)
	return &models.Decision{
		Kind: models.KindPlatformReallocation,
		ProposedAction: map[string]any{
			"action":                  "reallocate_budget",
			"from_platform":           ctx.Platform,
			"to_platform":             best,
			"amount":                  money(moved),
			"from_budget":             money(budget),
			"reallocation_percentage": 25.0,
		},
		Reasoning:             fmt.Sprintf("ROAS %.2fx trails %s at %.2fx; moving 25%% of budget", roas, best, bestROAS),
		Confidence:            0.6,
		Risk:                  models.RiskMedium,
		RequiresHumanApproval: true,
		ExpectedImpact: map[string]float64{
			"revenue_impact": money(moved) * (bestROAS - roas),
			"moved_budget":   money(moved),
		},
	}
}

// bestSibling picks the highest-ROAS sibling platform, breaking ties by name.
func bestSibling(ctx models.DecisionContext) (string, float64) {
	names := make([]string, 0, len(ctx.SiblingPlatforms))
	for name := range ctx.SiblingPlatforms {
		if name != ctx.Platform {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	best := ""
	bestROAS := 0.0
	for _, name := range names {
		if v := ctx.SiblingPlatforms[name]; best == "" || v > bestROAS {
			best, bestROAS = name, v
		}
	}
	return best, bestROAS
}

type EmergencyStopRule struct {
	SpendFloor float64
}

func (EmergencyStopRule) Name() string { return "emergency_stop" }

func (r EmergencyStopRule) Evaluate(ctx models.DecisionContext, goals map[string]float64) *models.Decision {
	floor := r.SpendFloor
	if floor <= 0 {
		floor = DefaultEmergencySpendFloor
	}
	roas := ctx.ROAS()
	spend := ctx.CurrentPerformance["spend"]
	if roas >= 0.5 || spend <= floor {
		return nil
	}
	return &models.Decision{
		Kind: models.KindEmergencyStop,
		ProposedAction: map[string]any{
			"action":          "emergency_stop",
			"previous_status": "active",
			"daily_spend":     spend,
		},
		Reasoning:          fmt.Sprintf("ROAS %.2fx with %.2f daily spend; halting all spend", roas, spend),
		Confidence:         0.95,
		Risk:               models.RiskCritical,
		AutoExecuteAllowed: true,
		ExpectedImpact: map[string]float64{
			"revenue_impact":  spend * 5,
			"loss_prevention": spend * 5,
		},
	}
}
