package models

import (
	"fmt"
	"strings"
	"time"
)

// DecisionKind is the closed set of campaign-management actions the engine can propose.
type DecisionKind string

const (
	KindBudgetIncrease       DecisionKind = "budget_increase"
	KindBudgetDecrease       DecisionKind = "budget_decrease"
	KindBidIncrease          DecisionKind = "bid_increase"
	KindBidDecrease          DecisionKind = "bid_decrease"
	KindCampaignPause        DecisionKind = "campaign_pause"
	KindCampaignResume       DecisionKind = "campaign_resume"
	KindTargetingAdjustment  DecisionKind = "targeting_adjustment"
	KindCreativeOptimization DecisionKind = "creative_optimization"
	KindPlatformReallocation DecisionKind = "platform_reallocation"
	KindEmergencyStop        DecisionKind = "emergency_stop"
)

// AllKinds enumerates every DecisionKind. Lookup tables keyed by kind are checked against it.
var AllKinds = []DecisionKind{
	KindBudgetIncrease,
	KindBudgetDecrease,
	KindBidIncrease,
	KindBidDecrease,
	KindCampaignPause,
	KindCampaignResume,
	KindTargetingAdjustment,
	KindCreativeOptimization,
	KindPlatformReallocation,
	KindEmergencyStop,
}

func (k DecisionKind) Valid() bool {
	for _, it := range AllKinds {
		if it == k {
			return true
		}
	}
	return false
}

// IsBudgetAdjustment reports whether the kind changes a campaign's daily budget in place.
func (k DecisionKind) IsBudgetAdjustment() bool {
	return k == KindBudgetIncrease || k == KindBudgetDecrease
}

// RiskLevel is totally ordered: low < medium < high < critical.
type RiskLevel int

const (
	RiskLow RiskLevel = iota + 1
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskNames = map[RiskLevel]string{
	RiskLow:      "low",
	RiskMedium:   "medium",
	RiskHigh:     "high",
	RiskCritical: "critical",
}

func (r RiskLevel) String() string {
	if name, ok := riskNames[r]; ok {
		return name
	}
	return fmt.Sprintf("risk(%d)", int(r))
}

func ParseRiskLevel(raw string) (RiskLevel, error) {
	val := strings.ToLower(strings.TrimSpace(raw))
	for level, name := range riskNames {
		if name == val {
			return level, nil
		}
	}
	return 0, fmt.Errorf("unknown risk level %q", raw)
}

func (r RiskLevel) MarshalText() ([]byte, error) {
	if _, ok := riskNames[r]; !ok {
		return nil, fmt.Errorf("invalid risk level %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *RiskLevel) UnmarshalText(text []byte) error {
	level, err := ParseRiskLevel(string(text))
	if err != nil {
		return err
	}
	*r = level
	return nil
}

// Max returns the higher of the two levels.
func (r RiskLevel) Max(other RiskLevel) RiskLevel {
	if other > r {
		return other
	}
	return r
}

type ApprovalStatus string

const (
	ApprovalPending      ApprovalStatus = "pending"
	ApprovalApproved     ApprovalStatus = "approved"
	ApprovalRejected     ApprovalStatus = "rejected"
	ApprovalAutoApproved ApprovalStatus = "auto_approved"
	ApprovalExecuted     ApprovalStatus = "executed"
)

// approvalTransitions is the forward-only approval lattice.
var approvalTransitions = map[ApprovalStatus]map[ApprovalStatus]bool{
	ApprovalPending: {
		ApprovalApproved:     true,
		ApprovalRejected:     true,
		ApprovalAutoApproved: true,
	},
	ApprovalApproved:     {ApprovalExecuted: true},
	ApprovalAutoApproved: {ApprovalExecuted: true},
}

func CanTransitionApproval(from, to ApprovalStatus) bool {
	return approvalTransitions[from][to]
}

// DecisionContext is the caller-supplied performance snapshot for one evaluation cycle.
type DecisionContext struct {
	CampaignID            string               `json:"campaign_id"`
	Platform              string               `json:"platform"`
	CurrentPerformance    map[string]float64   `json:"current_performance"`
	HistoricalPerformance []map[string]float64 `json:"historical_performance"`
	BudgetConstraints     map[string]float64   `json:"budget_constraints"`
	BusinessGoals         map[string]float64   `json:"business_goals"`
	MarketConditions      map[string]any       `json:"market_conditions"`
	CompetitorAnalysis    map[string]any       `json:"competitor_analysis"`
	SeasonalFactors       map[string]float64   `json:"seasonal_factors"`
	// SiblingPlatforms holds the current ROAS of the same campaign on other platforms.
	SiblingPlatforms map[string]float64 `json:"sibling_platforms"`
}

// ROAS is revenue over spend, with spend floored at 1 so an idle campaign reads as zero.
func (c DecisionContext) ROAS() float64 {
	spend := c.CurrentPerformance["spend"]
	if spend < 1 {
		spend = 1
	}
	return c.CurrentPerformance["revenue"] / spend
}

// ConversionRate is conversions over clicks, clicks floored at 1.
func (c DecisionContext) ConversionRate() float64 {
	clicks := c.CurrentPerformance["clicks"]
	if clicks < 1 {
		clicks = 1
	}
	return c.CurrentPerformance["conversions"] / clicks
}

// HistoricalROAS averages revenue/spend across the historical sequence; ok is false when empty.
func (c DecisionContext) HistoricalROAS() (float64, bool) {
	sum := 0.0
	n := 0
	for _, snap := range c.HistoricalPerformance {
		spend := snap["spend"]
		if spend < 1 {
			spend = 1
		}
		sum += snap["revenue"] / spend
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

type Decision struct {
	ID                    string             `json:"decision_id"`
	Kind                  DecisionKind       `json:"decision_type"`
	CampaignID            string             `json:"campaign_id"`
	Platform              string             `json:"platform"`
	ProposedAction        map[string]any     `json:"proposed_action"`
	Reasoning             string             `json:"reasoning"`
	Confidence            float64            `json:"confidence_score"`
	Risk                  RiskLevel          `json:"risk_level"`
	ExpectedImpact        map[string]float64 `json:"expected_impact"`
	GuardrailChecks       []GuardrailCheck   `json:"safety_checks"`
	ApprovalStatus        ApprovalStatus     `json:"approval_status"`
	RequiresHumanApproval bool               `json:"requires_human_approval"`
	AutoExecuteAllowed    bool               `json:"auto_execute_allowed"`
	ApprovedBy            string             `json:"approved_by,omitempty"`
	CreatedAt             time.Time          `json:"created_at"`
	ExpiresAt             time.Time          `json:"expires_at"`
	ExecutedAt            *time.Time         `json:"executed_at,omitempty"`
	ExecutionResult       *ExecutionResult   `json:"execution_results,omitempty"`
}

// Normalize enforces requires_human_approval => !auto_execute_allowed.
func (d *Decision) Normalize() {
	if d == nil {
		return
	}
	if d.RequiresHumanApproval {
		d.AutoExecuteAllowed = false
	}
}

// SetApproval moves the decision forward through the approval lattice.
func (d *Decision) SetApproval(to ApprovalStatus) error {
	if d == nil {
		return ErrNotFound
	}
	if !CanTransitionApproval(d.ApprovalStatus, to) {
		return fmt.Errorf("%w: approval %s -> %s", ErrInvalidTransition, d.ApprovalStatus, to)
	}
	d.ApprovalStatus = to
	return nil
}

func (d *Decision) Expired(now time.Time) bool {
	if d == nil || d.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(d.ExpiresAt)
}

// HasBlockingFailure reports whether any failed guardrail check blocks execution.
func (d *Decision) HasBlockingFailure() bool {
	if d == nil {
		return false
	}
	for _, c := range d.GuardrailChecks {
		if !c.Passed && c.BlocksExecution {
			return true
		}
	}
	return false
}

// RankScore orders candidates: confidence times projected revenue impact.
func (d *Decision) RankScore() float64 {
	if d == nil {
		return 0
	}
	return d.Confidence * d.ExpectedImpact["revenue_impact"]
}

// Float reads a numeric entry from the proposed action payload.
func (d *Decision) Float(key string) float64 {
	if d == nil {
		return 0
	}
	return toFloat(d.ProposedAction[key])
}

func (d *Decision) String(key string) string {
	if d == nil {
		return ""
	}
	v, _ := d.ProposedAction[key].(string)
	return v
}

// Clone returns a copy whose maps and slices can be handed to readers outside the queue lock.
func (d *Decision) Clone() *Decision {
	if d == nil {
		return nil
	}
	out := *d
	out.ProposedAction = cloneAnyMap(d.ProposedAction)
	out.ExpectedImpact = cloneFloatMap(d.ExpectedImpact)
	if d.GuardrailChecks != nil {
		out.GuardrailChecks = append([]GuardrailCheck(nil), d.GuardrailChecks...)
	}
	if d.ExecutedAt != nil {
		t := *d.ExecutedAt
		out.ExecutedAt = &t
	}
	if d.ExecutionResult != nil {
		out.ExecutionResult = d.ExecutionResult.Clone()
	}
	return &out
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case uint64:
		return float64(n)
	default:
		return 0
	}
}

func cloneAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneFloatMap(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
