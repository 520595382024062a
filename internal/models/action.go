package models

import "time"

const (
	DefaultRetryBudget   = 3
	DefaultActionTimeout = 30 * time.Second
)

// ActionKind names the platform-side operation an action performs.
type ActionKind string

const (
	ActionUpdateBudget    ActionKind = "update_budget"
	ActionUpdateBid       ActionKind = "update_bid"
	ActionUpdateStatus    ActionKind = "update_status"
	ActionUpdateTargeting ActionKind = "update_targeting"
	ActionUpdateCreative  ActionKind = "update_creative"
	ActionWithdrawBudget  ActionKind = "withdraw_budget"
	ActionAllocateBudget  ActionKind = "allocate_budget"
	ActionEmergencyStop   ActionKind = "emergency_stop"
)

// PlatformAction is one concrete call against an advertising platform.
type PlatformAction struct {
	Step        int            `json:"step"`
	Platform    string         `json:"platform"`
	CampaignID  string         `json:"campaign_id"`
	Kind        ActionKind     `json:"action_type"`
	Params      map[string]any `json:"parameters"`
	RetryBudget int            `json:"retry_count"`
	Timeout     time.Duration  `json:"timeout"`
}

func (a PlatformAction) Retries() int {
	if a.RetryBudget <= 0 {
		return DefaultRetryBudget
	}
	return a.RetryBudget
}

func (a PlatformAction) AttemptTimeout() time.Duration {
	if a.Timeout <= 0 {
		return DefaultActionTimeout
	}
	return a.Timeout
}

func (a PlatformAction) Clone() PlatformAction {
	out := a
	out.Params = cloneAnyMap(a.Params)
	return out
}

// ActionOutcome is what a platform adapter reports for one attempt.
type ActionOutcome struct {
	Success bool               `json:"success"`
	Impact  map[string]float64 `json:"impact,omitempty"`
	Message string             `json:"message,omitempty"`
}
