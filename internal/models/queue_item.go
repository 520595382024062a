package models

import (
	"fmt"
	"time"
)

type ExecutionStatus string

const (
	StatusQueued     ExecutionStatus = "queued"
	StatusInProgress ExecutionStatus = "in_progress"
	StatusCompleted  ExecutionStatus = "completed"
	StatusFailed     ExecutionStatus = "failed"
	StatusRolledBack ExecutionStatus = "rolled_back"
	StatusExpired    ExecutionStatus = "expired"
)

var executionTransitions = map[ExecutionStatus]map[ExecutionStatus]bool{
	StatusQueued: {
		StatusInProgress: true,
		StatusExpired:    true,
	},
	StatusInProgress: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
	StatusCompleted: {StatusRolledBack: true},
	StatusFailed:    {StatusRolledBack: true},
}

func CanTransitionExecution(from, to ExecutionStatus) bool {
	return executionTransitions[from][to]
}

// Terminal reports whether the status has no further automatic transitions.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRolledBack, StatusExpired:
		return true
	}
	return false
}

const (
	PriorityHighest = 1
	PriorityLowest  = 5
)

// PriorityForRisk maps a risk level onto the queue's 1..5 priority scale.
func PriorityForRisk(r RiskLevel) int {
	switch r {
	case RiskCritical:
		return 1
	case RiskHigh:
		return 2
	case RiskMedium:
		return 3
	case RiskLow:
		return 4
	default:
		return PriorityLowest
	}
}

// QueueItem is one scheduled execution of a decision.
type QueueItem struct {
	ExecutionID      string           `json:"execution_id"`
	Decision         *Decision        `json:"decision"`
	Actions          []PlatformAction `json:"actions"`
	Status           ExecutionStatus  `json:"status"`
	Priority         int              `json:"priority"`
	ScheduledAt      time.Time        `json:"scheduled_at"`
	CreatedAt        time.Time        `json:"created_at"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	Error            string           `json:"error_message,omitempty"`
	Result           *ExecutionResult `json:"result,omitempty"`
	CompletedActions []PlatformAction `json:"completed_actions,omitempty"`
	seq              uint64
}

// SetStatus moves the item through the execution lifecycle.
func (q *QueueItem) SetStatus(to ExecutionStatus) error {
	if q == nil {
		return ErrNotFound
	}
	if !CanTransitionExecution(q.Status, to) {
		return fmt.Errorf("%w: execution %s %s -> %s", ErrInvalidTransition, q.ExecutionID, q.Status, to)
	}
	q.Status = to
	return nil
}

func (q *QueueItem) CampaignID() string {
	if q == nil || q.Decision == nil {
		return ""
	}
	return q.Decision.CampaignID
}

// Seq is the enqueue sequence number used to keep ordering stable.
func (q *QueueItem) Seq() uint64 {
	if q == nil {
		return 0
	}
	return q.seq
}

func (q *QueueItem) SetSeq(seq uint64) {
	if q != nil {
		q.seq = seq
	}
}

func (q *QueueItem) Clone() *QueueItem {
	if q == nil {
		return nil
	}
	out := *q
	out.Decision = q.Decision.Clone()
	out.Actions = cloneActions(q.Actions)
	out.CompletedActions = cloneActions(q.CompletedActions)
	if q.StartedAt != nil {
		t := *q.StartedAt
		out.StartedAt = &t
	}
	if q.CompletedAt != nil {
		t := *q.CompletedAt
		out.CompletedAt = &t
	}
	out.Result = q.Result.Clone()
	return &out
}

func cloneActions(in []PlatformAction) []PlatformAction {
	if in == nil {
		return nil
	}
	out := make([]PlatformAction, len(in))
	for i, a := range in {
		out[i] = a.Clone()
	}
	return out
}

// QueueStatus is the reporting snapshot of the execution queue.
type QueueStatus struct {
	TotalQueued int          `json:"total_queued"`
	Active      int          `json:"active_executions"`
	Completed   int          `json:"completed_executions"`
	Failed      int          `json:"failed_executions"`
	RolledBack  int          `json:"rolled_back_executions"`
	Expired     int          `json:"expired_executions"`
	Items       []QueueEntry `json:"queue_items"`
}

// QueueEntry is the summary row for one queued item.
type QueueEntry struct {
	ExecutionID  string          `json:"execution_id"`
	DecisionID   string          `json:"decision_id"`
	DecisionKind DecisionKind    `json:"decision_type"`
	CampaignID   string          `json:"campaign_id"`
	Priority     int             `json:"priority"`
	Status       ExecutionStatus `json:"status"`
	ScheduledAt  time.Time       `json:"scheduled_at"`
}
