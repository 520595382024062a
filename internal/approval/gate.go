package approval

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"autopilot/internal/models"
)

const (
	DefaultBudgetChangePct    = 25.0
	DefaultAutoExecConfidence = 0.8
)

// Gate decides whether a decision needs a human and whether it may run unattended.
type Gate struct {
	BudgetChangePct    float64
	AutoExecConfidence float64
	Logger             *zap.Logger
}

func (g *Gate) budgetChangePct() float64 {
	if g == nil || g.BudgetChangePct <= 0 {
		return DefaultBudgetChangePct
	}
	return g.BudgetChangePct
}

func (g *Gate) autoExecConfidence() float64 {
	if g == nil || g.AutoExecConfidence <= 0 {
		return DefaultAutoExecConfidence
	}
	return g.AutoExecConfidence
}

// Classify sets RequiresHumanApproval and AutoExecuteAllowed. It must run after guardrails
// have been applied: a failed blocking guardrail always wins.
func (g *Gate) Classify(d *models.Decision) {
	if d == nil {
		return
	}
	if d.HasBlockingFailure() {
		d.RequiresHumanApproval = true
		d.AutoExecuteAllowed = false
		d.Normalize()
		return
	}

	if d.Kind == models.KindEmergencyStop {
		d.RequiresHumanApproval = false
		d.AutoExecuteAllowed = true
		if d.ApprovalStatus == models.ApprovalPending {
			_ = d.SetApproval(models.ApprovalAutoApproved)
		}
		return
	}

	requires := d.RequiresHumanApproval
	if d.Risk >= models.RiskHigh {
		requires = true
	}
	if d.Kind.IsBudgetAdjustment() && math.Abs(d.Float("change_percentage")) > g.budgetChangePct() {
		requires = true
	}
	if d.Kind == models.KindPlatformReallocation {
		requires = true
	}
	d.RequiresHumanApproval = requires
	d.AutoExecuteAllowed = !requires && d.Risk == models.RiskLow && d.Confidence > g.autoExecConfidence()
	d.Normalize()
}

// Schedulable reports whether d may enter the execution queue right now.
func Schedulable(d *models.Decision) bool {
	if d == nil {
		return false
	}
	switch d.ApprovalStatus {
	case models.ApprovalApproved, models.ApprovalAutoApproved:
		return true
	case models.ApprovalPending:
		return d.AutoExecuteAllowed && !d.RequiresHumanApproval && !d.HasBlockingFailure()
	default:
		return false
	}
}

// Admit prepares d for enqueueing: a pending auto-executable decision is auto-approved.
func Admit(d *models.Decision) error {
	if d == nil {
		return models.ErrNotFound
	}
	if !Schedulable(d) {
		if d.RequiresHumanApproval && d.ApprovalStatus == models.ApprovalPending {
			return fmt.Errorf("%w: decision %s", models.ErrApprovalRequired, d.ID)
		}
		return fmt.Errorf("%w: decision %s is %s", models.ErrInvalidTransition, d.ID, d.ApprovalStatus)
	}
	if d.ApprovalStatus == models.ApprovalPending {
		return d.SetApproval(models.ApprovalAutoApproved)
	}
	return nil
}

// Approve records a human approval. It is the only way a decision with a failed blocking
// guardrail reaches the queue.
func (g *Gate) Approve(d *models.Decision, actor string) error {
	if d == nil {
		return models.ErrNotFound
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return fmt.Errorf("approve %s: actor required", d.ID)
	}
	if err := d.SetApproval(models.ApprovalApproved); err != nil {
		return err
	}
	d.ApprovedBy = actor
	g.log("approval: approved", d, actor, "")
	return nil
}

func (g *Gate) Reject(d *models.Decision, actor, reason string) error {
	if d == nil {
		return models.ErrNotFound
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return fmt.Errorf("reject %s: actor required", d.ID)
	}
	if err := d.SetApproval(models.ApprovalRejected); err != nil {
		return err
	}
	d.ApprovedBy = actor
	g.log("approval: rejected", d, actor, reason)
	return nil
}

func (g *Gate) log(msg string, d *models.Decision, actor, reason string) {
	if g == nil || g.Logger == nil {
		return
	}
	g.Logger.Info(msg,
		zap.String("decision_id", d.ID),
		zap.String("decision_type", string(d.Kind)),
		zap.String("actor", actor),
		zap.String("reason", reason),
	)
}
