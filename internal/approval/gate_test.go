package approval

import (
	"errors"
	"testing"

	"autopilot/internal/models"
)

func TestClassify_BudgetChangeOverThresholdNeedsApproval(t *testing.T) {
	g := &Gate{}
	d := &models.Decision{
		Kind:               models.KindBudgetIncrease,
		Risk:               models.RiskMedium,
		Confidence:         0.8,
		AutoExecuteAllowed: true,
		ApprovalStatus:     models.ApprovalPending,
		ProposedAction:     map[string]any{"change_percentage": 30.0},
	}
	g.Classify(d)
	if !d.RequiresHumanApproval || d.AutoExecuteAllowed {
		t.Fatalf("requires=%v auto=%v want=true false", d.RequiresHumanApproval, d.AutoExecuteAllowed)
	}
}

func TestClassify_Table(t *testing.T) {
	cases := []struct {
		name     string
		d        models.Decision
		requires bool
		auto     bool
	}{
		{"high risk", models.Decision{Kind: models.KindBidIncrease, Risk: models.RiskHigh, Confidence: 0.99}, true, false},
		{"reallocation", models.Decision{Kind: models.KindPlatformReallocation, Risk: models.RiskLow, Confidence: 0.99}, true, false},
		{"low risk confident", models.Decision{Kind: models.KindBudgetDecrease, Risk: models.RiskLow, Confidence: 0.85, ProposedAction: map[string]any{"change_percentage": -20.0}}, false, true},
		{"low risk at threshold", models.Decision{Kind: models.KindBudgetDecrease, Risk: models.RiskLow, Confidence: 0.8, ProposedAction: map[string]any{"change_percentage": -20.0}}, false, false},
		{"medium risk", models.Decision{Kind: models.KindBidIncrease, Risk: models.RiskMedium, Confidence: 0.9}, false, false},
		{"budget cut over threshold", models.Decision{Kind: models.KindBudgetDecrease, Risk: models.RiskLow, Confidence: 0.9, ProposedAction: map[string]any{"change_percentage": -30.0}}, true, false},
		{"preset approval kept", models.Decision{Kind: models.KindCampaignPause, Risk: models.RiskLow, Confidence: 0.95, RequiresHumanApproval: true}, true, false},
	}
	g := &Gate{}
	for _, tc := range cases {
		d := tc.d
		d.ApprovalStatus = models.ApprovalPending
		g.Classify(&d)
		if d.RequiresHumanApproval != tc.requires || d.AutoExecuteAllowed != tc.auto {
			t.Fatalf("%s: requires=%v auto=%v want=%v %v", tc.name, d.RequiresHumanApproval, d.AutoExecuteAllowed, tc.requires, tc.auto)
		}
		if d.RequiresHumanApproval && d.AutoExecuteAllowed {
			t.Fatalf("%s: approval invariant violated", tc.name)
		}
	}
}

func TestClassify_EmergencyStopAutoApproved(t *testing.T) {
	d := &models.Decision{Kind: models.KindEmergencyStop, Risk: models.RiskCritical, Confidence: 0.95, ApprovalStatus: models.ApprovalPending}
	(&Gate{}).Classify(d)
	if d.RequiresHumanApproval || !d.AutoExecuteAllowed || d.ApprovalStatus != models.ApprovalAutoApproved {
		t.Fatalf("requires=%v auto=%v status=%s", d.RequiresHumanApproval, d.AutoExecuteAllowed, d.ApprovalStatus)
	}
}

func TestClassify_BlockingGuardrailWins(t *testing.T) {
	d := &models.Decision{
		Kind:               models.KindEmergencyStop,
		Risk:               models.RiskCritical,
		ApprovalStatus:     models.ApprovalPending,
		AutoExecuteAllowed: true,
		GuardrailChecks:    []models.GuardrailCheck{{Name: "x", Passed: false, BlocksExecution: true}},
	}
	(&Gate{}).Classify(d)
	if !d.RequiresHumanApproval || d.AutoExecuteAllowed || d.ApprovalStatus != models.ApprovalPending {
		t.Fatalf("requires=%v auto=%v status=%s", d.RequiresHumanApproval, d.AutoExecuteAllowed, d.ApprovalStatus)
	}
	if Schedulable(d) {
		t.Fatalf("blocked pending decision schedulable")
	}
	if err := (&Gate{}).Approve(d, "ops@example.com"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !Schedulable(d) {
		t.Fatalf("approved decision not schedulable")
	}
}

func TestAdmit(t *testing.T) {
	auto := &models.Decision{ID: "a", ApprovalStatus: models.ApprovalPending, AutoExecuteAllowed: true}
	if err := Admit(auto); err != nil {
		t.Fatalf("admit auto: %v", err)
	}
	if auto.ApprovalStatus != models.ApprovalAutoApproved {
		t.Fatalf("status=%s want=auto_approved", auto.ApprovalStatus)
	}

	manual := &models.Decision{ID: "m", ApprovalStatus: models.ApprovalPending, RequiresHumanApproval: true}
	if err := Admit(manual); !errors.Is(err, models.ErrApprovalRequired) {
		t.Fatalf("admit manual err=%v want=ErrApprovalRequired", err)
	}

	rejected := &models.Decision{ID: "r", ApprovalStatus: models.ApprovalRejected}
	if err := Admit(rejected); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("admit rejected err=%v want=ErrInvalidTransition", err)
	}
}

func TestApproveReject(t *testing.T) {
	g := &Gate{}
	d := &models.Decision{ID: "d", ApprovalStatus: models.ApprovalPending}
	if err := g.Approve(d, " "); err == nil {
		t.Fatalf("approve without actor err=nil")
	}
	if err := g.Reject(d, "alice", "too aggressive"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if d.ApprovalStatus != models.ApprovalRejected || d.ApprovedBy != "alice" {
		t.Fatalf("status=%s by=%s", d.ApprovalStatus, d.ApprovedBy)
	}
	if err := g.Approve(d, "bob"); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("approve after reject err=%v want=ErrInvalidTransition", err)
	}
}
