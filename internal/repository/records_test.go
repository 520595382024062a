package repository

import (
	"encoding/json"
	"testing"
	"time"

	"autopilot/internal/models"
)

func TestDecisionRecordFrom(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d := &models.Decision{
		ID:             "d1",
		Kind:           models.KindBudgetIncrease,
		CampaignID:     "c1",
		Platform:       "google",
		Risk:           models.RiskHigh,
		ApprovalStatus: models.ApprovalApproved,
		ProposedAction: map[string]any{"new_budget": 130.0},
		ExpectedImpact: map[string]float64{"revenue_impact": 180},
		CreatedAt:      now,
		ExpiresAt:      now.Add(2 * time.Hour),
	}
	rec := DecisionRecordFrom(d)
	if rec.RiskLevel != "high" || rec.ApprovalStatus != "approved" {
		t.Fatalf("risk=%s approval=%s", rec.RiskLevel, rec.ApprovalStatus)
	}
	if rec.RevenueImpact.String() != "180" {
		t.Fatalf("revenue_impact=%s want=180", rec.RevenueImpact)
	}
	var action map[string]float64
	if err := json.Unmarshal(rec.ProposedAction, &action); err != nil || action["new_budget"] != 130 {
		t.Fatalf("proposed_action=%s err=%v", rec.ProposedAction, err)
	}
	if string(rec.GuardrailChecks) != "{}" {
		t.Fatalf("guardrail_checks=%s want={}", rec.GuardrailChecks)
	}
}

func TestExecutionRecordFrom(t *testing.T) {
	item := &models.QueueItem{
		ExecutionID: "e1",
		Decision:    &models.Decision{ID: "d1", CampaignID: "c1"},
		Status:      models.StatusFailed,
		Priority:    2,
		Error:       "platform down",
		Result: &models.ExecutionResult{
			Success:          false,
			RollbackRequired: true,
			ActualImpact:     map[string]float64{"budget_delta": -25.5},
			RollbackPlan:     &models.RollbackPlan{DecisionID: "d1"},
		},
	}
	rec := ExecutionRecordFrom(item)
	if rec.CampaignID != "c1" || rec.Status != "failed" || !rec.RollbackRequired {
		t.Fatalf("record=%+v", rec)
	}
	if rec.SpendDelta.String() != "-25.5" {
		t.Fatalf("spend_delta=%s want=-25.5", rec.SpendDelta)
	}
	if len(rec.RollbackPlan) == 0 {
		t.Fatalf("rollback plan not archived")
	}
}
