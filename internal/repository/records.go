package repository

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"autopilot/internal/models"
)

func DecisionRecordFrom(d *models.Decision) models.DecisionRecord {
	return models.DecisionRecord{
		DecisionID:            d.ID,
		Kind:                  string(d.Kind),
		CampaignID:            d.CampaignID,
		Platform:              d.Platform,
		Confidence:            d.Confidence,
		RiskLevel:             d.Risk.String(),
		ApprovalStatus:        string(d.ApprovalStatus),
		ApprovedBy:            d.ApprovedBy,
		RequiresHumanApproval: d.RequiresHumanApproval,
		AutoExecuteAllowed:    d.AutoExecuteAllowed,
		RevenueImpact:         decimal.NewFromFloat(d.ExpectedImpact["revenue_impact"]),
		Reasoning:             d.Reasoning,
		ProposedAction:        toJSON(d.ProposedAction),
		ExpectedImpact:        toJSON(d.ExpectedImpact),
		GuardrailChecks:       toJSON(d.GuardrailChecks),
		ExpiresAt:             d.ExpiresAt,
		ExecutedAt:            d.ExecutedAt,
		CreatedAt:             d.CreatedAt,
	}
}

func ExecutionRecordFrom(item *models.QueueItem) models.ExecutionRecord {
	rec := models.ExecutionRecord{
		ExecutionID:  item.ExecutionID,
		DecisionID:   item.Decision.ID,
		CampaignID:   item.CampaignID(),
		Status:       string(item.Status),
		Priority:     item.Priority,
		ErrorMessage: item.Error,
		Actions:      toJSON(item.Actions),
		ScheduledAt:  item.ScheduledAt,
		StartedAt:    item.StartedAt,
		CompletedAt:  item.CompletedAt,
		CreatedAt:    item.CreatedAt,
	}
	if r := item.Result; r != nil {
		rec.Success = r.Success
		rec.RollbackRequired = r.RollbackRequired
		rec.SpendDelta = decimal.NewFromFloat(r.ActualImpact["budget_delta"])
		rec.ActualImpact = toJSON(r.ActualImpact)
		if r.RollbackPlan != nil {
			rec.RollbackPlan = toJSON(r.RollbackPlan)
		}
	}
	return rec
}

func LearningRecordFrom(fb *models.LearningFeedback) models.LearningRecord {
	return models.LearningRecord{
		DecisionID:           fb.DecisionID,
		Kind:                 string(fb.Kind),
		Accuracy:             fb.Accuracy,
		Quality:              string(fb.Quality),
		ConfidenceAdjustment: fb.Adjustments.Confidence,
		RiskSensitivity:      fb.Adjustments.RiskSensitivity,
		Actual:               toJSON(fb.Actual),
		Predicted:            toJSON(fb.Predicted),
		MetricAccuracy:       toJSON(fb.MetricAccuracy),
		Lessons:              toJSON(fb.Lessons),
		CreatedAt:            fb.CreatedAt,
	}
}

func toJSON(v any) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil || string(raw) == "null" {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(raw)
}
