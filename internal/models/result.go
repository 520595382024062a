package models

import "time"

// ExecutionResult summarizes one run of a queue item.
type ExecutionResult struct {
	DecisionID        string             `json:"decision_id"`
	ExecutionID       string             `json:"execution_id"`
	Success           bool               `json:"success"`
	Timestamp         time.Time          `json:"execution_timestamp"`
	ActualImpact      map[string]float64 `json:"actual_impact"`
	Error             string             `json:"error_message,omitempty"`
	RollbackRequired  bool               `json:"rollback_required"`
	RollbackPlan      *RollbackPlan      `json:"rollback_plan,omitempty"`
	RollbackSucceeded *bool              `json:"rollback_succeeded,omitempty"`
}

func (r *ExecutionResult) Clone() *ExecutionResult {
	if r == nil {
		return nil
	}
	out := *r
	out.ActualImpact = cloneFloatMap(r.ActualImpact)
	if r.RollbackPlan != nil {
		plan := *r.RollbackPlan
		plan.Actions = cloneActions(r.RollbackPlan.Actions)
		out.RollbackPlan = &plan
	}
	if r.RollbackSucceeded != nil {
		v := *r.RollbackSucceeded
		out.RollbackSucceeded = &v
	}
	return &out
}

// RollbackPlan records what must be undone for a decision.
type RollbackPlan struct {
	DecisionID string           `json:"decision_id"`
	Kind       DecisionKind     `json:"decision_type"`
	Actions    []PlatformAction `json:"actions"`
}

type PredictionQuality string

const (
	QualityExcellent PredictionQuality = "excellent"
	QualityGood      PredictionQuality = "good"
	QualityFair      PredictionQuality = "fair"
	QualityPoor      PredictionQuality = "poor"
)

// CalibrationAdjustment is the delta a learning pass feeds back into generation.
type CalibrationAdjustment struct {
	Confidence      float64 `json:"confidence_adjustment"`
	RiskSensitivity float64 `json:"risk_sensitivity"`
}

// LearningFeedback is the analysis of one executed decision's observed outcome.
type LearningFeedback struct {
	DecisionID     string                `json:"decision_id"`
	Kind           DecisionKind          `json:"decision_type"`
	Actual         map[string]float64    `json:"actual_outcome"`
	Predicted      map[string]float64    `json:"predicted_outcome"`
	MetricAccuracy map[string]float64    `json:"metric_accuracy"`
	Accuracy       float64               `json:"accuracy"`
	Quality        PredictionQuality     `json:"prediction_quality"`
	Lessons        []string              `json:"lessons_learned"`
	Adjustments    CalibrationAdjustment `json:"model_adjustments"`
	CreatedAt      time.Time             `json:"created_at"`
}
