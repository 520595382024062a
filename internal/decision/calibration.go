package decision

import (
	"sync"

	"autopilot/internal/models"
)

// RiskEscalationThreshold is the accumulated risk sensitivity at which medium-risk proposals are raised to high.
const RiskEscalationThreshold = 0.3

// Calibration accumulates learning deltas. Zero value is ready to use.
// The learner is the single writer; the generator takes one snapshot per cycle.
type Calibration struct {
	mu              sync.RWMutex
	confidenceDelta float64
	riskSensitivity float64
	updates         int
}

type CalibrationSnapshot struct {
	ConfidenceDelta float64 `json:"confidence_delta"`
	RiskSensitivity float64 `json:"risk_sensitivity"`
	Updates         int     `json:"updates"`
}

func NewCalibration() *Calibration {
	return &Calibration{}
}

func (c *Calibration) Apply(adj models.CalibrationAdjustment) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.confidenceDelta += adj.Confidence
	c.riskSensitivity += adj.RiskSensitivity
	c.updates++
	c.mu.Unlock()
}

func (c *Calibration) Snapshot() CalibrationSnapshot {
	if c == nil {
		return CalibrationSnapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CalibrationSnapshot{
		ConfidenceDelta: c.confidenceDelta,
		RiskSensitivity: c.riskSensitivity,
		Updates:         c.updates,
	}
}

// Confidence shifts a rule's base confidence by the learned delta, clamped to [0,1].
func (s CalibrationSnapshot) Confidence(base float64) float64 {
	v := base + s.ConfidenceDelta
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (s CalibrationSnapshot) Risk(r models.RiskLevel) models.RiskLevel {
	if r == models.RiskMedium && s.RiskSensitivity >= RiskEscalationThreshold-1e-9 {
		return models.RiskHigh
	}
	return r
}
