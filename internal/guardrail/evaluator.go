package guardrail

import (
	"fmt"

	"go.uber.org/zap"

	"autopilot/internal/models"
	"autopilot/internal/notify"
)

// Evaluator checks candidate decisions against a fixed guardrail set.
// The set is copied at construction and never mutated, so Evaluate is safe for concurrent use.
type Evaluator struct {
	guardrails []models.Guardrail
	Notifier   notify.Notifier
	Logger     *zap.Logger
}

func New(rules []models.Guardrail, notifier notify.Notifier, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		guardrails: append([]models.Guardrail(nil), rules...),
		Notifier:   notifier,
		Logger:     logger,
	}
}

func (e *Evaluator) Guardrails() []models.Guardrail {
	if e == nil {
		return nil
	}
	return append([]models.Guardrail(nil), e.guardrails...)
}

// Evaluate records one check per applicable guardrail without mutating d.
func (e *Evaluator) Evaluate(d *models.Decision, ctx models.DecisionContext) []models.GuardrailCheck {
	if e == nil || d == nil {
		return nil
	}
	out := make([]models.GuardrailCheck, 0, len(e.guardrails))
	for _, g := range e.guardrails {
		if !g.AppliesTo(d.Kind) {
			continue
		}
		value := 1.0
		if fn, ok := extractors[g.Name]; ok {
			v, applies := fn(d, ctx)
			if !applies {
				continue
			}
			value = v
		}
		out = append(out, models.GuardrailCheck{
			Name:            g.Name,
			Passed:          g.Operator.Compare(value, g.Threshold),
			TestValue:       value,
			Threshold:       g.Threshold,
			Operator:        g.Operator,
			Risk:            g.Risk,
			BlocksExecution: g.BlockExecution,
			AlertRequired:   g.AlertRequired,
		})
	}
	return out
}

// Apply evaluates d, stores the checks on it, forces the blocking override and sends alerts.
// It returns true when a blocking guardrail failed.
func (e *Evaluator) Apply(d *models.Decision, ctx models.DecisionContext) bool {
	if e == nil || d == nil {
		return false
	}
	d.GuardrailChecks = e.Evaluate(d, ctx)
	blocked := Enforce(d)
	for _, c := range d.GuardrailChecks {
		if c.Passed {
			continue
		}
		if e.Logger != nil {
			e.Logger.Info("guardrail: check failed",
				zap.String("decision_id", d.ID),
				zap.String("decision_type", string(d.Kind)),
				zap.String("guardrail", c.Name),
				zap.Float64("test_value", c.TestValue),
				zap.Float64("threshold", c.Threshold),
				zap.Bool("blocks", c.BlocksExecution),
			)
		}
		if c.AlertRequired {
			e.alert(d, c)
		}
	}
	return blocked
}

// Enforce applies the blocking override to d's recorded checks: any failing blocking
// guardrail disables auto execution, requires approval and raises risk to critical.
func Enforce(d *models.Decision) bool {
	if !d.HasBlockingFailure() {
		return false
	}
	d.AutoExecuteAllowed = false
	d.RequiresHumanApproval = true
	d.Risk = models.RiskCritical
	return true
}

// Violation wraps ErrGuardrailViolation with the names of the failed blocking checks.
func Violation(d *models.Decision) error {
	if !d.HasBlockingFailure() {
		return nil
	}
	var names []string
	for _, c := range d.GuardrailChecks {
		if !c.Passed && c.BlocksExecution {
			names = append(names, c.Name)
		}
	}
	return fmt.Errorf("%w: %v", models.ErrGuardrailViolation, names)
}

func (e *Evaluator) alert(d *models.Decision, c models.GuardrailCheck) {
	if e.Notifier == nil {
		return
	}
	notify.BestEffort(e.Notifier, e.Logger, notify.Alert{
		Event:      notify.EventGuardrailAlert,
		Severity:   c.Risk.String(),
		DecisionID: d.ID,
		CampaignID: d.CampaignID,
		Message:    fmt.Sprintf("guardrail %s failed for %s: %.4f %s %.4f", c.Name, d.Kind, c.TestValue, c.Operator, c.Threshold),
		Details: map[string]any{
			"guardrail":  c.Name,
			"test_value": c.TestValue,
			"threshold":  c.Threshold,
			"blocks":     c.BlocksExecution,
			"platform":   d.Platform,
		},
	})
}

