package models

import (
	"fmt"
	"strings"
)

// Operator compares a test value against a guardrail threshold.
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
)

func ParseOperator(raw string) (Operator, error) {
	op := Operator(strings.TrimSpace(raw))
	switch op {
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpEqual:
		return op, nil
	}
	return "", fmt.Errorf("unknown guardrail operator %q", raw)
}

// Compare reports whether value satisfies "value <op> threshold".
func (o Operator) Compare(value, threshold float64) bool {
	switch o {
	case OpGreater:
		return value > threshold
	case OpLess:
		return value < threshold
	case OpGreaterEqual:
		return value >= threshold
	case OpLessEqual:
		return value <= threshold
	case OpEqual:
		return value == threshold
	default:
		return false
	}
}

// Guardrail is a named safety rule evaluated against every candidate decision.
type Guardrail struct {
	Name           string    `json:"name" yaml:"name"`
	Description    string    `json:"description" yaml:"description"`
	Threshold      float64   `json:"threshold" yaml:"threshold"`
	Operator       Operator  `json:"operator" yaml:"operator"`
	Risk           RiskLevel `json:"risk_level" yaml:"risk_level"`
	BlockExecution bool      `json:"block_execution" yaml:"block_execution"`
	AlertRequired  bool      `json:"alert_required" yaml:"alert_required"`

	// Scope limits the guardrail to the listed kinds; empty means every kind.
	Scope []DecisionKind `json:"scope,omitempty" yaml:"scope,omitempty"`
}

func (g Guardrail) AppliesTo(kind DecisionKind) bool {
	if len(g.Scope) == 0 {
		return true
	}
	for _, k := range g.Scope {
		if k == kind {
			return true
		}
	}
	return false
}

func (g Guardrail) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return fmt.Errorf("guardrail name is required")
	}
	if _, err := ParseOperator(string(g.Operator)); err != nil {
		return fmt.Errorf("guardrail %s: %w", g.Name, err)
	}
	if _, ok := riskNames[g.Risk]; !ok {
		return fmt.Errorf("guardrail %s: invalid risk level %d", g.Name, int(g.Risk))
	}
	for _, k := range g.Scope {
		if !k.Valid() {
			return fmt.Errorf("guardrail %s: unknown decision kind %q in scope", g.Name, k)
		}
	}
	return nil
}

// GuardrailCheck is the recorded result of one guardrail against one decision.
type GuardrailCheck struct {
	Name            string    `json:"guardrail"`
	Passed          bool      `json:"passed"`
	TestValue       float64   `json:"test_value"`
	Threshold       float64   `json:"threshold"`
	Operator        Operator  `json:"operator"`
	Risk            RiskLevel `json:"risk_level"`
	BlocksExecution bool      `json:"blocks_execution"`
	AlertRequired   bool      `json:"alert_required"`
}
