package guardrail

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"autopilot/internal/config"
	"autopilot/internal/models"
	"autopilot/internal/notify"
)

type recordNotifier struct {
	alerts []notify.Alert
}

func (r *recordNotifier) Notify(ctx context.Context, a notify.Alert) error {
	r.alerts = append(r.alerts, a)
	return nil
}

func findCheck(checks []models.GuardrailCheck, name string) (models.GuardrailCheck, bool) {
	for _, c := range checks {
		if c.Name == name {
			return c, true
		}
	}
	return models.GuardrailCheck{}, false
}

func TestEvaluate_DailyBudgetRatioPasses(t *testing.T) {
	e := New(Defaults(), nil, nil)
	d := &models.Decision{
		Kind:           models.KindBudgetIncrease,
		ProposedAction: map[string]any{"current_budget": 100.0, "new_budget": 130.0},
		ExpectedImpact: map[string]float64{"spend_multiplier": 1.3},
	}
	ctx := models.DecisionContext{
		CurrentPerformance: map[string]float64{"spend": 100, "revenue": 600, "clicks": 100, "conversions": 5},
		BudgetConstraints:  map[string]float64{"daily_budget": 100},
	}
	checks := e.Evaluate(d, ctx)
	c, ok := findCheck(checks, "daily_budget_limit")
	if !ok {
		t.Fatalf("daily_budget_limit not evaluated")
	}
	if !c.Passed || c.TestValue != 1.3 {
		t.Fatalf("daily_budget_limit passed=%v value=%v want=true 1.3", c.Passed, c.TestValue)
	}
	if d.GuardrailChecks != nil {
		t.Fatalf("Evaluate mutated decision")
	}
}

func TestApply_BlockingFailureForcesCritical(t *testing.T) {
	n := &recordNotifier{}
	e := New(Defaults(), n, nil)
	d := &models.Decision{
		Kind:                  models.KindBudgetIncrease,
		Risk:                  models.RiskLow,
		AutoExecuteAllowed:    true,
		RequiresHumanApproval: false,
		ProposedAction:        map[string]any{"current_budget": 100.0, "new_budget": 200.0},
	}
	ctx := models.DecisionContext{
		CurrentPerformance: map[string]float64{"spend": 100, "revenue": 600, "clicks": 100, "conversions": 5},
	}
	if !e.Apply(d, ctx) {
		t.Fatalf("blocked=false want=true")
	}
	if d.AutoExecuteAllowed || !d.RequiresHumanApproval || d.Risk != models.RiskCritical {
		t.Fatalf("auto=%v approval=%v risk=%s want=false true critical", d.AutoExecuteAllowed, d.RequiresHumanApproval, d.Risk)
	}
	if len(n.alerts) == 0 || n.alerts[0].Event != notify.EventGuardrailAlert {
		t.Fatalf("alerts=%v want guardrail alert", n.alerts)
	}
	if err := Violation(d); !errors.Is(err, models.ErrGuardrailViolation) {
		t.Fatalf("violation err=%v want=ErrGuardrailViolation", err)
	}
}

func TestEvaluate_ScopeSkipsRiskReducingKinds(t *testing.T) {
	e := New(Defaults(), nil, nil)
	d := &models.Decision{Kind: models.KindEmergencyStop}
	ctx := models.DecisionContext{
		CurrentPerformance: map[string]float64{"spend": 600, "revenue": 180},
	}
	checks := e.Evaluate(d, ctx)
	if _, ok := findCheck(checks, "minimum_roas_threshold"); ok {
		t.Fatalf("minimum_roas_threshold evaluated for emergency stop")
	}
	if e.Apply(d, ctx) {
		t.Fatalf("emergency stop blocked by default guardrails")
	}
}

func TestEvaluate_UnscopedGuardrailAppliesToEveryKind(t *testing.T) {
	rules := Defaults()
	for i := range rules {
		if rules[i].Name == "minimum_roas_threshold" {
			rules[i].Scope = nil
		}
	}
	d := &models.Decision{Kind: models.KindEmergencyStop}
	ctx := models.DecisionContext{
		CurrentPerformance: map[string]float64{"spend": 600, "revenue": 180},
	}
	c, ok := findCheck(New(rules, nil, nil).Evaluate(d, ctx), "minimum_roas_threshold")
	if !ok || c.Passed {
		t.Fatalf("check=%+v ok=%v want failed for emergency stop", c, ok)
	}
}

func TestEvaluate_PerformanceDeclineNeedsHistory(t *testing.T) {
	e := New(Defaults(), nil, nil)
	d := &models.Decision{Kind: models.KindBidIncrease}
	ctx := models.DecisionContext{
		CurrentPerformance: map[string]float64{"spend": 100, "revenue": 200, "clicks": 10, "conversions": 2},
	}
	if _, ok := findCheck(e.Evaluate(d, ctx), "performance_decline_threshold"); ok {
		t.Fatalf("performance_decline_threshold evaluated without history")
	}
	ctx.HistoricalPerformance = []map[string]float64{{"spend": 100, "revenue": 400}}
	c, ok := findCheck(e.Evaluate(d, ctx), "performance_decline_threshold")
	if !ok || c.Passed || c.TestValue != 0.5 {
		t.Fatalf("check=%+v ok=%v want failed at 0.5", c, ok)
	}
}

func TestEvaluate_ConversionFloorNeedsClicks(t *testing.T) {
	e := New(Defaults(), nil, nil)
	d := &models.Decision{Kind: models.KindBudgetIncrease}
	ctx := models.DecisionContext{CurrentPerformance: map[string]float64{"spend": 100, "revenue": 600}}
	if c, ok := findCheck(e.Evaluate(d, ctx), "conversion_rate_floor"); ok {
		t.Fatalf("conversion_rate_floor evaluated without clicks: %+v", c)
	}
	ctx.CurrentPerformance["clicks"] = 1000
	c, ok := findCheck(e.Evaluate(d, ctx), "conversion_rate_floor")
	if !ok || c.Passed {
		t.Fatalf("check=%+v ok=%v want failed with zero conversions", c, ok)
	}
}

func TestEvaluate_UnknownGuardrailUsesNeutralValue(t *testing.T) {
	rules := []models.Guardrail{{Name: "custom", Threshold: 1, Operator: models.OpEqual, Risk: models.RiskLow}}
	checks := New(rules, nil, nil).Evaluate(&models.Decision{Kind: models.KindBidDecrease}, models.DecisionContext{})
	if len(checks) != 1 || !checks[0].Passed || checks[0].TestValue != 1 {
		t.Fatalf("checks=%+v want one passing check at 1.0", checks)
	}
}

func TestResolve_ConfigAndFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guardrails.yaml")
	body := `
guardrails:
  - name: daily_budget_limit
    threshold: 2.0
    operator: "<"
    risk_level: high
    block_execution: true
    scope: [budget_increase]
  - name: max_cpa
    threshold: 40
    operator: "<="
    risk_level: medium
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	rules, err := Resolve(config.GuardrailConfig{
		File: path,
		Rules: []config.GuardrailRule{
			{Name: "conversion_rate_floor", Threshold: 0.02, Operator: ">=", RiskLevel: "high"},
		},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(rules) != 6 {
		t.Fatalf("rules=%d want=6", len(rules))
	}
	byName := map[string]models.Guardrail{}
	for _, g := range rules {
		byName[g.Name] = g
	}
	if byName["daily_budget_limit"].Threshold != 2.0 {
		t.Fatalf("daily_budget_limit threshold=%v want=2", byName["daily_budget_limit"].Threshold)
	}
	if byName["conversion_rate_floor"].Threshold != 0.02 || byName["conversion_rate_floor"].BlockExecution {
		t.Fatalf("conversion_rate_floor=%+v", byName["conversion_rate_floor"])
	}
	if rules[len(rules)-1].Name != "max_cpa" {
		t.Fatalf("last=%s want=max_cpa", rules[len(rules)-1].Name)
	}
}

func TestLoadFile_RejectsUnknownFieldsAndBadValues(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"unknown_field.yaml": "guardrails:\n  - name: x\n    limit: 3\n",
		"bad_operator.yaml":  "guardrails:\n  - name: x\n    operator: \"!=\"\n    risk_level: low\n",
		"bad_risk.yaml":      "guardrails:\n  - name: x\n    operator: \"<\"\n    risk_level: extreme\n",
		"bad_scope.yaml":     "guardrails:\n  - name: x\n    operator: \"<\"\n    risk_level: low\n    scope: [teleport]\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		p, err := LoadFile(path)
		if err == nil {
			_, err = p.Rules()
		}
		if err == nil {
			t.Fatalf("%s: err=nil want error", name)
		}
	}
}

func TestResolve_ReplaceDropsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "g.yaml")
	body := "replace: true\nguardrails:\n  - name: only\n    operator: \">\"\n    threshold: 0\n    risk_level: low\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	rules, err := Resolve(config.GuardrailConfig{File: path})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(rules) != 1 || rules[0].Name != "only" {
		t.Fatalf("rules=%+v want [only]", rules)
	}
}
