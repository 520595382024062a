package guardrail

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"autopilot/internal/config"
	"autopilot/internal/models"
)

// Policy is the on-disk guardrail file. With Replace set the built-in set is dropped.
type Policy struct {
	Replace    bool         `yaml:"replace"`
	Guardrails []policyRule `yaml:"guardrails"`
}

type policyRule struct {
	Name           string   `yaml:"name"`
	Description    string   `yaml:"description"`
	Threshold      float64  `yaml:"threshold"`
	Operator       string   `yaml:"operator"`
	RiskLevel      string   `yaml:"risk_level"`
	BlockExecution bool     `yaml:"block_execution"`
	AlertRequired  bool     `yaml:"alert_required"`
	Scope          []string `yaml:"scope"`
}

func LoadFile(path string) (Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, err
	}
	var p Policy
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Policy{}, fmt.Errorf("guardrail policy %s: %w", path, err)
	}
	return p, nil
}

func (p Policy) Rules() ([]models.Guardrail, error) {
	out := make([]models.Guardrail, 0, len(p.Guardrails))
	for _, r := range p.Guardrails {
		g, err := build(r)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// Resolve builds the startup guardrail set: defaults, then config rules, then the policy file.
// Later sources replace earlier guardrails with the same name.
func Resolve(cfg config.GuardrailConfig) ([]models.Guardrail, error) {
	rules := Defaults()
	fromCfg := make([]models.Guardrail, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		g, err := build(policyRule{
			Name:           r.Name,
			Description:    r.Description,
			Threshold:      r.Threshold,
			Operator:       r.Operator,
			RiskLevel:      r.RiskLevel,
			BlockExecution: r.BlockExecution,
			AlertRequired:  r.AlertRequired,
			Scope:          r.Scope,
		})
		if err != nil {
			return nil, err
		}
		fromCfg = append(fromCfg, g)
	}
	rules = Merge(rules, fromCfg)

	path := strings.TrimSpace(cfg.File)
	if path == "" {
		return rules, nil
	}
	p, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	fromFile, err := p.Rules()
	if err != nil {
		return nil, err
	}
	if p.Replace {
		return fromFile, nil
	}
	return Merge(rules, fromFile), nil
}

// Merge overlays overrides on base by name, appending new names in order.
func Merge(base, overrides []models.Guardrail) []models.Guardrail {
	out := append([]models.Guardrail(nil), base...)
	idx := make(map[string]int, len(out))
	for i, g := range out {
		idx[g.Name] = i
	}
	for _, g := range overrides {
		if i, ok := idx[g.Name]; ok {
			out[i] = g
			continue
		}
		idx[g.Name] = len(out)
		out = append(out, g)
	}
	return out
}

func build(r policyRule) (models.Guardrail, error) {
	op, err := models.ParseOperator(r.Operator)
	if err != nil {
		return models.Guardrail{}, fmt.Errorf("guardrail %s: %w", r.Name, err)
	}
	risk, err := models.ParseRiskLevel(r.RiskLevel)
	if err != nil {
		return models.Guardrail{}, fmt.Errorf("guardrail %s: %w", r.Name, err)
	}
	g := models.Guardrail{
		Name:           strings.TrimSpace(r.Name),
		Description:    strings.TrimSpace(r.Description),
		Threshold:      r.Threshold,
		Operator:       op,
		Risk:           risk,
		BlockExecution: r.BlockExecution,
		AlertRequired:  r.AlertRequired,
	}
	for _, k := range r.Scope {
		g.Scope = append(g.Scope, models.DecisionKind(strings.TrimSpace(k)))
	}
	if err := g.Validate(); err != nil {
		return models.Guardrail{}, err
	}
	return g, nil
}
