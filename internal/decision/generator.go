package decision

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"autopilot/internal/approval"
	"autopilot/internal/guardrail"
	"autopilot/internal/models"
)

// expiryWindows bounds how long a proposal stays actionable.
var expiryWindows = map[models.DecisionKind]time.Duration{
	models.KindBudgetIncrease:       2 * time.Hour,
	models.KindBudgetDecrease:       1 * time.Hour,
	models.KindBidIncrease:          6 * time.Hour,
	models.KindBidDecrease:          6 * time.Hour,
	models.KindCampaignPause:        30 * time.Minute,
	models.KindCampaignResume:       1 * time.Hour,
	models.KindTargetingAdjustment:  6 * time.Hour,
	models.KindCreativeOptimization: 6 * time.Hour,
	models.KindPlatformReallocation: 4 * time.Hour,
	models.KindEmergencyStop:        5 * time.Minute,
}

func ExpiryWindow(kind models.DecisionKind) time.Duration {
	if d, ok := expiryWindows[kind]; ok {
		return d
	}
	return time.Hour
}

// Generator turns a performance snapshot into ranked, policy-checked decisions.
type Generator struct {
	Rules       []Rule
	Guardrails  *guardrail.Evaluator
	Gate        *approval.Gate
	Calibration *Calibration
	Logger      *zap.Logger

	Now   func() time.Time
	NewID func() string
}

func (g *Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now().UTC()
}

func (g *Generator) newID() string {
	if g.NewID != nil {
		return g.NewID()
	}
	return uuid.NewString()
}

// Generate runs every rule, then calibration, guardrails and the approval gate, and returns
// candidates sorted by confidence x revenue_impact, highest first.
func (g *Generator) Generate(ctx models.DecisionContext, goals map[string]float64) []*models.Decision {
	if g == nil || len(g.Rules) == 0 {
		return nil
	}
	cal := g.Calibration.Snapshot()
	now := g.now()
	out := make([]*models.Decision, 0, len(g.Rules))
	for _, rule := range g.Rules {
		if rule == nil {
			continue
		}
		d := rule.Evaluate(ctx, goals)
		if d == nil {
			continue
		}
		d.ID = g.newID()
		d.CampaignID = ctx.CampaignID
		d.Platform = ctx.Platform
		d.CreatedAt = now
		d.ExpiresAt = now.Add(ExpiryWindow(d.Kind))
		d.ApprovalStatus = models.ApprovalPending
		d.Confidence = cal.Confidence(d.Confidence)
		d.Risk = cal.Risk(d.Risk)

		if g.Guardrails != nil {
			g.Guardrails.Apply(d, ctx)
		}
		g.Gate.Classify(d)
		d.Normalize()
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RankScore() > out[j].RankScore()
	})
	if g.Logger != nil && len(out) > 0 {
		g.Logger.Info("decision: generated",
			zap.String("campaign_id", ctx.CampaignID),
			zap.String("platform", ctx.Platform),
			zap.Int("count", len(out)),
			zap.Float64("confidence_delta", cal.ConfidenceDelta),
			zap.Float64("risk_sensitivity", cal.RiskSensitivity),
		)
	}
	return out
}
