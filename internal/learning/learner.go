package learning

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"autopilot/internal/events"
	"autopilot/internal/models"
	"autopilot/internal/repository"
)

const (
	LessonLowAccuracy     = "prediction accuracy below acceptable threshold"
	LessonOverestimated   = "revenue impact overestimated"
	LessonRiskUnderstated = "risk assessment was insufficient"
)

// DecisionSource resolves a decision from execution history.
type DecisionSource interface {
	Decision(id string) (*models.Decision, error)
}

// Calibrator receives the learned deltas.
type Calibrator interface {
	Apply(adj models.CalibrationAdjustment)
}

// Learner compares predicted impact with observed outcomes. Each decision is
// learned from at most once; repeat calls return the stored feedback unchanged.
type Learner struct {
	Decisions   DecisionSource
	Calibration Calibrator
	Archive     repository.Archive
	Events      events.Publisher
	Logger      *zap.Logger
	Now         func() time.Time

	mu       sync.Mutex
	feedback map[string]*models.LearningFeedback
}

func (l *Learner) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *Learner) Learn(ctx context.Context, decisionID string, actual map[string]float64) (*models.LearningFeedback, error) {
	if l == nil || l.Decisions == nil {
		return nil, fmt.Errorf("learner is not configured")
	}
	d, err := l.Decisions.Decision(decisionID)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if l.feedback == nil {
		l.feedback = map[string]*models.LearningFeedback{}
	}
	if prev, ok := l.feedback[decisionID]; ok {
		l.mu.Unlock()
		return cloneFeedback(prev), nil
	}
	fb := Analyze(d, actual)
	fb.CreatedAt = l.now()
	l.feedback[decisionID] = fb
	if l.Calibration != nil {
		l.Calibration.Apply(fb.Adjustments)
	}
	l.mu.Unlock()

	if l.Logger != nil {
		l.Logger.Info("learning: feedback recorded",
			zap.String("decision_id", decisionID),
			zap.String("decision_type", string(d.Kind)),
			zap.String("quality", string(fb.Quality)),
			zap.Float64("accuracy", fb.Accuracy),
			zap.Float64("confidence_adjustment", fb.Adjustments.Confidence),
			zap.Float64("risk_sensitivity", fb.Adjustments.RiskSensitivity),
		)
	}
	if l.Archive != nil {
		if err := l.Archive.SaveFeedback(ctx, fb); err != nil && l.Logger != nil {
			l.Logger.Warn("learning: archive feedback failed", zap.String("decision_id", decisionID), zap.Error(err))
		}
	}
	if l.Events != nil {
		l.Events.Publish(events.Event{
			Type:       events.LearningFeedback,
			DecisionID: decisionID,
			CampaignID: d.CampaignID,
			Status:     string(fb.Quality),
			Data:       map[string]any{"accuracy": fb.Accuracy},
			At:         fb.CreatedAt,
		})
	}
	return cloneFeedback(fb), nil
}

// Prune drops feedback for decisions keep rejects. Archived feedback is unaffected.
func (l *Learner) Prune(keep func(decisionID string) bool) int {
	if l == nil || keep == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for id := range l.feedback {
		if !keep(id) {
			delete(l.feedback, id)
			n++
		}
	}
	return n
}

// Learned reports whether feedback exists for the decision.
func (l *Learner) Learned(decisionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.feedback[decisionID]
	return ok
}

func (l *Learner) Feedback(decisionID string) (*models.LearningFeedback, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fb, ok := l.feedback[decisionID]
	if !ok {
		return nil, false
	}
	return cloneFeedback(fb), true
}

// Analyze is the pure scoring step: per-metric accuracy over metrics present in
// both maps with a non-zero prediction, then quality, lessons and deltas.
func Analyze(d *models.Decision, actual map[string]float64) *models.LearningFeedback {
	predicted := d.ExpectedImpact
	perMetric := map[string]float64{}
	keys := make([]string, 0, len(predicted))
	for k := range predicted {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sum := 0.0
	for _, k := range keys {
		p := predicted[k]
		a, ok := actual[k]
		if !ok || p == 0 {
			continue
		}
		acc := math.Max(0, 1-math.Abs(p-a)/math.Abs(p))
		perMetric[k] = acc
		sum += acc
	}
	accuracy := 0.0
	if len(perMetric) > 0 {
		accuracy = sum / float64(len(perMetric))
	}

	riskMaterialized := actual["risk_materialized"] > 0
	var lessons []string
	if accuracy < 0.6 {
		lessons = append(lessons, LessonLowAccuracy)
	}
	if a, ok := actual["revenue_impact"]; ok && a < predicted["revenue_impact"] {
		lessons = append(lessons, LessonOverestimated)
	}
	if riskMaterialized {
		lessons = append(lessons, LessonRiskUnderstated)
	}

	adj := models.CalibrationAdjustment{Confidence: 0.05}
	if accuracy < 0.5 {
		adj.Confidence = -0.1
	}
	if riskMaterialized {
		adj.RiskSensitivity = 0.1
	}

	return &models.LearningFeedback{
		DecisionID:     d.ID,
		Kind:           d.Kind,
		Actual:         copyFloats(actual),
		Predicted:      copyFloats(predicted),
		MetricAccuracy: perMetric,
		Accuracy:       accuracy,
		Quality:        Quality(accuracy),
		Lessons:        lessons,
		Adjustments:    adj,
	}
}

func Quality(accuracy float64) models.PredictionQuality {
	switch {
	case accuracy >= 0.8:
		return models.QualityExcellent
	case accuracy >= 0.6:
		return models.QualityGood
	case accuracy >= 0.4:
		return models.QualityFair
	default:
		return models.QualityPoor
	}
}

func copyFloats(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneFeedback(fb *models.LearningFeedback) *models.LearningFeedback {
	out := *fb
	out.Actual = copyFloats(fb.Actual)
	out.Predicted = copyFloats(fb.Predicted)
	out.MetricAccuracy = copyFloats(fb.MetricAccuracy)
	out.Lessons = append([]string(nil), fb.Lessons...)
	return &out
}
