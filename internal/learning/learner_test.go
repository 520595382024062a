package learning

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"autopilot/internal/decision"
	"autopilot/internal/models"
)

type stubSource map[string]*models.Decision

func (s stubSource) Decision(id string) (*models.Decision, error) {
	d, ok := s[id]
	if !ok {
		return nil, fmt.Errorf("%w: decision %s", models.ErrNotFound, id)
	}
	return d.Clone(), nil
}

func TestLearn_ScenarioC(t *testing.T) {
	cal := decision.NewCalibration()
	l := &Learner{
		Decisions: stubSource{"d1": {
			ID:             "d1",
			Kind:           models.KindBudgetIncrease,
			ExpectedImpact: map[string]float64{"revenue_impact": 100, "spend_increase": 30},
		}},
		Calibration: cal,
	}
	fb, err := l.Learn(context.Background(), "d1", map[string]float64{"revenue_impact": 80})
	if err != nil {
		t.Fatalf("learn: %v", err)
	}
	if fb.MetricAccuracy["revenue_impact"] != 0.8 || fb.Accuracy != 0.8 {
		t.Fatalf("accuracy=%v metric=%v want=0.8", fb.Accuracy, fb.MetricAccuracy)
	}
	if fb.Quality != models.QualityExcellent {
		t.Fatalf("quality=%s want=excellent", fb.Quality)
	}
	if len(fb.Lessons) != 1 || fb.Lessons[0] != LessonOverestimated {
		t.Fatalf("lessons=%v want=[%s]", fb.Lessons, LessonOverestimated)
	}
	if fb.Adjustments.Confidence != 0.05 || fb.Adjustments.RiskSensitivity != 0 {
		t.Fatalf("adjustments=%+v", fb.Adjustments)
	}
	if snap := cal.Snapshot(); snap.Updates != 1 || snap.ConfidenceDelta != 0.05 {
		t.Fatalf("calibration=%+v", snap)
	}

	again, err := l.Learn(context.Background(), "d1", map[string]float64{"revenue_impact": 0})
	if err != nil || again.Accuracy != 0.8 {
		t.Fatalf("repeat accuracy=%v err=%v want stored 0.8", again.Accuracy, err)
	}
	if snap := cal.Snapshot(); snap.Updates != 1 {
		t.Fatalf("calibration updates=%d want=1", snap.Updates)
	}
	if !l.Learned("d1") {
		t.Fatalf("learned=false want=true")
	}
}

func TestAnalyze_PoorOutcomeWithRisk(t *testing.T) {
	d := &models.Decision{ID: "d2", ExpectedImpact: map[string]float64{"revenue_impact": 100, "cost_savings": 50}}
	fb := Analyze(d, map[string]float64{"revenue_impact": -20, "cost_savings": 40, "risk_materialized": 1})
	// revenue: max(0, 1-120/100)=0, cost: 0.8
	if fb.Accuracy != 0.4 || fb.Quality != models.QualityFair {
		t.Fatalf("accuracy=%v quality=%s want=0.4 fair", fb.Accuracy, fb.Quality)
	}
	if fb.Adjustments.Confidence != -0.1 || fb.Adjustments.RiskSensitivity != 0.1 {
		t.Fatalf("adjustments=%+v", fb.Adjustments)
	}
	want := []string{LessonLowAccuracy, LessonOverestimated, LessonRiskUnderstated}
	if fmt.Sprint(fb.Lessons) != fmt.Sprint(want) {
		t.Fatalf("lessons=%v want=%v", fb.Lessons, want)
	}
}

func TestAnalyze_NoComparableMetrics(t *testing.T) {
	d := &models.Decision{ID: "d3", ExpectedImpact: map[string]float64{"revenue_impact": 0}}
	fb := Analyze(d, map[string]float64{"clicks": 10})
	if fb.Accuracy != 0 || fb.Quality != models.QualityPoor || len(fb.MetricAccuracy) != 0 {
		t.Fatalf("feedback=%+v", fb)
	}
}

func TestQualityBoundaries(t *testing.T) {
	cases := map[float64]models.PredictionQuality{
		0.8: models.QualityExcellent, 0.79: models.QualityGood, 0.6: models.QualityGood,
		0.4: models.QualityFair, 0.39: models.QualityPoor,
	}
	for acc, want := range cases {
		if got := Quality(acc); got != want {
			t.Fatalf("quality(%v)=%s want=%s", acc, got, want)
		}
	}
}

func TestLearn_UnknownDecision(t *testing.T) {
	l := &Learner{Decisions: stubSource{}}
	if _, err := l.Learn(context.Background(), "missing", nil); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err=%v want=ErrNotFound", err)
	}
}

func TestLearner_PruneDropsFeedbackForEvictedDecisions(t *testing.T) {
	l := &Learner{Decisions: stubSource{
		"d1": {ID: "d1", ExpectedImpact: map[string]float64{"revenue_impact": 100}},
		"d2": {ID: "d2", ExpectedImpact: map[string]float64{"revenue_impact": 100}},
	}}
	for _, id := range []string{"d1", "d2"} {
		if _, err := l.Learn(context.Background(), id, map[string]float64{"revenue_impact": 90}); err != nil {
			t.Fatalf("learn %s: %v", id, err)
		}
	}
	if n := l.Prune(func(id string) bool { return id == "d2" }); n != 1 {
		t.Fatalf("pruned=%d want=1", n)
	}
	if l.Learned("d1") || !l.Learned("d2") {
		t.Fatalf("learned d1=%v d2=%v want=false true", l.Learned("d1"), l.Learned("d2"))
	}
}
