package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"autopilot/internal/models"
	"autopilot/internal/platform"
	"autopilot/internal/queue"
	"autopilot/internal/rollback"
)

type scriptedAdapter struct {
	mu       sync.Mutex
	calls    []models.PlatformAction
	failures map[int]int // step -> failures before success; -1 fails forever
	block    bool
}

func (s *scriptedAdapter) Execute(ctx context.Context, a models.PlatformAction) (models.ActionOutcome, error) {
	s.mu.Lock()
	s.calls = append(s.calls, a)
	left := s.failures[a.Step]
	if left > 0 {
		s.failures[a.Step] = left - 1
	}
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return models.ActionOutcome{}, ctx.Err()
	}
	if left != 0 {
		return models.ActionOutcome{}, errors.New("platform unavailable")
	}
	return models.ActionOutcome{Success: true, Impact: map[string]float64{"budget_delta": 10}}, nil
}

func (s *scriptedAdapter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type recordingSleeper struct {
	waits []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

type stubCompensator struct {
	calls     int
	completed []models.PlatformAction
	ok        bool
}

func (s *stubCompensator) Plan(d *models.Decision, completed []models.PlatformAction) *models.RollbackPlan {
	return &models.RollbackPlan{DecisionID: d.ID, Kind: d.Kind}
}

func (s *stubCompensator) Rollback(ctx context.Context, executionID string, d *models.Decision, completed []models.PlatformAction) bool {
	s.calls++
	s.completed = completed
	return s.ok
}

func reallocationItem() *models.QueueItem {
	d := &models.Decision{
		ID:         "d1",
		Kind:       models.KindPlatformReallocation,
		CampaignID: "c1",
		Platform:   "meta",
		ProposedAction: map[string]any{
			"from_platform": "meta", "to_platform": "google", "amount": 50.0,
		},
	}
	actions, _ := queue.Actions(d, 3, time.Second)
	return &models.QueueItem{ExecutionID: "e1", Decision: d, Actions: actions}
}

func TestRunner_RetriesWithExponentialBackoff(t *testing.T) {
	adapter := &scriptedAdapter{failures: map[int]int{0: 2}}
	sl := &recordingSleeper{}
	r := &Runner{Adapter: adapter, Sleep: sl.sleep}
	item := reallocationItem()
	item.Actions = item.Actions[:1]

	res, completed := r.Run(context.Background(), item)
	if !res.Success || len(completed) != 1 {
		t.Fatalf("success=%v completed=%d want=true 1", res.Success, len(completed))
	}
	if adapter.count() != 3 {
		t.Fatalf("calls=%d want=3", adapter.count())
	}
	var total time.Duration
	for _, w := range sl.waits {
		total += w
	}
	if len(sl.waits) != 2 || sl.waits[0] != time.Second || sl.waits[1] != 2*time.Second || total < 3*time.Second {
		t.Fatalf("waits=%v want=[1s 2s]", sl.waits)
	}
	if res.ActualImpact["successful_actions"] != 1 || res.ActualImpact["budget_delta"] != 10 {
		t.Fatalf("impact=%v", res.ActualImpact)
	}
}

func TestRunner_FirstActionFailureNeedsNoRollback(t *testing.T) {
	adapter := &scriptedAdapter{failures: map[int]int{0: -1}}
	comp := &stubCompensator{ok: true}
	sl := &recordingSleeper{}
	r := &Runner{Adapter: adapter, Rollback: comp, Sleep: sl.sleep}

	res, completed := r.Run(context.Background(), reallocationItem())
	if res.Success || res.RollbackRequired {
		t.Fatalf("success=%v rollback_required=%v want=false false", res.Success, res.RollbackRequired)
	}
	if comp.calls != 0 || len(completed) != 0 {
		t.Fatalf("rollback calls=%d completed=%d want=0 0", comp.calls, len(completed))
	}
	if adapter.count() != 3 {
		t.Fatalf("calls=%d want=3 (retry budget exhausted)", adapter.count())
	}
	if !strings.Contains(res.Error, models.ErrPlatformAction.Error()) {
		t.Fatalf("error=%q", res.Error)
	}
}

func TestRunner_PartialFailureRollsBackPrefixOnce(t *testing.T) {
	adapter := &scriptedAdapter{failures: map[int]int{1: -1}}
	comp := &stubCompensator{ok: true}
	sl := &recordingSleeper{}
	r := &Runner{Adapter: adapter, Rollback: comp, Sleep: sl.sleep}

	res, completed := r.Run(context.Background(), reallocationItem())
	if res.Success || !res.RollbackRequired {
		t.Fatalf("success=%v rollback_required=%v want=false true", res.Success, res.RollbackRequired)
	}
	if comp.calls != 1 {
		t.Fatalf("rollback calls=%d want=1", comp.calls)
	}
	if len(comp.completed) != 1 || comp.completed[0].Kind != models.ActionWithdrawBudget {
		t.Fatalf("rolled back=%v want=[withdraw_budget]", comp.completed)
	}
	if len(completed) != 1 || res.RollbackSucceeded == nil || !*res.RollbackSucceeded || res.RollbackPlan == nil {
		t.Fatalf("completed=%d result=%+v", len(completed), res)
	}
}

func TestRunner_AttemptTimeout(t *testing.T) {
	adapter := &scriptedAdapter{block: true}
	r := &Runner{Adapter: adapter, Sleep: (&recordingSleeper{}).sleep}
	item := reallocationItem()
	item.Actions = item.Actions[:1]
	item.Actions[0].RetryBudget = 1
	item.Actions[0].Timeout = 10 * time.Millisecond

	res, _ := r.Run(context.Background(), item)
	if res.Success || !strings.Contains(res.Error, models.ErrExecutionTimeout.Error()) {
		t.Fatalf("success=%v error=%q want timeout", res.Success, res.Error)
	}
}

func TestBackoff(t *testing.T) {
	for attempt, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		if got := Backoff(attempt); got != want {
			t.Fatalf("backoff(%d)=%s want=%s", attempt, got, want)
		}
	}
}

func newPool(adapter platform.Adapter, now time.Time) (*Pool, *queue.Queue) {
	q := queue.New(nil, nil)
	q.Now = func() time.Time { return now }
	reg := rollback.NewRegistry(adapter, nil, nil, nil)
	return &Pool{
		Queue:  q,
		Runner: &Runner{Adapter: adapter, Rollback: reg, Sleep: (&recordingSleeper{}).sleep},
		Now:    func() time.Time { return now },
	}, q
}

func budgetDecision(id string, now time.Time) *models.Decision {
	return &models.Decision{
		ID:             id,
		Kind:           models.KindBudgetIncrease,
		CampaignID:     "c1",
		Platform:       "google",
		Risk:           models.RiskMedium,
		ApprovalStatus: models.ApprovalAutoApproved,
		ProposedAction: map[string]any{"current_budget": 100.0, "new_budget": 130.0},
		CreatedAt:      now,
		ExpiresAt:      now.Add(2 * time.Hour),
	}
}

func TestPool_ExpiredItemNeverReachesAdapter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	adapter := &scriptedAdapter{failures: map[int]int{}}
	p, q := newPool(adapter, now.Add(3*time.Hour))
	id, err := q.Enqueue(budgetDecision("d1", now), 0, now)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if ran := p.RunOnce(context.Background()); ran {
		t.Fatalf("ran=true want=false")
	}
	if adapter.count() != 0 {
		t.Fatalf("adapter calls=%d want=0", adapter.count())
	}
	item, _ := q.Execution(id)
	if item.Status != models.StatusExpired {
		t.Fatalf("status=%s want=expired", item.Status)
	}
}

func TestPool_ProcessAndManualRollback(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	adapter := &platform.DryRun{}
	p, q := newPool(adapter, now)
	id, _ := q.Enqueue(budgetDecision("d1", now), 0, now)

	if !p.RunOnce(context.Background()) {
		t.Fatalf("ran=false want=true")
	}
	item, _ := q.Execution(id)
	if item.Status != models.StatusCompleted || len(item.CompletedActions) != 1 {
		t.Fatalf("status=%s completed=%d", item.Status, len(item.CompletedActions))
	}

	rolled, err := p.RollbackExecution(context.Background(), id)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if rolled.Status != models.StatusRolledBack {
		t.Fatalf("status=%s want=rolled_back", rolled.Status)
	}
	calls := adapter.Calls()
	if len(calls) != 2 || calls[1].Params["new_budget"] != 100.0 {
		t.Fatalf("calls=%v want forward + restore to 100", calls)
	}
	if _, err := p.RollbackExecution(context.Background(), id); !errors.Is(err, models.ErrNotRollbackable) {
		t.Fatalf("second rollback err=%v want=ErrNotRollbackable", err)
	}
}

func TestPool_ManualRollbackWaitsForCampaignSlot(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	adapter := &platform.DryRun{}
	p, q := newPool(adapter, now)
	first, _ := q.Enqueue(budgetDecision("d1", now), 0, now)
	if !p.RunOnce(context.Background()) {
		t.Fatalf("ran=false want=true")
	}
	second, _ := q.Enqueue(budgetDecision("d2", now), 0, now)
	running, _ := q.Dequeue(now)
	if running == nil || running.ExecutionID != second {
		t.Fatalf("claimed=%v want=%s", running, second)
	}

	if _, err := p.RollbackExecution(context.Background(), first); !errors.Is(err, models.ErrCampaignBusy) {
		t.Fatalf("rollback while c1 in flight err=%v want=ErrCampaignBusy", err)
	}
	if n := len(adapter.Calls()); n != 1 {
		t.Fatalf("adapter calls=%d want=1", n)
	}
	item, _ := q.Execution(first)
	if item.Status != models.StatusCompleted {
		t.Fatalf("status=%s want=completed", item.Status)
	}

	if _, err := q.Complete(second, &models.ExecutionResult{Success: true}, running.Actions); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := p.RollbackExecution(context.Background(), first); err != nil {
		t.Fatalf("rollback after release: %v", err)
	}
}

func TestPool_FailedManualRollbackReleasesCampaign(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p, q := newPool(&platform.DryRun{}, now)
	comp := &stubCompensator{ok: false}
	p.Runner.Rollback = comp
	id, _ := q.Enqueue(budgetDecision("d1", now), 0, now)
	if !p.RunOnce(context.Background()) {
		t.Fatalf("ran=false want=true")
	}
	if _, err := p.RollbackExecution(context.Background(), id); !errors.Is(err, models.ErrRollbackFailed) {
		t.Fatalf("err=%v want=ErrRollbackFailed", err)
	}
	if item, _ := q.Execution(id); item.Status != models.StatusCompleted {
		t.Fatalf("status=%s want=completed", item.Status)
	}
	_, _ = q.Enqueue(budgetDecision("d2", now), 0, now)
	if next, _ := q.Dequeue(now); next == nil {
		t.Fatalf("campaign still held after failed rollback")
	}
}

func TestPool_DisabledDoesNotDequeue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	adapter := &scriptedAdapter{failures: map[int]int{}}
	p, q := newPool(adapter, now)
	p.Enabled = func(context.Context) bool { return false }
	_, _ = q.Enqueue(budgetDecision("d1", now), 0, now)
	if p.RunOnce(context.Background()) {
		t.Fatalf("ran=true while disabled")
	}
	if st := q.Status(); st.TotalQueued != 1 {
		t.Fatalf("queued=%d want=1", st.TotalQueued)
	}
}

func TestPool_RunStopsOnCancel(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p, _ := newPool(&platform.DryRun{}, now)
	p.Workers = 2
	p.PollInterval = 5 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err=%v want=context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("pool did not stop")
	}
}
