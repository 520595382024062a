package rollback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"autopilot/internal/cache"
	"autopilot/internal/models"
	"autopilot/internal/notify"
	"autopilot/internal/platform"
)

const DefaultKeyPrefix = "autopilot:rollback:"

var ledgerDone = []byte("done")

// Registry undoes executed actions. The compensator table is fixed at construction;
// the ledger makes every compensated step idempotent across calls and processes.
type Registry struct {
	Adapter   platform.Adapter
	Ledger    cache.Store
	KeyPrefix string
	LedgerTTL time.Duration
	Notifier  notify.Notifier
	Logger    *zap.Logger

	compensators map[models.DecisionKind]Compensator

	mu    sync.Mutex
	locks map[string]*execLock
}

// execLock serializes rollbacks of one execution. It lives only while held or awaited.
type execLock struct {
	mu   sync.Mutex
	refs int
}

func NewRegistry(adapter platform.Adapter, ledger cache.Store, notifier notify.Notifier, logger *zap.Logger) *Registry {
	if ledger == nil {
		ledger = cache.NewMemoryStore()
	}
	return &Registry{
		Adapter:      adapter,
		Ledger:       ledger,
		KeyPrefix:    DefaultKeyPrefix,
		Notifier:     notifier,
		Logger:       logger,
		compensators: defaultCompensators(),
		locks:        map[string]*execLock{},
	}
}

func (r *Registry) Supports(kind models.DecisionKind) bool {
	if r == nil {
		return false
	}
	_, ok := r.compensators[kind]
	return ok
}

// Plan lists the compensating actions for completed, in reverse of forward order.
func (r *Registry) Plan(d *models.Decision, completed []models.PlatformAction) *models.RollbackPlan {
	if r == nil || d == nil {
		return nil
	}
	plan := &models.RollbackPlan{DecisionID: d.ID, Kind: d.Kind}
	comp, ok := r.compensators[d.Kind]
	if !ok {
		return plan
	}
	for i := len(completed) - 1; i >= 0; i-- {
		if a, ok := comp(d, completed[i]); ok {
			plan.Actions = append(plan.Actions, a)
		}
	}
	return plan
}

// Rollback runs the plan for completed. Steps already in the ledger are skipped.
// It never returns an error: failures are logged, alerted and reported as false.
func (r *Registry) Rollback(ctx context.Context, executionID string, d *models.Decision, completed []models.PlatformAction) bool {
	if r == nil || d == nil {
		return false
	}
	if !r.Supports(d.Kind) {
		r.fail(executionID, d, fmt.Errorf("%w: no compensator for %s", models.ErrRollbackFailed, d.Kind))
		return false
	}
	lock := r.acquire(executionID)
	defer r.release(executionID, lock)

	plan := r.Plan(d, completed)
	for _, action := range plan.Actions {
		key := r.ledgerKey(executionID, action.Step)
		if _, done, err := r.Ledger.Get(ctx, key); err != nil {
			r.fail(executionID, d, fmt.Errorf("%w: ledger read: %v", models.ErrRollbackFailed, err))
			return false
		} else if done {
			continue
		}
		if err := r.compensate(ctx, action); err != nil {
			r.fail(executionID, d, err)
			return false
		}
		if err := r.Ledger.Set(ctx, key, ledgerDone, r.LedgerTTL); err != nil {
			r.fail(executionID, d, fmt.Errorf("%w: ledger write: %v", models.ErrRollbackFailed, err))
			return false
		}
		if r.Logger != nil {
			r.Logger.Info("rollback: step compensated",
				zap.String("execution_id", executionID),
				zap.String("decision_id", d.ID),
				zap.Int("step", action.Step),
				zap.String("action_type", string(action.Kind)),
			)
		}
	}
	return true
}

func (r *Registry) compensate(ctx context.Context, action models.PlatformAction) error {
	if r.Adapter == nil {
		return fmt.Errorf("%w: no platform adapter", models.ErrRollbackFailed)
	}
	actx, cancel := context.WithTimeout(ctx, action.AttemptTimeout())
	defer cancel()
	out, err := r.Adapter.Execute(actx, action)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: step %d: %w", models.ErrRollbackFailed, action.Step, models.ErrExecutionTimeout)
		}
		return fmt.Errorf("%w: step %d: %v", models.ErrRollbackFailed, action.Step, err)
	}
	if !out.Success {
		return fmt.Errorf("%w: step %d: %s", models.ErrRollbackFailed, action.Step, out.Message)
	}
	return nil
}

func (r *Registry) fail(executionID string, d *models.Decision, err error) {
	if r.Logger != nil {
		r.Logger.Error("rollback failed",
			zap.String("execution_id", executionID),
			zap.String("decision_id", d.ID),
			zap.String("decision_type", string(d.Kind)),
			zap.Error(err),
		)
	}
	notify.BestEffort(r.Notifier, r.Logger, notify.Alert{
		Event:       notify.EventRollbackFailed,
		Severity:    models.RiskCritical.String(),
		DecisionID:  d.ID,
		ExecutionID: executionID,
		CampaignID:  d.CampaignID,
		Message:     err.Error(),
	})
}

func (r *Registry) ledgerKey(executionID string, step int) string {
	prefix := strings.TrimSpace(r.KeyPrefix)
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return fmt.Sprintf("%s%s:%d", prefix, executionID, step)
}

func (r *Registry) acquire(executionID string) *execLock {
	r.mu.Lock()
	if r.locks == nil {
		r.locks = map[string]*execLock{}
	}
	l, ok := r.locks[executionID]
	if !ok {
		l = &execLock{}
		r.locks[executionID] = l
	}
	l.refs++
	r.mu.Unlock()
	l.mu.Lock()
	return l
}

func (r *Registry) release(executionID string, l *execLock) {
	l.mu.Unlock()
	r.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, executionID)
	}
	r.mu.Unlock()
}

// pendingLocks reports how many executions currently hold or await a rollback lock.
func (r *Registry) pendingLocks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
