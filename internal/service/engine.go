package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"autopilot/internal/approval"
	"autopilot/internal/decision"
	"autopilot/internal/events"
	"autopilot/internal/executor"
	"autopilot/internal/learning"
	"autopilot/internal/models"
	"autopilot/internal/platform"
	"autopilot/internal/queue"
	"autopilot/internal/repository"
)

// Engine is the entry point for callers: it runs decision cycles, takes approvals,
// and drives the periodic expiry and learning sweeps.
type Engine struct {
	Generator *decision.Generator
	Gate      *approval.Gate
	Queue     *queue.Queue
	Pool      *executor.Pool
	Learner   *learning.Learner
	Outcomes  platform.OutcomeSource
	Archive   repository.Archive
	Settings  *SystemSettingsService
	Events    events.Publisher
	Logger    *zap.Logger

	// LearningDelay is how long after execution outcomes are collected.
	LearningDelay time.Duration
	// ArchiveRetention bounds archived executions; zero keeps them forever.
	ArchiveRetention time.Duration
	MaxHistory       int

	Now func() time.Time
}

// CycleResult is what one decision cycle produced.
type CycleResult struct {
	Decisions       []*models.Decision `json:"decisions"`
	Enqueued        map[string]string  `json:"enqueued"`
	PendingApproval []string           `json:"pending_approval"`
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// RunCycle generates decisions for one campaign snapshot, records them, and schedules
// every decision that may run without a human.
func (e *Engine) RunCycle(ctx context.Context, dctx models.DecisionContext, goals map[string]float64) (*CycleResult, error) {
	if e == nil || e.Generator == nil || e.Queue == nil {
		return nil, fmt.Errorf("engine is not configured")
	}
	if dctx.CampaignID == "" {
		return nil, fmt.Errorf("campaign_id is required")
	}
	decisions := e.Generator.Generate(dctx, goals)
	res := &CycleResult{Decisions: decisions, Enqueued: map[string]string{}}
	autoExec := e.Settings.IsEnabled(ctx, FeatureAutoExecute, true)

	for _, d := range decisions {
		if err := e.Queue.Record(d); err != nil {
			return nil, err
		}
		e.publish(events.Event{Type: events.DecisionGenerated, DecisionID: d.ID, CampaignID: d.CampaignID, Status: string(d.ApprovalStatus)})

		if d.RequiresHumanApproval || !approval.Schedulable(d) {
			res.PendingApproval = append(res.PendingApproval, d.ID)
			e.archiveDecision(ctx, d)
			continue
		}
		if !autoExec {
			res.PendingApproval = append(res.PendingApproval, d.ID)
			e.archiveDecision(ctx, d)
			continue
		}
		execID, err := e.admit(d.ID)
		if err != nil {
			if e.Logger != nil {
				e.Logger.Warn("engine: auto-schedule failed", zap.String("decision_id", d.ID), zap.Error(err))
			}
			continue
		}
		res.Enqueued[d.ID] = execID
	}
	if e.Logger != nil {
		e.Logger.Info("engine: cycle complete",
			zap.String("campaign_id", dctx.CampaignID),
			zap.Int("decisions", len(decisions)),
			zap.Int("enqueued", len(res.Enqueued)),
			zap.Int("pending_approval", len(res.PendingApproval)),
		)
	}
	return res, nil
}

func (e *Engine) admit(decisionID string) (string, error) {
	d, err := e.Queue.UpdateDecision(decisionID, approval.Admit)
	if err != nil {
		return "", err
	}
	execID, err := e.Queue.Enqueue(d, 0, e.now())
	if err != nil {
		return "", err
	}
	e.archiveDecision(context.Background(), d)
	return execID, nil
}

// Approve records a human approval and schedules the decision.
func (e *Engine) Approve(ctx context.Context, decisionID, actor string) (*models.Decision, string, error) {
	now := e.now()
	d, err := e.Queue.UpdateDecision(decisionID, func(d *models.Decision) error {
		if d.Expired(now) {
			return fmt.Errorf("%w: decision %s expired at %s", models.ErrInvalidTransition, d.ID, d.ExpiresAt.Format(time.RFC3339))
		}
		if err := e.Gate.Approve(d, actor); err != nil {
			return err
		}
		// an approval the queue cannot act on is not recorded
		_, err := queue.Actions(d, e.Queue.RetryBudget, e.Queue.ActionTimeout)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	e.publish(events.Event{Type: events.DecisionApproved, DecisionID: d.ID, CampaignID: d.CampaignID, Status: string(d.ApprovalStatus), Message: actor})
	execID, err := e.Queue.Enqueue(d, 0, now)
	if err != nil {
		e.archiveDecision(ctx, d)
		return d, "", fmt.Errorf("decision %s approved but not scheduled, retry through enqueue: %w", d.ID, err)
	}
	e.archiveDecision(ctx, d)
	return d, execID, nil
}

func (e *Engine) Reject(ctx context.Context, decisionID, actor, reason string) (*models.Decision, error) {
	d, err := e.Queue.UpdateDecision(decisionID, func(d *models.Decision) error {
		return e.Gate.Reject(d, actor, reason)
	})
	if err != nil {
		return nil, err
	}
	e.publish(events.Event{Type: events.DecisionRejected, DecisionID: d.ID, CampaignID: d.CampaignID, Status: string(d.ApprovalStatus), Message: reason})
	e.archiveDecision(ctx, d)
	return d, nil
}

// Enqueue schedules an already approved decision with an explicit priority and time.
func (e *Engine) Enqueue(ctx context.Context, decisionID string, priority int, scheduledAt time.Time) (string, error) {
	d, err := e.Queue.Decision(decisionID)
	if err != nil {
		return "", err
	}
	return e.Queue.Enqueue(d, priority, scheduledAt)
}

func (e *Engine) Decision(id string) (*models.Decision, error) {
	return e.Queue.Decision(id)
}

func (e *Engine) Execution(id string) (*models.QueueItem, error) {
	return e.Queue.Execution(id)
}

func (e *Engine) QueueStatus() models.QueueStatus {
	return e.Queue.Status()
}

func (e *Engine) RollbackExecution(ctx context.Context, executionID string) (*models.QueueItem, error) {
	if e.Pool == nil {
		return nil, fmt.Errorf("%w: executor not running", models.ErrRollbackFailed)
	}
	return e.Pool.RollbackExecution(ctx, executionID)
}

func (e *Engine) Learn(ctx context.Context, decisionID string, actual map[string]float64) (*models.LearningFeedback, error) {
	if e.Learner == nil {
		return nil, fmt.Errorf("learner is not configured")
	}
	return e.Learner.Learn(ctx, decisionID, actual)
}

// LearnDue feeds observed outcomes for executed decisions older than LearningDelay
// into the learner. It returns how many decisions were learned from.
func (e *Engine) LearnDue(ctx context.Context) int {
	if e.Learner == nil || e.Outcomes == nil {
		return 0
	}
	if !e.Settings.IsEnabled(ctx, FeatureLearningSweep, true) {
		return 0
	}
	cutoff := e.now().Add(-e.LearningDelay)
	due := e.Queue.Decisions(func(d *models.Decision) bool {
		return d.ApprovalStatus == models.ApprovalExecuted && d.ExecutedAt != nil && !d.ExecutedAt.After(cutoff)
	})
	learned := 0
	for _, d := range due {
		if ctx.Err() != nil {
			break
		}
		if e.Learner.Learned(d.ID) {
			continue
		}
		actual, ok, err := e.Outcomes.Outcome(ctx, d)
		if err != nil {
			if e.Logger != nil {
				e.Logger.Warn("engine: outcome fetch failed", zap.String("decision_id", d.ID), zap.Error(err))
			}
			continue
		}
		if !ok {
			continue
		}
		if _, err := e.Learner.Learn(ctx, d.ID, actual); err != nil {
			if e.Logger != nil && !errors.Is(err, models.ErrNotFound) {
				e.Logger.Warn("engine: learn failed", zap.String("decision_id", d.ID), zap.Error(err))
			}
			continue
		}
		learned++
	}
	return learned
}

// SweepExpired retires queued items whose decisions expired while waiting.
func (e *Engine) SweepExpired(ctx context.Context) int {
	if !e.Settings.IsEnabled(ctx, FeatureExpirySweep, true) {
		return 0
	}
	expired := e.Queue.ExpireDue(e.now())
	for _, item := range expired {
		if e.Archive != nil {
			if err := e.Archive.SaveExecution(ctx, item); err != nil && e.Logger != nil {
				e.Logger.Warn("engine: archive expired execution failed", zap.String("execution_id", item.ExecutionID), zap.Error(err))
			}
		}
	}
	if len(expired) > 0 && e.Logger != nil {
		e.Logger.Info("engine: expired queued executions", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// TrimHistory bounds in-memory state: old history, decisions that can no longer be
// scheduled, and feedback for decisions no longer held. With retention set it also prunes
// the archive. It returns the in-memory entries dropped and the archive rows deleted.
func (e *Engine) TrimHistory(ctx context.Context) (int, int64) {
	max := e.MaxHistory
	if max <= 0 {
		max = queue.DefaultMaxHistory
	}
	dropped := e.Queue.Trim(max)
	evicted := e.Queue.EvictStale(e.now())
	for _, d := range evicted {
		e.archiveDecision(ctx, d)
	}
	dropped += len(evicted)
	if e.Learner != nil {
		e.Learner.Prune(func(decisionID string) bool {
			_, err := e.Queue.Decision(decisionID)
			return err == nil
		})
	}
	var deleted int64
	if e.Archive != nil && e.ArchiveRetention > 0 {
		n, err := e.Archive.DeleteExecutionsBefore(ctx, e.now().Add(-e.ArchiveRetention))
		if err != nil && e.Logger != nil {
			e.Logger.Warn("engine: archive retention failed", zap.Error(err))
		}
		deleted = n
	}
	return dropped, deleted
}

// Calibration exposes the learned deltas for reporting.
func (e *Engine) Calibration() decision.CalibrationSnapshot {
	if e.Generator == nil {
		return decision.CalibrationSnapshot{}
	}
	return e.Generator.Calibration.Snapshot()
}

func (e *Engine) archiveDecision(ctx context.Context, d *models.Decision) {
	if e.Archive == nil || d == nil {
		return
	}
	if err := e.Archive.SaveDecision(ctx, d); err != nil && e.Logger != nil {
		e.Logger.Warn("engine: archive decision failed", zap.String("decision_id", d.ID), zap.Error(err))
	}
}

func (e *Engine) publish(ev events.Event) {
	if e.Events == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	e.Events.Publish(ev)
}
