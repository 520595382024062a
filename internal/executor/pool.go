package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"autopilot/internal/models"
	"autopilot/internal/notify"
	"autopilot/internal/queue"
	"autopilot/internal/repository"
)

const DefaultPollInterval = time.Second

// Pool runs a fixed number of workers against the queue. Each worker owns one
// item from dequeue to completion.
type Pool struct {
	Queue        *queue.Queue
	Runner       *Runner
	Archive      repository.Archive
	Notifier     notify.Notifier
	Workers      int
	PollInterval time.Duration
	Logger       *zap.Logger
	Now          func() time.Time

	// Enabled gates dequeuing; nil means always on.
	Enabled func(ctx context.Context) bool
}

func (p *Pool) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

// Run blocks until ctx is done. Items already claimed run to completion.
func (p *Pool) Run(ctx context.Context) error {
	if p == nil || p.Queue == nil || p.Runner == nil {
		return fmt.Errorf("executor pool is not configured")
	}
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}
	poll := p.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if p.Logger != nil {
		p.Logger.Info("executor: pool started", zap.Int("workers", workers), zap.Duration("poll_interval", poll))
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, poll)
		}()
	}
	wg.Wait()
	if p.Logger != nil {
		p.Logger.Info("executor: pool stopped")
	}
	return ctx.Err()
}

func (p *Pool) worker(ctx context.Context, poll time.Duration) {
	t := time.NewTicker(poll)
	defer t.Stop()
	for {
		if ctx.Err() != nil {
			return
		}
		if p.RunOnce(ctx) {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// RunOnce claims and processes at most one item. It reports whether an item ran.
func (p *Pool) RunOnce(ctx context.Context) bool {
	if p.Enabled != nil && !p.Enabled(ctx) {
		return false
	}
	item, expired := p.Queue.Dequeue(p.now())
	for _, it := range expired {
		if p.Logger != nil {
			p.Logger.Info("executor: decision expired before execution",
				zap.String("execution_id", it.ExecutionID),
				zap.String("decision_id", it.Decision.ID),
			)
		}
		p.archive(ctx, it)
	}
	if item == nil {
		return false
	}
	p.process(context.WithoutCancel(ctx), item)
	return true
}

func (p *Pool) process(ctx context.Context, item *models.QueueItem) {
	start := time.Now()
	res, completed := p.Runner.Run(ctx, item)
	done, err := p.Queue.Complete(item.ExecutionID, res, completed)
	if err != nil {
		if p.Logger != nil {
			p.Logger.Error("executor: complete failed", zap.String("execution_id", item.ExecutionID), zap.Error(err))
		}
		return
	}
	p.archive(ctx, done)

	fields := []zap.Field{
		zap.String("execution_id", done.ExecutionID),
		zap.String("decision_id", done.Decision.ID),
		zap.String("campaign_id", done.CampaignID()),
		zap.String("status", string(done.Status)),
		zap.Int("successful_actions", len(completed)),
		zap.Duration("elapsed", time.Since(start)),
	}
	if res.Success {
		if p.Logger != nil {
			p.Logger.Info("executor: execution completed", fields...)
		}
		return
	}
	if p.Logger != nil {
		p.Logger.Warn("executor: execution failed", append(fields, zap.String("error", res.Error), zap.Bool("rollback_required", res.RollbackRequired))...)
	}
	notify.BestEffort(p.Notifier, p.Logger, notify.Alert{
		Event:       notify.EventExecutionFailed,
		Severity:    done.Decision.Risk.String(),
		DecisionID:  done.Decision.ID,
		ExecutionID: done.ExecutionID,
		CampaignID:  done.CampaignID(),
		Message:     res.Error,
		Details: map[string]any{
			"rollback_required":  res.RollbackRequired,
			"successful_actions": len(completed),
		},
	})
}

// RollbackExecution compensates a completed execution on operator request. It holds the
// campaign's in-flight slot while compensating and fails with ErrCampaignBusy otherwise.
func (p *Pool) RollbackExecution(ctx context.Context, executionID string) (*models.QueueItem, error) {
	if p.Runner == nil || p.Runner.Rollback == nil {
		return nil, fmt.Errorf("%w: no rollback registry", models.ErrRollbackFailed)
	}
	item, err := p.Queue.ClaimRollback(executionID)
	if err != nil {
		return nil, err
	}
	ok := p.Runner.Rollback.Rollback(ctx, executionID, item.Decision, item.CompletedActions)
	out, err := p.Queue.FinishRollback(executionID, ok)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: execution %s", models.ErrRollbackFailed, executionID)
	}
	p.archive(ctx, out)
	if p.Logger != nil {
		p.Logger.Info("executor: execution rolled back", zap.String("execution_id", executionID))
	}
	return out, nil
}

func (p *Pool) archive(ctx context.Context, item *models.QueueItem) {
	if p.Archive == nil || item == nil {
		return
	}
	if err := p.Archive.SaveExecution(ctx, item); err != nil && p.Logger != nil {
		p.Logger.Warn("executor: archive execution failed", zap.String("execution_id", item.ExecutionID), zap.Error(err))
	}
	if item.Decision == nil {
		return
	}
	d, err := p.Queue.Decision(item.Decision.ID)
	if err != nil {
		d = item.Decision
	}
	if err := p.Archive.SaveDecision(ctx, d); err != nil && p.Logger != nil {
		p.Logger.Warn("executor: archive decision failed", zap.String("decision_id", d.ID), zap.Error(err))
	}
}
