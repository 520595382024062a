package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"autopilot/internal/models"
	"autopilot/internal/platform"
)

// Compensator is the rollback side the runner needs.
type Compensator interface {
	Plan(d *models.Decision, completed []models.PlatformAction) *models.RollbackPlan
	Rollback(ctx context.Context, executionID string, d *models.Decision, completed []models.PlatformAction) bool
}

// Sleeper waits between attempts; it returns early with ctx.Err() on cancellation.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Backoff is the wait before retry number attempt+1: 2^attempt seconds.
func Backoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

// Runner executes one queue item's actions strictly in order.
type Runner struct {
	Adapter  platform.Adapter
	Rollback Compensator
	Logger   *zap.Logger
	Sleep    Sleeper
	Now      func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// Run returns the execution result and the prefix of actions that succeeded.
func (r *Runner) Run(ctx context.Context, item *models.QueueItem) (*models.ExecutionResult, []models.PlatformAction) {
	res := &models.ExecutionResult{
		ExecutionID:  item.ExecutionID,
		ActualImpact: map[string]float64{},
	}
	if item.Decision != nil {
		res.DecisionID = item.Decision.ID
	}
	var completed []models.PlatformAction
	for i, action := range item.Actions {
		out, err := r.attempt(ctx, item.ExecutionID, action)
		if err != nil {
			res.Timestamp = r.now()
			res.Error = err.Error()
			res.ActualImpact["actions_executed"] = float64(i + 1)
			res.ActualImpact["successful_actions"] = float64(len(completed))
			if i == 0 {
				return res, nil
			}
			res.RollbackRequired = true
			if r.Rollback != nil {
				res.RollbackPlan = r.Rollback.Plan(item.Decision, completed)
				ok := r.Rollback.Rollback(ctx, item.ExecutionID, item.Decision, completed)
				res.RollbackSucceeded = &ok
			}
			return res, completed
		}
		completed = append(completed, action)
		for k, v := range out.Impact {
			res.ActualImpact[k] += v
		}
	}
	res.Success = true
	res.Timestamp = r.now()
	res.ActualImpact["actions_executed"] = float64(len(item.Actions))
	res.ActualImpact["successful_actions"] = float64(len(completed))
	return res, completed
}

func (r *Runner) attempt(ctx context.Context, executionID string, action models.PlatformAction) (models.ActionOutcome, error) {
	if r.Adapter == nil {
		return models.ActionOutcome{}, fmt.Errorf("%w: no platform adapter", models.ErrPlatformAction)
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	retries := action.Retries()
	var last error
	for attempt := 0; attempt < retries; attempt++ {
		out, err := r.call(ctx, action)
		if err == nil {
			return out, nil
		}
		last = err
		if r.Logger != nil {
			r.Logger.Warn("executor: action attempt failed",
				zap.String("execution_id", executionID),
				zap.Int("step", action.Step),
				zap.String("action_type", string(action.Kind)),
				zap.Int("attempt", attempt+1),
				zap.Int("retry_budget", retries),
				zap.Error(err),
			)
		}
		if attempt == retries-1 {
			break
		}
		if err := sleep(ctx, Backoff(attempt)); err != nil {
			return models.ActionOutcome{}, fmt.Errorf("%w: step %d: %v", models.ErrPlatformAction, action.Step, err)
		}
	}
	return models.ActionOutcome{}, last
}

func (r *Runner) call(ctx context.Context, action models.PlatformAction) (models.ActionOutcome, error) {
	actx, cancel := context.WithTimeout(ctx, action.AttemptTimeout())
	defer cancel()
	out, err := r.Adapter.Execute(actx, action)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(actx.Err(), context.DeadlineExceeded) {
			return out, fmt.Errorf("%w: step %d after %s", models.ErrExecutionTimeout, action.Step, action.AttemptTimeout())
		}
		if errors.Is(err, models.ErrPlatformAction) {
			return out, err
		}
		return out, fmt.Errorf("%w: step %d: %v", models.ErrPlatformAction, action.Step, err)
	}
	if !out.Success {
		return out, fmt.Errorf("%w: step %d: %s", models.ErrPlatformAction, action.Step, out.Message)
	}
	return out, nil
}
