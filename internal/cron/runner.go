package cronrunner

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner schedules maintenance jobs. A job still running when its next tick fires is skipped.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add registers job under name; an empty spec leaves the job unscheduled.
func (r *Runner) Add(name, spec string, job func(context.Context)) (cron.EntryID, error) {
	if spec == "" {
		return 0, nil
	}
	return r.cron.AddFunc(spec, func() {
		if r.baseCtx.Err() != nil {
			return
		}
		start := time.Now()
		job(r.baseCtx)
		if r.logger != nil {
			r.logger.Debug("cron job finished", zap.String("job", name), zap.Duration("elapsed", time.Since(start)))
		}
	})
}

func (r *Runner) Entries() int {
	return len(r.cron.Entries())
}

func (r *Runner) Start() {
	if r.logger != nil {
		r.logger.Info("cron started", zap.Int("jobs", r.Entries()))
	}
	r.cron.Start()
}

func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	if r.logger != nil {
		r.logger.Info("cron stopped")
	}
}
