// Package cleanup prunes finished task records on a schedule so the data
// directory does not grow without bound. In-flight tasks are never
// touched.
package cleanup

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pilotcrew/taskpilot/internal/logging"
	"github.com/pilotcrew/taskpilot/internal/store"
	"github.com/pilotcrew/taskpilot/internal/task"
)

// Policy describes which finished records a scheduled run removes.
type Policy struct {
	// Schedule is a standard 5-field cron expression.
	Schedule string
	// MaxAge is the minimum age before a record is eligible.
	MaxAge time.Duration
	// States limits pruning to these states. Empty means every
	// non-in-flight state.
	States []task.State
}

// Runner owns the cron scheduler driving retention pruning.
type Runner struct {
	store  *store.Store
	policy Policy
	logger *logging.Logger
	cron   *cron.Cron
	entry  cron.EntryID
}

// New creates a Runner. Start must be called before the schedule fires.
func New(st *store.Store, policy Policy, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Runner{
		store:  st,
		policy: policy,
		logger: logger.WithComponent("cleanup"),
		cron:   cron.New(),
	}
}

// Start registers the schedule and starts the scheduler in its own
// goroutine. It fails only on an invalid cron expression.
func (r *Runner) Start() error {
	id, err := r.cron.AddFunc(r.policy.Schedule, func() {
		if _, err := r.RunOnce(context.Background(), false); err != nil {
			r.logger.Error("scheduled prune failed", "error", err.Error())
		}
	})
	if err != nil {
		return err
	}
	r.entry = id
	r.cron.Start()
	r.logger.Info("retention pruning scheduled", "schedule", r.policy.Schedule)
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

// RunOnce performs one prune pass with the runner's policy. dryRun
// reports the match set without deleting. This is also the on-demand
// admin path behind the CLI.
func (r *Runner) RunOnce(ctx context.Context, dryRun bool) (*store.Report, error) {
	report, err := r.store.Prune(ctx, store.Filter{
		States:    r.policy.States,
		OlderThan: r.policy.MaxAge,
		DryRun:    dryRun,
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("prune pass finished",
		"scanned", report.Scanned,
		"matched", report.Matched,
		"deleted", report.Deleted,
		"dry_run", dryRun)
	return report, nil
}
