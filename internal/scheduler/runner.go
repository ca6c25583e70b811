package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"iptvpanel/internal/reminder"
	"iptvpanel/internal/types"
)

// DefaultLockTTL bounds how long a crashed worker can hold a task's lock.
const DefaultLockTTL = 2 * time.Hour

// ErrLocked is returned by Run when another worker holds the task's lock
// for the day.
var ErrLocked = types.NewAppError(types.ErrCodeConflictSweepRunning, "task is already running for this date", nil)

// Sweeper runs the reminder sweep.
type Sweeper interface {
	Sweep(ctx context.Context, today time.Time) (*types.SweepReport, error)
	DryRun(ctx context.Context, today time.Time) (*types.SweepReport, error)
}

// LedgerPurger removes ledger entries past retention.
type LedgerPurger interface {
	Purge(ctx context.Context, before time.Time) (reminder.PurgeResult, error)
}

// JobLocker claims a named lock for a worker.
type JobLocker interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
}

// JobHistorian records task executions.
type JobHistorian interface {
	Start(ctx context.Context, jobType string) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, err error) error
}

// SummaryPublisher ships a completed sweep report downstream.
type SummaryPublisher interface {
	Publish(ctx context.Context, report *types.SweepReport) error
}

// RunnerConfig wires a Runner. Publisher is optional.
type RunnerConfig struct {
	Sweeper   Sweeper
	Purger    LedgerPurger
	Locks     JobLocker
	History   JobHistorian
	Publisher SummaryPublisher
	// WorkerID identifies this process in job_locks; generated if empty.
	WorkerID string
	// Location decides the calendar date of "today".
	Location  *time.Location
	LockTTL   time.Duration
	Retention time.Duration
	Now       func() time.Time
	Logger    *slog.Logger
}

// RunResult describes one task execution.
type RunResult struct {
	Task   TaskType              `json:"task"`
	Date   string                `json:"date"`
	LockID string                `json:"lock_id,omitempty"`
	Items  int                   `json:"items"`
	Report *types.SweepReport    `json:"report,omitempty"`
	Purge  *reminder.PurgeResult `json:"purge,omitempty"`
}

// Runner executes scheduled tasks under the job lock.
type Runner struct {
	sweeper   Sweeper
	purger    LedgerPurger
	locks     JobLocker
	history   JobHistorian
	publisher SummaryPublisher
	workerID  string
	loc       *time.Location
	lockTTL   time.Duration
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewRunner validates cfg and returns a Runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Sweeper == nil {
		return nil, errors.New("scheduler: sweeper is required")
	}
	if cfg.Locks == nil || cfg.History == nil {
		return nil, errors.New("scheduler: job lock and history stores are required")
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = uuid.NewString()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.Retention <= 0 {
		cfg.Retention = reminder.DefaultLookback
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{
		sweeper:   cfg.Sweeper,
		purger:    cfg.Purger,
		locks:     cfg.Locks,
		history:   cfg.History,
		publisher: cfg.Publisher,
		workerID:  cfg.WorkerID,
		loc:       cfg.Location,
		lockTTL:   cfg.LockTTL,
		retention: cfg.Retention,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}, nil
}

// WorkerID returns the id this runner claims locks under.
func (r *Runner) WorkerID() string { return r.workerID }

// Today returns the current calendar date in the runner's timezone.
func (r *Runner) Today() time.Time { return reminder.Today(r.now(), r.loc) }

// Run executes the task in p. A real sweep and a purge each take the lock
// "<task>:<date>" first; if another worker holds it Run returns ErrLocked.
// Dry runs write nothing and are not locked.
func (r *Runner) Run(ctx context.Context, p TaskPayload) (*RunResult, error) {
	if !p.Task.Valid() {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, fmt.Sprintf("unknown task %q", p.Task), nil)
	}
	if p.DryRun && p.Task != TaskReminderSweep {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "dry_run only applies to reminder_sweep", nil)
	}

	date := r.Today()
	if p.ReferenceDate != "" {
		d, err := types.ParseDate(p.ReferenceDate)
		if err != nil {
			return nil, err
		}
		date = d
	}

	res := &RunResult{Task: p.Task, Date: date.Format(types.DateLayout)}
	logger := r.logger.With("task", string(p.Task), "date", res.Date, "worker_id", r.workerID)

	if p.DryRun {
		report, err := r.sweeper.DryRun(ctx, date)
		if err != nil {
			return nil, err
		}
		res.Report = report
		res.Items = report.Totals.Total()
		return res, nil
	}

	res.LockID = fmt.Sprintf("%s:%s", p.Task, res.Date)
	acquired, err := r.locks.Acquire(ctx, res.LockID, r.workerID, r.lockTTL)
	if err != nil {
		logger.ErrorContext(ctx, "failed to acquire job lock", "lock_id", res.LockID, "error", err)
		return nil, fmt.Errorf("acquiring job lock %s: %w", res.LockID, err)
	}
	if !acquired {
		logger.InfoContext(ctx, "job lock held by another worker, skipping", "lock_id", res.LockID)
		return res, ErrLocked
	}

	jobID, err := r.history.Start(ctx, string(p.Task))
	if err != nil {
		// History is an audit aid; the task still runs.
		logger.ErrorContext(ctx, "failed to start job history", "error", err)
		jobID = 0
	}

	execErr := r.dispatch(ctx, p.Task, date, res)

	status := types.JobStatusSuccess
	if execErr != nil {
		status = types.JobStatusFailed
	}
	if jobID != 0 {
		if err := r.history.Finish(ctx, jobID, status, res.Items, execErr); err != nil {
			logger.ErrorContext(ctx, "failed to finish job history", "job_id", jobID, "error", err)
		}
	}

	if execErr != nil {
		logger.ErrorContext(ctx, "task failed", "error", execErr, "items", res.Items)
		return res, fmt.Errorf("task %s failed: %w", p.Task, execErr)
	}
	logger.InfoContext(ctx, "task complete", "items", res.Items)
	return res, nil
}

func (r *Runner) dispatch(ctx context.Context, task TaskType, date time.Time, res *RunResult) error {
	switch task {
	case TaskReminderSweep:
		report, err := r.sweeper.Sweep(ctx, date)
		if err != nil {
			return err
		}
		res.Report = report
		res.Items = report.Totals.Total()
		if r.publisher != nil {
			if err := r.publisher.Publish(ctx, report); err != nil {
				r.logger.WarnContext(ctx, "failed to publish sweep summary", "sweep_id", report.SweepID, "error", err)
			}
		}
		return nil

	case TaskPurgeLedger:
		if r.purger == nil {
			return errors.New("ledger purge is not configured")
		}
		// The cutoff is anchored to the task date so a backfill purges
		// what that day's run would have.
		before := date.Add(-r.retention)
		if p := r.now().UTC().Add(-r.retention); p.Before(before) {
			before = p
		}
		purge, err := r.purger.Purge(ctx, before)
		if err != nil {
			return err
		}
		res.Purge = &purge
		res.Items = int(purge.Deleted)
		return nil
	}
	return fmt.Errorf("unhandled task %q", task)
}
