package db

import (
	"context"
	"fmt"
	"time"

	"iptvpanel/internal/types"
)

// maxJobErrorLen caps the error text stored on a job_history row.
const maxJobErrorLen = 2000

const acquireLockSQL = `
INSERT INTO job_locks AS l (id, worker_id, locked_at, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
   SET worker_id  = EXCLUDED.worker_id,
       locked_at  = EXCLUDED.locked_at,
       expires_at = EXCLUDED.expires_at
 WHERE l.expires_at < EXCLUDED.locked_at`

// JobLockRepository guards each task day with a row in job_locks. Lock ids
// look like "reminder_sweep:2026-05-01".
type JobLockRepository struct {
	db  DBTX
	now func() time.Time
}

func NewJobLockRepository(db DBTX) *JobLockRepository {
	return &JobLockRepository{db: db, now: time.Now}
}

// Acquire reports whether workerID now holds lockID. An existing row is
// taken over only once its expiry has passed.
func (r *JobLockRepository) Acquire(ctx context.Context, lockID, workerID string, ttl time.Duration) (bool, error) {
	lockedAt := r.now().UTC()
	tag, err := r.db.Exec(ctx, acquireLockSQL, lockID, workerID, lockedAt, lockedAt.Add(ttl))
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire job lock "+lockID, err)
	}
	// Zero rows: a live holder kept the row.
	return tag.RowsAffected() == 1, nil
}

// JobHistoryRepository records one job_history row per task run.
type JobHistoryRepository struct {
	db  DBTX
	now func() time.Time
}

func NewJobHistoryRepository(db DBTX) *JobHistoryRepository {
	return &JobHistoryRepository{db: db, now: time.Now}
}

// Start opens a running entry for jobType and returns its id.
func (r *JobHistoryRepository) Start(ctx context.Context, jobType string) (int64, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO job_history (job_type, status, started_at)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		jobType, types.JobStatusRunning, r.now().UTC(),
	)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to start job history entry", err)
	}
	return id, nil
}

// Finish stamps the outcome onto entry id. jobErr may be nil; a long
// message is truncated.
func (r *JobHistoryRepository) Finish(ctx context.Context, id int64, status string, items int, jobErr error) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE job_history
		    SET status = $1, items_count = $2, error = $3, finished_at = $4
		  WHERE id = $5`,
		status, items, jobErrorText(jobErr), r.now().UTC(), id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish job history entry", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, fmt.Sprintf("job history entry %d not found", id), nil)
	}
	return nil
}

func jobErrorText(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > maxJobErrorLen {
		msg = msg[:maxJobErrorLen]
	}
	return &msg
}
