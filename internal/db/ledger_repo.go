package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"iptvpanel/internal/types"
)

// LedgerRepository persists reminder attempts in reminder_ledger. The table
// carries a unique index on (hardware_id, expiry_date, stage_days) so that a
// triple is sent at most once per lookback window, whatever the devices
// table looks like after a resync. Failed attempts stay replaceable.
type LedgerRepository struct {
	db DBTX
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db DBTX) *LedgerRepository {
	return &LedgerRepository{db: db}
}

const ledgerColumns = `id, hardware_id, expiry_date, stage_days, tenant_id,
	attempted_at, outcome, message, COALESCE(error, ''), channels`

// Exists reports whether the triple was sent at or after since.
func (r *LedgerRepository) Exists(ctx context.Context, hardwareID string, expiry time.Time, stage types.Stage, since time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM reminder_ledger
			WHERE hardware_id = $1 AND expiry_date = $2 AND stage_days = $3
			  AND outcome = $4 AND attempted_at >= $5
		)`,
		hardwareID, types.DateOf(expiry), int(stage), string(types.OutcomeSent), since.UTC(),
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check reminder ledger", err)
	}
	return exists, nil
}

// Insert records an attempt. A row for the same triple is replaced in place
// when it records a failure or is older than cutoff; a sent row inside the
// window leaves the table untouched and Insert returns
// types.ErrDuplicateLedgerEntry.
//
// SQL pattern:
//
//	INSERT INTO reminder_ledger (...) VALUES (...)
//	ON CONFLICT (hardware_id, expiry_date, stage_days) DO UPDATE SET ...
//	  WHERE reminder_ledger.outcome = $11 OR reminder_ledger.attempted_at < $12
func (r *LedgerRepository) Insert(ctx context.Context, entry *types.LedgerEntry, cutoff time.Time) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	channels, err := json.Marshal(entry.Channels)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode channel results", err)
	}

	tag, err := r.db.Exec(ctx,
		`INSERT INTO reminder_ledger
		   (id, hardware_id, expiry_date, stage_days, tenant_id,
		    attempted_at, outcome, message, error, channels)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
		 ON CONFLICT (hardware_id, expiry_date, stage_days) DO UPDATE
		   SET id = EXCLUDED.id,
		       tenant_id = EXCLUDED.tenant_id,
		       attempted_at = EXCLUDED.attempted_at,
		       outcome = EXCLUDED.outcome,
		       message = EXCLUDED.message,
		       error = EXCLUDED.error,
		       channels = EXCLUDED.channels
		   WHERE reminder_ledger.outcome = $11 OR reminder_ledger.attempted_at < $12`,
		entry.ID,
		entry.HardwareID,
		types.DateOf(entry.ExpiryDate),
		int(entry.Stage),
		entry.TenantID,
		entry.AttemptedAt.UTC(),
		string(entry.Outcome),
		entry.Message,
		entry.Error,
		channels,
		string(types.OutcomeFailed),
		cutoff.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.ErrDuplicateLedgerEntry
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record reminder attempt", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrDuplicateLedgerEntry
	}
	return nil
}

// ListBefore returns entries attempted before the given time, oldest first.
func (r *LedgerRepository) ListBefore(ctx context.Context, before time.Time) ([]types.LedgerEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+ledgerColumns+`
		 FROM reminder_ledger
		 WHERE attempted_at < $1
		 ORDER BY attempted_at, id`,
		before.UTC(),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list ledger entries", err)
	}
	return scanLedgerEntries(rows)
}

// DeleteBefore removes entries attempted before the given time and returns
// how many were removed.
func (r *LedgerRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM reminder_ledger WHERE attempted_at < $1`,
		before.UTC(),
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge ledger entries", err)
	}
	return tag.RowsAffected(), nil
}

// ListByHardwareID returns the most recent entries for a device, newest first.
func (r *LedgerRepository) ListByHardwareID(ctx context.Context, hardwareID string, limit int) ([]types.LedgerEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+ledgerColumns+`
		 FROM reminder_ledger
		 WHERE hardware_id = $1
		 ORDER BY attempted_at DESC, id
		 LIMIT $2`,
		hardwareID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list ledger entries for device", err)
	}
	return scanLedgerEntries(rows)
}

func scanLedgerEntries(rows pgx.Rows) ([]types.LedgerEntry, error) {
	defer rows.Close()

	var entries []types.LedgerEntry
	for rows.Next() {
		var (
			e        types.LedgerEntry
			stage    int
			outcome  string
			channels []byte
		)
		if err := rows.Scan(
			&e.ID, &e.HardwareID, &e.ExpiryDate, &stage, &e.TenantID,
			&e.AttemptedAt, &outcome, &e.Message, &e.Error, &channels,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan ledger row", err)
		}
		e.Stage = types.Stage(stage)
		e.Outcome = types.Outcome(outcome)
		e.ExpiryDate = types.DateOf(e.ExpiryDate)
		if len(channels) > 0 {
			if err := json.Unmarshal(channels, &e.Channels); err != nil {
				return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to decode channel results", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating ledger rows", err)
	}
	return entries, nil
}
