package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"iptvpanel/internal/types"
)

// Store implements the device, reminder config, ledger, job lock and job
// history stores on top of SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps an opened and migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func dateString(t time.Time) string { return types.DateOf(t).Format(types.DateLayout) }

func dbError(msg string, err error) error {
	return types.NewAppError(types.ErrCodeInternalDB, msg, err)
}

// --- Devices ---

const deviceColumns = `id, hardware_id, tenant_id, full_name,
	COALESCE(phone, ''), COALESCE(chat_handle, ''), COALESCE(email, ''),
	expires_on, active`

// ListDueOn returns active devices whose plan expires exactly on expiry.
func (s *Store) ListDueOn(ctx context.Context, tenantID string, allTenants bool, expiry time.Time) ([]types.Device, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+deviceColumns+`
		 FROM devices
		 WHERE active = 1 AND expires_on = ? AND (? OR tenant_id = ?)
		 ORDER BY expires_on, hardware_id`,
		dateString(expiry), allTenants, tenantID,
	)
	if err != nil {
		return nil, dbError("failed to list devices due for reminder", err)
	}
	return scanDevices(rows)
}

// ListExpiredBetween returns inactive devices whose plan expired within
// [from, to].
func (s *Store) ListExpiredBetween(ctx context.Context, tenantID string, allTenants bool, from, to time.Time) ([]types.Device, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+deviceColumns+`
		 FROM devices
		 WHERE active = 0 AND expires_on BETWEEN ? AND ? AND (? OR tenant_id = ?)
		 ORDER BY expires_on, hardware_id`,
		dateString(from), dateString(to), allTenants, tenantID,
	)
	if err != nil {
		return nil, dbError("failed to list expired devices", err)
	}
	return scanDevices(rows)
}

func scanDevices(rows *sql.Rows) ([]types.Device, error) {
	defer rows.Close()

	var devices []types.Device
	for rows.Next() {
		var (
			d       types.Device
			expires string
		)
		if err := rows.Scan(&d.ID, &d.HardwareID, &d.TenantID, &d.FullName,
			&d.Phone, &d.ChatHandle, &d.Email, &expires, &d.Active); err != nil {
			return nil, dbError("failed to scan device row", err)
		}
		exp, err := types.ParseDate(expires)
		if err != nil {
			return nil, dbError("device has malformed expiry date", err)
		}
		d.ExpiresOn = exp
		d.HardwareID = types.NormalizeHardwareID(d.HardwareID)
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating device rows", err)
	}
	return devices, nil
}

// --- Reminder configs ---

// ListEnabled returns every enabled tenant reminder configuration with its
// templates, ordered by tenant id.
func (s *Store) ListEnabled(ctx context.Context) ([]types.TenantReminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.permissions,
		        c.enabled, c.mode, c.single_offset_days, c.channels,
		        c.default_template, COALESCE(c.email_subject, ''), c.last_sweep_at
		 FROM reminder_configs c
		 JOIN tenants t ON t.id = c.tenant_id
		 WHERE c.enabled = 1
		 ORDER BY t.id`,
	)
	if err != nil {
		return nil, dbError("failed to list reminder configs", err)
	}

	var (
		out   []types.TenantReminder
		index = make(map[string]int)
	)
	for rows.Next() {
		var (
			tr          types.TenantReminder
			permissions string
			mode        string
			channels    string
			lastSweep   sql.NullInt64
		)
		if err := rows.Scan(&tr.Tenant.ID, &tr.Tenant.Name, &permissions,
			&tr.Config.Enabled, &mode, &tr.Config.SingleOffsetDays, &channels,
			&tr.Config.DefaultTemplate, &tr.Config.EmailSubject, &lastSweep); err != nil {
			rows.Close()
			return nil, dbError("failed to scan reminder config row", err)
		}
		tr.Tenant.Capabilities = types.ParseCapabilities(permissions)
		tr.Config.TenantID = tr.Tenant.ID
		tr.Config.Mode = types.StageMode(mode)
		tr.Config.Channels = types.ParseChannels(channels)
		tr.Config.Templates = make(map[types.TemplateKey]string)
		if lastSweep.Valid {
			at := fromMillis(lastSweep.Int64)
			tr.Config.LastSweepAt = &at
		}
		index[tr.Tenant.ID] = len(out)
		out = append(out, tr)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, dbError("error iterating reminder config rows", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	tplRows, err := s.db.QueryContext(ctx,
		`SELECT tpl.tenant_id, tpl.stage_days, tpl.channel, tpl.body
		 FROM reminder_templates tpl
		 JOIN reminder_configs c ON c.tenant_id = tpl.tenant_id
		 WHERE c.enabled = 1`,
	)
	if err != nil {
		return nil, dbError("failed to list reminder templates", err)
	}
	defer tplRows.Close()

	for tplRows.Next() {
		var (
			tenantID, channel, body string
			stage                   int
		)
		if err := tplRows.Scan(&tenantID, &stage, &channel, &body); err != nil {
			return nil, dbError("failed to scan reminder template row", err)
		}
		if i, ok := index[tenantID]; ok {
			key := types.TemplateKey{Stage: types.Stage(stage), Channel: types.ChannelType(channel)}
			out[i].Config.Templates[key] = body
		}
	}
	if err := tplRows.Err(); err != nil {
		return nil, dbError("error iterating reminder template rows", err)
	}
	return out, nil
}

// TouchLastSweep stamps the tenant's configuration with the sweep time.
func (s *Store) TouchLastSweep(ctx context.Context, tenantID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminder_configs SET last_sweep_at = ? WHERE tenant_id = ?`,
		toMillis(at), tenantID,
	)
	if err != nil {
		return dbError("failed to update last sweep time", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTenant, "reminder config not found for tenant "+tenantID, nil)
	}
	return nil
}

// --- Ledger ---

const ledgerColumns = `id, hardware_id, expiry_date, stage_days, tenant_id,
	attempted_at, outcome, message, COALESCE(error, ''), COALESCE(channels, '')`

// Exists reports whether the triple was sent at or after since. Failed
// attempts do not count.
func (s *Store) Exists(ctx context.Context, hardwareID string, expiry time.Time, stage types.Stage, since time.Time) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reminder_ledger
		 WHERE hardware_id = ? AND expiry_date = ? AND stage_days = ?
		   AND outcome = ? AND attempted_at >= ?`,
		hardwareID, dateString(expiry), int(stage), string(types.OutcomeSent), toMillis(since),
	).Scan(&count)
	if err != nil {
		return false, dbError("failed to check reminder ledger", err)
	}
	return count > 0, nil
}

// Insert records an attempt. An existing row for the triple is replaced when
// it is a failed attempt or older than cutoff; a sent row inside the window
// yields types.ErrDuplicateLedgerEntry.
func (s *Store) Insert(ctx context.Context, entry *types.LedgerEntry, cutoff time.Time) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	channels, err := json.Marshal(entry.Channels)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode channel results", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reminder_ledger
		   (id, hardware_id, expiry_date, stage_days, tenant_id,
		    attempted_at, outcome, message, error, channels)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?)
		 ON CONFLICT (hardware_id, expiry_date, stage_days) DO UPDATE
		   SET id = excluded.id,
		       tenant_id = excluded.tenant_id,
		       attempted_at = excluded.attempted_at,
		       outcome = excluded.outcome,
		       message = excluded.message,
		       error = excluded.error,
		       channels = excluded.channels
		   WHERE reminder_ledger.outcome = ? OR reminder_ledger.attempted_at < ?`,
		entry.ID, entry.HardwareID, dateString(entry.ExpiryDate), int(entry.Stage), entry.TenantID,
		toMillis(entry.AttemptedAt), string(entry.Outcome), entry.Message, entry.Error, string(channels),
		string(types.OutcomeFailed), toMillis(cutoff),
	)
	if err != nil {
		if isConstraintError(err) {
			return types.ErrDuplicateLedgerEntry
		}
		return dbError("failed to record reminder attempt", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError("failed to read ledger insert result", err)
	}
	if n == 0 {
		return types.ErrDuplicateLedgerEntry
	}
	return nil
}

// isConstraintError matches SQLite UNIQUE/PRIMARY KEY failures by message;
// the modernc driver reports them as "constraint failed: UNIQUE ...".
func isConstraintError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}

// ListBefore returns entries attempted before the given time, oldest first.
func (s *Store) ListBefore(ctx context.Context, before time.Time) ([]types.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM reminder_ledger
		 WHERE attempted_at < ?
		 ORDER BY attempted_at, id`,
		toMillis(before),
	)
	if err != nil {
		return nil, dbError("failed to list ledger entries", err)
	}
	return scanLedger(rows)
}

// DeleteBefore removes entries attempted before the given time.
func (s *Store) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminder_ledger WHERE attempted_at < ?`, toMillis(before))
	if err != nil {
		return 0, dbError("failed to purge ledger entries", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListByHardwareID returns the most recent entries for a device.
func (s *Store) ListByHardwareID(ctx context.Context, hardwareID string, limit int) ([]types.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM reminder_ledger
		 WHERE hardware_id = ?
		 ORDER BY attempted_at DESC, id
		 LIMIT ?`,
		hardwareID, limit,
	)
	if err != nil {
		return nil, dbError("failed to list ledger entries for device", err)
	}
	return scanLedger(rows)
}

func scanLedger(rows *sql.Rows) ([]types.LedgerEntry, error) {
	defer rows.Close()

	var entries []types.LedgerEntry
	for rows.Next() {
		var (
			e                         types.LedgerEntry
			expiry, outcome, channels string
			stage                     int
			attempted                 int64
		)
		if err := rows.Scan(&e.ID, &e.HardwareID, &expiry, &stage, &e.TenantID,
			&attempted, &outcome, &e.Message, &e.Error, &channels); err != nil {
			return nil, dbError("failed to scan ledger row", err)
		}
		exp, err := types.ParseDate(expiry)
		if err != nil {
			return nil, dbError("ledger row has malformed expiry date", err)
		}
		e.ExpiryDate = exp
		e.Stage = types.Stage(stage)
		e.AttemptedAt = fromMillis(attempted)
		e.Outcome = types.Outcome(outcome)
		if channels != "" {
			if err := json.Unmarshal([]byte(channels), &e.Channels); err != nil {
				return nil, dbError("failed to decode channel results", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating ledger rows", err)
	}
	return entries, nil
}

// --- Job lock and history ---

// Acquire takes the named lock unless a live holder exists.
func (s *Store) Acquire(ctx context.Context, lockID, workerID string, ttl time.Duration) (bool, error) {
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE
		   SET worker_id = excluded.worker_id,
		       locked_at = excluded.locked_at,
		       expires_at = excluded.expires_at
		   WHERE job_locks.expires_at < excluded.locked_at`,
		lockID, workerID, toMillis(now), toMillis(now.Add(ttl)),
	)
	if err != nil {
		return false, dbError("failed to acquire job lock", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Start opens a job_history row in the running state.
func (s *Store) Start(ctx context.Context, jobType string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO job_history (job_type, started_at, status) VALUES (?, ?, ?)`,
		jobType, toMillis(s.now()), types.JobStatusRunning,
	)
	if err != nil {
		return 0, dbError("failed to start job history entry", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, dbError("failed to read job history id", err)
	}
	return id, nil
}

// Finish closes a job_history row with its outcome.
func (s *Store) Finish(ctx context.Context, id int64, status string, items int, jobErr error) error {
	var errMsg sql.NullString
	if jobErr != nil {
		errMsg = sql.NullString{String: jobErr.Error(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_history SET finished_at = ?, status = ?, items_count = ?, error = ? WHERE id = ?`,
		toMillis(s.now()), status, items, errMsg, id,
	)
	if err != nil {
		return dbError("failed to finish job history entry", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, fmt.Sprintf("job history entry %d not found", id), nil)
	}
	return nil
}
