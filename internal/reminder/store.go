// Package reminder implements the expiry-reminder engine: candidate
// selection, message rendering, the deduplication ledger and the daily
// sweep that ties them to the delivery channels.
//
// Stores are defined here and implemented by internal/db (Postgres) and
// internal/database (SQLite).
package reminder

import (
	"context"
	"time"

	"iptvpanel/internal/types"
)

// DeviceStore reads subscriber devices. Implementations return devices
// ordered by expiry date, then hardware id, with hardware ids normalized.
type DeviceStore interface {
	// ListDueOn returns active devices expiring exactly on expiry.
	ListDueOn(ctx context.Context, tenantID string, allTenants bool, expiry time.Time) ([]types.Device, error)
	// ListExpiredBetween returns inactive devices that expired in [from, to].
	ListExpiredBetween(ctx context.Context, tenantID string, allTenants bool, from, to time.Time) ([]types.Device, error)
}

// ReminderConfigStore reads tenant reminder configurations.
type ReminderConfigStore interface {
	ListEnabled(ctx context.Context) ([]types.TenantReminder, error)
	TouchLastSweep(ctx context.Context, tenantID string, at time.Time) error
}

// LedgerStore persists ledger entries with a unique
// (hardware_id, expiry_date, stage) key.
type LedgerStore interface {
	Exists(ctx context.Context, hardwareID string, expiry time.Time, stage types.Stage, since time.Time) (bool, error)
	// Insert returns types.ErrDuplicateLedgerEntry when the triple exists
	// with an attempt at or after cutoff. Older rows are replaced.
	Insert(ctx context.Context, entry *types.LedgerEntry, cutoff time.Time) error
	ListBefore(ctx context.Context, before time.Time) ([]types.LedgerEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	ListByHardwareID(ctx context.Context, hardwareID string, limit int) ([]types.LedgerEntry, error)
}
