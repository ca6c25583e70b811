package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"iptvpanel/internal/types"
)

// DefaultLookback is how long a ledger entry blocks its triple.
const DefaultLookback = 60 * 24 * time.Hour

// Ledger answers "was this stage already notified for this expiry" and
// records attempts. The key is the hardware id, never the device row id,
// so entries survive the nightly device resync.
type Ledger struct {
	store    LedgerStore
	lookback time.Duration
	archiver Archiver
	now      func() time.Time
	logger   *slog.Logger
}

// LedgerOption customizes a Ledger.
type LedgerOption func(*Ledger)

// WithArchiver archives purged entries before deletion.
func WithArchiver(a Archiver) LedgerOption {
	return func(l *Ledger) { l.archiver = a }
}

// WithLedgerClock overrides the time source.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a Ledger over store. A non-positive lookback uses
// DefaultLookback.
func NewLedger(store LedgerStore, lookback time.Duration, logger *slog.Logger, opts ...LedgerOption) *Ledger {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		store:    store,
		lookback: lookback,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lookback returns the deduplication window.
func (l *Ledger) Lookback() time.Duration { return l.lookback }

// AlreadyNotified reports whether an attempt for the triple was recorded
// within the lookback window.
func (l *Ledger) AlreadyNotified(ctx context.Context, hardwareID string, expiry time.Time, stage types.Stage) (bool, error) {
	hw := types.NormalizeHardwareID(hardwareID)
	if hw == "" {
		return false, types.NewAppError(types.ErrCodeValidationMissingField, "hardware id is required", nil)
	}
	since := l.now().UTC().Add(-l.lookback)
	return l.store.Exists(ctx, hw, types.DateOf(expiry), stage, since)
}

// Record writes an attempt. It returns types.ErrDuplicateLedgerEntry when
// the triple was already recorded inside the window; callers treat that as
// already notified.
func (l *Ledger) Record(ctx context.Context, entry *types.LedgerEntry) error {
	if entry == nil {
		return types.NewAppError(types.ErrCodeValidationMissingField, "ledger entry is nil", nil)
	}
	entry.HardwareID = types.NormalizeHardwareID(entry.HardwareID)
	if entry.HardwareID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "hardware id is required", nil)
	}
	if entry.Stage < 0 {
		return types.NewAppError(types.ErrCodeValidationInvalidStage, fmt.Sprintf("stage %d is negative", entry.Stage), nil)
	}
	if entry.Outcome != types.OutcomeSent && entry.Outcome != types.OutcomeFailed {
		return types.NewAppError(types.ErrCodeValidationMissingField, fmt.Sprintf("outcome %q cannot be recorded", entry.Outcome), nil)
	}
	entry.ExpiryDate = types.DateOf(entry.ExpiryDate)

	now := l.now().UTC()
	if entry.AttemptedAt.IsZero() {
		entry.AttemptedAt = now
	}
	return l.store.Insert(ctx, entry, now.Add(-l.lookback))
}

// History returns the most recent entries for a device.
func (l *Ledger) History(ctx context.Context, hardwareID string, limit int) ([]types.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return l.store.ListByHardwareID(ctx, types.NormalizeHardwareID(hardwareID), limit)
}

// PurgeResult summarizes a retention run.
type PurgeResult struct {
	Archived   int    `json:"archived"`
	Deleted    int64  `json:"deleted"`
	ArchiveKey string `json:"archive_key,omitempty"`
}

// Purge removes entries attempted before the cutoff. When an archiver is
// configured the entries are archived first and nothing is deleted if the
// archive fails. Purging only entries older than the lookback window never
// changes a deduplication decision.
func (l *Ledger) Purge(ctx context.Context, before time.Time) (PurgeResult, error) {
	var res PurgeResult
	before = before.UTC()

	if minCutoff := l.now().UTC().Add(-l.lookback); before.After(minCutoff) {
		return res, types.NewAppError(types.ErrCodeValidationInvalidDate,
			fmt.Sprintf("purge cutoff %s is inside the %s lookback window", before.Format(time.RFC3339), l.lookback), nil)
	}

	if l.archiver != nil {
		entries, err := l.store.ListBefore(ctx, before)
		if err != nil {
			return res, fmt.Errorf("listing ledger entries for archive: %w", err)
		}
		if len(entries) > 0 {
			data, err := EncodeJSONL(entries)
			if err != nil {
				return res, err
			}
			key := fmt.Sprintf("ledger/%d/%02d/before_%s", before.Year(), before.Month(), before.Format("20060102T150405Z"))
			if err := l.archiver.UploadArchive(ctx, key, data); err != nil {
				return res, fmt.Errorf("archiving ledger entries to %s: %w", key, err)
			}
			res.Archived = len(entries)
			res.ArchiveKey = key
		}
	}

	deleted, err := l.store.DeleteBefore(ctx, before)
	if err != nil {
		return res, fmt.Errorf("deleting ledger entries: %w", err)
	}
	res.Deleted = deleted

	l.logger.InfoContext(ctx, "ledger purge complete",
		"before", before.Format(time.RFC3339),
		"archived", res.Archived,
		"deleted", res.Deleted,
	)
	return res, nil
}

// IsDuplicate reports whether err means the triple was already recorded.
func IsDuplicate(err error) bool {
	return errors.Is(err, types.ErrDuplicateLedgerEntry)
}
