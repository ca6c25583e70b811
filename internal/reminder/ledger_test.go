package reminder

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"iptvpanel/internal/types"
)

func newTestLedger(store LedgerStore, clock *fakeClock, opts ...LedgerOption) *Ledger {
	opts = append(opts, WithLedgerClock(clock.Now))
	return NewLedger(store, DefaultLookback, discardLogger(), opts...)
}

func sentEntry(hw, expiry string, stage types.Stage) *types.LedgerEntry {
	return &types.LedgerEntry{
		HardwareID: hw,
		ExpiryDate: mustDate(expiry),
		Stage:      stage,
		TenantID:   "t1",
		Outcome:    types.OutcomeSent,
		Message:    "hello",
	}
}

func TestLedger_RecordAndAlreadyNotified(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	ledger := newTestLedger(store, clock)

	notified, err := ledger.AlreadyNotified(ctx, "aa:bb:cc:dd:ee:ff", mustDate("2026-03-08"), 7)
	if err != nil || notified {
		t.Fatalf("fresh ledger: notified=%v err=%v", notified, err)
	}

	// Lower-case input is normalized before storage.
	if err := ledger.Record(ctx, sentEntry("aa-bb-cc-dd-ee-ff", "2026-03-08", 7)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	entries := store.entries()
	if len(entries) != 1 || entries[0].HardwareID != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if !entries[0].AttemptedAt.Equal(clock.Now()) {
		t.Errorf("AttemptedAt = %v, want clock time", entries[0].AttemptedAt)
	}

	notified, err = ledger.AlreadyNotified(ctx, "AA:BB:CC:DD:EE:FF", mustDate("2026-03-08"), 7)
	if err != nil || !notified {
		t.Errorf("after record: notified=%v err=%v", notified, err)
	}

	// Same device and expiry, different stage is independent.
	notified, _ = ledger.AlreadyNotified(ctx, "AA:BB:CC:DD:EE:FF", mustDate("2026-03-08"), 3)
	if notified {
		t.Error("stage 3 should not be blocked by stage 7")
	}

	// Same device and stage, new expiry after renewal is independent.
	notified, _ = ledger.AlreadyNotified(ctx, "AA:BB:CC:DD:EE:FF", mustDate("2026-04-08"), 7)
	if notified {
		t.Error("a renewed expiry should not be blocked")
	}
}

func TestLedger_DuplicateWithinWindow(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	ledger := newTestLedger(store, clock)

	if err := ledger.Record(ctx, sentEntry("AA:BB:CC:DD:EE:FF", "2026-03-08", 7)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	clock.Advance(24 * time.Hour)
	err := ledger.Record(ctx, sentEntry("AA:BB:CC:DD:EE:FF", "2026-03-08", 7))
	if !IsDuplicate(err) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if store.inserts != 1 {
		t.Errorf("inserts = %d, want 1", store.inserts)
	}
}

func TestLedger_WindowExpiry(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	ledger := newTestLedger(store, clock)

	if err := ledger.Record(ctx, sentEntry("AA:BB:CC:DD:EE:FF", "2026-01-08", 7)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	clock.Advance(DefaultLookback - time.Minute)
	if notified, _ := ledger.AlreadyNotified(ctx, "AA:BB:CC:DD:EE:FF", mustDate("2026-01-08"), 7); !notified {
		t.Error("entry should still block just inside the window")
	}

	clock.Advance(2 * time.Minute)
	if notified, _ := ledger.AlreadyNotified(ctx, "AA:BB:CC:DD:EE:FF", mustDate("2026-01-08"), 7); notified {
		t.Error("entry should not block after the window")
	}
	// A stale row is replaced rather than reported as a duplicate.
	if err := ledger.Record(ctx, sentEntry("AA:BB:CC:DD:EE:FF", "2026-01-08", 7)); err != nil {
		t.Errorf("Record after window: %v", err)
	}
}

func TestLedger_RecordValidation(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(newMemStore(), &fakeClock{now: time.Now()})

	tests := []struct {
		name  string
		entry *types.LedgerEntry
		code  types.ErrorCode
	}{
		{"nil", nil, types.ErrCodeValidationMissingField},
		{"no hardware id", sentEntry("  ", "2026-03-08", 7), types.ErrCodeValidationMissingField},
		{"negative stage", sentEntry("AA:BB:CC:DD:EE:FF", "2026-03-08", -1), types.ErrCodeValidationInvalidStage},
		{"skipped outcome", func() *types.LedgerEntry {
			e := sentEntry("AA:BB:CC:DD:EE:FF", "2026-03-08", 7)
			e.Outcome = types.OutcomeSkipped
			return e
		}(), types.ErrCodeValidationMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ledger.Record(ctx, tt.entry)
			var appErr *types.AppError
			if !errors.As(err, &appErr) || appErr.Code != tt.code {
				t.Errorf("got %v, want code %s", err, tt.code)
			}
		})
	}

	if _, err := ledger.AlreadyNotified(ctx, "", mustDate("2026-03-08"), 7); err == nil {
		t.Error("expected error for empty hardware id")
	}
}

func TestLedger_FailedAttemptStaysRetryable(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	ledger := newTestLedger(store, clock)

	e := sentEntry("AA:BB:CC:DD:EE:FF", "2026-03-08", 7)
	e.Outcome = types.OutcomeFailed
	e.Error = "stb: portal down"
	if err := ledger.Record(ctx, e); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if notified, _ := ledger.AlreadyNotified(ctx, "AA:BB:CC:DD:EE:FF", mustDate("2026-03-08"), 7); notified {
		t.Fatal("a failed attempt must not block the next sweep")
	}

	clock.Advance(24 * time.Hour)
	if err := ledger.Record(ctx, sentEntry("AA:BB:CC:DD:EE:FF", "2026-03-08", 7)); err != nil {
		t.Fatalf("Record after failure: %v", err)
	}
	if notified, _ := ledger.AlreadyNotified(ctx, "AA:BB:CC:DD:EE:FF", mustDate("2026-03-08"), 7); !notified {
		t.Error("sent entry should block re-sends")
	}
}

func TestLedger_History(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	ledger := newTestLedger(store, clock)

	for _, stage := range []types.Stage{7, 3, 1} {
		if err := ledger.Record(ctx, sentEntry("AA:BB:CC:DD:EE:FF", "2026-03-08", stage)); err != nil {
			t.Fatalf("Record: %v", err)
		}
		clock.Advance(time.Hour)
	}
	_ = ledger.Record(ctx, sentEntry("11:22:33:44:55:66", "2026-03-08", 7))

	got, err := ledger.History(ctx, "aa:bb:cc:dd:ee:ff", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	if got[0].Stage != 1 {
		t.Errorf("newest first: got stage %d", got[0].Stage)
	}

	got, _ = ledger.History(ctx, "AA:BB:CC:DD:EE:FF", 2)
	if len(got) != 2 {
		t.Errorf("limit ignored: got %d", len(got))
	}
}

func TestLedger_PurgeArchivesThenDeletes(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}

	archiver, err := NewFileArchiver(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileArchiver: %v", err)
	}
	ledger := newTestLedger(store, clock, WithArchiver(archiver))

	if err := ledger.Record(ctx, sentEntry("AA:BB:CC:DD:EE:FF", "2026-01-08", 7)); err != nil {
		t.Fatal(err)
	}
	if err := ledger.Record(ctx, sentEntry("11:22:33:44:55:66", "2026-01-08", 7)); err != nil {
		t.Fatal(err)
	}
	clock.Advance(100 * 24 * time.Hour)
	if err := ledger.Record(ctx, sentEntry("AA:BB:CC:DD:EE:FF", "2026-04-20", 7)); err != nil {
		t.Fatal(err)
	}

	before := clock.Now().Add(-90 * 24 * time.Hour)
	res, err := ledger.Purge(ctx, before)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if res.Archived != 2 || res.Deleted != 2 {
		t.Errorf("result = %+v, want 2 archived and 2 deleted", res)
	}
	if len(store.entries()) != 1 {
		t.Errorf("recent entry should survive, have %d", len(store.entries()))
	}

	archived, err := ReadArchive(archiver.Path(res.ArchiveKey))
	if err != nil {
		t.Fatalf("ReadArchive: %v", err)
	}
	if len(archived) != 2 {
		t.Fatalf("archive holds %d entries, want 2", len(archived))
	}
	for _, e := range archived {
		if e.Stage != 7 || e.Outcome != types.OutcomeSent {
			t.Errorf("unexpected archived entry: %+v", e)
		}
	}
}

func TestLedger_PurgeNothingToArchive(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	archiver, err := NewFileArchiver(dir)
	if err != nil {
		t.Fatal(err)
	}
	clock := &fakeClock{now: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}
	ledger := newTestLedger(newMemStore(), clock, WithArchiver(archiver))

	res, err := ledger.Purge(ctx, clock.Now().Add(-DefaultLookback))
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if res.ArchiveKey != "" || res.Archived != 0 {
		t.Errorf("nothing should be archived: %+v", res)
	}
	files, _ := os.ReadDir(dir)
	if len(files) != 0 {
		t.Errorf("archive dir should be empty, has %d entries", len(files))
	}
}

func TestLedger_PurgeRejectsCutoffInsideWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}
	ledger := newTestLedger(newMemStore(), clock)

	_, err := ledger.Purge(context.Background(), clock.Now().Add(-30*24*time.Hour))
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeValidationInvalidDate {
		t.Errorf("expected invalid date error, got %v", err)
	}
}

type failingArchiver struct{}

func (failingArchiver) UploadArchive(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestLedger_PurgeKeepsEntriesWhenArchiveFails(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	ledger := newTestLedger(store, clock, WithArchiver(failingArchiver{}))

	if err := ledger.Record(ctx, sentEntry("AA:BB:CC:DD:EE:FF", "2026-01-08", 7)); err != nil {
		t.Fatal(err)
	}
	clock.Advance(100 * 24 * time.Hour)

	if _, err := ledger.Purge(ctx, clock.Now().Add(-DefaultLookback)); err == nil {
		t.Fatal("expected archive error")
	}
	if len(store.entries()) != 1 {
		t.Error("entries must not be deleted when archiving fails")
	}
}

func TestFileArchiver_PathIsContained(t *testing.T) {
	dir := t.TempDir()
	a, err := NewFileArchiver(dir)
	if err != nil {
		t.Fatal(err)
	}
	got := a.Path("../../etc/passwd")
	want := dir + "/etc/passwd" + archiveExt
	if got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
}
