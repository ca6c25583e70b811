// Package scheduler runs the reminder engine's scheduled tasks.
//
// A task arrives as a TaskPayload, either from an EventBridge rule (the
// worker Lambda), the daemon's cron schedule, the one-shot command or the
// ops API. The Runner serializes each task per calendar day with a job lock
// and records it in job history.
package scheduler

// TaskType identifies which scheduled task to run.
type TaskType string

const (
	TaskReminderSweep TaskType = "reminder_sweep"
	TaskPurgeLedger   TaskType = "purge_ledger"
)

// Valid reports whether t is a known task.
func (t TaskType) Valid() bool {
	return t == TaskReminderSweep || t == TaskPurgeLedger
}

// TaskPayload is the JSON payload sent by EventBridge and accepted by the
// ops API:
//
//	{
//	  "task": "reminder_sweep",
//	  "reference_date": "2026-03-01",  // optional
//	  "dry_run": false                 // optional, sweep only
//	}
type TaskPayload struct {
	Task TaskType `json:"task"`
	// ReferenceDate overrides "today" for backfills and manual runs. Empty
	// means the current date in the configured timezone.
	ReferenceDate string `json:"reference_date,omitempty"`
	DryRun        bool   `json:"dry_run,omitempty"`
}
