// Package main implements the reminder-sweep CLI, a one-shot run of the
// reminder engine for cron hosts, backfills and debugging.
//
// Usage:
//
//	reminder-sweep
//	reminder-sweep --dry-run
//	reminder-sweep --reference-date=2026-03-01
//	reminder-sweep --task=purge_ledger
//	reminder-sweep --list
//	reminder-sweep --read-archive=/var/lib/reminders/ledger/2026/01/before_20260101T000000Z.jsonl.zst
//
// The exit status is 0 when the task ran, including sweeps where some
// deliveries failed, and when another worker already holds the day's lock.
// Setup errors exit 1. --read-archive prints a purge archive as JSON lines
// without loading configuration.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"iptvpanel/internal/app"
	"iptvpanel/internal/config"
	"iptvpanel/internal/reminder"
	"iptvpanel/internal/scheduler"
	"iptvpanel/internal/types"
)

// taskDescriptions lists the tasks the CLI accepts.
var taskDescriptions = map[scheduler.TaskType]string{
	scheduler.TaskReminderSweep: "Send the day's expiry reminders on every enabled tenant",
	scheduler.TaskPurgeLedger:   "Archive and delete ledger entries past retention",
}

// options are the parsed command-line flags.
type options struct {
	payload     scheduler.TaskPayload
	list        bool
	archivePath string
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}
	if opts.list {
		printTasks(os.Stdout)
		return
	}
	if opts.archivePath != "" {
		if err := dumpArchive(opts.archivePath, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts.payload, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags validates the flags up front so a typo never reaches the store.
func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("reminder-sweep", flag.ContinueOnError)
	fs.SetOutput(stderr)
	task := fs.String("task", string(scheduler.TaskReminderSweep), "Task to run (see --list)")
	refDate := fs.String("reference-date", "", "Run as if today were this date (YYYY-MM-DD)")
	dryRun := fs.Bool("dry-run", false, "Select and render without sending or writing the ledger")
	list := fs.Bool("list", false, "List the available tasks and exit")
	archive := fs.String("read-archive", "", "Print the entries of a ledger purge archive and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if *list {
		return options{list: true}, nil
	}
	if *archive != "" {
		return options{archivePath: *archive}, nil
	}

	p := scheduler.TaskPayload{
		Task:          scheduler.TaskType(*task),
		ReferenceDate: *refDate,
		DryRun:        *dryRun,
	}
	if !p.Task.Valid() {
		fmt.Fprintf(stderr, "error: unknown task %q\n", *task)
		return options{}, fmt.Errorf("unknown task %q", *task)
	}
	if p.DryRun && p.Task != scheduler.TaskReminderSweep {
		fmt.Fprintf(stderr, "error: --dry-run only applies to %s\n", scheduler.TaskReminderSweep)
		return options{}, errors.New("dry-run on a non-sweep task")
	}
	if p.ReferenceDate != "" {
		if _, err := types.ParseDate(p.ReferenceDate); err != nil {
			fmt.Fprintf(stderr, "error: invalid --reference-date %q, expected YYYY-MM-DD\n", p.ReferenceDate)
			return options{}, err
		}
	}
	return options{payload: p}, nil
}

func run(ctx context.Context, p scheduler.TaskPayload, stdout io.Writer) error {
	cfg, err := config.LoadConfig(config.NewFileSecretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("reminder-sweep starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"task", string(p.Task),
		"dry_run", p.DryRun,
	)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing: %w", err)
	}
	defer a.Close()

	res, err := a.Runner.Run(ctx, p)
	if errors.Is(err, scheduler.ErrLocked) {
		logger.Info("task already running or finished today, nothing to do", "lock_id", res.LockID)
		return nil
	}
	if err != nil {
		return err
	}
	return writeResult(stdout, res)
}

func writeResult(w io.Writer, res *scheduler.RunResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// dumpArchive writes one JSON object per archived ledger entry.
func dumpArchive(path string, w io.Writer) error {
	entries, err := reminder.ReadArchive(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	for i := range entries {
		if err := enc.Encode(&entries[i]); err != nil {
			return err
		}
	}
	return nil
}

func printTasks(w io.Writer) {
	fmt.Fprintln(w, "Available tasks:")
	for _, t := range []scheduler.TaskType{scheduler.TaskReminderSweep, scheduler.TaskPurgeLedger} {
		fmt.Fprintf(w, "  %-16s %s\n", t, taskDescriptions[t])
	}
}
