// Package main is the long-running reminder daemon for single-host panels.
//
// It schedules the daily sweep and the nightly ledger purge with cron
// expressions from configuration and serves the ops API:
//
//	GET  /health
//	GET  /v1/sweeps/latest
//	POST /v1/sweeps
//	GET  /v1/ledger/{hardwareID}
//	POST /v1/ledger/purge
//
// Scheduled and manual runs share the task runner, so the day's job lock
// keeps them from overlapping. SIGINT or SIGTERM stops the scheduler, waits
// for a running task and shuts the HTTP server down.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"iptvpanel/internal/app"
	"iptvpanel/internal/config"
	"iptvpanel/internal/core"
	"iptvpanel/internal/scheduler"
)

// shutdownTimeout bounds the wait for the HTTP server and a running task.
const shutdownTimeout = 30 * time.Second

// TaskRunner executes one task payload.
type TaskRunner interface {
	Run(ctx context.Context, p scheduler.TaskPayload) (*scheduler.RunResult, error)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(config.NewFileSecretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("reminder daemon starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Ops.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing: %w", err)
	}
	defer a.Close()

	srv, err := core.NewServer(core.Deps{
		Runner:       a.Runner,
		Reports:      a.Orchestrator,
		Ledger:       a.Ledger,
		HealthProbes: a.Probes,
		APIKeyHash:   cfg.Ops.APIKeyHash.Unmask(),
	}, logger)
	if err != nil {
		return fmt.Errorf("creating ops server: %w", err)
	}

	c := cron.New(
		cron.WithLocation(cfg.Reminder.Location()),
		cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
	)
	if err := scheduleTasks(ctx, c, a.Runner, cfg.Ops, logger); err != nil {
		return err
	}
	c.Start()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Ops.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Manual sweeps answer only when the sweep completes.
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("ops API listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("ops server: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown error", "error", err)
	}
	select {
	case <-c.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("scheduled task still running at shutdown deadline")
	}

	logger.Info("reminder daemon stopped")
	return runErr
}

// scheduleTasks registers the sweep and, when configured, the purge.
func scheduleTasks(ctx context.Context, c *cron.Cron, runner TaskRunner, cfg config.OpsConfig, logger *slog.Logger) error {
	if _, err := c.AddFunc(cfg.SweepCron, taskJob(ctx, runner, scheduler.TaskReminderSweep, logger)); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", cfg.SweepCron, err)
	}
	logger.Info("sweep scheduled", "cron", cfg.SweepCron)

	if cfg.PurgeCron == "" {
		logger.Info("ledger purge schedule disabled")
		return nil
	}
	if _, err := c.AddFunc(cfg.PurgeCron, taskJob(ctx, runner, scheduler.TaskPurgeLedger, logger)); err != nil {
		return fmt.Errorf("invalid purge schedule %q: %w", cfg.PurgeCron, err)
	}
	logger.Info("ledger purge scheduled", "cron", cfg.PurgeCron)
	return nil
}

// taskJob runs one task for the current date. Errors are logged; the next
// tick tries again.
func taskJob(ctx context.Context, runner TaskRunner, task scheduler.TaskType, logger *slog.Logger) func() {
	return func() {
		res, err := runner.Run(ctx, scheduler.TaskPayload{Task: task})
		switch {
		case errors.Is(err, scheduler.ErrLocked):
			logger.InfoContext(ctx, "scheduled task skipped, lock held", "task", string(task), "lock_id", res.LockID)
		case err != nil:
			logger.ErrorContext(ctx, "scheduled task failed", "task", string(task), "error", err)
		default:
			logger.InfoContext(ctx, "scheduled task complete", "task", string(task), "date", res.Date, "items", res.Items)
		}
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
