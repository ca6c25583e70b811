// Package main is the entrypoint for the reminder-worker Lambda function.
//
// EventBridge rules invoke it with a JSON task payload:
//
//	{"task": "reminder_sweep"}
//	{"task": "purge_ledger", "reference_date": "2026-03-01"}
//
// The handler hands the payload to the task runner, which takes the day's
// job lock, records job history and dispatches. A lock held by another
// invocation is a normal outcome, not a failure, so EventBridge does not
// retry it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"iptvpanel/internal/app"
	"iptvpanel/internal/config"
	"iptvpanel/internal/scheduler"
)

// TaskRunner executes one task payload.
type TaskRunner interface {
	Run(ctx context.Context, p scheduler.TaskPayload) (*scheduler.RunResult, error)
}

// Handler holds the dependencies for the Lambda handler function.
type Handler struct {
	Runner TaskRunner
	Logger *slog.Logger
}

// Handle runs the task and returns a one-line summary for the invocation log.
func (h *Handler) Handle(ctx context.Context, payload scheduler.TaskPayload) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if payload.Task == "" {
		return "", fmt.Errorf("empty task type in payload")
	}
	logger.InfoContext(ctx, "reminder worker invoked",
		"task", string(payload.Task),
		"reference_date", payload.ReferenceDate,
		"dry_run", payload.DryRun,
	)

	res, err := h.Runner.Run(ctx, payload)
	if errors.Is(err, scheduler.ErrLocked) {
		return fmt.Sprintf("skipped: lock %s held by another worker", res.LockID), nil
	}
	if err != nil {
		logger.ErrorContext(ctx, "task execution failed", "task", string(payload.Task), "error", err)
		return "", fmt.Errorf("task %s failed: %w", payload.Task, err)
	}

	result := fmt.Sprintf("task %s complete for %s: %d items processed", res.Task, res.Date, res.Items)
	logger.InfoContext(ctx, result, "task", string(res.Task), "items", res.Items)
	return result, nil
}

func main() {
	cfg, err := config.LoadConfig(config.NewFileSecretProvider())
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("reminder worker initializing (cold start)",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	// The store and channel clients are reused across warm invocations.
	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize reminder engine", "error", err)
		os.Exit(1)
	}

	handler := &Handler{Runner: a.Runner, Logger: logger}

	// Local mode: read one payload from stdin instead of starting the
	// Lambda runtime.
	if cfg.Environment == "local" {
		err := runLocal(context.Background(), handler, os.Stdin)
		a.Close()
		if err != nil {
			logger.Error("local invocation failed", "error", err)
			os.Exit(1)
		}
		return
	}

	lambda.Start(handler.Handle)
}

func runLocal(ctx context.Context, h *Handler, r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	var payload scheduler.TaskPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	result, err := h.Handle(ctx, payload)
	if err != nil {
		return err
	}
	h.Logger.Info("local invocation completed", "result", result)
	return nil
}
