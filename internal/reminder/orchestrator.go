package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"iptvpanel/internal/notifications/core"
	"iptvpanel/internal/types"
)

// Orchestrator runs the daily reminder sweep.
//
// Every dispatch attempt is written to the ledger, success or failure. Only
// a sent entry blocks its triple; a failed one is replaced by the next
// sweep's attempt, so a broken recipient is retried at most once per sweep
// day and never within the same run.
type Orchestrator struct {
	configs     ReminderConfigStore
	selector    *Selector
	ledger      *Ledger
	dispatchers map[types.ChannelType]core.Dispatcher
	metrics     core.SweepMetrics
	logger      *slog.Logger
	dateLayout  string
	now         func() time.Time

	mu   sync.RWMutex
	last *types.SweepReport
}

// Options configures an Orchestrator.
type Options struct {
	// DateLayout formats {expiry} in templates.
	DateLayout string
	Metrics    core.SweepMetrics
	Now        func() time.Time
}

// NewOrchestrator wires the sweep. Only configured channels should be
// present in dispatchers; a tenant using a missing one is a configuration
// error.
func NewOrchestrator(
	configs ReminderConfigStore,
	selector *Selector,
	ledger *Ledger,
	dispatchers []core.Dispatcher,
	logger *slog.Logger,
	opts Options,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = core.NopMetrics{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DateLayout == "" {
		opts.DateLayout = types.DateLayout
	}
	byChannel := make(map[types.ChannelType]core.Dispatcher, len(dispatchers))
	for _, d := range dispatchers {
		if d != nil {
			byChannel[d.Channel()] = d
		}
	}
	return &Orchestrator{
		configs:     configs,
		selector:    selector,
		ledger:      ledger,
		dispatchers: byChannel,
		metrics:     opts.Metrics,
		logger:      logger,
		dateLayout:  opts.DateLayout,
		now:         opts.Now,
	}
}

// Sweep runs one sweep for today and dispatches reminders.
func (o *Orchestrator) Sweep(ctx context.Context, today time.Time) (*types.SweepReport, error) {
	return o.sweep(ctx, today, false)
}

// DryRun selects and renders like Sweep but sends nothing and writes
// nothing. Would-be sends are counted as sent.
func (o *Orchestrator) DryRun(ctx context.Context, today time.Time) (*types.SweepReport, error) {
	return o.sweep(ctx, today, true)
}

// LastReport returns the most recent completed report, or nil.
func (o *Orchestrator) LastReport() *types.SweepReport {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.last
}

// errLedgerRead aborts the tenant like a selection failure; sending without
// a dedup answer could double-notify.
var errLedgerRead = errors.New("ledger lookup failed")

func (o *Orchestrator) sweep(ctx context.Context, today time.Time, dryRun bool) (*types.SweepReport, error) {
	sweepID := types.GetSweepID(ctx)
	if sweepID == "" {
		sweepID = uuid.NewString()
		ctx = types.WithSweepID(ctx, sweepID)
	}
	logger := o.logger.With("sweep_id", sweepID)
	if dryRun {
		logger = logger.With("dry_run", true)
	}

	started := o.now().UTC()
	report := &types.SweepReport{
		SweepID:   sweepID,
		Today:     types.DateOf(today),
		StartedAt: started,
		DryRun:    dryRun,
		ByChannel: make(map[types.ChannelType]types.Counters),
	}

	tenants, err := o.configs.ListEnabled(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load reminder configurations", "error", err)
		return nil, fmt.Errorf("loading reminder configurations: %w", err)
	}

	logger.InfoContext(ctx, "reminder sweep started",
		"today", report.Today.Format(types.DateLayout),
		"tenants", len(tenants),
	)

	for _, tr := range tenants {
		if !tr.Config.Enabled || !tr.Tenant.Capabilities.AutoReminders {
			continue
		}
		if err := ctx.Err(); err != nil {
			logger.WarnContext(ctx, "reminder sweep interrupted", "error", err)
			break
		}
		tenantReport := o.sweepTenant(ctx, logger.With("tenant_id", tr.Tenant.ID), tr, report, dryRun)
		report.Tenants = append(report.Tenants, tenantReport)
	}

	report.FinishedAt = o.now().UTC()
	o.metrics.RecordSweep(ctx, report, report.FinishedAt.Sub(started))

	o.mu.Lock()
	o.last = report
	o.mu.Unlock()

	logger.InfoContext(ctx, "reminder sweep complete",
		"sent", report.Totals.Sent,
		"skipped", report.Totals.Skipped,
		"failed", report.Totals.Failed,
		"config_errors", report.ConfigErrors,
		"selection_errors", report.SelectionErrors,
		"duration_ms", report.FinishedAt.Sub(started).Milliseconds(),
	)
	return report, nil
}

func (o *Orchestrator) sweepTenant(ctx context.Context, logger *slog.Logger, tr types.TenantReminder, report *types.SweepReport, dryRun bool) types.TenantReport {
	tenantReport := types.TenantReport{TenantID: tr.Tenant.ID}

	if err := o.checkChannels(tr); err != nil {
		tenantReport.ConfigError = err.Error()
		report.ConfigErrors++
		logger.WarnContext(ctx, "skipping tenant with invalid reminder configuration", "error", err)
		return tenantReport
	}

	for _, stage := range tr.Config.Stages() {
		candidates, err := o.selector.SelectCandidates(ctx, tr.Tenant, stage, report.Today)
		if err != nil {
			tenantReport.SelectError = err.Error()
			report.SelectionErrors++
			logger.ErrorContext(ctx, "candidate selection failed, skipping remaining stages",
				"stage", stage.String(),
				"error", err,
			)
			break
		}

		aborted := false
		for _, dev := range candidates {
			outcome, err := o.processCandidate(ctx, logger, tr, stage, dev, report, dryRun)
			if err != nil {
				tenantReport.SelectError = err.Error()
				report.SelectionErrors++
				logger.ErrorContext(ctx, "ledger unavailable, skipping remaining stages",
					"stage", stage.String(),
					"error", err,
				)
				aborted = true
				break
			}
			tenantReport.Counters.Add(outcome)
			report.Totals.Add(outcome)
			o.metrics.RecordOutcome(ctx, stage, outcome)
		}
		if aborted {
			break
		}
	}

	if !dryRun {
		if err := o.configs.TouchLastSweep(ctx, tr.Tenant.ID, o.now().UTC()); err != nil {
			logger.WarnContext(ctx, "failed to persist last sweep time", "error", err)
		}
	}

	return tenantReport
}

// checkChannels verifies that every channel the tenant configured is both
// permitted by its capabilities and available in this deployment.
func (o *Orchestrator) checkChannels(tr types.TenantReminder) error {
	if err := tr.Config.Validate(); err != nil {
		return err
	}
	for _, ch := range tr.Config.Channels {
		if !tr.Tenant.Capabilities.Allows(ch) {
			return types.NewAppError(types.ErrCodeConfigChannelForbidden,
				fmt.Sprintf("tenant is not permitted to use channel %s", ch), nil)
		}
		if _, ok := o.dispatchers[ch]; !ok {
			return types.NewAppError(types.ErrCodeConfigChannelUnavailable,
				fmt.Sprintf("channel %s is not configured", ch), nil)
		}
	}
	return nil
}

func (o *Orchestrator) processCandidate(
	ctx context.Context,
	logger *slog.Logger,
	tr types.TenantReminder,
	stage types.Stage,
	dev types.Device,
	report *types.SweepReport,
	dryRun bool,
) (types.Outcome, error) {
	hw := types.NormalizeHardwareID(dev.HardwareID)
	expiry := types.DateOf(dev.ExpiresOn)
	channels := tr.Config.Channels

	if hw == "" {
		logger.WarnContext(ctx, "candidate has no hardware id", "device_id", dev.ID, "stage", stage.String())
		countChannels(report, channels, types.OutcomeFailed)
		return types.OutcomeFailed, nil
	}

	notified, err := o.ledger.AlreadyNotified(ctx, hw, expiry, stage)
	if err != nil {
		return "", fmt.Errorf("%w for %s: %v", errLedgerRead, hw, err)
	}
	if notified {
		countChannels(report, channels, types.OutcomeSkipped)
		return types.OutcomeSkipped, nil
	}

	vars := VarsFor(dev, stage, tr.Tenant, o.dateLayout)
	// The ledger keeps the first channel's rendering.
	message := Render(tr.Config.Template(stage, channels[0]), vars)
	subject := Render(tr.Config.EmailSubject, vars)

	if dryRun {
		countChannels(report, channels, types.OutcomeSent)
		logger.InfoContext(ctx, "dry run: would send reminder",
			"hardware_id", hw,
			"stage", stage.String(),
			"channels", types.JoinChannels(channels),
		)
		return types.OutcomeSent, nil
	}

	results := make([]types.ChannelResult, 0, len(channels))
	var failures []string
	for _, ch := range channels {
		body := Render(tr.Config.Template(stage, ch), vars)
		res := o.dispatchers[ch].Send(ctx,
			core.Recipient{Address: dev.Recipient(ch), Name: dev.FullName},
			core.Message{Subject: subject, Body: body},
		)

		cr := types.ChannelResult{Channel: ch, Delivered: res.OK()}
		counters := report.ByChannel[ch]
		if res.OK() {
			cr.Reference = res.Reference()
			counters.Add(types.OutcomeSent)
			o.metrics.RecordDelivery(ctx, ch, core.MetricSuccess)
		} else {
			cr.Error = res.Message()
			failures = append(failures, string(ch)+": "+res.Message())
			counters.Add(types.OutcomeFailed)
			o.metrics.RecordDelivery(ctx, ch, core.MetricFailed)
		}
		report.ByChannel[ch] = counters
		results = append(results, cr)
	}

	outcome := types.OutcomeFailed
	for _, r := range results {
		if r.Delivered {
			outcome = types.OutcomeSent
			break
		}
	}

	entry := &types.LedgerEntry{
		HardwareID:  hw,
		ExpiryDate:  expiry,
		Stage:       stage,
		TenantID:    tr.Tenant.ID,
		AttemptedAt: o.now().UTC(),
		Outcome:     outcome,
		Message:     message,
		Channels:    results,
	}
	if outcome == types.OutcomeFailed {
		entry.Error = strings.Join(failures, "; ")
	}

	if err := o.ledger.Record(ctx, entry); err != nil {
		if IsDuplicate(err) {
			logger.InfoContext(ctx, "reminder already recorded by a concurrent sweep",
				"hardware_id", hw,
				"stage", stage.String(),
			)
			return types.OutcomeSkipped, nil
		}
		logger.ErrorContext(ctx, "failed to record reminder attempt",
			"hardware_id", hw,
			"stage", stage.String(),
			"outcome", string(outcome),
			"error", err,
		)
	}

	if outcome == types.OutcomeFailed {
		logger.WarnContext(ctx, "reminder delivery failed",
			"hardware_id", hw,
			"stage", stage.String(),
			"error", entry.Error,
		)
	}
	return outcome, nil
}

func countChannels(report *types.SweepReport, channels []types.ChannelType, o types.Outcome) {
	for _, ch := range channels {
		c := report.ByChannel[ch]
		c.Add(o)
		report.ByChannel[ch] = c
	}
}
