// Package core provides the shared delivery infrastructure used by every
// reminder channel (stb, sms, chatbot, email): the tagged delivery result,
// the dispatcher contract, per-channel pacing, and sweep telemetry sinks.
package core

import (
	"context"
	"errors"
	"time"

	"iptvpanel/internal/types"
)

// Recipient is the channel-specific address a reminder is delivered to.
// For stb it is the hardware id, for sms a phone number, for chatbot a chat
// id or handle, and for email a mailbox.
type Recipient struct {
	Address string
	Name    string
}

// Message is a rendered reminder. Subject is only used by email.
type Message struct {
	Subject string
	Body    string
}

// Result is the outcome of a single delivery. It is either a success
// carrying the provider reference or a failure carrying a human readable
// reason; the zero value is a failure with an empty reason.
type Result struct {
	ok        bool
	reference string
	message   string
}

// Success builds a delivered result.
func Success(reference string) Result {
	return Result{ok: true, reference: reference}
}

// Failure builds a failed result.
func Failure(message string) Result {
	if message == "" {
		message = "delivery failed"
	}
	return Result{message: message}
}

// FailureFromError converts a transport error into a failed result. Context
// deadlines are reported as timeouts so the ledger text is stable.
func FailureFromError(err error) Result {
	if err == nil {
		return Failure("")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Failure("timed out")
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return Failure(appErr.Message)
	}
	return Failure(err.Error())
}

// OK reports whether the delivery succeeded.
func (r Result) OK() bool { return r.ok }

// Reference returns the provider reference of a successful delivery.
func (r Result) Reference() string { return r.reference }

// Message returns the failure reason, or "" on success.
func (r Result) Message() string {
	if r.ok {
		return ""
	}
	if r.message == "" {
		return "delivery failed"
	}
	return r.message
}

// Err returns the failure as an error, or nil on success.
func (r Result) Err() error {
	if r.ok {
		return nil
	}
	return errors.New(r.Message())
}

// Dispatcher delivers a rendered reminder over one channel. Implementations
// never return an error: every outcome, including timeouts and missing
// recipients, is folded into the Result.
type Dispatcher interface {
	Channel() types.ChannelType
	Send(ctx context.Context, to Recipient, msg Message) Result
}

// ErrRecipientMissing is the failure text used when a device has no address
// on file for a channel.
const ErrRecipientMissing = "recipient missing"

// MetricResult categorizes a delivery outcome for metrics reporting.
type MetricResult string

const (
	MetricSuccess MetricResult = "success"
	MetricFailed  MetricResult = "failed"
	MetricSkipped MetricResult = "skipped"
)

// ResultOf maps a ledger outcome onto its metric dimension.
func ResultOf(o types.Outcome) MetricResult {
	switch o {
	case types.OutcomeSent:
		return MetricSuccess
	case types.OutcomeSkipped:
		return MetricSkipped
	}
	return MetricFailed
}

// SweepMetrics abstracts CloudWatch/telemetry operations for the reminder
// sweep.
type SweepMetrics interface {
	RecordDelivery(ctx context.Context, channel types.ChannelType, result MetricResult)
	RecordOutcome(ctx context.Context, stage types.Stage, outcome types.Outcome)
	RecordSweep(ctx context.Context, report *types.SweepReport, duration time.Duration)
}

// NopMetrics discards every metric. It is used when CloudWatch is disabled.
type NopMetrics struct{}

func (NopMetrics) RecordDelivery(context.Context, types.ChannelType, MetricResult) {}
func (NopMetrics) RecordOutcome(context.Context, types.Stage, types.Outcome)       {}
func (NopMetrics) RecordSweep(context.Context, *types.SweepReport, time.Duration)  {}
