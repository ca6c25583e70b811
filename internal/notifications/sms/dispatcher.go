// Package sms delivers reminders through a batch SMS gateway.
package sms

import (
	"context"
	"fmt"
	"strings"
	"time"

	"iptvpanel/internal/external"
	"iptvpanel/internal/notifications/core"
	"iptvpanel/internal/types"
)

// DefaultMaxBatch is the recipient cap per gateway call when none is set.
const DefaultMaxBatch = 100

// Dispatcher implements core.Dispatcher for the sms channel and exposes
// SendBatch for identical messages to many numbers.
type Dispatcher struct {
	gateway  external.SMSGateway
	maxBatch int
	delay    time.Duration
	sleep    core.SleepFunc
	logger   types.Logger
}

var _ core.Dispatcher = (*Dispatcher)(nil)

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithSleepFunc overrides the wait between batch chunks.
func WithSleepFunc(fn core.SleepFunc) Option {
	return func(d *Dispatcher) { d.sleep = fn }
}

// NewDispatcher creates an sms dispatcher. delay is the pause between
// consecutive chunks of one SendBatch call.
func NewDispatcher(gateway external.SMSGateway, maxBatch int, delay time.Duration, logger types.Logger, opts ...Option) *Dispatcher {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	if delay < core.DefaultInterSendDelay {
		delay = core.DefaultInterSendDelay
	}
	d := &Dispatcher{
		gateway:  gateway,
		maxBatch: maxBatch,
		delay:    delay,
		sleep:    core.Sleep,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Channel returns types.ChannelSMS.
func (d *Dispatcher) Channel() types.ChannelType { return types.ChannelSMS }

// Send delivers msg to a single number as a one-recipient batch.
func (d *Dispatcher) Send(ctx context.Context, to core.Recipient, msg core.Message) core.Result {
	results := d.SendBatch(ctx, []string{to.Address}, msg)
	return results[0]
}

// SendBatch delivers the same message to every number, splitting the list
// into chunks of at most maxBatch and pausing between chunks. It returns one
// result per chunk; blank numbers are dropped first and an all-blank list
// yields a single recipient-missing failure.
func (d *Dispatcher) SendBatch(ctx context.Context, numbers []string, msg core.Message) []core.Result {
	var clean []string
	for _, n := range numbers {
		if n = strings.TrimSpace(n); n != "" {
			clean = append(clean, n)
		}
	}
	if len(clean) == 0 {
		return []core.Result{core.Failure(core.ErrRecipientMissing)}
	}

	var results []core.Result
	for start := 0; start < len(clean); start += d.maxBatch {
		if start > 0 {
			if err := d.sleep(ctx, d.delay); err != nil {
				results = append(results, core.FailureFromError(err))
				break
			}
		}
		end := min(start+d.maxBatch, len(clean))
		chunk := clean[start:end]

		id, err := d.gateway.SendBatch(ctx, chunk, msg.Body)
		if err != nil {
			d.logger.Warn("sms batch failed",
				"recipients", len(chunk),
				"first", core.RedactAddress(types.ChannelSMS, chunk[0]),
				"error", err.Error(),
			)
			results = append(results, core.FailureFromError(err))
			continue
		}
		results = append(results, core.Success(id))
	}
	return results
}

// String describes the dispatcher for startup logs.
func (d *Dispatcher) String() string {
	return fmt.Sprintf("sms(max_batch=%d, delay=%s)", d.maxBatch, d.delay)
}
