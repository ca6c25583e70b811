package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"iptvpanel/internal/types"
)

// Pacing and timeout defaults shared by every channel.
const (
	DefaultInterSendDelay = 300 * time.Millisecond
	DefaultSendTimeout    = 15 * time.Second
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pacer wraps a Dispatcher so consecutive sends on the channel are at least
// gap apart and every send is bounded by timeout. Sends through one Pacer
// are serialized.
type Pacer struct {
	next    Dispatcher
	gap     time.Duration
	timeout time.Duration

	now   func() time.Time
	sleep SleepFunc

	mu   sync.Mutex
	last time.Time
}

var _ Dispatcher = (*Pacer)(nil)

// PacerOption customizes a Pacer.
type PacerOption func(*Pacer)

// WithPacerClock overrides the time source and sleep used for pacing.
func WithPacerClock(now func() time.Time, sleep SleepFunc) PacerOption {
	return func(p *Pacer) {
		p.now = now
		p.sleep = sleep
	}
}

// NewPacer wraps next. A gap below DefaultInterSendDelay is raised to it and
// a non-positive timeout falls back to DefaultSendTimeout.
func NewPacer(next Dispatcher, gap, timeout time.Duration, opts ...PacerOption) *Pacer {
	if gap < DefaultInterSendDelay {
		gap = DefaultInterSendDelay
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	p := &Pacer{
		next:    next,
		gap:     gap,
		timeout: timeout,
		now:     time.Now,
		sleep:   Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Channel returns the wrapped dispatcher's channel.
func (p *Pacer) Channel() types.ChannelType { return p.next.Channel() }

// Send waits out the pacing gap, then delegates with a per-call deadline.
// A missing recipient fails immediately and does not consume a slot.
func (p *Pacer) Send(ctx context.Context, to Recipient, msg Message) Result {
	if strings.TrimSpace(to.Address) == "" {
		return Failure(ErrRecipientMissing)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.last.IsZero() {
		if wait := p.gap - p.now().Sub(p.last); wait > 0 {
			if err := p.sleep(ctx, wait); err != nil {
				return FailureFromError(err)
			}
		}
	}
	p.last = p.now()

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		done <- p.next.Send(callCtx, to, msg)
	}()

	select {
	case r := <-done:
		return r
	case <-callCtx.Done():
		return FailureFromError(callCtx.Err())
	}
}
