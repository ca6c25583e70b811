package sms

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iptvpanel/internal/notifications/core"
	"iptvpanel/internal/types"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) With(args ...any) types.Logger { return nopLogger{} }

type fakeGateway struct {
	batches [][]string
	bodies  []string
	failOn  int
}

func (g *fakeGateway) SendBatch(_ context.Context, to []string, body string) (string, error) {
	g.batches = append(g.batches, append([]string(nil), to...))
	g.bodies = append(g.bodies, body)
	n := len(g.batches)
	if g.failOn == n {
		return "", types.NewAppError(types.ErrCodeUpstreamSMSGateway, "sms gateway rejected batch: invalid number", nil)
	}
	return fmt.Sprintf("batch-%d", n), nil
}

func TestDispatcher_Send(t *testing.T) {
	gw := &fakeGateway{}
	d := NewDispatcher(gw, 10, 0, nopLogger{})

	r := d.Send(context.Background(), core.Recipient{Address: " +447700900001 "}, core.Message{Body: "Your plan ends in 3 days"})

	require.True(t, r.OK(), r.Message())
	assert.Equal(t, "batch-1", r.Reference())
	assert.Equal(t, [][]string{{"+447700900001"}}, gw.batches)
	assert.Equal(t, []string{"Your plan ends in 3 days"}, gw.bodies)
	assert.Equal(t, types.ChannelSMS, d.Channel())
}

func TestDispatcher_Send_EmptyRecipient(t *testing.T) {
	gw := &fakeGateway{}
	d := NewDispatcher(gw, 10, 0, nopLogger{})

	r := d.Send(context.Background(), core.Recipient{}, core.Message{Body: "x"})

	require.False(t, r.OK())
	assert.Equal(t, core.ErrRecipientMissing, r.Message())
	assert.Empty(t, gw.batches)
}

func TestDispatcher_SendBatch_ChunksAndPaces(t *testing.T) {
	gw := &fakeGateway{}
	var sleeps []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	d := NewDispatcher(gw, 2, 500*time.Millisecond, nopLogger{}, WithSleepFunc(sleep))

	results := d.SendBatch(context.Background(), []string{"1", "2", "", "3", "4", "5"}, core.Message{Body: "hi"})

	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.OK())
	}
	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}, {"5"}}, gw.batches)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, sleeps)
}

func TestDispatcher_SendBatch_ChunkFailureDoesNotStopOthers(t *testing.T) {
	gw := &fakeGateway{failOn: 1}
	d := NewDispatcher(gw, 1, 0, nopLogger{}, WithSleepFunc(func(context.Context, time.Duration) error { return nil }))

	results := d.SendBatch(context.Background(), []string{"1", "2"}, core.Message{Body: "hi"})

	require.Len(t, results, 2)
	assert.False(t, results[0].OK())
	assert.Contains(t, results[0].Message(), "invalid number")
	assert.True(t, results[1].OK())
}

func TestDispatcher_SendBatch_CancelledBetweenChunks(t *testing.T) {
	gw := &fakeGateway{}
	d := NewDispatcher(gw, 1, 0, nopLogger{}, WithSleepFunc(func(context.Context, time.Duration) error {
		return context.Canceled
	}))

	results := d.SendBatch(context.Background(), []string{"1", "2", "3"}, core.Message{Body: "hi"})

	require.Len(t, results, 2)
	assert.True(t, results[0].OK())
	assert.False(t, results[1].OK())
	assert.Len(t, gw.batches, 1)
}

func TestNewDispatcher_Defaults(t *testing.T) {
	d := NewDispatcher(&fakeGateway{}, 0, time.Millisecond, nopLogger{})
	assert.Equal(t, DefaultMaxBatch, d.maxBatch)
	assert.Equal(t, core.DefaultInterSendDelay, d.delay)
	assert.Equal(t, "sms(max_batch=100, delay=300ms)", d.String())
}
