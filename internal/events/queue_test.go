package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestreltrading/engine-core/internal/events"
	"github.com/kestreltrading/engine-core/pkg/types"
)

func TestQueue_PushWaitPopFIFO(t *testing.T) {
	q := events.NewQueue(4, zerolog.Nop(), nil)

	q.Push(events.NewTickEvent(types.Tick{Symbol: "AAPL"}))
	q.Push(events.NewTickEvent(types.Tick{Symbol: "MSFT"}))

	ctx := context.Background()
	first, ok := q.WaitPop(ctx)
	require.True(t, ok)
	assert.Equal(t, "AAPL", first.(events.TickEvent).Tick.Symbol)

	second, ok := q.WaitPop(ctx)
	require.True(t, ok)
	assert.Equal(t, "MSFT", second.(events.TickEvent).Tick.Symbol)
}

func TestQueue_TryPopOnEmptyQueue(t *testing.T) {
	q := events.NewQueue(1, zerolog.Nop(), nil)

	_, ok := q.TryPop()
	assert.False(t, ok)

	q.Push(events.NewShutdownEvent())
	event, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, events.KindShutdown, event.Kind())
}

func TestQueue_WaitPopUnblocksOnContextCancel(t *testing.T) {
	q := events.NewQueue(1, zerolog.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := q.WaitPop(ctx)
		done <- ok
	}()

	cancel()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("WaitPop did not unblock on context cancellation")
	}
}

func TestQueue_MetricsTrackPushPop(t *testing.T) {
	q := events.NewQueue(4, zerolog.Nop(), nil)
	q.Push(events.NewShutdownEvent())
	q.Push(events.NewShutdownEvent())

	_, _ = q.TryPop()

	pushed, popped := q.Metrics()
	assert.Equal(t, int64(2), pushed)
	assert.Equal(t, int64(1), popped)
}

func TestQueue_DepthReflectsBufferedEvents(t *testing.T) {
	q := events.NewQueue(4, zerolog.Nop(), nil)
	assert.Equal(t, 0, q.Depth())

	q.Push(events.NewShutdownEvent())
	assert.Equal(t, 1, q.Depth())
}

func TestQueue_PushAfterCloseIsDroppedNotPanicked(t *testing.T) {
	q := events.NewQueue(1, zerolog.Nop(), nil)
	q.Close()

	assert.NotPanics(t, func() {
		q.Push(events.NewShutdownEvent())
	})
	assert.Equal(t, 0, q.Depth())
}
