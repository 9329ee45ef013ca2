package marketdata

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

type fakeBroker struct {
	connected       bool
	requestedType   string
	subscribedTopic string
	historyArgs     []string
	connectErr      error
}

func (b *fakeBroker) Connect(_ context.Context) error {
	b.connected = true
	return b.connectErr
}

func (b *fakeBroker) Disconnect() error {
	b.connected = false
	return nil
}

func (b *fakeBroker) RequestMarketDataType(dataType string) error {
	b.requestedType = dataType
	return nil
}

func (b *fakeBroker) SubscribeToMarketData(topic string) error {
	b.subscribedTopic = topic
	return nil
}

func (b *fakeBroker) RequestHistoricalData(symbol, endDate, duration, barSize string) error {
	b.historyArgs = []string{symbol, endDate, duration, barSize}
	return nil
}

func TestLiveHandler_ConnectCompletesHandshakeAndRequestsDelayedData(t *testing.T) {
	broker := &fakeBroker{}
	queue := make(chan events.Event, 4)
	h := NewLiveHandler(broker, queue, zerolog.Nop())

	go func() {
		time.Sleep(10 * time.Millisecond)
		h.NotifyNextValidID(42)
	}()

	err := h.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, broker.connected)
	assert.Equal(t, "delayed", broker.requestedType)

	event := <-queue
	nextID, ok := event.(events.NextValidIDEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(42), nextID.NextID)
}

func TestLiveHandler_SubscribeAndHistoricalForwardToBroker(t *testing.T) {
	broker := &fakeBroker{}
	queue := make(chan events.Event, 4)
	h := NewLiveHandler(broker, queue, zerolog.Nop())

	require.NoError(t, h.SubscribeToMarketData(context.Background(), "AAPL"))
	assert.Equal(t, "AAPL", broker.subscribedTopic)

	require.NoError(t, h.RequestHistoricalData(context.Background(), "AAPL", "20260101", "1 Y", "1 day"))
	assert.Equal(t, []string{"AAPL", "20260101", "1 Y", "1 day"}, broker.historyArgs)
}

func TestLiveHandler_NotifyTickPostsToQueue(t *testing.T) {
	broker := &fakeBroker{}
	queue := make(chan events.Event, 4)
	h := NewLiveHandler(broker, queue, zerolog.Nop())

	h.NotifyTick(events.NewTickEvent(types.Tick{Symbol: "AAPL", Price: 150.0, Size: 10}))
	event := <-queue
	_, ok := event.(events.TickEvent)
	assert.True(t, ok)
}
