package execution_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestreltrading/engine-core/internal/execution"
	"github.com/kestreltrading/engine-core/pkg/types"
)

type fakeBrokerClient struct {
	placed []types.Order
	err    error
}

func (b *fakeBrokerClient) PlaceOrder(_ context.Context, order types.Order) error {
	b.placed = append(b.placed, order)
	return b.err
}

func TestLiveHandler_PlaceOrderForwardsToBroker(t *testing.T) {
	broker := &fakeBrokerClient{}
	handler := execution.NewLiveHandler(broker, zerolog.Nop())

	order := types.Order{OrderID: 7, Symbol: "AAPL", Side: types.SideBuy, Quantity: 10}
	require.NoError(t, handler.PlaceOrder(context.Background(), order))

	require.Len(t, broker.placed, 1)
	assert.Equal(t, order, broker.placed[0])
}

func TestLiveHandler_PlaceOrderReturnsTransportError(t *testing.T) {
	broker := &fakeBrokerClient{err: errors.New("connection refused")}
	handler := execution.NewLiveHandler(broker, zerolog.Nop())

	err := handler.PlaceOrder(context.Background(), types.Order{OrderID: 1, Symbol: "AAPL", Quantity: 1})
	assert.Error(t, err)
}
