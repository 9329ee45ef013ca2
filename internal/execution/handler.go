// Package execution implements the Execution Handler contract of
// spec.md §4.6: a single capability to place an already-admitted order
// with a broker, with fill outcomes arriving later as ExecutionReport
// events on the Engine Core's queue, never as PlaceOrder's return value.
package execution

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/kestreltrading/engine-core/internal/engine"
	"github.com/kestreltrading/engine-core/pkg/types"
)

// LiveHandler implements engine.ExecutionHandler so it can be wired
// directly into Core.SetExecutionHandler.
var _ engine.ExecutionHandler = (*LiveHandler)(nil)

// BrokerClient is the subset of a live brokerage gateway LiveHandler
// needs to submit orders. Any adapter satisfying this (e.g. an IBKR TWS
// API client) can be wired in; this repository treats the wire-level
// implementation as out of scope.
type BrokerClient interface {
	PlaceOrder(ctx context.Context, order types.Order) error
}

// LiveHandler adapts a BrokerClient to the Execution Handler contract.
type LiveHandler struct {
	logger zerolog.Logger
	broker BrokerClient
}

// NewLiveHandler creates a Live Execution Handler wrapping broker.
func NewLiveHandler(broker BrokerClient, logger zerolog.Logger) *LiveHandler {
	return &LiveHandler{
		logger: logger.With().Str("component", "live_execution_handler").Logger(),
		broker: broker,
	}
}

// PlaceOrder hands order to the broker client. A non-nil error here
// reports a synchronous transport failure (e.g. the broker connection is
// down) — it never represents a rejection or fill, which arrive
// asynchronously as ExecutionReport events.
func (h *LiveHandler) PlaceOrder(ctx context.Context, order types.Order) error {
	if err := h.broker.PlaceOrder(ctx, order); err != nil {
		h.logger.Error().Err(err).Uint64("order_id", order.OrderID).Msg("failed to place order with broker")
		return err
	}
	h.logger.Info().Uint64("order_id", order.OrderID).Str("symbol", order.Symbol).Msg("order placed with broker")
	return nil
}
