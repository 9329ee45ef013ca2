// Package engine implements the Engine Core: the single serialized event
// loop that owns the Order & Position Manager and dispatches every typed
// event to exactly one handler, in the order it was popped from the queue.
package engine

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/kestreltrading/engine-core/internal/events"
	"github.com/kestreltrading/engine-core/internal/orders"
	"github.com/kestreltrading/engine-core/pkg/types"
)

// Mode is the engine's data-source mode, set at startup and read-only
// thereafter.
type Mode string

const (
	ModeMock Mode = "mock"
	ModeLive Mode = "live"
)

// MarketDataHandler is the contract the Engine Core needs from whichever
// market-data adapter is wired in for the active Mode: subscribing to live
// ticks and requesting historical bars (spec.md §4.5). Mock mode leaves
// this unset; mock ticks arrive as TickEvents pushed directly onto the
// queue by internal/marketdata.MockHandler, not through this handle.
type MarketDataHandler interface {
	SubscribeToMarketData(ctx context.Context, topic string) error
	RequestHistoricalData(ctx context.Context, symbol, endDate, duration, barSize string) error
}

// ExecutionHandler is the contract the Engine Core needs from whichever
// execution adapter is wired in for the active Mode: placing orders
// (spec.md §4.6). It never reports a synchronous fill/rejection outcome —
// those arrive later as ExecutionReportEvent.
type ExecutionHandler interface {
	PlaceOrder(ctx context.Context, order types.Order) error
}

// Publisher is the contract the Engine Core needs from the Scripting
// Interface to fan event-loop outputs back out to subscribers.
type Publisher interface {
	PublishTick(tick types.Tick)
	PublishHistoricalBar(bar types.HistoricalBar)
}

// Core is the Engine Core of spec.md §4.3: it owns the Order & Position
// Manager, pops events off a single Queue one at a time, and dispatches
// each to its handler. There is exactly one goroutine running Run at a
// time; every other component only ever reaches the engine by pushing to
// its Queue.
type Core struct {
	logger zerolog.Logger
	mode   Mode

	queue             *events.Queue
	orderManager      *orders.Manager
	marketDataHandler MarketDataHandler
	executionHandler  ExecutionHandler
	publisher         Publisher

	running chan struct{}
}

// New creates an Engine Core in the given mode. The market-data handler,
// execution handler, and publisher may be nil at construction and wired in
// later via SetMarketDataHandler / SetExecutionHandler / SetPublisher — the
// original's EngineCore allows the same late binding for its market-data
// and execution handlers, held as two independent handles rather than one
// merged object (spec.md §4.5/§4.6 define them as separate contracts).
func New(mode Mode, queue *events.Queue, orderManager *orders.Manager, logger zerolog.Logger) *Core {
	return &Core{
		logger:       logger.With().Str("component", "engine_core").Logger(),
		mode:         mode,
		queue:        queue,
		orderManager: orderManager,
		running:      make(chan struct{}),
	}
}

// SetMarketDataHandler wires the adapter used to service SUBSCRIBE_REQUEST
// and HISTORICAL_DATA_REQUEST events.
func (c *Core) SetMarketDataHandler(handler MarketDataHandler) {
	c.marketDataHandler = handler
}

// SetExecutionHandler wires the adapter used to service ORDER_REQUEST
// events.
func (c *Core) SetExecutionHandler(handler ExecutionHandler) {
	c.executionHandler = handler
}

// SetPublisher wires the Scripting Interface used to fan out ticks and
// historical bars.
func (c *Core) SetPublisher(publisher Publisher) {
	c.publisher = publisher
}

// Mode returns the engine's data-source mode.
func (c *Core) Mode() Mode {
	return c.mode
}

// OrderManager exposes the Order & Position Manager for read-only queries
// from outside the event loop (e.g. tests or diagnostics reading positions).
func (c *Core) OrderManager() *orders.Manager {
	return c.orderManager
}

// PostEvent enqueues event for processing. Safe to call from any goroutine.
func (c *Core) PostEvent(event events.Event) {
	c.queue.Push(event)
}

// Stop requests the event loop to terminate by posting a ShutdownEvent.
// Run returns once the event currently at the head of the queue (if any)
// finishes processing and the shutdown event is reached.
func (c *Core) Stop() {
	c.PostEvent(events.NewShutdownEvent())
}

// Run is the Engine Core's serialized event loop: pop one event, dispatch
// it, repeat, until a ShutdownEvent is processed or ctx is canceled. It
// must be called from exactly one goroutine.
func (c *Core) Run(ctx context.Context) {
	defer close(c.running)

	c.logger.Info().Str("mode", string(c.mode)).Msg("engine core event loop starting")

	for {
		event, ok := c.queue.WaitPop(ctx)
		if !ok {
			c.logger.Info().Msg("engine core stopping: context canceled")
			return
		}
		if c.dispatch(ctx, event) {
			c.logger.Info().Msg("engine core has stopped")
			return
		}
	}
}

// Done returns a channel closed once Run has returned.
func (c *Core) Done() <-chan struct{} {
	return c.running
}

// dispatch handles a single event and reports whether the loop should
// terminate (true only for ShutdownEvent).
func (c *Core) dispatch(ctx context.Context, event events.Event) (shutdown bool) {
	switch e := event.(type) {
	case events.TickEvent:
		c.handleTick(e)

	case events.ShutdownEvent:
		return true

	case events.SubscribeRequestEvent:
		c.handleSubscribeRequest(ctx, e)

	case events.OrderRequestEvent:
		c.handleOrderRequest(ctx, e)

	case events.ExecutionReportEvent:
		c.orderManager.ApplyReport(e.Report)

	case events.NextValidIDEvent:
		c.orderManager.SetNextOrderID(e.NextID)

	case events.HistoricalDataRequestEvent:
		c.handleHistoricalDataRequest(ctx, e)

	case events.HistoricalBarEvent:
		c.handleHistoricalBar(e)

	default:
		c.logger.Warn().Str("kind", string(event.Kind())).Msg("received unhandled event type")
	}
	return false
}

func (c *Core) handleTick(e events.TickEvent) {
	if c.publisher == nil {
		return
	}
	c.publisher.PublishTick(e.Tick)
}

func (c *Core) handleSubscribeRequest(ctx context.Context, e events.SubscribeRequestEvent) {
	if c.marketDataHandler == nil {
		c.logger.Warn().Str("topic", e.Topic).Msg("received subscribe request but no market-data handler is set")
		return
	}
	if err := c.marketDataHandler.SubscribeToMarketData(ctx, e.Topic); err != nil {
		c.logger.Error().Err(err).Str("topic", e.Topic).Msg("subscribe request failed")
	}
}

func (c *Core) handleOrderRequest(ctx context.Context, e events.OrderRequestEvent) {
	c.logger.Info().
		Str("side", string(e.Order.Side)).
		Float64("quantity", e.Order.Quantity).
		Str("symbol", e.Order.Symbol).
		Msg("engine core processing order request")

	orderID, err := c.orderManager.Admit(e.Order)
	if err != nil {
		c.logger.Warn().Err(err).Str("symbol", e.Order.Symbol).Msg("order request rejected")
		return
	}

	if c.executionHandler == nil {
		c.logger.Warn().Uint64("order_id", orderID).Msg("execution handler is not available, order not sent")
		return
	}

	admitted := c.orderManager.Order(orderID)
	if err := c.executionHandler.PlaceOrder(ctx, admitted); err != nil {
		c.logger.Error().Err(err).Uint64("order_id", orderID).Msg("failed to place order with execution handler")
		return
	}
	c.logger.Info().Uint64("order_id", orderID).Msg("order sent to execution handler")
}

func (c *Core) handleHistoricalDataRequest(ctx context.Context, e events.HistoricalDataRequestEvent) {
	if c.marketDataHandler == nil {
		c.logger.Warn().Str("symbol", e.Symbol).Msg("market-data handler not available for history request")
		return
	}
	c.logger.Info().Str("symbol", e.Symbol).Msg("engine core forwarding history request")
	if err := c.marketDataHandler.RequestHistoricalData(ctx, e.Symbol, e.EndDate, e.Duration, e.BarSize); err != nil {
		c.logger.Error().Err(err).Str("symbol", e.Symbol).Msg("historical data request failed")
	}
}

func (c *Core) handleHistoricalBar(e events.HistoricalBarEvent) {
	c.logger.Info().
		Str("symbol", e.Bar.Symbol).
		Str("time", e.Bar.Time).
		Float64("close", e.Bar.Close).
		Msg("historical bar received")
	if c.publisher == nil {
		return
	}
	c.publisher.PublishHistoricalBar(e.Bar)
}
