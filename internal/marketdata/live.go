package marketdata

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kestreltrading/engine-core/internal/engine"
	"github.com/kestreltrading/engine-core/internal/events"
)

// LiveHandler implements engine.MarketDataHandler so it can be wired
// directly into Core.SetMarketDataHandler.
var _ engine.MarketDataHandler = (*LiveHandler)(nil)

// ErrHandshakeTimeout is returned by Connect when the broker's next-valid-id
// callback does not arrive within the handshake window.
var ErrHandshakeTimeout = errors.New("broker handshake timed out waiting for next valid id")

const handshakeTimeout = 10 * time.Second

// marketDataType identifies delayed vs real-time market data; this system
// only ever requests the delayed feed.
const marketDataType = "delayed"

// BrokerClient is the wire-level adapter to a live brokerage gateway. It is
// intentionally out of scope for this repository: any implementation that
// satisfies this contract (e.g. an IBKR TWS API client) can be wired in.
// The implementation reports handshake and market-data callbacks through
// LiveHandler's Notify* methods; NotifyNextValidID releases the handshake
// wait in LiveHandler.Connect.
type BrokerClient interface {
	Connect(ctx context.Context) error
	Disconnect() error
	RequestMarketDataType(dataType string) error
	SubscribeToMarketData(topic string) error
	RequestHistoricalData(symbol, endDate, duration, barSize string) error
}

// LiveHandler adapts a BrokerClient to the Market-Data Handler contract,
// translating broker callbacks into Events posted onto the Engine Core's
// queue.
type LiveHandler struct {
	logger zerolog.Logger
	broker BrokerClient
	queue  chan<- events.Event

	handshaked atomic.Bool
	nextIDCh   chan uint64
}

// NewLiveHandler creates a Live Market-Data Handler wrapping broker. queue
// is the send-only side of the Engine Core's event queue.
func NewLiveHandler(broker BrokerClient, queue chan<- events.Event, logger zerolog.Logger) *LiveHandler {
	return &LiveHandler{
		logger:   logger.With().Str("component", "live_market_data_handler").Logger(),
		broker:   broker,
		queue:    queue,
		nextIDCh: make(chan uint64, 1),
	}
}

// Connect opens the broker connection and blocks until the broker's
// next-valid-id handshake callback arrives (via NotifyNextValidID) or
// handshakeTimeout elapses, whichever is first. Once handshaked, it
// requests the delayed market data type.
func (h *LiveHandler) Connect(ctx context.Context) error {
	if err := h.broker.Connect(ctx); err != nil {
		return err
	}

	select {
	case nextID := <-h.nextIDCh:
		h.handshaked.Store(true)
		h.queue <- events.NewNextValidIDEvent(nextID)
	case <-time.After(handshakeTimeout):
		h.logger.Error().Msg("broker handshake timed out waiting for next valid id")
		return ErrHandshakeTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := h.broker.RequestMarketDataType(marketDataType); err != nil {
		h.logger.Error().Err(err).Msg("failed to request delayed market data type")
		return err
	}

	h.logger.Info().Msg("live market data handler connected and handshaked")
	return nil
}

// Disconnect closes the broker connection.
func (h *LiveHandler) Disconnect() error {
	return h.broker.Disconnect()
}

// SubscribeToMarketData forwards a subscribe request to the broker client.
// It implements engine.MarketDataHandler so a *LiveHandler can be wired
// into Core.SetMarketDataHandler directly.
func (h *LiveHandler) SubscribeToMarketData(_ context.Context, topic string) error {
	return h.broker.SubscribeToMarketData(topic)
}

// RequestHistoricalData forwards a historical data request to the broker
// client; resulting bars arrive later via NotifyHistoricalBar. It
// implements engine.MarketDataHandler.
func (h *LiveHandler) RequestHistoricalData(_ context.Context, symbol, endDate, duration, barSize string) error {
	return h.broker.RequestHistoricalData(symbol, endDate, duration, barSize)
}

// NotifyNextValidID is called by the BrokerClient implementation when its
// next-valid-id callback fires, unblocking Connect's handshake wait.
func (h *LiveHandler) NotifyNextValidID(id uint64) {
	select {
	case h.nextIDCh <- id:
	default:
	}
}

// NotifyTick is called by the BrokerClient implementation for each
// market-data tick it receives, posting it onto the event queue.
func (h *LiveHandler) NotifyTick(tick events.TickEvent) {
	h.queue <- tick
}

// NotifyExecutionReport is called by the BrokerClient implementation for
// each execution report it receives. The broker protocol carries no report
// identifier of its own, so LiveHandler mints one here before the report
// enters the event loop.
func (h *LiveHandler) NotifyExecutionReport(report events.ExecutionReportEvent) {
	if report.Report.ReportID == "" {
		report.Report.ReportID = uuid.NewString()
	}
	h.queue <- report
}

// NotifyHistoricalBar is called by the BrokerClient implementation for
// each historical bar it receives.
func (h *LiveHandler) NotifyHistoricalBar(bar events.HistoricalBarEvent) {
	h.queue <- bar
}
