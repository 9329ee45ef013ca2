// Package orders implements the Order & Position Manager: the authoritative,
// in-memory store of orders and per-symbol net positions. Every mutating
// call is made exclusively from the Engine Core's goroutine; Order and
// Position may be called from any goroutine.
package orders

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/kestreltrading/engine-core/pkg/types"
)

// ErrUnknownOrder is logged (never returned, never fatal) when an execution
// report references an order id the Manager has never admitted.
var ErrUnknownOrder = errors.New("unknown order id")

// ErrExcessFill is logged (not returned to the caller — the update is still
// applied) when a report's cumulative fill would exceed the order quantity.
var ErrExcessFill = errors.New("fill exceeds order quantity")

// RiskChecker validates an order request against static risk limits before
// admission. A nil RiskChecker is valid — Manager skips the check.
type RiskChecker interface {
	Validate(order types.Order, currentPosition float64) error
}

// MetricsRecorder receives order-lifecycle observations. Implementations
// must tolerate concurrent calls. A nil MetricsRecorder is valid — Manager
// treats it as "no metrics wired" and skips recording.
type MetricsRecorder interface {
	OrderAdmitted(symbol, side string)
	OrderRejected(symbol string)
	OrderFilled(symbol, side string)
	ExecutionReportProcessed(status string)
	SetPosition(symbol string, value float64)
}

// Manager is the Order & Position Manager of spec.md §4.2.
type Manager struct {
	logger      zerolog.Logger
	recorder    MetricsRecorder
	riskChecker RiskChecker

	nextID atomic.Uint64

	mu        sync.RWMutex
	orders    map[uint64]types.Order
	positions map[string]float64
}

// NewManager creates an Order & Position Manager whose id counter starts
// at 1. recorder and riskChecker may be nil if not wired.
func NewManager(logger zerolog.Logger, recorder MetricsRecorder) *Manager {
	m := &Manager{
		logger:    logger.With().Str("component", "order_manager").Logger(),
		recorder:  recorder,
		orders:    make(map[uint64]types.Order),
		positions: make(map[string]float64),
	}
	m.nextID.Store(1)
	return m
}

// SetRiskChecker wires the static risk-limit checker consulted on Admit.
func (m *Manager) SetRiskChecker(checker RiskChecker) {
	m.riskChecker = checker
}

// Admit assigns the next monotonic id to order, stores it, and returns the
// id. It fails with types.ErrInvalidOrder (reported, not fatal) if quantity
// is not positive, symbol is empty, or a LIMIT order has no limit price.
func (m *Manager) Admit(order types.Order) (uint64, error) {
	if err := order.Validate(); err != nil {
		m.logger.Warn().
			Str("symbol", order.Symbol).
			Float64("quantity", order.Quantity).
			Msg("order rejected at admission: invalid order")
		if m.recorder != nil {
			m.recorder.OrderRejected(order.Symbol)
		}
		return 0, err
	}

	if m.riskChecker != nil {
		if err := m.riskChecker.Validate(order, m.Position(order.Symbol)); err != nil {
			m.logger.Warn().Err(err).Str("symbol", order.Symbol).Msg("order rejected by risk checker")
			if m.recorder != nil {
				m.recorder.OrderRejected(order.Symbol)
			}
			return 0, err
		}
	}

	id := m.nextID.Add(1) - 1
	order.OrderID = id
	order.Status = types.OrderStatusNew

	m.mu.Lock()
	m.orders[id] = order
	m.mu.Unlock()

	m.logger.Info().
		Uint64("order_id", id).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Float64("quantity", order.Quantity).
		Msg("order admitted")

	if m.recorder != nil {
		m.recorder.OrderAdmitted(order.Symbol, string(order.Side))
	}

	return id, nil
}

// ApplyReport locates the target order and updates its fill state, average
// fill price, status, and the symbol's net position. If the order id is
// unknown, the report is logged and ignored (non-fatal).
//
// A report with FillQuantity == 0 is treated as status-only: the new status
// is applied but no fill arithmetic or position change happens, per
// SPEC_FULL.md §4.2's resolution of the original's "zero-fill pollutes
// avg-price math" open question.
func (m *Manager) ApplyReport(report types.ExecutionReport) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[report.OrderID]
	if !ok {
		m.logger.Error().
			Err(ErrUnknownOrder).
			Uint64("order_id", report.OrderID).
			Msg("execution report for unknown order id")
		return
	}

	order.Status = report.NewStatus

	if m.recorder != nil {
		m.recorder.ExecutionReportProcessed(string(report.NewStatus))
	}

	if report.FillQuantity == 0 {
		m.orders[report.OrderID] = order
		return
	}

	if order.FilledQuantity+report.FillQuantity > order.Quantity {
		m.logger.Warn().
			Err(ErrExcessFill).
			Uint64("order_id", report.OrderID).
			Float64("filled", order.FilledQuantity).
			Float64("incoming", report.FillQuantity).
			Float64("quantity", order.Quantity).
			Msg("excess fill applied against order quantity")
	}

	oldTotalValue := order.AvgFillPrice * order.FilledQuantity
	newFillValue := report.FillPrice * report.FillQuantity
	order.FilledQuantity += report.FillQuantity
	if order.FilledQuantity > 0 {
		order.AvgFillPrice = (oldTotalValue + newFillValue) / order.FilledQuantity
	}

	if order.Side == types.SideBuy {
		m.positions[order.Symbol] += report.FillQuantity
	} else {
		m.positions[order.Symbol] -= report.FillQuantity
	}

	m.orders[report.OrderID] = order

	m.logger.Info().
		Uint64("order_id", report.OrderID).
		Str("status", string(order.Status)).
		Str("symbol", order.Symbol).
		Float64("position", m.positions[order.Symbol]).
		Msg("order updated from execution report")

	if m.recorder != nil {
		m.recorder.OrderFilled(order.Symbol, string(order.Side))
		m.recorder.SetPosition(order.Symbol, m.positions[order.Symbol])
	}
}

// Order returns a value snapshot of the order with the given id, or the
// zero value if it has never been admitted.
func (m *Manager) Order(id uint64) types.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.orders[id]
}

// Position returns the net signed quantity held for symbol, defaulting to 0.
func (m *Manager) Position(symbol string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.positions[symbol]
}

// SetNextOrderID seeds the monotonic id counter to max(current, n), used to
// align the local counter with an external broker's id space.
func (m *Manager) SetNextOrderID(n uint64) {
	for {
		current := m.nextID.Load()
		if n <= current {
			return
		}
		if m.nextID.CompareAndSwap(current, n) {
			m.logger.Info().Uint64("next_order_id", n).Msg("order id counter seeded")
			return
		}
	}
}
