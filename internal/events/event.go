// Package events defines the typed event that flows through the engine's
// single serialized event stream, and the bounded queue that carries it.
package events

import (
	"time"

	"github.com/kestreltrading/engine-core/pkg/types"
)

// Kind is the tag of a typed Event.
type Kind string

const (
	KindTick                  Kind = "tick"
	KindOrderRequest          Kind = "order_request"
	KindExecutionReport       Kind = "execution_report"
	KindNextValidID           Kind = "next_valid_id"
	KindSubscribeRequest      Kind = "subscribe_request"
	KindHistoricalDataRequest Kind = "historical_data_request"
	KindHistoricalBar         Kind = "historical_bar"
	KindShutdown              Kind = "shutdown"
)

// Event is the base interface every typed event satisfies.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// base carries the fields common to every event, matching the teacher's
// BaseEvent embedding pattern.
type base struct {
	kind Kind
	at   time.Time
}

func (b base) Kind() Kind         { return b.kind }
func (b base) Timestamp() time.Time { return b.at }

// TickEvent carries a market-data tick into the queue.
type TickEvent struct {
	base
	Tick types.Tick
}

func NewTickEvent(tick types.Tick) TickEvent {
	return TickEvent{base: base{kind: KindTick, at: time.Now()}, Tick: tick}
}

// OrderRequestEvent carries a client order intent, not yet admitted.
type OrderRequestEvent struct {
	base
	Order types.Order
}

func NewOrderRequestEvent(order types.Order) OrderRequestEvent {
	return OrderRequestEvent{base: base{kind: KindOrderRequest, at: time.Now()}, Order: order}
}

// ExecutionReportEvent carries a broker execution report.
type ExecutionReportEvent struct {
	base
	Report types.ExecutionReport
}

func NewExecutionReportEvent(report types.ExecutionReport) ExecutionReportEvent {
	return ExecutionReportEvent{base: base{kind: KindExecutionReport, at: time.Now()}, Report: report}
}

// NextValidIDEvent seeds the Order Manager's id counter from the broker.
type NextValidIDEvent struct {
	base
	NextID uint64
}

func NewNextValidIDEvent(nextID uint64) NextValidIDEvent {
	return NextValidIDEvent{base: base{kind: KindNextValidID, at: time.Now()}, NextID: nextID}
}

// SubscribeRequestEvent asks the market-data adapter to subscribe to a topic.
type SubscribeRequestEvent struct {
	base
	Topic string
}

func NewSubscribeRequestEvent(topic string) SubscribeRequestEvent {
	return SubscribeRequestEvent{base: base{kind: KindSubscribeRequest, at: time.Now()}, Topic: topic}
}

// HistoricalDataRequestEvent asks the market-data adapter for historical bars.
type HistoricalDataRequestEvent struct {
	base
	Symbol   string
	EndDate  string
	Duration string
	BarSize  string
}

func NewHistoricalDataRequestEvent(symbol, endDate, duration, barSize string) HistoricalDataRequestEvent {
	return HistoricalDataRequestEvent{
		base:     base{kind: KindHistoricalDataRequest, at: time.Now()},
		Symbol:   symbol,
		EndDate:  endDate,
		Duration: duration,
		BarSize:  barSize,
	}
}

// HistoricalBarEvent carries a historical bar destined for publication.
type HistoricalBarEvent struct {
	base
	Bar types.HistoricalBar
}

func NewHistoricalBarEvent(bar types.HistoricalBar) HistoricalBarEvent {
	return HistoricalBarEvent{base: base{kind: KindHistoricalBar, at: time.Now()}, Bar: bar}
}

// ShutdownEvent is the sole event that terminates the event loop.
type ShutdownEvent struct {
	base
}

func NewShutdownEvent() ShutdownEvent {
	return ShutdownEvent{base: base{kind: KindShutdown, at: time.Now()}}
}
