// Package metrics exposes the engine's Prometheus instrumentation:
// queue throughput, order lifecycle counters, position gauges, and
// request counters for the scripting interface's two websocket endpoints.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EngineMetrics holds every Prometheus metric this engine registers.
type EngineMetrics struct {
	EventsPublished *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	QueueDepth      prometheus.Gauge

	OrdersAdmitted  *prometheus.CounterVec
	OrdersRejected  *prometheus.CounterVec
	OrdersFilled    *prometheus.CounterVec
	ExecutionReport *prometheus.CounterVec

	Position *prometheus.GaugeVec

	ScriptingRequestsTotal   *prometheus.CounterVec
	ScriptingRequestDuration *prometheus.HistogramVec
}

// New creates and registers the engine's metrics under namespace.
func New(namespace string) *EngineMetrics {
	if namespace == "" {
		namespace = "engine_core"
	}

	return &EngineMetrics{
		EventsPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Total number of events pushed onto the event queue.",
			},
			[]string{"kind"},
		),
		EventsDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Total number of events dropped because the queue was closed.",
			},
			[]string{"kind"},
		),
		QueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Current number of events buffered in the event queue.",
			},
		),
		OrdersAdmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_admitted_total",
				Help:      "Total number of orders admitted by the Order Manager.",
			},
			[]string{"symbol", "side"},
		),
		OrdersRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_rejected_total",
				Help:      "Total number of orders rejected at admission.",
			},
			[]string{"symbol"},
		),
		OrdersFilled: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_filled_total",
				Help:      "Total number of fills applied to admitted orders.",
			},
			[]string{"symbol", "side"},
		),
		ExecutionReport: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "execution_reports_total",
				Help:      "Total number of execution reports processed, by outcome.",
			},
			[]string{"status"},
		),
		Position: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "position",
				Help:      "Current net signed position per symbol.",
			},
			[]string{"symbol"},
		),
		ScriptingRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scripting_requests_total",
				Help:      "Total number of connection attempts to a Scripting Interface endpoint, by endpoint and upgrade outcome.",
			},
			[]string{"endpoint", "status"},
		),
		ScriptingRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scripting_connection_duration_seconds",
				Help:      "Time from request to websocket upgrade completing (or failing) for a Scripting Interface endpoint.",
			},
			[]string{"endpoint"},
		),
	}
}

// WrapScriptingEndpoint instruments next, one of the Scripting Interface's
// publish or subscribe websocket handlers, recording the upgrade outcome
// and how long the upgrade took under endpoint ("publish" or "subscribe").
// Unlike a generic REST middleware, it has nothing to report once the
// connection is upgraded: everything that happens on the socket afterward
// is covered by the engine's own event and order counters.
func (m *EngineMetrics) WrapScriptingEndpoint(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusSwitchingProtocols}
		next.ServeHTTP(wrapped, r)

		m.ScriptingRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		m.ScriptingRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(wrapped.statusCode)).Inc()
	}
}

// statusRecorder captures the status code a handler wrote, defaulting to
// 101 Switching Protocols since a successful websocket upgrade never calls
// WriteHeader itself.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.statusCode = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack passes the websocket upgrader's hijack through to the wrapped
// ResponseWriter.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying ResponseWriter does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

// EventPublished implements internal/events.MetricsRecorder.
func (m *EngineMetrics) EventPublished(kind string) {
	m.EventsPublished.WithLabelValues(kind).Inc()
}

// EventDropped implements internal/events.MetricsRecorder.
func (m *EngineMetrics) EventDropped(kind string) {
	m.EventsDropped.WithLabelValues(kind).Inc()
}

// SetQueueDepth implements internal/events.MetricsRecorder.
func (m *EngineMetrics) SetQueueDepth(depth float64) {
	m.QueueDepth.Set(depth)
}

// OrderAdmitted implements internal/orders.MetricsRecorder.
func (m *EngineMetrics) OrderAdmitted(symbol, side string) {
	m.OrdersAdmitted.WithLabelValues(symbol, side).Inc()
}

// OrderRejected implements internal/orders.MetricsRecorder.
func (m *EngineMetrics) OrderRejected(symbol string) {
	m.OrdersRejected.WithLabelValues(symbol).Inc()
}

// OrderFilled implements internal/orders.MetricsRecorder.
func (m *EngineMetrics) OrderFilled(symbol, side string) {
	m.OrdersFilled.WithLabelValues(symbol, side).Inc()
}

// ExecutionReportProcessed implements internal/orders.MetricsRecorder.
func (m *EngineMetrics) ExecutionReportProcessed(status string) {
	m.ExecutionReport.WithLabelValues(status).Inc()
}

// SetPosition implements internal/orders.MetricsRecorder.
func (m *EngineMetrics) SetPosition(symbol string, value float64) {
	m.Position.WithLabelValues(symbol).Set(value)
}
