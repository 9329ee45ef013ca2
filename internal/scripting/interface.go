// Package scripting implements the Scripting Interface: the websocket
// messaging boundary between the engine and external script clients. It
// publishes ticks and historical bars as they arrive from the Engine Core,
// and translates inbound commands into Events posted back onto the queue.
package scripting

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/kestreltrading/engine-core/internal/events"
	"github.com/kestreltrading/engine-core/pkg/types"
)

// Topic prefixes and literal command topics of the wire protocol.
const (
	topicTickPrefix    = "TICK."
	topicHistoryPrefix = "HISTORY."

	cmdSubscribe      = "SUBSCRIBE"
	cmdCreateOrder    = "CREATE_ORDER"
	cmdRequestHistory = "REQUEST_HISTORY"
	cmdMock           = "MOCK"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// tickPayload is the outbound wire shape for a Tick, matching the
// nested data/timestamp envelope of the original feed.
type tickPayload struct {
	Timestamp string `json:"timestamp"`
	Data      struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
		Size   float64 `json:"size"`
	} `json:"data"`
}

// MockFeedStarter is implemented by the mock market-data handler; the
// Scripting Interface calls it when a MOCK command arrives while the
// engine is running in mock mode.
type MockFeedStarter interface {
	StartDataFeed()
}

// Interface is the Scripting Interface of spec.md §4.4: a publish side
// (ticks, historical bars) and a subscribe side (inbound commands),
// carried over two independent websocket endpoints using the two-frame
// topic+JSON protocol.
type Interface struct {
	logger zerolog.Logger

	queue    chan<- events.Event
	mockMode bool
	mockFeed MockFeedStarter

	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[*publishClient]bool

	wg sync.WaitGroup
}

// publishClient is one websocket connection on the publish side. id
// identifies the connection in logs across its connect/disconnect
// lifetime; it has no meaning on the wire.
type publishClient struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan [2][]byte
}

// New creates a Scripting Interface. queue is the send-only side of the
// Engine Core's event queue: commands parsed off the subscribe socket are
// posted there, never dispatched directly, so the Engine Core's goroutine
// remains the sole mutator of engine state.
func New(queue chan<- events.Event, mockMode bool, logger zerolog.Logger) *Interface {
	return &Interface{
		logger:   logger.With().Str("component", "scripting_interface").Logger(),
		queue:    queue,
		mockMode: mockMode,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*publishClient]bool),
	}
}

// SetMockFeedStarter wires the mock market-data handler's start trigger,
// invoked when a MOCK command is received in mock mode.
func (i *Interface) SetMockFeedStarter(starter MockFeedStarter) {
	i.mockFeed = starter
}

// PublishHandler upgrades a client onto the publish (data) endpoint.
func (i *Interface) PublishHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := i.upgrader.Upgrade(w, r, nil)
	if err != nil {
		i.logger.Error().Err(err).Msg("failed to upgrade publish connection")
		return
	}

	client := &publishClient{id: uuid.New(), conn: conn, send: make(chan [2][]byte, 256)}
	i.registerClient(client)
	i.logger.Info().Str("client_id", client.id.String()).Msg("scripting publish client connected")

	i.wg.Add(1)
	go i.writePump(client)
}

// SubscribeHandler upgrades a client onto the subscribe (command) endpoint.
// It returns once the upgrade is done, leaving a goroutine that reads frame
// pairs from this one connection until it closes or ctx is canceled.
func (i *Interface) SubscribeHandler(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := i.upgrader.Upgrade(w, r, nil)
		if err != nil {
			i.logger.Error().Err(err).Msg("failed to upgrade subscribe connection")
			return
		}
		i.logger.Info().Msg("scripting subscribe client connected")

		i.wg.Add(1)
		go i.readCommands(ctx, conn)
	}
}

// readCommands consumes topic+payload frame pairs from conn until it
// closes or ctx cancels, translating each into a posted Event.
func (i *Interface) readCommands(ctx context.Context, conn *websocket.Conn) {
	defer i.wg.Done()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go func() {
		<-ctx.Done()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage, []byte{})
		conn.Close()
	}()

	for {
		_, topicFrame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				i.logger.Error().Err(err).Msg("scripting subscribe read error")
			}
			return
		}
		topic := string(topicFrame)

		if i.mockMode && topic == cmdMock {
			i.logger.Info().Msg("start signal received, beginning data feed")
			if i.mockFeed != nil {
				i.mockFeed.StartDataFeed()
			}
			continue
		}

		if topic != cmdSubscribe && topic != cmdCreateOrder && topic != cmdRequestHistory {
			i.logger.Warn().Str("topic", topic).Msg("received unknown command topic")
			continue
		}

		_, payloadFrame, err := conn.ReadMessage()
		if err != nil {
			i.logger.Error().Err(err).Str("topic", topic).Msg("command topic received without a payload frame")
			return
		}

		i.handleCommand(topic, payloadFrame)
	}
}

func (i *Interface) handleCommand(topic string, payload []byte) {
	if !gjson.ValidBytes(payload) {
		i.logger.Error().Str("topic", topic).Msg("failed to parse command payload: invalid JSON")
		return
	}
	result := gjson.ParseBytes(payload)

	switch topic {
	case cmdSubscribe:
		i.handleSubscribe(result)
	case cmdCreateOrder:
		i.handleCreateOrder(result)
	case cmdRequestHistory:
		i.handleRequestHistory(result)
	}
}

func (i *Interface) handleSubscribe(payload gjson.Result) {
	dataTopic := payload.Get("topic")
	if !dataTopic.Exists() || dataTopic.String() == "" {
		i.logger.Error().Msg("could not parse SUBSCRIBE payload: missing topic")
		return
	}
	i.queue <- events.NewSubscribeRequestEvent(dataTopic.String())
	i.logger.Info().Str("topic", dataTopic.String()).Msg("received SUBSCRIBE request")
}

// handleCreateOrder accepts the payload either nested under "payload" or
// flattened at the message root, matching the original parser's fallback.
func (i *Interface) handleCreateOrder(root gjson.Result) {
	payload := root
	if nested := root.Get("payload"); nested.Exists() {
		payload = nested
	}

	symbol := payload.Get("symbol").String()
	sideStr := payload.Get("side").String()
	typeStr := payload.Get("order_type").String()
	quantity := payload.Get("quantity").Float()

	if symbol == "" || sideStr == "" || typeStr == "" {
		i.logger.Error().Msg("failed to parse CREATE_ORDER: missing required field")
		return
	}

	var side types.Side
	switch sideStr {
	case "BUY":
		side = types.SideBuy
	case "SELL":
		side = types.SideSell
	default:
		i.logger.Error().Str("side", sideStr).Msg("failed to parse CREATE_ORDER: unknown side")
		return
	}

	order := types.Order{
		Symbol:   symbol,
		Side:     side,
		Quantity: quantity,
	}

	switch typeStr {
	case "MARKET":
		order.OrderType = types.OrderTypeMarket
	case "LIMIT":
		order.OrderType = types.OrderTypeLimit
		order.LimitPrice = payload.Get("limit_price").Float()
	default:
		i.logger.Error().Str("order_type", typeStr).Msg("failed to parse CREATE_ORDER: unknown order type")
		return
	}

	i.queue <- events.NewOrderRequestEvent(order)
	i.logger.Info().Str("symbol", order.Symbol).Msg("posted order request")
}

func (i *Interface) handleRequestHistory(payload gjson.Result) {
	symbol := payload.Get("symbol").String()
	if symbol == "" {
		i.logger.Error().Msg("failed to parse REQUEST_HISTORY: missing symbol")
		return
	}

	endDate := payload.Get("end_date").String()
	duration := payload.Get("duration").String()
	if duration == "" {
		duration = "1 W"
	}
	barSize := payload.Get("bar_size").String()
	if barSize == "" {
		barSize = "1 day"
	}

	i.queue <- events.NewHistoricalDataRequestEvent(symbol, endDate, duration, barSize)
	i.logger.Info().Str("symbol", symbol).Msg("received history request")
}

// PublishTick fans a tick out to every connected publish client as a
// TICK.<symbol> topic frame followed by a JSON payload frame.
func (i *Interface) PublishTick(tick types.Tick) {
	payload := tickPayload{Timestamp: time.Now().Format(time.RFC3339Nano)}
	payload.Data.Symbol = tick.Symbol
	payload.Data.Price = tick.Price
	payload.Data.Size = tick.Size

	body, err := json.Marshal(payload)
	if err != nil {
		i.logger.Error().Err(err).Msg("failed to marshal tick payload")
		return
	}
	i.broadcast(topicTickPrefix+tick.Symbol, body)
}

// PublishHistoricalBar fans a historical bar out as a HISTORY.<symbol>
// topic frame followed by a flat JSON payload frame.
func (i *Interface) PublishHistoricalBar(bar types.HistoricalBar) {
	body, err := json.Marshal(bar)
	if err != nil {
		i.logger.Error().Err(err).Msg("failed to marshal historical bar payload")
		return
	}
	i.broadcast(topicHistoryPrefix+bar.Symbol, body)
}

func (i *Interface) broadcast(topic string, payload []byte) {
	frames := [2][]byte{[]byte(topic), payload}

	i.clientsMu.RLock()
	defer i.clientsMu.RUnlock()

	for client := range i.clients {
		select {
		case client.send <- frames:
		default:
			i.logger.Warn().Str("client_id", client.id.String()).Msg("publish client send buffer full, dropping message")
		}
	}
}

func (i *Interface) registerClient(client *publishClient) {
	i.clientsMu.Lock()
	defer i.clientsMu.Unlock()
	i.clients[client] = true
}

func (i *Interface) unregisterClient(client *publishClient) {
	i.clientsMu.Lock()
	defer i.clientsMu.Unlock()
	if _, ok := i.clients[client]; ok {
		delete(i.clients, client)
		close(client.send)
	}
}

// writePump sends the two-frame topic+payload pairs queued for one
// publish client, sending each frame as its own websocket text message so
// the wire shows exactly the original's sndmore-then-none send pair.
func (i *Interface) writePump(client *publishClient) {
	defer i.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case frames, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, frames[0]); err != nil {
				i.logger.Error().Err(err).Str("client_id", client.id.String()).Msg("failed to write topic frame")
				i.unregisterClient(client)
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, frames[1]); err != nil {
				i.logger.Error().Err(err).Str("client_id", client.id.String()).Msg("failed to write payload frame")
				i.unregisterClient(client)
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				i.logger.Warn().Err(err).Str("client_id", client.id.String()).Msg("ping failed, dropping publish client")
				i.unregisterClient(client)
				return
			}
		}
	}
}

// Stop closes every connected publish client, which ends its write
// goroutine, then waits for every in-flight subscribe/publish goroutine
// spawned by this Interface to return. Callers cancel the context passed to
// SubscribeHandler before calling Stop.
func (i *Interface) Stop() {
	i.clientsMu.RLock()
	clients := make([]*publishClient, 0, len(i.clients))
	for client := range i.clients {
		clients = append(clients, client)
	}
	i.clientsMu.RUnlock()
	for _, client := range clients {
		i.unregisterClient(client)
	}
	i.wg.Wait()
}

// ClientCount reports the number of connected publish clients.
func (i *Interface) ClientCount() int {
	i.clientsMu.RLock()
	defer i.clientsMu.RUnlock()
	return len(i.clients)
}
