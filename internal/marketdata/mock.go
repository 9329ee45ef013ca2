// Package marketdata implements the two Market-Data Handler variants of
// spec.md §4.5: a CSV-driven Mock handler for local development and a Live
// handler adapting a broker client.
package marketdata

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestreltrading/engine-core/internal/events"
	"github.com/kestreltrading/engine-core/pkg/types"
)

const rowInterval = 500 * time.Millisecond

// MockHandler replays a CSV file of symbol,price,size rows as Tick
// events, one row at a time, on a 500ms cadence. The feed does not start
// at Connect — only StartDataFeed, triggered by the Scripting Interface's
// MOCK command, begins the replay goroutine.
type MockHandler struct {
	logger  zerolog.Logger
	csvPath string
	queue   chan<- events.Event

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMockHandler creates a Mock Market-Data Handler reading from csvPath.
// queue is the send-only side of the Engine Core's event queue.
func NewMockHandler(csvPath string, queue chan<- events.Event, logger zerolog.Logger) *MockHandler {
	return &MockHandler{
		logger:  logger.With().Str("component", "mock_market_data_handler").Logger(),
		csvPath: csvPath,
		queue:   queue,
	}
}

// Connect is a no-op beyond logging: the replay goroutine only starts on
// StartDataFeed, per spec.md §4.5.
func (h *MockHandler) Connect(_ context.Context) error {
	h.logger.Info().Str("csv_path", h.csvPath).Msg("mock market data handler connected")
	return nil
}

// Disconnect stops any running feed and waits for it to exit.
func (h *MockHandler) Disconnect() error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return nil
	}
	cancel := h.cancel
	done := h.done
	h.started = false
	h.mu.Unlock()

	cancel()
	<-done
	h.logger.Info().Msg("mock market data handler disconnected")
	return nil
}

// StartDataFeed begins replaying the CSV file on a background goroutine.
// Calling it a second time while already running is a no-op.
func (h *MockHandler) StartDataFeed() {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		h.logger.Warn().Msg("mock data feed already running")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.started = true
	h.cancel = cancel
	h.done = make(chan struct{})
	h.mu.Unlock()

	go h.processDataFeed(ctx)
}

func (h *MockHandler) processDataFeed(ctx context.Context) {
	defer close(h.done)

	file, err := os.Open(h.csvPath)
	if err != nil {
		h.logger.Error().Err(err).Str("csv_path", h.csvPath).Msg("failed to open market data file")
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Text()
		tick, ok := parseRow(line)
		if !ok {
			h.logger.Error().Str("line", line).Msg("could not parse line in CSV")
		} else {
			select {
			case h.queue <- events.NewTickEvent(tick):
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-time.After(rowInterval):
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil {
		h.logger.Error().Err(err).Msg("error reading market data file")
	}
}

// parseRow parses one "symbol,price,size" CSV row. A malformed or empty
// row returns ok == false and is skipped without stopping the feed.
func parseRow(line string) (types.Tick, bool) {
	fields := strings.Split(line, ",")
	if len(fields) != 3 {
		return types.Tick{}, false
	}

	symbol := strings.TrimSpace(fields[0])
	price, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return types.Tick{}, false
	}
	size, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return types.Tick{}, false
	}
	if symbol == "" {
		return types.Tick{}, false
	}

	return types.Tick{
		Symbol:    symbol,
		Price:     price,
		Size:      size,
		Timestamp: time.Now(),
	}, true
}
