package marketdata

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestreltrading/engine-core/internal/events"
)

func TestParseRow_ValidRow(t *testing.T) {
	tick, ok := parseRow("AAPL,150.25,100")
	assert.True(t, ok)
	assert.Equal(t, "AAPL", tick.Symbol)
	assert.Equal(t, 150.25, tick.Price)
	assert.Equal(t, 100.0, tick.Size)
}

func TestParseRow_EmptyRowIsSkippedNotFatal(t *testing.T) {
	_, ok := parseRow("")
	assert.False(t, ok)
}

func TestParseRow_WrongFieldCountIsSkipped(t *testing.T) {
	_, ok := parseRow("AAPL,150.25")
	assert.False(t, ok)
}

func TestParseRow_NonNumericPriceIsSkipped(t *testing.T) {
	_, ok := parseRow("AAPL,not-a-number,100")
	assert.False(t, ok)
}

func TestParseRow_MissingSymbolIsSkipped(t *testing.T) {
	_, ok := parseRow(",150.25,100")
	assert.False(t, ok)
}

func TestMockHandler_StartDataFeedSkipsMalformedRowAndContinues(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "ticks.csv")
	content := "AAPL,150.0,100\n\nMSFT,300.0,50\n"
	require.NoError(t, os.WriteFile(csvPath, []byte(content), 0o644))

	queue := make(chan events.Event, 8)
	h := NewMockHandler(csvPath, queue, zerolog.Nop())
	require.NoError(t, h.Connect(context.Background()))

	h.StartDataFeed()
	defer h.Disconnect()

	var symbols []string
	timeout := time.After(3 * time.Second)
	for len(symbols) < 2 {
		select {
		case e := <-queue:
			symbols = append(symbols, e.(events.TickEvent).Tick.Symbol)
		case <-timeout:
			t.Fatalf("timed out waiting for ticks, got %v", symbols)
		}
	}

	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)
}

func TestMockHandler_StartDataFeedTwiceIsNoOp(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "ticks.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("AAPL,150.0,100\n"), 0o644))

	queue := make(chan events.Event, 8)
	h := NewMockHandler(csvPath, queue, zerolog.Nop())

	h.StartDataFeed()
	assert.NotPanics(t, h.StartDataFeed)
	h.Disconnect()
}
