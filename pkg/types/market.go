package types

import "time"

// Tick is a single immutable market-data observation.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoricalBar is an immutable OHLCV aggregate over a labeled time interval.
type HistoricalBar struct {
	Symbol string  `json:"symbol"`
	Time   string  `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}
