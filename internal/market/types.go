package market

import (
	"time"

	"github.com/ajitpratap0/turtlefunk/internal/broker"
)

// SymbolData holds the bar history, latest quote and derived breakout levels
// for one symbol. Derived values are recomputed from the bars on every fetch,
// never persisted.
type SymbolData struct {
	Symbol string        `json:"symbol"`
	Bars   []broker.Bar  `json:"bars"`
	Quote  *broker.Quote `json:"quote,omitempty"`

	ATR20  float64 `json:"atr_20"`
	High20 float64 `json:"high_20"`
	Low20  float64 `json:"low_20"`
	High55 float64 `json:"high_55"`
	Low55  float64 `json:"low_55"`
	High10 float64 `json:"high_10"`
	Low10  float64 `json:"low_10"`
}

// LastPrice returns the most recent traded price, falling back to the last
// bar close when no quote is available.
func (d *SymbolData) LastPrice() float64 {
	if d.Quote != nil && d.Quote.Last > 0 {
		return d.Quote.Last
	}
	if len(d.Bars) > 0 {
		return d.Bars[len(d.Bars)-1].Close
	}
	return 0
}

// FetchError records a per-symbol fetch failure
type FetchError struct {
	Symbol string `json:"symbol"`
	Stage  string `json:"stage"` // "bars" or "quote"
	Error  string `json:"error"`
}

// Snapshot is the market view for a single loop iteration.
// If DataAvailable is false the loop must terminate at the decision stage.
type Snapshot struct {
	Timestamp     time.Time              `json:"timestamp"`
	Symbols       map[string]*SymbolData `json:"symbols"`
	MarketOpen    bool                   `json:"market_open"`
	DataAvailable bool                   `json:"data_available"`
	Errors        []FetchError           `json:"errors,omitempty"`
}
