package market

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/turtlefunk/internal/broker"
	"github.com/ajitpratap0/turtlefunk/internal/indicators"
)

// System 2 needs a full 55-bar channel; symbols with less history are
// silently excluded from that system's signals but still usable by System 1.
const minBarsS2 = 55

// Client fetches market snapshots from the broker data API
type Client struct {
	broker broker.Broker
	logger zerolog.Logger
}

// NewClient creates a market data client
func NewClient(b broker.Broker, logger zerolog.Logger) *Client {
	return &Client{broker: b, logger: logger}
}

// FetchSnapshot fetches daily bars and the latest quote for every symbol and
// computes the derived breakout levels. Per-symbol failures are recorded in
// the snapshot errors without poisoning other symbols; DataAvailable is false
// only when no symbol yielded bars.
func (c *Client) FetchSnapshot(ctx context.Context, symbols []string, lookbackDays int) *Snapshot {
	snapshot := &Snapshot{
		Timestamp: time.Now().UTC(),
		Symbols:   make(map[string]*SymbolData, len(symbols)),
	}

	for _, symbol := range symbols {
		data := c.fetchSymbol(ctx, symbol, lookbackDays, snapshot)
		if data != nil {
			snapshot.Symbols[symbol] = data
			snapshot.DataAvailable = true
		}
	}

	// Clock failure is non-fatal; without a readable clock we assume closed.
	clock, err := c.broker.GetClock(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read market clock, assuming closed")
	} else {
		snapshot.MarketOpen = clock.IsOpen
	}

	c.logger.Debug().
		Int("symbols", len(snapshot.Symbols)).
		Int("errors", len(snapshot.Errors)).
		Bool("data_available", snapshot.DataAvailable).
		Bool("market_open", snapshot.MarketOpen).
		Msg("Snapshot fetched")

	return snapshot
}

func (c *Client) fetchSymbol(ctx context.Context, symbol string, lookbackDays int, snapshot *Snapshot) *SymbolData {
	bars, err := c.broker.GetBars(ctx, symbol, lookbackDays)
	if err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to fetch bars")
		snapshot.Errors = append(snapshot.Errors, FetchError{
			Symbol: symbol, Stage: "bars", Error: err.Error(),
		})
		return nil
	}
	if len(bars) == 0 {
		snapshot.Errors = append(snapshot.Errors, FetchError{
			Symbol: symbol, Stage: "bars", Error: "no bars returned",
		})
		return nil
	}

	data := &SymbolData{Symbol: symbol, Bars: bars}

	quote, err := c.broker.GetLatestQuote(ctx, symbol)
	if err != nil {
		// A missing quote suppresses entries but the bar history still
		// contributes to the snapshot.
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to fetch quote")
		snapshot.Errors = append(snapshot.Errors, FetchError{
			Symbol: symbol, Stage: "quote", Error: err.Error(),
		})
	} else {
		data.Quote = quote
	}

	computeDerived(data)
	return data
}

// computeDerived recomputes the channel levels and ATR from the bar history
func computeDerived(data *SymbolData) {
	n := len(data.Bars)
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	for i, b := range data.Bars {
		high[i] = b.High
		low[i] = b.Low
		closes[i] = b.Close
	}

	data.ATR20 = indicators.ATR(high, low, closes, 20)
	data.High20 = indicators.HighestHigh(high, 20)
	data.Low20 = indicators.LowestLow(low, 20)
	data.High10 = indicators.HighestHigh(high, 10)
	data.Low10 = indicators.LowestLow(low, 10)

	if n >= minBarsS2 {
		data.High55 = indicators.HighestHigh(high, 55)
		data.Low55 = indicators.LowestLow(low, 55)
	}
}
