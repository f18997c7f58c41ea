package signal

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/turtlefunk/internal/broker"
	"github.com/ajitpratap0/turtlefunk/internal/config"
	"github.com/ajitpratap0/turtlefunk/internal/market"
	"github.com/ajitpratap0/turtlefunk/internal/portfolio"
)

func symbolData(symbol string, last float64) *market.SymbolData {
	return &market.SymbolData{
		Symbol: symbol,
		Quote:  &broker.Quote{Symbol: symbol, Last: last, Timestamp: time.Now()},
		ATR20:  2.0,
		High20: 100,
		Low20:  90,
		High55: 105,
		Low55:  85,
		High10: 99,
		Low10:  92,
	}
}

func snapshotWith(data ...*market.SymbolData) *market.Snapshot {
	snap := &market.Snapshot{
		Timestamp:     time.Now().UTC(),
		Symbols:       make(map[string]*market.SymbolData),
		MarketOpen:    true,
		DataAvailable: true,
	}
	for _, d := range data {
		snap.Symbols[d.Symbol] = d
	}
	return snap
}

func newTestGenerator() *Generator {
	return NewGenerator(config.SignalConfig{}, zerolog.Nop())
}

func TestGenerateS1LongBreakout(t *testing.T) {
	g := newTestGenerator()
	// 101 clears the 20-day high of 100 but not the 55-day high of 105
	snap := snapshotWith(symbolData("AAPL", 101))

	signals := g.Generate(snap, nil)
	require.Len(t, signals, 1)

	s := signals[0]
	assert.Equal(t, DirectionLong, s.Direction)
	assert.Equal(t, System1, s.System)
	assert.InDelta(t, 100.0, s.EntryRef, 1e-9)
	assert.InDelta(t, 92.0, s.ExitRef, 1e-9)
	// stop = last - 2*ATR
	assert.InDelta(t, 101-2*2.0, s.StopPrice, 1e-9)
	assert.Greater(t, s.CurrentPrice, s.EntryRef)
	// score_hint = clamp(0.5 + 0.2*strength), strength = 1/2 = 0.5
	assert.InDelta(t, 0.6, s.ScoreHint, 1e-9)
}

func TestGenerateS2LongAddsSecondSignal(t *testing.T) {
	g := newTestGenerator()
	// 106 clears both the 20-day and the 55-day highs
	snap := snapshotWith(symbolData("AAPL", 106))

	signals := g.Generate(snap, nil)
	require.Len(t, signals, 2)

	systems := []int{signals[0].System, signals[1].System}
	assert.Contains(t, systems, System1)
	assert.Contains(t, systems, System2)

	for _, s := range signals {
		assert.Equal(t, DirectionLong, s.Direction)
		assert.InDelta(t, 106-2*2.0, s.StopPrice, 1e-9)
	}
}

func TestGenerateShortBreakout(t *testing.T) {
	g := newTestGenerator()
	// 84 breaks below both low channels
	snap := snapshotWith(symbolData("AAPL", 84))

	signals := g.Generate(snap, nil)
	require.Len(t, signals, 2)

	for _, s := range signals {
		assert.Equal(t, DirectionShort, s.Direction)
		assert.Less(t, s.CurrentPrice, s.EntryRef)
		assert.InDelta(t, 84+2*2.0, s.StopPrice, 1e-9)
	}
}

func TestGenerateNoSignalInsideChannel(t *testing.T) {
	g := newTestGenerator()
	snap := snapshotWith(symbolData("AAPL", 95))

	assert.Empty(t, g.Generate(snap, nil))
}

func TestGenerateNoEntryWithoutQuote(t *testing.T) {
	g := newTestGenerator()
	data := symbolData("AAPL", 101)
	data.Quote = nil
	snap := snapshotWith(data)

	assert.Empty(t, g.Generate(snap, nil))
}

func TestGenerateNoEntryWithoutATR(t *testing.T) {
	g := newTestGenerator()
	data := symbolData("AAPL", 101)
	data.ATR20 = 0
	snap := snapshotWith(data)

	assert.Empty(t, g.Generate(snap, nil))
}

func TestGenerateStopLossExit(t *testing.T) {
	g := newTestGenerator()
	data := symbolData("AAPL", 88)
	snap := snapshotWith(data)

	held := map[string]portfolio.EntryCriteria{
		"AAPL": {Symbol: "AAPL", StopPrice: 89, ExitRef: 92, ATRAtEntry: 2.0, System: System1, Side: "long"},
	}

	signals := g.Generate(snap, held)
	require.Len(t, signals, 1)

	s := signals[0]
	assert.Equal(t, DirectionExitLong, s.Direction)
	assert.InDelta(t, 1.0, s.ScoreHint, 1e-9)
	assert.Contains(t, s.Reason, "STOP LOSS")
}

func TestGenerateSystemExit(t *testing.T) {
	g := newTestGenerator()
	// Above the stop at 85 but below the 10-day exit channel at 92
	data := symbolData("AAPL", 91)
	snap := snapshotWith(data)

	held := map[string]portfolio.EntryCriteria{
		"AAPL": {Symbol: "AAPL", StopPrice: 85, ExitRef: 92, ATRAtEntry: 2.0, System: System1, Side: "long"},
	}

	signals := g.Generate(snap, held)
	require.Len(t, signals, 1)

	s := signals[0]
	assert.Equal(t, DirectionExitLong, s.Direction)
	assert.InDelta(t, 0.9, s.ScoreHint, 1e-9)
	assert.Contains(t, s.Reason, "SYSTEM EXIT")
}

func TestGenerateStopDominatesSystemExit(t *testing.T) {
	g := newTestGenerator()
	// 88 is both below the stop at 89 and below the exit channel at 92
	snap := snapshotWith(symbolData("AAPL", 88))

	held := map[string]portfolio.EntryCriteria{
		"AAPL": {Symbol: "AAPL", StopPrice: 89, ExitRef: 92, ATRAtEntry: 2.0, System: System1, Side: "long"},
	}

	signals := g.Generate(snap, held)
	require.Len(t, signals, 1)
	assert.Contains(t, signals[0].Reason, "STOP LOSS")
}

func TestGenerateShortExit(t *testing.T) {
	g := newTestGenerator()
	// A short stopped out when price rises through the stop
	snap := snapshotWith(symbolData("AAPL", 96))

	held := map[string]portfolio.EntryCriteria{
		"AAPL": {Symbol: "AAPL", StopPrice: 95, ExitRef: 94, ATRAtEntry: 2.0, System: System1, Side: "short"},
	}

	signals := g.Generate(snap, held)
	require.Len(t, signals, 1)

	s := signals[0]
	assert.Equal(t, DirectionExitShort, s.Direction)
	assert.Contains(t, s.Reason, "STOP LOSS")
}

func TestGenerateHeldSymbolSuppressesEntries(t *testing.T) {
	g := newTestGenerator()
	// Breakout price, but the symbol is already held: exits only
	snap := snapshotWith(symbolData("AAPL", 106))

	held := map[string]portfolio.EntryCriteria{
		"AAPL": {Symbol: "AAPL", StopPrice: 80, ExitRef: 85, ATRAtEntry: 2.0, System: System1, Side: "long"},
	}

	signals := g.Generate(snap, held)
	assert.Empty(t, signals)
}

func TestVolumeFilterDiscards(t *testing.T) {
	g := NewGenerator(config.SignalConfig{VolumeFilterEnabled: true, VolumeThreshold: 1.5}, zerolog.Nop())

	data := symbolData("AAPL", 101)
	data.Bars = make([]broker.Bar, 20)
	for i := range data.Bars {
		data.Bars[i] = broker.Bar{Close: 95, High: 96, Low: 94, Volume: 1000}
	}
	// Latest volume matches the average, well short of the 1.5x threshold
	snap := snapshotWith(data)

	assert.Empty(t, g.Generate(snap, nil))
}

func TestVolumeFilterPassesOnSurge(t *testing.T) {
	g := NewGenerator(config.SignalConfig{VolumeFilterEnabled: true, VolumeThreshold: 1.5}, zerolog.Nop())

	data := symbolData("AAPL", 101)
	data.Bars = make([]broker.Bar, 20)
	for i := range data.Bars {
		data.Bars[i] = broker.Bar{Close: 95, High: 96, Low: 94, Volume: 1000}
	}
	data.Bars[19].Volume = 5000
	snap := snapshotWith(data)

	signals := g.Generate(snap, nil)
	assert.NotEmpty(t, signals)
}
