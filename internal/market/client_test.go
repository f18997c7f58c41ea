package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/turtlefunk/internal/broker"
)

func flatBars(n int, price float64) []broker.Bar {
	bars := make([]broker.Bar, n)
	ts := time.Now().AddDate(0, 0, -n)
	for i := range bars {
		bars[i] = broker.Bar{
			Timestamp: ts.AddDate(0, 0, i),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1000,
		}
	}
	return bars
}

func TestFetchSnapshotComputesDerived(t *testing.T) {
	b := broker.NewMock()
	b.SetBars("SPY", flatBars(60, 100))
	b.SetQuote("SPY", 101)

	c := NewClient(b, zerolog.Nop())
	snapshot := c.FetchSnapshot(context.Background(), []string{"SPY"}, 90)

	require.True(t, snapshot.DataAvailable)
	require.Contains(t, snapshot.Symbols, "SPY")
	assert.True(t, snapshot.MarketOpen)
	assert.Empty(t, snapshot.Errors)

	data := snapshot.Symbols["SPY"]
	assert.InDelta(t, 101.0, data.High20, 1e-9)
	assert.InDelta(t, 99.0, data.Low20, 1e-9)
	assert.InDelta(t, 101.0, data.High55, 1e-9)
	assert.InDelta(t, 99.0, data.Low55, 1e-9)
	assert.InDelta(t, 2.0, data.ATR20, 1e-9)
	assert.InDelta(t, 101.0, data.LastPrice(), 1e-9)
}

func TestFetchSnapshotShortHistorySkipsS2Channel(t *testing.T) {
	b := broker.NewMock()
	b.SetBars("SPY", flatBars(30, 100))
	b.SetQuote("SPY", 100)

	c := NewClient(b, zerolog.Nop())
	snapshot := c.FetchSnapshot(context.Background(), []string{"SPY"}, 90)

	data := snapshot.Symbols["SPY"]
	assert.InDelta(t, 101.0, data.High20, 1e-9)
	assert.Zero(t, data.High55)
	assert.Zero(t, data.Low55)
}

func TestFetchSnapshotIsolatesSymbolFailures(t *testing.T) {
	b := broker.NewMock()
	b.SetBars("SPY", flatBars(60, 100))
	b.SetQuote("SPY", 100)
	b.FailNext("bars:QQQ", errors.New("rate limited"))

	c := NewClient(b, zerolog.Nop())
	snapshot := c.FetchSnapshot(context.Background(), []string{"QQQ", "SPY"}, 90)

	assert.True(t, snapshot.DataAvailable)
	assert.Contains(t, snapshot.Symbols, "SPY")
	assert.NotContains(t, snapshot.Symbols, "QQQ")

	require.Len(t, snapshot.Errors, 1)
	assert.Equal(t, "QQQ", snapshot.Errors[0].Symbol)
	assert.Equal(t, "bars", snapshot.Errors[0].Stage)
}

func TestFetchSnapshotEmptyBarsRecordedAsError(t *testing.T) {
	b := broker.NewMock()

	c := NewClient(b, zerolog.Nop())
	snapshot := c.FetchSnapshot(context.Background(), []string{"SPY"}, 90)

	assert.False(t, snapshot.DataAvailable)
	require.Len(t, snapshot.Errors, 1)
	assert.Equal(t, "no bars returned", snapshot.Errors[0].Error)
}

func TestFetchSnapshotQuoteFailureKeepsBars(t *testing.T) {
	b := broker.NewMock()
	b.SetBars("SPY", flatBars(60, 100))
	b.FailNext("quote", errors.New("feed down"))

	c := NewClient(b, zerolog.Nop())
	snapshot := c.FetchSnapshot(context.Background(), []string{"SPY"}, 90)

	require.Contains(t, snapshot.Symbols, "SPY")
	data := snapshot.Symbols["SPY"]
	assert.Nil(t, data.Quote)
	// Last bar close stands in for the missing quote
	assert.InDelta(t, 100.0, data.LastPrice(), 1e-9)

	require.Len(t, snapshot.Errors, 1)
	assert.Equal(t, "quote", snapshot.Errors[0].Stage)
}

func TestFetchSnapshotClockFailureAssumesClosed(t *testing.T) {
	b := broker.NewMock()
	b.SetBars("SPY", flatBars(60, 100))
	b.SetQuote("SPY", 100)
	b.FailNext("clock", errors.New("unavailable"))

	c := NewClient(b, zerolog.Nop())
	snapshot := c.FetchSnapshot(context.Background(), []string{"SPY"}, 90)

	assert.True(t, snapshot.DataAvailable)
	assert.False(t, snapshot.MarketOpen)
}
