package research

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/turtlefunk/internal/config"
	"github.com/ajitpratap0/turtlefunk/internal/signal"
)

func scoredSignal(symbol string, dir signal.Direction, score float64) signal.ScoredSignal {
	return signal.ScoredSignal{
		Signal:     signal.Signal{Symbol: symbol, Direction: dir, System: signal.System1},
		TotalScore: score,
	}
}

func newResearchClient(url string) *Client {
	return NewClient(config.ResearchConfig{
		Enabled:        true,
		Endpoint:       url,
		ScoreThreshold: 3.0,
		TimeoutMS:      5000,
	}, zerolog.Nop())
}

func TestNewClientDisabledReturnsNil(t *testing.T) {
	assert.Nil(t, NewClient(config.ResearchConfig{Enabled: false}, zerolog.Nop()))
	assert.Nil(t, NewClient(config.ResearchConfig{Enabled: true, Endpoint: ""}, zerolog.Nop()))
}

func TestEnrichHighScoringEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":"no adverse news this week"}`))
	}))
	defer server.Close()

	c := newResearchClient(server.URL)
	notes := c.Enrich(context.Background(), []signal.ScoredSignal{
		scoredSignal("SPY", signal.DirectionLong, 5.0),
	})

	assert.Equal(t, map[string]string{"SPY": "no adverse news this week"}, notes)
}

func TestEnrichSkipsExitsAndLowScores(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"content":"note"}`))
	}))
	defer server.Close()

	c := newResearchClient(server.URL)
	notes := c.Enrich(context.Background(), []signal.ScoredSignal{
		scoredSignal("SPY", signal.DirectionExitLong, 9.0),
		scoredSignal("QQQ", signal.DirectionLong, 1.0),
	})

	assert.Empty(t, notes)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestEnrichDedupesSymbols(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"content":"note"}`))
	}))
	defer server.Close()

	c := newResearchClient(server.URL)
	notes := c.Enrich(context.Background(), []signal.ScoredSignal{
		scoredSignal("SPY", signal.DirectionLong, 5.0),
		scoredSignal("SPY", signal.DirectionLong, 4.0),
	})

	require.Len(t, notes, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEnrichFailureSkipsSymbol(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := newResearchClient(server.URL)
	notes := c.Enrich(context.Background(), []signal.ScoredSignal{
		scoredSignal("SPY", signal.DirectionLong, 5.0),
	})

	assert.Empty(t, notes)
}
