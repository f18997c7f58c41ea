package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/turtlefunk/internal/config"
)

func newRESTClient(url string) *RESTClient {
	return NewRESTClient(config.BrokerConfig{
		BaseURL:           url,
		DataBaseURL:       url,
		APIKeyID:          "key",
		APISecret:         "secret",
		TimeoutMS:         5000,
		RequestsPerSecond: 1000,
	}, zerolog.Nop())
}

func TestGetAccountSendsAuthHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/account", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "secret", r.Header.Get("APCA-API-SECRET-KEY"))
		w.Write([]byte(`{"equity":"101000","cash":"50000","buying_power":"200000","last_equity":"100000"}`))
	}))
	defer server.Close()

	acct, err := newRESTClient(server.URL).GetAccount(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 101_000.0, acct.Equity, 1e-9)
	assert.InDelta(t, 200_000.0, acct.BuyingPower, 1e-9)
}

func TestGetBarsUnwrapsEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/stocks/SPY/bars", r.URL.Path)
		assert.Equal(t, "1Day", r.URL.Query().Get("timeframe"))
		assert.Equal(t, "90", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"bars":[{"t":"2026-08-24T04:00:00Z","o":100,"h":101,"l":99,"c":100.5,"v":1000}]}`))
	}))
	defer server.Close()

	bars, err := newRESTClient(server.URL).GetBars(context.Background(), "SPY", 90)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.InDelta(t, 100.5, bars[0].Close, 1e-9)
	assert.Equal(t, int64(1000), bars[0].Volume)
}

func TestGetLatestQuoteMapsTrade(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/stocks/SPY/trades/latest", r.URL.Path)
		w.Write([]byte(`{"symbol":"SPY","trade":{"p":450.25,"t":"2026-08-25T14:30:00Z"}}`))
	}))
	defer server.Close()

	quote, err := newRESTClient(server.URL).GetLatestQuote(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, "SPY", quote.Symbol)
	assert.InDelta(t, 450.25, quote.Last, 1e-9)
}

func TestPlaceOrderDefaultsMarketDay(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/orders", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"id":"o1","symbol":"SPY","status":"accepted"}`))
	}))
	defer server.Close()

	order, err := newRESTClient(server.URL).PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol: "SPY", Side: SideBuy, Notional: 25,
	})
	require.NoError(t, err)
	assert.Equal(t, "o1", order.ID)
	assert.Equal(t, "market", got["type"])
	assert.Equal(t, "day", got["time_in_force"])
}

func TestRetryOnServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"timestamp":"2026-08-25T14:30:00Z","is_open":true}`))
	}))
	defer server.Close()

	clock, err := newRESTClient(server.URL).GetClock(context.Background())
	require.NoError(t, err)
	assert.True(t, clock.IsOpen)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"forbidden"}`))
	}))
	defer server.Close()

	_, err := newRESTClient(server.URL).GetAccount(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
