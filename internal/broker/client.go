package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/turtlefunk/internal/config"
)

// Broker defines the brokerage operations the pipeline consumes.
// RESTClient talks to a real broker; Mock serves tests and shadow synthesis.
type Broker interface {
	GetAccount(ctx context.Context) (*Account, error)
	GetPositions(ctx context.Context) ([]Position, error)
	GetBars(ctx context.Context, symbol string, limit int) ([]Bar, error)
	GetLatestQuote(ctx context.Context, symbol string) (*Quote, error)
	GetClock(ctx context.Context) (*Clock, error)
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error)
	GetOrders(ctx context.Context, status string, limit int) ([]Order, error)
	GetNews(ctx context.Context, symbols []string, limit int) ([]NewsItem, error)
}

// Auth header names expected by the broker API.
const (
	headerKeyID  = "APCA-API-KEY-ID"
	headerSecret = "APCA-API-SECRET-KEY"
)

// RESTClient is an HTTP client for an Alpaca-style brokerage API
type RESTClient struct {
	baseURL     string
	dataBaseURL string
	keyID       string
	secret      string
	httpClient  *http.Client
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
	retry       RetryConfig
	logger      zerolog.Logger
}

// NewRESTClient creates a broker client from configuration
func NewRESTClient(cfg config.BrokerConfig, logger zerolog.Logger) *RESTClient {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 3.0
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "broker",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	})

	return &RESTClient{
		baseURL:     cfg.BaseURL,
		dataBaseURL: cfg.DataBaseURL,
		keyID:       cfg.APIKeyID,
		secret:      cfg.APISecret,
		httpClient:  &http.Client{Timeout: cfg.GetTimeout()},
		limiter:     rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		breaker:     breaker,
		retry:       DefaultRetryConfig(),
		logger:      logger,
	}
}

// GetAccount fetches the current account state
func (c *RESTClient) GetAccount(ctx context.Context) (*Account, error) {
	var acct Account
	if err := c.get(ctx, c.baseURL+"/v2/account", &acct); err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &acct, nil
}

// GetPositions fetches all open positions
func (c *RESTClient) GetPositions(ctx context.Context) ([]Position, error) {
	var positions []Position
	if err := c.get(ctx, c.baseURL+"/v2/positions", &positions); err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	return positions, nil
}

// GetBars fetches up to limit daily bars for a symbol, oldest first
func (c *RESTClient) GetBars(ctx context.Context, symbol string, limit int) ([]Bar, error) {
	u := fmt.Sprintf("%s/v2/stocks/%s/bars?timeframe=1Day&limit=%d",
		c.dataBaseURL, url.PathEscape(symbol), limit)

	var resp struct {
		Bars []Bar `json:"bars"`
	}
	if err := c.get(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("get bars %s: %w", symbol, err)
	}
	return resp.Bars, nil
}

// GetLatestQuote fetches the latest trade for a symbol
func (c *RESTClient) GetLatestQuote(ctx context.Context, symbol string) (*Quote, error) {
	u := fmt.Sprintf("%s/v2/stocks/%s/trades/latest", c.dataBaseURL, url.PathEscape(symbol))

	var resp struct {
		Symbol string `json:"symbol"`
		Trade  struct {
			Price     float64   `json:"p"`
			Timestamp time.Time `json:"t"`
		} `json:"trade"`
	}
	if err := c.get(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("get latest quote %s: %w", symbol, err)
	}

	return &Quote{
		Symbol:    symbol,
		Last:      resp.Trade.Price,
		Timestamp: resp.Trade.Timestamp,
	}, nil
}

// GetClock fetches the market clock
func (c *RESTClient) GetClock(ctx context.Context) (*Clock, error) {
	var clock Clock
	if err := c.get(ctx, c.baseURL+"/v2/clock", &clock); err != nil {
		return nil, fmt.Errorf("get clock: %w", err)
	}
	return &clock, nil
}

// PlaceOrder submits a notional market order
func (c *RESTClient) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if req.Type == "" {
		req.Type = "market"
	}
	if req.TimeInForce == "" {
		req.TimeInForce = "day"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	c.logger.Info().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Float64("notional", req.Notional).
		Msg("Submitting order")

	var order Order
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/v2/orders", body, &order); err != nil {
		return nil, fmt.Errorf("place order %s: %w", req.Symbol, err)
	}
	return &order, nil
}

// GetOrders fetches orders filtered by status
func (c *RESTClient) GetOrders(ctx context.Context, status string, limit int) ([]Order, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var orders []Order
	if err := c.get(ctx, c.baseURL+"/v2/orders?"+q.Encode(), &orders); err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	return orders, nil
}

// GetNews fetches recent headlines for the given symbols
func (c *RESTClient) GetNews(ctx context.Context, symbols []string, limit int) ([]NewsItem, error) {
	q := url.Values{}
	for _, s := range symbols {
		q.Add("symbols", s)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp struct {
		News []NewsItem `json:"news"`
	}
	if err := c.get(ctx, c.dataBaseURL+"/v1beta1/news?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("get news: %w", err)
	}
	return resp.News, nil
}

func (c *RESTClient) get(ctx context.Context, url string, target interface{}) error {
	return c.do(ctx, http.MethodGet, url, nil, target)
}

// do executes a request through the rate limiter, circuit breaker and retry
// policy, decoding the JSON response into target.
func (c *RESTClient) do(ctx context.Context, method, url string, body []byte, target interface{}) error {
	return WithRetry(ctx, c.retry, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.doOnce(ctx, method, url, body, target)
		})
		return err
	})
}

func (c *RESTClient) doOnce(ctx context.Context, method, url string, body []byte, target interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set(headerKeyID, c.keyID)
	req.Header.Set(headerSecret, c.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if target != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, target); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// APIError represents a non-2xx broker API response
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("broker API error (status %d): %s", e.StatusCode, e.Body)
}
