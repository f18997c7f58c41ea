package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mock is an in-memory broker used by tests and by shadow-mode synthesis.
// All state is settable; PlaceOrder fills immediately at the latest quote.
type Mock struct {
	mu sync.Mutex

	Account_   Account
	Positions_ []Position
	Bars_      map[string][]Bar
	Quotes_    map[string]Quote
	Clock_     Clock
	Orders_    []Order
	News_      []NewsItem

	// Errors force the next call of a given kind to fail
	Errors map[string]error
}

// NewMock creates a mock broker with a flat $100k account
func NewMock() *Mock {
	return &Mock{
		Account_: Account{
			Equity:      100_000,
			Cash:        100_000,
			BuyingPower: 200_000,
			LastEquity:  100_000,
		},
		Bars_:   make(map[string][]Bar),
		Quotes_: make(map[string]Quote),
		Clock_:  Clock{Timestamp: time.Now(), IsOpen: true},
		Errors:  make(map[string]error),
	}
}

// SetBars sets the daily bar history for a symbol
func (m *Mock) SetBars(symbol string, bars []Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Bars_[symbol] = bars
}

// SetQuote sets the latest quote for a symbol
func (m *Mock) SetQuote(symbol string, last float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Quotes_[symbol] = Quote{Symbol: symbol, Last: last, Timestamp: time.Now()}
}

// AddPosition adds an open position
func (m *Mock) AddPosition(p Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Positions_ = append(m.Positions_, p)
}

// FailNext forces the next call of the given kind to return err
func (m *Mock) FailNext(kind string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[kind] = err
}

func (m *Mock) takeError(kind string) error {
	if err, ok := m.Errors[kind]; ok {
		delete(m.Errors, kind)
		return err
	}
	return nil
}

// GetAccount returns the configured account
func (m *Mock) GetAccount(ctx context.Context) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeError("account"); err != nil {
		return nil, err
	}
	acct := m.Account_
	return &acct, nil
}

// GetPositions returns the configured positions
func (m *Mock) GetPositions(ctx context.Context) ([]Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeError("positions"); err != nil {
		return nil, err
	}
	out := make([]Position, len(m.Positions_))
	copy(out, m.Positions_)
	return out, nil
}

// GetBars returns up to limit bars for a symbol
func (m *Mock) GetBars(ctx context.Context, symbol string, limit int) ([]Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeError("bars"); err != nil {
		return nil, err
	}
	if err := m.takeError("bars:" + symbol); err != nil {
		return nil, err
	}
	bars := m.Bars_[symbol]
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	out := make([]Bar, len(bars))
	copy(out, bars)
	return out, nil
}

// GetLatestQuote returns the configured quote
func (m *Mock) GetLatestQuote(ctx context.Context, symbol string) (*Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeError("quote"); err != nil {
		return nil, err
	}
	q, ok := m.Quotes_[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	return &q, nil
}

// GetClock returns the configured clock
func (m *Mock) GetClock(ctx context.Context) (*Clock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeError("clock"); err != nil {
		return nil, err
	}
	clock := m.Clock_
	return &clock, nil
}

// PlaceOrder records the order and fills it immediately at the latest quote
func (m *Mock) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeError("order"); err != nil {
		return nil, err
	}

	now := time.Now()
	fillPrice := m.Quotes_[req.Symbol].Last
	order := Order{
		ID:            uuid.New().String(),
		Symbol:        req.Symbol,
		Side:          req.Side,
		Notional:      req.Notional,
		Type:          "market",
		TimeInForce:   "day",
		Status:        "filled",
		FilledAvgPrice: fillPrice,
		SubmittedAt:   now,
		FilledAt:      &now,
	}
	if fillPrice > 0 {
		order.FilledQty = req.Notional / fillPrice
	}
	m.Orders_ = append(m.Orders_, order)
	return &order, nil
}

// GetOrders returns recorded orders, newest first
func (m *Mock) GetOrders(ctx context.Context, status string, limit int) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeError("orders"); err != nil {
		return nil, err
	}

	out := []Order{}
	for i := len(m.Orders_) - 1; i >= 0; i-- {
		o := m.Orders_[i]
		if !statusMatches(status, o.Status) {
			continue
		}
		out = append(out, o)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// statusMatches mimics broker-side status filtering: "closed" covers every
// terminal state, "open" the live ones.
func statusMatches(filter, status string) bool {
	switch filter {
	case "", "all":
		return true
	case "closed":
		return status == "filled" || status == "canceled" || status == "expired" || status == "rejected"
	case "open":
		return status == "new" || status == "accepted" || status == "partially_filled"
	default:
		return filter == status
	}
}

// GetNews returns the configured headlines
func (m *Mock) GetNews(ctx context.Context, symbols []string, limit int) ([]NewsItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeError("news"); err != nil {
		return nil, err
	}
	out := m.News_
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
