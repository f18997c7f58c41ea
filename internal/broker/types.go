package broker

import "time"

// OrderSide is the direction of an order
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// Bar represents a single daily OHLCV bar
type Bar struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    int64     `json:"v"`
}

// Quote represents the latest trade/quote for a symbol
type Quote struct {
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Last      float64   `json:"last"`
	Timestamp time.Time `json:"timestamp"`
}

// Account represents the brokerage account state
type Account struct {
	Equity      float64 `json:"equity,string"`
	Cash        float64 `json:"cash,string"`
	BuyingPower float64 `json:"buying_power,string"`
	LastEquity  float64 `json:"last_equity,string"`
}

// Position represents an open brokerage position.
// Qty is signed: positive long, negative short.
type Position struct {
	Symbol         string  `json:"symbol"`
	Qty            float64 `json:"qty,string"`
	AvgEntryPrice  float64 `json:"avg_entry_price,string"`
	MarketValue    float64 `json:"market_value,string"`
	UnrealizedPL   float64 `json:"unrealized_pl,string"`
	UnrealizedPLPC float64 `json:"unrealized_plpc,string"`
}

// Order represents a brokerage order
type Order struct {
	ID             string     `json:"id"`
	Symbol         string     `json:"symbol"`
	Side           OrderSide  `json:"side"`
	Notional       float64    `json:"notional,string"`
	Type           string     `json:"type"`
	TimeInForce    string     `json:"time_in_force"`
	Status         string     `json:"status"`
	FilledQty      float64    `json:"filled_qty,string"`
	FilledAvgPrice float64    `json:"filled_avg_price,string"`
	SubmittedAt    time.Time  `json:"submitted_at"`
	FilledAt       *time.Time `json:"filled_at,omitempty"`
}

// PlaceOrderRequest is the payload for order submission.
// Orders are always notional market orders with day time-in-force; the broker
// resolves notional into (possibly fractional) shares.
type PlaceOrderRequest struct {
	Symbol      string    `json:"symbol"`
	Notional    float64   `json:"notional"`
	Side        OrderSide `json:"side"`
	Type        string    `json:"type"`
	TimeInForce string    `json:"time_in_force"`
}

// Clock represents the market clock
type Clock struct {
	Timestamp time.Time `json:"timestamp"`
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

// NewsItem represents a single headline from the broker news feed
type NewsItem struct {
	ID        int64     `json:"id"`
	Headline  string    `json:"headline"`
	Summary   string    `json:"summary"`
	Symbols   []string  `json:"symbols"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	URL       string    `json:"url"`
}
