package journal

import (
	"time"

	"github.com/ajitpratap0/turtlefunk/internal/decision"
	"github.com/ajitpratap0/turtlefunk/internal/execution"
	"github.com/ajitpratap0/turtlefunk/internal/market"
	"github.com/ajitpratap0/turtlefunk/internal/portfolio"
	"github.com/ajitpratap0/turtlefunk/internal/risk"
	"github.com/ajitpratap0/turtlefunk/internal/signal"
)

// LoopResult is the complete record of one tick, serialised verbatim into the
// loops stream. Everything the agent saw and did lives here.
type LoopResult struct {
	LoopID    string                   `json:"loop_id"`
	Timestamp time.Time                `json:"timestamp"`
	Snapshot  *market.Snapshot         `json:"snapshot,omitempty"`
	Signals   []signal.ScoredSignal    `json:"signals,omitempty"`
	Portfolio *portfolio.State         `json:"portfolio,omitempty"`
	Decision  decision.Decision        `json:"decision"`
	Risk      *risk.Result             `json:"risk,omitempty"`
	Breaker   *risk.BreakerCheck       `json:"breaker,omitempty"`
	Sizing    *risk.SizeResult         `json:"sizing,omitempty"`
	Order     *execution.OrderResult   `json:"order,omitempty"`
	Pending   *execution.PendingTrade  `json:"pending,omitempty"`
	Duration  time.Duration            `json:"duration_ns"`
	Errors    []string                 `json:"errors,omitempty"`
}

// TradeEvent is one entry or exit as it hits the trades stream
type TradeEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	LoopID     string    `json:"loop_id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Direction  string    `json:"direction"`
	System     int       `json:"system"`
	Notional   float64   `json:"notional"`
	OrderID    string    `json:"order_id,omitempty"`
	Status     string    `json:"status"`
	Thesis     string    `json:"thesis,omitempty"`
	ExitReason string    `json:"exit_reason,omitempty"`
}

// EquitySnapshot is one line of the equity stream
type EquitySnapshot struct {
	Timestamp   time.Time `json:"timestamp"`
	LoopID      string    `json:"loop_id"`
	Equity      float64   `json:"equity"`
	Cash        float64   `json:"cash"`
	BuyingPower float64   `json:"buying_power"`
	PnLDay      float64   `json:"pnl_day"`
	Positions   int       `json:"positions"`
}
