package decision

import (
	"github.com/ajitpratap0/turtlefunk/internal/broker"
	"github.com/ajitpratap0/turtlefunk/internal/signal"
)

// Action discriminates the Decision variant
type Action string

const (
	ActionTrade   Action = "trade"
	ActionNoTrade Action = "no_trade"
)

// Thesis captures the reasoning attached to a trade intent
type Thesis struct {
	Summary      string  `json:"summary"`
	System       int     `json:"system"`
	BreakoutDays int     `json:"breakout_days"`
	ATRN         float64 `json:"atr_n"`
	StopN        float64 `json:"stop_n"`
	SignalScore  float64 `json:"signal_score"`
	PortfolioFit string  `json:"portfolio_fit"`
	Regime       string  `json:"regime"`
}

// TradeIntent is a concrete, sized intention to trade one symbol
type TradeIntent struct {
	Symbol      string           `json:"symbol"`
	Side        broker.OrderSide `json:"side"`
	NotionalUSD float64          `json:"notional_usd"`
	Signal      signal.Signal    `json:"signal"`
	StopPrice   float64          `json:"stop_price"`
	ExitTrigger float64          `json:"exit_trigger"`
	Thesis      Thesis           `json:"thesis"`
	Confidence  float64          `json:"confidence"` // 0..1
}

// Decision is a tagged union: exactly one of Trade or the NoTrade fields is
// meaningful, discriminated by Action.
type Decision struct {
	Action            Action       `json:"action"`
	Trade             *TradeIntent `json:"trade,omitempty"`
	Reason            string       `json:"reason,omitempty"`
	SignalsConsidered int          `json:"signals_considered,omitempty"`
}

// IsTrade reports whether the decision carries a trade intent
func (d *Decision) IsTrade() bool {
	return d.Action == ActionTrade && d.Trade != nil
}

// NoTrade builds a no-trade decision with a reason
func NoTrade(reason string) Decision {
	return Decision{Action: ActionNoTrade, Reason: reason}
}

// NoTradeConsidered builds a no-trade decision recording how many signals
// were considered before passing.
func NoTradeConsidered(reason string, considered int) Decision {
	return Decision{Action: ActionNoTrade, Reason: reason, SignalsConsidered: considered}
}
