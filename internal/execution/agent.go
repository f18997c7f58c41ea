package execution

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/turtlefunk/internal/broker"
	"github.com/ajitpratap0/turtlefunk/internal/config"
	"github.com/ajitpratap0/turtlefunk/internal/decision"
	"github.com/ajitpratap0/turtlefunk/internal/portfolio"
	"github.com/ajitpratap0/turtlefunk/internal/risk"
	"github.com/ajitpratap0/turtlefunk/internal/signal"
)

// OrderStatus describes what the execution stage did with a decision
type OrderStatus string

const (
	StatusBlocked     OrderStatus = "blocked"
	StatusSkipped     OrderStatus = "skipped"
	StatusShadow      OrderStatus = "shadow_mode"
	StatusLiveBlocked OrderStatus = "live_blocked"
	StatusExecuted    OrderStatus = "executed"
	StatusQueued      OrderStatus = "queued_for_approval"
	StatusError       OrderStatus = "error"
)

// OrderResult is the outcome of the execution stage for one loop
type OrderResult struct {
	Status    OrderStatus   `json:"status"`
	Order     *broker.Order `json:"order,omitempty"`
	PendingID string        `json:"pending_id,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Agent carries approved decisions to the broker, or parks them for a human,
// depending on trading mode and autonomy tier.
type Agent struct {
	broker   broker.Broker
	pending  *PendingStore
	criteria *portfolio.CriteriaStore
	mode     config.TradingMode
	tier     config.AutonomyTier
	liveOK   bool
	logger   zerolog.Logger
}

// NewAgent creates an execution agent
func NewAgent(b broker.Broker, pending *PendingStore, criteria *portfolio.CriteriaStore, cfg config.TradingConfig, logger zerolog.Logger) *Agent {
	return &Agent{
		broker:   b,
		pending:  pending,
		criteria: criteria,
		mode:     config.TradingMode(cfg.Mode),
		tier:     config.AutonomyTier(cfg.AutonomyTier),
		liveOK:   cfg.LiveTradingEnabled,
		logger:   logger,
	}
}

// Execute acts on a risk result. The order of checks is fixed: a blocked or
// empty decision never reaches the mode and autonomy logic.
func (a *Agent) Execute(ctx context.Context, rr risk.Result, state *portfolio.State) OrderResult {
	now := time.Now().UTC()

	if !rr.Allowed {
		return OrderResult{Status: StatusBlocked, Message: rr.FinalDecision.Reason, Timestamp: now}
	}
	if !rr.FinalDecision.IsTrade() {
		return OrderResult{Status: StatusSkipped, Message: rr.FinalDecision.Reason, Timestamp: now}
	}

	intent := *rr.FinalDecision.Trade

	if a.mode == config.ModeShadow {
		a.logger.Info().
			Str("symbol", intent.Symbol).
			Str("side", string(intent.Side)).
			Float64("notional", intent.NotionalUSD).
			Msg("Shadow mode, order not placed")
		return OrderResult{Status: StatusShadow, Message: "shadow mode, no order placed", Timestamp: now}
	}

	if a.mode == config.ModeLive && !a.liveOK {
		a.logger.Warn().Str("symbol", intent.Symbol).Msg("Live trading not enabled, refusing order")
		return OrderResult{Status: StatusLiveBlocked, Message: "live trading not enabled", Timestamp: now}
	}

	if a.autoExecute(intent) {
		return a.placeOrder(ctx, intent, now)
	}

	pt, err := a.pending.Create(intent, state, rr)
	if err != nil {
		a.logger.Error().Err(err).Str("symbol", intent.Symbol).Msg("Failed to queue pending trade")
		return OrderResult{Status: StatusError, Message: err.Error(), Timestamp: now}
	}
	return OrderResult{Status: StatusQueued, PendingID: pt.ID, Timestamp: now}
}

// autoExecute applies the autonomy matrix: full agentic always trades on its
// own, moderate only closes positions whose stop fired, manual never does.
func (a *Agent) autoExecute(intent decision.TradeIntent) bool {
	switch a.tier {
	case config.TierFullAgentic:
		return true
	case config.TierModerate:
		return isStopLossExit(intent)
	default:
		return false
	}
}

// isStopLossExit reports whether the intent closes a position on a stop hit
func isStopLossExit(intent decision.TradeIntent) bool {
	return intent.Signal.IsExit() && strings.HasPrefix(intent.Signal.Reason, "STOP LOSS")
}

func (a *Agent) placeOrder(ctx context.Context, intent decision.TradeIntent, now time.Time) OrderResult {
	order, err := a.broker.PlaceOrder(ctx, broker.PlaceOrderRequest{
		Symbol:      intent.Symbol,
		Notional:    intent.NotionalUSD,
		Side:        intent.Side,
		Type:        "market",
		TimeInForce: "day",
	})
	if err != nil {
		a.logger.Error().Err(err).Str("symbol", intent.Symbol).Msg("Order submission failed")
		return OrderResult{Status: StatusError, Message: err.Error(), Timestamp: now}
	}

	a.logger.Info().
		Str("symbol", intent.Symbol).
		Str("side", string(intent.Side)).
		Float64("notional", intent.NotionalUSD).
		Str("order_id", order.ID).
		Msg("Order placed")

	if intent.Signal.IsEntry() {
		recordEntryCriteria(a.criteria, intent, a.logger)
	} else if intent.Signal.IsExit() {
		if err := a.criteria.Clear(intent.Symbol); err != nil {
			a.logger.Warn().Err(err).Str("symbol", intent.Symbol).Msg("Failed to clear entry criteria")
		}
	}

	return OrderResult{Status: StatusExecuted, Order: order, Timestamp: now}
}

// recordEntryCriteria persists the levels governing a freshly opened position
// so the next loop can emit exit signals for it.
func recordEntryCriteria(criteria *portfolio.CriteriaStore, intent decision.TradeIntent, logger zerolog.Logger) {
	side := "long"
	if intent.Signal.Direction == signal.DirectionShort {
		side = "short"
	}
	ec := portfolio.EntryCriteria{
		Symbol:     intent.Symbol,
		StopPrice:  intent.StopPrice,
		ExitRef:    intent.ExitTrigger,
		ATRAtEntry: intent.Signal.ATRN,
		System:     intent.Signal.System,
		Side:       side,
		EnteredAt:  time.Now().UTC(),
	}
	if err := criteria.Set(ec); err != nil {
		logger.Warn().Err(err).Str("symbol", intent.Symbol).Msg("Failed to persist entry criteria")
	}
}
