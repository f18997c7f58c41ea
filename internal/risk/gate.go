package risk

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/turtlefunk/internal/broker"
	"github.com/ajitpratap0/turtlefunk/internal/config"
	"github.com/ajitpratap0/turtlefunk/internal/decision"
	"github.com/ajitpratap0/turtlefunk/internal/portfolio"
)

// Result is the outcome of running a decision through the gate. FinalDecision
// is what execution acts on; OriginalDecision is kept for the journal.
type Result struct {
	Allowed          bool              `json:"allowed"`
	Notes            []string          `json:"notes,omitempty"`
	Violations       []string          `json:"violations,omitempty"`
	OriginalDecision decision.Decision `json:"original_decision"`
	FinalDecision    decision.Decision `json:"final_decision"`
}

// Gate is the deterministic policy wall between the decision agent and the
// broker. No model output can move money without passing every rule here.
type Gate struct {
	cfg     config.RiskConfig
	allowed map[string]bool
	logger  zerolog.Logger
}

// NewGate creates a risk gate over the configured symbol allowlist
func NewGate(cfg config.RiskConfig, symbols []string, logger zerolog.Logger) *Gate {
	allowed := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		allowed[strings.ToUpper(s)] = true
	}
	return &Gate{cfg: cfg, allowed: allowed, logger: logger}
}

// Check applies every rule in order, accumulating violations, then settles on
// a final decision once. An over-cap notional is resized rather than blocked.
// Exit trades skip the pyramiding and position-count rules because they reduce
// exposure instead of adding it.
func (g *Gate) Check(d decision.Decision, state *portfolio.State) Result {
	result := Result{OriginalDecision: d, FinalDecision: d}

	if !d.IsTrade() {
		result.Allowed = true
		return result
	}

	intent := *d.Trade
	isExit := intent.Signal.IsExit()

	if !g.allowed[intent.Symbol] {
		result.Violations = append(result.Violations,
			fmt.Sprintf("symbol %s is not in the allowlist", intent.Symbol))
	}

	if intent.NotionalUSD > g.cfg.MaxDollarsPerTrade {
		result.Notes = append(result.Notes,
			fmt.Sprintf("notional $%.2f resized to cap $%.2f", intent.NotionalUSD, g.cfg.MaxDollarsPerTrade))
		intent.NotionalUSD = g.cfg.MaxDollarsPerTrade
	}

	if !isExit && intent.Side == broker.SideBuy && state != nil {
		if state.FindPosition(intent.Symbol) != nil {
			result.Violations = append(result.Violations,
				fmt.Sprintf("already holding %s, no pyramiding", intent.Symbol))
		}
		if len(state.Positions) >= g.cfg.MaxOpenPositions {
			result.Violations = append(result.Violations,
				fmt.Sprintf("open positions %d at limit %d", len(state.Positions), g.cfg.MaxOpenPositions))
		}
	}

	if state != nil {
		if state.TradesToday >= g.cfg.MaxTradesPerDay {
			result.Violations = append(result.Violations,
				fmt.Sprintf("trades today %d at limit %d", state.TradesToday, g.cfg.MaxTradesPerDay))
		}
		if state.PnLDay <= -g.cfg.MaxDailyLoss {
			result.Violations = append(result.Violations,
				fmt.Sprintf("daily loss $%.2f breaches limit $%.2f", state.PnLDay, g.cfg.MaxDailyLoss))
		}
		if intent.NotionalUSD > state.BuyingPower {
			result.Violations = append(result.Violations,
				fmt.Sprintf("notional $%.2f exceeds buying power $%.2f", intent.NotionalUSD, state.BuyingPower))
		}
	}

	if len(result.Violations) > 0 {
		reason := fmt.Sprintf("Risk gate blocked: %s", strings.Join(result.Violations, "; "))
		result.FinalDecision = decision.NoTrade(reason)
		g.logger.Warn().
			Str("symbol", intent.Symbol).
			Strs("violations", result.Violations).
			Msg("Risk gate blocked trade")
		return result
	}

	result.Allowed = true
	result.FinalDecision = decision.Decision{
		Action:            decision.ActionTrade,
		Trade:             &intent,
		SignalsConsidered: d.SignalsConsidered,
	}

	g.logger.Info().
		Str("symbol", intent.Symbol).
		Float64("notional", intent.NotionalUSD).
		Int("notes", len(result.Notes)).
		Msg("Risk gate passed trade")

	return result
}
