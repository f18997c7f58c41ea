package decision

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/turtlefunk/internal/portfolio"
	"github.com/ajitpratap0/turtlefunk/internal/signal"
)

const systemPrompt = `You are the decision layer of a Turtle-style breakout trading agent for US equities.

You are given a small set of pre-computed, pre-scored breakout signals. Your only job is to select at most ONE of them, or to pass. You must never invent a symbol, a side, or a signal that is not in the list. All prices, stops, and scores are computed deterministically upstream; do not recompute them.

Selection guidance:
- Prefer higher total_score unless the portfolio context argues otherwise
- Prefer signals that diversify the current holdings over concentrating them
- A thin breakout (low breakout_strength) in a crowded sector is a good reason to pass
- Passing is always acceptable; there is no pressure to trade

Respond with ONLY a JSON object, no prose, in exactly this format:
{
  "action": "trade" | "no_trade",
  "signal_index": <index into the candidate list, required when action is "trade">,
  "notional_usd": <dollar amount to commit, at most the stated maximum>,
  "confidence": <0.0 to 1.0>,
  "reason": "<one sentence, required when action is "no_trade">",
  "thesis": {
    "summary": "<one or two sentences on why this signal, now>",
    "portfolio_fit": "<how it sits against current holdings>",
    "regime": "<your read of the tape for this symbol>"
  }
}`

// PromptBuilder renders the per-loop user prompt for the decision agent
type PromptBuilder struct {
	maxNotional float64
}

// NewPromptBuilder creates a prompt builder with the per-trade dollar cap
func NewPromptBuilder(maxNotional float64) *PromptBuilder {
	return &PromptBuilder{maxNotional: maxNotional}
}

// SystemPrompt returns the fixed system prompt
func (pb *PromptBuilder) SystemPrompt() string {
	return systemPrompt
}

// BuildUserPrompt renders portfolio context, candidate signals, and optional
// research notes into the user message.
func (pb *PromptBuilder) BuildUserPrompt(candidates []signal.ScoredSignal, state *portfolio.State, research map[string]string) string {
	var b strings.Builder

	b.WriteString("## Portfolio\n")
	if state != nil {
		fmt.Fprintf(&b, "Equity: $%.2f | Cash: $%.2f | Day P&L: $%+.2f | Trades today: %d\n",
			state.Equity, state.Cash, state.PnLDay, state.TradesToday)
		if len(state.Positions) == 0 {
			b.WriteString("Positions: none\n")
		} else {
			b.WriteString("Positions:\n")
			for _, p := range state.Positions {
				fmt.Fprintf(&b, "- %s qty %.4f, market value $%.2f, unrealized $%+.2f\n",
					p.Symbol, p.Qty, p.MarketValue, p.UnrealizedPL)
			}
		}
	} else {
		b.WriteString("Portfolio state unavailable this loop.\n")
	}

	fmt.Fprintf(&b, "\n## Candidate signals (max notional per trade: $%.2f)\n", pb.maxNotional)
	for i, c := range candidates {
		sig := c.Signal
		fmt.Fprintf(&b, "[%d] %s %s S%d | price %.2f vs %d-day ref %.2f | ATR %.2f | stop %.2f | total_score %.2f (strength %.2f, system_bonus %.1f, momentum %.2f, correlation_penalty %.1f)\n",
			i, sig.Symbol, sig.Direction, sig.System, sig.CurrentPrice, sig.System, sig.EntryRef,
			sig.ATRN, sig.StopPrice, c.TotalScore, c.BreakoutStrength, c.SystemBonus,
			c.MomentumPerN, c.CorrelationPenalty)
	}

	if len(research) > 0 {
		b.WriteString("\n## Research notes\n")
		for _, c := range candidates {
			if note, ok := research[c.Signal.Symbol]; ok && note != "" {
				fmt.Fprintf(&b, "- %s: %s\n", c.Signal.Symbol, note)
			}
		}
	}

	b.WriteString("\nSelect at most one candidate by index, or pass. Respond with the JSON object only.")
	return b.String()
}
