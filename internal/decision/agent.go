package decision

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/turtlefunk/internal/broker"
	"github.com/ajitpratap0/turtlefunk/internal/llm"
	"github.com/ajitpratap0/turtlefunk/internal/portfolio"
	"github.com/ajitpratap0/turtlefunk/internal/signal"
)

// Agent turns scored signals into at most one trade intent per loop.
// Exits are handled deterministically; only entries go to the model, and
// everything the model returns is clamped back onto a real candidate signal.
type Agent struct {
	llm         *llm.Client
	prompts     *PromptBuilder
	maxNotional float64
	topK        int
	logger      zerolog.Logger
}

// NewAgent creates a decision agent
func NewAgent(client *llm.Client, maxNotional float64, topK int, logger zerolog.Logger) *Agent {
	if topK <= 0 {
		topK = 5
	}
	return &Agent{
		llm:         client,
		prompts:     NewPromptBuilder(maxNotional),
		maxNotional: maxNotional,
		topK:        topK,
		logger:      logger,
	}
}

// llmDecision is the shape the model is asked to return
type llmDecision struct {
	Action      string  `json:"action"`
	SignalIndex int     `json:"signal_index"`
	NotionalUSD float64 `json:"notional_usd"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
	Thesis      struct {
		Summary      string `json:"summary"`
		PortfolioFit string `json:"portfolio_fit"`
		Regime       string `json:"regime"`
	} `json:"thesis"`
}

// Decide selects at most one signal to act on. Signals arrive already sorted
// with exits first; an exit short-circuits the model entirely because closing
// a position whose trigger fired is not a judgment call.
func (a *Agent) Decide(ctx context.Context, scored []signal.ScoredSignal, state *portfolio.State, research map[string]string) Decision {
	if len(scored) == 0 {
		return NoTrade("No signals generated this loop")
	}

	if scored[0].Signal.IsExit() {
		return a.exitDecision(scored[0], state)
	}

	candidates := scored
	if len(candidates) > a.topK {
		candidates = candidates[:a.topK]
	}

	userPrompt := a.prompts.BuildUserPrompt(candidates, state, research)
	content, err := a.llm.CompleteWithSystem(ctx, a.prompts.SystemPrompt(), userPrompt)
	if err != nil {
		a.logger.Error().Err(err).Msg("LLM decision call failed")
		return NoTradeConsidered(fmt.Sprintf("Decision error: %v", err), len(candidates))
	}

	var parsed llmDecision
	if err := llm.ParseJSONResponse(content, &parsed); err != nil {
		a.logger.Error().Err(err).Str("content", content).Msg("Failed to parse LLM decision")
		return NoTradeConsidered(fmt.Sprintf("Failed to parse decision: %v", err), len(candidates))
	}

	if parsed.Action != string(ActionTrade) {
		reason := parsed.Reason
		if reason == "" {
			reason = "Model declined to trade"
		}
		return NoTradeConsidered(reason, len(candidates))
	}

	return a.tradeDecision(parsed, candidates)
}

// tradeDecision binds the model's choice to a concrete candidate. The model
// only contributes the index, the notional, the confidence, and the thesis
// text; symbol, side, stop, and exit trigger always come from the signal it
// picked, so a confabulated ticker cannot reach the broker.
func (a *Agent) tradeDecision(parsed llmDecision, candidates []signal.ScoredSignal) Decision {
	idx := parsed.SignalIndex
	if idx < 0 {
		idx = 0
	}
	if idx >= len(candidates) {
		idx = len(candidates) - 1
	}
	chosen := candidates[idx]
	sig := chosen.Signal

	notional := parsed.NotionalUSD
	if notional <= 0 || notional > a.maxNotional {
		notional = a.maxNotional
	}

	confidence := math.Max(0, math.Min(1, parsed.Confidence))

	intent := &TradeIntent{
		Symbol:      sig.Symbol,
		Side:        sideForDirection(sig.Direction),
		NotionalUSD: notional,
		Signal:      sig,
		StopPrice:   sig.StopPrice,
		ExitTrigger: sig.ExitRef,
		Confidence:  confidence,
		Thesis: Thesis{
			Summary:      parsed.Thesis.Summary,
			System:       sig.System,
			BreakoutDays: sig.System,
			ATRN:         sig.ATRN,
			StopN:        stopDistanceN(sig),
			SignalScore:  chosen.TotalScore,
			PortfolioFit: parsed.Thesis.PortfolioFit,
			Regime:       parsed.Thesis.Regime,
		},
	}
	if intent.Thesis.Summary == "" {
		intent.Thesis.Summary = sig.Reason
	}

	a.logger.Info().
		Str("symbol", intent.Symbol).
		Str("side", string(intent.Side)).
		Float64("notional", intent.NotionalUSD).
		Float64("confidence", intent.Confidence).
		Msg("Model selected a trade")

	return Decision{Action: ActionTrade, Trade: intent, SignalsConsidered: len(candidates)}
}

// exitDecision closes a position whose stop or system exit fired. The
// notional covers the full position when we can see it, otherwise it falls
// back to the per-trade cap; the risk gate resizes either way.
func (a *Agent) exitDecision(exit signal.ScoredSignal, state *portfolio.State) Decision {
	sig := exit.Signal

	notional := a.maxNotional
	if state != nil {
		if pos := state.FindPosition(sig.Symbol); pos != nil && pos.MarketValue != 0 {
			notional = math.Abs(pos.MarketValue)
		}
	}

	intent := &TradeIntent{
		Symbol:      sig.Symbol,
		Side:        sideForDirection(sig.Direction),
		NotionalUSD: notional,
		Signal:      sig,
		StopPrice:   sig.StopPrice,
		ExitTrigger: sig.ExitRef,
		Confidence:  0.95,
		Thesis: Thesis{
			Summary:     sig.Reason,
			System:      sig.System,
			ATRN:        sig.ATRN,
			SignalScore: exit.TotalScore,
		},
	}

	a.logger.Info().
		Str("symbol", sig.Symbol).
		Str("direction", string(sig.Direction)).
		Str("reason", sig.Reason).
		Msg("Exit signal bypasses model")

	return Decision{Action: ActionTrade, Trade: intent, SignalsConsidered: 1}
}

// stopDistanceN expresses the stop distance in ATR units
func stopDistanceN(sig signal.Signal) float64 {
	if sig.ATRN <= 0 {
		return 0
	}
	return math.Abs(sig.CurrentPrice-sig.StopPrice) / sig.ATRN
}

// sideForDirection maps a signal direction to the order side that expresses it
func sideForDirection(d signal.Direction) broker.OrderSide {
	switch d {
	case signal.DirectionLong, signal.DirectionExitShort:
		return broker.SideBuy
	default:
		return broker.SideSell
	}
}
