package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/turtlefunk/internal/broker"
	"github.com/ajitpratap0/turtlefunk/internal/config"
	"github.com/ajitpratap0/turtlefunk/internal/decision"
	"github.com/ajitpratap0/turtlefunk/internal/execution"
	"github.com/ajitpratap0/turtlefunk/internal/journal"
	"github.com/ajitpratap0/turtlefunk/internal/llm"
	"github.com/ajitpratap0/turtlefunk/internal/market"
	"github.com/ajitpratap0/turtlefunk/internal/portfolio"
	"github.com/ajitpratap0/turtlefunk/internal/risk"
	"github.com/ajitpratap0/turtlefunk/internal/signal"
)

const tradeReply = `{"action":"trade","signal_index":0,"notional_usd":25,"confidence":0.8,` +
	`"reason":"clean breakout","thesis":{"summary":"channel breakout with room to run",` +
	`"portfolio_fit":"empty book","regime":"trending"}}`

const passReply = `{"action":"no_trade","reason":"signals too weak"}`

// chatServer answers every chat completion request with content
func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"id":    "test",
			"model": "test-model",
			"choices": []map[string]interface{}{
				{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

type orchRig struct {
	orch     *Orchestrator
	broker   *broker.Mock
	criteria *portfolio.CriteriaStore
	pending  *execution.PendingStore
}

func newOrchRig(t *testing.T, mode, tier, llmReply string) *orchRig {
	t.Helper()

	cfg := &config.Config{
		Trading: config.TradingConfig{
			Mode:         mode,
			AutonomyTier: tier,
			Symbols:      []string{"SPY"},
			LoopSeconds:  60,
			LookbackDays: 90,
		},
		Risk: config.RiskConfig{
			MaxDollarsPerTrade: 25,
			MaxOpenPositions:   3,
			MaxTradesPerDay:    3,
			MaxDailyLoss:       10_000,
		},
		Sizer: config.SizerConfig{Enabled: false},
		Breaker: config.BreakerConfig{
			DailyLimit:      0.05,
			WeeklyLimit:     0.10,
			ReductionFactor: 0.5,
		},
	}

	server := chatServer(t, llmReply)
	t.Cleanup(server.Close)

	b := broker.NewMock()
	dir := t.TempDir()
	nop := zerolog.Nop()

	criteria := portfolio.NewCriteriaStore(dir+"/entry_criteria.json", nop)
	pending := execution.NewPendingStore(dir+"/pending_trades.json", nop)

	llmClient := llm.NewClient(config.LLMConfig{
		Endpoint:  server.URL,
		Model:     "test-model",
		MaxTokens: 500,
		TimeoutMS: 5000,
	})

	orch := New(cfg, Deps{
		Market:    market.NewClient(b, nop),
		Portfolio: portfolio.NewStore(b, criteria, nop),
		Criteria:  criteria,
		Generator: signal.NewGenerator(cfg.Signals, nop),
		Scorer:    signal.NewScorer(),
		Decider:   decision.NewAgent(llmClient, cfg.Risk.MaxDollarsPerTrade, 5, nop),
		Gate:      risk.NewGate(cfg.Risk, cfg.Trading.Symbols, nop),
		Sizer:     risk.NewSizer(cfg.Sizer, dir, nop),
		Breaker:   risk.NewBreaker(cfg.Breaker, dir, nop),
		Executor:  execution.NewAgent(b, pending, criteria, cfg.Trading, nop),
		Journal:   journal.NewJournal(dir, nop),
	}, nop)

	return &orchRig{orch: orch, broker: b, criteria: criteria, pending: pending}
}

func flatBars(n int, price float64) []broker.Bar {
	bars := make([]broker.Bar, n)
	ts := time.Now().AddDate(0, 0, -n)
	for i := range bars {
		bars[i] = broker.Bar{
			Timestamp: ts.AddDate(0, 0, i),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1000,
		}
	}
	return bars
}

// setBreakout arranges flat history at 100 and a quote well above the channel
func (r *orchRig) setBreakout() {
	r.broker.SetBars("SPY", flatBars(60, 100))
	r.broker.SetQuote("SPY", 103)
}

func TestTickBreakoutExecutesTrade(t *testing.T) {
	rig := newOrchRig(t, "paper", "full_agentic", tradeReply)
	rig.setBreakout()

	lr := rig.orch.Tick(context.Background())

	require.True(t, lr.Decision.IsTrade())
	assert.Equal(t, "SPY", lr.Decision.Trade.Symbol)
	require.NotNil(t, lr.Order)
	assert.Equal(t, execution.StatusExecuted, lr.Order.Status)

	require.Len(t, rig.broker.Orders_, 1)
	assert.Equal(t, broker.SideBuy, rig.broker.Orders_[0].Side)
	assert.InDelta(t, 25.0, rig.broker.Orders_[0].Notional, 1e-9)

	// A filled entry leaves criteria behind for exit generation
	ec, ok := rig.criteria.Get("SPY")
	require.True(t, ok)
	assert.Equal(t, "long", ec.Side)
	assert.InDelta(t, 103-2*2.0, ec.StopPrice, 1e-9)
}

func TestTickNoBreakoutNoTrade(t *testing.T) {
	rig := newOrchRig(t, "paper", "full_agentic", tradeReply)
	rig.broker.SetBars("SPY", flatBars(60, 100))
	rig.broker.SetQuote("SPY", 100)

	lr := rig.orch.Tick(context.Background())

	assert.False(t, lr.Decision.IsTrade())
	assert.Equal(t, "No signals generated this loop", lr.Decision.Reason)
	require.NotNil(t, lr.Order)
	assert.Equal(t, execution.StatusSkipped, lr.Order.Status)
	assert.Empty(t, rig.broker.Orders_)
}

func TestTickModelDeclines(t *testing.T) {
	rig := newOrchRig(t, "paper", "full_agentic", passReply)
	rig.setBreakout()

	lr := rig.orch.Tick(context.Background())

	assert.False(t, lr.Decision.IsTrade())
	assert.Equal(t, "signals too weak", lr.Decision.Reason)
	assert.NotZero(t, lr.Decision.SignalsConsidered)
	assert.Empty(t, rig.broker.Orders_)
}

func TestTickDataUnavailable(t *testing.T) {
	rig := newOrchRig(t, "paper", "full_agentic", tradeReply)

	lr := rig.orch.Tick(context.Background())

	assert.Equal(t, "DATA_UNAVAILABLE", lr.Decision.Reason)
	assert.NotEmpty(t, lr.Errors)
	assert.Nil(t, lr.Order)
}

func TestTickPortfolioUnavailable(t *testing.T) {
	rig := newOrchRig(t, "paper", "full_agentic", tradeReply)
	rig.setBreakout()
	rig.broker.FailNext("account", assert.AnError)

	lr := rig.orch.Tick(context.Background())

	assert.Equal(t, "PORTFOLIO_UNAVAILABLE", lr.Decision.Reason)
	assert.Empty(t, rig.broker.Orders_)
}

func TestTickShadowSurvivesPortfolioFailure(t *testing.T) {
	rig := newOrchRig(t, "shadow", "full_agentic", tradeReply)
	rig.setBreakout()
	rig.broker.FailNext("account", assert.AnError)

	lr := rig.orch.Tick(context.Background())

	// Shadow mode synthesises an empty state and keeps going
	assert.NotEqual(t, "PORTFOLIO_UNAVAILABLE", lr.Decision.Reason)
	require.NotNil(t, lr.Portfolio)
	assert.Empty(t, rig.broker.Orders_)
}

func TestTickShadowNeverPlacesOrders(t *testing.T) {
	rig := newOrchRig(t, "shadow", "full_agentic", tradeReply)
	rig.setBreakout()

	lr := rig.orch.Tick(context.Background())

	require.True(t, lr.Decision.IsTrade())
	require.NotNil(t, lr.Order)
	assert.Equal(t, execution.StatusShadow, lr.Order.Status)
	assert.Empty(t, rig.broker.Orders_)
}

func TestTickManualTierQueuesEntry(t *testing.T) {
	rig := newOrchRig(t, "paper", "manual", tradeReply)
	rig.setBreakout()

	lr := rig.orch.Tick(context.Background())

	require.NotNil(t, lr.Order)
	assert.Equal(t, execution.StatusQueued, lr.Order.Status)
	assert.NotEmpty(t, lr.Order.PendingID)
	assert.Empty(t, rig.broker.Orders_)
	assert.Len(t, rig.pending.List(), 1)
}

func TestTickStopExitBypassesModelAndExecutes(t *testing.T) {
	// Moderate tier auto-executes stop loss exits only
	rig := newOrchRig(t, "paper", "moderate", tradeReply)
	rig.broker.SetBars("SPY", flatBars(60, 100))
	rig.broker.SetQuote("SPY", 103)
	rig.broker.AddPosition(broker.Position{Symbol: "SPY", Qty: 2, MarketValue: 206})
	require.NoError(t, rig.criteria.Set(portfolio.EntryCriteria{
		Symbol: "SPY", StopPrice: 105, ExitRef: 92, ATRAtEntry: 2, System: signal.System1, Side: "long",
	}))

	lr := rig.orch.Tick(context.Background())

	require.True(t, lr.Decision.IsTrade())
	assert.Equal(t, signal.DirectionExitLong, lr.Decision.Trade.Signal.Direction)
	require.NotNil(t, lr.Order)
	assert.Equal(t, execution.StatusExecuted, lr.Order.Status)

	require.Len(t, rig.broker.Orders_, 1)
	assert.Equal(t, broker.SideSell, rig.broker.Orders_[0].Side)
	// The agent asks for the full position but the gate resizes to the cap
	assert.InDelta(t, 25.0, rig.broker.Orders_[0].Notional, 1e-9)
	_, ok := rig.criteria.Get("SPY")
	assert.False(t, ok)
}

func TestTickHaltedBreakerBlocksEntry(t *testing.T) {
	rig := newOrchRig(t, "paper", "full_agentic", tradeReply)
	rig.setBreakout()
	rig.broker.Account_.Equity = 94_000
	rig.broker.Account_.LastEquity = 100_000

	lr := rig.orch.Tick(context.Background())

	require.NotNil(t, lr.Breaker)
	assert.Equal(t, risk.StatusHalted, lr.Breaker.Status)
	require.NotNil(t, lr.Order)
	assert.Equal(t, execution.StatusBlocked, lr.Order.Status)
	assert.Contains(t, lr.Order.Message, "circuit breaker HALTED")
	assert.Empty(t, rig.broker.Orders_)
}

func TestTickHaltedBreakerStillAllowsExit(t *testing.T) {
	rig := newOrchRig(t, "paper", "moderate", tradeReply)
	rig.broker.SetBars("SPY", flatBars(60, 100))
	rig.broker.SetQuote("SPY", 103)
	rig.broker.Account_.Equity = 94_000
	rig.broker.Account_.LastEquity = 100_000
	rig.broker.AddPosition(broker.Position{Symbol: "SPY", Qty: 2, MarketValue: 206})
	require.NoError(t, rig.criteria.Set(portfolio.EntryCriteria{
		Symbol: "SPY", StopPrice: 105, ExitRef: 92, ATRAtEntry: 2, System: signal.System1, Side: "long",
	}))

	lr := rig.orch.Tick(context.Background())

	require.NotNil(t, lr.Breaker)
	assert.Equal(t, risk.StatusHalted, lr.Breaker.Status)
	require.NotNil(t, lr.Order)
	assert.Equal(t, execution.StatusExecuted, lr.Order.Status)
	require.Len(t, rig.broker.Orders_, 1)
	assert.Equal(t, broker.SideSell, rig.broker.Orders_[0].Side)
}

func TestTickWarningBreakerReducesSize(t *testing.T) {
	rig := newOrchRig(t, "paper", "full_agentic", tradeReply)
	rig.setBreakout()
	rig.broker.Account_.Equity = 97_000
	rig.broker.Account_.LastEquity = 100_000

	lr := rig.orch.Tick(context.Background())

	require.NotNil(t, lr.Breaker)
	assert.Equal(t, risk.StatusWarning, lr.Breaker.Status)
	require.NotNil(t, lr.Order)
	assert.Equal(t, execution.StatusExecuted, lr.Order.Status)
	require.Len(t, rig.broker.Orders_, 1)
	assert.InDelta(t, 12.5, rig.broker.Orders_[0].Notional, 1e-9)
}

func TestMomentumBySymbol(t *testing.T) {
	bars := flatBars(30, 100)
	bars[len(bars)-1].Close = 110
	snapshot := &market.Snapshot{Symbols: map[string]*market.SymbolData{
		"SPY":   {Symbol: "SPY", Bars: bars},
		"SHORT": {Symbol: "SHORT", Bars: flatBars(10, 50)},
	}}

	momentum := momentumBySymbol(snapshot)
	assert.InDelta(t, 10.0, momentum["SPY"], 1e-9)
	assert.NotContains(t, momentum, "SHORT")
}

func TestRunStopsOnCancel(t *testing.T) {
	rig := newOrchRig(t, "paper", "full_agentic", passReply)
	rig.broker.SetBars("SPY", flatBars(60, 100))
	rig.broker.SetQuote("SPY", 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rig.orch.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
