package execution

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/turtlefunk/internal/broker"
	"github.com/ajitpratap0/turtlefunk/internal/config"
	"github.com/ajitpratap0/turtlefunk/internal/decision"
	"github.com/ajitpratap0/turtlefunk/internal/portfolio"
	"github.com/ajitpratap0/turtlefunk/internal/risk"
	"github.com/ajitpratap0/turtlefunk/internal/signal"
)

type testRig struct {
	agent    *Agent
	broker   *broker.Mock
	pending  *PendingStore
	criteria *portfolio.CriteriaStore
}

func newRig(t *testing.T, mode, tier string, liveOK bool) *testRig {
	t.Helper()
	dir := t.TempDir()
	b := broker.NewMock()
	b.SetQuote("SPY", 100)
	pending := NewPendingStore(filepath.Join(dir, "pending_trades.json"), zerolog.Nop())
	criteria := portfolio.NewCriteriaStore(filepath.Join(dir, "entry_criteria.json"), zerolog.Nop())
	agent := NewAgent(b, pending, criteria, config.TradingConfig{
		Mode:               mode,
		AutonomyTier:       tier,
		LiveTradingEnabled: liveOK,
	}, zerolog.Nop())
	return &testRig{agent: agent, broker: b, pending: pending, criteria: criteria}
}

func entryResult(symbol string, notional float64) risk.Result {
	intent := &decision.TradeIntent{
		Symbol:      symbol,
		Side:        broker.SideBuy,
		NotionalUSD: notional,
		StopPrice:   96,
		ExitTrigger: 92,
		Signal: signal.Signal{
			Symbol:    symbol,
			Direction: signal.DirectionLong,
			System:    signal.System1,
			ATRN:      2,
			StopPrice: 96,
			ExitRef:   92,
			Reason:    "S1 LONG breakout",
		},
	}
	d := decision.Decision{Action: decision.ActionTrade, Trade: intent}
	return risk.Result{Allowed: true, OriginalDecision: d, FinalDecision: d}
}

func stopExitResult(symbol string) risk.Result {
	intent := &decision.TradeIntent{
		Symbol:      symbol,
		Side:        broker.SideSell,
		NotionalUSD: 25,
		Signal: signal.Signal{
			Symbol:    symbol,
			Direction: signal.DirectionExitLong,
			System:    signal.System1,
			Reason:    "STOP LOSS: " + symbol + " at 88.00 breached stop 89.00",
		},
	}
	d := decision.Decision{Action: decision.ActionTrade, Trade: intent}
	return risk.Result{Allowed: true, OriginalDecision: d, FinalDecision: d}
}

func systemExitResult(symbol string) risk.Result {
	rr := stopExitResult(symbol)
	rr.FinalDecision.Trade.Signal.Reason = "SYSTEM EXIT: " + symbol + " below exit channel"
	return rr
}

func TestExecuteBlocked(t *testing.T) {
	rig := newRig(t, "paper", "full_agentic", false)
	rr := risk.Result{
		Allowed:       false,
		FinalDecision: decision.NoTrade("Risk gate blocked: daily loss"),
	}

	or := rig.agent.Execute(context.Background(), rr, &portfolio.State{})
	assert.Equal(t, StatusBlocked, or.Status)
	assert.Empty(t, rig.broker.Orders_)
}

func TestExecuteSkippedOnNoTrade(t *testing.T) {
	rig := newRig(t, "paper", "full_agentic", false)
	d := decision.NoTrade("nothing compelling")
	rr := risk.Result{Allowed: true, OriginalDecision: d, FinalDecision: d}

	or := rig.agent.Execute(context.Background(), rr, &portfolio.State{})
	assert.Equal(t, StatusSkipped, or.Status)
}

func TestExecuteShadowModePlacesNothing(t *testing.T) {
	rig := newRig(t, "shadow", "full_agentic", false)

	or := rig.agent.Execute(context.Background(), entryResult("SPY", 25), &portfolio.State{})
	assert.Equal(t, StatusShadow, or.Status)
	assert.Empty(t, rig.broker.Orders_)
}

func TestExecuteLiveBlockedWithoutEnable(t *testing.T) {
	rig := newRig(t, "live", "full_agentic", false)

	or := rig.agent.Execute(context.Background(), entryResult("SPY", 25), &portfolio.State{})
	assert.Equal(t, StatusLiveBlocked, or.Status)
	assert.Empty(t, rig.broker.Orders_)
}

func TestExecuteFullAgenticPlacesOrder(t *testing.T) {
	rig := newRig(t, "paper", "full_agentic", false)

	or := rig.agent.Execute(context.Background(), entryResult("SPY", 25), &portfolio.State{})
	require.Equal(t, StatusExecuted, or.Status)
	require.NotNil(t, or.Order)
	assert.Equal(t, "SPY", or.Order.Symbol)
	assert.InDelta(t, 25.0, or.Order.Notional, 1e-9)

	// Entry criteria persisted for the next loop's exit checks
	ec, ok := rig.criteria.Get("SPY")
	require.True(t, ok)
	assert.InDelta(t, 96.0, ec.StopPrice, 1e-9)
	assert.InDelta(t, 92.0, ec.ExitRef, 1e-9)
	assert.Equal(t, "long", ec.Side)
}

func TestExecuteExitClearsCriteria(t *testing.T) {
	rig := newRig(t, "paper", "full_agentic", false)
	require.NoError(t, rig.criteria.Set(portfolio.EntryCriteria{Symbol: "SPY", StopPrice: 89, Side: "long"}))

	or := rig.agent.Execute(context.Background(), stopExitResult("SPY"), &portfolio.State{})
	require.Equal(t, StatusExecuted, or.Status)

	_, ok := rig.criteria.Get("SPY")
	assert.False(t, ok)
}

func TestExecuteManualQueues(t *testing.T) {
	rig := newRig(t, "paper", "manual", false)

	or := rig.agent.Execute(context.Background(), entryResult("SPY", 25), &portfolio.State{})
	require.Equal(t, StatusQueued, or.Status)
	assert.NotEmpty(t, or.PendingID)
	assert.Empty(t, rig.broker.Orders_)

	trades := rig.pending.List()
	require.Len(t, trades, 1)
	assert.Equal(t, PendingStatusPending, trades[0].Status)
}

func TestExecuteModerateQueuesEntries(t *testing.T) {
	rig := newRig(t, "paper", "moderate", false)

	or := rig.agent.Execute(context.Background(), entryResult("SPY", 25), &portfolio.State{})
	assert.Equal(t, StatusQueued, or.Status)
}

func TestExecuteModerateAutoExecutesStopLoss(t *testing.T) {
	rig := newRig(t, "paper", "moderate", false)

	or := rig.agent.Execute(context.Background(), stopExitResult("SPY"), &portfolio.State{})
	assert.Equal(t, StatusExecuted, or.Status)
}

func TestExecuteModerateQueuesSystemExit(t *testing.T) {
	rig := newRig(t, "paper", "moderate", false)

	or := rig.agent.Execute(context.Background(), systemExitResult("SPY"), &portfolio.State{})
	assert.Equal(t, StatusQueued, or.Status)
}

func TestExecuteBrokerError(t *testing.T) {
	rig := newRig(t, "paper", "full_agentic", false)
	rig.broker.FailNext("order", errors.New("insufficient buying power"))

	or := rig.agent.Execute(context.Background(), entryResult("SPY", 25), &portfolio.State{})
	assert.Equal(t, StatusError, or.Status)
	assert.Contains(t, or.Message, "insufficient buying power")
}
