package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/turtlefunk/internal/config"
	"github.com/ajitpratap0/turtlefunk/internal/decision"
	"github.com/ajitpratap0/turtlefunk/internal/execution"
	"github.com/ajitpratap0/turtlefunk/internal/journal"
	"github.com/ajitpratap0/turtlefunk/internal/market"
	"github.com/ajitpratap0/turtlefunk/internal/metrics"
	"github.com/ajitpratap0/turtlefunk/internal/portfolio"
	"github.com/ajitpratap0/turtlefunk/internal/research"
	"github.com/ajitpratap0/turtlefunk/internal/risk"
	"github.com/ajitpratap0/turtlefunk/internal/signal"
)

// Orchestrator drives the full pipeline once per tick. Every stage runs in a
// fixed order; a tick never overlaps the next and never cancels mid-flight.
type Orchestrator struct {
	cfg       *config.Config
	market    *market.Client
	portfolio *portfolio.Store
	criteria  *portfolio.CriteriaStore
	generator *signal.Generator
	scorer    *signal.Scorer
	research  *research.Client
	decider   *decision.Agent
	gate      *risk.Gate
	sizer     *risk.Sizer
	breaker   *risk.Breaker
	executor  *execution.Agent
	journal   *journal.Journal
	logger    zerolog.Logger
}

// Deps bundles the pipeline components for construction
type Deps struct {
	Market    *market.Client
	Portfolio *portfolio.Store
	Criteria  *portfolio.CriteriaStore
	Generator *signal.Generator
	Scorer    *signal.Scorer
	Research  *research.Client
	Decider   *decision.Agent
	Gate      *risk.Gate
	Sizer     *risk.Sizer
	Breaker   *risk.Breaker
	Executor  *execution.Agent
	Journal   *journal.Journal
}

// New creates an orchestrator from its components
func New(cfg *config.Config, d Deps, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		market:    d.Market,
		portfolio: d.Portfolio,
		criteria:  d.Criteria,
		generator: d.Generator,
		scorer:    d.Scorer,
		research:  d.Research,
		decider:   d.Decider,
		gate:      d.Gate,
		sizer:     d.Sizer,
		breaker:   d.Breaker,
		executor:  d.Executor,
		journal:   d.Journal,
		logger:    logger,
	}
}

// Run ticks on the configured interval until ctx is cancelled. Cancellation
// is honoured only between ticks; an in-flight tick always completes.
func (o *Orchestrator) Run(ctx context.Context) {
	interval := o.cfg.Trading.LoopInterval()
	o.logger.Info().Dur("interval", interval).Msg("Trading loop started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			o.logger.Info().Msg("Trading loop stopped")
			return
		case <-ticker.C:
			o.Tick(ctx)
		}
	}
}

// Tick runs one full pipeline pass and journals the result. All errors are
// captured into the LoopResult; a failing tick never kills the process.
func (o *Orchestrator) Tick(ctx context.Context) *journal.LoopResult {
	start := time.Now()
	loopID := uuid.New().String()[:8]
	logger := o.logger.With().Str("loop_id", loopID).Logger()

	lr := &journal.LoopResult{
		LoopID:    loopID,
		Timestamp: start.UTC(),
	}
	defer func() {
		lr.Duration = time.Since(start)
		o.journal.WriteLoop(lr)
		metrics.LoopsTotal.Inc()
		metrics.LoopDuration.Observe(lr.Duration.Seconds())
		if len(lr.Errors) > 0 {
			metrics.LoopErrors.Inc()
		}
		metrics.Decisions.WithLabelValues(string(lr.Decision.Action)).Inc()
		logger.Info().
			Str("action", string(lr.Decision.Action)).
			Dur("duration", lr.Duration).
			Int("errors", len(lr.Errors)).
			Msg("Loop completed")
	}()

	// 1. Market snapshot
	snapshot := o.market.FetchSnapshot(ctx, o.cfg.Trading.Symbols, o.cfg.Trading.LookbackDays)
	lr.Snapshot = snapshot
	for _, fe := range snapshot.Errors {
		lr.Errors = append(lr.Errors, fmt.Sprintf("fetch %s (%s): %s", fe.Symbol, fe.Stage, fe.Error))
	}
	if !snapshot.DataAvailable {
		lr.Decision = decision.NoTrade("DATA_UNAVAILABLE")
		return lr
	}

	// 2. Portfolio state
	state, err := o.portfolio.Fetch(ctx)
	if err != nil {
		if config.TradingMode(o.cfg.Trading.Mode) == config.ModeShadow {
			logger.Warn().Err(err).Msg("Portfolio unavailable, shadow mode synthesises empty state")
			state = &portfolio.State{Timestamp: time.Now().UTC()}
		} else {
			lr.Errors = append(lr.Errors, fmt.Sprintf("portfolio: %v", err))
			lr.Decision = decision.NoTrade("PORTFOLIO_UNAVAILABLE")
			return lr
		}
	}
	lr.Portfolio = state
	o.recordAccountMetrics(state)

	// 3. Signals
	held := o.criteria.All()
	signals := o.generator.Generate(snapshot, held)
	for _, s := range signals {
		metrics.SignalsGenerated.WithLabelValues(string(s.Direction)).Inc()
	}
	momentum := momentumBySymbol(snapshot)
	scored := o.scorer.Score(signals, state, momentum)
	lr.Signals = scored

	// 4. Research enrichment, best effort
	var notes map[string]string
	if o.research != nil {
		notes = o.research.Enrich(ctx, scored)
	}

	// 5. Decision
	d := o.decider.Decide(ctx, scored, state, notes)
	lr.Decision = d

	// 6. Risk gate
	rr := o.gate.Check(d, state)
	lr.Risk = &rr
	if !rr.Allowed && d.IsTrade() {
		metrics.RiskBlocks.Inc()
	}

	// 7. Sizing and circuit breaker
	o.applySizing(&rr, state, lr, logger)

	// 8. Execute or queue
	or := o.executor.Execute(ctx, rr, state)
	lr.Order = &or
	o.recordExecution(lr, &or, rr, loopID)

	// Equity snapshot closes out the loop's observability
	o.journal.WriteEquity(journal.EquitySnapshot{
		Timestamp:   time.Now().UTC(),
		LoopID:      loopID,
		Equity:      state.Equity,
		Cash:        state.Cash,
		BuyingPower: state.BuyingPower,
		PnLDay:      state.PnLDay,
		Positions:   len(state.Positions),
	})

	return lr
}

// applySizing scales an allowed entry by the Kelly sizer and the drawdown
// breaker. Exits are exempt from both: closing risk is never throttled.
func (o *Orchestrator) applySizing(rr *risk.Result, state *portfolio.State, lr *journal.LoopResult, logger zerolog.Logger) {
	var todayPct float64
	if state.Equity > 0 {
		todayPct = state.PnLDay / state.Equity
	}
	check := o.breaker.Check(todayPct)
	lr.Breaker = &check
	metrics.SetBreakerState(string(check.Status))

	if !rr.Allowed || !rr.FinalDecision.IsTrade() {
		return
	}
	intent := rr.FinalDecision.Trade
	if intent.Signal.IsExit() {
		return
	}

	if check.Status == risk.StatusHalted {
		reason := fmt.Sprintf("Risk gate blocked: circuit breaker HALTED (%s)", check.Reason)
		rr.Allowed = false
		rr.Violations = append(rr.Violations, check.Reason)
		rr.FinalDecision = decision.NoTrade(reason)
		logger.Warn().Str("reason", check.Reason).Msg("Circuit breaker halted new entries")
		return
	}

	if o.cfg.Sizer.Enabled {
		sized := o.sizer.Size(state.Equity, intent.Signal.ScoreHint, intent.Signal.ATRN, intent.Signal.CurrentPrice)
		lr.Sizing = &sized
		if sized.PositionUSD > 0 && sized.PositionUSD < intent.NotionalUSD {
			intent.NotionalUSD = sized.PositionUSD
		}
	}

	intent.NotionalUSD *= check.Multiplier
	if intent.NotionalUSD <= 0 {
		rr.Allowed = false
		rr.FinalDecision = decision.NoTrade("Risk gate blocked: position sized to zero")
	}
}

// recordExecution journals trade events and bumps counters for orders that
// actually moved or queued money.
func (o *Orchestrator) recordExecution(lr *journal.LoopResult, or *execution.OrderResult, rr risk.Result, loopID string) {
	if !rr.FinalDecision.IsTrade() {
		return
	}
	intent := rr.FinalDecision.Trade

	switch or.Status {
	case execution.StatusExecuted:
		metrics.OrdersPlaced.WithLabelValues(string(intent.Side)).Inc()
		ev := journal.TradeEvent{
			Timestamp: or.Timestamp,
			LoopID:    loopID,
			Symbol:    intent.Symbol,
			Side:      string(intent.Side),
			Direction: string(intent.Signal.Direction),
			System:    intent.Signal.System,
			Notional:  intent.NotionalUSD,
			Status:    string(or.Status),
			Thesis:    intent.Thesis.Summary,
		}
		if or.Order != nil {
			ev.OrderID = or.Order.ID
		}
		if intent.Signal.IsExit() {
			ev.ExitReason = intent.Signal.Reason
		}
		o.journal.WriteTrade(ev)
	case execution.StatusQueued:
		metrics.PendingQueued.Inc()
	}
}

func (o *Orchestrator) recordAccountMetrics(state *portfolio.State) {
	metrics.Equity.Set(state.Equity)
	metrics.PnLDay.Set(state.PnLDay)
	metrics.OpenPositions.Set(float64(len(state.Positions)))
}

// momentumBySymbol measures each symbol's 20-day price change for the scorer
func momentumBySymbol(snapshot *market.Snapshot) map[string]float64 {
	momentum := make(map[string]float64, len(snapshot.Symbols))
	for symbol, sd := range snapshot.Symbols {
		n := len(sd.Bars)
		if n < 21 {
			continue
		}
		momentum[symbol] = sd.Bars[n-1].Close - sd.Bars[n-21].Close
	}
	return momentum
}
