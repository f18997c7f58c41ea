package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ajitpratap0/turtlefunk/internal/broker"
	"github.com/ajitpratap0/turtlefunk/internal/decision"
	"github.com/ajitpratap0/turtlefunk/internal/metrics"
	"github.com/ajitpratap0/turtlefunk/internal/portfolio"
	"github.com/ajitpratap0/turtlefunk/internal/signal"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"mode":   s.cfg.Trading.Mode,
		"tier":   s.cfg.Trading.AutonomyTier,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleAccount(c *gin.Context) {
	acct, err := s.broker.GetAccount(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, acct)
}

func (s *Server) handlePositions(c *gin.Context) {
	positions, err := s.broker.GetPositions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	// Join with locally tracked entry criteria so observers see the stops
	out := make([]portfolio.Position, 0, len(positions))
	for _, bp := range positions {
		p := portfolio.Position{Position: bp}
		if ec, ok := s.criteria.Get(bp.Symbol); ok {
			p.EntryCriteria = &ec
		}
		out = append(out, p)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleOrders(c *gin.Context) {
	status := c.DefaultQuery("status", "open")
	limit := intQuery(c, "limit", 50)

	orders, err := s.broker.GetOrders(c.Request.Context(), status, limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) handleClock(c *gin.Context) {
	clock, err := s.broker.GetClock(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, clock)
}

func (s *Server) handleQuotes(c *gin.Context) {
	symbols := s.cfg.Trading.Symbols
	if q := c.Query("symbols"); q != "" {
		symbols = splitList(q)
	}

	quotes := make(map[string]*broker.Quote, len(symbols))
	for _, symbol := range symbols {
		quote, err := s.broker.GetLatestQuote(c.Request.Context(), symbol)
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Quote fetch failed")
			continue
		}
		quotes[symbol] = quote
	}
	c.JSON(http.StatusOK, quotes)
}

func (s *Server) handleBars(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	limit := intQuery(c, "limit", 60)

	bars, err := s.broker.GetBars(c.Request.Context(), symbol, limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, bars)
}

// handleSnapshot returns one symbol's market view with the derived channel
// levels the signal generator works from.
func (s *Server) handleSnapshot(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	snapshot := s.market.FetchSnapshot(c.Request.Context(), []string{symbol}, s.cfg.Trading.LookbackDays)
	sd, ok := snapshot.Symbols[symbol]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no data for " + symbol, "errors": snapshot.Errors})
		return
	}
	c.JSON(http.StatusOK, sd)
}

func (s *Server) handleNews(c *gin.Context) {
	symbols := s.cfg.Trading.Symbols
	if q := c.Query("symbols"); q != "" {
		symbols = splitList(q)
	}
	limit := intQuery(c, "limit", 10)

	news, err := s.broker.GetNews(c.Request.Context(), symbols, limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, news)
}

func (s *Server) handleRiskLimits(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"max_dollars_per_trade": s.cfg.Risk.MaxDollarsPerTrade,
		"max_open_positions":    s.cfg.Risk.MaxOpenPositions,
		"max_trades_per_day":    s.cfg.Risk.MaxTradesPerDay,
		"max_daily_loss":        s.cfg.Risk.MaxDailyLoss,
		"allowed_symbols":       s.cfg.Trading.Symbols,
	})
}

type orderRequest struct {
	Symbol   string  `json:"symbol" binding:"required"`
	Side     string  `json:"side" binding:"required"`
	Notional float64 `json:"notional" binding:"required,gt=0"`
}

// handleOrder runs a manual order through the same risk gate as the agent.
// There is no privileged path to the broker.
func (s *Server) handleOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	side := broker.OrderSide(strings.ToLower(req.Side))
	if side != broker.SideBuy && side != broker.SideSell {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be buy or sell"})
		return
	}
	symbol := strings.ToUpper(req.Symbol)

	state, err := s.fetchState(c)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "portfolio unavailable: " + err.Error()})
		return
	}

	intent := manualIntent(symbol, side, req.Notional, state)
	rr := s.gate.Check(decision.Decision{Action: decision.ActionTrade, Trade: &intent}, state)
	if !rr.Allowed {
		c.JSON(http.StatusForbidden, gin.H{
			"error":      rr.FinalDecision.Reason,
			"violations": rr.Violations,
		})
		return
	}

	final := *rr.FinalDecision.Trade
	order, err := s.broker.PlaceOrder(c.Request.Context(), broker.PlaceOrderRequest{
		Symbol:      final.Symbol,
		Notional:    final.NotionalUSD,
		Side:        final.Side,
		Type:        "market",
		TimeInForce: "day",
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order, "notes": rr.Notes})
}

// handleToolStats reports the companion-service cache statistics
func (s *Server) handleToolStats(c *gin.Context) {
	tools := s.bridge.Stats()
	metrics.ToolCacheHitRate.Set(tools.HitRate)
	c.JSON(http.StatusOK, gin.H{
		"tools":   tools,
		"context": s.bridge.ContextStats(),
	})
}

func (s *Server) handlePendingList(c *gin.Context) {
	c.JSON(http.StatusOK, s.pending.List())
}

func (s *Server) handlePendingApprove(c *gin.Context) {
	pt, err := s.pending.Approve(c.Request.Context(), c.Param("id"), s.broker, s.criteria)
	if err != nil {
		status := http.StatusConflict
		if pt == nil {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, pt)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handlePendingReject(c *gin.Context) {
	var req rejectRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "rejected via API"
	}

	pt, err := s.pending.Reject(c.Param("id"), req.Reason)
	if err != nil {
		status := http.StatusConflict
		if pt == nil {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, pt)
}

// fetchState reads a fresh portfolio snapshot for the risk gate
func (s *Server) fetchState(c *gin.Context) (*portfolio.State, error) {
	acct, err := s.broker.GetAccount(c.Request.Context())
	if err != nil {
		return nil, err
	}
	positions, err := s.broker.GetPositions(c.Request.Context())
	if err != nil {
		return nil, err
	}

	state := &portfolio.State{
		Equity:      acct.Equity,
		Cash:        acct.Cash,
		BuyingPower: acct.BuyingPower,
		PnLDay:      acct.Equity - acct.LastEquity,
		Timestamp:   time.Now().UTC(),
	}
	for _, bp := range positions {
		state.Positions = append(state.Positions, portfolio.Position{Position: bp})
	}
	return state, nil
}

// manualIntent wraps a manual order as a trade intent. A sell against an
// existing long is treated as an exit so the gate applies the right rules.
func manualIntent(symbol string, side broker.OrderSide, notional float64, state *portfolio.State) decision.TradeIntent {
	direction := signal.DirectionLong
	pos := state.FindPosition(symbol)
	if side == broker.SideSell {
		direction = signal.DirectionShort
		if pos != nil && pos.Qty > 0 {
			direction = signal.DirectionExitLong
		}
	} else if pos != nil && pos.Qty < 0 {
		direction = signal.DirectionExitShort
	}

	return decision.TradeIntent{
		Symbol:      symbol,
		Side:        side,
		NotionalUSD: notional,
		Signal: signal.Signal{
			Symbol:    symbol,
			Direction: direction,
			Reason:    "manual order via API",
		},
		Confidence: 1.0,
		Thesis:     decision.Thesis{Summary: "manual order via API"},
	}
}

func intQuery(c *gin.Context, key string, fallback int) int {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
