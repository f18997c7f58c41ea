package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Trading loop metrics
var (
	LoopsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turtlefunk_loops_total",
		Help: "Total number of trading loops completed",
	})

	LoopDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "turtlefunk_loop_duration_seconds",
		Help:    "Duration of a full trading loop",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	LoopErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turtlefunk_loop_errors_total",
		Help: "Total number of loops that recorded at least one error",
	})

	SignalsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turtlefunk_signals_generated_total",
		Help: "Breakout signals generated, by direction",
	}, []string{"direction"})

	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turtlefunk_decisions_total",
		Help: "Decisions made, by action",
	}, []string{"action"})

	RiskBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turtlefunk_risk_blocks_total",
		Help: "Trades blocked by the risk gate",
	})

	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turtlefunk_orders_placed_total",
		Help: "Orders placed at the broker, by side",
	}, []string{"side"})

	PendingQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turtlefunk_pending_queued_total",
		Help: "Trades queued for human approval",
	})
)

// Account metrics
var (
	Equity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "turtlefunk_equity_usd",
		Help: "Current account equity in USD",
	})

	PnLDay = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "turtlefunk_pnl_day_usd",
		Help: "Equity change since the previous close in USD",
	})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "turtlefunk_open_positions",
		Help: "Number of currently open positions",
	})

	BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "turtlefunk_breaker_state",
		Help: "Drawdown circuit breaker state (0=normal, 1=warning, 2=halted)",
	})
)

// External call metrics
var (
	BrokerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turtlefunk_broker_requests_total",
		Help: "Broker API requests, by result",
	}, []string{"result"})

	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turtlefunk_llm_requests_total",
		Help: "LLM API requests, by result",
	}, []string{"result"})

	ToolCacheHitRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "turtlefunk_tool_cache_hit_rate",
		Help: "Hit rate of the tool bridge cache",
	})
)

// HTTP surface metrics
var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turtlefunk_http_requests_total",
		Help: "HTTP requests served, by route and status",
	}, []string{"route", "status"})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turtlefunk_http_rate_limited_total",
		Help: "HTTP requests rejected by the rate limiter, by route",
	}, []string{"route"})
)

// SetBreakerState records the breaker state as a numeric gauge
func SetBreakerState(status string) {
	switch status {
	case "WARNING":
		BreakerState.Set(1)
	case "HALTED":
		BreakerState.Set(2)
	default:
		BreakerState.Set(0)
	}
}
