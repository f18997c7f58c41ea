package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/turtlefunk/internal/broker"
	"github.com/ajitpratap0/turtlefunk/internal/config"
	"github.com/ajitpratap0/turtlefunk/internal/execution"
	"github.com/ajitpratap0/turtlefunk/internal/market"
	"github.com/ajitpratap0/turtlefunk/internal/metrics"
	"github.com/ajitpratap0/turtlefunk/internal/portfolio"
	"github.com/ajitpratap0/turtlefunk/internal/risk"
	"github.com/ajitpratap0/turtlefunk/internal/toolbridge"
)

// Server is the read-mostly HTTP surface: account and market snapshots for
// observers, plus the pending-trade approval commands.
type Server struct {
	router   *gin.Engine
	broker   broker.Broker
	market   *market.Client
	gate     *risk.Gate
	pending  *execution.PendingStore
	criteria *portfolio.CriteriaStore
	bridge   *toolbridge.Bridge
	cfg      *config.Config
	logger   zerolog.Logger
	server   *http.Server
}

// NewServer creates the API server and wires its routes
func NewServer(cfg *config.Config, b broker.Broker, m *market.Client, gate *risk.Gate, pending *execution.PendingStore, criteria *portfolio.CriteriaStore, bridge *toolbridge.Bridge, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))
	router.Use(metricsMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}))

	s := &Server{
		router:   router,
		broker:   b,
		market:   m,
		gate:     gate,
		pending:  pending,
		criteria: criteria,
		bridge:   bridge,
		cfg:      cfg,
		logger:   logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	limiter := NewRateLimiter()

	s.router.GET("/health", s.handleHealth)

	account := limiter.Middleware("account")
	s.router.GET("/account", account, s.handleAccount)
	s.router.GET("/positions", account, s.handlePositions)
	s.router.GET("/orders", account, s.handleOrders)
	s.router.GET("/clock", account, s.handleClock)
	s.router.GET("/snapshot/:symbol", account, s.handleSnapshot)
	s.router.GET("/risk-limits", account, s.handleRiskLimits)

	s.router.GET("/quotes", limiter.Middleware("quotes"), s.handleQuotes)
	s.router.GET("/bars/:symbol", limiter.Middleware("bars"), s.handleBars)
	s.router.GET("/news", limiter.Middleware("news"), s.handleNews)

	s.router.POST("/order", limiter.Middleware("order"), s.handleOrder)

	pending := limiter.Middleware("pending")
	s.router.GET("/pending-trades", pending, s.handlePendingList)
	s.router.POST("/pending-trades/:id/approve", pending, s.handlePendingApprove)
	s.router.POST("/pending-trades/:id/reject", pending, s.handlePendingReject)

	if s.bridge != nil {
		s.router.GET("/tools/stats", account, s.handleToolStats)
	}

	if s.cfg.Monitoring.EnableMetrics {
		s.router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
}

// Start runs the HTTP server until it is shut down
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.API.GetAPIAddr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping API server")
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}
	return nil
}

// Router exposes the gin engine for tests
func (s *Server) Router() http.Handler {
	return s.router
}

func loggerMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		event := logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP())
		if len(c.Errors) > 0 {
			event.Str("errors", c.Errors.String())
		}
		event.Msg("API request")
	}
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		metrics.HTTPRequests.WithLabelValues(route, fmt.Sprintf("%d", c.Writer.Status())).Inc()
	}
}
