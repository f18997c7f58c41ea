package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/turtlefunk/internal/api"
	"github.com/ajitpratap0/turtlefunk/internal/broker"
	"github.com/ajitpratap0/turtlefunk/internal/config"
	"github.com/ajitpratap0/turtlefunk/internal/decision"
	"github.com/ajitpratap0/turtlefunk/internal/execution"
	"github.com/ajitpratap0/turtlefunk/internal/journal"
	"github.com/ajitpratap0/turtlefunk/internal/llm"
	"github.com/ajitpratap0/turtlefunk/internal/market"
	"github.com/ajitpratap0/turtlefunk/internal/orchestrator"
	"github.com/ajitpratap0/turtlefunk/internal/portfolio"
	"github.com/ajitpratap0/turtlefunk/internal/research"
	"github.com/ajitpratap0/turtlefunk/internal/risk"
	tradesignal "github.com/ajitpratap0/turtlefunk/internal/signal"
	"github.com/ajitpratap0/turtlefunk/internal/toolbridge"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error().Err(err).Msg("Configuration invalid")
		os.Exit(1)
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	log.Info().
		Str("mode", cfg.Trading.Mode).
		Str("tier", cfg.Trading.AutonomyTier).
		Strs("symbols", cfg.Trading.Symbols).
		Msg("Starting TurtleFunk")

	b := broker.NewRESTClient(cfg.Broker, config.NewLogger("broker"))

	criteria := portfolio.NewCriteriaStore(
		filepath.Join(cfg.Journal.LogDir, "entry_criteria.json"),
		config.NewLogger("criteria"))
	store := portfolio.NewStore(b, criteria, config.NewLogger("portfolio"))

	pending := execution.NewPendingStore(
		filepath.Join(cfg.Journal.LogDir, "pending_trades.json"),
		config.NewLogger("pending"))

	gate := risk.NewGate(cfg.Risk, cfg.Trading.Symbols, config.NewLogger("risk"))
	sizer := risk.NewSizer(cfg.Sizer, cfg.Journal.LogDir, config.NewLogger("sizer"))
	breaker := risk.NewBreaker(cfg.Breaker, cfg.Journal.LogDir, config.NewLogger("breaker"))

	marketClient := market.NewClient(b, config.NewLogger("market"))
	generator := tradesignal.NewGenerator(cfg.Signals, config.NewLogger("signals"))
	scorer := tradesignal.NewScorer()

	llmClient := llm.NewClient(cfg.LLM)
	decider := decision.NewAgent(llmClient, cfg.Risk.MaxDollarsPerTrade, cfg.LLM.TopSignals, config.NewLogger("decision"))
	researcher := research.NewClient(cfg.Research, config.NewLogger("research"))

	executor := execution.NewAgent(b, pending, criteria, cfg.Trading, config.NewLogger("execution"))
	jrnl := journal.NewJournal(cfg.Journal.LogDir, config.NewLogger("journal"))

	orch := orchestrator.New(cfg, orchestrator.Deps{
		Market:    marketClient,
		Portfolio: store,
		Criteria:  criteria,
		Generator: generator,
		Scorer:    scorer,
		Research:  researcher,
		Decider:   decider,
		Gate:      gate,
		Sizer:     sizer,
		Breaker:   breaker,
		Executor:  executor,
		Journal:   jrnl,
	}, config.NewLogger("orchestrator"))

	bridge := toolbridge.NewBridge(cfg.Bridge, config.NewLogger("toolbridge"))

	server := api.NewServer(cfg, b, marketClient, gate, pending, criteria, bridge, config.NewLogger("api"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("API server failed")
			cancel()
		}
	}()

	go orch.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("API server shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}
