package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Broker     BrokerConfig     `mapstructure:"broker"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Research   ResearchConfig   `mapstructure:"research"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Sizer      SizerConfig      `mapstructure:"sizer"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Signals    SignalConfig     `mapstructure:"signals"`
	Bridge     BridgeConfig     `mapstructure:"bridge"`
	Journal    JournalConfig    `mapstructure:"journal"`
	API        APIConfig        `mapstructure:"api"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// TradingMode controls whether orders reach the broker
type TradingMode string

const (
	ModePaper  TradingMode = "paper"
	ModeShadow TradingMode = "shadow"
	ModeLive   TradingMode = "live"
)

// AutonomyTier controls how much of the execution path runs without a human
type AutonomyTier string

const (
	TierManual      AutonomyTier = "manual"
	TierModerate    AutonomyTier = "moderate"
	TierFullAgentic AutonomyTier = "full_agentic"
)

// TradingConfig contains trading loop settings
type TradingConfig struct {
	Mode               string   `mapstructure:"mode"`                 // "paper", "shadow" or "live"
	LiveTradingEnabled bool     `mapstructure:"live_trading_enabled"` // must be true alongside "live"
	AutonomyTier       string   `mapstructure:"autonomy_tier"`        // "manual", "moderate", "full_agentic"
	Symbols            []string `mapstructure:"symbols"`              // allowed symbol universe
	LoopSeconds        int      `mapstructure:"loop_seconds"`         // tick interval
	LookbackDays       int      `mapstructure:"lookback_days"`        // daily bars fetched per symbol
}

// BrokerConfig contains brokerage API settings
type BrokerConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	DataBaseURL       string  `mapstructure:"data_base_url"`
	APIKeyID          string  `mapstructure:"api_key_id"`
	APISecret         string  `mapstructure:"api_secret"`
	TimeoutMS         int     `mapstructure:"timeout_ms"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// LLMConfig contains the decision model settings
type LLMConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TimeoutMS   int     `mapstructure:"timeout_ms"`
	TopSignals  int     `mapstructure:"top_signals"` // entry signals shown to the model
}

// ResearchConfig contains the optional research enrichment settings
type ResearchConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Endpoint       string  `mapstructure:"endpoint"`
	APIKey         string  `mapstructure:"api_key"`
	ScoreThreshold float64 `mapstructure:"score_threshold"` // only signals at or above get research
	TimeoutMS      int     `mapstructure:"timeout_ms"`
}

// RiskConfig contains the deterministic risk gate limits
type RiskConfig struct {
	MaxDollarsPerTrade float64 `mapstructure:"max_dollars_per_trade"`
	MaxOpenPositions   int     `mapstructure:"max_open_positions"`
	MaxTradesPerDay    int     `mapstructure:"max_trades_per_day"`
	MaxDailyLoss       float64 `mapstructure:"max_daily_loss"`
}

// SizerConfig contains the Kelly position sizer settings
type SizerConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Fraction       float64 `mapstructure:"fraction"`         // safety factor applied to raw Kelly
	LookbackTrades int     `mapstructure:"lookback_trades"`  // trades used for the Kelly estimate
	MinTrades      int     `mapstructure:"min_trades"`       // below this, fall back to fixed fraction
	MaxPositionPct float64 `mapstructure:"max_position_pct"` // hard cap on equity fraction
}

// BreakerConfig contains the drawdown circuit breaker settings
type BreakerConfig struct {
	DailyLimit      float64 `mapstructure:"daily_limit"`      // daily loss pct that halts trading
	WeeklyLimit     float64 `mapstructure:"weekly_limit"`     // rolling weekly loss pct that halts
	ReductionFactor float64 `mapstructure:"reduction_factor"` // size multiplier in WARNING state
}

// SignalConfig contains breakout signal filter settings
type SignalConfig struct {
	VolumeFilterEnabled bool    `mapstructure:"volume_filter_enabled"`
	VolumeThreshold     float64 `mapstructure:"volume_threshold"` // multiple of 20-day average volume
	TrendFilterEnabled  bool    `mapstructure:"trend_filter_enabled"`
	ADXFilterEnabled    bool    `mapstructure:"adx_filter_enabled"`
	ADXThreshold        float64 `mapstructure:"adx_threshold"`
}

// BridgeConfig contains the companion tool service settings
type BridgeConfig struct {
	BaseURL              string `mapstructure:"base_url"`
	CacheCapacity        int    `mapstructure:"cache_capacity"`
	ContextCacheCapacity int    `mapstructure:"context_cache_capacity"`
	MaxRetries           int    `mapstructure:"max_retries"`
}

// JournalConfig contains observability output settings
type JournalConfig struct {
	LogDir string `mapstructure:"log_dir"`
}

// APIConfig contains REST API settings
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	EnableMetrics bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("TURTLEFUNK")

	bindEnvKeys(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if s := v.GetString("trading.symbols"); s != "" && strings.Contains(s, ",") {
		cfg.Trading.Symbols = splitSymbols(s)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// bindEnvKeys binds the documented bare environment keys in addition to the
// TURTLEFUNK_-prefixed forms viper derives automatically.
func bindEnvKeys(v *viper.Viper) {
	bindings := map[string][]string{
		"trading.mode":                 {"TRADING_MODE"},
		"trading.live_trading_enabled": {"LIVE_TRADING_ENABLED"},
		"trading.autonomy_tier":        {"AUTONOMY_TIER"},
		"trading.symbols":              {"ALLOWED_SYMBOLS"},
		"trading.loop_seconds":         {"LOOP_SECONDS"},
		"risk.max_dollars_per_trade":   {"MAX_DOLLARS_PER_TRADE"},
		"risk.max_open_positions":      {"MAX_OPEN_POSITIONS"},
		"risk.max_trades_per_day":      {"MAX_TRADES_PER_DAY"},
		"risk.max_daily_loss":          {"MAX_DAILY_LOSS"},
		"sizer.enabled":                {"KELLY_ENABLED"},
		"sizer.fraction":               {"KELLY_FRACTION"},
		"sizer.lookback_trades":        {"KELLY_LOOKBACK_TRADES"},
		"sizer.min_trades":             {"KELLY_MIN_TRADES"},
		"sizer.max_position_pct":       {"KELLY_MAX_POSITION_PCT"},
		"breaker.daily_limit":          {"CIRCUIT_BREAKER_DAILY_LIMIT"},
		"breaker.weekly_limit":         {"CIRCUIT_BREAKER_WEEKLY_LIMIT"},
		"breaker.reduction_factor":     {"CIRCUIT_BREAKER_REDUCTION_FACTOR"},
		"signals.volume_filter_enabled": {"VOLUME_FILTER_ENABLED"},
		"signals.volume_threshold":      {"VOLUME_THRESHOLD"},
		"signals.trend_filter_enabled":  {"TREND_FILTER_ENABLED"},
		"broker.api_key_id":             {"BROKER_API_KEY_ID"},
		"broker.api_secret":             {"BROKER_API_SECRET"},
		"llm.api_key":                   {"LLM_API_KEY"},
		"journal.log_dir":               {"LOG_DIR"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		_ = v.BindEnv(args...)
	}
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "TurtleFunk")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	// Trading defaults
	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.live_trading_enabled", false)
	v.SetDefault("trading.autonomy_tier", "manual")
	v.SetDefault("trading.symbols", []string{"SPY", "QQQ", "AAPL", "MSFT", "NVDA"})
	v.SetDefault("trading.loop_seconds", 60)
	v.SetDefault("trading.lookback_days", 60)

	// Broker defaults (paper endpoint)
	v.SetDefault("broker.base_url", "https://paper-api.alpaca.markets")
	v.SetDefault("broker.data_base_url", "https://data.alpaca.markets")
	v.SetDefault("broker.timeout_ms", 10000)
	v.SetDefault("broker.requests_per_second", 3.0)

	// LLM defaults
	v.SetDefault("llm.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 500)
	v.SetDefault("llm.timeout_ms", 30000)
	v.SetDefault("llm.top_signals", 5)

	// Research defaults
	v.SetDefault("research.enabled", false)
	v.SetDefault("research.score_threshold", 3.0)
	v.SetDefault("research.timeout_ms", 20000)

	// Risk defaults
	v.SetDefault("risk.max_dollars_per_trade", 25.0)
	v.SetDefault("risk.max_open_positions", 5)
	v.SetDefault("risk.max_trades_per_day", 3)
	v.SetDefault("risk.max_daily_loss", 50.0)

	// Sizer defaults
	v.SetDefault("sizer.enabled", true)
	v.SetDefault("sizer.fraction", 0.5)
	v.SetDefault("sizer.lookback_trades", 20)
	v.SetDefault("sizer.min_trades", 10)
	v.SetDefault("sizer.max_position_pct", 0.2)

	// Breaker defaults
	v.SetDefault("breaker.daily_limit", 0.05)
	v.SetDefault("breaker.weekly_limit", 0.10)
	v.SetDefault("breaker.reduction_factor", 0.5)

	// Signal filter defaults
	v.SetDefault("signals.volume_filter_enabled", false)
	v.SetDefault("signals.volume_threshold", 1.5)
	v.SetDefault("signals.trend_filter_enabled", false)
	v.SetDefault("signals.adx_filter_enabled", false)
	v.SetDefault("signals.adx_threshold", 20.0)

	// Bridge defaults
	v.SetDefault("bridge.base_url", "http://localhost:8090")
	v.SetDefault("bridge.cache_capacity", 256)
	v.SetDefault("bridge.context_cache_capacity", 64)
	v.SetDefault("bridge.max_retries", 3)

	// Journal defaults
	v.SetDefault("journal.log_dir", "./logs")

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8081)

	// Monitoring defaults
	v.SetDefault("monitoring.enable_metrics", true)
}

// splitSymbols parses a comma-separated allowlist into upper-cased symbols.
func splitSymbols(s string) []string {
	parts := strings.Split(s, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			symbols = append(symbols, p)
		}
	}
	return symbols
}

// GetTimeout returns the broker timeout as time.Duration
func (c *BrokerConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// GetTimeout returns the LLM timeout as time.Duration
func (c *LLMConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// GetTimeout returns the research timeout as time.Duration
func (c *ResearchConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// GetAPIAddr returns the API server address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoopInterval returns the tick interval as time.Duration
func (c *TradingConfig) LoopInterval() time.Duration {
	return time.Duration(c.LoopSeconds) * time.Second
}
