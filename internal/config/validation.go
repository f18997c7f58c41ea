package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation.
// A non-nil return is fatal: the trading loop must not start.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateTrading()...)
	errors = append(errors, c.validateBroker()...)
	errors = append(errors, c.validateLLM()...)
	errors = append(errors, c.validateRisk()...)
	errors = append(errors, c.validateSizer()...)
	errors = append(errors, c.validateBreaker()...)
	errors = append(errors, c.validateAPI()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "app.name",
			Message: "Application name is required",
		})
	}

	validEnvs := []string{"development", "staging", "production"}
	valid := false
	for _, env := range validEnvs {
		if c.App.Environment == env {
			valid = true
			break
		}
	}
	if !valid {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: fmt.Sprintf("Invalid environment '%s'. Must be one of: %v", c.App.Environment, validEnvs),
		})
	}

	return errors
}

func (c *Config) validateTrading() ValidationErrors {
	var errors ValidationErrors

	switch TradingMode(c.Trading.Mode) {
	case ModePaper, ModeShadow:
	case ModeLive:
		// Live orders require a second, explicit opt-in. Construction fails
		// without it rather than silently downgrading to paper.
		if !c.Trading.LiveTradingEnabled {
			errors = append(errors, ValidationError{
				Field:   "trading.live_trading_enabled",
				Message: "Live mode requires LIVE_TRADING_ENABLED=true",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "trading.mode",
			Message: fmt.Sprintf("Invalid mode '%s'. Must be one of: paper, shadow, live", c.Trading.Mode),
		})
	}

	switch AutonomyTier(c.Trading.AutonomyTier) {
	case TierManual, TierModerate, TierFullAgentic:
	default:
		errors = append(errors, ValidationError{
			Field:   "trading.autonomy_tier",
			Message: fmt.Sprintf("Invalid tier '%s'. Must be one of: manual, moderate, full_agentic", c.Trading.AutonomyTier),
		})
	}

	if len(c.Trading.Symbols) == 0 {
		errors = append(errors, ValidationError{
			Field:   "trading.symbols",
			Message: "At least one allowed symbol is required",
		})
	}

	if c.Trading.LoopSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "trading.loop_seconds",
			Message: "Loop interval must be positive",
		})
	}

	if c.Trading.LookbackDays < 55 {
		errors = append(errors, ValidationError{
			Field:   "trading.lookback_days",
			Message: "Lookback must cover at least 55 bars for System 2 channels",
		})
	}

	return errors
}

func (c *Config) validateBroker() ValidationErrors {
	var errors ValidationErrors

	if c.Broker.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "broker.base_url",
			Message: "Broker base URL is required",
		})
	}

	// Paper and shadow modes tolerate missing credentials; live does not.
	if TradingMode(c.Trading.Mode) == ModeLive {
		if c.Broker.APIKeyID == "" || c.Broker.APISecret == "" {
			errors = append(errors, ValidationError{
				Field:   "broker.api_key_id",
				Message: "Broker API credentials are required for live trading",
			})
		}
	}

	return errors
}

func (c *Config) validateLLM() ValidationErrors {
	var errors ValidationErrors

	if c.LLM.Endpoint == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.endpoint",
			Message: "LLM endpoint is required",
		})
	}
	if c.LLM.Model == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.model",
			Message: "LLM model is required",
		})
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "Temperature must be between 0 and 2",
		})
	}
	if c.LLM.TopSignals <= 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.top_signals",
			Message: "Top signal count must be positive",
		})
	}

	return errors
}

func (c *Config) validateRisk() ValidationErrors {
	var errors ValidationErrors

	if c.Risk.MaxDollarsPerTrade <= 0 {
		errors = append(errors, ValidationError{
			Field:   "risk.max_dollars_per_trade",
			Message: "Max dollars per trade must be positive",
		})
	}
	if c.Risk.MaxOpenPositions <= 0 {
		errors = append(errors, ValidationError{
			Field:   "risk.max_open_positions",
			Message: "Max open positions must be positive",
		})
	}
	if c.Risk.MaxTradesPerDay <= 0 {
		errors = append(errors, ValidationError{
			Field:   "risk.max_trades_per_day",
			Message: "Max trades per day must be positive",
		})
	}
	if c.Risk.MaxDailyLoss <= 0 {
		errors = append(errors, ValidationError{
			Field:   "risk.max_daily_loss",
			Message: "Max daily loss must be positive",
		})
	}

	return errors
}

func (c *Config) validateSizer() ValidationErrors {
	var errors ValidationErrors

	if c.Sizer.Fraction <= 0 || c.Sizer.Fraction > 1 {
		errors = append(errors, ValidationError{
			Field:   "sizer.fraction",
			Message: "Kelly fraction must be in (0, 1]",
		})
	}
	if c.Sizer.MaxPositionPct <= 0 || c.Sizer.MaxPositionPct > 1 {
		errors = append(errors, ValidationError{
			Field:   "sizer.max_position_pct",
			Message: "Max position percentage must be in (0, 1]",
		})
	}
	if c.Sizer.MinTrades <= 0 || c.Sizer.LookbackTrades < c.Sizer.MinTrades {
		errors = append(errors, ValidationError{
			Field:   "sizer.lookback_trades",
			Message: "Lookback must be positive and at least min_trades",
		})
	}

	return errors
}

func (c *Config) validateBreaker() ValidationErrors {
	var errors ValidationErrors

	if c.Breaker.DailyLimit <= 0 || c.Breaker.WeeklyLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "breaker.daily_limit",
			Message: "Circuit breaker limits must be positive",
		})
	}
	if c.Breaker.ReductionFactor <= 0 || c.Breaker.ReductionFactor > 1 {
		errors = append(errors, ValidationError{
			Field:   "breaker.reduction_factor",
			Message: "Reduction factor must be in (0, 1]",
		})
	}

	return errors
}

func (c *Config) validateAPI() ValidationErrors {
	var errors ValidationErrors

	if c.API.Port <= 0 || c.API.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "api.port",
			Message: fmt.Sprintf("Invalid port %d", c.API.Port),
		})
	}

	return errors
}
