package risk

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/turtlefunk/internal/config"
)

// BreakerStatus is the drawdown state of the account
type BreakerStatus string

const (
	StatusNormal  BreakerStatus = "NORMAL"
	StatusWarning BreakerStatus = "WARNING"
	StatusHalted  BreakerStatus = "HALTED"
)

// dayPnL is one day's realised P&L as a fraction of equity
type dayPnL struct {
	Date string  `json:"date"` // YYYY-MM-DD in the exchange zone
	Pct  float64 `json:"pct"`
}

// BreakerCheck is the result of a status evaluation
type BreakerCheck struct {
	Status     BreakerStatus `json:"status"`
	Multiplier float64       `json:"multiplier"`
	TodayPct   float64       `json:"today_pct"`
	WeeklyPct  float64       `json:"weekly_pct"`
	Reason     string        `json:"reason,omitempty"`
}

// Breaker tracks rolling daily loss and halts or scales trading when the
// drawdown limits trip. New entries stop in HALTED; exits still run because
// they reduce risk.
type Breaker struct {
	mu     sync.Mutex
	cfg    config.BreakerConfig
	path   string
	days   []dayPnL
	logger zerolog.Logger
}

// NewBreaker creates a circuit breaker persisted under dataDir
func NewBreaker(cfg config.BreakerConfig, dataDir string, logger zerolog.Logger) *Breaker {
	b := &Breaker{
		cfg:    cfg,
		path:   filepath.Join(dataDir, "circuit_breaker_state.json"),
		logger: logger,
	}
	b.load()
	return b
}

func (b *Breaker) load() {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if !os.IsNotExist(err) {
			b.logger.Warn().Err(err).Str("path", b.path).Msg("Failed to read daily P&L history")
		}
		return
	}
	var days []dayPnL
	if err := json.Unmarshal(data, &days); err != nil {
		b.logger.Warn().Err(err).Str("path", b.path).Msg("Corrupt daily P&L history, starting empty")
		return
	}
	b.days = days
}

func (b *Breaker) persist() error {
	data, err := json.MarshalIndent(b.days, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal daily pnl: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write daily pnl: %w", err)
	}
	return os.Rename(tmp, b.path)
}

// RecordDay stores a completed day's P&L percentage, keeping the last 7 days
func (b *Breaker) RecordDay(date time.Time, pct float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := date.Format("2006-01-02")
	replaced := false
	for i := range b.days {
		if b.days[i].Date == key {
			b.days[i].Pct = pct
			replaced = true
			break
		}
	}
	if !replaced {
		b.days = append(b.days, dayPnL{Date: key, Pct: pct})
	}
	if len(b.days) > 7 {
		b.days = b.days[len(b.days)-7:]
	}
	return b.persist()
}

// Check evaluates the breaker given the current day's unrealised P&L pct
func (b *Breaker) Check(todayPct float64) BreakerCheck {
	b.mu.Lock()
	var weekly float64
	for _, d := range b.days {
		weekly += d.Pct
	}
	b.mu.Unlock()
	weekly += todayPct

	check := BreakerCheck{TodayPct: todayPct, WeeklyPct: weekly}

	switch {
	case todayPct <= -b.cfg.DailyLimit:
		check.Status = StatusHalted
		check.Multiplier = 0
		check.Reason = fmt.Sprintf("daily loss %.2f%% breaches limit %.2f%%", todayPct*100, b.cfg.DailyLimit*100)
	case weekly <= -b.cfg.WeeklyLimit:
		check.Status = StatusHalted
		check.Multiplier = 0
		check.Reason = fmt.Sprintf("weekly loss %.2f%% breaches limit %.2f%%", weekly*100, b.cfg.WeeklyLimit*100)
	case todayPct <= -b.cfg.DailyLimit/2 || weekly <= -b.cfg.WeeklyLimit/2:
		check.Status = StatusWarning
		check.Multiplier = b.cfg.ReductionFactor
		check.Reason = "approaching drawdown limit, position sizes reduced"
	default:
		check.Status = StatusNormal
		check.Multiplier = 1
	}

	if check.Status != StatusNormal {
		b.logger.Warn().
			Str("status", string(check.Status)).
			Float64("today_pct", todayPct).
			Float64("weekly_pct", weekly).
			Msg("Circuit breaker engaged")
	}

	return check
}
