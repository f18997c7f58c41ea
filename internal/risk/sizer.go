package risk

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/turtlefunk/internal/config"
)

// Fallback fraction of equity used until enough trade history accumulates
const coldStartFraction = 0.05

// Volatility adjustment kicks in above this ATR-to-price ratio
const volTargetRatio = 0.03

// TradeRecord is one completed round trip, the raw material for the Kelly
// estimate.
type TradeRecord struct {
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Entry     float64   `json:"entry"`
	Exit      float64   `json:"exit"`
	Qty       float64   `json:"qty"`
	ReturnPct float64   `json:"return_pct"`
	PnLUSD    float64   `json:"pnl_usd"`
	Timestamp time.Time `json:"timestamp"`
}

// SizeResult explains how a position size was arrived at
type SizeResult struct {
	PositionUSD   float64 `json:"position_usd"`
	Method        string  `json:"method"` // "kelly" or "fixed"
	Kelly         float64 `json:"kelly"`
	Effective     float64 `json:"effective"` // final fraction of equity
	WinRate       float64 `json:"win_rate"`
	WLRatio       float64 `json:"wl_ratio"`
	TradesUsed    int     `json:"trades_used"`
	VolAdjustment float64 `json:"vol_adjustment,omitempty"`
}

// Sizer computes position sizes with fractional Kelly over a rolling window
// of completed trades. History is persisted to a JSON file so the estimate
// survives restarts; a corrupt file starts the window empty.
type Sizer struct {
	mu      sync.Mutex
	cfg     config.SizerConfig
	path    string
	history []TradeRecord
	logger  zerolog.Logger
}

// NewSizer creates a sizer backed by a history file under dataDir
func NewSizer(cfg config.SizerConfig, dataDir string, logger zerolog.Logger) *Sizer {
	s := &Sizer{
		cfg:    cfg,
		path:   filepath.Join(dataDir, "kelly_trade_history.json"),
		logger: logger,
	}
	s.load()
	return s
}

func (s *Sizer) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to read trade history")
		}
		return
	}
	var history []TradeRecord
	if err := json.Unmarshal(data, &history); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Corrupt trade history, starting empty")
		return
	}
	s.history = history
}

func (s *Sizer) persist() error {
	data, err := json.MarshalIndent(s.history, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal trade history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write trade history: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// RecordTrade appends a completed trade and truncates the window to twice the
// lookback so the file stays bounded.
func (s *Sizer) RecordTrade(tr TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, tr)
	if max := s.cfg.LookbackTrades * 2; max > 0 && len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
	return s.persist()
}

// History returns a copy of the recorded trades, newest last
func (s *Sizer) History() []TradeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TradeRecord, len(s.history))
	copy(out, s.history)
	return out
}

// Size computes the dollar size for a new position. signalStrength scales the
// Kelly fraction, and a volatility adjustment shrinks the size when the ATR
// runs hot relative to price.
func (s *Sizer) Size(equity, signalStrength, atr, price float64) SizeResult {
	s.mu.Lock()
	recent := s.history
	if s.cfg.LookbackTrades > 0 && len(recent) > s.cfg.LookbackTrades {
		recent = recent[len(recent)-s.cfg.LookbackTrades:]
	}
	s.mu.Unlock()

	result := SizeResult{TradesUsed: len(recent)}

	if len(recent) < s.cfg.MinTrades {
		result.Method = "fixed"
		result.Effective = coldStartFraction
	} else {
		wins, losses := 0, 0
		var winSum, lossSum float64
		for _, tr := range recent {
			if tr.PnLUSD > 0 {
				wins++
				winSum += tr.PnLUSD
			} else {
				losses++
				lossSum += math.Abs(tr.PnLUSD)
			}
		}

		winRate := float64(wins) / float64(len(recent))
		var avgWin, avgLoss float64
		if wins > 0 {
			avgWin = winSum / float64(wins)
		}
		if losses > 0 {
			avgLoss = lossSum / float64(losses)
		}

		var wlRatio, kelly float64
		if avgLoss > 0 {
			wlRatio = avgWin / avgLoss
		}
		if wlRatio > 0 {
			kelly = winRate - (1-winRate)/wlRatio
		}
		kelly = clamp(kelly, 0, 1)

		result.Method = "kelly"
		result.Kelly = kelly
		result.WinRate = winRate
		result.WLRatio = wlRatio
		result.Effective = kelly * s.cfg.Fraction * signalStrength
	}

	result.Effective = clamp(result.Effective, 0, s.cfg.MaxPositionPct)
	result.PositionUSD = equity * result.Effective

	if atr > 0 && price > 0 {
		if ratio := atr / price; ratio > volTargetRatio {
			result.VolAdjustment = volTargetRatio / ratio
			result.PositionUSD *= result.VolAdjustment
		}
	}

	s.logger.Debug().
		Str("method", result.Method).
		Float64("effective", result.Effective).
		Float64("position_usd", result.PositionUSD).
		Int("trades_used", result.TradesUsed).
		Msg("Position sized")

	return result
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
