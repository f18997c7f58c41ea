package signal

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/turtlefunk/internal/config"
	"github.com/ajitpratap0/turtlefunk/internal/indicators"
	"github.com/ajitpratap0/turtlefunk/internal/market"
	"github.com/ajitpratap0/turtlefunk/internal/portfolio"
)

// Stop distance in ATR units (classic Turtle 2N stop)
const stopATRMultiple = 2.0

// Generator computes Turtle breakout entry and exit signals from a market
// snapshot and the persisted entry criteria of open positions.
type Generator struct {
	cfg    config.SignalConfig
	logger zerolog.Logger
}

// NewGenerator creates a signal generator
func NewGenerator(cfg config.SignalConfig, logger zerolog.Logger) *Generator {
	return &Generator{cfg: cfg, logger: logger}
}

// Generate emits exit signals for held positions first, then entry signals
// for the remaining symbols. Signals lacking ATR or channel data are
// suppressed; enabled filters discard failing entries outright.
func (g *Generator) Generate(snapshot *market.Snapshot, held map[string]portfolio.EntryCriteria) []Signal {
	signals := []Signal{}

	for symbol, criteria := range held {
		data, ok := snapshot.Symbols[symbol]
		if !ok {
			continue
		}
		if exit := g.checkExit(data, criteria); exit != nil {
			signals = append(signals, *exit)
		}
	}

	for symbol, data := range snapshot.Symbols {
		if _, holding := held[symbol]; holding {
			// No pyramiding: a held symbol only produces exits.
			continue
		}
		signals = append(signals, g.checkEntries(data)...)
	}

	g.logger.Debug().Int("signals", len(signals)).Msg("Signals generated")
	return signals
}

// checkExit evaluates the stop and system exit for one held position.
// A stop hit dominates a system exit.
func (g *Generator) checkExit(data *market.SymbolData, ec portfolio.EntryCriteria) *Signal {
	last := data.LastPrice()
	if last <= 0 {
		return nil
	}

	atr := data.ATR20
	if atr <= 0 {
		atr = ec.ATRAtEntry
	}

	base := Signal{
		Symbol:       data.Symbol,
		System:       ec.System,
		CurrentPrice: last,
		ATRN:         atr,
		StopPrice:    ec.StopPrice,
		ExitRef:      ec.ExitRef,
	}

	switch ec.Side {
	case "long":
		base.Direction = DirectionExitLong
		if last <= ec.StopPrice {
			base.ScoreHint = 1.0
			base.Reason = fmt.Sprintf("STOP LOSS: %s at %.2f breached stop %.2f", data.Symbol, last, ec.StopPrice)
			return &base
		}
		if last < ec.ExitRef {
			base.ScoreHint = 0.9
			base.Reason = fmt.Sprintf("SYSTEM EXIT: %s at %.2f below %d-day exit channel %.2f", data.Symbol, last, exitChannelDays(ec.System), ec.ExitRef)
			return &base
		}
	case "short":
		base.Direction = DirectionExitShort
		if last >= ec.StopPrice {
			base.ScoreHint = 1.0
			base.Reason = fmt.Sprintf("STOP LOSS: %s at %.2f breached stop %.2f", data.Symbol, last, ec.StopPrice)
			return &base
		}
		if last > ec.ExitRef {
			base.ScoreHint = 0.9
			base.Reason = fmt.Sprintf("SYSTEM EXIT: %s at %.2f above %d-day exit channel %.2f", data.Symbol, last, exitChannelDays(ec.System), ec.ExitRef)
			return &base
		}
	}
	return nil
}

// checkEntries evaluates S1 and S2 breakouts for one symbol
func (g *Generator) checkEntries(data *market.SymbolData) []Signal {
	// Entries require a live quote; stale bar closes are not breakout proof.
	if data.Quote == nil || data.Quote.Last <= 0 {
		return nil
	}
	last := data.Quote.Last
	atr := data.ATR20
	if atr <= 0 {
		return nil
	}

	signals := []Signal{}

	// System 1: 20-day channel entries, 10-day channel exits
	if data.High20 > 0 && last > data.High20 {
		signals = append(signals, g.entrySignal(data, DirectionLong, System1, data.High20, data.Low10, last, atr))
	} else if data.Low20 > 0 && last < data.Low20 {
		signals = append(signals, g.entrySignal(data, DirectionShort, System1, data.Low20, data.High10, last, atr))
	}

	// System 2: 55-day channel entries, 20-day channel exits
	if data.High55 > 0 && last > data.High55 {
		signals = append(signals, g.entrySignal(data, DirectionLong, System2, data.High55, data.Low20, last, atr))
	} else if data.Low55 > 0 && last < data.Low55 {
		signals = append(signals, g.entrySignal(data, DirectionShort, System2, data.Low55, data.High20, last, atr))
	}

	out := signals[:0]
	for _, s := range signals {
		if g.passesFilters(data, s) {
			out = append(out, s)
		}
	}
	return out
}

func (g *Generator) entrySignal(data *market.SymbolData, dir Direction, system int, entryRef, exitRef, last, atr float64) Signal {
	var stop, strength float64
	if dir == DirectionLong {
		stop = last - stopATRMultiple*atr
		strength = (last - entryRef) / atr
	} else {
		stop = last + stopATRMultiple*atr
		strength = (entryRef - last) / atr
	}

	hint := clamp(0.5+0.2*strength, 0, 1)

	return Signal{
		Symbol:       data.Symbol,
		Direction:    dir,
		System:       system,
		EntryRef:     entryRef,
		CurrentPrice: last,
		ATRN:         atr,
		StopPrice:    stop,
		ExitRef:      exitRef,
		ScoreHint:    hint,
		Reason: fmt.Sprintf("S%d %s breakout: %s at %.2f crossed %d-day channel %.2f (%.2fN)",
			systemNumber(system), dir, data.Symbol, last, system, entryRef, strength),
	}
}

// passesFilters applies the optional volume, trend and regime filters.
// Failing entries are discarded, not demoted.
func (g *Generator) passesFilters(data *market.SymbolData, s Signal) bool {
	n := len(data.Bars)

	if g.cfg.VolumeFilterEnabled && n >= 20 {
		volumes := make([]int64, n)
		for i, b := range data.Bars {
			volumes[i] = b.Volume
		}
		avg := indicators.AverageVolume(volumes, 20)
		latest := float64(data.Bars[n-1].Volume)
		if avg > 0 && latest < g.cfg.VolumeThreshold*avg {
			g.logger.Debug().Str("symbol", s.Symbol).Msg("Signal discarded by volume filter")
			return false
		}
	}

	if g.cfg.TrendFilterEnabled && n >= 200 {
		closes := make([]float64, n)
		for i, b := range data.Bars {
			closes[i] = b.Close
		}
		sma50 := indicators.SMA(closes, 50)
		sma200 := indicators.SMA(closes, 200)
		if s.Direction == DirectionLong && (s.CurrentPrice < sma50 || sma50 < sma200) {
			g.logger.Debug().Str("symbol", s.Symbol).Msg("Signal discarded by trend filter")
			return false
		}
		if s.Direction == DirectionShort && (s.CurrentPrice > sma50 || sma50 > sma200) {
			g.logger.Debug().Str("symbol", s.Symbol).Msg("Signal discarded by trend filter")
			return false
		}
	}

	if g.cfg.ADXFilterEnabled && n >= 28 {
		high := make([]float64, n)
		low := make([]float64, n)
		closes := make([]float64, n)
		for i, b := range data.Bars {
			high[i] = b.High
			low[i] = b.Low
			closes[i] = b.Close
		}
		adx := indicators.ADX(high, low, closes, 14)
		if adx > 0 && adx < g.cfg.ADXThreshold {
			g.logger.Debug().Str("symbol", s.Symbol).Float64("adx", adx).Msg("Signal discarded by regime filter")
			return false
		}
	}

	return true
}

func exitChannelDays(system int) int {
	if system == System2 {
		return 20
	}
	return 10
}

func systemNumber(system int) int {
	if system == System2 {
		return 2
	}
	return 1
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
