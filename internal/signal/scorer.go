package signal

import (
	"math"
	"sort"

	"github.com/ajitpratap0/turtlefunk/internal/portfolio"
)

// Score component weights: breakout strength carries 3x weight, the rest 1x.
const (
	weightStrength = 3.0
	weightBonus    = 1.0
	weightMomentum = 1.0
	weightPenalty  = 1.0
)

// Scorer deterministically ranks signals for the decision agent
type Scorer struct{}

// NewScorer creates a signal scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score computes the four additive components for each signal and returns the
// list ordered highest total first. Exit signals always sort ahead of
// entries, whatever their totals.
func (s *Scorer) Score(signals []Signal, state *portfolio.State, momentum map[string]float64) []ScoredSignal {
	heldGroups := make(map[string]bool)
	if state != nil {
		for _, p := range state.Positions {
			// "other" is a catch-all, not a real sector; it never conflicts.
			if g := CorrelationGroup(p.Symbol); g != "other" {
				heldGroups[g] = true
			}
		}
	}

	scored := make([]ScoredSignal, 0, len(signals))
	for _, sig := range signals {
		ss := ScoredSignal{Signal: sig}

		if sig.IsExit() {
			// Exits are risk reduction; they carry unit strength and skip
			// the portfolio-fit penalty.
			ss.BreakoutStrength = 1.0
		} else {
			ss.BreakoutStrength = breakoutStrength(sig)
			if heldGroups[CorrelationGroup(sig.Symbol)] {
				ss.CorrelationPenalty = 0.5
			}
		}

		if sig.System == System2 {
			ss.SystemBonus = 1.0
		}

		if m, ok := momentum[sig.Symbol]; ok && sig.ATRN > 0 {
			ss.MomentumPerN = m / sig.ATRN
		}

		ss.TotalScore = weightStrength*ss.BreakoutStrength +
			weightBonus*ss.SystemBonus +
			weightMomentum*ss.MomentumPerN -
			weightPenalty*ss.CorrelationPenalty

		scored = append(scored, ss)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		ei, ej := scored[i].Signal.IsExit(), scored[j].Signal.IsExit()
		if ei != ej {
			return ei
		}
		return scored[i].TotalScore > scored[j].TotalScore
	})

	return scored
}

// breakoutStrength measures how far beyond the channel the price has moved,
// in ATR units, floored at zero.
func breakoutStrength(sig Signal) float64 {
	if sig.ATRN <= 0 {
		return 0
	}
	var raw float64
	if sig.Direction == DirectionLong {
		raw = (sig.CurrentPrice - sig.EntryRef) / sig.ATRN
	} else {
		raw = (sig.EntryRef - sig.CurrentPrice) / sig.ATRN
	}
	return math.Max(0, raw)
}
