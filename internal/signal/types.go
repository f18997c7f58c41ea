package signal

// Direction is the action a signal calls for
type Direction string

const (
	DirectionLong      Direction = "LONG"
	DirectionShort     Direction = "SHORT"
	DirectionExitLong  Direction = "EXIT_LONG"
	DirectionExitShort Direction = "EXIT_SHORT"
)

// Turtle system channel lengths
const (
	System1 = 20 // 20-day entry channel, 10-day exit channel
	System2 = 55 // 55-day entry channel, 20-day exit channel
)

// Signal is a deterministic breakout signal
type Signal struct {
	Symbol       string    `json:"symbol"`
	Direction    Direction `json:"direction"`
	System       int       `json:"system"` // 20 (S1) or 55 (S2)
	EntryRef     float64   `json:"entry_ref"`
	CurrentPrice float64   `json:"current_price"`
	ATRN         float64   `json:"atr_n"`
	StopPrice    float64   `json:"stop_price"`
	ExitRef      float64   `json:"exit_ref"`
	ScoreHint    float64   `json:"score_hint"` // 0..1
	Reason       string    `json:"reason"`
}

// IsExit reports whether the signal closes an existing position
func (s *Signal) IsExit() bool {
	return s.Direction == DirectionExitLong || s.Direction == DirectionExitShort
}

// IsEntry reports whether the signal opens a new position
func (s *Signal) IsEntry() bool {
	return s.Direction == DirectionLong || s.Direction == DirectionShort
}

// ScoredSignal wraps a Signal with its deterministic score components
type ScoredSignal struct {
	Signal             Signal  `json:"signal"`
	BreakoutStrength   float64 `json:"breakout_strength"`
	SystemBonus        float64 `json:"system_bonus"`
	MomentumPerN       float64 `json:"momentum_per_n"`
	CorrelationPenalty float64 `json:"correlation_penalty"`
	TotalScore         float64 `json:"total_score"`
}
