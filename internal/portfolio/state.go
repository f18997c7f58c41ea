package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/turtlefunk/internal/broker"
)

// Position is a brokerage position annotated with the entry criteria recorded
// when the position was opened, when known.
type Position struct {
	broker.Position
	EntryCriteria *EntryCriteria `json:"entry_criteria,omitempty"`
}

// State is a read-only snapshot of the account taken once per loop
type State struct {
	Equity      float64        `json:"equity"`
	Cash        float64        `json:"cash"`
	BuyingPower float64        `json:"buying_power"`
	Positions   []Position     `json:"positions"`
	OpenOrders  []broker.Order `json:"open_orders,omitempty"`
	TradesToday int            `json:"trades_today"`
	PnLDay      float64        `json:"pnl_day"`
	Timestamp   time.Time      `json:"timestamp"`
}

// FindPosition returns the position for a symbol, or nil
func (s *State) FindPosition(symbol string) *Position {
	for i := range s.Positions {
		if s.Positions[i].Symbol == symbol {
			return &s.Positions[i]
		}
	}
	return nil
}

// Store reads portfolio state from the broker and joins it with the locally
// persisted entry criteria.
type Store struct {
	broker   broker.Broker
	criteria *CriteriaStore
	location *time.Location
	logger   zerolog.Logger
}

// NewStore creates a portfolio store. The trades-today counter is anchored to
// the exchange time zone, not the host's, so a day boundary means the same
// thing wherever the agent runs.
func NewStore(b broker.Broker, criteria *CriteriaStore, logger zerolog.Logger) *Store {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load exchange time zone, using UTC")
		loc = time.UTC
	}
	return &Store{broker: b, criteria: criteria, location: loc, logger: logger}
}

// Fetch reads the full portfolio state for this loop
func (s *Store) Fetch(ctx context.Context) (*State, error) {
	acct, err := s.broker.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch account: %w", err)
	}

	brokerPositions, err := s.broker.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}

	positions := make([]Position, 0, len(brokerPositions))
	for _, bp := range brokerPositions {
		p := Position{Position: bp}
		if ec, ok := s.criteria.Get(bp.Symbol); ok {
			p.EntryCriteria = &ec
		}
		positions = append(positions, p)
	}

	state := &State{
		Equity:      acct.Equity,
		Cash:        acct.Cash,
		BuyingPower: acct.BuyingPower,
		Positions:   positions,
		PnLDay:      acct.Equity - acct.LastEquity,
		Timestamp:   time.Now().UTC(),
	}

	// Open orders and the trades-today count are advisory; a failure here
	// degrades the snapshot rather than failing the tick.
	if open, err := s.broker.GetOrders(ctx, "open", 50); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to fetch open orders")
	} else {
		state.OpenOrders = open
	}

	state.TradesToday = s.countTradesToday(ctx)

	return state, nil
}

// countTradesToday counts filled orders since midnight in the exchange zone
func (s *Store) countTradesToday(ctx context.Context) int {
	orders, err := s.broker.GetOrders(ctx, "closed", 100)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to fetch closed orders for trade count")
		return 0
	}

	now := time.Now().In(s.location)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location)

	count := 0
	for _, o := range orders {
		if o.Status != "filled" || o.FilledAt == nil {
			continue
		}
		if !o.FilledAt.Before(midnight) {
			count++
		}
	}
	return count
}
