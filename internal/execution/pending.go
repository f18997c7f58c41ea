package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/turtlefunk/internal/broker"
	"github.com/ajitpratap0/turtlefunk/internal/decision"
	"github.com/ajitpratap0/turtlefunk/internal/portfolio"
	"github.com/ajitpratap0/turtlefunk/internal/risk"
)

// PendingStatus is the lifecycle state of a queued trade
type PendingStatus string

const (
	PendingStatusPending  PendingStatus = "PENDING"
	PendingStatusApproved PendingStatus = "APPROVED"
	PendingStatusRejected PendingStatus = "REJECTED"
	PendingStatusExpired  PendingStatus = "EXPIRED"
	PendingStatusExecuted PendingStatus = "EXECUTED"
)

// Trades waiting for a human expire after this long
const pendingTTL = 4 * time.Hour

// PendingTrade is a trade intent parked until a human approves it. The
// portfolio and risk snapshots are frozen at creation so the approver sees
// exactly what the agent saw.
type PendingTrade struct {
	ID             string               `json:"id"`
	Intent         decision.TradeIntent `json:"intent"`
	Portfolio      *portfolio.State     `json:"portfolio,omitempty"`
	RiskResult     risk.Result          `json:"risk_result"`
	Status         PendingStatus        `json:"status"`
	CreatedAt      time.Time            `json:"created_at"`
	ExpiresAt      time.Time            `json:"expires_at"`
	ApprovedAt     *time.Time           `json:"approved_at,omitempty"`
	RejectedAt     *time.Time           `json:"rejected_at,omitempty"`
	RejectReason   string               `json:"reject_reason,omitempty"`
	ExecutedAt     *time.Time           `json:"executed_at,omitempty"`
	ExecutedOrder  *broker.Order        `json:"executed_order,omitempty"`
	ExecutionError string               `json:"execution_error,omitempty"`
}

// PendingStore is a mutex-guarded, file-backed queue of pending trades.
// The HTTP approval handlers and the execution stage share it.
type PendingStore struct {
	mu     sync.Mutex
	path   string
	trades map[string]*PendingTrade
	logger zerolog.Logger
}

// NewPendingStore loads the queue from path, starting empty if absent or corrupt
func NewPendingStore(path string, logger zerolog.Logger) *PendingStore {
	s := &PendingStore{
		path:   path,
		trades: make(map[string]*PendingTrade),
		logger: logger,
	}
	s.load()
	return s
}

func (s *PendingStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to read pending trades, starting empty")
		}
		return
	}
	var trades map[string]*PendingTrade
	if err := json.Unmarshal(data, &trades); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Corrupt pending trades file, starting empty")
		return
	}
	s.trades = trades
}

// persist writes the queue atomically; caller holds the lock
func (s *PendingStore) persist() error {
	data, err := json.MarshalIndent(s.trades, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pending trades: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write pending trades: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Create queues a trade intent for approval with a fresh id and 4h expiry
func (s *PendingStore) Create(intent decision.TradeIntent, state *portfolio.State, riskResult risk.Result) (*PendingTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	pt := &PendingTrade{
		ID:         uuid.New().String(),
		Intent:     intent,
		Portfolio:  state,
		RiskResult: riskResult,
		Status:     PendingStatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(pendingTTL),
	}
	s.trades[pt.ID] = pt

	if err := s.persist(); err != nil {
		delete(s.trades, pt.ID)
		return nil, err
	}

	s.logger.Info().
		Str("pending_id", pt.ID).
		Str("symbol", intent.Symbol).
		Time("expires_at", pt.ExpiresAt).
		Msg("Trade queued for approval")

	return pt, nil
}

// List returns all trades, expiring stale PENDING entries on observation
func (s *PendingStore) List() []PendingTrade {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()

	out := make([]PendingTrade, 0, len(s.trades))
	for _, pt := range s.trades {
		out = append(out, *pt)
	}
	return out
}

// Get returns one trade by id, expiring it first if stale
func (s *PendingStore) Get(id string) (PendingTrade, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()

	pt, ok := s.trades[id]
	if !ok {
		return PendingTrade{}, false
	}
	return *pt, true
}

// expireLocked transitions stale PENDING trades to EXPIRED; caller holds the lock
func (s *PendingStore) expireLocked() {
	now := time.Now().UTC()
	changed := false
	for _, pt := range s.trades {
		if pt.Status == PendingStatusPending && now.After(pt.ExpiresAt) {
			pt.Status = PendingStatusExpired
			changed = true
			s.logger.Info().Str("pending_id", pt.ID).Str("symbol", pt.Intent.Symbol).Msg("Pending trade expired")
		}
	}
	if changed {
		if err := s.persist(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to persist expired pending trades")
		}
	}
}

// Approve re-validates expiry, places the order, and records the outcome.
// An expired trade can never execute, whatever the approver intended.
func (s *PendingStore) Approve(ctx context.Context, id string, b broker.Broker, criteria *portfolio.CriteriaStore) (*PendingTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pt, ok := s.trades[id]
	if !ok {
		return nil, fmt.Errorf("pending trade %s not found", id)
	}

	now := time.Now().UTC()
	if now.After(pt.ExpiresAt) {
		pt.Status = PendingStatusExpired
		if err := s.persist(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to persist pending trade expiry")
		}
		return pt, fmt.Errorf("pending trade %s expired at %s", id, pt.ExpiresAt.Format(time.RFC3339))
	}
	if pt.Status != PendingStatusPending {
		return pt, fmt.Errorf("pending trade %s is %s, not PENDING", id, pt.Status)
	}

	pt.Status = PendingStatusApproved
	pt.ApprovedAt = &now

	order, err := b.PlaceOrder(ctx, broker.PlaceOrderRequest{
		Symbol:      pt.Intent.Symbol,
		Notional:    pt.Intent.NotionalUSD,
		Side:        pt.Intent.Side,
		Type:        "market",
		TimeInForce: "day",
	})
	if err != nil {
		pt.ExecutionError = err.Error()
		if perr := s.persist(); perr != nil {
			s.logger.Warn().Err(perr).Msg("Failed to persist pending trade state")
		}
		return pt, fmt.Errorf("place approved order: %w", err)
	}

	executedAt := time.Now().UTC()
	pt.Status = PendingStatusExecuted
	pt.ExecutedAt = &executedAt
	pt.ExecutedOrder = order

	if pt.Intent.Signal.IsEntry() && criteria != nil {
		recordEntryCriteria(criteria, pt.Intent, s.logger)
	}

	if err := s.persist(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist executed pending trade")
	}

	s.logger.Info().
		Str("pending_id", pt.ID).
		Str("symbol", pt.Intent.Symbol).
		Str("order_id", order.ID).
		Msg("Pending trade approved and executed")

	return pt, nil
}

// Reject marks a pending trade rejected with a reason
func (s *PendingStore) Reject(id, reason string) (*PendingTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pt, ok := s.trades[id]
	if !ok {
		return nil, fmt.Errorf("pending trade %s not found", id)
	}
	if pt.Status != PendingStatusPending {
		return pt, fmt.Errorf("pending trade %s is %s, not PENDING", id, pt.Status)
	}

	now := time.Now().UTC()
	pt.Status = PendingStatusRejected
	pt.RejectedAt = &now
	pt.RejectReason = reason

	if err := s.persist(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist rejected pending trade")
	}

	s.logger.Info().
		Str("pending_id", pt.ID).
		Str("symbol", pt.Intent.Symbol).
		Str("reason", reason).
		Msg("Pending trade rejected")

	return pt, nil
}
