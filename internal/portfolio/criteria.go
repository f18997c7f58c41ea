package portfolio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EntryCriteria records the levels that governed a position at entry time.
// The signal generator consults this store, not the broker, to decide when a
// stop or channel exit has been hit.
type EntryCriteria struct {
	Symbol     string    `json:"symbol"`
	StopPrice  float64   `json:"stop_price"`
	ExitRef    float64   `json:"exit_ref"`
	ATRAtEntry float64   `json:"atr_at_entry"`
	System     int       `json:"system"` // 20 or 55
	Side       string    `json:"side"`   // "long" or "short"
	EnteredAt  time.Time `json:"entered_at"`
}

// CriteriaStore is a tiny file-backed map of symbol to entry criteria.
// Writes are atomic (temp file then rename); a corrupt or missing file
// reinitialises empty rather than crashing.
type CriteriaStore struct {
	mu      sync.Mutex
	path    string
	entries map[string]EntryCriteria
	logger  zerolog.Logger
}

// NewCriteriaStore loads the store from path, starting empty if absent
func NewCriteriaStore(path string, logger zerolog.Logger) *CriteriaStore {
	s := &CriteriaStore{
		path:    path,
		entries: make(map[string]EntryCriteria),
		logger:  logger,
	}
	s.load()
	return s
}

func (s *CriteriaStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to read entry criteria, starting empty")
		}
		return
	}

	var entries map[string]EntryCriteria
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Corrupt entry criteria file, starting empty")
		return
	}
	s.entries = entries
}

// Get returns the criteria for a symbol
func (s *CriteriaStore) Get(symbol string) (EntryCriteria, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ec, ok := s.entries[symbol]
	return ec, ok
}

// All returns a copy of every stored entry
func (s *CriteriaStore) All() map[string]EntryCriteria {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]EntryCriteria, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Set records criteria for a symbol on fill
func (s *CriteriaStore) Set(ec EntryCriteria) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[ec.Symbol] = ec
	return s.persist()
}

// Clear removes criteria when a position is closed
func (s *CriteriaStore) Clear(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, symbol)
	return s.persist()
}

// persist writes the store atomically; caller holds the lock
func (s *CriteriaStore) persist() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal entry criteria: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write entry criteria: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename entry criteria: %w", err)
	}
	return nil
}
