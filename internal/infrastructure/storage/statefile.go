package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vitos/stock_risk_engine/internal/domain"
)

// JSONStateStore persists the risk ledger state as one JSON file, the
// durability layer of a single-process bot. Writes are best-effort: the full
// state is rewritten after every mutation.
type JSONStateStore struct {
	path string
	mu   sync.Mutex
}

func NewJSONStateStore(path string) (*JSONStateStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &JSONStateStore{path: path}, nil
}

// Load reads the state file. A missing file is a normal first run and yields
// empty state; a corrupt file is reported so the caller can decide to start
// fresh.
func (s *JSONStateStore) Load() (*domain.RiskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return domain.NewRiskState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	state := domain.NewRiskState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", s.path, err)
	}

	// Maps may be null in hand-edited files.
	if state.DailyStats == nil {
		state.DailyStats = make(map[string]domain.DailyStats)
	}
	if state.PositionStops == nil {
		state.PositionStops = make(map[string]domain.StopLevels)
	}
	if state.HighWaterMarks == nil {
		state.HighWaterMarks = make(map[string]float64)
	}
	return state, nil
}

func (s *JSONStateStore) Save(state *domain.RiskState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}
