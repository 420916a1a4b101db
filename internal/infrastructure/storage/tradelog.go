package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vitos/stock_risk_engine/internal/domain"
)

// JSONLTradeLog appends trade records and audit events as JSON lines
// (trades.jsonl, risk_events.jsonl). Lines are never rewritten.
type JSONLTradeLog struct {
	tradePath string
	eventPath string
	mu        sync.Mutex
	timeNow   func() time.Time
}

func NewJSONLTradeLog(dir string) (*JSONLTradeLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &JSONLTradeLog{
		tradePath: filepath.Join(dir, "trades.jsonl"),
		eventPath: filepath.Join(dir, "risk_events.jsonl"),
		timeNow:   time.Now,
	}, nil
}

func (l *JSONLTradeLog) SaveTrade(_ context.Context, rec *domain.TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return appendLine(l.tradePath, rec)
}

// ListTrades reads the whole log and returns the newest records first, up to
// limit. The log stays small for a personal bot; no index is kept.
func (l *JSONLTradeLog) ListTrades(_ context.Context, limit int) ([]*domain.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.tradePath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var all []*domain.TradeRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec domain.TradeRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // Skip malformed lines rather than losing the rest.
		}
		all = append(all, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// Newest first.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

type auditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail,omitempty"`
}

func (l *JSONLTradeLog) LogEvent(_ context.Context, event, detail string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return appendLine(l.eventPath, auditEvent{Timestamp: l.timeNow(), Event: event, Detail: detail})
}

func appendLine(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(data, '\n'))
	return err
}
