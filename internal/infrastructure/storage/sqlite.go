package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/stock_risk_engine/internal/domain"
)

// SQLiteStore mirrors the trade log into a queryable database for the web UI
// and ad-hoc analysis. The JSONL files stay the canonical record.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			price REAL NOT NULL,
			value REAL NOT NULL,
			order_id TEXT,
			status TEXT NOT NULL,
			reason TEXT,
			pnl REAL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp);`,
		`CREATE TABLE IF NOT EXISTS risk_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			event TEXT NOT NULL,
			detail TEXT
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	return nil
}

func (s *SQLiteStore) SaveTrade(ctx context.Context, rec *domain.TradeRecord) error {
	query := `INSERT INTO trades (id, timestamp, symbol, side, quantity, price, value, order_id, status, reason, pnl)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var pnl sql.NullFloat64
	if rec.PnL != nil {
		pnl = sql.NullFloat64{Float64: *rec.PnL, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Timestamp, rec.Symbol, string(rec.Side), rec.Quantity,
		rec.Price, rec.Value, rec.OrderID, string(rec.Status), rec.Reason, pnl)
	return err
}

func (s *SQLiteStore) ListTrades(ctx context.Context, limit int) ([]*domain.TradeRecord, error) {
	query := `SELECT id, timestamp, symbol, side, quantity, price, value, order_id, status, reason, pnl
			  FROM trades ORDER BY timestamp DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*domain.TradeRecord
	for rows.Next() {
		var rec domain.TradeRecord
		var side, status string
		var orderID, reason sql.NullString
		var pnl sql.NullFloat64
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Symbol, &side, &rec.Quantity,
			&rec.Price, &rec.Value, &orderID, &status, &reason, &pnl); err != nil {
			return nil, err
		}
		rec.Side = domain.Side(side)
		rec.Status = domain.OrderStatus(status)
		rec.OrderID = orderID.String
		rec.Reason = reason.String
		if pnl.Valid {
			v := pnl.Float64
			rec.PnL = &v
		}
		trades = append(trades, &rec)
	}
	return trades, rows.Err()
}

func (s *SQLiteStore) LogEvent(ctx context.Context, event, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO risk_events (timestamp, event, detail) VALUES (?, ?, ?)`,
		time.Now(), event, detail)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
