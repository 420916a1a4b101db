package storage

import (
	"context"

	"github.com/vitos/stock_risk_engine/internal/domain"
)

// FanoutTradeRepository writes to every repository and reads from the first.
// Used to keep the JSONL log canonical while mirroring into SQLite.
type FanoutTradeRepository struct {
	repos []domain.TradeRepository
}

func NewFanoutTradeRepository(repos ...domain.TradeRepository) *FanoutTradeRepository {
	return &FanoutTradeRepository{repos: repos}
}

func (f *FanoutTradeRepository) SaveTrade(ctx context.Context, rec *domain.TradeRecord) error {
	var firstErr error
	for _, r := range f.repos {
		if err := r.SaveTrade(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *FanoutTradeRepository) ListTrades(ctx context.Context, limit int) ([]*domain.TradeRecord, error) {
	if len(f.repos) == 0 {
		return nil, nil
	}
	return f.repos[0].ListTrades(ctx, limit)
}

func (f *FanoutTradeRepository) LogEvent(ctx context.Context, event, detail string) error {
	var firstErr error
	for _, r := range f.repos {
		if err := r.LogEvent(ctx, event, detail); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
