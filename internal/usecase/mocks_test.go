package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/vitos/stock_risk_engine/internal/domain"
)

// MockStateStore keeps the risk state in memory.
type MockStateStore struct {
	mu      sync.Mutex
	State   *domain.RiskState
	LoadErr error
	SaveErr error
	SaveCnt int
}

func (m *MockStateStore) Load() (*domain.RiskState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	if m.State == nil {
		return domain.NewRiskState(), nil
	}
	return m.State, nil
}

func (m *MockStateStore) Save(state *domain.RiskState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.State = state
	m.SaveCnt++
	return nil
}

// MockTradeRepo records trades and events in memory.
type MockTradeRepo struct {
	mu      sync.Mutex
	Trades  []*domain.TradeRecord
	Events  []string
	SaveErr error
}

func (m *MockTradeRepo) SaveTrade(ctx context.Context, rec *domain.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.Trades = append(m.Trades, rec)
	return nil
}

func (m *MockTradeRepo) ListTrades(ctx context.Context, limit int) ([]*domain.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.Trades) {
		limit = len(m.Trades)
	}
	return m.Trades[:limit], nil
}

func (m *MockTradeRepo) LogEvent(ctx context.Context, event, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return nil
}

// MockBroker returns canned balances and positions and records submissions.
type MockBroker struct {
	mu        sync.Mutex
	Balance   float64
	Positions []domain.Position
	NextID    string
	SubmitErr error

	Submitted []string // "side symbol" of each submitted order
	Cancelled []string
}

func (m *MockBroker) TotalBalance(ctx context.Context, currency string) (float64, error) {
	return m.Balance, nil
}

func (m *MockBroker) GetPositions(ctx context.Context) ([]domain.Position, error) {
	return m.Positions, nil
}

func (m *MockBroker) SubmitOrder(ctx context.Context, symbol string, side domain.Side, quantity int64, price float64, orderType domain.OrderType) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubmitErr != nil {
		return "", m.SubmitErr
	}
	m.Submitted = append(m.Submitted, string(side)+" "+symbol)
	if m.NextID == "" {
		return "order-1", nil
	}
	return m.NextID, nil
}

func (m *MockBroker) CancelOrder(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cancelled = append(m.Cancelled, orderID)
	return nil
}

// MockMarketData serves canned bars and quotes.
type MockMarketData struct {
	mu        sync.Mutex
	Bars      map[string][]domain.Bar
	Quotes    []domain.Quote
	BarsErr   error
	QuotesErr error

	BarCalls   int
	QuoteCalls int
}

func (m *MockMarketData) GetQuotes(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QuoteCalls++
	if m.QuotesErr != nil {
		return nil, m.QuotesErr
	}
	return m.Quotes, nil
}

func (m *MockMarketData) GetBars(ctx context.Context, symbol string, limit int) ([]domain.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BarCalls++
	if m.BarsErr != nil {
		return nil, m.BarsErr
	}
	bars, ok := m.Bars[symbol]
	if !ok {
		return nil, errors.New("no bars for " + symbol)
	}
	if limit < len(bars) {
		return bars[len(bars)-limit:], nil
	}
	return bars, nil
}

func (m *MockMarketData) OnQuoteUpdate(callback func(symbol string, price float64)) {}

func (m *MockMarketData) Subscribe(symbols []string) error { return nil }
