package domain

import "context"

type OrderType string

const (
	OrderLimit  OrderType = "limit"
	OrderMarket OrderType = "market"
)

// Broker defines the interface for the brokerage trade API.
type Broker interface {
	// TotalBalance returns the account cash balance in the given currency,
	// converting from other currencies when necessary.
	TotalBalance(ctx context.Context, currency string) (float64, error)
	GetPositions(ctx context.Context) ([]Position, error)
	// SubmitOrder returns the broker-assigned order ID.
	SubmitOrder(ctx context.Context, symbol string, side Side, quantity int64, price float64, orderType OrderType) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// MarketData defines the quote/bar source feeding the indicator cache and
// the exit voter.
type MarketData interface {
	// GetQuotes returns realtime quotes with the same-day change for each
	// symbol, in request order where available.
	GetQuotes(ctx context.Context, symbols []string) ([]Quote, error)
	// GetBars returns up to limit daily bars ascending by date.
	GetBars(ctx context.Context, symbol string, limit int) ([]Bar, error)
	OnQuoteUpdate(callback func(symbol string, price float64))
	Subscribe(symbols []string) error
}

// TradeRepository records trades and audit events. Implementations append;
// nothing is ever updated or deleted.
type TradeRepository interface {
	SaveTrade(ctx context.Context, rec *TradeRecord) error
	ListTrades(ctx context.Context, limit int) ([]*TradeRecord, error)
	LogEvent(ctx context.Context, event string, detail string) error
}

// StateRepository persists the risk ledger state between runs.
type StateRepository interface {
	Load() (*RiskState, error)
	Save(state *RiskState) error
}
