package domain

import "time"

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
	StatusRejected  OrderStatus = "rejected"
)

// Position is an open holding as reported by the broker adapter.
type Position struct {
	Symbol      string  `json:"symbol"`
	Quantity    int64   `json:"quantity"`
	Available   int64   `json:"available"`
	CostPrice   float64 `json:"cost_price"`
	MarketValue float64 `json:"market_value"`
}

// TradeRecord is one line of the append-only trade log. Records are immutable
// once written.
type TradeRecord struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Symbol    string      `json:"symbol"`
	Side      Side        `json:"side"`
	Quantity  int64       `json:"quantity"`
	Price     float64     `json:"price"`
	Value     float64     `json:"value"`
	OrderID   string      `json:"order_id,omitempty"`
	Status    OrderStatus `json:"status"`
	Reason    string      `json:"reason,omitempty"`
	PnL       *float64    `json:"pnl,omitempty"`
}
