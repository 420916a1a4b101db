package domain

import (
	"encoding/json"
	"fmt"
	"os"
)

// RiskConfig holds the trading limits enforced by the risk ledger. It is
// loaded once at startup and read-only afterwards.
type RiskConfig struct {
	// MaxTradingCapital caps the balance the engine is allowed to trade
	// against. Zero or negative means the full account balance is used.
	MaxTradingCapital float64 `json:"max_trading_capital"`

	MaxSinglePositionPct float64 `json:"max_single_position_pct"`
	MaxTotalPositionPct  float64 `json:"max_total_position_pct"`
	MinCashReservePct    float64 `json:"min_cash_reserve_pct"`

	DefaultStopLossPct   float64 `json:"default_stop_loss_pct"`
	DefaultTakeProfitPct float64 `json:"default_take_profit_pct"`

	DailyLossLimitPct float64 `json:"daily_loss_limit_pct"`
	DailyTradeLimit   int     `json:"daily_trade_limit"`

	MaxOrderValue float64 `json:"max_order_value"`
	MinOrderValue float64 `json:"min_order_value"`

	OrderCooldownSeconds int `json:"order_cooldown_seconds"`
}

// DefaultRiskConfig mirrors the defaults of the shipped risk_config.json.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxSinglePositionPct: 0.10,
		MaxTotalPositionPct:  0.80,
		MinCashReservePct:    0.20,
		DefaultStopLossPct:   0.05,
		DefaultTakeProfitPct: 0.15,
		DailyLossLimitPct:    0.03,
		DailyTradeLimit:      20,
		MaxOrderValue:        50000,
		MinOrderValue:        100,
		OrderCooldownSeconds: 60,
	}
}

// LoadRiskConfig reads a flat JSON config file, applying defaults for missing
// keys. A missing file yields the defaults.
func LoadRiskConfig(path string) (RiskConfig, error) {
	cfg := DefaultRiskConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse risk config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("risk config %s: %w", path, err)
	}
	return cfg, nil
}

func (c RiskConfig) Validate() error {
	pcts := map[string]float64{
		"max_single_position_pct": c.MaxSinglePositionPct,
		"max_total_position_pct":  c.MaxTotalPositionPct,
		"min_cash_reserve_pct":    c.MinCashReservePct,
		"default_stop_loss_pct":   c.DefaultStopLossPct,
		"default_take_profit_pct": c.DefaultTakeProfitPct,
		"daily_loss_limit_pct":    c.DailyLossLimitPct,
	}
	for name, v := range pcts {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, v)
		}
	}
	if c.MinOrderValue > c.MaxOrderValue {
		return fmt.Errorf("min_order_value %v exceeds max_order_value %v", c.MinOrderValue, c.MaxOrderValue)
	}
	return nil
}

// DailyStats accumulates per-day trading counters. Mutated only by
// RecordTrade; monotonic within a day.
type DailyStats struct {
	TradeCount  int     `json:"trade_count"`
	RealizedPnL float64 `json:"realized_pnl"`
	BuyValue    float64 `json:"buy_value"`
	SellValue   float64 `json:"sell_value"`
}

// StopLevels are the stop-loss / take-profit prices set at buy time.
type StopLevels struct {
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

// RiskState is the persisted ledger state. DailyStats is keyed by ISO date.
type RiskState struct {
	EmergencyStop  bool                  `json:"emergency_stop"`
	DailyStats     map[string]DailyStats `json:"daily_stats"`
	PositionStops  map[string]StopLevels `json:"position_stops"`
	HighWaterMarks map[string]float64    `json:"high_water_marks"`
}

// NewRiskState returns an empty state with all maps allocated.
func NewRiskState() *RiskState {
	return &RiskState{
		DailyStats:     make(map[string]DailyStats),
		PositionStops:  make(map[string]StopLevels),
		HighWaterMarks: make(map[string]float64),
	}
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// PositionRisk is a derived snapshot of one holding against the current
// price. It is computed fresh on every call and never stored.
type PositionRisk struct {
	Symbol           string
	Quantity         int64
	CostPrice        float64
	CurrentPrice     float64
	MarketValue      float64
	UnrealizedPnL    float64
	UnrealizedPnLPct float64
	StopLossPrice    float64
	TakeProfitPrice  float64
	Level            RiskLevel
}

func (p PositionRisk) ShouldStopLoss() bool {
	return p.CurrentPrice <= p.StopLossPrice
}

func (p PositionRisk) ShouldTakeProfit() bool {
	return p.CurrentPrice >= p.TakeProfitPrice
}
