package usecase

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/vitos/stock_risk_engine/internal/domain"
	"github.com/vitos/stock_risk_engine/internal/metrics"
	"go.uber.org/zap"
)

// RiskLedger enforces the trading limits: it validates every proposed order,
// tracks per-day statistics and per-symbol stop levels, and owns the
// emergency-stop flag. All mutations go through one mutex and are flushed to
// the state repository immediately.
type RiskLedger struct {
	cfg       domain.RiskConfig
	stateRepo domain.StateRepository
	tradeRepo domain.TradeRepository
	logger    *zap.Logger

	mu            sync.Mutex
	state         *domain.RiskState
	lastOrderTime map[string]time.Time
	timeNow       func() time.Time // For testing
}

func NewRiskLedger(
	cfg domain.RiskConfig,
	stateRepo domain.StateRepository,
	tradeRepo domain.TradeRepository,
	logger *zap.Logger,
) (*RiskLedger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &RiskLedger{
		cfg:           cfg,
		stateRepo:     stateRepo,
		tradeRepo:     tradeRepo,
		logger:        logger,
		lastOrderTime: make(map[string]time.Time),
		timeNow:       time.Now,
	}

	state, err := stateRepo.Load()
	if err != nil {
		// A missing or corrupt state file must not block trading; start
		// fresh and rely on the broker as the source of truth.
		logger.Warn("failed to load risk state, starting empty", zap.Error(err))
		state = domain.NewRiskState()
	}
	l.state = state

	return l, nil
}

func (l *RiskLedger) Config() domain.RiskConfig {
	return l.cfg
}

// EffectiveBalance clips the account balance to the configured trading
// capital cap, letting a trader self-impose a smaller universe than the full
// brokerage balance.
func (l *RiskLedger) EffectiveBalance(accountBalance float64) float64 {
	if l.cfg.MaxTradingCapital > 0 {
		return math.Min(accountBalance, l.cfg.MaxTradingCapital)
	}
	return accountBalance
}

func (l *RiskLedger) IsEmergencyStopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.EmergencyStop
}

// ValidateOrder runs the ordered risk checks and returns (false, reason) on
// the first violation. It has no side effects, so callers may use it for
// dry-run previews.
func (l *RiskLedger) ValidateOrder(
	symbol string,
	side domain.Side,
	quantity int64,
	price float64,
	accountBalance float64,
	positions []domain.Position,
) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Check 1: emergency stop gates everything.
	if l.state.EmergencyStop {
		return false, "trading is emergency-stopped, resume before submitting orders"
	}

	effective := l.EffectiveBalance(accountBalance)
	orderValue := float64(quantity) * price

	// Check 2: order value bounds.
	if orderValue < l.cfg.MinOrderValue {
		return false, fmt.Sprintf("order value %.2f below min order value %.2f", orderValue, l.cfg.MinOrderValue)
	}
	if orderValue > l.cfg.MaxOrderValue {
		return false, fmt.Sprintf("order value %.2f exceeds max order value %.2f", orderValue, l.cfg.MaxOrderValue)
	}

	// Check 3: single-position cap.
	maxSingle := effective * l.cfg.MaxSinglePositionPct
	if orderValue > maxSingle {
		return false, fmt.Sprintf("order value %.2f exceeds single-position limit %.2f (%.0f%%)",
			orderValue, maxSingle, l.cfg.MaxSinglePositionPct*100)
	}

	positionValue := 0.0
	for _, p := range positions {
		positionValue += p.MarketValue
	}

	// Check 4: total exposure cap, buys only.
	if side == domain.SideBuy {
		newTotal := positionValue + orderValue
		maxTotal := effective * l.cfg.MaxTotalPositionPct
		if newTotal > maxTotal {
			return false, fmt.Sprintf("total position %.2f after buy exceeds limit %.2f (%.0f%%)",
				newTotal, maxTotal, l.cfg.MaxTotalPositionPct*100)
		}
	}

	// Check 5: cash reserve, buys only.
	if side == domain.SideBuy {
		minCash := effective * l.cfg.MinCashReservePct
		availableCash := effective - positionValue
		if availableCash-orderValue < minCash {
			return false, fmt.Sprintf("cash after buy would fall below reserve %.2f (%.0f%%)",
				minCash, l.cfg.MinCashReservePct*100)
		}
	}

	// Check 6: daily trade count.
	stats := l.state.DailyStats[l.dateKey()]
	if stats.TradeCount >= l.cfg.DailyTradeLimit {
		return false, fmt.Sprintf("daily trade limit reached (%d)", l.cfg.DailyTradeLimit)
	}

	// Check 7: daily loss limit.
	if stats.RealizedPnL < 0 && effective > 0 {
		lossPct := math.Abs(stats.RealizedPnL) / effective
		if lossPct >= l.cfg.DailyLossLimitPct {
			return false, fmt.Sprintf("daily loss limit reached (%.1f%%)", l.cfg.DailyLossLimitPct*100)
		}
	}

	// Check 8: per-symbol cooldown.
	if last, ok := l.lastOrderTime[symbol]; ok {
		elapsed := l.timeNow().Sub(last)
		cooldown := time.Duration(l.cfg.OrderCooldownSeconds) * time.Second
		if elapsed < cooldown {
			remaining := (cooldown - elapsed).Round(time.Second)
			return false, fmt.Sprintf("cooldown active for %s, wait %s", symbol, remaining)
		}
	}

	return true, "ok"
}

// CalculatePositionSize returns how many shares to buy at price so the order
// stays within riskPct of the effective balance and the max order value.
// riskPct <= 0 falls back to the single-position limit.
func (l *RiskLedger) CalculatePositionSize(symbol string, price, accountBalance, riskPct float64) int64 {
	if price <= 0 {
		return 0
	}
	if riskPct <= 0 {
		riskPct = l.cfg.MaxSinglePositionPct
	}

	effective := l.EffectiveBalance(accountBalance)
	maxValue := math.Min(effective*riskPct, l.cfg.MaxOrderValue)

	quantity := int64(maxValue / price)
	if quantity < 0 {
		return 0
	}
	return quantity
}

// SetStopsFromCost derives stop-loss / take-profit from the cost basis and
// stores them, overwriting any prior levels for the symbol. Called after
// every filled buy.
func (l *RiskLedger) SetStopsFromCost(symbol string, costPrice float64) (stopLoss, takeProfit float64, err error) {
	stopLoss = costPrice * (1 - l.cfg.DefaultStopLossPct)
	takeProfit = costPrice * (1 + l.cfg.DefaultTakeProfitPct)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.PositionStops[symbol] = domain.StopLevels{StopLoss: stopLoss, TakeProfit: takeProfit}
	return stopLoss, takeProfit, l.persist()
}

// StopLevels returns the stored levels for a symbol, or the defaults derived
// from costPrice when none are set.
func (l *RiskLedger) StopLevels(symbol string, costPrice float64) domain.StopLevels {
	l.mu.Lock()
	defer l.mu.Unlock()
	if levels, ok := l.state.PositionStops[symbol]; ok {
		return levels
	}
	return domain.StopLevels{
		StopLoss:   costPrice * (1 - l.cfg.DefaultStopLossPct),
		TakeProfit: costPrice * (1 + l.cfg.DefaultTakeProfitPct),
	}
}

// CheckPositionRisk computes a fresh risk snapshot for one holding.
func (l *RiskLedger) CheckPositionRisk(symbol string, quantity int64, costPrice, currentPrice float64) domain.PositionRisk {
	marketValue := float64(quantity) * currentPrice
	costValue := float64(quantity) * costPrice
	pnl := marketValue - costValue
	pnlPct := 0.0
	if costValue > 0 {
		pnlPct = pnl / costValue
	}

	levels := l.StopLevels(symbol, costPrice)

	var level domain.RiskLevel
	switch {
	case pnlPct <= -l.cfg.DefaultStopLossPct:
		level = domain.RiskCritical
	case pnlPct <= -0.03:
		level = domain.RiskHigh
	case pnlPct <= -0.01:
		level = domain.RiskMedium
	default:
		level = domain.RiskLow
	}

	return domain.PositionRisk{
		Symbol:           symbol,
		Quantity:         quantity,
		CostPrice:        costPrice,
		CurrentPrice:     currentPrice,
		MarketValue:      marketValue,
		UnrealizedPnL:    pnl,
		UnrealizedPnLPct: pnlPct,
		StopLossPrice:    levels.StopLoss,
		TakeProfitPrice:  levels.TakeProfit,
		Level:            level,
	}
}

// ScanPositionsForExit returns the holdings whose fixed stop or take-profit
// level is breached at the quoted price.
func (l *RiskLedger) ScanPositionsForExit(positions []domain.Position, quotes map[string]float64) []domain.PositionRisk {
	var exits []domain.PositionRisk
	for _, pos := range positions {
		price := quotes[pos.Symbol]
		if price <= 0 {
			continue
		}
		risk := l.CheckPositionRisk(pos.Symbol, pos.Quantity, pos.CostPrice, price)
		if risk.ShouldStopLoss() || risk.ShouldTakeProfit() {
			exits = append(exits, risk)
		}
	}
	return exits
}

// RecordTrade folds a trade into the daily statistics, stamps the symbol's
// cooldown, appends the record to the trade log, and persists. Persistence
// failures are returned, never swallowed.
func (l *RiskLedger) RecordTrade(ctx context.Context, rec *domain.TradeRecord) error {
	l.mu.Lock()

	day := l.dateKey()
	stats := l.state.DailyStats[day]
	stats.TradeCount++
	if rec.PnL != nil {
		stats.RealizedPnL += *rec.PnL
	}
	if rec.Side == domain.SideBuy {
		stats.BuyValue += rec.Value
	} else {
		stats.SellValue += rec.Value
	}
	l.state.DailyStats[day] = stats

	l.lastOrderTime[rec.Symbol] = l.timeNow()

	persistErr := l.persist()
	l.mu.Unlock()

	if err := l.tradeRepo.SaveTrade(ctx, rec); err != nil {
		l.logger.Error("failed to append trade log", zap.String("id", rec.ID), zap.Error(err))
		return fmt.Errorf("append trade log: %w", err)
	}
	return persistErr
}

// DailyStatsFor returns the stats for an ISO date, today when day is empty.
func (l *RiskLedger) DailyStatsFor(day string) domain.DailyStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	if day == "" {
		day = l.dateKey()
	}
	return l.state.DailyStats[day]
}

// EmergencyStop halts all order validation until ResumeTrading is called.
// The flag survives restarts.
func (l *RiskLedger) EmergencyStop(ctx context.Context, reason string) error {
	l.mu.Lock()
	l.state.EmergencyStop = true
	persistErr := l.persist()
	l.mu.Unlock()

	metrics.EmergencyStop.Set(1)
	l.logger.Warn("emergency stop activated", zap.String("reason", reason))
	if err := l.tradeRepo.LogEvent(ctx, "EMERGENCY_STOP", reason); err != nil {
		l.logger.Error("failed to log emergency stop event", zap.Error(err))
	}
	return persistErr
}

func (l *RiskLedger) ResumeTrading(ctx context.Context) error {
	l.mu.Lock()
	l.state.EmergencyStop = false
	persistErr := l.persist()
	l.mu.Unlock()

	metrics.EmergencyStop.Set(0)
	l.logger.Info("trading resumed")
	if err := l.tradeRepo.LogEvent(ctx, "RESUME_TRADING", ""); err != nil {
		l.logger.Error("failed to log resume event", zap.Error(err))
	}
	return persistErr
}

// HighWaterMark returns the persisted best price seen for a symbol since
// entry.
func (l *RiskLedger) HighWaterMark(symbol string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	mark, ok := l.state.HighWaterMarks[symbol]
	return mark, ok
}

// RaiseHighWaterMark records price as the new mark when it exceeds the
// current one, initializing the mark on first sight. The returned value is
// the effective mark after the update.
func (l *RiskLedger) RaiseHighWaterMark(symbol string, price float64) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	mark, ok := l.state.HighWaterMarks[symbol]
	if !ok || price > mark {
		l.state.HighWaterMarks[symbol] = price
		return price, l.persist()
	}
	return mark, nil
}

// ClearSymbolState drops the stop levels and high-water mark after a full
// exit so stale entries do not accumulate.
func (l *RiskLedger) ClearSymbolState(symbol string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.state.PositionStops, symbol)
	delete(l.state.HighWaterMarks, symbol)
	return l.persist()
}

func (l *RiskLedger) dateKey() string {
	return l.timeNow().Format("2006-01-02")
}

// persist flushes the in-memory state. Callers must hold l.mu.
func (l *RiskLedger) persist() error {
	if err := l.stateRepo.Save(l.state); err != nil {
		l.logger.Error("failed to save risk state", zap.Error(err))
		return fmt.Errorf("save risk state: %w", err)
	}
	return nil
}
