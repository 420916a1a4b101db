package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/vitos/stock_risk_engine/internal/domain"
	"go.uber.org/zap"
)

// StopConfig tunes the three exit strategies.
type StopConfig struct {
	ATRPeriod     int     `json:"atr_period"`
	ATRMultiplier float64 `json:"atr_multiplier"`
	MinStopPct    float64 `json:"min_stop_pct"`
	MaxStopPct    float64 `json:"max_stop_pct"`

	// Trailing take-profit, driven by the persisted high-water mark.
	TrailingStartPct float64 `json:"trailing_start_pct"`
	TrailingStopPct  float64 `json:"trailing_stop_pct"`

	// The close-window vote only fires inside this daily window.
	UseCloseOnly     bool   `json:"use_close_only"`
	CloseWindowStart string `json:"close_window_start"`
	CloseWindowEnd   string `json:"close_window_end"`

	FixedCloseStopPct float64 `json:"fixed_close_stop_pct"`

	MarketBenchmark   string  `json:"market_benchmark"`
	MarketDropBuffer  float64 `json:"market_drop_buffer"`
	BaseMarketStopPct float64 `json:"base_market_stop_pct"`

	TakeProfitPct float64 `json:"take_profit_pct"`
}

func DefaultStopConfig() StopConfig {
	return StopConfig{
		ATRPeriod:         14,
		ATRMultiplier:     2.5,
		MinStopPct:        0.03,
		MaxStopPct:        0.15,
		TrailingStartPct:  0.05,
		TrailingStopPct:   0.03,
		UseCloseOnly:      true,
		CloseWindowStart:  "03:30",
		CloseWindowEnd:    "05:30",
		FixedCloseStopPct: 0.08,
		MarketBenchmark:   "SPY.US",
		MarketDropBuffer:  1.2,
		BaseMarketStopPct: 0.05,
		TakeProfitPct:     0.15,
	}
}

// LoadStopConfig reads a flat JSON file, applying defaults for missing keys.
func LoadStopConfig(path string) (StopConfig, error) {
	cfg := DefaultStopConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse stop config %s: %w", path, err)
	}
	return cfg, nil
}

const (
	strategyAdaptive       = "atr_adaptive"
	strategyCloseWindow    = "close_window"
	strategyMarketRelative = "market_relative"

	// Stop distance when ATR is unavailable.
	fallbackStopPct = 0.05
)

// ExitVoter decides, per open position, whether to exit. Three independent
// strategies vote and the adaptive vote has override priority: when it is not
// Hold its decision is final, and the auxiliary stop votes only count inside
// the close window.
type ExitVoter struct {
	cfg        StopConfig
	ledger     *RiskLedger
	indicators *IndicatorService
	md         domain.MarketData
	logger     *zap.Logger
	timeNow    func() time.Time // For testing
}

func NewExitVoter(
	cfg StopConfig,
	ledger *RiskLedger,
	indicators *IndicatorService,
	md domain.MarketData,
	logger *zap.Logger,
) *ExitVoter {
	return &ExitVoter{
		cfg:        cfg,
		ledger:     ledger,
		indicators: indicators,
		md:         md,
		logger:     logger,
		timeNow:    time.Now,
	}
}

// adaptiveStopPrice derives the ATR-based stop level for a cost basis. The
// stop distance is clamped to [MinStopPct, MaxStopPct] of cost; ATR=0 falls
// back to a fixed percentage.
func (v *ExitVoter) adaptiveStopPrice(costPrice, atr float64) float64 {
	if atr <= 0 {
		return costPrice * (1 - fallbackStopPct)
	}
	stopPct := atr * v.cfg.ATRMultiplier / costPrice
	if stopPct < v.cfg.MinStopPct {
		stopPct = v.cfg.MinStopPct
	}
	if stopPct > v.cfg.MaxStopPct {
		stopPct = v.cfg.MaxStopPct
	}
	return costPrice * (1 - stopPct)
}

// voteAdaptive raises the high-water mark, then checks the trailing
// take-profit and the ATR stop.
func (v *ExitVoter) voteAdaptive(ctx context.Context, symbol string, costPrice, currentPrice float64) (domain.ExitVote, float64, float64) {
	mark, err := v.ledger.RaiseHighWaterMark(symbol, currentPrice)
	if err != nil {
		v.logger.Error("failed to persist high-water mark", zap.String("symbol", symbol), zap.Error(err))
	}

	atr := v.indicators.ATR(ctx, symbol, v.cfg.ATRPeriod)
	stop := v.adaptiveStopPrice(costPrice, atr)

	gainFromCost := (mark - costPrice) / costPrice
	drawdownFromMark := 0.0
	if mark > 0 {
		drawdownFromMark = (mark - currentPrice) / mark
	}

	if gainFromCost >= v.cfg.TrailingStartPct && drawdownFromMark >= v.cfg.TrailingStopPct {
		return domain.ExitVote{
			Strategy: strategyAdaptive,
			Decision: domain.ExitTakeProfit,
			Reason: fmt.Sprintf("trailing stop: %.1f%% drawdown from high %.2f after %.1f%% gain",
				drawdownFromMark*100, mark, gainFromCost*100),
			Confidence: 0.9,
		}, atr, stop
	}

	if currentPrice < stop {
		return domain.ExitVote{
			Strategy: strategyAdaptive,
			Decision: domain.ExitStopLoss,
			Reason: fmt.Sprintf("price %.2f below ATR stop %.2f (ATR=%.2f)",
				currentPrice, stop, atr),
			Confidence: 0.8,
		}, atr, stop
	}

	return domain.ExitVote{
		Strategy:   strategyAdaptive,
		Decision:   domain.ExitHold,
		Reason:     fmt.Sprintf("price %.2f above ATR stop %.2f", currentPrice, stop),
		Confidence: 0.8,
	}, atr, stop
}

// voteCloseWindow only judges near the daily close so intraday noise cannot
// trigger it; forceCheck bypasses the gate for after-close reviews.
func (v *ExitVoter) voteCloseWindow(costPrice, currentPrice float64, forceCheck bool) domain.ExitVote {
	inWindow := v.inCloseWindow() || forceCheck
	if !inWindow && v.cfg.UseCloseOnly {
		return domain.ExitVote{
			Strategy:   strategyCloseWindow,
			Decision:   domain.ExitHold,
			Reason:     "outside close window, not judging",
			Confidence: 1.0,
		}
	}

	pnlPct := (currentPrice - costPrice) / costPrice
	stopPrice := costPrice * (1 - v.cfg.FixedCloseStopPct)

	if pnlPct >= v.cfg.TakeProfitPct {
		return domain.ExitVote{
			Strategy:   strategyCloseWindow,
			Decision:   domain.ExitTakeProfit,
			Reason:     fmt.Sprintf("close gain %.1f%% >= take-profit %.0f%%", pnlPct*100, v.cfg.TakeProfitPct*100),
			Confidence: 0.9,
		}
	}

	if currentPrice <= stopPrice {
		return domain.ExitVote{
			Strategy:   strategyCloseWindow,
			Decision:   domain.ExitStopLoss,
			Reason:     fmt.Sprintf("close price %.2f below fixed stop %.2f (%.1f%% drawdown)", currentPrice, stopPrice, -pnlPct*100),
			Confidence: 0.85,
		}
	}

	return domain.ExitVote{
		Strategy:   strategyCloseWindow,
		Decision:   domain.ExitHold,
		Reason:     fmt.Sprintf("close price %.2f within range (stop %.2f)", currentPrice, stopPrice),
		Confidence: 0.85,
	}
}

// voteRelativeMarket widens the allowed drawdown when the benchmark itself is
// falling: a stock dropping with the market is not a stock-specific problem.
func (v *ExitVoter) voteRelativeMarket(ctx context.Context, costPrice, currentPrice float64) (domain.ExitVote, float64) {
	marketChange := v.indicators.MarketChange(ctx)
	stockChange := (currentPrice - costPrice) / costPrice
	excessDrop := stockChange - marketChange

	allowedDrop := v.cfg.BaseMarketStopPct
	if marketChange < 0 {
		allowedDrop += -marketChange * v.cfg.MarketDropBuffer
		if allowedDrop > v.cfg.MaxStopPct {
			allowedDrop = v.cfg.MaxStopPct
		}
	}

	if stockChange >= v.cfg.TakeProfitPct {
		return domain.ExitVote{
			Strategy:   strategyMarketRelative,
			Decision:   domain.ExitTakeProfit,
			Reason:     fmt.Sprintf("gain %.1f%% >= take-profit %.0f%%", stockChange*100, v.cfg.TakeProfitPct*100),
			Confidence: 0.9,
		}, marketChange
	}

	if excessDrop < -allowedDrop {
		return domain.ExitVote{
			Strategy: strategyMarketRelative,
			Decision: domain.ExitStopLoss,
			Reason: fmt.Sprintf("excess drop %.1f%% beyond allowed -%.1f%% (market %+.1f%%)",
				excessDrop*100, allowedDrop*100, marketChange*100),
			Confidence: 0.75,
		}, marketChange
	}

	return domain.ExitVote{
		Strategy: strategyMarketRelative,
		Decision: domain.ExitHold,
		Reason: fmt.Sprintf("excess drop %.1f%% within allowed -%.1f%% (market %+.1f%%)",
			excessDrop*100, allowedDrop*100, marketChange*100),
		Confidence: 0.75,
	}, marketChange
}

// Evaluate runs all three votes and combines them. The adaptive vote wins
// outright when it is not Hold; otherwise the auxiliary votes must agree on
// StopLoss unanimously and the evaluation must be inside the close window
// (or forced).
func (v *ExitVoter) Evaluate(ctx context.Context, symbol string, costPrice, currentPrice float64, forceCloseCheck bool) domain.ExitResult {
	adaptive, atr, atrStop := v.voteAdaptive(ctx, symbol, costPrice, currentPrice)
	closeVote := v.voteCloseWindow(costPrice, currentPrice, forceCloseCheck)
	marketVote, marketChange := v.voteRelativeMarket(ctx, costPrice, currentPrice)

	votes := []domain.ExitVote{adaptive, closeVote, marketVote}

	final := domain.ExitHold
	if adaptive.Decision != domain.ExitHold {
		final = adaptive.Decision
	} else {
		auxStops := 0
		for _, vote := range votes[1:] {
			if vote.Decision == domain.ExitStopLoss {
				auxStops++
			}
		}
		if auxStops >= 2 && (v.inCloseWindow() || forceCloseCheck) {
			final = domain.ExitStopLoss
		}
	}

	stops, profits, holds := 0, 0, 0
	for _, vote := range votes {
		switch vote.Decision {
		case domain.ExitStopLoss:
			stops++
		case domain.ExitTakeProfit:
			profits++
		default:
			holds++
		}
	}

	mark, _ := v.ledger.HighWaterMark(symbol)
	pnlPct := (currentPrice - costPrice) / costPrice

	return domain.ExitResult{
		Symbol:      symbol,
		Decision:    final,
		Votes:       votes,
		VoteSummary: fmt.Sprintf("stop:%d | profit:%d | hold:%d", stops, profits, holds),
		Details: map[string]float64{
			"cost_price":      costPrice,
			"current_price":   currentPrice,
			"pnl_pct":         pnlPct,
			"atr":             atr,
			"atr_stop":        atrStop,
			"market_change":   marketChange,
			"high_water_mark": mark,
			"annualized_vol":  v.indicators.AnnualizedVolatility(ctx, symbol),
		},
	}
}

// ScanPositions evaluates every open position. When quotes is nil they are
// fetched from the market data source in one call.
func (v *ExitVoter) ScanPositions(ctx context.Context, positions []domain.Position, quotes map[string]float64, forceCloseCheck bool) ([]domain.ExitResult, error) {
	if quotes == nil {
		symbols := make([]string, 0, len(positions))
		for _, p := range positions {
			symbols = append(symbols, p.Symbol)
		}
		fetched, err := v.md.GetQuotes(ctx, symbols)
		if err != nil {
			return nil, fmt.Errorf("fetch quotes: %w", err)
		}
		quotes = make(map[string]float64, len(fetched))
		for _, q := range fetched {
			quotes[q.Symbol] = q.Price
		}
	}

	results := make([]domain.ExitResult, 0, len(positions))
	for _, pos := range positions {
		price := quotes[pos.Symbol]
		if price <= 0 {
			continue
		}
		results = append(results, v.Evaluate(ctx, pos.Symbol, pos.CostPrice, price, forceCloseCheck))
	}
	return results, nil
}

// InCloseWindow reports whether the current time is inside the configured
// daily close window.
func (v *ExitVoter) InCloseWindow() bool {
	return v.inCloseWindow()
}

func (v *ExitVoter) inCloseWindow() bool {
	start, err := time.Parse("15:04", v.cfg.CloseWindowStart)
	if err != nil {
		return false
	}
	end, err := time.Parse("15:04", v.cfg.CloseWindowEnd)
	if err != nil {
		return false
	}

	now := v.timeNow()
	minutes := now.Hour()*60 + now.Minute()
	s := start.Hour()*60 + start.Minute()
	e := end.Hour()*60 + end.Minute()

	if s <= e {
		return minutes >= s && minutes <= e
	}
	// Window crosses midnight.
	return minutes >= s || minutes <= e
}
