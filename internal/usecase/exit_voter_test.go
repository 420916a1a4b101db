package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/vitos/stock_risk_engine/internal/domain"
	"go.uber.org/zap"
)

// flatBars returns n daily bars with a constant true range of 2: every close
// is 100, every high 101, every low 99.
func flatBars(n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = domain.Bar{
			Date:  day.AddDate(0, 0, i),
			Open:  100,
			High:  101,
			Low:   99,
			Close: 100,
		}
	}
	return bars
}

func newTestVoter(t *testing.T, cfg StopConfig, md *MockMarketData) (*ExitVoter, *RiskLedger) {
	t.Helper()
	ledger, err := NewRiskLedger(domain.DefaultRiskConfig(), &MockStateStore{}, &MockTradeRepo{}, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to init ledger: %v", err)
	}
	indicators := NewIndicatorService(md, cfg.MarketBenchmark)
	voter := NewExitVoter(cfg, ledger, indicators, md, zap.NewNop())
	// Pin the clock outside the close window unless a test moves it.
	voter.timeNow = func() time.Time {
		return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	}
	return voter, ledger
}

func TestEvaluate_ATRStopTriggers(t *testing.T) {
	cfg := DefaultStopConfig()
	cfg.ATRMultiplier = 3
	cfg.MinStopPct = 0.01
	cfg.MaxStopPct = 0.20

	md := &MockMarketData{Bars: map[string][]domain.Bar{"AAPL.US": flatBars(110)}}
	voter, _ := newTestVoter(t, cfg, md)

	// ATR=2, multiplier 3 on a cost of 100 puts the stop at 94.
	result := voter.Evaluate(context.Background(), "AAPL.US", 100, 93, false)
	if result.Decision != domain.ExitStopLoss {
		t.Fatalf("Expected stop-loss at 93 against stop 94, got %s (%s)", result.Decision, result.VoteSummary)
	}
	if math.Abs(result.Details["atr_stop"]-94) > 1e-9 {
		t.Errorf("Expected ATR stop 94, got %.2f", result.Details["atr_stop"])
	}

	// Just above the stop the adaptive vote holds.
	result = voter.Evaluate(context.Background(), "AAPL.US", 100, 94.5, false)
	if result.Votes[0].Decision != domain.ExitHold {
		t.Errorf("Expected adaptive hold at the stop price, got %s", result.Votes[0].Decision)
	}
}

func TestAdaptiveStopPrice_Clamping(t *testing.T) {
	cfg := DefaultStopConfig()
	md := &MockMarketData{}
	voter, _ := newTestVoter(t, cfg, md)

	// A huge ATR is clamped to the max stop distance.
	if stop := voter.adaptiveStopPrice(100, 50); stop != 100*(1-cfg.MaxStopPct) {
		t.Errorf("Expected stop clamped to %.2f, got %.2f", 100*(1-cfg.MaxStopPct), stop)
	}

	// A tiny ATR is clamped to the min stop distance.
	if stop := voter.adaptiveStopPrice(100, 0.1); stop != 100*(1-cfg.MinStopPct) {
		t.Errorf("Expected stop clamped to %.2f, got %.2f", 100*(1-cfg.MinStopPct), stop)
	}

	// ATR 0 means unknown and falls back to the fixed distance.
	if stop := voter.adaptiveStopPrice(100, 0); stop != 95 {
		t.Errorf("Expected fallback stop 95, got %.2f", stop)
	}
}

func TestEvaluate_TrailingTakeProfit(t *testing.T) {
	cfg := DefaultStopConfig()
	md := &MockMarketData{Bars: map[string][]domain.Bar{"AAPL.US": flatBars(110)}}
	voter, ledger := newTestVoter(t, cfg, md)

	if _, err := ledger.RaiseHighWaterMark("AAPL.US", 110); err != nil {
		t.Fatalf("RaiseHighWaterMark failed: %v", err)
	}

	// 10% gain at the high, 3.6% drawdown from it: trailing stop fires.
	result := voter.Evaluate(context.Background(), "AAPL.US", 100, 106, false)
	if result.Decision != domain.ExitTakeProfit {
		t.Fatalf("Expected trailing take-profit, got %s (%s)", result.Decision, result.Votes[0].Reason)
	}
	if result.Details["high_water_mark"] != 110 {
		t.Errorf("Expected high-water mark 110, got %.2f", result.Details["high_water_mark"])
	}

	// A small dip below the high does not trigger.
	result = voter.Evaluate(context.Background(), "AAPL.US", 100, 109, false)
	if result.Decision != domain.ExitHold {
		t.Errorf("Expected hold on a 0.9%% dip, got %s", result.Decision)
	}
}

func TestEvaluate_HighWaterMarkMonotonic(t *testing.T) {
	cfg := DefaultStopConfig()
	md := &MockMarketData{Bars: map[string][]domain.Bar{"AAPL.US": flatBars(110)}}
	voter, _ := newTestVoter(t, cfg, md)
	ctx := context.Background()

	voter.Evaluate(ctx, "AAPL.US", 100, 104, false)
	result := voter.Evaluate(ctx, "AAPL.US", 100, 101, false)
	if result.Details["high_water_mark"] != 104 {
		t.Errorf("Expected mark held at 104, got %.2f", result.Details["high_water_mark"])
	}
}

func TestEvaluate_AuxiliaryOverride(t *testing.T) {
	// Tuned so the adaptive vote holds at 91 (stop at 90) while both
	// auxiliary strategies vote stop-loss.
	cfg := DefaultStopConfig()
	cfg.ATRMultiplier = 5
	cfg.MaxStopPct = 0.20

	md := &MockMarketData{Bars: map[string][]domain.Bar{"AAPL.US": flatBars(110)}}

	// Outside the close window, unforced: the auxiliary agreement does not
	// execute.
	voter, _ := newTestVoter(t, cfg, md)
	result := voter.Evaluate(context.Background(), "AAPL.US", 100, 91, false)
	if result.Votes[0].Decision != domain.ExitHold {
		t.Fatalf("Expected adaptive hold, got %s", result.Votes[0].Decision)
	}
	if result.Decision != domain.ExitHold {
		t.Errorf("Expected hold outside close window, got %s", result.Decision)
	}

	// Forced: both auxiliary stop votes agree and the exit goes through.
	voter2, _ := newTestVoter(t, cfg, md)
	result = voter2.Evaluate(context.Background(), "AAPL.US", 100, 91, true)
	if result.Decision != domain.ExitStopLoss {
		t.Errorf("Expected stop-loss when forced, got %s (%s)", result.Decision, result.VoteSummary)
	}

	// Inside the close window the agreement also executes unforced.
	voter3, _ := newTestVoter(t, cfg, md)
	voter3.timeNow = func() time.Time {
		return time.Date(2026, 8, 28, 4, 0, 0, 0, time.UTC)
	}
	result = voter3.Evaluate(context.Background(), "AAPL.US", 100, 91, false)
	if result.Decision != domain.ExitStopLoss {
		t.Errorf("Expected stop-loss inside close window, got %s (%s)", result.Decision, result.VoteSummary)
	}
}

func TestEvaluate_MarketDropWidensStop(t *testing.T) {
	cfg := DefaultStopConfig()
	cfg.ATRMultiplier = 5
	cfg.MaxStopPct = 0.20

	// Benchmark down 5%: the allowed drop widens to 5% + 5%*1.2 = 11%, so a
	// 9% stock drop is only a 4% excess and the market vote holds.
	md := &MockMarketData{
		Bars:   map[string][]domain.Bar{"AAPL.US": flatBars(110)},
		Quotes: []domain.Quote{{Symbol: "SPY.US", Price: 95, ChangePct: -5}},
	}
	voter, _ := newTestVoter(t, cfg, md)

	result := voter.Evaluate(context.Background(), "AAPL.US", 100, 91, true)
	marketVote := result.Votes[2]
	if marketVote.Decision != domain.ExitHold {
		t.Errorf("Expected market vote to hold with the index down, got %s (%s)", marketVote.Decision, marketVote.Reason)
	}

	// Only one auxiliary stop vote remains, so no override.
	if result.Decision != domain.ExitHold {
		t.Errorf("Expected hold with a single auxiliary stop vote, got %s (%s)", result.Decision, result.VoteSummary)
	}
}

func TestEvaluate_FlatMarketStop(t *testing.T) {
	cfg := DefaultStopConfig()
	cfg.ATRMultiplier = 5
	cfg.MaxStopPct = 0.20

	// Benchmark flat: a 9% drop is 4% beyond the 5% base allowance.
	md := &MockMarketData{
		Bars:   map[string][]domain.Bar{"AAPL.US": flatBars(110)},
		Quotes: []domain.Quote{{Symbol: "SPY.US", Price: 100, ChangePct: 0}},
	}
	voter, _ := newTestVoter(t, cfg, md)

	result := voter.Evaluate(context.Background(), "AAPL.US", 100, 91, true)
	if result.Votes[2].Decision != domain.ExitStopLoss {
		t.Errorf("Expected market stop vote in a flat market, got %s (%s)", result.Votes[2].Decision, result.Votes[2].Reason)
	}
}

func TestInCloseWindow(t *testing.T) {
	cfg := DefaultStopConfig()
	md := &MockMarketData{}
	voter, _ := newTestVoter(t, cfg, md)

	voter.timeNow = func() time.Time {
		return time.Date(2026, 8, 28, 4, 30, 0, 0, time.UTC)
	}
	if !voter.InCloseWindow() {
		t.Error("Expected 04:30 inside the 03:30-05:30 window")
	}

	voter.timeNow = func() time.Time {
		return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	}
	if voter.InCloseWindow() {
		t.Error("Expected 12:00 outside the 03:30-05:30 window")
	}

	// Windows crossing midnight work on both sides.
	voter.cfg.CloseWindowStart = "23:00"
	voter.cfg.CloseWindowEnd = "01:00"
	voter.timeNow = func() time.Time {
		return time.Date(2026, 8, 28, 23, 30, 0, 0, time.UTC)
	}
	if !voter.InCloseWindow() {
		t.Error("Expected 23:30 inside the 23:00-01:00 window")
	}
	voter.timeNow = func() time.Time {
		return time.Date(2026, 8, 28, 0, 30, 0, 0, time.UTC)
	}
	if !voter.InCloseWindow() {
		t.Error("Expected 00:30 inside the 23:00-01:00 window")
	}
}

func TestScanPositions(t *testing.T) {
	cfg := DefaultStopConfig()
	md := &MockMarketData{
		Bars: map[string][]domain.Bar{"AAPL.US": flatBars(110)},
		Quotes: []domain.Quote{
			{Symbol: "AAPL.US", Price: 104, ChangePct: 1},
		},
	}
	voter, _ := newTestVoter(t, cfg, md)

	positions := []domain.Position{
		{Symbol: "AAPL.US", Quantity: 100, CostPrice: 100},
		{Symbol: "MSFT.US", Quantity: 50, CostPrice: 200},
	}

	// Quotes are fetched when the caller does not supply them; positions
	// without a quote are skipped.
	results, err := voter.ScanPositions(context.Background(), positions, nil, false)
	if err != nil {
		t.Fatalf("ScanPositions failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Symbol != "AAPL.US" || results[0].Decision != domain.ExitHold {
		t.Errorf("Unexpected result %+v", results[0])
	}
}
