package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/vitos/stock_risk_engine/internal/domain"
)

func TestATR(t *testing.T) {
	md := &MockMarketData{Bars: map[string][]domain.Bar{"AAPL.US": flatBars(30)}}
	svc := NewIndicatorService(md, "SPY.US")
	ctx := context.Background()

	// Every bar has true range 2.
	atr := svc.ATR(ctx, "AAPL.US", 14)
	if math.Abs(atr-2) > 1e-9 {
		t.Errorf("Expected ATR 2, got %f", atr)
	}
}

func TestATR_GapDominatesRange(t *testing.T) {
	// A gap down makes |low - prevClose| the true range.
	bars := []domain.Bar{
		{Close: 100, High: 101, Low: 99},
		{Close: 90, High: 92, Low: 89}, // TR = max(3, |92-100|, |89-100|) = 11
		{Close: 90, High: 91, Low: 89}, // TR = max(2, 1, 1) = 2
	}
	md := &MockMarketData{Bars: map[string][]domain.Bar{"AAPL.US": bars}}
	svc := NewIndicatorService(md, "SPY.US")

	atr := svc.ATR(context.Background(), "AAPL.US", 2)
	if math.Abs(atr-6.5) > 1e-9 {
		t.Errorf("Expected ATR 6.5, got %f", atr)
	}
}

func TestATR_InsufficientBars(t *testing.T) {
	md := &MockMarketData{Bars: map[string][]domain.Bar{"AAPL.US": flatBars(10)}}
	svc := NewIndicatorService(md, "SPY.US")

	if atr := svc.ATR(context.Background(), "AAPL.US", 14); atr != 0 {
		t.Errorf("Expected ATR 0 with 10 bars, got %f", atr)
	}

	md.BarsErr = errors.New("network down")
	if atr := svc.ATR(context.Background(), "AAPL.US", 14); atr != 0 {
		t.Errorf("Expected ATR 0 on fetch failure, got %f", atr)
	}
}

func TestATR_CachedForOneHour(t *testing.T) {
	md := &MockMarketData{Bars: map[string][]domain.Bar{"AAPL.US": flatBars(30)}}
	svc := NewIndicatorService(md, "SPY.US")
	ctx := context.Background()

	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	svc.timeNow = func() time.Time { return now }

	svc.ATR(ctx, "AAPL.US", 14)
	svc.ATR(ctx, "AAPL.US", 14)
	if md.BarCalls != 1 {
		t.Errorf("Expected 1 bar fetch within the TTL, got %d", md.BarCalls)
	}

	now = now.Add(61 * time.Minute)
	svc.ATR(ctx, "AAPL.US", 14)
	if md.BarCalls != 2 {
		t.Errorf("Expected a refetch after the TTL, got %d calls", md.BarCalls)
	}
}

func TestAnnualizedVolatility(t *testing.T) {
	// Alternating +10% / -9.0909% days give a constant-magnitude return
	// stream with nonzero variance.
	bars := make([]domain.Bar, 40)
	price := 100.0
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = domain.Bar{Date: day.AddDate(0, 0, i), Close: price}
		if i%2 == 0 {
			price *= 1.1
		} else {
			price /= 1.1
		}
	}
	md := &MockMarketData{Bars: map[string][]domain.Bar{"AAPL.US": bars}}
	svc := NewIndicatorService(md, "SPY.US")

	vol := svc.AnnualizedVolatility(context.Background(), "AAPL.US")
	if vol <= 0 {
		t.Errorf("Expected positive volatility, got %f", vol)
	}
	// Daily swings near 10% annualize far above 1.0.
	if vol < 1 {
		t.Errorf("Expected annualized volatility above 100%%, got %f", vol)
	}
}

func TestAnnualizedVolatility_ConstantPrice(t *testing.T) {
	md := &MockMarketData{Bars: map[string][]domain.Bar{"AAPL.US": flatBars(40)}}
	svc := NewIndicatorService(md, "SPY.US")

	if vol := svc.AnnualizedVolatility(context.Background(), "AAPL.US"); vol != 0 {
		t.Errorf("Expected zero volatility for a constant price, got %f", vol)
	}
}

func TestAnnualizedVolatility_InsufficientBars(t *testing.T) {
	md := &MockMarketData{Bars: map[string][]domain.Bar{"AAPL.US": flatBars(20)}}
	svc := NewIndicatorService(md, "SPY.US")

	if vol := svc.AnnualizedVolatility(context.Background(), "AAPL.US"); vol != 0 {
		t.Errorf("Expected 0 with 20 bars, got %f", vol)
	}
}

func TestMarketChange(t *testing.T) {
	md := &MockMarketData{Quotes: []domain.Quote{{Symbol: "SPY.US", Price: 500, ChangePct: -1.5}}}
	svc := NewIndicatorService(md, "SPY.US")
	ctx := context.Background()

	change := svc.MarketChange(ctx)
	if math.Abs(change-(-0.015)) > 1e-9 {
		t.Errorf("Expected change -0.015, got %f", change)
	}

	// Cached: flipping the quote inside the TTL does not show through.
	md.Quotes = []domain.Quote{{Symbol: "SPY.US", Price: 510, ChangePct: 2}}
	change = svc.MarketChange(ctx)
	if math.Abs(change-(-0.015)) > 1e-9 {
		t.Errorf("Expected cached change -0.015, got %f", change)
	}
	if md.QuoteCalls != 1 {
		t.Errorf("Expected 1 quote fetch, got %d", md.QuoteCalls)
	}
}

func TestMarketChange_FetchFailure(t *testing.T) {
	md := &MockMarketData{QuotesErr: errors.New("network down")}
	svc := NewIndicatorService(md, "SPY.US")

	if change := svc.MarketChange(context.Background()); change != 0 {
		t.Errorf("Expected 0 on fetch failure, got %f", change)
	}

	// Failures are not cached; the next call retries.
	md.QuotesErr = nil
	md.Quotes = []domain.Quote{{Symbol: "SPY.US", Price: 500, ChangePct: 1}}
	if change := svc.MarketChange(context.Background()); math.Abs(change-0.01) > 1e-9 {
		t.Errorf("Expected 0.01 after recovery, got %f", change)
	}
}
