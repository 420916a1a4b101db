package usecase

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/vitos/stock_risk_engine/internal/domain"
)

const (
	atrCacheTTL    = time.Hour
	volCacheTTL    = 24 * time.Hour
	marketCacheTTL = 5 * time.Minute

	volLookbackBars = 100
	volMinBars      = 30
	tradingDaysYear = 252
)

type cachedValue struct {
	value      float64
	computedAt time.Time
}

// IndicatorService computes and time-caches the numeric inputs of the exit
// voter: ATR, annualized volatility, and the benchmark's same-day change.
// Stale reads within the TTL are accepted to keep external calls down.
type IndicatorService struct {
	md        domain.MarketData
	benchmark string

	mu          sync.Mutex
	atrCache    map[string]cachedValue
	volCache    map[string]cachedValue
	marketCache map[string]cachedValue
	timeNow     func() time.Time // For testing
}

func NewIndicatorService(md domain.MarketData, benchmark string) *IndicatorService {
	return &IndicatorService{
		md:          md,
		benchmark:   benchmark,
		atrCache:    make(map[string]cachedValue),
		volCache:    make(map[string]cachedValue),
		marketCache: make(map[string]cachedValue),
		timeNow:     time.Now,
	}
}

// ATR returns the mean true range over the last period bars, cached for one
// hour. Returns 0 when fewer than period+1 bars are available; callers must
// treat 0 as "unknown" and fall back to a fixed percentage.
func (s *IndicatorService) ATR(ctx context.Context, symbol string, period int) float64 {
	if period <= 0 {
		period = 14
	}

	if v, ok := s.cached(s.atrCache, symbol, atrCacheTTL); ok {
		return v
	}

	bars, err := s.md.GetBars(ctx, symbol, period+10)
	if err != nil || len(bars) < period+1 {
		return 0
	}

	trs := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		high, low := bars[i].High, bars[i].Low
		prevClose := bars[i-1].Close
		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		trs = append(trs, tr)
	}

	sum := 0.0
	for _, tr := range trs[len(trs)-period:] {
		sum += tr
	}
	atr := sum / float64(period)

	s.store(s.atrCache, symbol, atr)
	return atr
}

// AnnualizedVolatility returns the standard deviation of daily returns over
// the last 100 bars scaled by sqrt(252), cached for one day. Returns 0 when
// fewer than 30 bars are available.
func (s *IndicatorService) AnnualizedVolatility(ctx context.Context, symbol string) float64 {
	if v, ok := s.cached(s.volCache, symbol, volCacheTTL); ok {
		return v
	}

	bars, err := s.md.GetBars(ctx, symbol, volLookbackBars)
	if err != nil || len(bars) < volMinBars {
		return 0
	}

	returns := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		if bars[i-1].Close <= 0 {
			continue
		}
		returns = append(returns, bars[i].Close/bars[i-1].Close-1)
	}
	if len(returns) < volMinBars-1 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	vol := math.Sqrt(variance) * math.Sqrt(tradingDaysYear)

	s.store(s.volCache, symbol, vol)
	return vol
}

// MarketChange returns the benchmark's same-day change as a fraction, cached
// for five minutes. Fetch failures yield 0 so an exit evaluation always
// resolves to a verdict.
func (s *IndicatorService) MarketChange(ctx context.Context) float64 {
	if v, ok := s.cached(s.marketCache, s.benchmark, marketCacheTTL); ok {
		return v
	}

	quotes, err := s.md.GetQuotes(ctx, []string{s.benchmark})
	if err != nil || len(quotes) == 0 {
		return 0
	}
	change := quotes[0].ChangePct / 100

	s.store(s.marketCache, s.benchmark, change)
	return change
}

func (s *IndicatorService) cached(cache map[string]cachedValue, key string, ttl time.Duration) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := cache[key]
	if !ok || s.timeNow().Sub(entry.computedAt) >= ttl {
		return 0, false
	}
	return entry.value, true
}

func (s *IndicatorService) store(cache map[string]cachedValue, key string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cache[key] = cachedValue{value: value, computedAt: s.timeNow()}
}
