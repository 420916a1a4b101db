package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/stock_risk_engine/internal/domain"
	"github.com/vitos/stock_risk_engine/internal/metrics"
	"go.uber.org/zap"
)

const settlementCurrency = "USD"

// OrderRequest is a proposed order on its way to the broker.
type OrderRequest struct {
	Symbol    string
	Side      domain.Side
	Quantity  int64
	Price     float64
	OrderType domain.OrderType

	// SkipRiskCheck bypasses validation; used by stop execution, which must
	// not be blocked by the limits that normal entries obey.
	SkipRiskCheck bool
	// SetStops derives stop levels from the fill price on buys.
	SetStops bool
	// PnL carries the realized result on closing orders.
	PnL    *float64
	Reason string
}

// OrderGateway is the thin submission layer between the strategies and the
// broker: every order passes ledger validation first and its outcome is
// recorded back into the ledger. Submissions are serialized so two
// concurrent orders cannot both pass the cooldown and exposure checks before
// either is recorded.
type OrderGateway struct {
	broker domain.Broker
	ledger *RiskLedger
	voter  *ExitVoter
	md     domain.MarketData
	logger *zap.Logger
	dryRun bool

	mu      sync.Mutex
	timeNow func() time.Time // For testing
}

func NewOrderGateway(
	broker domain.Broker,
	ledger *RiskLedger,
	voter *ExitVoter,
	md domain.MarketData,
	logger *zap.Logger,
	dryRun bool,
) *OrderGateway {
	return &OrderGateway{
		broker:  broker,
		ledger:  ledger,
		voter:   voter,
		md:      md,
		logger:  logger,
		dryRun:  dryRun,
		timeNow: time.Now,
	}
}

// SubmitOrder validates, submits, and records one order. A risk rejection is
// not an error: the returned record carries status rejected and the reason.
func (g *OrderGateway) SubmitOrder(ctx context.Context, req OrderRequest) (*domain.TradeRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec := &domain.TradeRecord{
		ID:        uuid.NewString()[:8],
		Timestamp: g.timeNow(),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Value:     float64(req.Quantity) * req.Price,
		Status:    domain.StatusPending,
		Reason:    req.Reason,
		PnL:       req.PnL,
	}

	if !req.SkipRiskCheck {
		balance, err := g.broker.TotalBalance(ctx, settlementCurrency)
		if err != nil {
			return nil, fmt.Errorf("fetch balance: %w", err)
		}
		positions, err := g.broker.GetPositions(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch positions: %w", err)
		}

		ok, reason := g.ledger.ValidateOrder(req.Symbol, req.Side, req.Quantity, req.Price, balance, positions)
		if !ok {
			rec.Status = domain.StatusRejected
			rec.Reason = reason
			g.logger.Warn("order rejected by risk ledger",
				zap.String("symbol", req.Symbol),
				zap.String("side", string(req.Side)),
				zap.String("reason", reason))
			metrics.Rejections.Inc()
			metrics.Orders.WithLabelValues(string(req.Side), string(domain.StatusRejected)).Inc()
			if err := g.ledger.RecordTrade(ctx, rec); err != nil {
				return rec, err
			}
			return rec, nil
		}
	}

	if g.dryRun {
		rec.Status = domain.StatusFilled
		if rec.Reason == "" {
			rec.Reason = "dry-run fill"
		}
		g.logger.Info("dry-run order",
			zap.String("symbol", req.Symbol),
			zap.String("side", string(req.Side)),
			zap.Int64("quantity", req.Quantity),
			zap.Float64("price", req.Price))
	} else {
		orderID, err := g.broker.SubmitOrder(ctx, req.Symbol, req.Side, req.Quantity, req.Price, req.OrderType)
		if err != nil {
			rec.Status = domain.StatusRejected
			rec.Reason = err.Error()
			metrics.Orders.WithLabelValues(string(req.Side), string(domain.StatusRejected)).Inc()
			if recErr := g.ledger.RecordTrade(ctx, rec); recErr != nil {
				g.logger.Error("failed to record broker-rejected order", zap.Error(recErr))
			}
			return rec, fmt.Errorf("submit order %s %s: %w", req.Side, req.Symbol, err)
		}
		rec.OrderID = orderID
		g.logger.Info("order submitted",
			zap.String("symbol", req.Symbol),
			zap.String("side", string(req.Side)),
			zap.Int64("quantity", req.Quantity),
			zap.Float64("price", req.Price),
			zap.String("order_id", orderID))
	}

	metrics.Orders.WithLabelValues(string(req.Side), string(rec.Status)).Inc()
	if err := g.ledger.RecordTrade(ctx, rec); err != nil {
		return rec, err
	}
	metrics.DailyTrades.Set(float64(g.ledger.DailyStatsFor("").TradeCount))

	if req.SetStops && req.Side == domain.SideBuy && req.Price > 0 {
		stopLoss, takeProfit, err := g.ledger.SetStopsFromCost(req.Symbol, req.Price)
		if err != nil {
			return rec, err
		}
		g.logger.Info("stop levels set",
			zap.String("symbol", req.Symbol),
			zap.Float64("stop_loss", stopLoss),
			zap.Float64("take_profit", takeProfit))
	}

	return rec, nil
}

// SubmitOrderWithSize sizes the order from the risk config so callers never
// compute quantities by hand. riskPct <= 0 uses the single-position limit.
func (g *OrderGateway) SubmitOrderWithSize(ctx context.Context, symbol string, side domain.Side, price, riskPct float64) (*domain.TradeRecord, error) {
	balance, err := g.broker.TotalBalance(ctx, settlementCurrency)
	if err != nil {
		return nil, fmt.Errorf("fetch balance: %w", err)
	}

	quantity := g.ledger.CalculatePositionSize(symbol, price, balance, riskPct)
	if quantity <= 0 {
		return nil, fmt.Errorf("calculated position size for %s is zero (balance %.2f, price %.2f)", symbol, balance, price)
	}

	return g.SubmitOrder(ctx, OrderRequest{
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Price:     price,
		OrderType: domain.OrderLimit,
		SetStops:  side == domain.SideBuy,
	})
}

// ExecuteSignal turns a strategy signal into an order. Hold signals are
// ignored. Buys are sized by the single-position limit scaled by the signal's
// confidence; sells close the full available holding.
func (g *OrderGateway) ExecuteSignal(ctx context.Context, symbol string, sig domain.Signal, price float64) (*domain.TradeRecord, error) {
	switch sig.Action {
	case domain.SignalHold:
		return nil, nil
	case domain.SignalBuy:
		riskPct := g.ledger.Config().MaxSinglePositionPct * sig.Confidence
		return g.SubmitOrderWithSize(ctx, symbol, domain.SideBuy, price, riskPct)
	case domain.SignalSell:
		positions, err := g.broker.GetPositions(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch positions: %w", err)
		}
		for _, pos := range positions {
			if pos.Symbol != symbol || pos.Available <= 0 {
				continue
			}
			pnl := (price - pos.CostPrice) * float64(pos.Available)
			return g.SubmitOrder(ctx, OrderRequest{
				Symbol:    symbol,
				Side:      domain.SideSell,
				Quantity:  pos.Available,
				Price:     price,
				OrderType: domain.OrderLimit,
				PnL:       &pnl,
				Reason:    sig.Reason,
			})
		}
		return nil, fmt.Errorf("no available position in %s to sell", symbol)
	default:
		return nil, fmt.Errorf("unknown signal action %q", sig.Action)
	}
}

// ExecuteStops runs the exit voter over every open position and submits
// closing orders for the exits. Stop execution bypasses the entry limits.
func (g *OrderGateway) ExecuteStops(ctx context.Context, quotes map[string]float64, forceCloseCheck bool) ([]*domain.TradeRecord, error) {
	positions, err := g.broker.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	if len(positions) == 0 {
		return nil, nil
	}

	results, err := g.voter.ScanPositions(ctx, positions, quotes, forceCloseCheck)
	if err != nil {
		return nil, err
	}

	bySymbol := make(map[string]domain.Position, len(positions))
	for _, p := range positions {
		bySymbol[p.Symbol] = p
	}

	var executed []*domain.TradeRecord
	for _, result := range results {
		metrics.ExitDecisions.WithLabelValues(string(result.Decision)).Inc()
		if !result.ShouldExit() {
			continue
		}

		pos, ok := bySymbol[result.Symbol]
		if !ok || pos.Available <= 0 {
			continue
		}

		currentPrice := result.Details["current_price"]
		pnl := (currentPrice - pos.CostPrice) * float64(pos.Available)

		g.logger.Info("exit triggered",
			zap.String("symbol", result.Symbol),
			zap.String("decision", string(result.Decision)),
			zap.String("votes", result.VoteSummary),
			zap.Float64("pnl", pnl))

		rec, err := g.SubmitOrder(ctx, OrderRequest{
			Symbol:        result.Symbol,
			Side:          domain.SideSell,
			Quantity:      pos.Available,
			Price:         currentPrice,
			OrderType:     domain.OrderLimit,
			SkipRiskCheck: true,
			PnL:           &pnl,
			Reason:        string(result.Decision),
		})
		if err != nil {
			g.logger.Error("failed to submit closing order", zap.String("symbol", result.Symbol), zap.Error(err))
			continue
		}
		executed = append(executed, rec)

		// Full exit: drop stop levels and the high-water mark.
		if pos.Available >= pos.Quantity {
			if err := g.ledger.ClearSymbolState(result.Symbol); err != nil {
				g.logger.Error("failed to clear symbol state", zap.String("symbol", result.Symbol), zap.Error(err))
			}
		}
	}

	return executed, nil
}

// CheckFixedStops scans the fixed stop/take levels kept by the ledger and
// closes breached positions. This is the simpler sibling of ExecuteStops,
// kept for callers that want level-only semantics.
func (g *OrderGateway) CheckFixedStops(ctx context.Context, quotes map[string]float64) ([]*domain.TradeRecord, error) {
	positions, err := g.broker.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	if len(positions) == 0 {
		return nil, nil
	}

	if quotes == nil {
		symbols := make([]string, 0, len(positions))
		for _, p := range positions {
			symbols = append(symbols, p.Symbol)
		}
		fetched, err := g.md.GetQuotes(ctx, symbols)
		if err != nil {
			return nil, fmt.Errorf("fetch quotes: %w", err)
		}
		quotes = make(map[string]float64, len(fetched))
		for _, q := range fetched {
			quotes[q.Symbol] = q.Price
		}
	}

	exits := g.ledger.ScanPositionsForExit(positions, quotes)

	bySymbol := make(map[string]domain.Position, len(positions))
	for _, p := range positions {
		bySymbol[p.Symbol] = p
	}

	var executed []*domain.TradeRecord
	for _, risk := range exits {
		pos, ok := bySymbol[risk.Symbol]
		if !ok || pos.Available <= 0 {
			continue
		}

		reason := "stop_loss"
		if risk.ShouldTakeProfit() {
			reason = "take_profit"
		}
		pnl := risk.UnrealizedPnL

		rec, err := g.SubmitOrder(ctx, OrderRequest{
			Symbol:        risk.Symbol,
			Side:          domain.SideSell,
			Quantity:      pos.Available,
			Price:         risk.CurrentPrice,
			OrderType:     domain.OrderLimit,
			SkipRiskCheck: true,
			PnL:           &pnl,
			Reason:        reason,
		})
		if err != nil {
			g.logger.Error("failed to submit stop order", zap.String("symbol", risk.Symbol), zap.Error(err))
			continue
		}
		executed = append(executed, rec)

		if pos.Available >= pos.Quantity {
			if err := g.ledger.ClearSymbolState(risk.Symbol); err != nil {
				g.logger.Error("failed to clear symbol state", zap.String("symbol", risk.Symbol), zap.Error(err))
			}
		}
	}

	return executed, nil
}
