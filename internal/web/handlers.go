package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/vitos/stock_risk_engine/internal/domain"
	"github.com/vitos/stock_risk_engine/internal/usecase"
	"go.uber.org/zap"
)

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) quotesFor(r *http.Request, positions []domain.Position) map[string]float64 {
	symbols := make([]string, 0, len(positions))
	for _, p := range positions {
		symbols = append(symbols, p.Symbol)
	}
	quotes := make(map[string]float64, len(symbols))
	if len(symbols) == 0 {
		return quotes
	}
	list, err := s.marketData.GetQuotes(r.Context(), symbols)
	if err != nil {
		s.logger.Warn("Failed to fetch quotes", zap.Error(err))
		return quotes
	}
	for _, q := range list {
		quotes[q.Symbol] = q.Price
	}
	return quotes
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	balance, err := s.broker.TotalBalance(r.Context(), "USD")
	if err != nil {
		s.logger.Error("Failed to fetch balance", zap.Error(err))
		http.Error(w, "Failed to fetch balance", http.StatusBadGateway)
		return
	}
	positions, err := s.broker.GetPositions(r.Context())
	if err != nil {
		s.logger.Error("Failed to fetch positions", zap.Error(err))
		http.Error(w, "Failed to fetch positions", http.StatusBadGateway)
		return
	}

	type positionStatus struct {
		Symbol        string  `json:"symbol"`
		Quantity      int64   `json:"quantity"`
		CostPrice     float64 `json:"cost_price"`
		MarketValue   float64 `json:"market_value"`
		AnnualizedVol float64 `json:"annualized_vol"`
	}
	posStatus := make([]positionStatus, 0, len(positions))
	for _, p := range positions {
		posStatus = append(posStatus, positionStatus{
			Symbol:        p.Symbol,
			Quantity:      p.Quantity,
			CostPrice:     p.CostPrice,
			MarketValue:   p.MarketValue,
			AnnualizedVol: s.indicators.AnnualizedVolatility(r.Context(), p.Symbol),
		})
	}

	today := time.Now().Format("2006-01-02")
	s.writeJSON(w, map[string]interface{}{
		"balance":           balance,
		"effective_balance": s.ledger.EffectiveBalance(balance),
		"emergency_stop":    s.ledger.IsEmergencyStopped(),
		"in_close_window":   s.voter.InCloseWindow(),
		"daily_stats":       s.ledger.DailyStatsFor(today),
		"positions":         posStatus,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	balance, err := s.broker.TotalBalance(r.Context(), "USD")
	if err != nil {
		s.logger.Error("Failed to fetch balance", zap.Error(err))
		http.Error(w, "Failed to fetch balance", http.StatusBadGateway)
		return
	}
	positions, err := s.broker.GetPositions(r.Context())
	if err != nil {
		s.logger.Error("Failed to fetch positions", zap.Error(err))
		http.Error(w, "Failed to fetch positions", http.StatusBadGateway)
		return
	}
	quotes := s.quotesFor(r, positions)

	report := s.ledger.GenerateRiskReport(balance, positions, quotes)

	results, err := s.voter.ScanPositions(r.Context(), positions, quotes, false)
	if err != nil {
		s.logger.Warn("Exit scan failed during report", zap.Error(err))
	} else {
		report += "\n" + s.voter.GenerateReport(r.Context(), results)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(report))
}

func (s *Server) handleScanStops(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"

	positions, err := s.broker.GetPositions(r.Context())
	if err != nil {
		s.logger.Error("Failed to fetch positions", zap.Error(err))
		http.Error(w, "Failed to fetch positions", http.StatusBadGateway)
		return
	}
	quotes := s.quotesFor(r, positions)

	results, err := s.voter.ScanPositions(r.Context(), positions, quotes, force)
	if err != nil {
		s.logger.Error("Exit scan failed", zap.Error(err))
		http.Error(w, "Exit scan failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, results)
}

func (s *Server) handleExecuteStops(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"

	trades, err := s.gateway.ExecuteStops(r.Context(), nil, force)
	if err != nil {
		s.logger.Error("Stop execution failed", zap.Error(err))
		http.Error(w, "Stop execution failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"executed": len(trades),
		"trades":   trades,
	})
}

func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "manual stop via API"
	}
	if err := s.ledger.EmergencyStop(r.Context(), reason); err != nil {
		s.logger.Error("Failed to activate emergency stop", zap.Error(err))
		http.Error(w, "Failed to activate emergency stop", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]interface{}{"emergency_stop": true, "reason": reason})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.ResumeTrading(r.Context()); err != nil {
		s.logger.Error("Failed to resume trading", zap.Error(err))
		http.Error(w, "Failed to resume trading", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]interface{}{"emergency_stop": false})
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Symbol    string  `json:"symbol"`
		Side      string  `json:"side"`
		Quantity  int64   `json:"quantity"`
		Price     float64 `json:"price"`
		OrderType string  `json:"order_type"`
		RiskPct   float64 `json:"risk_pct"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	side := domain.SideBuy
	if body.Side == string(domain.SideSell) {
		side = domain.SideSell
	}

	var rec *domain.TradeRecord
	var err error
	if body.Quantity > 0 {
		orderType := domain.OrderLimit
		if body.OrderType == string(domain.OrderMarket) {
			orderType = domain.OrderMarket
		}
		rec, err = s.gateway.SubmitOrder(r.Context(), usecase.OrderRequest{
			Symbol:    body.Symbol,
			Side:      side,
			Quantity:  body.Quantity,
			Price:     body.Price,
			OrderType: orderType,
			SetStops:  side == domain.SideBuy,
		})
	} else {
		rec, err = s.gateway.SubmitOrderWithSize(r.Context(), body.Symbol, side, body.Price, body.RiskPct)
	}
	if err != nil {
		s.logger.Error("Order submission failed", zap.Error(err))
		http.Error(w, "Order submission failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if rec.Status == domain.StatusRejected {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	s.writeJSON(w, rec)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	trades, err := s.tradeRepo.ListTrades(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list trades", zap.Error(err))
		http.Error(w, "Failed to list trades", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, trades)
}
