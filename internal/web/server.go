package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitos/stock_risk_engine/internal/domain"
	"github.com/vitos/stock_risk_engine/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router     *http.ServeMux
	server     *http.Server
	broker     domain.Broker
	marketData domain.MarketData
	tradeRepo  domain.TradeRepository
	ledger     *usecase.RiskLedger
	voter      *usecase.ExitVoter
	gateway    *usecase.OrderGateway
	indicators *usecase.IndicatorService
	logger     *zap.Logger
}

func NewServer(
	port int,
	broker domain.Broker,
	marketData domain.MarketData,
	tradeRepo domain.TradeRepository,
	ledger *usecase.RiskLedger,
	voter *usecase.ExitVoter,
	gateway *usecase.OrderGateway,
	indicators *usecase.IndicatorService,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:     http.NewServeMux(),
		broker:     broker,
		marketData: marketData,
		tradeRepo:  tradeRepo,
		ledger:     ledger,
		voter:      voter,
		gateway:    gateway,
		indicators: indicators,
		logger:     logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Status
	s.router.HandleFunc("GET /status", s.handleStatus)

	// Reports
	s.router.HandleFunc("GET /report", s.handleReport)

	// Exit scan
	s.router.HandleFunc("GET /stops/scan", s.handleScanStops)
	s.router.HandleFunc("POST /stops/execute", s.handleExecuteStops)

	// Trading controls
	s.router.HandleFunc("POST /emergency", s.handleEmergencyStop)
	s.router.HandleFunc("POST /resume", s.handleResume)

	// Orders
	s.router.HandleFunc("POST /orders", s.handleSubmitOrder)

	// Trades
	s.router.HandleFunc("GET /trades", s.handleTrades)

	// Metrics
	s.router.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
