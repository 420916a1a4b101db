package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/vitos/stock_risk_engine/internal/config"
	"github.com/vitos/stock_risk_engine/internal/domain"
	"github.com/vitos/stock_risk_engine/internal/infrastructure/broker"
	"github.com/vitos/stock_risk_engine/internal/infrastructure/logger"
	"github.com/vitos/stock_risk_engine/internal/infrastructure/storage"
	"github.com/vitos/stock_risk_engine/internal/usecase"
	"github.com/vitos/stock_risk_engine/internal/web"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	stateStore, err := storage.NewJSONStateStore(filepath.Join(cfg.DataDir, "risk_state.json"))
	if err != nil {
		log.Fatal("Failed to init state store", zap.Error(err))
	}
	tradeLog, err := storage.NewJSONLTradeLog(cfg.DataDir)
	if err != nil {
		log.Fatal("Failed to init trade log", zap.Error(err))
	}
	sqliteStore, err := storage.NewSQLiteStore(cfg.SQLitePath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer sqliteStore.Close()
	tradeRepo := storage.NewFanoutTradeRepository(tradeLog, sqliteStore)

	// 4. Init Broker
	adapter := broker.NewAdapter(
		cfg.Broker.AppKey,
		cfg.Broker.AppSecret,
		cfg.Broker.AccessToken,
		cfg.Broker.RESTEndpoint,
		cfg.Broker.WSEndpoint,
	)

	// 5. Init Services
	riskCfg, err := domain.LoadRiskConfig(cfg.RiskConfigPath)
	if err != nil {
		log.Fatal("Failed to load risk config", zap.Error(err))
	}
	stopCfg, err := usecase.LoadStopConfig(cfg.StopConfigPath)
	if err != nil {
		log.Fatal("Failed to load stop config", zap.Error(err))
	}

	ledger, err := usecase.NewRiskLedger(riskCfg, stateStore, tradeRepo, log)
	if err != nil {
		log.Fatal("Failed to init risk ledger", zap.Error(err))
	}
	indicators := usecase.NewIndicatorService(adapter, stopCfg.MarketBenchmark)
	voter := usecase.NewExitVoter(stopCfg, ledger, indicators, adapter, log)
	gateway := usecase.NewOrderGateway(adapter, ledger, voter, adapter, log, cfg.DryRun)

	if cfg.DryRun {
		log.Info("Running in dry-run mode, no live orders will be placed")
	}

	// 6. Wait for Shutdown (declared early so the loops can use 'stop')
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 7. Quote Stream
	adapter.OnQuoteUpdate(func(symbol string, price float64) {
		if _, err := ledger.RaiseHighWaterMark(symbol, price); err != nil {
			log.Error("Failed to raise high-water mark", zap.String("symbol", symbol), zap.Error(err))
		}
	})
	go func() {
		positions, err := adapter.GetPositions(context.Background())
		if err != nil {
			log.Error("Failed to fetch positions for quote stream", zap.Error(err))
			return
		}
		symbols := make([]string, 0, len(positions))
		for _, p := range positions {
			symbols = append(symbols, p.Symbol)
		}
		if len(symbols) == 0 {
			return
		}
		if err := adapter.Subscribe(symbols); err != nil {
			log.Error("Failed to subscribe to quote stream", zap.Error(err))
		}
	}()

	// 8. Exit Scan Loop
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.ScanIntervalS) * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				executed, err := gateway.ExecuteStops(context.Background(), nil, false)
				if err != nil {
					log.Error("Exit scan failed", zap.Error(err))
					continue
				}
				for _, rec := range executed {
					log.Info("Exit executed",
						zap.String("symbol", rec.Symbol),
						zap.String("reason", rec.Reason),
						zap.Int64("quantity", rec.Quantity))
				}
			case <-stop:
				return
			}
		}
	}()

	// 9. Init Web Server
	server := web.NewServer(cfg.Server.Port, adapter, adapter, tradeRepo, ledger, voter, gateway, indicators, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 10. Wait for Shutdown
	<-stop

	log.Info("Shutting down...")
	adapter.Close()
	server.Shutdown(context.Background())
}
