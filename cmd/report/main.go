package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vitos/stock_risk_engine/internal/config"
	"github.com/vitos/stock_risk_engine/internal/domain"
	"github.com/vitos/stock_risk_engine/internal/infrastructure/broker"
	"github.com/vitos/stock_risk_engine/internal/infrastructure/logger"
	"github.com/vitos/stock_risk_engine/internal/infrastructure/storage"
	"github.com/vitos/stock_risk_engine/internal/usecase"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger("error")
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	stateStore, err := storage.NewJSONStateStore(filepath.Join(cfg.DataDir, "risk_state.json"))
	if err != nil {
		log.Fatal("Failed to init state store", zap.Error(err))
	}
	tradeLog, err := storage.NewJSONLTradeLog(cfg.DataDir)
	if err != nil {
		log.Fatal("Failed to init trade log", zap.Error(err))
	}

	adapter := broker.NewAdapter(
		cfg.Broker.AppKey,
		cfg.Broker.AppSecret,
		cfg.Broker.AccessToken,
		cfg.Broker.RESTEndpoint,
		cfg.Broker.WSEndpoint,
	)

	riskCfg, err := domain.LoadRiskConfig(cfg.RiskConfigPath)
	if err != nil {
		log.Fatal("Failed to load risk config", zap.Error(err))
	}
	stopCfg, err := usecase.LoadStopConfig(cfg.StopConfigPath)
	if err != nil {
		log.Fatal("Failed to load stop config", zap.Error(err))
	}

	ledger, err := usecase.NewRiskLedger(riskCfg, stateStore, tradeLog, log)
	if err != nil {
		log.Fatal("Failed to init risk ledger", zap.Error(err))
	}
	indicators := usecase.NewIndicatorService(adapter, stopCfg.MarketBenchmark)
	voter := usecase.NewExitVoter(stopCfg, ledger, indicators, adapter, log)

	ctx := context.Background()

	balance, err := adapter.TotalBalance(ctx, "USD")
	if err != nil {
		log.Fatal("Failed to fetch balance", zap.Error(err))
	}
	positions, err := adapter.GetPositions(ctx)
	if err != nil {
		log.Fatal("Failed to fetch positions", zap.Error(err))
	}

	quotes := make(map[string]float64, len(positions))
	if len(positions) > 0 {
		symbols := make([]string, 0, len(positions))
		for _, p := range positions {
			symbols = append(symbols, p.Symbol)
		}
		list, err := adapter.GetQuotes(ctx, symbols)
		if err != nil {
			log.Error("Failed to fetch quotes, using cost prices", zap.Error(err))
		}
		for _, q := range list {
			quotes[q.Symbol] = q.Price
		}
	}

	fmt.Println(ledger.GenerateRiskReport(balance, positions, quotes))

	results, err := voter.ScanPositions(ctx, positions, quotes, false)
	if err != nil {
		log.Fatal("Exit scan failed", zap.Error(err))
	}
	fmt.Println(voter.GenerateReport(ctx, results))
}
