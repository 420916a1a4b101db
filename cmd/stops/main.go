package main

import (
	"context"
	"encoding/json"
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
	forceClose := flag.Bool("force-close", false, "evaluate the close-window strategy regardless of time")
	reportOnly := flag.Bool("report-only", false, "print decisions without submitting orders")
	jsonOut := flag.Bool("json", false, "print results as JSON")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging.Level)
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
	gateway := usecase.NewOrderGateway(adapter, ledger, voter, adapter, log, cfg.DryRun)

	ctx := context.Background()

	if *reportOnly {
		positions, err := adapter.GetPositions(ctx)
		if err != nil {
			log.Fatal("Failed to fetch positions", zap.Error(err))
		}
		results, err := voter.ScanPositions(ctx, positions, nil, *forceClose)
		if err != nil {
			log.Fatal("Exit scan failed", zap.Error(err))
		}
		if *jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			enc.Encode(results)
			return
		}
		fmt.Println(voter.GenerateReport(ctx, results))
		return
	}

	executed, err := gateway.ExecuteStops(ctx, nil, *forceClose)
	if err != nil {
		log.Fatal("Stop execution failed", zap.Error(err))
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(executed)
		return
	}
	if len(executed) == 0 {
		fmt.Println("No exits triggered.")
		return
	}
	for _, rec := range executed {
		fmt.Printf("Closed %s x%d @ %.2f (%s)\n", rec.Symbol, rec.Quantity, rec.Price, rec.Reason)
	}
}
