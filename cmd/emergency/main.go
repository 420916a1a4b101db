package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vitos/stock_risk_engine/internal/config"
	"github.com/vitos/stock_risk_engine/internal/domain"
	"github.com/vitos/stock_risk_engine/internal/infrastructure/logger"
	"github.com/vitos/stock_risk_engine/internal/infrastructure/storage"
	"github.com/vitos/stock_risk_engine/internal/usecase"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	stopReason := flag.String("stop", "", "activate the emergency stop with this reason")
	resume := flag.Bool("resume", false, "deactivate the emergency stop")
	flag.Parse()

	if (*stopReason != "") == *resume {
		fmt.Println("Usage: emergency -stop \"reason\" | emergency -resume")
		os.Exit(2)
	}

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

	riskCfg, err := domain.LoadRiskConfig(cfg.RiskConfigPath)
	if err != nil {
		log.Fatal("Failed to load risk config", zap.Error(err))
	}
	ledger, err := usecase.NewRiskLedger(riskCfg, stateStore, tradeLog, log)
	if err != nil {
		log.Fatal("Failed to init risk ledger", zap.Error(err))
	}

	ctx := context.Background()

	if *resume {
		if err := ledger.ResumeTrading(ctx); err != nil {
			log.Fatal("Failed to resume trading", zap.Error(err))
		}
		fmt.Println("Trading resumed.")
		return
	}

	if err := ledger.EmergencyStop(ctx, *stopReason); err != nil {
		log.Fatal("Failed to activate emergency stop", zap.Error(err))
	}
	fmt.Printf("Emergency stop active: %s\n", *stopReason)
}
