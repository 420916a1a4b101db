package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vitos/stock_risk_engine/internal/domain"
)

func TestJSONLTradeLog_AppendAndList(t *testing.T) {
	dir := t.TempDir()
	log, err := NewJSONLTradeLog(dir)
	if err != nil {
		t.Fatalf("Failed to init trade log: %v", err)
	}
	ctx := context.Background()

	pnl := 150.0
	trades := []*domain.TradeRecord{
		{ID: "aaaa1111", Timestamp: time.Now(), Symbol: "AAPL.US", Side: domain.SideBuy, Quantity: 10, Price: 100, Value: 1000, Status: domain.StatusFilled},
		{ID: "bbbb2222", Timestamp: time.Now(), Symbol: "AAPL.US", Side: domain.SideSell, Quantity: 10, Price: 115, Value: 1150, Status: domain.StatusFilled, PnL: &pnl},
		{ID: "cccc3333", Timestamp: time.Now(), Symbol: "MSFT.US", Side: domain.SideBuy, Quantity: 5, Price: 200, Value: 1000, Status: domain.StatusRejected, Reason: "cooldown active"},
	}
	for _, rec := range trades {
		if err := log.SaveTrade(ctx, rec); err != nil {
			t.Fatalf("SaveTrade failed: %v", err)
		}
	}

	// Newest first.
	listed, err := log.ListTrades(ctx, 10)
	if err != nil {
		t.Fatalf("ListTrades failed: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("Expected 3 trades, got %d", len(listed))
	}
	if listed[0].ID != "cccc3333" || listed[2].ID != "aaaa1111" {
		t.Errorf("Expected newest first, got %s .. %s", listed[0].ID, listed[2].ID)
	}
	if listed[1].PnL == nil || *listed[1].PnL != 150 {
		t.Errorf("Expected pnl 150 on the sell, got %v", listed[1].PnL)
	}

	// Limit applies after ordering.
	listed, err = log.ListTrades(ctx, 2)
	if err != nil {
		t.Fatalf("ListTrades failed: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != "cccc3333" {
		t.Errorf("Expected the 2 newest trades, got %d starting %s", len(listed), listed[0].ID)
	}
}

func TestJSONLTradeLog_EmptyLog(t *testing.T) {
	log, err := NewJSONLTradeLog(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to init trade log: %v", err)
	}

	listed, err := log.ListTrades(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListTrades failed on a missing file: %v", err)
	}
	if len(listed) != 0 {
		t.Errorf("Expected no trades, got %d", len(listed))
	}
}

func TestJSONLTradeLog_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	log, err := NewJSONLTradeLog(dir)
	if err != nil {
		t.Fatalf("Failed to init trade log: %v", err)
	}
	ctx := context.Background()

	if err := log.SaveTrade(ctx, &domain.TradeRecord{ID: "aaaa1111", Symbol: "AAPL.US", Side: domain.SideBuy}); err != nil {
		t.Fatalf("SaveTrade failed: %v", err)
	}

	// A torn write leaves a partial line behind.
	f, err := os.OpenFile(filepath.Join(dir, "trades.jsonl"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("Failed to open log: %v", err)
	}
	f.WriteString(`{"id":"tor`)
	f.WriteString("\n")
	f.Close()

	if err := log.SaveTrade(ctx, &domain.TradeRecord{ID: "bbbb2222", Symbol: "MSFT.US", Side: domain.SideBuy}); err != nil {
		t.Fatalf("SaveTrade failed: %v", err)
	}

	listed, err := log.ListTrades(ctx, 10)
	if err != nil {
		t.Fatalf("ListTrades failed: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("Expected malformed line skipped, got %d records", len(listed))
	}
	if listed[0].ID != "bbbb2222" {
		t.Errorf("Expected newest record first, got %s", listed[0].ID)
	}
}

func TestJSONLTradeLog_Events(t *testing.T) {
	dir := t.TempDir()
	log, err := NewJSONLTradeLog(dir)
	if err != nil {
		t.Fatalf("Failed to init trade log: %v", err)
	}

	if err := log.LogEvent(context.Background(), "EMERGENCY_STOP", "manual halt"); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "risk_events.jsonl"))
	if err != nil {
		t.Fatalf("Failed to read events file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Expected an event line")
	}
}
