package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/vitos/stock_risk_engine/internal/domain"
)

// GenerateRiskReport renders the operator risk report: account overview,
// per-position risk table, daily statistics, and warnings. The format is for
// humans, not a stability contract.
func (l *RiskLedger) GenerateRiskReport(accountBalance float64, positions []domain.Position, quotes map[string]float64) string {
	effective := l.EffectiveBalance(accountBalance)

	var b strings.Builder
	b.WriteString(strings.Repeat("=", 60) + "\n")
	b.WriteString(fmt.Sprintf("Risk Report - %s\n", l.timeNow().Format("2006-01-02 15:04:05")))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	totalPositionValue := 0.0
	for _, p := range positions {
		totalPositionValue += p.MarketValue
	}
	positionPct := 0.0
	if effective > 0 {
		positionPct = totalPositionValue / effective
	}

	b.WriteString("Account:\n")
	b.WriteString(fmt.Sprintf("  total balance:     %12.2f\n", accountBalance))
	if l.cfg.MaxTradingCapital > 0 {
		b.WriteString(fmt.Sprintf("  capital cap:       %12.2f\n", l.cfg.MaxTradingCapital))
	}
	b.WriteString(fmt.Sprintf("  effective balance: %12.2f\n", effective))
	b.WriteString(fmt.Sprintf("  position value:    %12.2f (%.1f%%)\n", totalPositionValue, positionPct*100))
	b.WriteString(fmt.Sprintf("  headroom:          %12.2f\n\n", effective-totalPositionValue))

	criticalCount, highCount := 0, 0
	if len(positions) == 0 {
		b.WriteString("Positions: (none)\n")
	} else {
		t := table.NewWriter()
		t.AppendHeader(table.Row{"Symbol", "Qty", "Cost", "Price", "PnL%", "Stop", "Take", "Risk"})
		for _, pos := range positions {
			price := quotes[pos.Symbol]
			if price <= 0 {
				continue
			}
			risk := l.CheckPositionRisk(pos.Symbol, pos.Quantity, pos.CostPrice, price)
			t.AppendRow(table.Row{
				risk.Symbol,
				risk.Quantity,
				fmt.Sprintf("%.2f", risk.CostPrice),
				fmt.Sprintf("%.2f", risk.CurrentPrice),
				fmt.Sprintf("%+.2f%%", risk.UnrealizedPnLPct*100),
				fmt.Sprintf("%.2f", risk.StopLossPrice),
				fmt.Sprintf("%.2f", risk.TakeProfitPrice),
				string(risk.Level),
			})
			switch risk.Level {
			case domain.RiskCritical:
				criticalCount++
			case domain.RiskHigh:
				highCount++
			}
		}
		b.WriteString(t.Render() + "\n")
	}

	stats := l.DailyStatsFor("")
	b.WriteString("\nToday:\n")
	b.WriteString(fmt.Sprintf("  trades:       %d / %d\n", stats.TradeCount, l.cfg.DailyTradeLimit))
	b.WriteString(fmt.Sprintf("  realized pnl: %+.2f\n", stats.RealizedPnL))
	b.WriteString(fmt.Sprintf("  buy value:    %.2f\n", stats.BuyValue))
	b.WriteString(fmt.Sprintf("  sell value:   %.2f\n", stats.SellValue))

	var warnings []string
	if l.IsEmergencyStopped() {
		warnings = append(warnings, "trading is emergency-stopped")
	}
	if criticalCount > 0 {
		warnings = append(warnings, fmt.Sprintf("%d position(s) at stop-loss level", criticalCount))
	}
	if highCount > 0 {
		warnings = append(warnings, fmt.Sprintf("%d position(s) at high risk", highCount))
	}
	if positionPct > l.cfg.MaxTotalPositionPct {
		warnings = append(warnings, fmt.Sprintf("total exposure %.1f%% above limit %.0f%%",
			positionPct*100, l.cfg.MaxTotalPositionPct*100))
	}
	if len(warnings) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, w := range warnings {
			b.WriteString("  ! " + w + "\n")
		}
	}

	b.WriteString("\n" + strings.Repeat("=", 60) + "\n")
	return b.String()
}

// GenerateReport renders the exit-scan report with the full vote trail for
// every position that should exit.
func (v *ExitVoter) GenerateReport(ctx context.Context, results []domain.ExitResult) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("=", 60) + "\n")
	b.WriteString(fmt.Sprintf("Smart Stop Report - %s\n", v.timeNow().Format("2006-01-02 15:04:05")))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	b.WriteString(fmt.Sprintf("Benchmark (%s): %+.2f%%\n", v.cfg.MarketBenchmark, v.indicators.MarketChange(ctx)*100))
	if v.inCloseWindow() {
		b.WriteString("Close window: active, close-window vote live\n\n")
	} else {
		b.WriteString("Close window: inactive, close-window vote holds\n\n")
	}

	var exits, holds []domain.ExitResult
	for _, r := range results {
		if r.ShouldExit() {
			exits = append(exits, r)
		} else {
			holds = append(holds, r)
		}
	}

	if len(exits) > 0 {
		b.WriteString("Action required:\n")
		for _, r := range exits {
			b.WriteString(fmt.Sprintf("  %s [%s] pnl %+.1f%% | %s\n",
				r.Symbol, r.Decision, r.Details["pnl_pct"]*100, r.VoteSummary))
			for _, vote := range r.Votes {
				marker := " "
				if vote.Decision != domain.ExitHold {
					marker = "*"
				}
				b.WriteString(fmt.Sprintf("    %s %s: %s\n", marker, vote.Strategy, vote.Reason))
			}
		}
	} else {
		b.WriteString("No action required\n")
	}

	if len(holds) > 0 {
		b.WriteString("\nHolding:\n")
		for _, r := range holds {
			b.WriteString(fmt.Sprintf("  %s pnl %+.1f%% | atr stop %.2f | vol %.0f%% | %s\n",
				r.Symbol, r.Details["pnl_pct"]*100, r.Details["atr_stop"],
				r.Details["annualized_vol"]*100, r.VoteSummary))
		}
	}

	b.WriteString("\n" + strings.Repeat("=", 60) + "\n")
	return b.String()
}
