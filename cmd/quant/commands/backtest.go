package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-etf/internal/audit"
	"github.com/wonny/aegis-etf/internal/backtest"
	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/internal/risk"
	"github.com/wonny/aegis-etf/internal/strategyconfig"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "백테스팅 프레임워크",
	Long: `과거 예측 점수와 가격으로 전략을 시뮬레이션합니다.

백테스팅은 다음을 검증합니다:
- 전략/벤치마크 수익률
- 초과수익 (비용 전/후) 정보비율, MDD
- 승률 및 회전율

Example:
  go run ./cmd/quant backtest run
  go run ./cmd/quant backtest run --from 2020-01-01 --to 2023-12-31`,
}

var (
	backtestRunCmd = &cobra.Command{
		Use:   "run",
		Short: "백테스트 실행",
		Long: `전략 YAML 의 backtest 구간으로 백테스트를 실행합니다.

Flags:
  --from     시작 날짜 (YYYY-MM-DD, 기본: backtest.start)
  --to       종료 날짜 (YYYY-MM-DD, 기본: backtest.end)
  --account  초기 자본 (기본: backtest.account)
  --output   결과 JSON 경로 (기본: experiment_results.json, "" = 저장 안 함)

Example:
  go run ./cmd/quant backtest run --from 2023-01-01 --to 2023-12-31
  go run ./cmd/quant backtest run --account 5000000 --output ""`,
		RunE: runBacktest,
	}

	// Flags
	backtestFrom    string
	backtestTo      string
	backtestAccount float64
	backtestOutput  string
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRunCmd)

	backtestRunCmd.Flags().StringVar(&backtestFrom, "from", "", "시작 날짜 (YYYY-MM-DD)")
	backtestRunCmd.Flags().StringVar(&backtestTo, "to", "", "종료 날짜 (YYYY-MM-DD)")
	backtestRunCmd.Flags().Float64Var(&backtestAccount, "account", 0, "초기 자본")
	backtestRunCmd.Flags().StringVar(&backtestOutput, "output", "experiment_results.json", "결과 JSON 경로")
}

// experimentResult is the file written by --output
type experimentResult struct {
	StrategyID    string                   `json:"strategy_id"`
	ConfigHash    string                   `json:"config_hash"`
	DegradedSteps int                      `json:"degraded_steps"`
	Orders        int                      `json:"orders"`
	Fills         int                      `json:"fills"`
	Summary       *audit.PerformanceReport `json:"summary"`
	Risk          *risk.Report             `json:"risk,omitempty"`
	Records       []backtest.DailyRecord   `json:"records"`

	Snapshot *strategyconfig.DecisionSnapshot `json:"snapshot"`
}

func runBacktest(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Aegis ETF Backtest Engine ===")

	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	// 플래그가 YAML 보다 우선
	if backtestFrom != "" {
		a.strategy.Backtest.Start = backtestFrom
	}
	if backtestTo != "" {
		a.strategy.Backtest.End = backtestTo
	}
	if backtestAccount > 0 {
		a.strategy.Backtest.Account = backtestAccount
	}

	orch, err := a.orchestrator()
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}

	fmt.Printf("\n📋 Strategy: %s (%s)\n", a.strategy.Meta.StrategyID, orch.ConfigHash()[:12])
	fmt.Printf("💰 Initial Account: %s\n", formatNumber(int64(a.strategy.Backtest.Account)))
	fmt.Printf("🎯 Top-K: %d, n_drop: %d\n\n", a.strategy.Selection.TopK, a.strategy.Selection.NDrop)
	fmt.Println("🚀 Starting backtest...")

	report, err := orch.Backtest(cmd.Context())
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	printBacktestReport(report)

	if backtestOutput != "" {
		snap, err := a.snapshot()
		if err != nil {
			return fmt.Errorf("snapshot config: %w", err)
		}
		if err := writeExperiment(backtestOutput, snap, report); err != nil {
			return err
		}
		PrintSuccess("Results written to " + backtestOutput)
	}
	return nil
}

func writeExperiment(path string, snap *strategyconfig.DecisionSnapshot, report *backtest.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(experimentResult{
		StrategyID:    report.Config.Name,
		ConfigHash:    snap.ConfigHash,
		DegradedSteps: report.DegradedSteps,
		Orders:        report.TotalOrders,
		Fills:         report.TotalFills,
		Summary:       report.Summary,
		Risk:          report.Risk,
		Records:       report.Records,
		Snapshot:      snap,
	})
}

func printBacktestReport(report *backtest.Report) {
	fmt.Println("\n✅ Backtest Completed")
	fmt.Println("=" + strings.Repeat("=", 60))
	fmt.Println()

	fmt.Println("📊 Summary")
	fmt.Printf("Period: %s ~ %s (%d trading days)\n",
		contracts.DateKey(report.StartDate),
		contracts.DateKey(report.EndDate),
		len(report.Records))
	fmt.Printf("Orders: %d, Fills: %d\n", report.TotalOrders, report.TotalFills)
	fmt.Printf("Duration: %.2f seconds\n", report.Duration.Seconds())
	if report.DegradedSteps > 0 {
		PrintWarning(fmt.Sprintf("%d steps degraded (no signal / failed decision)", report.DegradedSteps))
	}
	fmt.Println()

	s := report.Summary
	if s == nil {
		PrintWarning("No performance summary (empty run)")
		return
	}

	fmt.Println("💰 Performance")
	fmt.Printf("Final Value:     %s\n", formatNumber(int64(s.FinalValue)))
	fmt.Printf("Total Return:    %+.2f%%\n", s.TotalReturn*100)
	fmt.Printf("Benchmark:       %+.2f%%\n", s.BenchReturn*100)
	fmt.Printf("Annual Return:   %+.2f%%\n", s.Strategy.AnnualizedReturn*100)
	fmt.Println()

	widths := []int{24, 10, 10, 8, 10}
	PrintTableHeader([]string{"Series", "Mean", "Annual", "IR", "MDD"}, widths)
	for _, row := range []struct {
		name string
		risk audit.RiskAnalysis
	}{
		{"strategy", s.Strategy},
		{"benchmark", s.Benchmark},
		{"excess (without cost)", s.ExcessWithoutCost},
		{"excess (with cost)", s.ExcessWithCost},
	} {
		PrintTableRow([]string{
			row.name,
			fmt.Sprintf("%.5f", row.risk.Mean),
			fmt.Sprintf("%+.2f%%", row.risk.AnnualizedReturn*100),
			fmt.Sprintf("%.2f", row.risk.InformationRatio),
			fmt.Sprintf("%.2f%%", row.risk.MaxDrawdown*100),
		}, widths)
	}
	fmt.Println()

	fmt.Println("💹 Trading Metrics")
	PrintKeyValue("Win Rate", fmt.Sprintf("%.1f%%", s.WinRate*100), 18)
	PrintKeyValue("Annual Turnover", fmt.Sprintf("%.2f", s.AnnualizedTurnover), 18)
	PrintKeyValue("Total Cost", fmt.Sprintf("%.4f", s.TotalCost), 18)
	PrintKeyValue("Beta / Alpha", fmt.Sprintf("%.2f / %+.2f%%", s.Beta, s.Alpha*100), 18)
	fmt.Println()

	printRiskReport(report.Risk)

	fmt.Println("📈 Account Value (Last 10 Days)")
	start := len(report.Records) - 10
	if start < 0 {
		start = 0
	}
	for _, rec := range report.Records[start:] {
		fmt.Printf("%s: %s (%+.2f%%)\n",
			contracts.DateKey(rec.Date),
			formatNumber(int64(rec.AccountValue)),
			rec.Return*100)
	}
	fmt.Println()
}

func printRiskReport(r *risk.Report) {
	if r == nil {
		return
	}

	fmt.Println("⚠️  Tail Risk (daily, loss as positive)")
	widths := []int{24, 10, 10}
	PrintTableHeader([]string{"Method", "VaR", "CVaR"}, widths)
	for _, row := range []struct {
		name string
		v    risk.VaRResult
	}{
		{"historical 95%", r.Historical95},
		{"historical 99%", r.Historical99},
		{"parametric 95%", r.Parametric95},
	} {
		PrintTableRow([]string{
			row.name,
			fmt.Sprintf("%.2f%%", row.v.VaR*100),
			fmt.Sprintf("%.2f%%", row.v.CVaR*100),
		}, widths)
	}

	if mc := r.MonteCarlo; mc != nil {
		fmt.Printf("\nMonte Carlo (%d paths, %d-day hold): VaR95 %.2f%%, VaR99 %.2f%%, median %+.2f%%\n",
			mc.Config.NumSimulations, mc.Config.HoldingPeriod,
			mc.VaR95.VaR*100, mc.VaR99.VaR*100, mc.Percentiles[50]*100)
	} else {
		PrintInfo(fmt.Sprintf("Monte Carlo skipped (%d days)", r.Days))
	}
	fmt.Println()
}
