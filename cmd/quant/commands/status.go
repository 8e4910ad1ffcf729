package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-etf/internal/brain"
	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/internal/portfolio"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "데이터/비중 상태 조회",
	Long: `저장소 상태를 표시합니다.

표시 정보:
- DB 연결 상태 (pool)
- 종목별 마지막 가격 날짜
- 마지막 저장된 목표 비중
- 최근 백테스트 요약

Example:
  go run ./cmd/quant status
  go run ./cmd/quant status --watch 30s`,
	RunE: runStatus,
}

var (
	// Status flags
	statusWatch time.Duration
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().DurationVar(&statusWatch, "watch", 0, "갱신 간격 (0 = 한 번만)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if statusWatch <= 0 {
		return displayStatus(cmd.Context(), a)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(statusWatch)
	defer ticker.Stop()

	if err := displayStatus(cmd.Context(), a); err != nil {
		return err
	}
	for {
		select {
		case <-sigChan:
			fmt.Println("\n✅ Status monitor stopped")
			return nil

		case <-ticker.C:
			// Clear screen (ANSI escape code)
			fmt.Print("\033[H\033[2J")
			fmt.Printf("Refresh: %v | Last update: %s\n", statusWatch, time.Now().Format("15:04:05"))

			if err := displayStatus(cmd.Context(), a); err != nil {
				return err
			}
		}
	}
}

func displayStatus(ctx context.Context, a *app) error {
	id := a.strategy.Meta.StrategyID

	PrintHeader("Aegis ETF Status", map[string]string{
		"Strategy": id,
		"Config":   a.cfg.StrategyFile,
		"Redis":    fmt.Sprintf("%t", a.redis.Enabled()),
	}, []string{"Strategy", "Config", "Redis"})

	if a.db == nil {
		PrintInfo("CSV mode (" + a.cfg.DataDir + "), no database status")
		return nil
	}

	fmt.Println("🗄️  Database")
	health := a.db.HealthCheck(ctx)
	if !health.Healthy {
		PrintError("unhealthy: " + health.Error)
		return nil
	}
	PrintKeyValue("Response", health.ResponseTime.Round(time.Millisecond).String(), 10)
	PrintKeyValue("Conns", fmt.Sprintf("%d total, %d idle", health.TotalConns, health.IdleConns), 10)
	fmt.Println()

	fmt.Println("📈 Latest Prices")
	orch, err := brain.NewOrchestrator(a.strategy, a.source, a.metrics, a.log)
	if err != nil {
		return err
	}
	widths := []int{14, 12}
	PrintTableHeader([]string{"Instrument", "Last Date"}, widths)
	for _, inst := range orch.Instruments() {
		last := "-"
		if d, err := a.prices.LatestDate(ctx, inst); err == nil && !d.IsZero() {
			last = contracts.DateKey(d)
		}
		PrintTableRow([]string{inst, last}, widths)
	}
	fmt.Println()

	fmt.Println("⚖️  Target Weights")
	date, weights, err := a.weights.LatestTargetWeights(ctx, id)
	switch {
	case portfolio.IsNotFound(err):
		PrintInfo("No weights saved yet")
	case err != nil:
		return fmt.Errorf("load weights: %w", err)
	default:
		PrintKeyValue("Date", contracts.DateKey(date), 10)
		ids := make([]string, 0, len(weights))
		for inst := range weights {
			ids = append(ids, inst)
		}
		sort.Strings(ids)
		for _, inst := range ids {
			PrintKeyValue(inst, fmt.Sprintf("%.2f%%", weights[inst]*100), 10)
		}
	}
	fmt.Println()

	fmt.Println("🧪 Recent Backtests")
	runs, err := a.audit.RecentRuns(ctx, id, 5)
	if err != nil {
		return fmt.Errorf("load runs: %w", err)
	}
	if len(runs) == 0 {
		PrintInfo("No runs saved yet")
	}
	for _, run := range runs {
		if run.Report == nil {
			continue
		}
		fmt.Printf("   %s  return %+.2f%%  IR %.2f  MDD %.2f%%\n",
			run.RunID,
			run.Report.TotalReturn*100,
			run.Report.ExcessWithCost.InformationRatio,
			run.Report.ExcessWithCost.MaxDrawdown*100)
	}
	fmt.Println()
	return nil
}
