package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-etf/internal/brain"
	"github.com/wonny/aegis-etf/internal/contracts"
)

// signalCmd represents the signal command
var signalCmd = &cobra.Command{
	Use:   "signal",
	Short: "라이브 시그널 (Top-K 추천)",
	Long: `최신 시그널 날짜 기준으로 Top-K 추천과 목표 비중을 계산합니다.

Example:
  go run ./cmd/quant signal latest
  go run ./cmd/quant signal latest --dry-run --json`,
}

var (
	signalLatestCmd = &cobra.Command{
		Use:   "latest",
		Short: "최신 추천 계산",
		Long: `예측 점수 → 평활화 → 피처 → 비중 → 추천 순서로 실행합니다.

DB 가 있으면 목표 비중을 저장하고, Redis 가 있으면 추천을 캐시합니다.
--dry-run 은 저장하지 않습니다.`,
		RunE: runSignalLatest,
	}

	signalDryRun bool
	signalJSON   bool
)

func init() {
	rootCmd.AddCommand(signalCmd)
	signalCmd.AddCommand(signalLatestCmd)

	signalLatestCmd.Flags().BoolVar(&signalDryRun, "dry-run", false, "저장하지 않고 계산만")
	signalLatestCmd.Flags().BoolVar(&signalJSON, "json", false, "JSON 출력")
}

func runSignalLatest(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.orchestrator()
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}

	result, err := orch.Signal(cmd.Context(), brain.RunConfig{DryRun: signalDryRun})
	if err != nil {
		return fmt.Errorf("signal failed: %w", err)
	}

	if signalJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	printRecommendation(result)
	return nil
}

func printRecommendation(result *brain.RunResult) {
	rec := result.Recommendation

	PrintHeader("Top-K Recommendation", map[string]string{
		"Strategy": result.StrategyID,
		"Signal":   contracts.DateKey(result.SignalDate),
		"Regime":   regimeLabel(result),
		"Elapsed":  result.Duration.Round(time.Millisecond).String(),
	}, []string{"Strategy", "Signal", "Regime", "Elapsed"})

	widths := []int{6, 14, 10, 8, 8}
	PrintTableHeader([]string{"Rank", "Instrument", "Score", "Pick", "Weight"}, widths)
	for _, row := range rec.Ranking {
		pick := ""
		switch {
		case row.Selected:
			pick = "●"
		case row.Buffer && row.Held:
			pick = "◐" // 버퍼 안 보유 유지
		case row.Buffer:
			pick = "○"
		}
		weight := ""
		if row.Weight > 0 {
			weight = fmt.Sprintf("%.1f%%", row.Weight*100)
		}
		PrintTableRow([]string{
			fmt.Sprintf("%d", row.Rank),
			row.Instrument,
			fmt.Sprintf("%.4f", row.Score),
			pick,
			weight,
		}, widths)
	}
	fmt.Println()

	if len(rec.Orders) > 0 {
		fmt.Println("🔁 Orders (fraction of book)")
		for _, o := range rec.Orders {
			fmt.Printf("  %-4s %-12s %.2f%%\n", o.Side, o.Instrument, o.Amount*100)
		}
		fmt.Println()
	}

	if signalDryRun {
		PrintInfo("Dry run: nothing persisted")
	}
}

func regimeLabel(result *brain.RunResult) string {
	if result.RegimeRatio == nil {
		return "n/a"
	}
	return fmt.Sprintf("%s (%.3f)", result.Regime, *result.RegimeRatio)
}
