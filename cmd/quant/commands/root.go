package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	strategyFile string
	dataDir      string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "Aegis ETF - Top-K ETF 로테이션 엔진",
	Long: `Aegis ETF Unified CLI

예측 점수 → 평활화 → Top-K 선정 → 변동성 기반 비중 → 주문/백테스트.
DATABASE_URL 이 없으면 DATA_DIR 의 CSV (bars.csv, predictions.csv) 로 실행합니다.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant config check
  go run ./cmd/quant backtest run
  go run ./cmd/quant signal latest
  go run ./cmd/quant fetcher prices --from 2024-01-01
  go run ./cmd/quant scheduler start
  go run ./cmd/quant api`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&strategyFile, "strategy", "", "strategy YAML (default: STRATEGY_FILE)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "CSV data directory (default: DATA_DIR)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
