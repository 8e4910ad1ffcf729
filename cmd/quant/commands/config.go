package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-etf/internal/strategyconfig"
	"github.com/wonny/aegis-etf/pkg/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "전략 설정 검증",
	Long: `전략 YAML 을 검증하고 해시/경고를 출력합니다.

Example:
  go run ./cmd/quant config check
  go run ./cmd/quant config check --strategy config/strategy/etf_topk.yaml`,
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "설정 검증",
	RunE:  runConfigCheck,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configCheckCmd)
}

// runConfigCheck only needs the YAML, so it does not connect to any store
func runConfigCheck(cmd *cobra.Command, args []string) error {
	path := strategyFile
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		path = cfg.StrategyFile
	}

	strat, _, err := strategyconfig.Load(path)
	if err != nil {
		PrintError(err.Error())
		return err
	}
	hash, err := strategyconfig.Hash(strat)
	if err != nil {
		return fmt.Errorf("hash config: %w", err)
	}

	PrintHeader("Strategy Config", map[string]string{
		"File":     path,
		"Strategy": strat.Meta.StrategyID + " v" + strat.Meta.Version,
		"Hash":     hash,
	}, []string{"File", "Strategy", "Hash"})

	PrintKeyValue("universe", strings.Join(strat.Universe.Instruments, ", "), 12)
	PrintKeyValue("benchmark", strat.Universe.Benchmark, 12)
	PrintKeyValue("model", strat.Signal.Model, 12)
	PrintKeyValue("top_k", fmt.Sprintf("%d (buffer %d, n_drop %d)", strat.Selection.TopK, strat.Selection.Buffer, strat.Selection.NDrop), 12)
	PrintKeyValue("risk", fmt.Sprintf("degree %.2f, target vol %.3f", strat.Portfolio.RiskDegree, strat.Portfolio.TargetVol), 12)
	PrintKeyValue("schedule", strat.Meta.DecisionTimeLocal+" "+strat.Meta.Timezone, 12)
	fmt.Println()

	warnings := strategyconfig.Warn(strat)
	if len(warnings) == 0 {
		PrintSuccess("Config is valid")
		return nil
	}
	for _, w := range warnings {
		fmt.Printf("⚠️  [%s] %s\n", w.Code, w.Message)
	}
	PrintSuccess(fmt.Sprintf("Config is valid (%d warnings)", len(warnings)))
	return nil
}
