package commands

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-etf/internal/brain"
	"github.com/wonny/aegis-etf/internal/collector"
	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/internal/data"
)

// fetcherCmd represents the fetcher command
var fetcherCmd = &cobra.Command{
	Use:   "fetcher",
	Short: "데이터 수집 도구",
	Long: `외부 API (eastmoney) 에서 ETF 일봉을 수집합니다.

DATABASE_URL 이 있으면 prices 테이블에 upsert,
없으면 DATA_DIR/bars.csv 에 병합합니다.

Example:
  go run ./cmd/quant fetcher prices --from 2024-01-01
  go run ./cmd/quant fetcher prices --instruments 510300.SH,159915.SZ`,
}

// fetcherPricesCmd represents the prices subcommand
var fetcherPricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "일봉 수집 실행",
	Long: `유니버스 (+벤치마크) 의 일봉을 수집합니다.

Flags:
  --from         시작 날짜 (기본: 30일 전)
  --to           종료 날짜 (기본: 오늘)
  --instruments  콤마 구분 종목 (기본: 전략 유니버스)
  --workers      동시 워커 수`,
	RunE: runFetcherPrices,
}

// fetcherPredictionsCmd imports model scores into the database
var fetcherPredictionsCmd = &cobra.Command{
	Use:   "predictions",
	Short: "예측 점수 CSV 를 DB 로 적재",
	Long: `predictions.csv (date, instrument, score) 를 signals.predictions 에 upsert 합니다.
DATABASE_URL 이 필요합니다.

Example:
  go run ./cmd/quant fetcher predictions --file data/predictions.csv`,
	RunE: runFetcherPredictions,
}

var (
	// Fetcher flags
	fetcherFrom        string
	fetcherTo          string
	fetcherInstruments string
	fetcherWorkers     int
	predictionsFile    string
)

func init() {
	rootCmd.AddCommand(fetcherCmd)
	fetcherCmd.AddCommand(fetcherPricesCmd)
	fetcherCmd.AddCommand(fetcherPredictionsCmd)

	fetcherPricesCmd.Flags().StringVar(&fetcherFrom, "from", "", "시작 날짜 (YYYY-MM-DD)")
	fetcherPricesCmd.Flags().StringVar(&fetcherTo, "to", "", "종료 날짜 (YYYY-MM-DD)")
	fetcherPricesCmd.Flags().StringVar(&fetcherInstruments, "instruments", "", "콤마 구분 종목 코드")
	fetcherPricesCmd.Flags().IntVar(&fetcherWorkers, "workers", collector.DefaultConfig().Workers, "동시 워커 수")

	fetcherPredictionsCmd.Flags().StringVar(&predictionsFile, "file", "", "CSV 경로 (기본: DATA_DIR/predictions.csv)")
}

func runFetcherPrices(cmd *cobra.Command, args []string) error {
	from, err := parseDate("from", fetcherFrom)
	if err != nil {
		return err
	}
	to, err := parseDate("to", fetcherTo)
	if err != nil {
		return err
	}
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	if from.After(to) {
		return fmt.Errorf("--from %s is after --to %s", contracts.DateKey(from), contracts.DateKey(to))
	}

	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ids := splitList(fetcherInstruments)
	if len(ids) == 0 {
		orch, err := brain.NewOrchestrator(a.strategy, a.source, a.metrics, a.log)
		if err != nil {
			return err
		}
		ids = orch.Instruments()
	}

	target := "prices table"
	if a.prices == nil {
		target = a.cfg.DataDir + "/bars.csv"
	}
	PrintHeader("Price Collection", map[string]string{
		"Period":      contracts.DateKey(from) + " ~ " + contracts.DateKey(to),
		"Instruments": strings.Join(ids, ", "),
		"Target":      target,
	}, []string{"Period", "Instruments", "Target"})

	start := time.Now()
	results, err := a.collector().FetchAll(cmd.Context(), ids, from, to, collector.Config{Workers: fetcherWorkers})
	if err != nil {
		return fmt.Errorf("collection aborted: %w", err)
	}

	failed := 0
	for i, r := range results {
		if r.Error != nil {
			failed++
			PrintError(fmt.Sprintf("%s: %v [%d/%d]", r.Instrument, r.Error, i+1, len(results)))
			continue
		}
		PrintSuccess(fmt.Sprintf("%s: %d bars [%d/%d]", r.Instrument, len(r.Bars), i+1, len(results)))
	}

	fmt.Println()
	fmt.Printf("Collected %d bars in %.2fs\n", len(collector.Bars(results)), time.Since(start).Seconds())

	q := collector.CheckQuality(results, collector.DefaultQualityConfig())
	fmt.Printf("Quality %s: price %.0f%%, volume %.0f%% (score %.2f)\n",
		contracts.DateKey(q.Date), q.Coverage["price"]*100, q.Coverage["volume"]*100, q.QualityScore)
	if !q.Passed {
		PrintWarning(fmt.Sprintf("Missing latest bar: %s", strings.Join(q.Missing, ", ")))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d instruments failed", failed, len(results))
	}
	return nil
}

func runFetcherPredictions(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if a.predictions == nil {
		return fmt.Errorf("DATABASE_URL is required to import predictions")
	}

	path := predictionsFile
	if path == "" {
		path = filepath.Join(a.cfg.DataDir, data.PredictionsFile)
	}
	preds, err := data.LoadPredictionsFile(path)
	if err != nil {
		return err
	}

	if err := a.predictions.SaveBatch(cmd.Context(), a.strategy.Signal.Model, preds); err != nil {
		return fmt.Errorf("save predictions: %w", err)
	}
	PrintSuccess(fmt.Sprintf("Imported %d scores (model %s) from %s", len(preds), a.strategy.Signal.Model, path))
	return nil
}
