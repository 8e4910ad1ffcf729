package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-etf/internal/brain"
	"github.com/wonny/aegis-etf/internal/scheduler"
	"github.com/wonny/aegis-etf/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행
  status  - 작업별 스케줄과 다음 실행 시각

Example:
  go run ./cmd/quant scheduler start
  go run ./cmd/quant scheduler list
  go run ./cmd/quant scheduler run daily_signal`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업 (meta.timezone 기준, 평일):
- price_collection: meta.decision_time_local - 30분 (일봉 수집)
- daily_signal:     meta.decision_time_local (Top-K 추천 + 목표 비중 저장)

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "작업 스케줄 조회",
		RunE:  showStatus,
	}

	collectLead time.Duration
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)

	schedulerCmd.PersistentFlags().DurationVar(&collectLead, "collect-lead", 30*time.Minute, "시그널 전 가격 수집 선행 시간")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Aegis ETF Scheduler ===")

	sched, a, err := initScheduler(cmd.Context())
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	printSchedule(sched)
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	sched, a, err := initScheduler(cmd.Context())
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	fmt.Println("Registered jobs:")
	PrintList(sched.GetAllJobs())
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	sched, a, err := initScheduler(cmd.Context())
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	fmt.Printf("Running job: %s\n", jobName)
	result, err := sched.RunJob(cmd.Context(), jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	fmt.Printf("Attempts: %d, Duration: %s\n", result.Attempts, result.Duration.Round(time.Millisecond))
	if !result.Success {
		PrintError(result.Error)
		return fmt.Errorf("job %s failed", jobName)
	}
	PrintSuccess("Job completed")
	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	sched, a, err := initScheduler(cmd.Context())
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	// 다음 실행 시각은 cron 이 시작된 뒤에만 계산됨
	sched.Start()
	defer sched.Stop()

	printSchedule(sched)
	return nil
}

func printSchedule(sched *scheduler.Scheduler) {
	stats := sched.GetJobStats()

	fmt.Println()
	widths := []int{18, 18, 25}
	PrintTableHeader([]string{"Job", "Schedule", "Next Run"}, widths)
	for _, name := range sched.GetAllJobs() {
		next := "-"
		if t := sched.NextRun(name); !t.IsZero() {
			next = t.Format("2006-01-02 15:04:05 MST")
		}
		PrintTableRow([]string{name, stats[name].Schedule, next}, widths)
	}
}

// initScheduler registers the collection and signal jobs in the strategy timezone
func initScheduler(ctx context.Context) (*scheduler.Scheduler, *app, error) {
	a, err := loadApp(ctx)
	if err != nil {
		return nil, nil, err
	}

	orch, err := a.orchestrator()
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	sched, err := buildScheduler(a, orch)
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return sched, a, nil
}

func buildScheduler(a *app, orch *brain.Orchestrator) (*scheduler.Scheduler, error) {
	cfg := scheduler.DefaultConfig()
	if tz := a.strategy.Meta.Timezone; tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("load timezone %s: %w", tz, err)
		}
		cfg.Location = loc
	}

	signalAt := a.strategy.Meta.DecisionTimeLocal
	if signalAt == "" {
		signalAt = "16:30"
	}
	signalSpec, err := jobs.WeekdaysAt(signalAt)
	if err != nil {
		return nil, err
	}
	collectAt, err := shiftHHMM(signalAt, -collectLead)
	if err != nil {
		return nil, err
	}
	collectSpec, err := jobs.WeekdaysAt(collectAt)
	if err != nil {
		return nil, err
	}

	sched := scheduler.New(cfg, a.metrics, a.log)
	if err := sched.AddJob(jobs.NewPriceCollectionJob(a.collector(), orch.Instruments(), collectSpec, a.log)); err != nil {
		return nil, err
	}
	if err := sched.AddJob(jobs.NewDailySignalJob(orch, signalSpec, a.log)); err != nil {
		return nil, err
	}
	return sched, nil
}

// shiftHHMM moves a wall-clock HH:MM within the same day
func shiftHHMM(hhmm string, d time.Duration) (string, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return "", fmt.Errorf("invalid time %q: %w", hhmm, err)
	}
	shifted := t.Add(d)
	if shifted.Day() != t.Day() {
		return "", fmt.Errorf("%s shifted by %s leaves the trading day", hhmm, d)
	}
	return shifted.Format("15:04"), nil
}
