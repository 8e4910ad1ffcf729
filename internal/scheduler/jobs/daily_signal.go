package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/wonny/aegis-etf/internal/brain"
	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/pkg/logger"
)

// SignalRunner builds the live recommendation
type SignalRunner interface {
	Signal(ctx context.Context, config brain.RunConfig) (*brain.RunResult, error)
}

// DailySignalJob refreshes the live Top-K recommendation after the close
type DailySignalJob struct {
	runner   SignalRunner
	schedule string
	logger   *logger.Logger
}

// NewDailySignalJob creates a new daily signal job
func NewDailySignalJob(runner SignalRunner, schedule string, log *logger.Logger) *DailySignalJob {
	return &DailySignalJob{
		runner:   runner,
		schedule: schedule,
		logger:   log.Component("daily_signal"),
	}
}

// Name returns the job name
func (j *DailySignalJob) Name() string {
	return "daily_signal"
}

// Schedule returns the cron schedule
func (j *DailySignalJob) Schedule() string {
	return j.schedule
}

// Run builds, saves and caches the recommendation of the latest signal date
func (j *DailySignalJob) Run(ctx context.Context) error {
	result, err := j.runner.Signal(ctx, brain.RunConfig{})
	if err != nil {
		return fmt.Errorf("signal run: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"signal_date": contracts.DateKey(result.SignalDate),
		"top_k":       strings.Join(result.Recommendation.TopK, ","),
		"regime":      result.Regime,
	}).Info("Daily signal refreshed")
	return nil
}

// WeekdaysAt converts an HH:MM decision time into a weekday cron spec with seconds
func WeekdaysAt(hhmm string) (string, error) {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return "", fmt.Errorf("invalid decision time %q", hhmm)
	}
	return fmt.Sprintf("0 %d %d * * 1-5", m, h), nil
}
