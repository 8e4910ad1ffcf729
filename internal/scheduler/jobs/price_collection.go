package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/aegis-etf/internal/collector"
	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/pkg/logger"
)

// PriceCollectionJob fetches recent daily bars of the universe and upserts them
// ⭐ SSOT: 가격 수집 스케줄은 이 Job에서만
type PriceCollectionJob struct {
	collector   *collector.Collector
	instruments []string
	lookback    int // calendar days re-fetched each run
	config      collector.Config
	quality     collector.QualityConfig
	schedule    string
	now         func() time.Time
	logger      *logger.Logger
}

// NewPriceCollectionJob creates a new price collection job
func NewPriceCollectionJob(col *collector.Collector, instruments []string, schedule string, log *logger.Logger) *PriceCollectionJob {
	return &PriceCollectionJob{
		collector:   col,
		instruments: instruments,
		lookback:    10,
		config:      collector.DefaultConfig(),
		quality:     collector.DefaultQualityConfig(),
		schedule:    schedule,
		now:         time.Now,
		logger:      log.Component("price_collection"),
	}
}

// Name returns the job name
func (j *PriceCollectionJob) Name() string {
	return "price_collection"
}

// Schedule returns the cron schedule
func (j *PriceCollectionJob) Schedule() string {
	return j.schedule
}

// Run fetches the last lookback days. Any failed instrument fails the run so
// the scheduler retries; the upsert makes re-fetching harmless.
func (j *PriceCollectionJob) Run(ctx context.Context) error {
	to := j.now()
	from := to.AddDate(0, 0, -j.lookback)

	results, err := j.collector.FetchAll(ctx, j.instruments, from, to, j.config)
	if err != nil {
		return fmt.Errorf("fetch prices: %w", err)
	}

	var failed []string
	bars := 0
	for _, r := range results {
		if r.Error != nil {
			failed = append(failed, r.Instrument)
			continue
		}
		bars += len(r.Bars)
	}

	j.logger.WithFields(map[string]interface{}{
		"instruments": len(results),
		"failed":      len(failed),
		"bars":        bars,
	}).Info("Scheduled price collection finished")

	// 실패가 없어도 최신 거래일이 빠진 종목은 시그널 품질을 떨어뜨림
	if q := collector.CheckQuality(results, j.quality); !q.Passed {
		j.logger.WithFields(map[string]interface{}{
			"date":          contracts.DateKey(q.Date),
			"quality_score": q.QualityScore,
			"missing":       q.Missing,
		}).Warn("Collected data below quality threshold")
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d instruments failed: %v", len(failed), len(results), failed)
	}
	return nil
}
