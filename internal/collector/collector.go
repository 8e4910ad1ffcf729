package collector

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/internal/data"
	"github.com/wonny/aegis-etf/pkg/logger"
	"github.com/wonny/aegis-etf/pkg/metrics"
)

// Fetcher fetches the daily bars of one instrument
type Fetcher interface {
	FetchDaily(ctx context.Context, instrument string, from, to time.Time) ([]data.Bar, error)
}

// Saver persists fetched bars
type Saver interface {
	SaveBatch(ctx context.Context, bars []data.Bar) error
}

// Collector orchestrates bar collection for a universe
// ⭐ SSOT: 데이터 수집 오케스트레이션은 이 패키지에서만
type Collector struct {
	fetcher Fetcher
	saver   Saver
	metrics *metrics.Registry
	logger  *logger.Logger
}

// Config holds collector configuration
type Config struct {
	Workers int // Number of concurrent workers
}

// DefaultConfig returns two workers; the fetcher's rate limit is the real bound
func DefaultConfig() Config {
	return Config{Workers: 2}
}

// NewCollector creates a new Collector. saver may be nil to only fetch.
func NewCollector(fetcher Fetcher, saver Saver, reg *metrics.Registry, log *logger.Logger) *Collector {
	return &Collector{
		fetcher: fetcher,
		saver:   saver,
		metrics: reg,
		logger:  log.WithField("module", "collector"),
	}
}

// FetchResult represents the result of a fetch operation
type FetchResult struct {
	Instrument string
	Bars       []data.Bar
	Error      error
}

// FetchAll fetches (and saves) bars for every instrument. Per-instrument
// failures are reported in the results; only cancellation aborts.
func (c *Collector) FetchAll(ctx context.Context, instruments []string, from, to time.Time, cfg Config) ([]FetchResult, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	c.logger.WithFields(map[string]interface{}{
		"instrument_count": len(instruments),
		"from":             contracts.DateKey(from),
		"to":               contracts.DateKey(to),
		"workers":          workers,
	}).Info("Starting price collection")

	resultCh := make(chan FetchResult, len(instruments))
	idCh := make(chan string, len(instruments))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.priceWorker(ctx, workerID, idCh, resultCh, from, to)
		}(i)
	}

	for _, id := range instruments {
		idCh <- id
	}
	close(idCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]FetchResult, 0, len(instruments))
	successCount, failCount := 0, 0
	for result := range resultCh {
		results = append(results, result)
		if result.Error != nil {
			failCount++
		} else {
			successCount++
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Instrument < results[j].Instrument })

	c.logger.WithFields(map[string]interface{}{
		"success": successCount,
		"failed":  failCount,
		"total":   len(results),
	}).Info("Price collection completed")

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// priceWorker processes price fetching for instruments
func (c *Collector) priceWorker(ctx context.Context, workerID int, idCh <-chan string, resultCh chan<- FetchResult, from, to time.Time) {
	for id := range idCh {
		if err := ctx.Err(); err != nil {
			resultCh <- FetchResult{Instrument: id, Error: err}
			continue
		}

		bars, err := c.fetcher.FetchDaily(ctx, id, from, to)
		c.metrics.RecordFetch(err)
		if err != nil {
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"worker":     workerID,
				"instrument": id,
			}).Error("Failed to fetch prices")
			resultCh <- FetchResult{Instrument: id, Error: err}
			continue
		}

		if c.saver != nil {
			if err := c.saver.SaveBatch(ctx, bars); err != nil {
				c.logger.WithError(err).WithFields(map[string]interface{}{
					"worker":     workerID,
					"instrument": id,
				}).Error("Failed to save prices")
				resultCh <- FetchResult{Instrument: id, Bars: bars, Error: err}
				continue
			}
		}

		c.logger.WithFields(map[string]interface{}{
			"worker":     workerID,
			"instrument": id,
			"count":      len(bars),
		}).Debug("Fetched prices")

		resultCh <- FetchResult{Instrument: id, Bars: bars}
	}
}

// Bars flattens the successful results
func Bars(results []FetchResult) []data.Bar {
	var out []data.Bar
	for _, r := range results {
		if r.Error == nil {
			out = append(out, r.Bars...)
		}
	}
	return out
}
