package backtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/internal/data"
	"github.com/wonny/aegis-etf/internal/features"
	"github.com/wonny/aegis-etf/internal/signals"
	"github.com/wonny/aegis-etf/internal/strategy"
	"github.com/wonny/aegis-etf/internal/strategyconfig"
	"github.com/wonny/aegis-etf/pkg/logger"
	"github.com/wonny/aegis-etf/pkg/metrics"
)

// scriptedDecider returns fixed orders per date
type scriptedDecider struct {
	orders   map[string][]contracts.Order
	degraded map[string]bool
	steps    []strategy.Step
}

func (d *scriptedDecider) Decide(_ context.Context, step strategy.Step, _ contracts.PositionSnapshot, _ contracts.Exchange) (*contracts.TradeDecision, error) {
	d.steps = append(d.steps, step)
	key := contracts.DateKey(step.Start)
	if d.degraded[key] {
		return contracts.Degrade("test"), nil
	}
	orders := d.orders[key]
	for i := range orders {
		orders[i].Start, orders[i].End = step.Start, step.End
	}
	return &contracts.TradeDecision{Orders: orders}, nil
}

func linearStore() *data.MemoryStore {
	s := data.NewMemoryStore()
	closes := map[string][]float64{
		"A":     {10, 10.5, 11, 10.8},
		"BENCH": {100, 101, 102, 100},
	}
	for id, cs := range closes {
		for i, c := range cs {
			s.Add(data.Bar{Date: day("2024-01-02").AddDate(0, 0, i), Instrument: id, Open: c, Close: c, Volume: 1000})
		}
	}
	return s
}

func TestEngine_RunScripted(t *testing.T) {
	reg := metrics.New()
	engine := NewEngine(linearStore(), reg, logger.NewNop())
	decider := &scriptedDecider{
		orders: map[string][]contracts.Order{
			"2024-01-03": {{Instrument: "A", Side: contracts.OrderSideBuy, Amount: 100}},
			"2024-01-05": {
				{Instrument: "A", Side: contracts.OrderSideSell, Amount: 100},
				{Instrument: "A", Side: contracts.OrderSideSell, Amount: 100}, // 보유 없음 → 드롭
			},
		},
		degraded: map[string]bool{"2024-01-04": true},
	}

	cfg := DefaultConfig()
	cfg.Account = 10_000
	cfg.Benchmark = "BENCH"
	cfg.StartDate = day("2024-01-03")

	report, err := engine.Run(context.Background(), decider, cfg)
	require.NoError(t, err)
	require.Len(t, report.Records, 3)

	// signal window is the previous trading day
	require.Len(t, decider.steps, 3)
	assert.Equal(t, day("2024-01-02"), decider.steps[0].SignalStart)
	assert.Equal(t, day("2024-01-03"), decider.steps[1].SignalEnd)

	buy := report.Records[0]
	assert.Len(t, buy.Fills, 1)
	assert.InDelta(t, 10_000-1050-1050*0.0003, buy.Cash, 1e-9)
	assert.InDelta(t, buy.Cash+1050, buy.AccountValue, 1e-9)
	assert.InDelta(t, 1050.0/10_000, buy.Turnover, 1e-12)
	assert.InDelta(t, 1050*0.0003/10_000, buy.Cost, 1e-12)
	assert.InDelta(t, 101.0/100-1, buy.Bench, 1e-12)
	assert.Equal(t, 1, buy.Holdings)

	held := report.Records[1]
	assert.True(t, held.Degraded)
	assert.InDelta(t, held.Cash+1100, held.AccountValue, 1e-9, "marked at the new close")
	assert.InDelta(t, held.AccountValue/buy.AccountValue-1, held.Return, 1e-12)

	sold := report.Records[2]
	assert.Len(t, sold.Orders, 2)
	assert.Len(t, sold.Fills, 1)
	assert.Zero(t, sold.Holdings)
	assert.InDelta(t, sold.Cash, sold.AccountValue, 1e-9)

	assert.Equal(t, 1, report.DegradedSteps)
	assert.Equal(t, 3, report.TotalOrders)
	assert.Equal(t, 2, report.TotalFills)
	require.NotNil(t, report.Summary)
	assert.Equal(t, 3, report.Summary.Days)
	assert.Len(t, report.Positions, 3)

	require.NotNil(t, report.Risk)
	assert.Equal(t, 3, report.Risk.Days)
	assert.Nil(t, report.Risk.MonteCarlo, "3 days is too short to simulate")
	assert.Equal(t, []float64{buy.Return, held.Return, sold.Return}, report.StrategyReturns())
}

func TestEngine_RunErrors(t *testing.T) {
	engine := NewEngine(linearStore(), nil, logger.NewNop())
	decider := &scriptedDecider{}

	cfg := DefaultConfig()
	cfg.StartDate = day("2025-01-01")
	_, err := engine.Run(context.Background(), decider, cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Account = 0
	_, err = engine.Run(context.Background(), decider, cfg)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.Run(ctx, decider, DefaultConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

// trendingStore builds n days where instrument i drifts by drift[i] per day
func trendingStore(n int) (*data.MemoryStore, []contracts.PredictionScore) {
	s := data.NewMemoryStore()
	ids := []string{"510300.SH", "510500.SH", "159915.SZ", "512480.SH", "512880.SH"}
	drift := []float64{0.001, 0.004, -0.002, 0.006, -0.004}
	var preds []contracts.PredictionScore

	start := day("2024-01-01")
	for i, id := range ids {
		price := 1.0 + 0.1*float64(i)
		for d := 0; d < n; d++ {
			wiggle := 0.003 * float64((d+i)%3-1)
			price *= 1 + drift[i] + wiggle
			date := start.AddDate(0, 0, d)
			s.Add(data.Bar{Date: date, Instrument: id, Open: price, Close: price, Volume: 1e6})
			// score rotates so the ranking changes over time
			score := drift[i] + 0.002*float64((d/5+i)%4)
			preds = append(preds, contracts.PredictionScore{Date: date, Instrument: id, Score: score})
		}
	}
	return s, preds
}

func newPipeline(t *testing.T, store *data.MemoryStore, preds []contracts.PredictionScore, cfg *strategyconfig.Config) Decider {
	t.Helper()
	src := signals.NewSeriesSource(signals.Smooth(preds, cfg.Signal.SmoothingHalflife))
	ctrl, err := strategy.FromConfig(cfg, src, features.Build(store, cfg), logger.NewNop())
	require.NoError(t, err)
	return ctrl
}

func TestEngine_EndToEnd(t *testing.T) {
	store, preds := trendingStore(90)
	cfg := strategyconfig.Default()
	cfg.Universe.Instruments = []string{"510300.SH", "510500.SH", "159915.SZ", "512480.SH", "512880.SH"}
	cfg.Selection.TopK = 2
	cfg.Selection.Buffer = 1
	cfg.Selection.NDrop = 1
	cfg.Backtest.TradeUnit = 0
	cfg.Backtest.LimitThreshold = 0

	btCfg, err := ConfigFromStrategy(&cfg)
	require.NoError(t, err)

	engine := NewEngine(store, metrics.New(), logger.NewNop())
	report, err := engine.Run(context.Background(), newPipeline(t, store, preds, &cfg), btCfg)
	require.NoError(t, err)
	require.Len(t, report.Records, 90)

	bought := false
	for _, rec := range report.Records {
		assert.GreaterOrEqual(t, rec.Cash, -1e-6, "no leverage on %s", contracts.DateKey(rec.Date))
		assert.LessOrEqual(t, rec.Holdings, cfg.Selection.TopK+cfg.Selection.Buffer)
		if len(rec.Fills) > 0 {
			bought = true
		}
	}
	assert.True(t, bought, "the pipeline trades")
	require.NotNil(t, report.Summary)

	// determinism: a fresh pipeline over the same inputs reproduces the report
	again, err := engine.Run(context.Background(), newPipeline(t, store, preds, &cfg), btCfg)
	require.NoError(t, err)
	for i := range report.Records {
		assert.Equal(t, report.Records[i].Fills, again.Records[i].Fills)
		assert.InDelta(t, report.Records[i].AccountValue, again.Records[i].AccountValue, 1e-6)
	}
}

func TestEngine_RunMany(t *testing.T) {
	store, preds := trendingStore(40)
	engine := NewEngine(store, nil, logger.NewNop())

	var jobs []Job
	for _, k := range []int{1, 2, 3} {
		cfg := strategyconfig.Default()
		cfg.Universe.Instruments = []string{"510300.SH", "510500.SH", "159915.SZ", "512480.SH", "512880.SH"}
		cfg.Selection.TopK = k
		btCfg, err := ConfigFromStrategy(&cfg)
		require.NoError(t, err)
		jobs = append(jobs, Job{
			Name:    fmt.Sprintf("topk_%d", k),
			Decider: newPipeline(t, store, preds, &cfg),
			Config:  btCfg,
		})
	}

	reports, err := engine.RunMany(context.Background(), jobs, 2)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	for i, r := range reports {
		assert.Equal(t, jobs[i].Name, r.Config.Name)
		assert.Len(t, r.Records, 40)
	}
}

func TestWindowIndex(t *testing.T) {
	cal := []time.Time{day("2024-01-02"), day("2024-01-03"), day("2024-01-05")}

	first, last := windowIndex(cal, time.Time{}, time.Time{})
	assert.Equal(t, 0, first)
	assert.Equal(t, 2, last)

	first, last = windowIndex(cal, day("2024-01-03"), day("2024-01-04"))
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, last)

	first, last = windowIndex(cal, day("2024-01-06"), time.Time{})
	assert.Greater(t, first, last)
}
