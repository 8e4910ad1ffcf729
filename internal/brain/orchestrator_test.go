package brain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-etf/internal/audit"
	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/internal/data"
	"github.com/wonny/aegis-etf/internal/strategyconfig"
	"github.com/wonny/aegis-etf/pkg/logger"
	"github.com/wonny/aegis-etf/pkg/metrics"
)

type memSource struct {
	store *data.MemoryStore
	preds []contracts.PredictionScore
	err   error
}

func (m *memSource) Prices(context.Context, []string, time.Time, time.Time) (*data.MemoryStore, error) {
	return m.store, m.err
}

func (m *memSource) Predictions(context.Context, time.Time, time.Time) ([]contracts.PredictionScore, error) {
	return m.preds, m.err
}

type recordingSaver struct {
	strategyID string
	date       time.Time
	weights    contracts.TargetWeights
	runs       []audit.RunRecord
	err        error
}

func (r *recordingSaver) SaveTargetWeights(_ context.Context, strategyID string, date time.Time, w contracts.TargetWeights) error {
	r.strategyID, r.date, r.weights = strategyID, date, w
	return r.err
}

func (r *recordingSaver) SaveRun(_ context.Context, run audit.RunRecord) error {
	r.runs = append(r.runs, run)
	return r.err
}

type fixedLoader struct {
	date    time.Time
	weights contracts.TargetWeights
	err     error
}

func (l *fixedLoader) LatestTargetWeights(context.Context, string) (time.Time, contracts.TargetWeights, error) {
	return l.date, l.weights, l.err
}

type recordingCache struct {
	recs []*contracts.Recommendation
	err  error
}

func (c *recordingCache) Put(_ context.Context, rec *contracts.Recommendation) error {
	c.recs = append(c.recs, rec)
	return c.err
}

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// fixture: 40 days of rising closes and daily scores ranking A > B > C
func fixture() *memSource {
	store := data.NewMemoryStore()
	var preds []contracts.PredictionScore
	for i := 0; i < 40; i++ {
		d := start.AddDate(0, 0, i)
		for j, id := range []string{"A", "B", "C"} {
			c := 10 + float64(i)*0.1*float64(j+1)
			store.Add(data.Bar{Date: d, Instrument: id, Open: c, Close: c, Volume: 1000})
			preds = append(preds, contracts.PredictionScore{Date: d, Instrument: id, Score: 0.3 - 0.1*float64(j)})
		}
	}
	return &memSource{store: store, preds: preds}
}

func testConfig() *strategyconfig.Config {
	cfg := strategyconfig.Default()
	cfg.Universe.Instruments = []string{"A", "B", "C"}
	cfg.Universe.Benchmark = "A"
	cfg.Selection.TopK = 2
	cfg.Selection.Buffer = 0
	cfg.Selection.NDrop = 1
	cfg.Portfolio.VolatilityWindow = 5
	cfg.Portfolio.Regime.MAWindow = 10
	cfg.Signal.SmoothingHalflife = 0
	return &cfg
}

func TestOrchestrator_Signal(t *testing.T) {
	saver := &recordingSaver{}
	cache := &recordingCache{}
	o, err := NewOrchestrator(testConfig(), fixture(), metrics.New(), logger.NewNop())
	require.NoError(t, err)
	o.WithWeightSaver(saver).WithCache(cache)

	now := time.Date(2024, 2, 10, 8, 0, 0, 0, time.UTC)
	result, err := o.Signal(context.Background(), RunConfig{Now: now})
	require.NoError(t, err)

	assert.Equal(t, start.AddDate(0, 0, 39), result.SignalDate)
	assert.Equal(t, []string{StagePredictions, StageSmoothing, StageFeatures, StagePositions, StageWeights, StageRecommend, StagePersist}, result.CompletedStages)

	rec := result.Recommendation
	require.NotNil(t, rec)
	assert.Equal(t, []string{"A", "B"}, rec.TopK)
	assert.Equal(t, now, rec.GeneratedAt)
	assert.Equal(t, o.ConfigHash(), rec.ConfigHash)
	require.Len(t, rec.Ranking, 3)
	assert.False(t, rec.Ranking[2].Selected)

	require.NotNil(t, result.RegimeRatio)
	assert.Greater(t, *result.RegimeRatio, 1.0)
	assert.Equal(t, "bull", result.Regime)

	assert.Greater(t, rec.Weights["A"], 0.0)
	assert.Greater(t, rec.Weights["B"], 0.0)
	assert.LessOrEqual(t, rec.Weights.Sum(), 0.95+1e-9)
	assert.True(t, rec.Ranking[0].Held)
	require.Len(t, rec.Orders, 2, "empty book buys both picks")
	for _, order := range rec.Orders {
		assert.Equal(t, contracts.OrderSideBuy, order.Side)
	}

	assert.Equal(t, "etf_topk", saver.strategyID)
	assert.Equal(t, result.SignalDate, saver.date)
	require.Len(t, cache.recs, 1)
	assert.Same(t, rec, cache.recs[0])
}

func TestOrchestrator_SignalDryRun(t *testing.T) {
	saver := &recordingSaver{}
	cache := &recordingCache{}
	o, err := NewOrchestrator(testConfig(), fixture(), nil, logger.NewNop())
	require.NoError(t, err)
	o.WithWeightSaver(saver).WithCache(cache)

	result, err := o.Signal(context.Background(), RunConfig{DryRun: true})
	require.NoError(t, err)
	assert.NotContains(t, result.CompletedStages, StagePersist)
	assert.Nil(t, saver.weights)
	assert.Empty(t, cache.recs)
}

func TestOrchestrator_SignalErrors(t *testing.T) {
	tests := []struct {
		name   string
		source *memSource
		saver  *recordingSaver
		loader *fixedLoader
		target error
	}{
		{
			name:   "no predictions",
			source: &memSource{store: data.NewMemoryStore()},
			target: contracts.ErrNoSignal,
		},
		{
			name:   "source failure",
			source: &memSource{err: errors.New("boom")},
		},
		{
			name:   "weight load failure",
			source: fixture(),
			loader: &fixedLoader{err: errors.New("db down")},
		},
		{
			name:   "weight save failure",
			source: fixture(),
			saver:  &recordingSaver{err: errors.New("db down")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := NewOrchestrator(testConfig(), tt.source, nil, logger.NewNop())
			require.NoError(t, err)
			if tt.saver != nil {
				o.WithWeightSaver(tt.saver)
			}
			if tt.loader != nil {
				o.WithWeightLoader(tt.loader)
			}

			_, err = o.Signal(context.Background(), RunConfig{})
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestOrchestrator_SignalFromPreviousBook(t *testing.T) {
	prev := &fixedLoader{
		date:    start.AddDate(0, 0, 38),
		weights: contracts.TargetWeights{"A": 0.475, "C": 0.475},
	}

	tests := []struct {
		name       string
		buffer     int
		wantHeld   []string
		wantAbsent string
		wantSells  int
	}{
		// C 는 3위: 버퍼 1 이면 유지, 0 이면 매도 후 B 매수
		{name: "buffer keeps third-ranked holding", buffer: 1, wantHeld: []string{"A", "C"}, wantAbsent: "B"},
		{name: "no buffer drops it for the pick", buffer: 0, wantHeld: []string{"A", "B"}, wantAbsent: "C", wantSells: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Selection.Buffer = tt.buffer

			o, err := NewOrchestrator(cfg, fixture(), nil, logger.NewNop())
			require.NoError(t, err)
			o.WithWeightLoader(prev)

			result, err := o.Signal(context.Background(), RunConfig{DryRun: true})
			require.NoError(t, err)

			rec := result.Recommendation
			assert.Equal(t, []string{"A", "B"}, rec.TopK)
			for _, id := range tt.wantHeld {
				assert.Greater(t, rec.Weights[id], 0.0, id)
			}
			assert.NotContains(t, rec.Weights, tt.wantAbsent)
			assert.LessOrEqual(t, rec.Weights.Sum(), 1.0+1e-9)

			sells := 0
			for _, order := range rec.Orders {
				if order.Side == contracts.OrderSideSell && order.Instrument == "C" {
					sells++
				}
			}
			assert.Equal(t, tt.wantSells, sells)

			require.Len(t, rec.Ranking, 3)
			third := rec.Ranking[2]
			assert.Equal(t, "C", third.Instrument)
			assert.Equal(t, tt.buffer > 0, third.Buffer)
			assert.Equal(t, tt.buffer > 0, third.Held)
		})
	}
}

func TestOrchestrator_SignalWithoutSavedWeights(t *testing.T) {
	o, err := NewOrchestrator(testConfig(), fixture(), nil, logger.NewNop())
	require.NoError(t, err)
	o.WithWeightLoader(&fixedLoader{err: pgx.ErrNoRows})

	result, err := o.Signal(context.Background(), RunConfig{DryRun: true})
	require.NoError(t, err)
	assert.Contains(t, result.CompletedStages, StagePositions)
	assert.Len(t, result.Recommendation.Weights, 2)
}

func TestOrchestrator_CacheFailureIsNotFatal(t *testing.T) {
	o, err := NewOrchestrator(testConfig(), fixture(), nil, logger.NewNop())
	require.NoError(t, err)
	o.WithCache(&recordingCache{err: errors.New("redis down")})

	result, err := o.Signal(context.Background(), RunConfig{})
	require.NoError(t, err)
	assert.Contains(t, result.CompletedStages, StagePersist)
}

func TestOrchestrator_TrendFilter(t *testing.T) {
	cfg := testConfig()
	cfg.Selection.TrendFilter.Enabled = true
	cfg.Selection.TrendFilter.MAWindow = 10
	cfg.Selection.TrendFilter.Threshold = 1.0

	src := fixture()
	// A 하락 추세
	for i := 30; i < 40; i++ {
		src.store.Add(data.Bar{Date: start.AddDate(0, 0, i), Instrument: "A", Open: 20 - float64(i)*0.2, Close: 20 - float64(i)*0.2, Volume: 1000})
	}

	o, err := NewOrchestrator(cfg, src, nil, logger.NewNop())
	require.NoError(t, err)

	result, err := o.Signal(context.Background(), RunConfig{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, result.Recommendation.TopK)
}

func TestOrchestrator_Backtest(t *testing.T) {
	saver := &recordingSaver{}
	o, err := NewOrchestrator(testConfig(), fixture(), metrics.New(), logger.NewNop())
	require.NoError(t, err)
	o.WithRunSaver(saver)

	report, err := o.Backtest(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Records, 40)
	require.NotNil(t, report.Summary)
	assert.Greater(t, report.TotalFills, 0)

	require.Len(t, saver.runs, 1)
	assert.Equal(t, o.ConfigHash(), saver.runs[0].ConfigHash)
	assert.Equal(t, "etf_topk", saver.runs[0].StrategyID)
}

func TestNewOrchestrator_Invalid(t *testing.T) {
	cfg := testConfig()
	cfg.Selection.TopK = 0
	_, err := NewOrchestrator(cfg, fixture(), nil, logger.NewNop())
	assert.Error(t, err)

	_, err = NewOrchestrator(testConfig(), nil, nil, logger.NewNop())
	assert.Error(t, err)
}

func TestRunID(t *testing.T) {
	assert.Equal(t, "etf_topk-20240305-093000", RunID("etf_topk", time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)))
}
