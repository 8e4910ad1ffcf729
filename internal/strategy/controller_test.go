package strategy

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/internal/portfolio"
	"github.com/wonny/aegis-etf/internal/strategyconfig"
	"github.com/wonny/aegis-etf/pkg/logger"
)

var step = Step{
	Start:       time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	End:         time.Date(2024, 3, 5, 23, 59, 59, 0, time.UTC),
	SignalStart: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
	SignalEnd:   time.Date(2024, 3, 4, 23, 59, 59, 0, time.UTC),
}

type fakeSignals struct {
	scores *contracts.ScoreSet
	err    error
	gotEnd time.Time
}

func (f *fakeSignals) Signal(_ context.Context, _, end time.Time) (*contracts.ScoreSet, error) {
	f.gotEnd = end
	return f.scores, f.err
}

type recordingOptimizer struct {
	req   portfolio.WeightRequest
	panic bool
}

func (r *recordingOptimizer) CalculateWeights(req portfolio.WeightRequest) contracts.TargetWeights {
	if r.panic {
		panic("boom")
	}
	r.req = req
	w := contracts.TargetWeights{}
	for _, id := range req.Candidates {
		w[id] = 0.9 / float64(len(req.Candidates))
	}
	return w
}

type recordingExecutor struct {
	topK    int
	scores  *contracts.ScoreSet
	weights contracts.TargetWeights
	calls   int
}

func (r *recordingExecutor) TopK() int { return r.topK }

func (r *recordingExecutor) GenerateOrders(_ contracts.PositionSnapshot, scores *contracts.ScoreSet, weights contracts.TargetWeights, _ contracts.Exchange, start, end time.Time) []contracts.Order {
	r.calls++
	r.scores, r.weights = scores, weights
	orders := make([]contracts.Order, 0, len(weights))
	for _, id := range scores.TopK(len(weights)) {
		orders = append(orders, contracts.Order{Instrument: id, Side: contracts.OrderSideBuy, Amount: 100, Start: start, End: end})
	}
	return orders
}

func newController(t *testing.T, sig contracts.SignalSource, opts Options) (*Controller, *recordingOptimizer, *recordingExecutor) {
	t.Helper()
	if opts.TopK == 0 {
		opts.TopK = 2
	}
	opt, exe := &recordingOptimizer{}, &recordingExecutor{topK: opts.TopK}
	c, err := NewController(opt, exe, sig, opts, logger.NewNop())
	require.NoError(t, err)
	return c, opt, exe
}

func scores(m map[string]float64) *contracts.ScoreSet {
	return contracts.NewScoreSet(step.SignalStart, m)
}

var (
	emptyBook = contracts.NewPositionSnapshot(1_000_000, nil)
	heldBook  = contracts.NewPositionSnapshot(0, map[string]contracts.Holding{"A": {Amount: 100, Price: 1}})
)

func TestDecide_TopKFlow(t *testing.T) {
	sig := &fakeSignals{scores: scores(map[string]float64{"A": 0.3, "B": 0.2, "C": 0.1})}
	c, opt, exe := newController(t, sig, Options{TopK: 2})

	d, err := c.Decide(context.Background(), step, emptyBook, nil)
	require.NoError(t, err)

	assert.False(t, d.Degraded)
	assert.Equal(t, []string{"A", "B"}, opt.req.Candidates)
	assert.Equal(t, step.Start, opt.req.Date)
	assert.Equal(t, 3, exe.scores.Len(), "execution sees the full ranking")
	assert.Len(t, d.Orders, 2)
	assert.Equal(t, step.SignalEnd, sig.gotEnd, "signal window is the previous step")
}

func TestDecide_NoSignalHolds(t *testing.T) {
	tests := []struct {
		name     string
		sig      *fakeSignals
		degraded bool
	}{
		{"no signal", &fakeSignals{err: contracts.ErrNoSignal}, false},
		{"wrapped no signal", &fakeSignals{err: errors.Join(errors.New("ctx"), contracts.ErrNoSignal)}, false},
		{"empty set", &fakeSignals{scores: scores(nil)}, false},
		{"fetch failure", &fakeSignals{err: errors.New("db down")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, exe := newController(t, tt.sig, Options{})

			d, err := c.Decide(context.Background(), step, heldBook, nil)
			require.NoError(t, err)
			assert.Empty(t, d.Orders)
			assert.Equal(t, tt.degraded, d.Degraded)
			assert.Zero(t, exe.calls)
		})
	}
}

func TestDecide_ContextPropagates(t *testing.T) {
	c, _, _ := newController(t, &fakeSignals{err: context.DeadlineExceeded}, Options{})
	_, err := c.Decide(context.Background(), step, heldBook, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c, _, _ = newController(t, &fakeSignals{scores: scores(map[string]float64{"A": 1})}, Options{})
	_, err = c.Decide(ctx, step, heldBook, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecide_PanicDegrades(t *testing.T) {
	opt := &recordingOptimizer{panic: true}
	c, err := NewController(opt, &recordingExecutor{topK: 1}, &fakeSignals{scores: scores(map[string]float64{"A": 1})}, Options{TopK: 1}, logger.NewNop())
	require.NoError(t, err)

	d, err := c.Decide(context.Background(), step, heldBook, nil)
	require.NoError(t, err)
	assert.True(t, d.Degraded)
	assert.Empty(t, d.Orders)
	assert.Contains(t, d.Reason, "boom")
}

func TestDecide_TrendFilter(t *testing.T) {
	trend := contracts.NewFeatureSeries()
	trend.Set(step.Start, "A", 0.98)
	trend.Set(step.Start, "B", 1.05)
	trend.Set(step.Start, "C", 1.0)

	sig := &fakeSignals{scores: scores(map[string]float64{"A": 0.9, "B": 0.5, "C": 0.4, "D": 0.3})}
	c, opt, exe := newController(t, sig, Options{TopK: 2, Trend: trend, TrendThreshold: 1.0})

	_, err := c.Decide(context.Background(), step, emptyBook, nil)
	require.NoError(t, err)

	// A below, C equal (not strictly above), D without a value
	assert.Equal(t, []string{"B"}, opt.req.Candidates)
	assert.Equal(t, []string{"B"}, exe.scores.Sorted())
}

func TestDecide_TrendFilterWithoutCoverageIsNoop(t *testing.T) {
	trend := contracts.NewFeatureSeries()
	trend.Set(step.Start, "Z", 2)

	sig := &fakeSignals{scores: scores(map[string]float64{"A": 0.9, "B": 0.5})}
	c, opt, _ := newController(t, sig, Options{TopK: 2, Trend: trend, TrendThreshold: 1.0})

	_, err := c.Decide(context.Background(), step, emptyBook, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, opt.req.Candidates)
}

func TestDecide_RegimePassThrough(t *testing.T) {
	regime := contracts.NewRegimeSeries()
	regime.Set(step.Start, 0.95)
	tv := 0.2

	sig := &fakeSignals{scores: scores(map[string]float64{"A": 1})}
	c, opt, _ := newController(t, sig, Options{TopK: 1, Regime: regime, TargetVol: &tv})

	_, err := c.Decide(context.Background(), step, emptyBook, nil)
	require.NoError(t, err)
	require.NotNil(t, opt.req.RegimeRatio)
	assert.Equal(t, 0.95, *opt.req.RegimeRatio)
	assert.Equal(t, &tv, opt.req.TargetVol)

	// missing date → no regime input
	other := step
	other.Start = step.Start.AddDate(0, 0, 1)
	_, err = c.Decide(context.Background(), other, emptyBook, nil)
	require.NoError(t, err)
	assert.Nil(t, opt.req.RegimeRatio)
}

func TestDecide_SeededSkip(t *testing.T) {
	run := func(seed int64, book contracts.PositionSnapshot) []bool {
		sig := &fakeSignals{scores: scores(map[string]float64{"A": 1, "B": 0.5})}
		c, _, _ := newController(t, sig, Options{TopK: 1, SkipProbability: 0.5, Rand: rand.New(rand.NewSource(seed))})
		out := make([]bool, 50)
		for i := range out {
			d, err := c.Decide(context.Background(), step, book, nil)
			require.NoError(t, err)
			out[i] = d.Reason == "random skip"
		}
		return out
	}

	first, second := run(7, heldBook), run(7, heldBook)
	assert.Equal(t, first, second, "same seed, same skips")
	assert.Contains(t, first, true)
	assert.Contains(t, first, false)

	// an empty book is never skipped
	assert.NotContains(t, run(7, emptyBook), true)
}

func TestNewController_Validation(t *testing.T) {
	sig := &fakeSignals{}
	tests := []struct {
		name string
		opts Options
	}{
		{"topk", Options{TopK: 0}},
		{"skip range", Options{TopK: 1, SkipProbability: 1}},
		{"skip without rng", Options{TopK: 1, SkipProbability: 0.1}},
		{"topk differs from execution slots", Options{TopK: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewController(&recordingOptimizer{}, &recordingExecutor{topK: 1}, sig, tt.opts, logger.NewNop())
			var ve strategyconfig.ValidationError
			assert.True(t, errors.As(err, &ve))
		})
	}

	_, err := NewController(nil, &recordingExecutor{topK: 1}, sig, Options{TopK: 1}, logger.NewNop())
	assert.Error(t, err)

	_, err = NewController(&recordingOptimizer{}, &recordingExecutor{topK: 1}, sig, Options{TopK: 1}, logger.NewNop())
	assert.NoError(t, err)
}

func TestFromConfig(t *testing.T) {
	cfg := strategyconfig.Default()
	cfg.Execution.SkipProbability = 0.2
	cfg.Selection.TrendFilter.Enabled = true

	trend := contracts.NewFeatureSeries()
	c, err := FromConfig(&cfg, &fakeSignals{}, Features{Trend: trend, Regime: contracts.NewRegimeSeries()}, logger.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 4, c.opts.TopK)
	assert.NotNil(t, c.opts.Rand)
	assert.Equal(t, trend, c.opts.Trend)
	require.NotNil(t, c.opts.TargetVol)
	assert.Equal(t, 0.20, *c.opts.TargetVol)

	cfg.Selection.TopK = 0
	_, err = FromConfig(&cfg, &fakeSignals{}, Features{}, logger.NewNop())
	assert.Error(t, err)
}
