package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-etf/internal/data"
	"github.com/wonny/aegis-etf/internal/strategyconfig"
)

func storeWith(id string, closes ...float64) *data.MemoryStore {
	s := data.NewMemoryStore()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		s.Add(data.Bar{Date: start.AddDate(0, 0, i), Instrument: id, Open: c, Close: c, Volume: 1})
	}
	return s
}

func at(i int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func TestVolatility(t *testing.T) {
	s := storeWith("A", 100, 110, 99, 99)
	vol := Volatility(s, []string{"A"}, 2)

	_, ok := vol.Lookup(at(1), "A")
	assert.False(t, ok, "needs a full window of returns")

	v, ok := vol.Lookup(at(2), "A")
	require.True(t, ok)
	// returns 0.1 and -0.1 → sample std = 0.1·√2
	assert.InDelta(t, 0.1*math.Sqrt2, v, 1e-9)

	v, ok = vol.Lookup(at(3), "A")
	require.True(t, ok)
	assert.InDelta(t, 0.1/math.Sqrt2, v, 1e-9)

	assert.Zero(t, Volatility(s, []string{"A"}, 1).Len())
}

func TestTrendAndRegimeRatio(t *testing.T) {
	s := storeWith("B", 10, 10, 13)

	trend := TrendRatio(s, []string{"B"}, 3)
	v, ok := trend.Lookup(at(2), "B")
	require.True(t, ok)
	assert.InDelta(t, 13.0/11.0, v, 1e-12)
	_, ok = trend.Lookup(at(1), "B")
	assert.False(t, ok)

	regime := RegimeRatio(s, "B", 2)
	r, ok := regime.Ratio(at(2))
	require.True(t, ok)
	assert.InDelta(t, 13.0/11.5, r, 1e-12)
	assert.Len(t, regime.Dates(), 2)

	missing := RegimeRatio(s, "nope", 2)
	assert.Empty(t, missing.Dates())
}

func TestBuild_FollowsToggles(t *testing.T) {
	s := storeWith("510300.SH", 1, 2, 3)
	cfg := strategyconfig.Default()

	f := Build(s, &cfg)
	assert.NotNil(t, f.Volatility)
	assert.NotNil(t, f.Regime)
	assert.Nil(t, f.Trend)

	cfg.Portfolio.RiskParity = false
	cfg.Portfolio.Regime.Enabled = false
	cfg.Selection.TrendFilter.Enabled = true
	f = Build(s, &cfg)
	assert.Nil(t, f.Volatility)
	assert.Nil(t, f.Regime)
	assert.NotNil(t, f.Trend)
}
