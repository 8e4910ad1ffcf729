package audit

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-etf/pkg/logger"
)

func rowsFrom(returns, bench []float64) []DailyReturn {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make([]DailyReturn, len(returns))
	value := 1000.0
	for i := range returns {
		value *= 1 + returns[i]
		out[i] = DailyReturn{
			Date:     start.AddDate(0, 0, i),
			Return:   returns[i],
			Bench:    bench[i],
			Turnover: 0.1,
			Cost:     0.0001,
			Value:    value,
		}
	}
	return out
}

func TestRisk(t *testing.T) {
	ra := Risk([]float64{0.01, -0.02, 0.03, 0.0})

	assert.InDelta(t, 0.005, ra.Mean, 1e-12)
	// sample std of {0.01,-0.02,0.03,0}
	assert.InDelta(t, 0.0208167, ra.Std, 1e-6)
	assert.InDelta(t, 0.005*252, ra.AnnualizedReturn, 1e-12)
	assert.InDelta(t, 0.005/ra.Std*math.Sqrt(252), ra.InformationRatio, 1e-9)
	assert.InDelta(t, -0.02, ra.MaxDrawdown, 1e-12)
}

func TestRisk_EdgeCases(t *testing.T) {
	assert.Equal(t, RiskAnalysis{}, Risk(nil))

	single := Risk([]float64{0.01})
	assert.Zero(t, single.Std)
	assert.Zero(t, single.InformationRatio)
	assert.Zero(t, single.MaxDrawdown)
}

func TestMaxDrawdown_PeakToTrough(t *testing.T) {
	// cumsum: 0.05, 0.02, -0.03, 0.01 → peak 0.05, trough -0.03
	assert.InDelta(t, -0.08, maxDrawdown([]float64{0.05, -0.03, -0.05, 0.04}), 1e-12)
}

func TestAnalyze(t *testing.T) {
	rows := rowsFrom(
		[]float64{0.01, -0.01, 0.02, 0.0},
		[]float64{0.005, -0.005, 0.01, 0.0},
	)

	report, err := NewAnalyzer(logger.NewNop()).Analyze(rows)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Days)
	assert.Equal(t, rows[0].Date, report.StartDate)
	assert.InDelta(t, 0.5, report.WinRate, 1e-12)
	assert.InDelta(t, 0.1*252, report.AnnualizedTurnover, 1e-9)
	assert.InDelta(t, 0.0004, report.TotalCost, 1e-12)
	assert.InDelta(t, 1.01*0.99*1.02-1, report.TotalReturn, 1e-12)
	assert.InDelta(t, rows[3].Value, report.FinalValue, 1e-9)

	// strategy = 2 x bench → beta 2, alpha 0
	assert.InDelta(t, 2.0, report.Beta, 1e-9)
	assert.InDelta(t, 0.0, report.Alpha, 1e-9)

	assert.InDelta(t, report.ExcessWithCost.Mean+0.0001, report.ExcessWithoutCost.Mean, 1e-12)
}

func TestAnalyze_Empty(t *testing.T) {
	_, err := Analyze(nil)
	assert.ErrorIs(t, err, ErrNoData)
}
