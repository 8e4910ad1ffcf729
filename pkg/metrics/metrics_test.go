package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Counters(t *testing.T) {
	r := New()

	r.RecordStep("trade", false)
	r.RecordStep("hold", true)
	r.RecordOrder("BUY")
	r.RecordOrder("BUY")
	r.RecordFill("SELL")
	r.RecordJob("daily_signal", errors.New("boom"))
	r.RecordFetch(nil)
	r.RecordCacheLookup(true)

	assert.Equal(t, 1.0, counterValue(t, r.DegradedSteps))
	assert.Equal(t, 2.0, counterValue(t, r.Orders.WithLabelValues("BUY")))
	assert.Equal(t, 1.0, counterValue(t, r.Fills.WithLabelValues("SELL")))
	assert.Equal(t, 1.0, counterValue(t, r.JobRuns.WithLabelValues("daily_signal", "failed")))
	assert.Equal(t, 1.0, counterValue(t, r.CacheLookups.WithLabelValues("hit")))
}

func TestRegistry_NilSafe(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.RecordStep("trade", true)
		r.RecordOrder("BUY")
		r.RecordFill("BUY")
		r.ObserveBacktest("etf_topk", time.Second)
		r.RecordJob("x", nil)
		r.RecordFetch(nil)
		r.RecordCacheLookup(false)
	})
}

func TestRegistry_Handler(t *testing.T) {
	r := New()
	r.ObserveBacktest("etf_topk", 20*time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "aegis_etf_backtest_duration_seconds"))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}
