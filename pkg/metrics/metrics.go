package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the Prometheus collectors of the engine.
// All methods are safe on a nil *Registry so callers may run without metrics.
// ⭐ SSOT: 메트릭 정의는 여기서만
type Registry struct {
	reg *prometheus.Registry

	Steps            *prometheus.CounterVec
	DegradedSteps    prometheus.Counter
	Orders           *prometheus.CounterVec
	Fills            *prometheus.CounterVec
	BacktestDuration *prometheus.HistogramVec
	JobRuns          *prometheus.CounterVec
	FetchRequests    *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
}

// New creates a registry with Go runtime collectors and the engine metrics
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		Steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_etf_steps_total",
				Help: "Total number of strategy steps by outcome",
			},
			[]string{"outcome"},
		),

		DegradedSteps: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aegis_etf_degraded_steps_total",
				Help: "Steps that fell back to holding because of a data problem",
			},
		),

		Orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_etf_orders_total",
				Help: "Orders generated by side",
			},
			[]string{"side"},
		),

		Fills: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_etf_fills_total",
				Help: "Orders filled by the simulated exchange by side",
			},
			[]string{"side"},
		),

		BacktestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aegis_etf_backtest_duration_seconds",
				Help:    "Wall time of a backtest run",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"strategy"},
		),

		JobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_etf_job_runs_total",
				Help: "Scheduled job runs by job and status",
			},
			[]string{"job", "status"},
		),

		FetchRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_etf_fetch_requests_total",
				Help: "Daily bar fetches by instrument status",
			},
			[]string{"status"},
		),

		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_etf_cache_lookups_total",
				Help: "Signal cache lookups by result",
			},
			[]string{"result"},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.Steps,
		r.DegradedSteps,
		r.Orders,
		r.Fills,
		r.BacktestDuration,
		r.JobRuns,
		r.FetchRequests,
		r.CacheLookups,
	)
	return r
}

// Handler serves the registry in the Prometheus text format
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests and custom exporters
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

// RecordStep counts a step. degraded steps are also counted separately.
func (r *Registry) RecordStep(outcome string, degraded bool) {
	if r == nil {
		return
	}
	r.Steps.WithLabelValues(outcome).Inc()
	if degraded {
		r.DegradedSteps.Inc()
	}
}

// RecordOrder counts a generated order
func (r *Registry) RecordOrder(side string) {
	if r == nil {
		return
	}
	r.Orders.WithLabelValues(side).Inc()
}

// RecordFill counts a filled order
func (r *Registry) RecordFill(side string) {
	if r == nil {
		return
	}
	r.Fills.WithLabelValues(side).Inc()
}

// ObserveBacktest records the duration of a run
func (r *Registry) ObserveBacktest(strategy string, d time.Duration) {
	if r == nil {
		return
	}
	r.BacktestDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// RecordJob counts a scheduled job run
func (r *Registry) RecordJob(job string, err error) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	r.JobRuns.WithLabelValues(job, status).Inc()
}

// RecordFetch counts a bar fetch
func (r *Registry) RecordFetch(err error) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	r.FetchRequests.WithLabelValues(status).Inc()
}

// RecordCacheLookup counts a signal cache hit or miss
func (r *Registry) RecordCacheLookup(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.CacheLookups.WithLabelValues(result).Inc()
}
