package handlers

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/wonny/aegis-etf/internal/audit"
	"github.com/wonny/aegis-etf/internal/backtest"
	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/internal/risk"
	"github.com/wonny/aegis-etf/pkg/logger"
)

// BacktestRunner runs the configured strategy backtest
type BacktestRunner interface {
	Backtest(ctx context.Context) (*backtest.Report, error)
}

// RunLister lists persisted backtest summaries
type RunLister interface {
	RecentRuns(ctx context.Context, strategyID string, limit int) ([]audit.RunRecord, error)
}

// BacktestHandler runs backtests on demand
type BacktestHandler struct {
	strategyID string
	runner     BacktestRunner
	runs       RunLister // nil = DB 없음
	logger     *logger.Logger

	// 동시에 한 번만 실행
	mu sync.Mutex
}

// NewBacktestHandler creates a new backtest handler. runs may be nil.
func NewBacktestHandler(strategyID string, runner BacktestRunner, runs RunLister, log *logger.Logger) *BacktestHandler {
	return &BacktestHandler{
		strategyID: strategyID,
		runner:     runner,
		runs:       runs,
		logger:     log.Component("api.backtest"),
	}
}

// BacktestResponse is the body of POST /api/backtest
type BacktestResponse struct {
	StrategyID    string                   `json:"strategy_id"`
	StartDate     string                   `json:"start_date"`
	EndDate       string                   `json:"end_date"`
	TradingDays   int                      `json:"trading_days"`
	Orders        int                      `json:"orders"`
	Fills         int                      `json:"fills"`
	DegradedSteps int                      `json:"degraded_steps"`
	DurationMS    int64                    `json:"duration_ms"`
	Summary       *audit.PerformanceReport `json:"summary"`
	Risk          *risk.Report             `json:"risk,omitempty"`
}

// Run executes the backtest and returns the report summary
// POST /api/backtest
func (h *BacktestHandler) Run(w http.ResponseWriter, r *http.Request) {
	if !h.mu.TryLock() {
		respondError(w, http.StatusConflict, "Backtest already running")
		return
	}
	defer h.mu.Unlock()

	report, err := h.runner.Backtest(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Backtest failed")
		respondError(w, http.StatusInternalServerError, "Backtest failed: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, BacktestResponse{
		StrategyID:    h.strategyID,
		StartDate:     contracts.DateKey(report.StartDate),
		EndDate:       contracts.DateKey(report.EndDate),
		TradingDays:   len(report.Records),
		Orders:        report.TotalOrders,
		Fills:         report.TotalFills,
		DegradedSteps: report.DegradedSteps,
		DurationMS:    report.Duration.Milliseconds(),
		Summary:       report.Summary,
		Risk:          report.Risk,
	})
}

// ListRuns returns recent persisted runs
// GET /api/backtest/runs?limit=20
func (h *BacktestHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		respondError(w, http.StatusNotImplemented, "Database not configured")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			respondError(w, http.StatusBadRequest, "Invalid 'limit' (1-500)")
			return
		}
		limit = n
	}

	runs, err := h.runs.RecentRuns(r.Context(), h.strategyID, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve runs")
		return
	}
	if runs == nil {
		runs = []audit.RunRecord{}
	}
	respondJSON(w, http.StatusOK, runs)
}
