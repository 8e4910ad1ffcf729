package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/wonny/aegis-etf/internal/brain"
	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/internal/portfolio"
	"github.com/wonny/aegis-etf/pkg/logger"
	"github.com/wonny/aegis-etf/pkg/metrics"
)

// SignalRunner computes the live recommendation
type SignalRunner interface {
	Signal(ctx context.Context, config brain.RunConfig) (*brain.RunResult, error)
}

// SignalCache is the read-through cache of the latest recommendation
type SignalCache interface {
	Latest(ctx context.Context, strategyID string) (*contracts.Recommendation, bool, error)
	Put(ctx context.Context, rec *contracts.Recommendation) error
}

// WeightReader reads the last saved target weights
type WeightReader interface {
	LatestTargetWeights(ctx context.Context, strategyID string) (time.Time, contracts.TargetWeights, error)
}

// SignalHandler serves the live Top-K recommendation
// ⭐ SSOT: 시그널 API 핸들러는 여기서만
type SignalHandler struct {
	strategyID string
	runner     SignalRunner
	cache      SignalCache  // nil = 매 요청 계산
	weights    WeightReader // nil = DB 없음
	metrics    *metrics.Registry
	logger     *logger.Logger
}

// NewSignalHandler creates a new signal handler. cache, weights and reg may be nil.
func NewSignalHandler(strategyID string, runner SignalRunner, cache SignalCache, weights WeightReader, reg *metrics.Registry, log *logger.Logger) *SignalHandler {
	return &SignalHandler{
		strategyID: strategyID,
		runner:     runner,
		cache:      cache,
		weights:    weights,
		metrics:    reg,
		logger:     log.Component("api.signal"),
	}
}

// SignalResponse is the body of GET /api/signal/latest
type SignalResponse struct {
	Recommendation *contracts.Recommendation `json:"recommendation"`
	Regime         string                    `json:"regime,omitempty"`
	RegimeRatio    *float64                  `json:"regime_ratio,omitempty"`
	Cached         bool                      `json:"cached"`
}

// GetLatest returns the cached recommendation or computes it on a miss.
// ?refresh=true bypasses the cache.
// GET /api/signal/latest
func (h *SignalHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	refresh := r.URL.Query().Get("refresh") == "true"

	if h.cache != nil && !refresh {
		rec, ok, err := h.cache.Latest(ctx, h.strategyID)
		if err != nil {
			h.logger.WithError(err).Warn("Signal cache read failed")
		}
		h.metrics.RecordCacheLookup(ok)
		if ok {
			respondJSON(w, http.StatusOK, SignalResponse{Recommendation: rec, Cached: true})
			return
		}
	}

	result, err := h.runner.Signal(ctx, brain.RunConfig{DryRun: true})
	if errors.Is(err, contracts.ErrNoSignal) {
		respondError(w, http.StatusNotFound, "No signal available")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to compute signal")
		respondError(w, http.StatusInternalServerError, "Failed to compute signal")
		return
	}

	if h.cache != nil {
		if err := h.cache.Put(ctx, result.Recommendation); err != nil {
			h.logger.WithError(err).Warn("Signal cache write failed")
		}
	}

	respondJSON(w, http.StatusOK, SignalResponse{
		Recommendation: result.Recommendation,
		Regime:         result.Regime,
		RegimeRatio:    result.RegimeRatio,
	})
}

// WeightsResponse is the body of GET /api/weights/latest
type WeightsResponse struct {
	StrategyID string                  `json:"strategy_id"`
	Date       string                  `json:"date"`
	Weights    contracts.TargetWeights `json:"weights"`
	Total      float64                 `json:"total"`
}

// GetWeights returns the last saved target weights
// GET /api/weights/latest
func (h *SignalHandler) GetWeights(w http.ResponseWriter, r *http.Request) {
	if h.weights == nil {
		respondError(w, http.StatusNotImplemented, "Database not configured")
		return
	}

	date, weights, err := h.weights.LatestTargetWeights(r.Context(), h.strategyID)
	if err != nil {
		if portfolio.IsNotFound(err) {
			respondError(w, http.StatusNotFound, "No saved weights")
			return
		}
		h.logger.WithError(err).Error("Failed to get target weights")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve target weights")
		return
	}

	respondJSON(w, http.StatusOK, WeightsResponse{
		StrategyID: h.strategyID,
		Date:       contracts.DateKey(date),
		Weights:    weights,
		Total:      weights.Sum(),
	})
}
