package brain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/aegis-etf/internal/audit"
	"github.com/wonny/aegis-etf/internal/backtest"
	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/internal/data"
	"github.com/wonny/aegis-etf/internal/features"
	"github.com/wonny/aegis-etf/internal/portfolio"
	"github.com/wonny/aegis-etf/internal/signals"
	"github.com/wonny/aegis-etf/internal/strategy"
	"github.com/wonny/aegis-etf/internal/strategyconfig"
	"github.com/wonny/aegis-etf/pkg/logger"
	"github.com/wonny/aegis-etf/pkg/metrics"
)

// WeightSaver persists the target weights of a signal date
type WeightSaver interface {
	SaveTargetWeights(ctx context.Context, strategyID string, date time.Time, weights contracts.TargetWeights) error
}

// WeightLoader reads the latest persisted target weights
type WeightLoader interface {
	LatestTargetWeights(ctx context.Context, strategyID string) (time.Time, contracts.TargetWeights, error)
}

// RecommendationCache keeps the latest recommendation
type RecommendationCache interface {
	Put(ctx context.Context, rec *contracts.Recommendation) error
}

// RunSaver persists backtest summaries
type RunSaver interface {
	SaveRun(ctx context.Context, run audit.RunRecord) error
}

// Stage names reported in RunResult.CompletedStages
const (
	StagePredictions = "predictions"
	StageSmoothing   = "smoothing"
	StageFeatures    = "features"
	StagePositions   = "positions"
	StageWeights     = "weights"
	StageRecommend   = "recommend"
	StagePersist     = "persist"
)

// Orchestrator runs the live signal pipeline and backtests of one strategy
// ⭐ SSOT: 파이프라인 조율은 여기서만
type Orchestrator struct {
	config     *strategyconfig.Config
	configHash string
	source     data.Source

	weightSaver  WeightSaver
	weightLoader WeightLoader
	cache        RecommendationCache
	runSaver     RunSaver

	metrics *metrics.Registry
	logger  *logger.Logger
}

// RunConfig holds configuration for a live signal run
type RunConfig struct {
	Now    time.Time // zero = time.Now()
	DryRun bool      // true = 저장/캐시 생략
}

// RunResult holds the results of a live signal run
type RunResult struct {
	StrategyID      string                    `json:"strategy_id"`
	SignalDate      time.Time                 `json:"signal_date"`
	Recommendation  *contracts.Recommendation `json:"recommendation"`
	Regime          string                    `json:"regime,omitempty"`       // bull | bear | neutral, 레짐 비활성 시 빈 값
	RegimeRatio     *float64                  `json:"regime_ratio,omitempty"` // nil = 레짐 입력 없음
	CompletedStages []string                  `json:"completed_stages"`
	Duration        time.Duration             `json:"duration"`
}

// NewOrchestrator validates the strategy config and creates an orchestrator.
// reg may be nil.
func NewOrchestrator(cfg *strategyconfig.Config, source data.Source, reg *metrics.Registry, log *logger.Logger) (*Orchestrator, error) {
	if err := strategyconfig.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid strategy config: %w", err)
	}
	if source == nil {
		return nil, errors.New("brain: data source is required")
	}
	hash, err := strategyconfig.Hash(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to hash strategy config: %w", err)
	}
	return &Orchestrator{
		config:     cfg,
		configHash: hash,
		source:     source,
		metrics:    reg,
		logger:     log.Component("brain"),
	}, nil
}

// WithWeightSaver persists target weights after each live run
func (o *Orchestrator) WithWeightSaver(s WeightSaver) *Orchestrator {
	o.weightSaver = s
	return o
}

// WithWeightLoader starts each live run from the latest saved weights
// instead of an empty book
func (o *Orchestrator) WithWeightLoader(l WeightLoader) *Orchestrator {
	o.weightLoader = l
	return o
}

// WithCache caches each live recommendation
func (o *Orchestrator) WithCache(c RecommendationCache) *Orchestrator {
	o.cache = c
	return o
}

// WithRunSaver persists each backtest summary
func (o *Orchestrator) WithRunSaver(s RunSaver) *Orchestrator {
	o.runSaver = s
	return o
}

// Config returns the strategy config
func (o *Orchestrator) Config() *strategyconfig.Config { return o.config }

// ConfigHash returns the canonical hash of the strategy config
func (o *Orchestrator) ConfigHash() string { return o.configHash }

// Signal builds the recommendation of the latest prediction date:
// predictions → smoothing → features → positions → weights → recommendation → persist.
// The weights come from one controller step against the previous book, so
// the buffer and n_drop rules hold between live runs as in backtests.
func (o *Orchestrator) Signal(ctx context.Context, config RunConfig) (*RunResult, error) {
	startTime := time.Now()
	now := config.Now
	if now.IsZero() {
		now = startTime
	}

	cfg := o.config
	result := &RunResult{
		StrategyID:      cfg.Meta.StrategyID,
		CompletedStages: make([]string, 0, 7),
	}

	o.logger.WithFields(map[string]interface{}{
		"strategy_id": cfg.Meta.StrategyID,
		"config_hash": o.configHash,
		"dry_run":     config.DryRun,
	}).Info("Starting signal run")

	preds, err := o.source.Predictions(ctx, time.Time{}, time.Time{})
	if err != nil {
		return result, fmt.Errorf("%s failed: %w", StagePredictions, err)
	}
	result.CompletedStages = append(result.CompletedStages, StagePredictions)

	source := signals.NewSeriesSource(signals.Smooth(preds, cfg.Signal.SmoothingHalflife))
	scores, ok := source.Latest()
	if !ok {
		return result, fmt.Errorf("%s failed: %w", StageSmoothing, contracts.ErrNoSignal)
	}
	date := scores.Date()
	result.SignalDate = date
	result.CompletedStages = append(result.CompletedStages, StageSmoothing)

	store, err := o.source.Prices(ctx, o.Instruments(), date.AddDate(0, 0, -o.lookbackDays()), date)
	if err != nil {
		return result, fmt.Errorf("%s failed: %w", StageFeatures, err)
	}
	feats := features.Build(store, cfg)
	result.CompletedStages = append(result.CompletedStages, StageFeatures)

	book, err := o.previousBook(ctx)
	if err != nil {
		return result, fmt.Errorf("%s failed: %w", StagePositions, err)
	}
	result.CompletedStages = append(result.CompletedStages, StagePositions)

	// 라이브 결정은 항상 실행 (skip 추첨은 백테스트 전용)
	live := *cfg
	live.Execution.SkipProbability = 0
	controller, err := strategy.FromConfig(&live, source, feats, o.logger)
	if err != nil {
		return result, fmt.Errorf("%s failed: %w", StageWeights, err)
	}
	end := date.Add(24*time.Hour - time.Nanosecond)
	decision, err := controller.Decide(ctx, strategy.Step{Start: date, End: end, SignalStart: date, SignalEnd: end}, book, unitExchange{})
	if err != nil {
		return result, fmt.Errorf("%s failed: %w", StageWeights, err)
	}
	if decision.Degraded {
		return result, fmt.Errorf("%s failed: %s", StageWeights, decision.Reason)
	}
	weights, orders := o.applyOrders(book, decision.Orders)

	if cfg.Selection.TrendFilter.Enabled && feats.Trend != nil {
		scores = strategy.FilterByTrend(scores, feats.Trend, cfg.Selection.TrendFilter.Threshold, date)
	}
	if cfg.Portfolio.Regime.Enabled && feats.Regime != nil {
		if r, ok := feats.Regime.Ratio(date); ok {
			optimizer, err := portfolio.NewOptimizer(portfolio.ConfigFromStrategy(cfg.Portfolio))
			if err != nil {
				return result, fmt.Errorf("%s failed: %w", StageWeights, err)
			}
			result.RegimeRatio = &r
			result.Regime = optimizer.Regime(r)
		}
	}
	result.CompletedStages = append(result.CompletedStages, StageWeights)

	rec := signals.Recommend(cfg.Meta.StrategyID, scores, cfg.Selection.TopK, cfg.Selection.Buffer, weights, now)
	rec.Orders = orders
	rec.ConfigHash = o.configHash
	result.Recommendation = rec
	result.CompletedStages = append(result.CompletedStages, StageRecommend)

	if !config.DryRun {
		if err := o.persist(ctx, rec); err != nil {
			return result, fmt.Errorf("%s failed: %w", StagePersist, err)
		}
		result.CompletedStages = append(result.CompletedStages, StagePersist)
	}

	result.Duration = time.Since(startTime)
	o.logger.WithFields(map[string]interface{}{
		"signal_date":  contracts.DateKey(date),
		"top_k":        rec.TopK,
		"holdings":     len(weights),
		"orders":       len(orders),
		"total_weight": weights.Sum(),
		"regime":       result.Regime,
		"duration":     result.Duration.Seconds(),
	}).Info("Signal run completed")

	return result, nil
}

// previousBook loads the latest saved weights as a unit-value book.
// No loader or no saved row means an empty book of cash 1.
func (o *Orchestrator) previousBook(ctx context.Context) (contracts.PositionSnapshot, error) {
	empty := contracts.NewPositionSnapshot(1, nil)
	if o.weightLoader == nil {
		return empty, nil
	}

	date, weights, err := o.weightLoader.LatestTargetWeights(ctx, o.config.Meta.StrategyID)
	if portfolio.IsNotFound(err) {
		o.logger.Info("No saved weights, starting from cash")
		return empty, nil
	}
	if err != nil {
		return empty, err
	}

	o.logger.WithFields(map[string]interface{}{
		"weights_date": contracts.DateKey(date),
		"holdings":     len(weights),
	}).Debug("Loaded previous book")
	return bookFromWeights(weights), nil
}

// applyOrders deals the decision into the book and returns the resulting
// weights with the orders that filled. Orders the book cannot fill are
// logged and dropped.
func (o *Orchestrator) applyOrders(book contracts.PositionSnapshot, orders []contracts.Order) (contracts.TargetWeights, []contracts.Order) {
	working := book.Working()
	ex := unitExchange{}

	filled := make([]contracts.Order, 0, len(orders))
	for _, order := range sellsFirst(orders) {
		if _, err := ex.DealOrder(order, working); err != nil {
			o.logger.WithError(err).WithField("order", order.String()).Warn("order dropped")
			continue
		}
		filled = append(filled, order)
	}
	return weightsOf(working), filled
}

// persist saves weights and caches the recommendation. Cache failures are
// logged only; the cache is rebuilt on the next run.
func (o *Orchestrator) persist(ctx context.Context, rec *contracts.Recommendation) error {
	if o.weightSaver != nil {
		if err := o.weightSaver.SaveTargetWeights(ctx, rec.StrategyID, rec.SignalDate, rec.Weights); err != nil {
			return err
		}
	}
	if o.cache != nil {
		if err := o.cache.Put(ctx, rec); err != nil {
			o.logger.WithError(err).Warn("failed to cache recommendation")
		}
	}
	return nil
}

// Backtest runs the strategy over its configured window and saves the summary
func (o *Orchestrator) Backtest(ctx context.Context) (*backtest.Report, error) {
	cfg := o.config
	btConfig, err := backtest.ConfigFromStrategy(cfg)
	if err != nil {
		return nil, err
	}

	preds, err := o.source.Predictions(ctx, time.Time{}, btConfig.EndDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load predictions: %w", err)
	}
	source := signals.NewSeriesSource(signals.Smooth(preds, cfg.Signal.SmoothingHalflife))

	from := btConfig.StartDate
	if !from.IsZero() {
		from = from.AddDate(0, 0, -o.lookbackDays())
	}
	store, err := o.source.Prices(ctx, o.Instruments(), from, btConfig.EndDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load prices: %w", err)
	}

	controller, err := strategy.FromConfig(cfg, source, features.Build(store, cfg), o.logger)
	if err != nil {
		return nil, err
	}

	engine := backtest.NewEngine(store, o.metrics, o.logger)
	report, err := engine.Run(ctx, controller, btConfig)
	if err != nil {
		return nil, err
	}

	if o.runSaver != nil && report.Summary != nil {
		run := audit.RunRecord{
			RunID:      RunID(cfg.Meta.StrategyID, time.Now()),
			StrategyID: cfg.Meta.StrategyID,
			ConfigHash: o.configHash,
			Report:     report.Summary,
		}
		if err := o.runSaver.SaveRun(ctx, run); err != nil {
			return report, fmt.Errorf("failed to save backtest run: %w", err)
		}
	}
	return report, nil
}

// RunID names a run by strategy and wall-clock time
func RunID(strategyID string, t time.Time) string {
	return fmt.Sprintf("%s-%s", strategyID, t.UTC().Format("20060102-150405"))
}

// Instruments is the universe plus the benchmark
func (o *Orchestrator) Instruments() []string {
	ids := append([]string(nil), o.config.Universe.Instruments...)
	if b := o.config.Universe.Benchmark; b != "" {
		found := false
		for _, id := range ids {
			found = found || id == b
		}
		if !found {
			ids = append(ids, b)
		}
	}
	return ids
}

// lookbackDays is the calendar span loaded ahead of a window so the
// longest rolling feature is complete on its first day.
func (o *Orchestrator) lookbackDays() int {
	p := o.config.Portfolio
	window := max(p.VolatilityWindow+1, o.config.Selection.TrendFilter.MAWindow, p.Regime.MAWindow)
	return window*2 + 10
}
