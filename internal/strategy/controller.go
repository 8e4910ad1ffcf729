package strategy

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/internal/portfolio"
	"github.com/wonny/aegis-etf/internal/strategyconfig"
	"github.com/wonny/aegis-etf/pkg/logger"
)

// WeightCalculator produces target weights for a candidate list
type WeightCalculator interface {
	CalculateWeights(req portfolio.WeightRequest) contracts.TargetWeights
}

// OrderGenerator turns holdings, scores and weights into orders.
// TopK is the slot count it fills and must match the controller's.
type OrderGenerator interface {
	TopK() int
	GenerateOrders(
		pos contracts.PositionSnapshot,
		scores *contracts.ScoreSet,
		weights contracts.TargetWeights,
		ex contracts.Exchange,
		start, end time.Time,
	) []contracts.Order
}

// Step is one trading step. Signals for the step come from the previous
// calendar step's window.
type Step struct {
	Start       time.Time
	End         time.Time
	SignalStart time.Time
	SignalEnd   time.Time
}

// Options are the optional inputs of the controller
type Options struct {
	TopK int

	Volatility contracts.FeatureLookup // nil = 동일 비중
	TargetVol  *float64                // nil = 변동성 타겟팅 없음
	Regime     contracts.RegimeLookup  // nil = 레짐 입력 없음

	Trend          contracts.FeatureLookup // nil = 추세 필터 없음
	TrendThreshold float64

	SkipProbability float64
	Rand            *rand.Rand // SkipProbability > 0 일 때 필수 (시드 고정)
}

// Controller drives one decision per trading step
// ⭐ SSOT: 스텝 단위 의사결정 (시그널 → 비중 → 주문)
type Controller struct {
	optimizer WeightCalculator
	executor  OrderGenerator
	signals   contracts.SignalSource
	opts      Options
	logger    *logger.Logger
}

// NewController validates wiring and options before any step runs
func NewController(
	optimizer WeightCalculator,
	executor OrderGenerator,
	signals contracts.SignalSource,
	opts Options,
	log *logger.Logger,
) (*Controller, error) {
	switch {
	case optimizer == nil:
		return nil, errors.New("strategy: optimizer is required")
	case executor == nil:
		return nil, errors.New("strategy: execution model is required")
	case signals == nil:
		return nil, errors.New("strategy: signal source is required")
	}
	if opts.TopK <= 0 {
		return nil, strategyconfig.ValidationError{Field: "selection.topk", Message: "must be > 0"}
	}
	if k := executor.TopK(); k != opts.TopK {
		return nil, strategyconfig.ValidationError{
			Field:   "selection.topk",
			Message: fmt.Sprintf("controller weights %d names but execution model fills %d slots", opts.TopK, k),
		}
	}
	if opts.SkipProbability < 0 || opts.SkipProbability >= 1 {
		return nil, strategyconfig.ValidationError{Field: "execution.skip_probability", Message: "must be in [0, 1)"}
	}
	if opts.SkipProbability > 0 && opts.Rand == nil {
		return nil, strategyconfig.ValidationError{Field: "execution.seed", Message: "skip_probability requires a seeded random source"}
	}
	if opts.TargetVol != nil && *opts.TargetVol < 0 {
		return nil, strategyconfig.ValidationError{Field: "portfolio.target_vol", Message: "must be >= 0"}
	}

	return &Controller{
		optimizer: optimizer,
		executor:  executor,
		signals:   signals,
		opts:      opts,
		logger:    log.Component("strategy"),
	}, nil
}

// Decide produces the trade decision of one step.
// Data problems degrade to an empty decision; context errors are returned.
func (c *Controller) Decide(ctx context.Context, step Step, pos contracts.PositionSnapshot, ex contracts.Exchange) (*contracts.TradeDecision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := c.logger.WithStep(step.Start)

	scores, err := c.signals.Signal(ctx, step.SignalStart, step.SignalEnd)
	switch {
	case err == nil:
	case isContextErr(err):
		return nil, err
	case errors.Is(err, contracts.ErrNoSignal):
		log.Debug("no signal, holding")
		return contracts.Hold("no signal"), nil
	default:
		log.WithError(err).Warn("signal fetch failed, holding")
		return contracts.Degrade("signal fetch failed: " + err.Error()), nil
	}
	if scores.Len() == 0 {
		log.Debug("empty signal, holding")
		return contracts.Hold("empty signal"), nil
	}

	if c.opts.SkipProbability > 0 && len(pos.StockList()) > 0 && c.opts.Rand.Float64() < c.opts.SkipProbability {
		log.Debug("step skipped by draw")
		return contracts.Hold("random skip"), nil
	}

	return c.decide(log, step, scores, pos, ex), nil
}

// decide runs filter → weights → orders. A panic in any stage degrades the step.
func (c *Controller) decide(
	log *logger.Logger,
	step Step,
	scores *contracts.ScoreSet,
	pos contracts.PositionSnapshot,
	ex contracts.Exchange,
) (decision *contracts.TradeDecision) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", fmt.Sprint(r)).Error("decision failed, holding")
			decision = contracts.Degrade(fmt.Sprintf("decision failed: %v", r))
		}
	}()

	scores = c.applyTrendFilter(step.Start, scores)

	var ratio *float64
	if c.opts.Regime != nil {
		if r, ok := c.opts.Regime.Ratio(step.Start); ok {
			ratio = &r
		} else {
			log.Debug("regime ratio missing, no regime input")
		}
	}

	candidates := scores.TopK(c.opts.TopK)
	weights := c.optimizer.CalculateWeights(portfolio.WeightRequest{
		Candidates:  candidates,
		Date:        step.Start,
		Volatility:  c.opts.Volatility,
		TargetVol:   c.opts.TargetVol,
		RegimeRatio: ratio,
	})
	orders := c.executor.GenerateOrders(pos, scores, weights, ex, step.Start, step.End)

	fields := map[string]interface{}{
		"candidates":   len(candidates),
		"total_weight": weights.Sum(),
		"orders":       len(orders),
	}
	if ratio != nil {
		fields["regime_ratio"] = *ratio
	}
	log.WithFields(fields).Debug("step decided")

	return &contracts.TradeDecision{Orders: orders, Weights: weights}
}

// applyTrendFilter keeps instruments whose trend value is strictly above
// the threshold.
func (c *Controller) applyTrendFilter(date time.Time, scores *contracts.ScoreSet) *contracts.ScoreSet {
	if c.opts.Trend == nil {
		return scores
	}
	return FilterByTrend(scores, c.opts.Trend, c.opts.TrendThreshold, date)
}

// FilterByTrend drops instruments whose trend value on date is missing or
// not above threshold. It is a no-op when no scored instrument has a value.
func FilterByTrend(scores *contracts.ScoreSet, trend contracts.FeatureLookup, threshold float64, date time.Time) *contracts.ScoreSet {
	covered := false
	for _, id := range scores.Sorted() {
		if _, ok := trend.Lookup(date, id); ok {
			covered = true
			break
		}
	}
	if !covered {
		return scores
	}

	return scores.Filter(func(id string, _ float64) bool {
		v, ok := trend.Lookup(date, id)
		return ok && v > threshold
	})
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
