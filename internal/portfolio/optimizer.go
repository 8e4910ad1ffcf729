package portfolio

import (
	"fmt"
	"math"
	"time"

	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/internal/strategyconfig"
)

// tradingDaysPerYear annualizes daily volatility.
const tradingDaysPerYear = 252

// Config defines weighting parameters
type Config struct {
	RiskDegree  float64 // 최종 총 노출 비율 (0, 1]
	FallbackVol float64 // 변동성 결측 시 대체값
	RiskParity  bool    // false면 동일 비중
	Regime      RegimeConfig
}

// RegimeConfig defines the bull/bear volatility targets and the trend cap
type RegimeConfig struct {
	BullThreshold float64
	BearThreshold float64
	BullTargetVol float64
	BearTargetVol float64

	TrendCapEnabled bool
	CapFloorRatio   float64
	CapFullRatio    float64
}

// DefaultConfig returns the reference weighting parameters
func DefaultConfig() Config {
	return Config{
		RiskDegree:  0.95,
		FallbackVol: 0.02,
		RiskParity:  true,
		Regime: RegimeConfig{
			BullThreshold:   1.0,
			BearThreshold:   1.0,
			BullTargetVol:   0.30,
			BearTargetVol:   0.06,
			TrendCapEnabled: true,
			CapFloorRatio:   0.97,
			CapFullRatio:    1.03,
		},
	}
}

// ConfigFromStrategy maps the portfolio section of a strategy config
func ConfigFromStrategy(p strategyconfig.Portfolio) Config {
	return Config{
		RiskDegree:  p.RiskDegree,
		FallbackVol: p.FallbackVol,
		RiskParity:  p.RiskParity,
		Regime: RegimeConfig{
			BullThreshold:   p.Regime.BullThreshold,
			BearThreshold:   p.Regime.BearThreshold,
			BullTargetVol:   p.Regime.BullTargetVol,
			BearTargetVol:   p.Regime.BearTargetVol,
			TrendCapEnabled: p.Regime.TrendCap.Enabled,
			CapFloorRatio:   p.Regime.TrendCap.FloorRatio,
			CapFullRatio:    p.Regime.TrendCap.FullRatio,
		},
	}
}

// WeightRequest is the input of one weighting call.
// Volatility, TargetVol and RegimeRatio are optional.
type WeightRequest struct {
	Candidates  []string
	Date        time.Time
	Volatility  contracts.FeatureLookup
	TargetVol   *float64
	RegimeRatio *float64
}

// Optimizer turns a candidate list into target weights
// ⭐ SSOT: 비중 산출 로직은 여기서만 (상태 없음)
type Optimizer struct {
	config Config
}

// NewOptimizer validates config and creates an optimizer
func NewOptimizer(config Config) (*Optimizer, error) {
	if err := validate(config); err != nil {
		return nil, err
	}
	return &Optimizer{config: config}, nil
}

func validate(c Config) error {
	if c.RiskDegree <= 0 || c.RiskDegree > 1 {
		return strategyconfig.ValidationError{Field: "portfolio.risk_degree", Message: "must be in (0, 1]"}
	}
	if c.FallbackVol <= 0 {
		return strategyconfig.ValidationError{Field: "portfolio.fallback_vol", Message: "must be > 0"}
	}
	r := c.Regime
	if r.BullThreshold < r.BearThreshold {
		return strategyconfig.ValidationError{Field: "portfolio.regime", Message: "bull_threshold must be >= bear_threshold"}
	}
	if r.BullTargetVol <= 0 || r.BearTargetVol <= 0 {
		return strategyconfig.ValidationError{Field: "portfolio.regime", Message: "target vols must be > 0"}
	}
	if r.TrendCapEnabled && r.CapFloorRatio >= r.CapFullRatio {
		return strategyconfig.ValidationError{Field: "portfolio.regime.trend_cap", Message: "floor_ratio must be < full_ratio"}
	}
	return nil
}

// Config returns the optimizer parameters
func (o *Optimizer) Config() Config { return o.config }

// CalculateWeights implements the weighting pipeline:
// base allocation → target-volatility scaling (regime aware) → trend cap → risk degree.
// Missing data never fails; it falls back.
func (o *Optimizer) CalculateWeights(req WeightRequest) contracts.TargetWeights {
	weights := make(contracts.TargetWeights, len(req.Candidates))
	if len(req.Candidates) == 0 {
		return weights
	}

	avgVol := o.baseWeights(req, weights)

	if req.TargetVol != nil && avgVol > 0 {
		target := o.effectiveTarget(*req.TargetVol, req.RegimeRatio)
		annVol := avgVol * math.Sqrt(tradingDaysPerYear)
		if annVol > target {
			scale(weights, target/annVol)
		}
	}

	if req.RegimeRatio != nil && o.config.Regime.TrendCapEnabled {
		limit := o.TrendCap(*req.RegimeRatio)
		if sum := weights.Sum(); sum > limit {
			if sum > 0 {
				scale(weights, limit/sum)
			}
		}
	}

	scale(weights, o.config.RiskDegree)
	return weights
}

// baseWeights fills inverse-volatility (or equal) weights and returns the
// mean volatility used, or 0 when no volatility lookup was given.
func (o *Optimizer) baseWeights(req WeightRequest, weights contracts.TargetWeights) float64 {
	if req.Volatility == nil || !o.config.RiskParity {
		equal(req.Candidates, weights)
		return 0
	}

	vols := make([]float64, len(req.Candidates))
	invSum, volSum := 0.0, 0.0
	for i, id := range req.Candidates {
		v, ok := req.Volatility.Lookup(req.Date, id)
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			v = o.config.FallbackVol
		}
		vols[i] = v
		invSum += 1 / v
		volSum += v
	}

	if invSum == 0 || math.IsInf(invSum, 0) {
		equal(req.Candidates, weights)
	} else {
		for i, id := range req.Candidates {
			weights[id] = (1 / vols[i]) / invSum
		}
	}
	return volSum / float64(len(vols))
}

// effectiveTarget applies the bull/bear asymmetry to the configured target.
// Between the thresholds the configured target is used unchanged.
func (o *Optimizer) effectiveTarget(targetVol float64, ratio *float64) float64 {
	if ratio == nil {
		return targetVol
	}
	r := o.config.Regime
	switch {
	case *ratio >= r.BullThreshold:
		return math.Max(targetVol, r.BullTargetVol)
	case *ratio <= r.BearThreshold:
		return math.Min(targetVol, r.BearTargetVol)
	default:
		return targetVol
	}
}

// TrendCap maps a regime ratio linearly onto [0, 1] between the floor and full ratios.
func (o *Optimizer) TrendCap(ratio float64) float64 {
	r := o.config.Regime
	c := (ratio - r.CapFloorRatio) / (r.CapFullRatio - r.CapFloorRatio)
	return math.Max(0, math.Min(1, c))
}

// Regime labels a ratio as bull, bear or neutral.
func (o *Optimizer) Regime(ratio float64) string {
	r := o.config.Regime
	switch {
	case ratio >= r.BullThreshold:
		return "bull"
	case ratio <= r.BearThreshold:
		return "bear"
	default:
		return "neutral"
	}
}

func equal(ids []string, weights contracts.TargetWeights) {
	w := 1.0 / float64(len(ids))
	for _, id := range ids {
		weights[id] = w
	}
}

func scale(weights contracts.TargetWeights, f float64) {
	for id := range weights {
		weights[id] *= f
	}
}

// String is used in logs.
func (c Config) String() string {
	return fmt.Sprintf("risk_degree=%.2f fallback_vol=%.3f risk_parity=%t", c.RiskDegree, c.FallbackVol, c.RiskParity)
}
