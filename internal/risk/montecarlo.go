package risk

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

var (
	ErrInsufficientData = errors.New("insufficient data for simulation")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// Method is the Monte Carlo sampling method
type Method string

const (
	MethodBootstrap Method = "historical_bootstrap" // 과거 일수익률 복원추출
	MethodNormal    Method = "parametric_normal"    // 정규분포 가정
)

// MonteCarloConfig holds simulation settings.
// ⭐ SSOT: 재현성을 위해 모든 설정을 결과에 기록
type MonteCarloConfig struct {
	Method         Method `json:"method"`
	NumSimulations int    `json:"num_simulations"`
	HoldingPeriod  int    `json:"holding_period"` // 거래일
	Seed           int64  `json:"seed"`           // 0 = 랜덤
	MinSamples     int    `json:"min_samples"`    // fail-closed
}

// DefaultMonteCarloConfig returns 10k bootstrap paths over 5 days
func DefaultMonteCarloConfig() MonteCarloConfig {
	return MonteCarloConfig{
		Method:         MethodBootstrap,
		NumSimulations: 10000,
		HoldingPeriod:  5,
		MinSamples:     30,
	}
}

// MonteCarloResult summarizes the simulated holding-period returns
type MonteCarloResult struct {
	Config      MonteCarloConfig `json:"config"`
	Samples     int              `json:"samples"` // 입력 일수익률 수
	Mean        float64          `json:"mean"`
	StdDev      float64          `json:"std_dev"`
	VaR95       VaRResult        `json:"var_95"`
	VaR99       VaRResult        `json:"var_99"`
	Percentiles map[int]float64  `json:"percentiles"`
}

var percentileLevels = []int{1, 5, 10, 25, 50, 75, 90, 95, 99}

// MonteCarlo simulates holding-period returns from daily returns.
// Fewer than MinSamples inputs fail closed with ErrInsufficientData.
func MonteCarlo(returns []float64, cfg MonteCarloConfig) (*MonteCarloResult, error) {
	if cfg.NumSimulations <= 0 || cfg.HoldingPeriod <= 0 {
		return nil, fmt.Errorf("%w: simulations and holding period must be > 0", ErrInvalidConfig)
	}
	if len(returns) < max(cfg.MinSamples, 2) {
		return nil, fmt.Errorf("%w: %d samples, need %d", ErrInsufficientData, len(returns), max(cfg.MinSamples, 2))
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	sims := make([]float64, cfg.NumSimulations)
	switch cfg.Method {
	case MethodBootstrap, "":
		for i := range sims {
			cum := 1.0
			for d := 0; d < cfg.HoldingPeriod; d++ {
				cum *= 1 + returns[rng.Intn(len(returns))]
			}
			sims[i] = cum - 1
		}
	case MethodNormal:
		mean, std := stat.MeanStdDev(returns, nil)
		h := float64(cfg.HoldingPeriod)
		for i := range sims {
			sims[i] = mean*h + std*math.Sqrt(h)*rng.NormFloat64()
		}
	default:
		return nil, fmt.Errorf("%w: unknown method %q", ErrInvalidConfig, cfg.Method)
	}

	sort.Float64s(sims)
	mean, std := stat.MeanStdDev(sims, nil)

	percentiles := make(map[int]float64, len(percentileLevels))
	for _, p := range percentileLevels {
		percentiles[p] = stat.Quantile(float64(p)/100, stat.Empirical, sims, nil)
	}

	return &MonteCarloResult{
		Config:      cfg,
		Samples:     len(returns),
		Mean:        mean,
		StdDev:      std,
		VaR95:       Historical(sims, 0.95),
		VaR99:       Historical(sims, 0.99),
		Percentiles: percentiles,
	}, nil
}
