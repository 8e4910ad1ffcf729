package strategy

import (
	"fmt"
	"math/rand"

	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/internal/execution"
	"github.com/wonny/aegis-etf/internal/portfolio"
	"github.com/wonny/aegis-etf/internal/strategyconfig"
	"github.com/wonny/aegis-etf/pkg/logger"
)

// Features are the precomputed series a strategy config may ask for
type Features struct {
	Volatility contracts.FeatureLookup
	Trend      contracts.FeatureLookup
	Regime     contracts.RegimeLookup
}

// FromConfig wires optimizer, execution model and controller from a
// validated strategy config. Features the config disables are ignored.
func FromConfig(cfg *strategyconfig.Config, signals contracts.SignalSource, features Features, log *logger.Logger) (*Controller, error) {
	optimizer, err := portfolio.NewOptimizer(portfolio.ConfigFromStrategy(cfg.Portfolio))
	if err != nil {
		return nil, fmt.Errorf("failed to create optimizer: %w", err)
	}

	model, err := execution.NewModel(execution.ConfigFromStrategy(cfg.Selection), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution model: %w", err)
	}

	opts := Options{
		TopK:            cfg.Selection.TopK,
		SkipProbability: cfg.Execution.SkipProbability,
	}
	if cfg.Portfolio.RiskParity {
		opts.Volatility = features.Volatility
	}
	if cfg.Portfolio.TargetVol > 0 {
		tv := cfg.Portfolio.TargetVol
		opts.TargetVol = &tv
	}
	if cfg.Portfolio.Regime.Enabled {
		opts.Regime = features.Regime
	}
	if cfg.Selection.TrendFilter.Enabled {
		opts.Trend = features.Trend
		opts.TrendThreshold = cfg.Selection.TrendFilter.Threshold
	}
	if opts.SkipProbability > 0 {
		opts.Rand = rand.New(rand.NewSource(cfg.Execution.Seed))
	}

	return NewController(optimizer, model, signals, opts, log)
}
