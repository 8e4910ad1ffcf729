package features

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/internal/strategy"
	"github.com/wonny/aegis-etf/internal/strategyconfig"
)

// CloseSource provides an instrument's close series in date order
type CloseSource interface {
	Closes(id string) ([]time.Time, []float64)
}

// Volatility computes the rolling sample std of daily close-to-close
// returns over window. A date gets a value only once window returns exist.
func Volatility(src CloseSource, instruments []string, window int) *contracts.FeatureSeries {
	out := contracts.NewFeatureSeries()
	if window < 2 {
		return out
	}
	for _, id := range instruments {
		dates, closes := src.Closes(id)
		if len(closes) < 2 {
			continue
		}
		rets := make([]float64, len(closes)-1)
		for i := 1; i < len(closes); i++ {
			if closes[i-1] <= 0 {
				rets[i-1] = 0
				continue
			}
			rets[i-1] = closes[i]/closes[i-1] - 1
		}
		for i := window - 1; i < len(rets); i++ {
			out.Set(dates[i+1], id, stat.StdDev(rets[i-window+1:i+1], nil))
		}
	}
	return out
}

// TrendRatio computes close / mean(close, window) per instrument.
func TrendRatio(src CloseSource, instruments []string, window int) *contracts.FeatureSeries {
	out := contracts.NewFeatureSeries()
	for _, id := range instruments {
		dates, ratios := maRatio(src, id, window)
		for i, d := range dates {
			out.Set(d, id, ratios[i])
		}
	}
	return out
}

// RegimeRatio computes the benchmark close / mean(close, window).
func RegimeRatio(src CloseSource, benchmark string, window int) *contracts.RegimeSeries {
	out := contracts.NewRegimeSeries()
	dates, ratios := maRatio(src, benchmark, window)
	for i, d := range dates {
		out.Set(d, ratios[i])
	}
	return out
}

// maRatio returns close/MA for every date with a full window
func maRatio(src CloseSource, id string, window int) ([]time.Time, []float64) {
	if window < 1 {
		return nil, nil
	}
	dates, closes := src.Closes(id)
	if len(closes) < window {
		return nil, nil
	}

	outDates := make([]time.Time, 0, len(closes)-window+1)
	ratios := make([]float64, 0, len(closes)-window+1)
	for i := window - 1; i < len(closes); i++ {
		ma := stat.Mean(closes[i-window+1:i+1], nil)
		if ma <= 0 {
			continue
		}
		outDates = append(outDates, dates[i])
		ratios = append(ratios, closes[i]/ma)
	}
	return outDates, ratios
}

// Build computes the series a strategy config enables
func Build(src CloseSource, cfg *strategyconfig.Config) strategy.Features {
	var f strategy.Features
	instruments := cfg.Universe.Instruments

	if cfg.Portfolio.RiskParity {
		f.Volatility = Volatility(src, instruments, cfg.Portfolio.VolatilityWindow)
	}
	if cfg.Selection.TrendFilter.Enabled {
		f.Trend = TrendRatio(src, instruments, cfg.Selection.TrendFilter.MAWindow)
	}
	if cfg.Portfolio.Regime.Enabled {
		f.Regime = RegimeRatio(src, cfg.Universe.Benchmark, cfg.Portfolio.Regime.MAWindow)
	}
	return f
}
