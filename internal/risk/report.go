package risk

import "errors"

// Report is the tail-risk section of a backtest
type Report struct {
	Days         int               `json:"days"`
	Historical95 VaRResult         `json:"historical_95"`
	Historical99 VaRResult         `json:"historical_99"`
	Parametric95 VaRResult         `json:"parametric_95"`
	MonteCarlo   *MonteCarloResult `json:"monte_carlo,omitempty"` // nil = 샘플 부족
}

// Analyze builds the report from daily returns. The Monte Carlo part is
// skipped on short histories; other errors are returned.
func Analyze(returns []float64, cfg MonteCarloConfig) (*Report, error) {
	report := &Report{
		Days:         len(returns),
		Historical95: Historical(returns, 0.95),
		Historical99: Historical(returns, 0.99),
		Parametric95: Parametric(returns, 0.95),
	}

	mc, err := MonteCarlo(returns, cfg)
	switch {
	case errors.Is(err, ErrInsufficientData):
	case err != nil:
		return nil, err
	default:
		report.MonteCarlo = mc
	}
	return report, nil
}
