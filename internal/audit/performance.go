package audit

import (
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/aegis-etf/pkg/logger"
)

// TradingDays annualizes daily statistics.
const TradingDays = 252

// ErrNoData is returned when the report has no rows.
var ErrNoData = errors.New("no daily records to analyze")

// DailyReturn is one row of a daily report as seen by the analyzer
type DailyReturn struct {
	Date     time.Time
	Return   float64 // 수수료 차감 후 계좌 수익률
	Bench    float64
	Turnover float64
	Cost     float64 // 계좌가치 대비 비용 비율
	Value    float64
}

// RiskAnalysis holds additive-mode statistics of a daily return series
type RiskAnalysis struct {
	Mean             float64 `json:"mean"`
	Std              float64 `json:"std"`
	AnnualizedReturn float64 `json:"annualized_return"`
	InformationRatio float64 `json:"information_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"` // 누적합 기준, 0 이하
}

// PerformanceReport represents the performance summary of a run
type PerformanceReport struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Days      int       `json:"days"`

	// 수익률
	FinalValue  float64 `json:"final_value"`
	TotalReturn float64 `json:"total_return"` // 복리 누적
	BenchReturn float64 `json:"bench_return"`

	// 리스크 지표
	Strategy          RiskAnalysis `json:"strategy"`
	Benchmark         RiskAnalysis `json:"benchmark"`
	ExcessWithoutCost RiskAnalysis `json:"excess_return_without_cost"`
	ExcessWithCost    RiskAnalysis `json:"excess_return_with_cost"`

	// 트레이딩 지표
	WinRate            float64 `json:"win_rate"`
	AnnualizedTurnover float64 `json:"annualized_turnover"`
	TotalCost          float64 `json:"total_cost"`

	// 비교
	Beta  float64 `json:"beta"`
	Alpha float64 `json:"alpha"` // 연율화, 베타 조정
}

// Analyzer computes performance reports
// ⭐ SSOT: 성과 분석 로직은 여기서만
type Analyzer struct {
	logger *logger.Logger
}

// NewAnalyzer creates a new performance analyzer
func NewAnalyzer(log *logger.Logger) *Analyzer {
	return &Analyzer{logger: log}
}

// Analyze summarizes a daily report in date order
func (a *Analyzer) Analyze(rows []DailyReturn) (*PerformanceReport, error) {
	report, err := Analyze(rows)
	if err != nil {
		return nil, err
	}

	a.logger.WithFields(map[string]interface{}{
		"days":                report.Days,
		"total_return":        report.TotalReturn,
		"annualized_return":   report.Strategy.AnnualizedReturn,
		"information_ratio":   report.Strategy.InformationRatio,
		"max_drawdown":        report.Strategy.MaxDrawdown,
		"win_rate":            report.WinRate,
		"annualized_turnover": report.AnnualizedTurnover,
	}).Info("Performance analysis completed")

	return report, nil
}

// Analyze is the stateless form of Analyzer.Analyze
func Analyze(rows []DailyReturn) (*PerformanceReport, error) {
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	n := len(rows)
	ret := make([]float64, n)
	bench := make([]float64, n)
	turnover := make([]float64, n)
	cost := make([]float64, n)
	for i, r := range rows {
		ret[i] = r.Return
		bench[i] = r.Bench
		turnover[i] = r.Turnover
		cost[i] = r.Cost
	}

	// 수익률은 이미 비용 차감 후 값이므로 비용 전 초과수익은 비용을 되돌려 계산
	excessWithCost := make([]float64, n)
	floats.SubTo(excessWithCost, ret, bench)
	excessWithoutCost := make([]float64, n)
	floats.AddTo(excessWithoutCost, excessWithCost, cost)

	report := &PerformanceReport{
		StartDate:          rows[0].Date,
		EndDate:            rows[n-1].Date,
		Days:               n,
		FinalValue:         rows[n-1].Value,
		TotalReturn:        compound(ret),
		BenchReturn:        compound(bench),
		Strategy:           Risk(ret),
		Benchmark:          Risk(bench),
		ExcessWithoutCost:  Risk(excessWithoutCost),
		ExcessWithCost:     Risk(excessWithCost),
		WinRate:            winRate(ret),
		AnnualizedTurnover: stat.Mean(turnover, nil) * TradingDays,
		TotalCost:          floats.Sum(cost),
	}

	if v := stat.Variance(bench, nil); n > 1 && v > 0 {
		report.Beta = stat.Covariance(ret, bench, nil) / v
		report.Alpha = (stat.Mean(ret, nil) - report.Beta*stat.Mean(bench, nil)) * TradingDays
	}

	return report, nil
}

// Risk computes additive statistics: mean, sample std, mean·252,
// mean/std·√252 and the worst drop of the cumulative sum from its peak.
func Risk(returns []float64) RiskAnalysis {
	if len(returns) == 0 {
		return RiskAnalysis{}
	}

	ra := RiskAnalysis{Mean: stat.Mean(returns, nil)}
	if len(returns) > 1 {
		ra.Std = stat.StdDev(returns, nil)
	}
	ra.AnnualizedReturn = ra.Mean * TradingDays
	if ra.Std > 0 {
		ra.InformationRatio = ra.Mean / ra.Std * math.Sqrt(TradingDays)
	}
	ra.MaxDrawdown = maxDrawdown(returns)
	return ra
}

// maxDrawdown calculates the additive maximum drawdown
func maxDrawdown(returns []float64) float64 {
	cum := make([]float64, len(returns))
	floats.CumSum(cum, returns)

	peak := math.Inf(-1)
	maxDD := 0.0
	for _, c := range cum {
		peak = math.Max(peak, c)
		maxDD = math.Min(maxDD, c-peak)
	}
	return maxDD
}

// compound calculates cumulative return
func compound(returns []float64) float64 {
	cum := 1.0
	for _, r := range returns {
		cum *= 1 + r
	}
	return cum - 1
}

// winRate is the share of days with a positive return
func winRate(returns []float64) float64 {
	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(returns))
}
