package risk

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// VaRResult holds a VaR/CVaR pair.
// ⭐ SSOT: 손실을 양수로 표현 (VaR=0.05 → 신뢰수준에서 최대 5% 손실)
type VaRResult struct {
	Confidence float64 `json:"confidence"`
	VaR        float64 `json:"var"`
	CVaR       float64 `json:"cvar"` // Expected Shortfall
}

// Historical computes VaR/CVaR from the empirical return distribution.
// The tail holds ceil(n·(1-confidence)) observations, at least one.
func Historical(returns []float64, confidence float64) VaRResult {
	out := VaRResult{Confidence: confidence}
	if len(returns) == 0 {
		return out
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	// 1e-9: 0.95 → 1-c 의 부동소수 오차로 꼬리가 1개 늘어나는 것 방지
	tail := int(math.Ceil(float64(len(sorted))*(1-confidence) - 1e-9))
	tail = max(1, min(tail, len(sorted)))

	out.VaR = lossOf(sorted[tail-1])
	out.CVaR = lossOf(stat.Mean(sorted[:tail], nil))
	return out
}

// Parametric computes VaR/CVaR under a normal assumption
func Parametric(returns []float64, confidence float64) VaRResult {
	out := VaRResult{Confidence: confidence}
	if len(returns) < 2 || confidence <= 0 || confidence >= 1 {
		return out
	}

	mean, std := stat.MeanStdDev(returns, nil)
	z := distuv.UnitNormal.Quantile(confidence)

	out.VaR = math.Max(0, z*std-mean)
	out.CVaR = math.Max(0, std*distuv.UnitNormal.Prob(z)/(1-confidence)-mean)
	return out
}

func lossOf(r float64) float64 {
	if r < 0 {
		return -r
	}
	return 0
}
