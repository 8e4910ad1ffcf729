package collector

import (
	"time"

	"github.com/wonny/aegis-etf/internal/data"
)

// QualityConfig holds the coverage thresholds of a collection run
type QualityConfig struct {
	MinPriceCoverage  float64 `yaml:"min_price_coverage"`  // 1.0 (100%)
	MinVolumeCoverage float64 `yaml:"min_volume_coverage"` // 0.95
}

// DefaultQualityConfig requires every instrument on the latest date
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		MinPriceCoverage:  1.0,
		MinVolumeCoverage: 0.95,
	}
}

// QualitySnapshot is the coverage of the latest trading date in a run
type QualitySnapshot struct {
	Date         time.Time          `json:"date"`
	Instruments  int                `json:"instruments"`
	Covered      int                `json:"covered"`
	Coverage     map[string]float64 `json:"coverage"`
	QualityScore float64            `json:"quality_score"`
	Missing      []string           `json:"missing,omitempty"`
	Passed       bool               `json:"passed"`
}

// CheckQuality scores the results against the latest date any instrument
// returned. Instruments without a bar on that date are missing.
// ⭐ SSOT: 수집 → 시그널 품질 검증
func CheckQuality(results []FetchResult, cfg QualityConfig) *QualitySnapshot {
	snap := &QualitySnapshot{
		Instruments: len(results),
		Coverage:    map[string]float64{"price": 0, "volume": 0},
	}

	for _, r := range results {
		for _, b := range r.Bars {
			if r.Error == nil && b.Date.After(snap.Date) {
				snap.Date = b.Date
			}
		}
	}
	if snap.Instruments == 0 || snap.Date.IsZero() {
		for _, r := range results {
			snap.Missing = append(snap.Missing, r.Instrument)
		}
		return snap
	}

	withVolume := 0
	for _, r := range results {
		bar, ok := barOn(r, snap.Date)
		if !ok {
			snap.Missing = append(snap.Missing, r.Instrument)
			continue
		}
		snap.Covered++
		if bar.Volume > 0 {
			withVolume++
		}
	}

	n := float64(snap.Instruments)
	snap.Coverage["price"] = float64(snap.Covered) / n
	snap.Coverage["volume"] = float64(withVolume) / n

	// 가중치 (합계 = 1.0)
	snap.QualityScore = 0.6*snap.Coverage["price"] + 0.4*snap.Coverage["volume"]
	snap.Passed = snap.Coverage["price"] >= cfg.MinPriceCoverage &&
		snap.Coverage["volume"] >= cfg.MinVolumeCoverage
	return snap
}

func barOn(r FetchResult, date time.Time) (data.Bar, bool) {
	if r.Error != nil {
		return data.Bar{}, false
	}
	for _, b := range r.Bars {
		if b.Date.Equal(date) {
			return b, true
		}
	}
	return data.Bar{}, false
}
