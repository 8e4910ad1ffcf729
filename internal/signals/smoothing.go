package signals

import (
	"math"
	"sort"

	"github.com/wonny/aegis-etf/internal/contracts"
)

// Alpha returns the EWMA decay of a halflife: 1 - exp(ln(0.5)/halflife).
func Alpha(halflife float64) float64 {
	return 1 - math.Exp(math.Log(0.5)/halflife)
}

// Smooth applies an adjusted EWMA to each instrument's score sequence in
// date order. The sequence is the instrument's own observations, so gaps
// in the calendar do not decay the average. halflife <= 0 returns a copy.
func Smooth(preds []contracts.PredictionScore, halflife float64) []contracts.PredictionScore {
	out := make([]contracts.PredictionScore, 0, len(preds))
	for _, p := range preds {
		if math.IsNaN(p.Score) || math.IsInf(p.Score, 0) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Instrument < out[j].Instrument
	})
	if halflife <= 0 {
		return out
	}

	decay := 1 - Alpha(halflife)
	type state struct{ num, den float64 }
	acc := make(map[string]*state)
	for i, p := range out {
		s, ok := acc[p.Instrument]
		if !ok {
			s = &state{}
			acc[p.Instrument] = s
		}
		s.num = p.Score + decay*s.num
		s.den = 1 + decay*s.den
		out[i].Score = s.num / s.den
	}
	return out
}
