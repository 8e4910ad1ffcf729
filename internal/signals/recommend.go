package signals

import (
	"time"

	"github.com/wonny/aegis-etf/internal/contracts"
)

// Recommend ranks the latest scores and marks the Top-K picks and the
// buffer names at sorted positions TopK+1..TopK+buffer. weights may be
// nil; an instrument with a positive weight is marked held.
func Recommend(strategyID string, scores *contracts.ScoreSet, topK, buffer int, weights contracts.TargetWeights, now time.Time) *contracts.Recommendation {
	rec := &contracts.Recommendation{
		StrategyID:  strategyID,
		GeneratedAt: now,
		Weights:     weights,
	}
	if scores.Len() == 0 {
		return rec
	}

	rec.SignalDate = scores.Date()
	rec.TopK = scores.TopK(topK)

	ranks := scores.DenseRank()
	for i, id := range scores.Sorted() {
		score, _ := scores.Score(id)
		rec.Ranking = append(rec.Ranking, contracts.RankedInstrument{
			Instrument: id,
			Score:      score,
			Rank:       ranks[id],
			Selected:   i < topK,
			Buffer:     i >= topK && i < topK+buffer,
			Held:       weights[id] > 0,
			Weight:     weights[id],
		})
	}
	return rec
}
