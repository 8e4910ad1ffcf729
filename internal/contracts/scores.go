package contracts

import (
	"math"
	"sort"
	"time"
)

// PredictionScore is one model prediction for an instrument on a date.
// Higher means more attractive.
type PredictionScore struct {
	Date       time.Time `json:"date"`
	Instrument string    `json:"instrument"`
	Score      float64   `json:"score"`
}

// ScoreSet holds the scores of a single date keyed by instrument.
// ⭐ 불변: 생성 후 수정 불가, Filter는 새 ScoreSet 반환
type ScoreSet struct {
	date   time.Time
	scores map[string]float64
}

// NewScoreSet copies scores into a new set. NaN and infinite scores are dropped.
func NewScoreSet(date time.Time, scores map[string]float64) *ScoreSet {
	s := &ScoreSet{date: date, scores: make(map[string]float64, len(scores))}
	for id, v := range scores {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		s.scores[id] = v
	}
	return s
}

// Date returns the signal date.
func (s *ScoreSet) Date() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.date
}

// Len returns the number of scored instruments.
func (s *ScoreSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.scores)
}

// Score returns the score of id.
func (s *ScoreSet) Score(id string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	v, ok := s.scores[id]
	return v, ok
}

// Map returns a copy of the underlying scores.
func (s *ScoreSet) Map() map[string]float64 {
	if s == nil {
		return map[string]float64{}
	}
	out := make(map[string]float64, len(s.scores))
	for id, v := range s.scores {
		out[id] = v
	}
	return out
}

// Sorted returns instruments by score descending, ties by id ascending.
// A nil set has no instruments.
func (s *ScoreSet) Sorted() []string {
	if s == nil {
		return []string{}
	}
	ids := make([]string, 0, len(s.scores))
	for id := range s.scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.scores[ids[i]], s.scores[ids[j]]
		if a != b {
			return a > b
		}
		return ids[i] < ids[j]
	})
	return ids
}

// DenseRank ranks the highest score 1. Equal scores share a rank and
// ranks are consecutive.
func (s *ScoreSet) DenseRank() map[string]int {
	if s == nil {
		return map[string]int{}
	}
	ranks := make(map[string]int, len(s.scores))
	rank := 0
	prev := math.NaN()
	for _, id := range s.Sorted() {
		v := s.scores[id]
		if rank == 0 || v != prev {
			rank++
			prev = v
		}
		ranks[id] = rank
	}
	return ranks
}

// TopK returns the first k instruments of Sorted.
func (s *ScoreSet) TopK(k int) []string {
	sorted := s.Sorted()
	if k < 0 {
		k = 0
	}
	if k < len(sorted) {
		sorted = sorted[:k]
	}
	return sorted
}

// Filter returns a new set with the instruments keep accepts.
func (s *ScoreSet) Filter(keep func(id string, score float64) bool) *ScoreSet {
	if s == nil {
		return &ScoreSet{scores: map[string]float64{}}
	}
	out := &ScoreSet{date: s.date, scores: make(map[string]float64, len(s.scores))}
	for id, v := range s.scores {
		if keep(id, v) {
			out.scores[id] = v
		}
	}
	return out
}
