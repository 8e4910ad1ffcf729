package signals

import (
	"context"
	"sort"
	"time"

	"github.com/wonny/aegis-etf/internal/contracts"
)

// SeriesSource serves prediction records as per-date score sets
// ⭐ SSOT: 예측 레코드 → SignalSource
type SeriesSource struct {
	dates []time.Time
	sets  map[string]*contracts.ScoreSet
}

var _ contracts.SignalSource = (*SeriesSource)(nil)

// NewSeriesSource groups predictions by calendar date
func NewSeriesSource(preds []contracts.PredictionScore) *SeriesSource {
	byDate := make(map[string]map[string]float64)
	dates := make(map[string]time.Time)
	for _, p := range preds {
		key := contracts.DateKey(p.Date)
		row, ok := byDate[key]
		if !ok {
			row = make(map[string]float64)
			byDate[key] = row
			y, m, d := p.Date.Date()
			dates[key] = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		}
		row[p.Instrument] = p.Score
	}

	s := &SeriesSource{sets: make(map[string]*contracts.ScoreSet, len(byDate))}
	for key, row := range byDate {
		set := contracts.NewScoreSet(dates[key], row)
		if set.Len() == 0 {
			continue
		}
		s.sets[key] = set
		s.dates = append(s.dates, dates[key])
	}
	sort.Slice(s.dates, func(i, j int) bool { return s.dates[i].Before(s.dates[j]) })
	return s
}

// Signal returns the scores of the latest prediction date inside
// [start, end]. ErrNoSignal when the window is empty or unset.
func (s *SeriesSource) Signal(ctx context.Context, start, end time.Time) (*contracts.ScoreSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if start.IsZero() || end.IsZero() {
		return nil, contracts.ErrNoSignal
	}

	lo := dayOf(start)
	hi := dayOf(end)
	i := sort.Search(len(s.dates), func(i int) bool { return s.dates[i].After(hi) })
	if i == 0 || s.dates[i-1].Before(lo) {
		return nil, contracts.ErrNoSignal
	}
	return s.sets[contracts.DateKey(s.dates[i-1])], nil
}

// Latest returns the scores of the most recent date
func (s *SeriesSource) Latest() (*contracts.ScoreSet, bool) {
	if len(s.dates) == 0 {
		return nil, false
	}
	return s.sets[contracts.DateKey(s.dates[len(s.dates)-1])], true
}

// Dates returns the prediction dates in order
func (s *SeriesSource) Dates() []time.Time {
	out := make([]time.Time, len(s.dates))
	copy(out, s.dates)
	return out
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
