package data

import (
	"sort"
	"sync"
	"time"

	"github.com/wonny/aegis-etf/internal/contracts"
)

// Bar is one daily OHLCV record of an instrument.
// Factor is the adjustment factor used for trade-unit rounding (1 when unknown).
type Bar struct {
	Date       time.Time `json:"date"`
	Instrument string    `json:"instrument"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
	Factor     float64   `json:"factor"`
}

// MemoryStore keeps daily bars in memory, indexed by instrument and date.
// ⭐ SSOT: 시뮬레이터/피처가 읽는 가격 저장소
type MemoryStore struct {
	mu    sync.RWMutex
	bars  map[string]map[string]Bar // instrument -> date key -> bar
	order map[string][]time.Time    // instrument -> sorted dates
	dates map[string]time.Time      // calendar
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bars:  make(map[string]map[string]Bar),
		order: make(map[string][]time.Time),
		dates: make(map[string]time.Time),
	}
}

// Add inserts or replaces bars.
func (s *MemoryStore) Add(bars ...Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[string]bool)
	for _, b := range bars {
		if b.Factor <= 0 {
			b.Factor = 1
		}
		key := contracts.DateKey(b.Date)
		rows, ok := s.bars[b.Instrument]
		if !ok {
			rows = make(map[string]Bar)
			s.bars[b.Instrument] = rows
		}
		if _, exists := rows[key]; !exists {
			touched[b.Instrument] = true
		}
		rows[key] = b
		s.dates[key] = dayOf(b.Date)
	}

	for id := range touched {
		rows := s.bars[id]
		dates := make([]time.Time, 0, len(rows))
		for _, b := range rows {
			dates = append(dates, dayOf(b.Date))
		}
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
		s.order[id] = dates
	}
}

// Bar returns the bar of an instrument on a calendar date.
func (s *MemoryStore) Bar(id string, date time.Time) (Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bars[id][contracts.DateKey(date)]
	return b, ok
}

// PrevClose returns the close of the last bar strictly before date.
func (s *MemoryStore) PrevClose(id string, date time.Time) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dates := s.order[id]
	day := dayOf(date)
	i := sort.Search(len(dates), func(i int) bool { return !dates[i].Before(day) })
	if i == 0 {
		return 0, false
	}
	b := s.bars[id][contracts.DateKey(dates[i-1])]
	return b.Close, b.Close > 0
}

// Dates returns the sorted calendar of all instruments inside [start, end].
// A zero start or end leaves that side unbounded.
func (s *MemoryStore) Dates(start, end time.Time) []time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]time.Time, 0, len(s.dates))
	for _, d := range s.dates {
		if !start.IsZero() && d.Before(dayOf(start)) {
			continue
		}
		if !end.IsZero() && d.After(dayOf(end)) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Instruments returns the stored instrument ids in order.
func (s *MemoryStore) Instruments() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.bars))
	for id := range s.bars {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Closes returns the close series of an instrument in date order.
func (s *MemoryStore) Closes(id string) ([]time.Time, []float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dates := s.order[id]
	closes := make([]float64, len(dates))
	for i, d := range dates {
		closes[i] = s.bars[id][contracts.DateKey(d)].Close
	}
	out := make([]time.Time, len(dates))
	copy(out, dates)
	return out, closes
}

// Len returns the number of stored bars.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rows := range s.bars {
		n += len(rows)
	}
	return n
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
