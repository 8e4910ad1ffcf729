package contracts

import (
	"math"
	"sort"
	"time"
)

// DateLayout is the calendar key format used across series and tables.
const DateLayout = "2006-01-02"

// DateKey normalizes a timestamp to its calendar date.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// FeatureSeries is a read-only (date, instrument) → value table.
type FeatureSeries struct {
	values map[string]map[string]float64
}

// NewFeatureSeries creates an empty series.
func NewFeatureSeries() *FeatureSeries {
	return &FeatureSeries{values: make(map[string]map[string]float64)}
}

// Set stores a value. NaN values are ignored.
func (f *FeatureSeries) Set(date time.Time, id string, v float64) {
	if math.IsNaN(v) {
		return
	}
	key := DateKey(date)
	row, ok := f.values[key]
	if !ok {
		row = make(map[string]float64)
		f.values[key] = row
	}
	row[id] = v
}

// Lookup implements FeatureLookup.
func (f *FeatureSeries) Lookup(date time.Time, id string) (float64, bool) {
	if f == nil {
		return 0, false
	}
	v, ok := f.values[DateKey(date)][id]
	return v, ok
}

// Len returns the number of dates.
func (f *FeatureSeries) Len() int { return len(f.values) }

// RegimeSeries is a read-only date → ratio table.
type RegimeSeries struct {
	values map[string]float64
}

// NewRegimeSeries creates an empty series.
func NewRegimeSeries() *RegimeSeries {
	return &RegimeSeries{values: make(map[string]float64)}
}

// Set stores a ratio. NaN values are ignored.
func (r *RegimeSeries) Set(date time.Time, v float64) {
	if math.IsNaN(v) {
		return
	}
	r.values[DateKey(date)] = v
}

// Ratio implements RegimeLookup.
func (r *RegimeSeries) Ratio(date time.Time) (float64, bool) {
	if r == nil {
		return 0, false
	}
	v, ok := r.values[DateKey(date)]
	return v, ok
}

// Dates returns the stored dates in order.
func (r *RegimeSeries) Dates() []string {
	out := make([]string, 0, len(r.values))
	for k := range r.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
