package data

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/wonny/aegis-etf/internal/contracts"
)

// Source loads the price and prediction inputs of a run.
// Zero from/to times are unbounded.
type Source interface {
	Prices(ctx context.Context, instruments []string, from, to time.Time) (*MemoryStore, error)
	Predictions(ctx context.Context, from, to time.Time) ([]contracts.PredictionScore, error)
}

// FileSource reads bars.csv and predictions.csv from a directory
type FileSource struct {
	Dir string
}

// NewFileSource creates a CSV source rooted at dir
func NewFileSource(dir string) *FileSource {
	return &FileSource{Dir: dir}
}

// Prices loads the bar file and keeps only the requested instruments and window
func (s *FileSource) Prices(ctx context.Context, instruments []string, from, to time.Time) (*MemoryStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all, err := LoadBarsFile(filepath.Join(s.Dir, BarsFile))
	if err != nil {
		return nil, err
	}

	keep := make(map[string]bool, len(instruments))
	for _, id := range instruments {
		keep[id] = true
	}

	store := NewMemoryStore()
	for _, id := range all.Instruments() {
		if len(keep) > 0 && !keep[id] {
			continue
		}
		for _, d := range all.Dates(from, to) {
			if b, ok := all.Bar(id, d); ok {
				store.Add(b)
			}
		}
	}
	return store, nil
}

// Predictions loads the prediction file and keeps the window
func (s *FileSource) Predictions(ctx context.Context, from, to time.Time) ([]contracts.PredictionScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	preds, err := LoadPredictionsFile(filepath.Join(s.Dir, PredictionsFile))
	if err != nil {
		return nil, err
	}
	out := preds[:0]
	for _, p := range preds {
		d := dayOf(p.Date)
		if !from.IsZero() && d.Before(dayOf(from)) {
			continue
		}
		if !to.IsZero() && d.After(dayOf(to)) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// DBSource reads from the price and prediction tables
type DBSource struct {
	prices      *PriceRepository
	predictions *PredictionRepository
}

// NewDBSource creates a database-backed source
func NewDBSource(prices *PriceRepository, predictions *PredictionRepository) *DBSource {
	return &DBSource{prices: prices, predictions: predictions}
}

// Prices loads the bars of instruments within the window
func (s *DBSource) Prices(ctx context.Context, instruments []string, from, to time.Time) (*MemoryStore, error) {
	from, to = bounds(from, to)
	store, err := s.prices.LoadRange(ctx, instruments, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load prices: %w", err)
	}
	return store, nil
}

// Predictions loads stored model scores within the window
func (s *DBSource) Predictions(ctx context.Context, from, to time.Time) ([]contracts.PredictionScore, error) {
	from, to = bounds(from, to)
	preds, err := s.predictions.LoadRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load predictions: %w", err)
	}
	return preds, nil
}

// bounds replaces open ends with dates every table row falls inside
func bounds(from, to time.Time) (time.Time, time.Time) {
	if from.IsZero() {
		from = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if to.IsZero() {
		to = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	return from, to
}
