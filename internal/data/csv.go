package data

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wonny/aegis-etf/internal/contracts"
)

// Default file names inside DATA_DIR.
const (
	BarsFile        = "bars.csv"
	PredictionsFile = "predictions.csv"
)

var barColumns = []string{"date", "instrument", "open", "high", "low", "close", "volume", "factor"}

// ReadBars parses a bar CSV with a header row.
// Required columns: date, instrument, open, close. high/low/volume/factor are optional.
func ReadBars(r io.Reader) ([]Bar, error) {
	rows, cols, err := readTable(r, "date", "instrument", "open", "close")
	if err != nil {
		return nil, err
	}

	bars := make([]Bar, 0, len(rows))
	for i, row := range rows {
		line := i + 2
		date, err := time.Parse(contracts.DateLayout, field(row, cols, "date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid date: %w", line, err)
		}
		b := Bar{
			Date:       date,
			Instrument: field(row, cols, "instrument"),
			Factor:     1,
		}
		values := map[string]*float64{
			"open": &b.Open, "high": &b.High, "low": &b.Low,
			"close": &b.Close, "volume": &b.Volume, "factor": &b.Factor,
		}
		for name, dst := range values {
			raw := field(row, cols, name)
			if raw == "" {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid %s: %w", line, name, err)
			}
			*dst = v
		}
		if b.High == 0 {
			b.High = max(b.Open, b.Close)
		}
		if b.Low == 0 {
			b.Low = min(b.Open, b.Close)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// WriteBars writes bars with the full header.
func WriteBars(w io.Writer, bars []Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(barColumns); err != nil {
		return err
	}
	for _, b := range bars {
		rec := []string{
			contracts.DateKey(b.Date), b.Instrument,
			formatFloat(b.Open), formatFloat(b.High), formatFloat(b.Low),
			formatFloat(b.Close), formatFloat(b.Volume), formatFloat(b.Factor),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadPredictions parses a prediction CSV with columns date, instrument, score.
// Rows with an empty score are skipped.
func ReadPredictions(r io.Reader) ([]contracts.PredictionScore, error) {
	rows, cols, err := readTable(r, "date", "instrument", "score")
	if err != nil {
		return nil, err
	}

	out := make([]contracts.PredictionScore, 0, len(rows))
	for i, row := range rows {
		line := i + 2
		raw := field(row, cols, "score")
		if raw == "" {
			continue
		}
		date, err := time.Parse(contracts.DateLayout, field(row, cols, "date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid date: %w", line, err)
		}
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid score: %w", line, err)
		}
		out = append(out, contracts.PredictionScore{
			Date:       date,
			Instrument: field(row, cols, "instrument"),
			Score:      score,
		})
	}
	return out, nil
}

// LoadBarsFile reads a bar CSV file into a new MemoryStore.
func LoadBarsFile(path string) (*MemoryStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bars: %w", err)
	}
	defer f.Close()

	bars, err := ReadBars(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	store := NewMemoryStore()
	store.Add(bars...)
	return store, nil
}

// LoadPredictionsFile reads a prediction CSV file.
func LoadPredictionsFile(path string) ([]contracts.PredictionScore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open predictions: %w", err)
	}
	defer f.Close()

	preds, err := ReadPredictions(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return preds, nil
}

func readTable(r io.Reader, required ...string) ([][]string, map[string]int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("empty csv")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, nil, fmt.Errorf("missing column %q", name)
		}
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return rows, cols, nil
}

func field(row []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// CSVSaver merges saved bars into a bar CSV file, so the collector can run
// without a database. Rows are keyed by (instrument, date); new bars win.
type CSVSaver struct {
	path string
	mu   sync.Mutex
}

// NewCSVSaver creates a saver for the given bars.csv path
func NewCSVSaver(path string) *CSVSaver {
	return &CSVSaver{path: path}
}

// SaveBatch implements collector.Saver
func (s *CSVSaver) SaveBatch(ctx context.Context, bars []Bar) error {
	if len(bars) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var existing []Bar
	if f, err := os.Open(s.path); err == nil {
		existing, err = ReadBars(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", s.path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to open bars: %w", err)
	}

	merged := mergeBars(existing, bars)

	// tmp 파일에 쓰고 rename
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if err := WriteBars(f, merged); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write bars: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.path)
}

// mergeBars overlays updates on base and sorts by instrument, then date
func mergeBars(base, updates []Bar) []Bar {
	byKey := make(map[string]Bar, len(base)+len(updates))
	for _, list := range [][]Bar{base, updates} {
		for _, b := range list {
			byKey[b.Instrument+"|"+contracts.DateKey(b.Date)] = b
		}
	}

	out := make([]Bar, 0, len(byKey))
	for _, b := range byKey {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Instrument != out[j].Instrument {
			return out[i].Instrument < out[j].Instrument
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out
}
