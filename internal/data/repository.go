package data

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-etf/internal/contracts"
)

// PriceRepository stores ETF daily bars in data.etf_daily_prices
// ⭐ SSOT: 가격 데이터 저장소는 여기서만
type PriceRepository struct {
	pool *pgxpool.Pool
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(pool *pgxpool.Pool) *PriceRepository {
	return &PriceRepository{pool: pool}
}

// SaveBatch upserts bars in a single round trip
func (r *PriceRepository) SaveBatch(ctx context.Context, bars []Bar) error {
	if len(bars) == 0 {
		return nil
	}

	query := `
		INSERT INTO data.etf_daily_prices
			(instrument, trade_date, open_price, high_price, low_price, close_price, volume, factor)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (instrument, trade_date) DO UPDATE SET
			open_price = EXCLUDED.open_price,
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			close_price = EXCLUDED.close_price,
			volume = EXCLUDED.volume,
			factor = EXCLUDED.factor,
			updated_at = NOW()
	`

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(query, b.Instrument, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume, b.Factor)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range bars {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert bar %s %s: %w",
				bars[i].Instrument, contracts.DateKey(bars[i].Date), err)
		}
	}
	return nil
}

// LoadRange loads the bars of the given instruments within [from, to] into a MemoryStore
func (r *PriceRepository) LoadRange(ctx context.Context, instruments []string, from, to time.Time) (*MemoryStore, error) {
	query := `
		SELECT instrument, trade_date, open_price, high_price, low_price, close_price, volume, factor
		FROM data.etf_daily_prices
		WHERE instrument = ANY($1) AND trade_date BETWEEN $2 AND $3
		ORDER BY instrument, trade_date
	`

	rows, err := r.pool.Query(ctx, query, instruments, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var bars []Bar
	for rows.Next() {
		var b Bar
		if err := rows.Scan(&b.Instrument, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Factor); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	store := NewMemoryStore()
	store.Add(bars...)
	return store, nil
}

// LatestDate returns the most recent stored trade date of an instrument.
// The zero time is returned when nothing is stored yet.
func (r *PriceRepository) LatestDate(ctx context.Context, instrument string) (time.Time, error) {
	var latest *time.Time
	err := r.pool.QueryRow(ctx,
		"SELECT MAX(trade_date) FROM data.etf_daily_prices WHERE instrument = $1",
		instrument,
	).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest trade date: %w", err)
	}
	if latest == nil {
		return time.Time{}, nil
	}
	return *latest, nil
}

// PredictionRepository stores model scores in signals.predictions
type PredictionRepository struct {
	pool *pgxpool.Pool
}

// NewPredictionRepository creates a new prediction repository
func NewPredictionRepository(pool *pgxpool.Pool) *PredictionRepository {
	return &PredictionRepository{pool: pool}
}

// SaveBatch upserts predictions tagged with the producing model name
func (r *PredictionRepository) SaveBatch(ctx context.Context, model string, preds []contracts.PredictionScore) error {
	if len(preds) == 0 {
		return nil
	}

	query := `
		INSERT INTO signals.predictions (instrument, trade_date, score, model)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (instrument, trade_date) DO UPDATE SET
			score = EXCLUDED.score,
			model = EXCLUDED.model
	`

	batch := &pgx.Batch{}
	for _, p := range preds {
		batch.Queue(query, p.Instrument, p.Date, p.Score, model)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range preds {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert prediction %s %s: %w",
				preds[i].Instrument, contracts.DateKey(preds[i].Date), err)
		}
	}
	return nil
}

// LoadRange returns all predictions within [from, to] ordered by date
func (r *PredictionRepository) LoadRange(ctx context.Context, from, to time.Time) ([]contracts.PredictionScore, error) {
	query := `
		SELECT trade_date, instrument, score
		FROM signals.predictions
		WHERE trade_date BETWEEN $1 AND $2
		ORDER BY trade_date, instrument
	`

	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var out []contracts.PredictionScore
	for rows.Next() {
		var p contracts.PredictionScore
		if err := rows.Scan(&p.Date, &p.Instrument, &p.Score); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}
