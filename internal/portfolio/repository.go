package portfolio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-etf/internal/contracts"
)

// Repository persists the target weights of each decision date
// ⭐ SSOT: 목표 비중 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new portfolio repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveTargetWeights replaces the weights of (strategy, date) in one transaction
func (r *Repository) SaveTargetWeights(ctx context.Context, strategyID string, date time.Time, weights contracts.TargetWeights) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		"DELETE FROM portfolio.target_weights WHERE strategy_id = $1 AND target_date = $2",
		strategyID, date,
	)
	if err != nil {
		return fmt.Errorf("failed to delete old weights: %w", err)
	}

	query := `
		INSERT INTO portfolio.target_weights (strategy_id, target_date, instrument, weight)
		VALUES ($1, $2, $3, $4)
	`
	for id, w := range weights {
		if _, err := tx.Exec(ctx, query, strategyID, date, id, w); err != nil {
			return fmt.Errorf("failed to insert weight: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LatestTargetWeights returns the most recent saved weights of a strategy.
// pgx.ErrNoRows is returned when nothing was saved yet.
func (r *Repository) LatestTargetWeights(ctx context.Context, strategyID string) (time.Time, contracts.TargetWeights, error) {
	var latest *time.Time
	err := r.pool.QueryRow(ctx,
		"SELECT MAX(target_date) FROM portfolio.target_weights WHERE strategy_id = $1",
		strategyID,
	).Scan(&latest)
	if err == nil && latest == nil {
		err = pgx.ErrNoRows
	}
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("failed to get latest target date: %w", err)
	}
	date := *latest

	rows, err := r.pool.Query(ctx, `
		SELECT instrument, weight
		FROM portfolio.target_weights
		WHERE strategy_id = $1 AND target_date = $2
		ORDER BY weight DESC
	`, strategyID, date)
	if err != nil {
		return date, nil, fmt.Errorf("failed to query target weights: %w", err)
	}
	defer rows.Close()

	weights := make(contracts.TargetWeights)
	for rows.Next() {
		var id string
		var w float64
		if err := rows.Scan(&id, &w); err != nil {
			return date, nil, fmt.Errorf("failed to scan weight: %w", err)
		}
		weights[id] = w
	}
	if err := rows.Err(); err != nil {
		return date, nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return date, weights, nil
}

// IsNotFound reports whether err means no weights were saved.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
