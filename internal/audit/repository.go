package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RunRecord is a persisted backtest summary
type RunRecord struct {
	RunID      string             `json:"run_id"`
	StrategyID string             `json:"strategy_id"`
	ConfigHash string             `json:"config_hash"`
	Report     *PerformanceReport `json:"report"`
	CreatedAt  time.Time          `json:"created_at"`
}

// Repository handles audit data persistence
// ⭐ SSOT: Audit 데이터 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new audit repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveRun saves a backtest summary
func (r *Repository) SaveRun(ctx context.Context, run RunRecord) error {
	reportJSON, err := json.Marshal(run.Report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	query := `
		INSERT INTO audit.backtest_runs (
			run_id, strategy_id, config_hash, start_date, end_date, report
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id) DO UPDATE SET
			config_hash = EXCLUDED.config_hash,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			report = EXCLUDED.report
	`

	_, err = r.pool.Exec(ctx, query,
		run.RunID, run.StrategyID, run.ConfigHash,
		run.Report.StartDate, run.Report.EndDate, reportJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// RecentRuns returns the latest runs of a strategy, newest first
func (r *Repository) RecentRuns(ctx context.Context, strategyID string, limit int) ([]RunRecord, error) {
	query := `
		SELECT run_id, strategy_id, config_hash, report, created_at
		FROM audit.backtest_runs
		WHERE strategy_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, strategyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var run RunRecord
		var reportJSON []byte
		if err := rows.Scan(&run.RunID, &run.StrategyID, &run.ConfigHash, &reportJSON, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Report = &PerformanceReport{}
		if err := json.Unmarshal(reportJSON, run.Report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return runs, nil
}
