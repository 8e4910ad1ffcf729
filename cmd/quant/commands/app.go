package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wonny/aegis-etf/internal/audit"
	"github.com/wonny/aegis-etf/internal/brain"
	"github.com/wonny/aegis-etf/internal/collector"
	"github.com/wonny/aegis-etf/internal/data"
	"github.com/wonny/aegis-etf/internal/external/eastmoney"
	"github.com/wonny/aegis-etf/internal/portfolio"
	"github.com/wonny/aegis-etf/internal/strategyconfig"
	"github.com/wonny/aegis-etf/pkg/config"
	"github.com/wonny/aegis-etf/pkg/database"
	"github.com/wonny/aegis-etf/pkg/logger"
	"github.com/wonny/aegis-etf/pkg/metrics"
	"github.com/wonny/aegis-etf/pkg/redis"
)

// app holds the shared dependencies of every command
type app struct {
	cfg          *config.Config
	log          *logger.Logger
	metrics      *metrics.Registry
	strategy     *strategyconfig.Config
	strategyYAML []byte

	db    *database.DB // nil = CSV 모드
	redis *redis.Client

	prices      *data.PriceRepository
	predictions *data.PredictionRepository
	weights     *portfolio.Repository
	audit       *audit.Repository
	cache       *data.SignalCache
	source      data.Source
}

// loadApp reads env + strategy config and connects to the configured stores
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if strategyFile != "" {
		cfg.StrategyFile = strategyFile
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	log := logger.New(cfg)

	strat, yamlData, err := strategyconfig.Load(cfg.StrategyFile)
	if err != nil {
		return nil, fmt.Errorf("load strategy: %w", err)
	}
	for _, w := range strategyconfig.Warn(strat) {
		log.WithFields(map[string]interface{}{
			"code":    w.Code,
			"message": w.Message,
		}).Warn("Strategy config warning")
	}

	a := &app{
		cfg:          cfg,
		log:          log,
		metrics:      metrics.New(),
		strategy:     strat,
		strategyYAML: yamlData,
		redis:        redis.Disabled(),
		source:       data.NewFileSource(cfg.DataDir),
	}

	if cfg.Database.Enabled() {
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		a.db = db
		a.prices = data.NewPriceRepository(db.Pool)
		a.predictions = data.NewPredictionRepository(db.Pool)
		a.weights = portfolio.NewRepository(db.Pool)
		a.audit = audit.NewRepository(db.Pool)
		a.source = data.NewDBSource(a.prices, a.predictions)
		log.Info("Connected to database")
	} else {
		log.WithField("data_dir", cfg.DataDir).Info("No DATABASE_URL, using CSV inputs")
	}

	if cfg.Redis.Enabled {
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			// 캐시 없이 계속
			log.WithError(err).Warn("Redis unavailable, signal cache disabled")
		} else {
			a.redis = client
		}
	}
	a.cache = data.NewSignalCache(a.redis)

	return a, nil
}

// orchestrator wires the pipeline with whatever persistence is available
func (a *app) orchestrator() (*brain.Orchestrator, error) {
	o, err := brain.NewOrchestrator(a.strategy, a.source, a.metrics, a.log)
	if err != nil {
		return nil, err
	}
	if a.db != nil {
		o.WithWeightSaver(a.weights).WithWeightLoader(a.weights).WithRunSaver(a.audit)
	}
	if a.redis.Enabled() {
		o.WithCache(a.cache)
	}
	return o, nil
}

// Close releases connections
func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// barSaver returns the price repository, or a CSV merger in DATA_DIR
func (a *app) barSaver() collector.Saver {
	if a.prices != nil {
		return a.prices
	}
	return data.NewCSVSaver(filepath.Join(a.cfg.DataDir, data.BarsFile))
}

// collector builds the rate-limited eastmoney collector
func (a *app) collector() *collector.Collector {
	fetcher := eastmoney.NewFromConfig(a.cfg.Fetcher, a.log)
	return collector.NewCollector(fetcher, a.barSaver(), a.metrics, a.log)
}

// snapshot records which config and data produced a result
func (a *app) snapshot() (*strategyconfig.DecisionSnapshot, error) {
	dataID := "csv:" + a.cfg.DataDir
	if a.db != nil {
		dataID = "postgres"
	}
	return strategyconfig.NewDecisionSnapshot(a.strategy, a.strategyYAML, os.Getenv("GIT_COMMIT"), dataID)
}
