package strategyconfig

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	path := "../../config/strategy/etf_topk.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skip("config file not found")
	}

	cfg, yamlData, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, yamlData)

	assert.Equal(t, "etf_topk", cfg.Meta.StrategyID)
	assert.Equal(t, 4, cfg.Selection.TopK)
	assert.Equal(t, 3, cfg.Selection.Buffer)
	assert.Equal(t, 2, cfg.Selection.NDrop)
	assert.Equal(t, 0.95, cfg.Portfolio.RiskDegree)
	assert.Equal(t, "510300.SH", cfg.Universe.Benchmark)
	assert.Len(t, cfg.Universe.Instruments, 8)

	hash, err := Hash(cfg)
	require.NoError(t, err)
	assert.Len(t, hash, 64)

	hash2, _ := Hash(cfg)
	assert.Equal(t, hash, hash2, "hash not deterministic")
}

func TestParse_DefaultsFillOmittedFields(t *testing.T) {
	cfg, err := Parse([]byte("selection:\n  topk: 6\n"))
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Selection.TopK)
	assert.Equal(t, 3, cfg.Selection.Buffer)
	assert.Equal(t, 0.30, cfg.Portfolio.Regime.BullTargetVol)
	assert.Equal(t, 0.0003, cfg.Backtest.OpenCost)
}

func TestParse_ListReplacesDefault(t *testing.T) {
	cfg, err := Parse([]byte("universe:\n  instruments: [A, B]\n  benchmark: A\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, cfg.Universe.Instruments)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("selection:\n  top_k: 4\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"topk zero", func(c *Config) { c.Selection.TopK = 0 }, "selection.topk"},
		{"negative buffer", func(c *Config) { c.Selection.Buffer = -1 }, "selection.buffer"},
		{"negative n_drop", func(c *Config) { c.Selection.NDrop = -1 }, "selection.n_drop"},
		{"threshold one", func(c *Config) { c.Selection.RebalanceThreshold = 1 }, "selection.rebalance_threshold"},
		{"risk degree zero", func(c *Config) { c.Portfolio.RiskDegree = 0 }, "portfolio.risk_degree"},
		{"risk degree above one", func(c *Config) { c.Portfolio.RiskDegree = 1.2 }, "portfolio.risk_degree"},
		{"fallback vol", func(c *Config) { c.Portfolio.FallbackVol = 0 }, "portfolio.fallback_vol"},
		{"thresholds inverted", func(c *Config) { c.Portfolio.Regime.BearThreshold = 1.1 }, "portfolio.regime"},
		{"cap inverted", func(c *Config) { c.Portfolio.Regime.TrendCap.FloorRatio = 1.05 }, "portfolio.regime.trend_cap"},
		{"skip probability", func(c *Config) { c.Execution.SkipProbability = 1 }, "execution.skip_probability"},
		{"deal price", func(c *Config) { c.Backtest.DealPrice = "vwap" }, "backtest.deal_price"},
		{"account", func(c *Config) { c.Backtest.Account = 0 }, "backtest.account"},
		{"costs", func(c *Config) { c.Backtest.CloseCost = -0.1 }, "backtest"},
		{"empty universe", func(c *Config) { c.Universe.Instruments = nil }, "universe.instruments"},
		{"duplicate instrument", func(c *Config) { c.Universe.Instruments = []string{"A", "A"} }, "universe.instruments[1]"},
		{"no benchmark", func(c *Config) { c.Universe.Benchmark = "" }, "universe.benchmark"},
		{"bad time", func(c *Config) { c.Meta.DecisionTimeLocal = "4pm" }, "meta.decision_time_local"},
		{"window", func(c *Config) { c.Backtest.Start, c.Backtest.End = "2024-02-01", "2024-01-01" }, "backtest.end"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := Validate(&cfg)
			var ve ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, Validate(&cfg))
}

func TestWarn(t *testing.T) {
	cfg := Default()
	cfg.Selection.TopK = 8
	cfg.Selection.NDrop = 0

	codes := map[string]bool{}
	for _, w := range Warn(&cfg) {
		codes[w.Code] = true
	}
	assert.True(t, codes["TOPK_COVERS_UNIVERSE"])
	assert.True(t, codes["NO_DROPS"])
}

func TestDecisionSnapshot(t *testing.T) {
	cfg := Default()

	snapshot, err := NewDecisionSnapshot(&cfg, []byte("yaml"), "abc123", "prices_20240115")
	require.NoError(t, err)

	assert.Equal(t, "etf_topk", snapshot.StrategyID)
	assert.Equal(t, "abc123", snapshot.GitCommit)
	assert.Len(t, snapshot.ConfigHash, 64)
}

func TestValidateHHMM(t *testing.T) {
	assert.NoError(t, validateHHMM("09:30"))
	assert.Error(t, validateHHMM("9:30"))
	assert.Error(t, validateHHMM("25:00"))
}
