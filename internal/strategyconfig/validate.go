package strategyconfig

import (
	"errors"
	"fmt"
	"regexp"
	"time"
	_ "time/tzdata"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.StrategyID == "" {
		return ValidationError{"meta.strategy_id", "required"}
	}
	if cfg.Meta.DecisionTimeLocal != "" {
		if err := validateHHMM(cfg.Meta.DecisionTimeLocal); err != nil {
			return ValidationError{"meta.decision_time_local", err.Error()}
		}
	}
	if cfg.Meta.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Meta.Timezone); err != nil {
			return ValidationError{"meta.timezone", "unknown timezone"}
		}
	}

	// === Universe ===
	if len(cfg.Universe.Instruments) == 0 {
		return ValidationError{"universe.instruments", "must not be empty"}
	}
	seen := make(map[string]struct{}, len(cfg.Universe.Instruments))
	for i, id := range cfg.Universe.Instruments {
		if id == "" {
			return ValidationError{fmt.Sprintf("universe.instruments[%d]", i), "must not be empty"}
		}
		if _, dup := seen[id]; dup {
			return ValidationError{fmt.Sprintf("universe.instruments[%d]", i), "duplicate " + id}
		}
		seen[id] = struct{}{}
	}
	if cfg.Universe.Benchmark == "" {
		return ValidationError{"universe.benchmark", "required"}
	}

	// === Signal ===
	if cfg.Signal.Shift < 0 {
		return ValidationError{"signal.shift", "must be >= 0"}
	}
	if cfg.Signal.SmoothingHalflife < 0 {
		return ValidationError{"signal.smoothing_halflife", "must be >= 0"}
	}

	// === Selection ===
	if err := ValidateSelection(cfg.Selection); err != nil {
		return err
	}
	if cfg.Selection.TrendFilter.Enabled && cfg.Selection.TrendFilter.MAWindow < 2 {
		return ValidationError{"selection.trend_filter.ma_window", "must be >= 2"}
	}

	// === Portfolio ===
	if err := ValidatePortfolio(cfg.Portfolio); err != nil {
		return err
	}
	if cfg.Portfolio.VolatilityWindow < 2 {
		return ValidationError{"portfolio.volatility_window", "must be >= 2"}
	}
	if cfg.Portfolio.Regime.Enabled && cfg.Portfolio.Regime.MAWindow < 2 {
		return ValidationError{"portfolio.regime.ma_window", "must be >= 2"}
	}

	// === Execution ===
	if cfg.Execution.SkipProbability < 0 || cfg.Execution.SkipProbability >= 1 {
		return ValidationError{"execution.skip_probability", "must be in [0, 1)"}
	}

	// === Backtest ===
	return validateBacktest(cfg)
}

// ValidateSelection checks the Top-K turnover controls.
func ValidateSelection(s Selection) error {
	if s.TopK <= 0 {
		return ValidationError{"selection.topk", "must be > 0"}
	}
	if s.Buffer < 0 {
		return ValidationError{"selection.buffer", "must be >= 0"}
	}
	if s.NDrop < 0 {
		return ValidationError{"selection.n_drop", "must be >= 0"}
	}
	if s.RebalanceThreshold < 0 || s.RebalanceThreshold >= 1 {
		return ValidationError{"selection.rebalance_threshold", "must be in [0, 1)"}
	}
	return nil
}

// ValidatePortfolio checks the weighting and regime parameters.
func ValidatePortfolio(p Portfolio) error {
	if p.RiskDegree <= 0 || p.RiskDegree > 1 {
		return ValidationError{"portfolio.risk_degree", "must be in (0, 1]"}
	}
	if p.FallbackVol <= 0 {
		return ValidationError{"portfolio.fallback_vol", "must be > 0"}
	}
	if p.TargetVol < 0 {
		return ValidationError{"portfolio.target_vol", "must be >= 0"}
	}

	r := p.Regime
	if r.BullThreshold < r.BearThreshold {
		return ValidationError{"portfolio.regime", "bull_threshold must be >= bear_threshold"}
	}
	if r.BullTargetVol <= 0 {
		return ValidationError{"portfolio.regime.bull_target_vol", "must be > 0"}
	}
	if r.BearTargetVol <= 0 {
		return ValidationError{"portfolio.regime.bear_target_vol", "must be > 0"}
	}
	if r.TrendCap.Enabled && r.TrendCap.FloorRatio >= r.TrendCap.FullRatio {
		return ValidationError{"portfolio.regime.trend_cap", "floor_ratio must be < full_ratio"}
	}
	return nil
}

func validateBacktest(cfg *Config) error {
	b := cfg.Backtest
	if b.Account <= 0 {
		return ValidationError{"backtest.account", "must be > 0"}
	}
	if b.DealPrice != "open" && b.DealPrice != "close" {
		return ValidationError{"backtest.deal_price", "must be open or close"}
	}
	if b.LimitThreshold < 0 {
		return ValidationError{"backtest.limit_threshold", "must be >= 0"}
	}
	if b.TradeUnit < 0 {
		return ValidationError{"backtest.trade_unit", "must be >= 0"}
	}
	if b.OpenCost < 0 || b.CloseCost < 0 || b.MinCost < 0 {
		return ValidationError{"backtest", "costs must be >= 0"}
	}

	start, end, err := cfg.BacktestWindow()
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return ValidationError{"backtest.end", "must not be before start"}
	}
	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	// 유니버스 대비 과도한 Top-K
	if cfg.Selection.TopK >= len(cfg.Universe.Instruments) {
		warnings = append(warnings, Warning{
			Code:    "TOPK_COVERS_UNIVERSE",
			Message: "topk >= universe size: selection has no effect",
		})
	}

	// 버퍼가 있는데 n_drop=0 → 매도 불가
	if cfg.Selection.NDrop == 0 {
		warnings = append(warnings, Warning{
			Code:    "NO_DROPS",
			Message: "n_drop = 0: holdings are never rotated out",
		})
	}

	// 변동성 타겟 없이 레짐만 켜짐
	if cfg.Portfolio.Regime.Enabled && cfg.Portfolio.TargetVol == 0 && !cfg.Portfolio.Regime.TrendCap.Enabled {
		warnings = append(warnings, Warning{
			Code:    "REGIME_INERT",
			Message: "regime enabled without target_vol or trend_cap: no effect",
		})
	}

	if cfg.Execution.SkipProbability > 0.5 {
		warnings = append(warnings, Warning{
			Code:    "HIGH_SKIP",
			Message: "skip_probability > 0.5: most steps hold",
		})
	}

	return warnings
}

// === Helper Functions ===

var hhmm = regexp.MustCompile(`^\d{2}:\d{2}$`)

func validateHHMM(s string) error {
	if !hhmm.MatchString(s) {
		return errors.New("must be HH:MM format")
	}
	_, err := time.Parse("15:04", s)
	return err
}
