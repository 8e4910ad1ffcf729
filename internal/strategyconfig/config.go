package strategyconfig

import "time"

// Config는 ETF Top-K 전략의 전체 설정
type Config struct {
	Meta      Meta      `yaml:"meta" json:"meta"`
	Universe  Universe  `yaml:"universe" json:"universe"`
	Signal    Signal    `yaml:"signal" json:"signal"`
	Selection Selection `yaml:"selection" json:"selection"`
	Portfolio Portfolio `yaml:"portfolio" json:"portfolio"`
	Execution Execution `yaml:"execution" json:"execution"`
	Backtest  Backtest  `yaml:"backtest" json:"backtest"`
}

// Meta 메타 정보
type Meta struct {
	StrategyID        string `yaml:"strategy_id" json:"strategy_id"`
	Version           string `yaml:"version" json:"version"`
	Timezone          string `yaml:"timezone" json:"timezone"`
	DecisionTimeLocal string `yaml:"decision_time_local" json:"decision_time_local"` // HH:MM
}

// Universe 투자 대상 ETF
type Universe struct {
	Instruments []string `yaml:"instruments" json:"instruments"`
	Benchmark   string   `yaml:"benchmark" json:"benchmark"`
}

// Signal 예측 점수 입력
type Signal struct {
	Model             string  `yaml:"model" json:"model"`
	Shift             int     `yaml:"shift" json:"shift"`                           // t-shift 시그널로 t일 거래
	SmoothingHalflife float64 `yaml:"smoothing_halflife" json:"smoothing_halflife"` // 0 = 평활화 없음
}

// Selection Top-K + 버퍼 + n_drop 회전율 제어
type Selection struct {
	TopK               int         `yaml:"topk" json:"topk"`
	Buffer             int         `yaml:"buffer" json:"buffer"`
	NDrop              int         `yaml:"n_drop" json:"n_drop"`
	RebalanceThreshold float64     `yaml:"rebalance_threshold" json:"rebalance_threshold"`
	TrendFilter        TrendFilter `yaml:"trend_filter" json:"trend_filter"`
}

// TrendFilter 개별 ETF 추세 필터 (close / MA)
type TrendFilter struct {
	Enabled   bool    `yaml:"enabled" json:"enabled"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
	MAWindow  int     `yaml:"ma_window" json:"ma_window"`
}

// Portfolio 비중 산출
type Portfolio struct {
	RiskDegree       float64 `yaml:"risk_degree" json:"risk_degree"`
	FallbackVol      float64 `yaml:"fallback_vol" json:"fallback_vol"`
	TargetVol        float64 `yaml:"target_vol" json:"target_vol"` // 0 = 변동성 타겟팅 없음
	VolatilityWindow int     `yaml:"volatility_window" json:"volatility_window"`
	RiskParity       bool    `yaml:"risk_parity" json:"risk_parity"`
	Regime           Regime  `yaml:"regime" json:"regime"`
}

// Regime 벤치마크 추세 기반 레짐
type Regime struct {
	Enabled       bool     `yaml:"enabled" json:"enabled"`
	MAWindow      int      `yaml:"ma_window" json:"ma_window"`
	BullThreshold float64  `yaml:"bull_threshold" json:"bull_threshold"`
	BearThreshold float64  `yaml:"bear_threshold" json:"bear_threshold"`
	BullTargetVol float64  `yaml:"bull_target_vol" json:"bull_target_vol"`
	BearTargetVol float64  `yaml:"bear_target_vol" json:"bear_target_vol"`
	TrendCap      TrendCap `yaml:"trend_cap" json:"trend_cap"`
}

// TrendCap 레짐 비율에 따른 총 노출 상한
type TrendCap struct {
	Enabled    bool    `yaml:"enabled" json:"enabled"`
	FloorRatio float64 `yaml:"floor_ratio" json:"floor_ratio"` // 이하 = 노출 0
	FullRatio  float64 `yaml:"full_ratio" json:"full_ratio"`   // 이상 = 노출 100%
}

// Execution 스텝 실행
type Execution struct {
	SkipProbability float64 `yaml:"skip_probability" json:"skip_probability"`
	Seed            int64   `yaml:"seed" json:"seed"`
}

// Backtest 시뮬레이터 설정
type Backtest struct {
	Start          string  `yaml:"start" json:"start"` // YYYY-MM-DD, 비어있으면 데이터 시작
	End            string  `yaml:"end" json:"end"`
	Account        float64 `yaml:"account" json:"account"`
	DealPrice      string  `yaml:"deal_price" json:"deal_price"` // open | close
	LimitThreshold float64 `yaml:"limit_threshold" json:"limit_threshold"`
	TradeUnit      float64 `yaml:"trade_unit" json:"trade_unit"`
	OpenCost       float64 `yaml:"open_cost" json:"open_cost"`
	CloseCost      float64 `yaml:"close_cost" json:"close_cost"`
	MinCost        float64 `yaml:"min_cost" json:"min_cost"`
}

// Default returns the reference configuration. Load decodes YAML on top of it.
func Default() Config {
	return Config{
		Meta: Meta{
			StrategyID:        "etf_topk",
			Version:           "1.0.0",
			Timezone:          "Asia/Shanghai",
			DecisionTimeLocal: "16:30",
		},
		Universe: Universe{
			Instruments: []string{
				"510300.SH", "510500.SH", "159915.SZ", "512480.SH",
				"512880.SH", "512660.SH", "515030.SH", "518880.SH",
			},
			Benchmark: "510300.SH",
		},
		Signal: Signal{
			Model:             "lgbm",
			Shift:             1,
			SmoothingHalflife: 10,
		},
		Selection: Selection{
			TopK:               4,
			Buffer:             3,
			NDrop:              2,
			RebalanceThreshold: 0.05,
			TrendFilter: TrendFilter{
				Enabled:   false,
				Threshold: 1.0,
				MAWindow:  60,
			},
		},
		Portfolio: Portfolio{
			RiskDegree:       0.95,
			FallbackVol:      0.02,
			TargetVol:        0.20,
			VolatilityWindow: 20,
			RiskParity:       true,
			Regime: Regime{
				Enabled:       true,
				MAWindow:      60,
				BullThreshold: 1.0,
				BearThreshold: 1.0,
				BullTargetVol: 0.30,
				BearTargetVol: 0.06,
				TrendCap: TrendCap{
					Enabled:    true,
					FloorRatio: 0.97,
					FullRatio:  1.03,
				},
			},
		},
		Execution: Execution{
			SkipProbability: 0,
			Seed:            42,
		},
		Backtest: Backtest{
			Account:        1_000_000,
			DealPrice:      "close",
			LimitThreshold: 0.095,
			TradeUnit:      100,
			OpenCost:       0.0003,
			CloseCost:      0.0003,
			MinCost:        0,
		},
	}
}

// DecisionSnapshot 재현성 감사용 스냅샷
type DecisionSnapshot struct {
	ConfigHash     string    `json:"config_hash"`
	ConfigYAML     string    `json:"config_yaml"`
	StrategyID     string    `json:"strategy_id"`
	GitCommit      string    `json:"git_commit"`
	DataSnapshotID string    `json:"data_snapshot_id"`
	CreatedAt      time.Time `json:"created_at"`
}
