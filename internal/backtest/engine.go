package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/aegis-etf/internal/audit"
	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/internal/risk"
	"github.com/wonny/aegis-etf/internal/strategy"
	"github.com/wonny/aegis-etf/internal/strategyconfig"
	"github.com/wonny/aegis-etf/pkg/logger"
	"github.com/wonny/aegis-etf/pkg/metrics"
)

// Decider produces the decision of one step
type Decider interface {
	Decide(ctx context.Context, step strategy.Step, pos contracts.PositionSnapshot, ex contracts.Exchange) (*contracts.TradeDecision, error)
}

// Calendar is the trading-day source of a run
type Calendar interface {
	Dates(start, end time.Time) []time.Time
}

// Store is the price source of the engine
type Store interface {
	PriceStore
	Calendar
}

// Config holds backtest configuration
type Config struct {
	Name        string
	StartDate   time.Time // zero = 데이터 시작
	EndDate     time.Time // zero = 데이터 끝
	Account     float64
	Benchmark   string
	SignalShift int // t-shift 거래일의 시그널로 t일 거래
	Exchange    ExchangeConfig
}

// DefaultConfig returns the reference backtest settings
func DefaultConfig() Config {
	return Config{
		Name:        "etf_topk",
		Account:     1_000_000,
		Benchmark:   "510300.SH",
		SignalShift: 1,
		Exchange:    DefaultExchangeConfig(),
	}
}

// ConfigFromStrategy maps a validated strategy config
func ConfigFromStrategy(cfg *strategyconfig.Config) (Config, error) {
	start, end, err := cfg.BacktestWindow()
	if err != nil {
		return Config{}, err
	}
	return Config{
		Name:        cfg.Meta.StrategyID,
		StartDate:   start,
		EndDate:     end,
		Account:     cfg.Backtest.Account,
		Benchmark:   cfg.Universe.Benchmark,
		SignalShift: cfg.Signal.Shift,
		Exchange:    ExchangeConfigFromStrategy(cfg.Backtest),
	}, nil
}

// DailyRecord is one row of the daily report
type DailyRecord struct {
	Date         time.Time               `json:"date"`
	AccountValue float64                 `json:"account_value"`
	Cash         float64                 `json:"cash"`
	Return       float64                 `json:"return"`
	Bench        float64                 `json:"bench"`
	Turnover     float64                 `json:"turnover"` // 거래대금 / 전일 계좌가치
	Cost         float64                 `json:"cost"`     // 비용 / 전일 계좌가치
	Holdings     int                     `json:"holdings"`
	Orders       []contracts.Order       `json:"orders,omitempty"`
	Fills        []contracts.Fill        `json:"fills,omitempty"`
	Weights      contracts.TargetWeights `json:"weights,omitempty"`
	Degraded     bool                    `json:"degraded"`
	Reason       string                  `json:"reason,omitempty"`
}

// PositionRecord is the end-of-day position of a step
type PositionRecord struct {
	Date     time.Time                    `json:"date"`
	Cash     float64                      `json:"cash"`
	Holdings map[string]contracts.Holding `json:"holdings"`
}

// Report holds backtest results
type Report struct {
	Config    Config
	StartDate time.Time
	EndDate   time.Time
	Duration  time.Duration

	Records   []DailyRecord
	Positions []PositionRecord

	DegradedSteps int
	TotalOrders   int
	TotalFills    int

	Summary *audit.PerformanceReport
	Risk    *risk.Report
}

// StrategyReturns returns the after-cost daily account returns
func (r *Report) StrategyReturns() []float64 {
	out := make([]float64, len(r.Records))
	for i, rec := range r.Records {
		out[i] = rec.Return
	}
	return out
}

// DailyReturns converts the report for the analyzer
func (r *Report) DailyReturns() []audit.DailyReturn {
	out := make([]audit.DailyReturn, len(r.Records))
	for i, rec := range r.Records {
		out[i] = audit.DailyReturn{
			Date:     rec.Date,
			Return:   rec.Return,
			Bench:    rec.Bench,
			Turnover: rec.Turnover,
			Cost:     rec.Cost,
			Value:    rec.AccountValue,
		}
	}
	return out
}

const riskSeed = 42

// Engine runs backtesting simulations
// ⭐ SSOT: 백테스팅 실행은 여기서만
type Engine struct {
	store   Store
	metrics *metrics.Registry
	logger  *logger.Logger
}

// NewEngine creates a new backtest engine. reg may be nil.
func NewEngine(store Store, reg *metrics.Registry, log *logger.Logger) *Engine {
	return &Engine{
		store:   store,
		metrics: reg,
		logger:  log.Component("backtest"),
	}
}

// Run executes a backtest simulation. The engine is the only writer of the
// account; each step deals on a working copy and commits the result.
func (e *Engine) Run(ctx context.Context, decider Decider, config Config) (*Report, error) {
	if config.Account <= 0 {
		return nil, fmt.Errorf("backtest: account must be > 0")
	}
	if config.SignalShift < 0 {
		return nil, fmt.Errorf("backtest: signal shift must be >= 0")
	}

	calendar := e.store.Dates(time.Time{}, time.Time{})
	first, last := windowIndex(calendar, config.StartDate, config.EndDate)
	if first > last {
		return nil, fmt.Errorf("backtest: no trading days in window")
	}

	e.logger.WithFields(map[string]interface{}{
		"name":       config.Name,
		"start_date": contracts.DateKey(calendar[first]),
		"end_date":   contracts.DateKey(calendar[last]),
		"days":       last - first + 1,
		"account":    config.Account,
	}).Info("Starting backtest")

	startTime := time.Now()
	exchange := NewExchange(e.store, config.Exchange)
	account := NewAccount(config.Account)

	report := &Report{
		Config:    config,
		StartDate: calendar[first],
		EndDate:   calendar[last],
		Records:   make([]DailyRecord, 0, last-first+1),
		Positions: make([]PositionRecord, 0, last-first+1),
	}

	prevValue := config.Account
	for i := first; i <= last; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		date := calendar[i]
		step := strategy.Step{Start: date, End: date}
		if j := i - config.SignalShift; j >= 0 {
			step.SignalStart, step.SignalEnd = calendar[j], calendar[j]
		}

		decision, err := decider.Decide(ctx, step, account.Snapshot(), exchange)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", contracts.DateKey(date), err)
		}

		rec := e.dealStep(exchange, account, decision)
		account.MarkToMarket(exchange, date)

		value := account.Value()
		rec.Date = date
		rec.AccountValue = value
		rec.Cash = account.Snapshot().Cash()
		rec.Holdings = len(account.Snapshot().StockList())
		rec.Return = value/prevValue - 1
		rec.Turnover /= prevValue
		rec.Cost /= prevValue
		rec.Bench = e.benchReturn(config.Benchmark, date)

		report.Records = append(report.Records, rec)
		report.Positions = append(report.Positions, PositionRecord{
			Date:     date,
			Cash:     rec.Cash,
			Holdings: account.Snapshot().Holdings(),
		})
		report.TotalOrders += len(rec.Orders)
		report.TotalFills += len(rec.Fills)
		if rec.Degraded {
			report.DegradedSteps++
		}

		outcome := "trade"
		if len(rec.Orders) == 0 {
			outcome = "hold"
		}
		e.metrics.RecordStep(outcome, rec.Degraded)

		prevValue = value
	}

	report.Duration = time.Since(startTime)
	e.metrics.ObserveBacktest(config.Name, report.Duration)

	summary, err := audit.Analyze(report.DailyReturns())
	if err != nil && !errors.Is(err, audit.ErrNoData) {
		return nil, fmt.Errorf("failed to analyze report: %w", err)
	}
	report.Summary = summary

	// 백테스트는 결정적이므로 시뮬레이션 시드도 고정
	mc := risk.DefaultMonteCarloConfig()
	mc.Seed = riskSeed
	if report.Risk, err = risk.Analyze(report.StrategyReturns(), mc); err != nil {
		return nil, fmt.Errorf("failed to analyze risk: %w", err)
	}

	fields := map[string]interface{}{
		"name":           config.Name,
		"duration":       report.Duration.Seconds(),
		"trading_days":   len(report.Records),
		"orders":         report.TotalOrders,
		"fills":          report.TotalFills,
		"degraded_steps": report.DegradedSteps,
	}
	if summary != nil {
		fields["total_return"] = fmt.Sprintf("%.2f%%", summary.TotalReturn*100)
		fields["information_ratio"] = fmt.Sprintf("%.2f", summary.Strategy.InformationRatio)
		fields["max_drawdown"] = fmt.Sprintf("%.2f%%", summary.Strategy.MaxDrawdown*100)
	}
	if report.Risk != nil {
		fields["var_95"] = fmt.Sprintf("%.2f%%", report.Risk.Historical95.VaR*100)
	}
	e.logger.WithFields(fields).Info("Backtest completed")

	return report, nil
}

// dealStep deals the decision's orders in order on a working copy and
// commits it. Turnover and Cost are returned as absolute amounts.
func (e *Engine) dealStep(ex *Exchange, account *Account, decision *contracts.TradeDecision) DailyRecord {
	rec := DailyRecord{
		Orders:   decision.Orders,
		Weights:  decision.Weights,
		Degraded: decision.Degraded,
		Reason:   decision.Reason,
	}

	working := account.Snapshot().Working()
	for _, order := range decision.Orders {
		e.metrics.RecordOrder(string(order.Side))

		fill, err := ex.DealOrder(order, working)
		if err != nil {
			e.logger.WithFields(map[string]interface{}{
				"order": order.String(),
				"error": err.Error(),
			}).Debug("Order dropped")
			continue
		}
		e.metrics.RecordFill(string(fill.Side))

		rec.Fills = append(rec.Fills, fill)
		rec.Turnover += fill.Value()
		rec.Cost += fill.Cost
	}
	account.Commit(working)
	return rec
}

// benchReturn is the close-to-close change of the benchmark, 0 when missing
func (e *Engine) benchReturn(id string, date time.Time) float64 {
	if id == "" {
		return 0
	}
	bar, ok := e.store.Bar(id, date)
	if !ok || bar.Close <= 0 {
		return 0
	}
	prev, ok := e.store.PrevClose(id, date)
	if !ok {
		return 0
	}
	return bar.Close/prev - 1
}

// windowIndex returns the inclusive calendar index range of [start, end]
func windowIndex(calendar []time.Time, start, end time.Time) (int, int) {
	first, last := 0, len(calendar)-1
	if !start.IsZero() {
		for first <= last && calendar[first].Before(dayOf(start)) {
			first++
		}
	}
	if !end.IsZero() {
		for last >= first && calendar[last].After(dayOf(end)) {
			last--
		}
	}
	return first, last
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Job is one independent run of RunMany
type Job struct {
	Name    string
	Decider Decider
	Config  Config
}

// RunMany executes independent runs concurrently with at most limit in
// flight. Runs share only the read-only store. Results keep job order.
func (e *Engine) RunMany(ctx context.Context, jobs []Job, limit int) ([]*Report, error) {
	reports := make([]*Report, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			cfg := job.Config
			if job.Name != "" {
				cfg.Name = job.Name
			}
			report, err := e.Run(gctx, job.Decider, cfg)
			if err != nil {
				return fmt.Errorf("run %s: %w", cfg.Name, err)
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}
