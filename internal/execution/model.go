package execution

import (
	"math"
	"sort"
	"time"

	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/internal/strategyconfig"
	"github.com/wonny/aegis-etf/pkg/logger"
)

// unranked is the rank of held instruments that have no score this step.
const unranked = math.MaxInt32

// Config defines turnover control parameters
type Config struct {
	TopK               int     // 목표 보유 종목 수
	Buffer             int     // 히스테리시스: rank > TopK+Buffer 인 보유 종목만 매도 후보
	NDrop              int     // 스텝당 최대 강제 매도 수
	RebalanceThreshold float64 // 총자산 대비 최소 리밸런싱 금액 비율
}

// DefaultConfig returns the reference turnover controls
func DefaultConfig() Config {
	return Config{TopK: 4, Buffer: 3, NDrop: 2, RebalanceThreshold: 0.05}
}

// ConfigFromStrategy maps the selection section of a strategy config
func ConfigFromStrategy(s strategyconfig.Selection) Config {
	return Config{
		TopK:               s.TopK,
		Buffer:             s.Buffer,
		NDrop:              s.NDrop,
		RebalanceThreshold: s.RebalanceThreshold,
	}
}

// Model converts holdings, scores and target weights into orders
// ⭐ SSOT: 매도/매수/리밸런싱 주문 생성은 여기서만
type Model struct {
	config Config
	logger *logger.Logger
}

// NewModel validates config and creates an execution model
func NewModel(config Config, log *logger.Logger) (*Model, error) {
	err := strategyconfig.ValidateSelection(strategyconfig.Selection{
		TopK:               config.TopK,
		Buffer:             config.Buffer,
		NDrop:              config.NDrop,
		RebalanceThreshold: config.RebalanceThreshold,
	})
	if err != nil {
		return nil, err
	}
	return &Model{config: config, logger: log.Component("execution")}, nil
}

// Config returns the turnover controls
func (m *Model) Config() Config { return m.config }

// TopK returns the number of slots the model fills
func (m *Model) TopK() int { return m.config.TopK }

// GenerateOrders returns forced sells followed by rebalance orders.
// pos is never modified; sells are dealt into a working copy so that
// buy sizing sees the freed cash.
func (m *Model) GenerateOrders(
	pos contracts.PositionSnapshot,
	scores *contracts.ScoreSet,
	weights contracts.TargetWeights,
	ex contracts.Exchange,
	start, end time.Time,
) []contracts.Order {
	ranks := scores.DenseRank()
	rankOf := func(id string) int {
		if r, ok := ranks[id]; ok {
			return r
		}
		return unranked
	}

	working := pos.Working()

	// 1. 강제 매도: 버퍼 밖 보유 종목 중 최악 n_drop개
	sold := make(map[string]bool)
	sells := make([]contracts.Order, 0)
	for _, id := range m.dropCandidates(pos.StockList(), rankOf) {
		if !ex.IsTradable(id, start, end, contracts.OrderSideSell) {
			m.logger.WithField("instrument", id).Debug("sell skipped: untradable")
			continue
		}

		order := contracts.Order{
			Instrument: id,
			Side:       contracts.OrderSideSell,
			Amount:     working.Amount(id),
			Start:      start,
			End:        end,
		}
		if !ex.CheckOrder(order) {
			m.logger.WithField("instrument", id).Debug("sell dropped: rejected by exchange")
			continue
		}
		if _, err := ex.DealOrder(order, working); err != nil {
			m.logger.WithError(err).WithField("instrument", id).Warn("sell dropped: fill failed")
			continue
		}
		sells = append(sells, order)
		sold[id] = true
	}

	// 2. 빈 슬롯 채우기
	remaining := working.StockList()
	held := make(map[string]bool, len(remaining))
	for _, id := range remaining {
		held[id] = true
	}

	slots := m.config.TopK - len(remaining)
	buys := make([]string, 0)
	for _, id := range scores.Sorted() {
		if slots <= 0 {
			break
		}
		if held[id] || sold[id] {
			continue
		}
		buys = append(buys, id)
		slots--
	}

	// 3. 최종 타겟 = 잔여 보유(랭크 순) + 신규 매수(점수 순)
	sort.SliceStable(remaining, func(i, j int) bool {
		ri, rj := rankOf(remaining[i]), rankOf(remaining[j])
		if ri != rj {
			return ri < rj
		}
		return remaining[i] < remaining[j]
	})
	targets := append(remaining, buys...)

	orders := append(sells, m.rebalance(targets, weights, working, ex, start, end)...)

	m.logger.WithFields(map[string]interface{}{
		"sells":      len(sells),
		"new_buys":   len(buys),
		"orders":     len(orders),
		"holdings":   len(remaining),
		"scored":     scores.Len(),
		"start_date": contracts.DateKey(start),
	}).Debug("orders generated")

	return orders
}

// dropCandidates returns held instruments ranked beyond TopK+Buffer,
// worst first, capped at NDrop.
func (m *Model) dropCandidates(holdings []string, rankOf func(string) int) []string {
	limit := m.config.TopK + m.config.Buffer
	candidates := make([]string, 0)
	for _, id := range holdings {
		if rankOf(id) > limit {
			candidates = append(candidates, id)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := rankOf(candidates[i]), rankOf(candidates[j])
		if ri != rj {
			return ri > rj
		}
		return candidates[i] < candidates[j]
	})

	if len(candidates) > m.config.NDrop {
		candidates = candidates[:m.config.NDrop]
	}
	return candidates
}

// rebalance sizes every weighted target against the working position.
// Trades smaller than RebalanceThreshold of total value are skipped.
func (m *Model) rebalance(
	targets []string,
	weights contracts.TargetWeights,
	working *contracts.WorkingPosition,
	ex contracts.Exchange,
	start, end time.Time,
) []contracts.Order {
	total := working.Value()
	threshold := total * m.config.RebalanceThreshold

	orders := make([]contracts.Order, 0)
	for _, id := range targets {
		w, ok := weights[id]
		if !ok {
			continue
		}

		price, ok := ex.DealPrice(id, start, end, contracts.OrderSideBuy)
		if !ok || price <= 0 {
			price, ok = ex.DealPrice(id, start, end, contracts.OrderSideSell)
		}
		if !ok || price <= 0 {
			m.logger.WithField("instrument", id).Debug("rebalance skipped: no price")
			continue
		}

		diff := total*w/price - working.Amount(id)
		if diff == 0 || math.Abs(diff*price) < threshold {
			continue
		}

		side := contracts.OrderSideBuy
		if diff < 0 {
			side = contracts.OrderSideSell
		}
		if !ex.IsTradable(id, start, end, side) {
			m.logger.WithFields(map[string]interface{}{
				"instrument": id,
				"side":       side,
			}).Debug("rebalance skipped: untradable")
			continue
		}

		amount := ex.RoundAmount(math.Abs(diff), ex.Factor(id, start, end))
		if amount <= 0 {
			continue
		}

		orders = append(orders, contracts.Order{
			Instrument: id,
			Side:       side,
			Amount:     amount,
			Start:      start,
			End:        end,
		})
	}
	return orders
}
