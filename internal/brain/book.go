package brain

import (
	"sort"
	"time"

	"github.com/wonny/aegis-etf/internal/contracts"
)

// unitExchange deals every order at price 1 with no cost, so a book of
// target weights can be held as amounts of a unit-value account.
// ⭐ 라이브 시그널 전용: 실제 체결가는 브로커 몫
type unitExchange struct{}

var _ contracts.Exchange = unitExchange{}

func (unitExchange) IsTradable(string, time.Time, time.Time, contracts.OrderSide) bool { return true }

func (unitExchange) DealPrice(string, time.Time, time.Time, contracts.OrderSide) (float64, bool) {
	return 1, true
}

func (unitExchange) Factor(string, time.Time, time.Time) float64 { return 1 }

func (unitExchange) RoundAmount(amount, _ float64) float64 { return amount }

func (unitExchange) CheckOrder(o contracts.Order) bool { return o.Amount > 0 }

func (unitExchange) DealOrder(o contracts.Order, pos *contracts.WorkingPosition) (contracts.Fill, error) {
	fill := contracts.Fill{Instrument: o.Instrument, Side: o.Side, Amount: o.Amount, Price: 1}
	if err := pos.Apply(fill); err != nil {
		return contracts.Fill{}, err
	}
	return fill, nil
}

// bookFromWeights holds each weight as an amount at price 1; the rest is cash.
func bookFromWeights(w contracts.TargetWeights) contracts.PositionSnapshot {
	holdings := make(map[string]contracts.Holding, len(w))
	for id, v := range w {
		holdings[id] = contracts.Holding{Amount: v, Price: 1}
	}
	return contracts.NewPositionSnapshot(1-w.Sum(), holdings)
}

// weightsOf returns each holding's share of the book value
func weightsOf(pos contracts.PositionReader) contracts.TargetWeights {
	out := make(contracts.TargetWeights)
	total := pos.Value()
	if total <= 0 {
		return out
	}
	for _, id := range pos.StockList() {
		out[id] = pos.Amount(id) * pos.Price(id) / total
	}
	return out
}

// sellsFirst orders sells ahead of buys so freed cash funds the buys
func sellsFirst(orders []contracts.Order) []contracts.Order {
	out := append([]contracts.Order(nil), orders...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Side == contracts.OrderSideSell && out[j].Side != contracts.OrderSideSell
	})
	return out
}
