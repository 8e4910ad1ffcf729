package contracts

import (
	"fmt"
	"sort"
	"time"
)

// OrderSide represents buy or sell
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Order is a share amount to deal in a step window.
// ⭐ Execution → Exchange 주문 전달 (일시적 값)
type Order struct {
	Instrument string    `json:"instrument"`
	Side       OrderSide `json:"side"`
	Amount     float64   `json:"amount"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

func (o Order) String() string {
	return fmt.Sprintf("%s %s %.0f", o.Side, o.Instrument, o.Amount)
}

// Fill is the result of dealing an order.
type Fill struct {
	Instrument string    `json:"instrument"`
	Side       OrderSide `json:"side"`
	Amount     float64   `json:"amount"`
	Price      float64   `json:"price"`
	Cost       float64   `json:"cost"`
}

// Value returns the traded notional before costs.
func (f Fill) Value() float64 {
	return f.Amount * f.Price
}

// TargetWeights maps instrument to target fraction of account value.
type TargetWeights map[string]float64

// Sum returns the total weight, added in id order.
func (w TargetWeights) Sum() float64 {
	ids := make([]string, 0, len(w))
	for id := range w {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	total := 0.0
	for _, id := range ids {
		total += w[id]
	}
	return total
}

// TradeDecision is the output of one strategy step.
// Degraded marks steps that fell back to holding because of a data problem.
type TradeDecision struct {
	Orders   []Order       `json:"orders"`
	Weights  TargetWeights `json:"weights,omitempty"`
	Degraded bool          `json:"degraded"`
	Reason   string        `json:"reason,omitempty"`
}

// Hold returns an empty decision.
func Hold(reason string) *TradeDecision {
	return &TradeDecision{Reason: reason}
}

// Degrade returns an empty decision flagged as degraded.
func Degrade(reason string) *TradeDecision {
	return &TradeDecision{Degraded: true, Reason: reason}
}
