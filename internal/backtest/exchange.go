package backtest

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/internal/data"
	"github.com/wonny/aegis-etf/internal/strategyconfig"
)

// Deal errors. Orders failing with one of these are dropped by the engine.
var (
	ErrInsufficientCash = errors.New("insufficient cash")
	ErrNoPosition       = errors.New("no position to sell")
	ErrUntradable       = errors.New("instrument untradable")
)

// PriceStore is the bar source of the simulated exchange
type PriceStore interface {
	Bar(id string, date time.Time) (data.Bar, bool)
	PrevClose(id string, date time.Time) (float64, bool)
}

// ExchangeConfig holds the trading rules of the simulated exchange
type ExchangeConfig struct {
	DealPrice      string  // open | close
	LimitThreshold float64 // 0 = 가격제한 없음
	TradeUnit      float64 // 0 = 소수점 수량 허용
	OpenCost       float64
	CloseCost      float64
	MinCost        float64
}

// DefaultExchangeConfig returns the A-share ETF trading rules
func DefaultExchangeConfig() ExchangeConfig {
	return ExchangeConfig{
		DealPrice:      "close",
		LimitThreshold: 0.095,
		TradeUnit:      100,
		OpenCost:       0.0003,
		CloseCost:      0.0003,
		MinCost:        0,
	}
}

// ExchangeConfigFromStrategy maps the backtest section of a strategy config
func ExchangeConfigFromStrategy(b strategyconfig.Backtest) ExchangeConfig {
	return ExchangeConfig{
		DealPrice:      b.DealPrice,
		LimitThreshold: b.LimitThreshold,
		TradeUnit:      b.TradeUnit,
		OpenCost:       b.OpenCost,
		CloseCost:      b.CloseCost,
		MinCost:        b.MinCost,
	}
}

// Exchange simulates dealing at daily bar prices
// ⭐ SSOT: 체결 규칙 (가격제한, 거래단위, 수수료)
type Exchange struct {
	store  PriceStore
	config ExchangeConfig
}

// NewExchange creates a simulated exchange over a price store
func NewExchange(store PriceStore, config ExchangeConfig) *Exchange {
	return &Exchange{store: store, config: config}
}

var _ contracts.Exchange = (*Exchange)(nil)

// IsTradable reports whether side can trade id in the window.
// BUY is blocked at the up limit and SELL at the down limit.
func (e *Exchange) IsTradable(id string, start, _ time.Time, side contracts.OrderSide) bool {
	bar, ok := e.store.Bar(id, start)
	if !ok || bar.Volume <= 0 || bar.Close <= 0 || e.rawPrice(bar) <= 0 {
		return false
	}
	if e.config.LimitThreshold <= 0 {
		return true
	}
	prev, ok := e.store.PrevClose(id, start)
	if !ok {
		return true
	}
	change := bar.Close/prev - 1
	switch side {
	case contracts.OrderSideBuy:
		return change < e.config.LimitThreshold
	case contracts.OrderSideSell:
		return change > -e.config.LimitThreshold
	}
	return false
}

// DealPrice returns the configured deal price of id in the window
func (e *Exchange) DealPrice(id string, start, _ time.Time, _ contracts.OrderSide) (float64, bool) {
	bar, ok := e.store.Bar(id, start)
	if !ok {
		return 0, false
	}
	p := e.rawPrice(bar)
	return p, p > 0
}

// ClosePrice returns the close of id on date
func (e *Exchange) ClosePrice(id string, date time.Time) (float64, bool) {
	bar, ok := e.store.Bar(id, date)
	if !ok || bar.Close <= 0 {
		return 0, false
	}
	return bar.Close, true
}

// Factor returns the bar adjustment factor, 1 when unknown
func (e *Exchange) Factor(id string, start, _ time.Time) float64 {
	bar, ok := e.store.Bar(id, start)
	if !ok || bar.Factor <= 0 {
		return 1
	}
	return bar.Factor
}

// RoundAmount floors amount to whole trade units of the adjusted share count
func (e *Exchange) RoundAmount(amount, factor float64) float64 {
	unit := e.config.TradeUnit
	if unit <= 0 || amount <= 0 {
		return math.Max(amount, 0)
	}
	if factor <= 0 {
		factor = 1
	}
	return math.Floor((amount*factor+0.1)/unit) * unit / factor
}

// CheckOrder rejects malformed orders
func (e *Exchange) CheckOrder(o contracts.Order) bool {
	if o.Instrument == "" || o.Amount <= 0 || math.IsNaN(o.Amount) || math.IsInf(o.Amount, 0) {
		return false
	}
	return o.Side == contracts.OrderSideBuy || o.Side == contracts.OrderSideSell
}

// DealOrder fills o against pos. Sells are clipped to the held amount and
// buys to what the cash can pay for including costs.
func (e *Exchange) DealOrder(o contracts.Order, pos *contracts.WorkingPosition) (contracts.Fill, error) {
	if !e.CheckOrder(o) {
		return contracts.Fill{}, fmt.Errorf("invalid order %s", o)
	}
	if !e.IsTradable(o.Instrument, o.Start, o.End, o.Side) {
		return contracts.Fill{}, fmt.Errorf("%w: %s", ErrUntradable, o)
	}
	price, ok := e.DealPrice(o.Instrument, o.Start, o.End, o.Side)
	if !ok {
		return contracts.Fill{}, fmt.Errorf("%w: no price for %s", ErrUntradable, o.Instrument)
	}
	factor := e.Factor(o.Instrument, o.Start, o.End)

	var amount, rate float64
	switch o.Side {
	case contracts.OrderSideSell:
		rate = e.config.CloseCost
		held := pos.Amount(o.Instrument)
		if held <= 0 {
			return contracts.Fill{}, fmt.Errorf("%w: %s", ErrNoPosition, o.Instrument)
		}
		amount = o.Amount
		if amount >= held {
			amount = held // 전량 매도는 단위 절사 없음
		} else {
			amount = e.RoundAmount(amount, factor)
		}
	case contracts.OrderSideBuy:
		rate = e.config.OpenCost
		amount = e.RoundAmount(math.Min(o.Amount, e.affordable(pos.Cash(), price)), factor)
		// min_cost 때문에 한 단위 초과할 수 있음
		if amount > 0 && amount*price+e.cost(amount*price, rate) > pos.Cash() {
			step := e.config.TradeUnit / factor
			if step <= 0 {
				step = amount
			}
			amount = math.Max(amount-step, 0)
		}
		if amount <= 0 {
			return contracts.Fill{}, fmt.Errorf("%w: buy %s", ErrInsufficientCash, o.Instrument)
		}
	}
	if amount <= 0 {
		return contracts.Fill{}, fmt.Errorf("%w: %s rounds to zero", ErrNoPosition, o.Instrument)
	}

	fill := contracts.Fill{
		Instrument: o.Instrument,
		Side:       o.Side,
		Amount:     amount,
		Price:      price,
		Cost:       e.cost(amount*price, rate),
	}
	if err := pos.Apply(fill); err != nil {
		return contracts.Fill{}, fmt.Errorf("failed to apply fill: %w", err)
	}
	return fill, nil
}

func (e *Exchange) affordable(cash, price float64) float64 {
	budget := cash / (price * (1 + e.config.OpenCost))
	if e.config.MinCost > 0 {
		budget = math.Min(budget, (cash-e.config.MinCost)/price)
	}
	return math.Max(budget, 0)
}

func (e *Exchange) cost(value, rate float64) float64 {
	return math.Max(value*rate, e.config.MinCost)
}

func (e *Exchange) rawPrice(bar data.Bar) float64 {
	if e.config.DealPrice == "open" {
		return bar.Open
	}
	return bar.Close
}
