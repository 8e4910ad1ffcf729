package contracts

import (
	"errors"
	"fmt"
	"sort"
)

// amountEpsilon treats residual share amounts below it as flat.
const amountEpsilon = 1e-9

// ErrInvalidFill is returned when a fill would overdraw a position.
var ErrInvalidFill = errors.New("invalid fill")

// Holding is a held amount and its last known price.
type Holding struct {
	Amount float64 `json:"amount"`
	Price  float64 `json:"price"`
}

// PositionReader is the read side shared by snapshots and working copies.
type PositionReader interface {
	StockList() []string
	Amount(id string) float64
	Price(id string) float64
	Cash() float64
	Value() float64
}

// PositionSnapshot is an immutable account state.
// ⭐ 스냅샷은 절대 수정되지 않음, 변경은 WorkingPosition으로만
type PositionSnapshot struct {
	cash     float64
	holdings map[string]Holding
}

// NewPositionSnapshot copies holdings. Non-positive amounts are dropped.
func NewPositionSnapshot(cash float64, holdings map[string]Holding) PositionSnapshot {
	h := make(map[string]Holding, len(holdings))
	for id, v := range holdings {
		if v.Amount > amountEpsilon {
			h[id] = v
		}
	}
	return PositionSnapshot{cash: cash, holdings: h}
}

// Cash returns available cash.
func (p PositionSnapshot) Cash() float64 { return p.cash }

// StockList returns held instruments in id order.
func (p PositionSnapshot) StockList() []string {
	ids := make([]string, 0, len(p.holdings))
	for id := range p.holdings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Amount returns the held amount of id.
func (p PositionSnapshot) Amount(id string) float64 { return p.holdings[id].Amount }

// Price returns the last known price of id.
func (p PositionSnapshot) Price(id string) float64 { return p.holdings[id].Price }

// Holdings returns a copy of all holdings.
func (p PositionSnapshot) Holdings() map[string]Holding {
	out := make(map[string]Holding, len(p.holdings))
	for id, h := range p.holdings {
		out[id] = h
	}
	return out
}

// Value returns cash plus the marked value of every holding, summed in id
// order so repeated runs agree bit for bit.
func (p PositionSnapshot) Value() float64 {
	total := p.cash
	for _, id := range p.StockList() {
		h := p.holdings[id]
		total += h.Amount * h.Price
	}
	return total
}

// WithPrices returns a copy marked at the given prices. Instruments
// without a price keep their previous one.
func (p PositionSnapshot) WithPrices(price func(id string) (float64, bool)) PositionSnapshot {
	h := p.Holdings()
	for id, v := range h {
		if px, ok := price(id); ok && px > 0 {
			v.Price = px
			h[id] = v
		}
	}
	return PositionSnapshot{cash: p.cash, holdings: h}
}

// Working starts a working copy on top of the snapshot.
func (p PositionSnapshot) Working() *WorkingPosition {
	return &WorkingPosition{
		base:        p,
		amountDelta: make(map[string]float64),
		lastPrice:   make(map[string]float64),
	}
}

// WorkingPosition is a snapshot plus the deltas of the fills applied to it.
// Only Apply mutates it.
type WorkingPosition struct {
	base        PositionSnapshot
	cashDelta   float64
	amountDelta map[string]float64
	lastPrice   map[string]float64
	fills       []Fill
}

// Cash returns base cash plus the applied cash delta.
func (w *WorkingPosition) Cash() float64 { return w.base.cash + w.cashDelta }

// Amount returns base amount plus the applied amount delta.
func (w *WorkingPosition) Amount(id string) float64 {
	a := w.base.Amount(id) + w.amountDelta[id]
	if a < amountEpsilon {
		return 0
	}
	return a
}

// Price returns the last fill price, or the snapshot price.
func (w *WorkingPosition) Price(id string) float64 {
	if px, ok := w.lastPrice[id]; ok {
		return px
	}
	return w.base.Price(id)
}

// StockList returns instruments with a positive working amount in id order.
func (w *WorkingPosition) StockList() []string {
	seen := make(map[string]struct{}, len(w.base.holdings)+len(w.amountDelta))
	for id := range w.base.holdings {
		seen[id] = struct{}{}
	}
	for id := range w.amountDelta {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		if w.Amount(id) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Value returns working cash plus the value of working holdings.
func (w *WorkingPosition) Value() float64 {
	total := w.Cash()
	for _, id := range w.StockList() {
		total += w.Amount(id) * w.Price(id)
	}
	return total
}

// Fills returns the fills applied so far.
func (w *WorkingPosition) Fills() []Fill {
	out := make([]Fill, len(w.fills))
	copy(out, w.fills)
	return out
}

// Apply books a fill. Buys may not overdraw cash and sells may not exceed
// the working amount.
func (w *WorkingPosition) Apply(f Fill) error {
	if f.Amount <= 0 || f.Price <= 0 {
		return fmt.Errorf("%w: non-positive amount or price for %s", ErrInvalidFill, f.Instrument)
	}

	switch f.Side {
	case OrderSideBuy:
		need := f.Value() + f.Cost
		if need > w.Cash()+amountEpsilon {
			return fmt.Errorf("%w: buy %s needs %.2f, cash %.2f", ErrInvalidFill, f.Instrument, need, w.Cash())
		}
		w.cashDelta -= need
		w.amountDelta[f.Instrument] += f.Amount
	case OrderSideSell:
		held := w.Amount(f.Instrument)
		if f.Amount > held+amountEpsilon {
			return fmt.Errorf("%w: sell %s %.0f exceeds held %.0f", ErrInvalidFill, f.Instrument, f.Amount, held)
		}
		w.cashDelta += f.Value() - f.Cost
		w.amountDelta[f.Instrument] -= f.Amount
	default:
		return fmt.Errorf("%w: unknown side %q", ErrInvalidFill, f.Side)
	}

	w.lastPrice[f.Instrument] = f.Price
	w.fills = append(w.fills, f)
	return nil
}

// Snapshot folds the applied deltas into a new snapshot.
func (w *WorkingPosition) Snapshot() PositionSnapshot {
	h := make(map[string]Holding)
	for _, id := range w.StockList() {
		h[id] = Holding{Amount: w.Amount(id), Price: w.Price(id)}
	}
	return PositionSnapshot{cash: w.Cash(), holdings: h}
}
