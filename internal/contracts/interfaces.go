package contracts

import (
	"context"
	"errors"
	"time"
)

// ErrNoSignal means no prediction exists for the requested window.
var ErrNoSignal = errors.New("no signal for window")

// SignalSource provides the prediction scores of a window.
// ⭐ SSOT: 시그널 입력 인터페이스
type SignalSource interface {
	Signal(ctx context.Context, start, end time.Time) (*ScoreSet, error)
}

// Exchange answers tradability and price questions and deals orders.
// ⭐ SSOT: 체결 시뮬레이터 인터페이스
type Exchange interface {
	IsTradable(id string, start, end time.Time, side OrderSide) bool
	DealPrice(id string, start, end time.Time, side OrderSide) (float64, bool)
	Factor(id string, start, end time.Time) float64
	RoundAmount(amount, factor float64) float64
	CheckOrder(o Order) bool
	// DealOrder fills o and applies the fill to pos.
	DealOrder(o Order, pos *WorkingPosition) (Fill, error)
}

// FeatureLookup returns a per-instrument feature value for a date.
type FeatureLookup interface {
	Lookup(date time.Time, id string) (float64, bool)
}

// RegimeLookup returns the benchmark regime ratio for a date.
type RegimeLookup interface {
	Ratio(date time.Time) (float64, bool)
}
