package backtest

import (
	"time"

	"github.com/wonny/aegis-etf/internal/contracts"
)

// Account is the authoritative position of a run. Only the engine writes it.
type Account struct {
	snapshot contracts.PositionSnapshot
}

// NewAccount starts an all-cash account
func NewAccount(cash float64) *Account {
	return &Account{snapshot: contracts.NewPositionSnapshot(cash, nil)}
}

// Snapshot returns the current immutable position
func (a *Account) Snapshot() contracts.PositionSnapshot {
	return a.snapshot
}

// Commit replaces the position with the result of a dealt working copy
func (a *Account) Commit(w *contracts.WorkingPosition) {
	a.snapshot = w.Snapshot()
}

// MarkToMarket revalues holdings at the close of date. Holdings without a
// bar keep their last price.
func (a *Account) MarkToMarket(ex *Exchange, date time.Time) {
	a.snapshot = a.snapshot.WithPrices(func(id string) (float64, bool) {
		return ex.ClosePrice(id, date)
	})
}

// Value returns cash plus marked holdings
func (a *Account) Value() float64 {
	return a.snapshot.Value()
}
