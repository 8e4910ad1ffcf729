package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/internal/data"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func testStore() *data.MemoryStore {
	s := data.NewMemoryStore()
	s.Add(
		data.Bar{Date: day("2024-01-02"), Instrument: "A", Open: 10, Close: 10, Volume: 1000},
		data.Bar{Date: day("2024-01-03"), Instrument: "A", Open: 10.5, Close: 11, Volume: 1000}, // +10% 상한
		data.Bar{Date: day("2024-01-04"), Instrument: "A", Open: 11, Close: 9.9, Volume: 1000}, // -10% 하한
		data.Bar{Date: day("2024-01-05"), Instrument: "A", Open: 10, Close: 10, Volume: 0},
		data.Bar{Date: day("2024-01-02"), Instrument: "B", Open: 5, Close: 5, Volume: 1000},
		data.Bar{Date: day("2024-01-03"), Instrument: "B", Open: 5, Close: 5.1, Volume: 1000, Factor: 2},
	)
	return s
}

func TestExchange_IsTradable(t *testing.T) {
	ex := NewExchange(testStore(), DefaultExchangeConfig())

	tests := []struct {
		name string
		id   string
		date string
		side contracts.OrderSide
		want bool
	}{
		{"normal buy", "B", "2024-01-03", contracts.OrderSideBuy, true},
		{"up limit blocks buy", "A", "2024-01-03", contracts.OrderSideBuy, false},
		{"up limit allows sell", "A", "2024-01-03", contracts.OrderSideSell, true},
		{"down limit blocks sell", "A", "2024-01-04", contracts.OrderSideSell, false},
		{"down limit allows buy", "A", "2024-01-04", contracts.OrderSideBuy, true},
		{"zero volume", "A", "2024-01-05", contracts.OrderSideBuy, false},
		{"no bar", "B", "2024-01-05", contracts.OrderSideSell, false},
		{"first bar has no previous close", "A", "2024-01-02", contracts.OrderSideBuy, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := day(tt.date)
			assert.Equal(t, tt.want, ex.IsTradable(tt.id, d, d, tt.side))
		})
	}

	cfg := DefaultExchangeConfig()
	cfg.LimitThreshold = 0
	noLimit := NewExchange(testStore(), cfg)
	d := day("2024-01-03")
	assert.True(t, noLimit.IsTradable("A", d, d, contracts.OrderSideBuy))
}

func TestExchange_DealPriceAndFactor(t *testing.T) {
	d := day("2024-01-03")

	closeEx := NewExchange(testStore(), DefaultExchangeConfig())
	p, ok := closeEx.DealPrice("A", d, d, contracts.OrderSideBuy)
	require.True(t, ok)
	assert.Equal(t, 11.0, p)

	cfg := DefaultExchangeConfig()
	cfg.DealPrice = "open"
	openEx := NewExchange(testStore(), cfg)
	p, ok = openEx.DealPrice("A", d, d, contracts.OrderSideBuy)
	require.True(t, ok)
	assert.Equal(t, 10.5, p)

	assert.Equal(t, 2.0, closeEx.Factor("B", d, d))
	assert.Equal(t, 1.0, closeEx.Factor("A", d, d))
	assert.Equal(t, 1.0, closeEx.Factor("missing", d, d))
}

func TestExchange_RoundAmount(t *testing.T) {
	ex := NewExchange(testStore(), DefaultExchangeConfig())

	tests := []struct {
		amount, factor, want float64
	}{
		{250, 1, 200},
		{99.95, 1, 100}, // +0.1 허용오차
		{99, 1, 0},
		{120, 2, 100},
		{-5, 1, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, ex.RoundAmount(tt.amount, tt.factor), 1e-9, "amount %v factor %v", tt.amount, tt.factor)
	}

	cfg := DefaultExchangeConfig()
	cfg.TradeUnit = 0
	assert.Equal(t, 12.5, NewExchange(testStore(), cfg).RoundAmount(12.5, 1))
}

func TestExchange_DealOrder(t *testing.T) {
	d := day("2024-01-02")
	order := func(id string, side contracts.OrderSide, amount float64) contracts.Order {
		return contracts.Order{Instrument: id, Side: side, Amount: amount, Start: d, End: d}
	}

	t.Run("buy with cost", func(t *testing.T) {
		ex := NewExchange(testStore(), DefaultExchangeConfig())
		w := contracts.NewPositionSnapshot(10_000, nil).Working()

		fill, err := ex.DealOrder(order("A", contracts.OrderSideBuy, 500), w)
		require.NoError(t, err)
		assert.Equal(t, 500.0, fill.Amount)
		assert.InDelta(t, 5000*0.0003, fill.Cost, 1e-9)
		assert.InDelta(t, 10_000-5000-1.5, w.Cash(), 1e-9)
	})

	t.Run("buy clipped to cash", func(t *testing.T) {
		ex := NewExchange(testStore(), DefaultExchangeConfig())
		w := contracts.NewPositionSnapshot(2_500, nil).Working()

		fill, err := ex.DealOrder(order("A", contracts.OrderSideBuy, 1000), w)
		require.NoError(t, err)
		assert.Equal(t, 200.0, fill.Amount)
		assert.GreaterOrEqual(t, w.Cash(), 0.0)
	})

	t.Run("min cost reduces affordable amount", func(t *testing.T) {
		cfg := DefaultExchangeConfig()
		cfg.MinCost = 5
		ex := NewExchange(testStore(), cfg)
		w := contracts.NewPositionSnapshot(1_000, nil).Working()

		_, err := ex.DealOrder(order("A", contracts.OrderSideBuy, 100), w)
		assert.ErrorIs(t, err, ErrInsufficientCash)
		assert.Equal(t, 1_000.0, w.Cash())
	})

	t.Run("insufficient cash", func(t *testing.T) {
		ex := NewExchange(testStore(), DefaultExchangeConfig())
		w := contracts.NewPositionSnapshot(500, nil).Working()

		_, err := ex.DealOrder(order("A", contracts.OrderSideBuy, 100), w)
		assert.ErrorIs(t, err, ErrInsufficientCash)
	})

	t.Run("sell clipped to held", func(t *testing.T) {
		ex := NewExchange(testStore(), DefaultExchangeConfig())
		w := contracts.NewPositionSnapshot(0, map[string]contracts.Holding{
			"A": {Amount: 150, Price: 10},
		}).Working()

		fill, err := ex.DealOrder(order("A", contracts.OrderSideSell, 300), w)
		require.NoError(t, err)
		assert.Equal(t, 150.0, fill.Amount)
		assert.Zero(t, w.Amount("A"))
		assert.InDelta(t, 1500-1500*0.0003, w.Cash(), 1e-9)
	})

	t.Run("partial sell is rounded", func(t *testing.T) {
		ex := NewExchange(testStore(), DefaultExchangeConfig())
		w := contracts.NewPositionSnapshot(0, map[string]contracts.Holding{
			"A": {Amount: 500, Price: 10},
		}).Working()

		fill, err := ex.DealOrder(order("A", contracts.OrderSideSell, 250), w)
		require.NoError(t, err)
		assert.Equal(t, 200.0, fill.Amount)
		assert.Equal(t, 300.0, w.Amount("A"))
	})

	t.Run("sell without position", func(t *testing.T) {
		ex := NewExchange(testStore(), DefaultExchangeConfig())
		w := contracts.NewPositionSnapshot(1000, nil).Working()

		_, err := ex.DealOrder(order("A", contracts.OrderSideSell, 100), w)
		assert.ErrorIs(t, err, ErrNoPosition)
	})

	t.Run("untradable", func(t *testing.T) {
		ex := NewExchange(testStore(), DefaultExchangeConfig())
		w := contracts.NewPositionSnapshot(100_000, nil).Working()
		up := day("2024-01-03")

		_, err := ex.DealOrder(contracts.Order{Instrument: "A", Side: contracts.OrderSideBuy, Amount: 100, Start: up, End: up}, w)
		assert.ErrorIs(t, err, ErrUntradable)
	})

	t.Run("malformed", func(t *testing.T) {
		ex := NewExchange(testStore(), DefaultExchangeConfig())
		assert.False(t, ex.CheckOrder(order("A", contracts.OrderSideBuy, 0)))
		assert.False(t, ex.CheckOrder(order("", contracts.OrderSideBuy, 100)))
		assert.False(t, ex.CheckOrder(order("A", "HOLD", 100)))
	})
}
