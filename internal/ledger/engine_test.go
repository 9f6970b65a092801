package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.AddSymbol(schema.Symbol{Name: "BTCUSDT", QuoteCurrency: "USDT"}))
	require.NoError(t, reg.AddSymbol(schema.Symbol{Name: "ETHUSDT", QuoteCurrency: "USDT"}))
	return reg
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	clock := schema.NewFixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), time.Millisecond)
	return NewEngine(clock, testRegistry(t))
}

func mkFill(id string, side schema.OrderSide, qty, price, fee int64, at time.Time) schema.Fill {
	return schema.Fill{
		FillID:          id,
		ClientOrderID:   "c-" + id,
		ExchangeOrderID: "x-" + id,
		Symbol:          "BTCUSDT",
		Side:            side,
		Qty:             decimal.NewFromInt(qty),
		Price:           decimal.NewFromInt(price),
		Fee:             decimal.NewFromInt(fee),
		FeeCurrency:     "USDT",
		FilledAt:        at,
	}
}

func TestGoldenScenario(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.OpenCash(decimal.NewFromInt(10000)))

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fills := []schema.Fill{
		mkFill("f1", schema.OrderSideBuy, 10, 100, 1, at),
		mkFill("f2", schema.OrderSideBuy, 10, 110, 1, at.Add(time.Minute)),
		mkFill("f3", schema.OrderSideSell, 15, 120, 1, at.Add(2*time.Minute)),
	}
	for _, fill := range fills {
		res, err := e.Apply(fill)
		require.NoError(t, err)
		assert.True(t, res.Applied)
	}

	pos, ok := e.Position("BTCUSDT")
	require.True(t, ok)
	assert.True(t, pos.Qty.Equal(decimal.NewFromInt(5)), "qty=%s", pos.Qty)
	assert.True(t, pos.AvgCost().Equal(decimal.NewFromInt(105)), "avgCost=%s", pos.AvgCost())
	assert.True(t, pos.RealizedPnL.Equal(decimal.NewFromInt(225)), "realized=%s", pos.RealizedPnL)
	assert.True(t, e.Cash().Equal(decimal.NewFromInt(9697)), "cash=%s", e.Cash())

	mark := decimal.NewFromInt(115)
	assert.True(t, pos.UnrealizedPnL(mark).Equal(decimal.NewFromInt(50)), "unrealized=%s", pos.UnrealizedPnL(mark))
	equity := e.Cash().Add(pos.MarketValue(mark))
	assert.True(t, equity.Equal(decimal.NewFromInt(10272)), "equity=%s", equity)

	require.NoError(t, e.CheckInvariants())
}

func TestPostingSumsAreZero(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.OpenCash(decimal.RequireFromString("10000.5")))

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fills := []schema.Fill{
		{FillID: "a", ClientOrderID: "c-a", Symbol: "BTCUSDT", Side: schema.OrderSideBuy,
			Qty: decimal.RequireFromString("0.33333333"), Price: decimal.RequireFromString("30123.45678901"),
			Fee: decimal.RequireFromString("0.1"), FilledAt: at},
		{FillID: "b", ClientOrderID: "c-b", Symbol: "BTCUSDT", Side: schema.OrderSideSell,
			Qty: decimal.RequireFromString("0.13333333"), Price: decimal.RequireFromString("30500.00000019"),
			Fee: decimal.RequireFromString("0.1"), FilledAt: at.Add(time.Second)},
		{FillID: "c", ClientOrderID: "c-c", Symbol: "BTCUSDT", Side: schema.OrderSideSell,
			Qty: decimal.RequireFromString("0.4"), Price: decimal.RequireFromString("29999.99999999"),
			Fee: decimal.RequireFromString("0.1"), FilledAt: at.Add(2 * time.Second)},
	}
	for _, fill := range fills {
		_, err := e.Apply(fill)
		require.NoError(t, err)
	}
	for _, entry := range e.Journal() {
		assert.True(t, entry.PostingSum().IsZero(), "seq=%d sum=%s", entry.Sequence, entry.PostingSum())
	}
	require.NoError(t, e.CheckInvariants())
}

func TestFlatPositionHasZeroInventory(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.OpenCash(decimal.NewFromInt(100000)))

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// Awkward quantities that force rounded average costs.
	seq := []schema.Fill{
		{FillID: "1", ClientOrderID: "c1", Symbol: "BTCUSDT", Side: schema.OrderSideBuy,
			Qty: decimal.RequireFromString("3"), Price: decimal.RequireFromString("100.01"), FilledAt: at},
		{FillID: "2", ClientOrderID: "c2", Symbol: "BTCUSDT", Side: schema.OrderSideBuy,
			Qty: decimal.RequireFromString("7"), Price: decimal.RequireFromString("99.97"), FilledAt: at.Add(time.Second)},
		{FillID: "3", ClientOrderID: "c3", Symbol: "BTCUSDT", Side: schema.OrderSideSell,
			Qty: decimal.RequireFromString("6"), Price: decimal.RequireFromString("101.13"), FilledAt: at.Add(2 * time.Second)},
		{FillID: "4", ClientOrderID: "c4", Symbol: "BTCUSDT", Side: schema.OrderSideSell,
			Qty: decimal.RequireFromString("4"), Price: decimal.RequireFromString("100.55"), FilledAt: at.Add(3 * time.Second)},
	}
	for _, fill := range seq {
		_, err := e.Apply(fill)
		require.NoError(t, err)
	}

	pos, ok := e.Position("BTCUSDT")
	require.True(t, ok)
	assert.True(t, pos.Qty.IsZero())
	assert.True(t, pos.InventoryCost.IsZero(), "inventory=%s", pos.InventoryCost)
	assert.True(t, e.Balance(InventoryAccount("BTCUSDT", "USDT")).IsZero())
	require.NoError(t, e.CheckInvariants())
}

func TestShortThenCover(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.OpenCash(decimal.NewFromInt(10000)))

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_, err := e.Apply(mkFill("s1", schema.OrderSideSell, 10, 100, 0, at))
	require.NoError(t, err)

	pos, _ := e.Position("BTCUSDT")
	assert.True(t, pos.Qty.Equal(decimal.NewFromInt(-10)))
	assert.True(t, pos.AvgCost().Equal(decimal.NewFromInt(100)))

	_, err = e.Apply(mkFill("s2", schema.OrderSideBuy, 10, 90, 0, at.Add(time.Second)))
	require.NoError(t, err)

	pos, _ = e.Position("BTCUSDT")
	assert.True(t, pos.Qty.IsZero())
	assert.True(t, pos.InventoryCost.IsZero())
	assert.True(t, pos.RealizedPnL.Equal(decimal.NewFromInt(100)), "realized=%s", pos.RealizedPnL)
	require.NoError(t, e.CheckInvariants())
}

func TestDuplicateFillIsNoOp(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.OpenCash(decimal.NewFromInt(10000)))

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fill := mkFill("f1", schema.OrderSideBuy, 10, 100, 1, at)

	first, err := e.Apply(fill)
	require.NoError(t, err)
	assert.True(t, first.Applied)

	before, err := e.ExportSnapshotJSON(at, nil)
	require.NoError(t, err)

	second, err := e.Apply(fill)
	require.NoError(t, err)
	assert.False(t, second.Applied)

	after, err := e.ExportSnapshotJSON(at, nil)
	require.NoError(t, err)
	assert.Equal(t, before, after, "duplicate apply must not change state")
	assert.Len(t, e.Journal(), 2) // opening cash + one fill

	// Same content under a fresh fill id is still the same event.
	replay := fill
	replay.FillID = "f1-replay"
	third, err := e.Apply(replay)
	require.NoError(t, err)
	assert.False(t, third.Applied)
}

func TestDuplicateFillConflict(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.OpenCash(decimal.NewFromInt(10000)))

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fill := mkFill("f1", schema.OrderSideBuy, 10, 100, 1, at)
	_, err := e.Apply(fill)
	require.NoError(t, err)

	conflicting := fill
	conflicting.Price = decimal.NewFromInt(101)
	_, err = e.Apply(conflicting)
	require.ErrorIs(t, err, ErrDuplicateFillConflict)

	// The conflict changed nothing.
	pos, _ := e.Position("BTCUSDT")
	assert.True(t, pos.Qty.Equal(decimal.NewFromInt(10)))
	assert.True(t, pos.AvgCost().Equal(decimal.NewFromInt(100)))
	require.NoError(t, e.CheckInvariants())
}

func TestFeesNeverNetIntoRealized(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.OpenCash(decimal.NewFromInt(10000)))

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_, err := e.Apply(mkFill("f1", schema.OrderSideBuy, 10, 100, 5, at))
	require.NoError(t, err)
	_, err = e.Apply(mkFill("f2", schema.OrderSideSell, 10, 110, 5, at.Add(time.Second)))
	require.NoError(t, err)

	pos, _ := e.Position("BTCUSDT")
	assert.True(t, pos.RealizedPnL.Equal(decimal.NewFromInt(100)), "realized=%s", pos.RealizedPnL)
	assert.True(t, pos.FeesAccumulated.Equal(decimal.NewFromInt(10)))
	assert.True(t, e.Balance(FeesAccount("USDT")).Equal(decimal.NewFromInt(10)))
}

func TestUnknownSymbolRejected(t *testing.T) {
	e := testEngine(t)
	fill := mkFill("f1", schema.OrderSideBuy, 1, 100, 0, time.Now())
	fill.Symbol = "DOGEUSDT"
	_, err := e.Apply(fill)
	require.ErrorIs(t, err, ErrUnknownLedgerSymbol)
}
