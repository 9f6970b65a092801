package venue

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func venueClock() schema.Clock {
	return schema.NewFixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), time.Millisecond)
}

func venueRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.AddSymbol(schema.Symbol{
		Name: "BTCUSDT", QuoteCurrency: "USDT", MarkPrice: decimal.NewFromInt(100),
	}))
	return reg
}

func venueOrder(orderType schema.OrderType, price int64) schema.Order {
	order := schema.Order{
		ClientOrderID: "c-1",
		Symbol:        "BTCUSDT",
		Side:          schema.OrderSideBuy,
		Type:          orderType,
		Qty:           decimal.NewFromInt(10),
	}
	if orderType.RequiresPrice() {
		order.Price = decimal.NewFromInt(price)
	}
	return order
}

func TestPaperFillsLimitAtLimitPrice(t *testing.T) {
	paper := NewPaper(PaperConfig{FeeBps: 10}, venueClock(), venueRegistry(t))
	event, err := paper.ExecuteOrder(context.Background(), venueOrder(schema.OrderTypeLimit, 105), "key-1")
	require.NoError(t, err)
	require.Equal(t, schema.ExecutionEventFill, event.Type)
	require.NotNil(t, event.Fill)
	assert.True(t, event.Fill.Price.Equal(decimal.NewFromInt(105)))
	assert.True(t, event.Fill.Qty.Equal(decimal.NewFromInt(10)))
	// 10 bps on notional 1050.
	assert.True(t, event.Fill.Fee.Equal(decimal.RequireFromString("1.05")), "fee=%s", event.Fill.Fee)
	assert.Equal(t, "USDT", event.Fill.FeeCurrency)
}

func TestPaperFillsMarketAtMark(t *testing.T) {
	paper := NewPaper(PaperConfig{}, venueClock(), venueRegistry(t))
	event, err := paper.ExecuteOrder(context.Background(), venueOrder(schema.OrderTypeMarket, 0), "key-1")
	require.NoError(t, err)
	assert.True(t, event.Fill.Price.Equal(decimal.NewFromInt(100)))
}

func TestPaperDispatchIsIdempotent(t *testing.T) {
	paper := NewPaper(PaperConfig{FeeBps: 10}, venueClock(), venueRegistry(t))
	order := venueOrder(schema.OrderTypeLimit, 105)

	first, err := paper.ExecuteOrder(context.Background(), order, "key-1")
	require.NoError(t, err)
	second, err := paper.ExecuteOrder(context.Background(), order, "key-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, first.Fill.Fingerprint(), second.Fill.Fingerprint())

	third, err := paper.ExecuteOrder(context.Background(), order, "key-2")
	require.NoError(t, err)
	assert.NotEqual(t, first.Fill.FillID, third.Fill.FillID)
}

func TestShadowOnlyAcks(t *testing.T) {
	shadow := NewShadow(venueClock())
	event, err := shadow.ExecuteOrder(context.Background(), venueOrder(schema.OrderTypeLimit, 105), "key-1")
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionEventAck, event.Type)
	assert.Nil(t, event.Fill)
}

func TestTestnetScriptThenFallback(t *testing.T) {
	clock := venueClock()
	paper := NewPaper(PaperConfig{}, clock, venueRegistry(t))
	testnet := NewTestnet(clock, paper, map[string][]ScriptAction{
		"c-1": {
			{Fail: ErrTimeout},
			{Event: schema.ExecutionEventReject, RejectReason: "scripted"},
		},
	})
	order := venueOrder(schema.OrderTypeLimit, 105)

	_, err := testnet.ExecuteOrder(context.Background(), order, "key-1")
	require.ErrorIs(t, err, ErrTimeout)

	event, err := testnet.ExecuteOrder(context.Background(), order, "key-1")
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionEventReject, event.Type)
	assert.Equal(t, "scripted", event.RejectReason)

	// Script exhausted: fall through to paper.
	event, err = testnet.ExecuteOrder(context.Background(), order, "key-1")
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionEventFill, event.Type)
}

func TestFlakyFailsThenSucceeds(t *testing.T) {
	paper := NewPaper(PaperConfig{}, venueClock(), venueRegistry(t))
	flaky := NewFlaky(paper, 2, nil)
	order := venueOrder(schema.OrderTypeLimit, 105)

	_, err := flaky.ExecuteOrder(context.Background(), order, "key-1")
	require.ErrorIs(t, err, ErrTimeout)
	_, err = flaky.ExecuteOrder(context.Background(), order, "key-1")
	require.ErrorIs(t, err, ErrTimeout)
	event, err := flaky.ExecuteOrder(context.Background(), order, "key-1")
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionEventFill, event.Type)
	assert.Equal(t, 3, flaky.Attempts("key-1"))
}

func TestRouterLiveBlocked(t *testing.T) {
	router := NewRouter()
	require.NoError(t, router.Register(schema.ExecModePaper, NewPaper(PaperConfig{}, venueClock(), venueRegistry(t))))

	_, err := router.Route(schema.ExecModeLiveBlocked)
	require.ErrorIs(t, err, ErrLiveBlocked)

	err = router.Register(schema.ExecModeLiveBlocked, NewShadow(venueClock()))
	require.ErrorIs(t, err, ErrLiveBlocked)

	adapter, err := router.Route(schema.ExecModePaper)
	require.NoError(t, err)
	assert.Equal(t, "paper", adapter.Name())

	_, err = router.Route(schema.ExecModeTestnet)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestRetryableClassification(t *testing.T) {
	assert.True(t, Retryable(ErrTimeout))
	assert.True(t, Retryable(ErrRateLimited))
	assert.False(t, Retryable(ErrRejected))
	assert.False(t, Retryable(ErrInvalid))
	assert.False(t, Retryable(context.Canceled))
}
