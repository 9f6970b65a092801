package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

type stubHook struct {
	decision schema.RiskDecision
}

func (h stubHook) EvaluateOrder(schema.Order) schema.RiskDecision { return h.decision }

func allowAll() RiskHook {
	return stubHook{decision: schema.RiskDecision{Action: schema.RiskActionAllow}}
}

func testClock() schema.Clock {
	return schema.NewFixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), time.Millisecond)
}

func newTestOrder(qty int64) schema.Order {
	return schema.Order{
		ClientOrderID: "c-1",
		Symbol:        "BTCUSDT",
		Side:          schema.OrderSideBuy,
		Type:          schema.OrderTypeLimit,
		Qty:           decimal.NewFromInt(qty),
		Price:         decimal.NewFromInt(100),
	}
}

func fillEvent(clientOrderID string, qty int64, at time.Time) schema.ExecutionEvent {
	fill := schema.Fill{
		FillID:          "f-" + at.Format("150405.000"),
		ClientOrderID:   clientOrderID,
		ExchangeOrderID: "x-1",
		Symbol:          "BTCUSDT",
		Side:            schema.OrderSideBuy,
		Qty:             decimal.NewFromInt(qty),
		Price:           decimal.NewFromInt(100),
		FilledAt:        at,
	}
	return schema.ExecutionEvent{
		Type:            schema.ExecutionEventFill,
		ClientOrderID:   clientOrderID,
		ExchangeOrderID: "x-1",
		Fill:            &fill,
		Timestamp:       at,
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	m := NewMachine(testClock(), allowAll())

	created, err := m.CreateOrder(newTestOrder(10))
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStateCreated, created.State)

	res, err := m.SubmitOrder("c-1")
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStateSubmitted, res.NewState)

	res, err = m.ApplyEvent(schema.ExecutionEvent{
		Type:            schema.ExecutionEventAck,
		ClientOrderID:   "c-1",
		ExchangeOrderID: "x-1",
	})
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStateAcked, res.NewState)

	at := time.Date(2025, 6, 1, 12, 0, 1, 0, time.UTC)
	res, err = m.ApplyEvent(fillEvent("c-1", 4, at))
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStatePartFilled, res.NewState)

	res, err = m.ApplyEvent(fillEvent("c-1", 6, at.Add(time.Second)))
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStateFilled, res.NewState)
	assert.True(t, m.FilledQty("c-1").Equal(decimal.NewFromInt(10)))

	res, err = m.Close("c-1")
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStateClosed, res.NewState)

	history := m.History("c-1")
	require.Len(t, history, 6)
	assert.Equal(t, "CREATE", history[0].Event)
	assert.Equal(t, schema.OrderStateClosed, history[5].To)
}

func TestIllegalTransitions(t *testing.T) {
	m := NewMachine(testClock(), allowAll())
	_, err := m.CreateOrder(newTestOrder(10))
	require.NoError(t, err)

	// CREATED cannot be acked before submit.
	_, err = m.ApplyEvent(schema.ExecutionEvent{Type: schema.ExecutionEventAck, ClientOrderID: "c-1"})
	require.ErrorIs(t, err, ErrInvalidTransition)
	got, _ := m.Order("c-1")
	assert.Equal(t, schema.OrderStateCreated, got.State)

	// Terminal states accept nothing.
	_, err = m.SubmitOrder("c-1")
	require.NoError(t, err)
	_, err = m.ApplyEvent(schema.ExecutionEvent{Type: schema.ExecutionEventReject, ClientOrderID: "c-1", RejectReason: "nope"})
	require.NoError(t, err)
	_, err = m.SubmitOrder("c-1")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRiskHookBlocksSubmit(t *testing.T) {
	m := NewMachine(testClock(), stubHook{decision: schema.RiskDecision{
		Action: schema.RiskActionBlock,
		Reason: "paused strategy",
	}})
	_, err := m.CreateOrder(newTestOrder(10))
	require.NoError(t, err)

	_, err = m.SubmitOrder("c-1")
	require.ErrorIs(t, err, ErrRiskRejected)
	assert.Contains(t, err.Error(), "paused strategy")

	got, _ := m.Order("c-1")
	assert.Equal(t, schema.OrderStateCreated, got.State)
}

func TestVenueEventIdempotent(t *testing.T) {
	m := NewMachine(testClock(), allowAll())
	_, err := m.CreateOrder(newTestOrder(10))
	require.NoError(t, err)
	_, err = m.SubmitOrder("c-1")
	require.NoError(t, err)

	at := time.Date(2025, 6, 1, 12, 0, 1, 0, time.UTC)
	event := fillEvent("c-1", 4, at)

	first, err := m.ApplyEvent(event)
	require.NoError(t, err)
	assert.True(t, first.Changed)

	// Same fill replayed: prior outcome, no double transition.
	second, err := m.ApplyEvent(event)
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Equal(t, first.NewState, second.NewState)
	assert.True(t, m.FilledQty("c-1").Equal(decimal.NewFromInt(4)))
	require.Len(t, m.History("c-1"), 3)
}

func TestOverfillRejected(t *testing.T) {
	m := NewMachine(testClock(), allowAll())
	_, err := m.CreateOrder(newTestOrder(10))
	require.NoError(t, err)
	_, err = m.SubmitOrder("c-1")
	require.NoError(t, err)

	at := time.Date(2025, 6, 1, 12, 0, 1, 0, time.UTC)
	_, err = m.ApplyEvent(fillEvent("c-1", 11, at))
	require.ErrorIs(t, err, ErrInvalidFill)
}

func TestDuplicateCreateRejected(t *testing.T) {
	m := NewMachine(testClock(), allowAll())
	_, err := m.CreateOrder(newTestOrder(10))
	require.NoError(t, err)
	_, err = m.CreateOrder(newTestOrder(10))
	require.ErrorIs(t, err, ErrDuplicateOrder)
}
