package order

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"main/internal/schema"
)

var (
	ErrDuplicateOrder    = errors.New("order already exists")
	ErrUnknownOrder      = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order state transition")
	ErrInvalidFill       = errors.New("invalid fill quantity")
	ErrRiskRejected      = errors.New("order rejected by risk hook")
)

// RiskHook is consulted before an order may leave CREATED. Hooks are
// pure; evaluating an order must not change anything.
type RiskHook interface {
	EvaluateOrder(order schema.Order) schema.RiskDecision
}

// transitions is the fixed legal-transition table. Anything absent here
// fails with ErrInvalidTransition and leaves the order untouched.
var transitions = map[schema.OrderState][]schema.OrderState{
	schema.OrderStateCreated: {
		schema.OrderStateSubmitted,
		schema.OrderStateRejected,
		schema.OrderStateCancelled,
		schema.OrderStateFailed,
	},
	schema.OrderStateSubmitted: {
		schema.OrderStateAcked,
		schema.OrderStatePartFilled,
		schema.OrderStateFilled,
		schema.OrderStateRejected,
		schema.OrderStateCancelled,
		schema.OrderStateFailed,
	},
	schema.OrderStateAcked: {
		schema.OrderStatePartFilled,
		schema.OrderStateFilled,
		schema.OrderStateRejected,
		schema.OrderStateCancelled,
		schema.OrderStateFailed,
	},
	schema.OrderStatePartFilled: {
		schema.OrderStatePartFilled,
		schema.OrderStateFilled,
		schema.OrderStateCancelled,
		schema.OrderStateFailed,
	},
	schema.OrderStateFilled: {
		schema.OrderStateClosed,
	},
}

func canTransition(from, to schema.OrderState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionRecord is one entry in the per-order transition history.
type TransitionRecord struct {
	At    int64             `json:"at"`
	From  schema.OrderState `json:"from"`
	To    schema.OrderState `json:"to"`
	Event string            `json:"event"`
}

// Result reports the outcome of applying an event to the machine.
// Changed is false when the event was an idempotent replay.
type Result struct {
	Order    schema.Order
	OldState schema.OrderState
	NewState schema.OrderState
	Changed  bool
}

type trackedOrder struct {
	order     schema.Order
	cumFilled decimal.Decimal
	applied   map[string]Result
	history   []TransitionRecord
}

// Machine governs the lifecycle of every order in one engine instance.
// It is not safe for concurrent use; the pipeline is the single caller.
type Machine struct {
	clock  schema.Clock
	hook   RiskHook
	orders map[string]*trackedOrder
}

// NewMachine creates an empty state machine. hook may be nil, in which
// case submits are always allowed.
func NewMachine(clock schema.Clock, hook RiskHook) *Machine {
	if clock == nil {
		clock = schema.RealClock{}
	}
	return &Machine{
		clock:  clock,
		hook:   hook,
		orders: make(map[string]*trackedOrder),
	}
}

// Order returns the current order value.
func (m *Machine) Order(clientOrderID string) (schema.Order, bool) {
	tracked, ok := m.orders[clientOrderID]
	if !ok {
		return schema.Order{}, false
	}
	return tracked.order, true
}

// History returns the transition history for an order, oldest first.
func (m *Machine) History(clientOrderID string) []TransitionRecord {
	tracked, ok := m.orders[clientOrderID]
	if !ok {
		return nil
	}
	out := make([]TransitionRecord, len(tracked.history))
	copy(out, tracked.history)
	return out
}

// CreateOrder validates the order and registers it in CREATED state.
func (m *Machine) CreateOrder(order schema.Order) (schema.Order, error) {
	if err := order.Validate(); err != nil {
		return schema.Order{}, err
	}
	if _, ok := m.orders[order.ClientOrderID]; ok {
		return schema.Order{}, fmt.Errorf("%w: %s", ErrDuplicateOrder, order.ClientOrderID)
	}
	now := m.clock.Now()
	order.State = schema.OrderStateCreated
	order.CreatedAt = now
	order.UpdatedAt = now
	tracked := &trackedOrder{
		order:   order,
		applied: make(map[string]Result),
	}
	tracked.history = append(tracked.history, TransitionRecord{
		At:    now.UnixNano(),
		From:  "",
		To:    schema.OrderStateCreated,
		Event: "CREATE",
	})
	m.orders[order.ClientOrderID] = tracked
	return order, nil
}

// SubmitOrder consults the risk hook and moves the order to SUBMITTED.
// BLOCK and PAUSE leave the order in CREATED; the returned error wraps
// ErrRiskRejected and carries the hook's reason.
func (m *Machine) SubmitOrder(clientOrderID string) (Result, error) {
	tracked, ok := m.orders[clientOrderID]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownOrder, clientOrderID)
	}
	if m.hook != nil {
		decision := m.hook.EvaluateOrder(tracked.order)
		if decision.Action != schema.RiskActionAllow {
			return Result{Order: tracked.order, OldState: tracked.order.State, NewState: tracked.order.State},
				fmt.Errorf("%w: %s (%s)", ErrRiskRejected, decision.Action, decision.Reason)
		}
	}
	return m.transition(tracked, schema.OrderStateSubmitted, "SUBMIT")
}

// ApplyEvent maps a venue execution event onto the order. Re-applying
// an event with the same identity is a no-op returning the prior
// outcome.
func (m *Machine) ApplyEvent(event schema.ExecutionEvent) (Result, error) {
	tracked, ok := m.orders[event.ClientOrderID]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownOrder, event.ClientOrderID)
	}
	key := eventKey(event)
	if prior, ok := tracked.applied[key]; ok {
		prior.Changed = false
		prior.Order = tracked.order
		return prior, nil
	}

	var (
		result Result
		err    error
	)
	switch event.Type {
	case schema.ExecutionEventAck:
		result, err = m.transition(tracked, schema.OrderStateAcked, "ACK")
	case schema.ExecutionEventReject:
		result, err = m.transition(tracked, schema.OrderStateRejected, "REJECT")
	case schema.ExecutionEventCancelAck:
		result, err = m.transition(tracked, schema.OrderStateCancelled, "CANCEL_ACK")
	case schema.ExecutionEventFill:
		result, err = m.applyFill(tracked, event)
	default:
		return Result{}, fmt.Errorf("%w: unknown event type %q", ErrInvalidTransition, event.Type)
	}
	if err != nil {
		return result, err
	}
	tracked.applied[key] = result
	return result, nil
}

// Close moves a fully filled order to CLOSED.
func (m *Machine) Close(clientOrderID string) (Result, error) {
	tracked, ok := m.orders[clientOrderID]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownOrder, clientOrderID)
	}
	return m.transition(tracked, schema.OrderStateClosed, "CLOSE")
}

// Fail moves the order to FAILED from any non-terminal state.
func (m *Machine) Fail(clientOrderID, reason string) (Result, error) {
	tracked, ok := m.orders[clientOrderID]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownOrder, clientOrderID)
	}
	return m.transition(tracked, schema.OrderStateFailed, "FAIL:"+reason)
}

func (m *Machine) applyFill(tracked *trackedOrder, event schema.ExecutionEvent) (Result, error) {
	if event.Fill == nil {
		return Result{}, fmt.Errorf("%w: fill event without fill", ErrInvalidFill)
	}
	fill := *event.Fill
	if !fill.Qty.IsPositive() {
		return Result{}, ErrInvalidFill
	}
	cum := schema.Quantize(tracked.cumFilled.Add(fill.Qty))
	if cum.GreaterThan(schema.Quantize(tracked.order.Qty)) {
		return Result{}, fmt.Errorf("%w: cumulative %s exceeds order qty %s",
			ErrInvalidFill, cum.String(), tracked.order.Qty.String())
	}

	target := schema.OrderStatePartFilled
	if cum.Equal(schema.Quantize(tracked.order.Qty)) {
		target = schema.OrderStateFilled
	}
	result, err := m.transition(tracked, target, "FILL:"+fill.Fingerprint()[:12])
	if err != nil {
		return result, err
	}
	tracked.cumFilled = cum
	return result, nil
}

// States returns the current state of every tracked order.
func (m *Machine) States() map[string]schema.OrderState {
	out := make(map[string]schema.OrderState, len(m.orders))
	for id, tracked := range m.orders {
		out[id] = tracked.order.State
	}
	return out
}

// FilledQty returns the cumulative filled quantity for an order.
func (m *Machine) FilledQty(clientOrderID string) decimal.Decimal {
	tracked, ok := m.orders[clientOrderID]
	if !ok {
		return decimal.Zero
	}
	return tracked.cumFilled
}

func (m *Machine) transition(tracked *trackedOrder, to schema.OrderState, event string) (Result, error) {
	from := tracked.order.State
	if !canTransition(from, to) {
		return Result{Order: tracked.order, OldState: from, NewState: from},
			fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	now := m.clock.Now()
	tracked.order.State = to
	tracked.order.UpdatedAt = now
	tracked.history = append(tracked.history, TransitionRecord{
		At:    now.UnixNano(),
		From:  from,
		To:    to,
		Event: event,
	})
	return Result{Order: tracked.order, OldState: from, NewState: to, Changed: true}, nil
}

// eventKey derives the idempotency identity of a venue event. Fills use
// the fill fingerprint; the rest key on type plus exchange order id.
func eventKey(event schema.ExecutionEvent) string {
	if event.Type == schema.ExecutionEventFill && event.Fill != nil {
		return "FILL|" + event.Fill.Fingerprint()
	}
	return string(event.Type) + "|" + event.ExchangeOrderID + "|" + event.RejectReason
}
