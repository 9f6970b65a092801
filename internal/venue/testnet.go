package venue

import (
	"context"

	"main/internal/schema"
)

// ScriptAction is one scripted testnet response.
type ScriptAction struct {
	Event        schema.ExecutionEventType
	RejectReason string
	// Fail, when non-nil, makes the dispatch error before any event is
	// produced. Used to rehearse the retry policy.
	Fail error
}

// Testnet replays operator-scripted responses keyed by client order id.
// Orders without a script are delegated to the wrapped adapter, so a
// testnet run behaves like paper trading except where the script says
// otherwise.
type Testnet struct {
	clock    schema.Clock
	fallback Adapter
	scripts  map[string][]ScriptAction
	cursor   map[string]int
}

// NewTestnet creates a scripted adapter over a fallback.
func NewTestnet(clock schema.Clock, fallback Adapter, scripts map[string][]ScriptAction) *Testnet {
	if clock == nil {
		clock = schema.RealClock{}
	}
	return &Testnet{
		clock:    clock,
		fallback: fallback,
		scripts:  scripts,
		cursor:   make(map[string]int),
	}
}

func (t *Testnet) Name() string { return "testnet" }

func (t *Testnet) ExecuteOrder(ctx context.Context, order schema.Order, idempotencyKey string) (schema.ExecutionEvent, error) {
	script, ok := t.scripts[order.ClientOrderID]
	if !ok {
		return t.fallback.ExecuteOrder(ctx, order, idempotencyKey)
	}
	idx := t.cursor[order.ClientOrderID]
	if idx >= len(script) {
		return t.fallback.ExecuteOrder(ctx, order, idempotencyKey)
	}
	action := script[idx]
	t.cursor[order.ClientOrderID] = idx + 1

	if action.Fail != nil {
		return schema.ExecutionEvent{}, action.Fail
	}
	return schema.ExecutionEvent{
		Type:            action.Event,
		ClientOrderID:   order.ClientOrderID,
		ExchangeOrderID: schema.DeriveID(idempotencyKey, "exchange"),
		RejectReason:    action.RejectReason,
		Timestamp:       t.clock.Now(),
	}, nil
}
