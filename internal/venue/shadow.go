package venue

import (
	"context"

	"main/internal/schema"
)

// Shadow acknowledges every order without ever filling it. It is used
// to mirror intended flow against recorded market activity.
type Shadow struct {
	clock schema.Clock
}

// NewShadow creates a shadow adapter.
func NewShadow(clock schema.Clock) *Shadow {
	if clock == nil {
		clock = schema.RealClock{}
	}
	return &Shadow{clock: clock}
}

func (s *Shadow) Name() string { return "shadow" }

func (s *Shadow) ExecuteOrder(_ context.Context, order schema.Order, idempotencyKey string) (schema.ExecutionEvent, error) {
	return schema.ExecutionEvent{
		Type:            schema.ExecutionEventAck,
		ClientOrderID:   order.ClientOrderID,
		ExchangeOrderID: schema.DeriveID(idempotencyKey, "exchange"),
		Timestamp:       s.clock.Now(),
	}, nil
}
