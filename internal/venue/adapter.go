// Package venue provides the deterministic in-process venue adapters
// reachable from the simulated execution modes. No adapter performs
// network I/O.
package venue

import (
	"context"
	"errors"

	"main/internal/schema"
)

// Sentinel errors describing adapter failure classes. Timeout and rate
// limit are retryable; the rest are terminal.
var (
	ErrTimeout     = errors.New("venue timeout")
	ErrRateLimited = errors.New("venue rate limited")
	ErrRejected    = errors.New("venue rejected order")
	ErrInvalid     = errors.New("venue invalid request")
	ErrLiveBlocked = errors.New("live execution is blocked by governance")
)

// Retryable classifies an adapter error. Unknown errors are
// conservatively terminal.
func Retryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited)
}

// Adapter executes one order against a venue. Implementations must be
// deterministic: the same (order, idempotencyKey) yields the same
// event, and a repeated key must not produce a second side effect.
type Adapter interface {
	Name() string
	ExecuteOrder(ctx context.Context, order schema.Order, idempotencyKey string) (schema.ExecutionEvent, error)
}

// Router selects an adapter by resolved execution mode.
type Router struct {
	adapters map[schema.ExecMode]Adapter
}

// NewRouter creates a router over the simulated adapters. There is no
// slot for a live adapter.
func NewRouter() *Router {
	return &Router{adapters: make(map[schema.ExecMode]Adapter)}
}

// Register binds an adapter to a mode. LIVE_BLOCKED cannot be bound.
func (r *Router) Register(mode schema.ExecMode, adapter Adapter) error {
	if mode == schema.ExecModeLiveBlocked {
		return ErrLiveBlocked
	}
	r.adapters[mode] = adapter
	return nil
}

// Route returns the adapter for a mode. LIVE_BLOCKED always fails with
// ErrLiveBlocked; an unbound mode fails with ErrInvalid.
func (r *Router) Route(mode schema.ExecMode) (Adapter, error) {
	if mode == schema.ExecModeLiveBlocked {
		return nil, ErrLiveBlocked
	}
	adapter, ok := r.adapters[mode]
	if !ok {
		return nil, ErrInvalid
	}
	return adapter, nil
}
