package venue

import (
	"context"

	"main/internal/schema"
)

// Flaky wraps an adapter and fails the first N dispatches of every
// idempotency key with a transient error. It exists to rehearse the
// pipeline's retry policy without touching the wrapped adapter's
// determinism: once the failures are exhausted the underlying event is
// the same one a clean run would have produced.
type Flaky struct {
	inner    Adapter
	failures int
	err      error
	attempts map[string]int
}

// NewFlaky wraps inner, failing each key's first `failures` calls with
// err (ErrTimeout when err is nil).
func NewFlaky(inner Adapter, failures int, err error) *Flaky {
	if err == nil {
		err = ErrTimeout
	}
	return &Flaky{
		inner:    inner,
		failures: failures,
		err:      err,
		attempts: make(map[string]int),
	}
}

func (f *Flaky) Name() string { return f.inner.Name() + "+flaky" }

func (f *Flaky) ExecuteOrder(ctx context.Context, order schema.Order, idempotencyKey string) (schema.ExecutionEvent, error) {
	f.attempts[idempotencyKey]++
	if f.attempts[idempotencyKey] <= f.failures {
		return schema.ExecutionEvent{}, f.err
	}
	return f.inner.ExecuteOrder(ctx, order, idempotencyKey)
}

// Attempts reports how many times a key has been dispatched.
func (f *Flaky) Attempts(idempotencyKey string) int {
	return f.attempts[idempotencyKey]
}
