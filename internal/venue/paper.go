package venue

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"main/internal/schema"
)

// PaperConfig tunes the paper fill simulator.
type PaperConfig struct {
	FeeBps      int64
	FeeCurrency string
}

// Paper fills every order fully and immediately: limit orders at their
// limit price, market orders at the registry mark. Dispatches are
// cached by idempotency key, so a retried dispatch returns the
// identical event instead of producing a second fill.
type Paper struct {
	cfg      PaperConfig
	clock    schema.Clock
	registry *schema.Registry
	replay   map[string]schema.ExecutionEvent
}

// NewPaper creates a paper adapter.
func NewPaper(cfg PaperConfig, clock schema.Clock, registry *schema.Registry) *Paper {
	if clock == nil {
		clock = schema.RealClock{}
	}
	return &Paper{
		cfg:      cfg,
		clock:    clock,
		registry: registry,
		replay:   make(map[string]schema.ExecutionEvent),
	}
}

func (p *Paper) Name() string { return "paper" }

// ExecuteOrder simulates one execution. The fill's identity fields all
// derive from the idempotency key, so a replayed dispatch carries the
// same fill fingerprint downstream.
func (p *Paper) ExecuteOrder(_ context.Context, order schema.Order, idempotencyKey string) (schema.ExecutionEvent, error) {
	if cached, ok := p.replay[idempotencyKey]; ok {
		return cached, nil
	}

	price := order.Price
	if !order.Type.RequiresPrice() {
		sym, ok := p.registry.Symbol(order.Symbol)
		if !ok || !sym.MarkPrice.IsPositive() {
			return schema.ExecutionEvent{}, fmt.Errorf("%w: no mark price for %s", ErrInvalid, order.Symbol)
		}
		price = sym.MarkPrice
	}

	currency := "USD"
	if sym, ok := p.registry.Symbol(order.Symbol); ok {
		currency = sym.QuoteCurrency
	}
	if p.cfg.FeeCurrency != "" {
		currency = p.cfg.FeeCurrency
	}

	notional := schema.Quantize(order.Qty.Mul(price))
	fee := schema.Quantize(notional.Mul(decimal.NewFromInt(p.cfg.FeeBps)).Div(decimal.NewFromInt(10000)))

	now := p.clock.Now()
	fill := schema.Fill{
		FillID:          schema.DeriveID(idempotencyKey, "fill"),
		ClientOrderID:   order.ClientOrderID,
		ExchangeOrderID: schema.DeriveID(idempotencyKey, "exchange"),
		Symbol:          order.Symbol,
		Side:            order.Side,
		Qty:             schema.Quantize(order.Qty),
		Price:           schema.Quantize(price),
		Fee:             fee,
		FeeCurrency:     currency,
		FilledAt:        now,
		Metadata:        map[string]string{"venue": p.Name()},
	}
	event := schema.ExecutionEvent{
		Type:            schema.ExecutionEventFill,
		ClientOrderID:   order.ClientOrderID,
		ExchangeOrderID: fill.ExchangeOrderID,
		Fill:            &fill,
		Timestamp:       now,
	}
	p.replay[idempotencyKey] = event
	return event, nil
}
