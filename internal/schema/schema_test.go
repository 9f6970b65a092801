package schema

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validOrder() Order {
	return Order{
		ClientOrderID: "c-1",
		Symbol:        "BTCUSDT",
		Side:          OrderSideBuy,
		Type:          OrderTypeLimit,
		Qty:           decimal.NewFromInt(1),
		Price:         decimal.NewFromInt(100),
		State:         OrderStateCreated,
	}
}

func TestOrderValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Order)
		want   error
	}{
		{"ok", func(o *Order) {}, nil},
		{"empty id", func(o *Order) { o.ClientOrderID = "" }, ErrEmptyClientOrderID},
		{"empty symbol", func(o *Order) { o.Symbol = "" }, ErrUnknownSymbol},
		{"bad side", func(o *Order) { o.Side = "HOLD" }, ErrUnknownSide},
		{"bad type", func(o *Order) { o.Type = "ICEBERG" }, ErrUnknownType},
		{"zero qty", func(o *Order) { o.Qty = decimal.Zero }, ErrNonPositiveQty},
		{"negative qty", func(o *Order) { o.Qty = decimal.NewFromInt(-2) }, ErrNonPositiveQty},
		{"limit without price", func(o *Order) { o.Price = decimal.Zero }, ErrMissingPrice},
		{"market with price", func(o *Order) { o.Type = OrderTypeMarket }, ErrUnexpectedPrice},
	}
	for _, tc := range cases {
		order := validOrder()
		tc.mutate(&order)
		if err := order.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, err, tc.want)
		}
	}
}

func TestFillFingerprintStable(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := Fill{
		FillID:          "f-1",
		ClientOrderID:   "c-1",
		ExchangeOrderID: "x-1",
		Symbol:          "BTCUSDT",
		Side:            OrderSideBuy,
		Qty:             decimal.NewFromInt(10),
		Price:           decimal.NewFromInt(100),
		FilledAt:        at,
	}
	b := a
	b.FillID = "f-2" // generated id is not part of the identity
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("fingerprint should ignore fill id")
	}

	c := a
	c.Qty = decimal.RequireFromString("10.00000001")
	if a.Fingerprint() == c.Fingerprint() {
		t.Fatalf("fingerprint should change with content")
	}

	d := a
	d.Qty = decimal.RequireFromString("10.00") // same quantized value
	if a.Fingerprint() != d.Fingerprint() {
		t.Fatalf("fingerprint should quantize before hashing")
	}
}

func TestDeriveIDDeterministic(t *testing.T) {
	a := DeriveID("run-1", "sess-1", "intent-1")
	b := DeriveID("run-1", "sess-1", "intent-1")
	if a != b {
		t.Fatalf("derive id mismatch: %s vs %s", a, b)
	}
	if a == DeriveID("run-1", "sess-1", "intent-2") {
		t.Fatalf("derive id should depend on parts")
	}
}

func TestSeverityRank(t *testing.T) {
	if MaxSeverity(SeverityWarn, SeverityFail) != SeverityFail {
		t.Fatalf("max severity mismatch")
	}
	if SeverityCritical.Rank() <= SeverityFail.Rank() {
		t.Fatalf("critical should outrank fail")
	}
}
