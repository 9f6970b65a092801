package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrFillNonPositiveQty = errors.New("fill quantity must be > 0")
	ErrFillNegativePrice  = errors.New("fill price must be >= 0")
	ErrFillNegativeFee    = errors.New("fill fee must be >= 0")
	ErrFillEmptyID        = errors.New("fill id is empty")
)

// Fill is one immutable execution report from a venue.
type Fill struct {
	FillID          string            `json:"fillId"`
	ClientOrderID   string            `json:"clientOrderId"`
	ExchangeOrderID string            `json:"exchangeOrderId"`
	Symbol          string            `json:"symbol"`
	Side            OrderSide         `json:"side"`
	Qty             decimal.Decimal   `json:"qty"`
	Price           decimal.Decimal   `json:"price"`
	Fee             decimal.Decimal   `json:"fee"`
	FeeCurrency     string            `json:"feeCurrency"`
	FilledAt        time.Time         `json:"filledAt"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Validate checks the fill invariants.
func (f Fill) Validate() error {
	if f.FillID == "" {
		return ErrFillEmptyID
	}
	if f.ClientOrderID == "" {
		return ErrEmptyClientOrderID
	}
	if f.Symbol == "" {
		return ErrUnknownSymbol
	}
	if f.Side != OrderSideBuy && f.Side != OrderSideSell {
		return ErrUnknownSide
	}
	if !f.Qty.IsPositive() {
		return ErrFillNonPositiveQty
	}
	if f.Price.IsNegative() {
		return ErrFillNegativePrice
	}
	if f.Fee.IsNegative() {
		return ErrFillNegativeFee
	}
	return nil
}

// Notional returns price*qty quantized to the canonical precision.
func (f Fill) Notional() decimal.Decimal {
	return Quantize(f.Price.Mul(f.Qty))
}

// Fingerprint derives the fill identity used for duplicate detection.
// Two fills with the same fingerprint are the same economic event; the
// generated FillID is deliberately excluded so a replayed fill with a
// fresh id still deduplicates.
func (f Fill) Fingerprint() string {
	var b strings.Builder
	b.WriteString(f.ClientOrderID)
	b.WriteByte('|')
	b.WriteString(f.ExchangeOrderID)
	b.WriteByte('|')
	b.WriteString(f.Symbol)
	b.WriteByte('|')
	b.WriteString(string(f.Side))
	b.WriteByte('|')
	b.WriteString(Quantize(f.Qty).String())
	b.WriteByte('|')
	b.WriteString(Quantize(f.Price).String())
	b.WriteByte('|')
	b.WriteString(f.FilledAt.UTC().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
