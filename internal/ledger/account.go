package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"main/internal/schema"
)

// Well-known account names. Inventory, fee and P&L accounts are
// parameterized by symbol and currency.
const (
	AccountCash    = "CASH"
	AccountOpening = "OPENING_BALANCES"
)

// InventoryAccount names the inventory-cost account for a symbol.
func InventoryAccount(symbol, currency string) string {
	return "INVENTORY_COST:" + symbol + ":" + currency
}

// FeesAccount names the fee-expense account for a currency.
func FeesAccount(currency string) string {
	return "FEES_EXPENSE:" + currency
}

// RealizedPnLAccount names the realized P&L account for a symbol.
func RealizedPnLAccount(symbol string) string {
	return "REALIZED_PNL:" + symbol
}

// Posting is one signed leg of a journal entry.
type Posting struct {
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
}

// JournalEntry is one balanced posting set. The journal is the
// append-only source of truth; balances are derived from it.
type JournalEntry struct {
	Sequence      uint64    `json:"sequence"`
	Fingerprint   string    `json:"fingerprint,omitempty"`
	FillID        string    `json:"fillId,omitempty"`
	ClientOrderID string    `json:"clientOrderId,omitempty"`
	Symbol        string    `json:"symbol,omitempty"`
	Memo          string    `json:"memo"`
	At            time.Time `json:"at"`
	Postings      []Posting `json:"postings"`
}

// PostingSum returns the signed sum over all postings. A well-formed
// entry sums to exactly zero.
func (e JournalEntry) PostingSum() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range e.Postings {
		sum = sum.Add(p.Amount)
	}
	return sum
}

// balanced drops zero-amount legs and verifies the zero-sum invariant.
func balanced(postings []Posting) ([]Posting, bool) {
	out := make([]Posting, 0, len(postings))
	sum := decimal.Zero
	for _, p := range postings {
		if p.Amount.IsZero() {
			continue
		}
		p.Amount = schema.Quantize(p.Amount)
		sum = sum.Add(p.Amount)
		out = append(out, p)
	}
	return out, sum.IsZero()
}
