package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"main/internal/schema"
)

var (
	ErrDuplicateFillConflict = errors.New("fill id already applied with different content")
	ErrUnbalancedEntry       = errors.New("journal entry postings do not sum to zero")
	ErrUnknownLedgerSymbol   = errors.New("fill symbol not in registry")
	ErrNonFlatInventory      = errors.New("flat position carries non-zero inventory cost")
	ErrNegativeOpeningCash   = errors.New("opening cash must be >= 0")
)

// ApplyResult reports what one Apply call did. Applied is false when
// the fill was an exact duplicate and was skipped.
type ApplyResult struct {
	Applied  bool
	Entry    JournalEntry
	Position Position
}

// Engine is the double-entry ledger. It is the sole owner of the
// journal and all derived state; callers sharing one engine must
// serialize access behind a single writer.
type Engine struct {
	clock    schema.Clock
	registry *schema.Registry

	journal   []JournalEntry
	balances  map[string]decimal.Decimal
	positions map[string]*Position

	byFillID      map[string]string
	byFingerprint map[string]struct{}
	seq           uint64
}

// NewEngine creates an empty ledger over the given symbol registry.
func NewEngine(clock schema.Clock, registry *schema.Registry) *Engine {
	if clock == nil {
		clock = schema.RealClock{}
	}
	return &Engine{
		clock:         clock,
		registry:      registry,
		balances:      make(map[string]decimal.Decimal),
		positions:     make(map[string]*Position),
		byFillID:      make(map[string]string),
		byFingerprint: make(map[string]struct{}),
	}
}

// OpenCash seeds the CASH account against OPENING_BALANCES.
func (e *Engine) OpenCash(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeOpeningCash
	}
	entry := JournalEntry{
		Memo: "opening cash",
		Postings: []Posting{
			{Account: AccountCash, Amount: amount},
			{Account: AccountOpening, Amount: amount.Neg()},
		},
	}
	return e.append(entry)
}

// Apply posts one fill to the journal. An exact repeat (identical
// fingerprint) is a silent no-op; a fill reusing an applied fill id
// with different content fails with ErrDuplicateFillConflict and
// changes nothing.
func (e *Engine) Apply(fill schema.Fill) (ApplyResult, error) {
	if err := fill.Validate(); err != nil {
		return ApplyResult{}, err
	}
	sym, ok := e.registry.Symbol(fill.Symbol)
	if !ok {
		return ApplyResult{}, fmt.Errorf("%w: %s", ErrUnknownLedgerSymbol, fill.Symbol)
	}

	fingerprint := fill.Fingerprint()
	if stored, ok := e.byFillID[fill.FillID]; ok {
		if stored == fingerprint {
			return e.duplicateResult(fill), nil
		}
		return ApplyResult{}, fmt.Errorf("%w: %s", ErrDuplicateFillConflict, fill.FillID)
	}
	if _, ok := e.byFingerprint[fingerprint]; ok {
		// Replayed fill under a fresh id: same economic event, skip.
		e.byFillID[fill.FillID] = fingerprint
		return e.duplicateResult(fill), nil
	}

	currency := fill.FeeCurrency
	if currency == "" {
		currency = sym.QuoteCurrency
	}

	pos, ok := e.positions[fill.Symbol]
	if !ok {
		pos = &Position{Symbol: fill.Symbol, QuoteCurrency: sym.QuoteCurrency}
		e.positions[fill.Symbol] = pos
	}

	qty := schema.Quantize(fill.Qty)
	price := schema.Quantize(fill.Price)
	fee := schema.Quantize(fill.Fee)

	delta := pos.applyFill(fill.Side, qty, price)
	pos.FeesAccumulated = schema.Quantize(pos.FeesAccumulated.Add(fee))

	// The cash leg is assembled from the same quantized pieces as the
	// inventory and P&L legs, keeping the posting sum exactly zero.
	cashLeg := delta.closeNotional.Sub(delta.openCost)

	postings := []Posting{
		{Account: AccountCash, Amount: cashLeg.Sub(fee)},
		{Account: InventoryAccount(fill.Symbol, sym.QuoteCurrency), Amount: delta.openCost.Sub(delta.costRelieved)},
		{Account: FeesAccount(currency), Amount: fee},
		{Account: RealizedPnLAccount(fill.Symbol), Amount: delta.realizedDelta.Neg()},
	}
	entry := JournalEntry{
		Fingerprint:   fingerprint,
		FillID:        fill.FillID,
		ClientOrderID: fill.ClientOrderID,
		Symbol:        fill.Symbol,
		Memo:          fmt.Sprintf("%s %s %s @ %s", fill.Side, qty.String(), fill.Symbol, price.String()),
		Postings:      postings,
	}
	if err := e.append(entry); err != nil {
		return ApplyResult{}, err
	}

	e.byFillID[fill.FillID] = fingerprint
	e.byFingerprint[fingerprint] = struct{}{}
	return ApplyResult{Applied: true, Entry: e.journal[len(e.journal)-1], Position: *pos}, nil
}

func (e *Engine) duplicateResult(fill schema.Fill) ApplyResult {
	res := ApplyResult{Applied: false}
	if pos, ok := e.positions[fill.Symbol]; ok {
		res.Position = *pos
	}
	return res
}

// append validates and commits one journal entry.
func (e *Engine) append(entry JournalEntry) error {
	postings, ok := balanced(entry.Postings)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnbalancedEntry, entry.Memo)
	}
	e.seq++
	entry.Sequence = e.seq
	entry.At = e.clock.Now()
	entry.Postings = postings
	e.journal = append(e.journal, entry)
	for _, p := range postings {
		e.balances[p.Account] = e.balances[p.Account].Add(p.Amount)
	}
	return nil
}

// Cash returns the CASH balance.
func (e *Engine) Cash() decimal.Decimal {
	return e.balances[AccountCash]
}

// Balance returns the balance of one account.
func (e *Engine) Balance(account string) decimal.Decimal {
	return e.balances[account]
}

// Position returns the position for a symbol.
func (e *Engine) Position(symbol string) (Position, bool) {
	pos, ok := e.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Positions returns a copy of every tracked position keyed by symbol.
func (e *Engine) Positions() map[string]Position {
	out := make(map[string]Position, len(e.positions))
	for symbol, pos := range e.positions {
		out[symbol] = *pos
	}
	return out
}

// Journal returns a copy of all journal entries in sequence order.
func (e *Engine) Journal() []JournalEntry {
	out := make([]JournalEntry, len(e.journal))
	copy(out, e.journal)
	return out
}

// CheckInvariants re-derives balances from the journal and verifies the
// zero-sum and flat-inventory invariants. Violations indicate an engine
// bug, not bad input.
func (e *Engine) CheckInvariants() error {
	derived := make(map[string]decimal.Decimal)
	for _, entry := range e.journal {
		if !entry.PostingSum().IsZero() {
			return fmt.Errorf("%w: seq=%d", ErrUnbalancedEntry, entry.Sequence)
		}
		for _, p := range entry.Postings {
			derived[p.Account] = derived[p.Account].Add(p.Amount)
		}
	}
	for account, want := range derived {
		if !e.balances[account].Equal(want) {
			return fmt.Errorf("cached balance diverged for %s: cached=%s derived=%s",
				account, e.balances[account].String(), want.String())
		}
	}
	for symbol, pos := range e.positions {
		if pos.Qty.IsZero() && !pos.InventoryCost.IsZero() {
			return fmt.Errorf("%w: %s cost=%s", ErrNonFlatInventory, symbol, pos.InventoryCost.String())
		}
		account := InventoryAccount(symbol, pos.QuoteCurrency)
		if !e.balances[account].Equal(schema.Quantize(pos.InventoryCost)) {
			return fmt.Errorf("inventory account diverged for %s: account=%s position=%s",
				symbol, e.balances[account].String(), pos.InventoryCost.String())
		}
	}
	return nil
}
