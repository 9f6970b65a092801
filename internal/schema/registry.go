package schema

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Symbol describes a tradable instrument known to the engine.
type Symbol struct {
	Name          string
	QuoteCurrency string
	MarkPrice     decimal.Decimal
}

// Registry stores the tradable symbol universe. Orders referencing a
// symbol outside the registry fail contract validation.
type Registry struct {
	symbols      []Symbol
	symbolByName map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{symbolByName: make(map[string]int)}
}

// AddSymbol registers a new symbol.
func (r *Registry) AddSymbol(sym Symbol) error {
	if sym.Name == "" {
		return fmt.Errorf("symbol name is empty")
	}
	if sym.QuoteCurrency == "" {
		return fmt.Errorf("symbol quote currency is empty: %s", sym.Name)
	}
	if _, ok := r.symbolByName[sym.Name]; ok {
		return fmt.Errorf("symbol already exists: %s", sym.Name)
	}
	r.symbolByName[sym.Name] = len(r.symbols)
	r.symbols = append(r.symbols, sym)
	return nil
}

// Symbol returns the symbol by name.
func (r *Registry) Symbol(name string) (Symbol, bool) {
	idx, ok := r.symbolByName[name]
	if !ok {
		return Symbol{}, false
	}
	return r.symbols[idx], true
}

// Known reports whether the symbol name is registered.
func (r *Registry) Known(name string) bool {
	_, ok := r.symbolByName[name]
	return ok
}

// SymbolCount returns the number of symbols in the registry.
func (r *Registry) SymbolCount() int {
	return len(r.symbols)
}

// SymbolAt returns the symbol by zero-based index.
func (r *Registry) SymbolAt(index int) (Symbol, bool) {
	if index < 0 || index >= len(r.symbols) {
		return Symbol{}, false
	}
	return r.symbols[index], true
}
