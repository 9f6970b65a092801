package ledger

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/schema"
)

// snapshotDoc fixes the key order and formatting of the exported JSON.
// All money fields are rendered with StringFixed so identical logical
// state always serializes to identical bytes.
type snapshotDoc struct {
	TsSim         string           `json:"tsSim"`
	Cash          string           `json:"cash"`
	Equity        string           `json:"equity"`
	RealizedPnL   string           `json:"realizedPnl"`
	UnrealizedPnL string           `json:"unrealizedPnl"`
	Fees          string           `json:"fees"`
	Positions     []snapshotPosDoc `json:"positions"`
}

type snapshotPosDoc struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	AvgCost       string `json:"avgCost"`
	Mark          string `json:"mark"`
	MarketValue   string `json:"marketValue"`
	RealizedPnL   string `json:"realizedPnl"`
	UnrealizedPnL string `json:"unrealizedPnl"`
	Fees          string `json:"fees"`
}

// ExportSnapshotJSON serializes cash, equity and per-position detail as
// deterministic bytes. The call is pure: it never mutates engine state.
func (e *Engine) ExportSnapshotJSON(tsSim time.Time, marks map[string]decimal.Decimal) ([]byte, error) {
	symbols := make([]string, 0, len(e.positions))
	for symbol := range e.positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	var (
		equity     = e.Cash()
		realized   decimal.Decimal
		unrealized decimal.Decimal
		fees       decimal.Decimal
		posDocs    = make([]snapshotPosDoc, 0, len(symbols))
	)
	for _, symbol := range symbols {
		pos := e.positions[symbol]
		mark := marks[symbol]
		value := pos.MarketValue(mark)
		unreal := pos.UnrealizedPnL(mark)

		equity = equity.Add(value)
		realized = realized.Add(pos.RealizedPnL)
		unrealized = unrealized.Add(unreal)
		fees = fees.Add(pos.FeesAccumulated)

		posDocs = append(posDocs, snapshotPosDoc{
			Symbol:        symbol,
			Qty:           pos.Qty.StringFixed(schema.DecimalPlaces),
			AvgCost:       pos.AvgCost().StringFixed(schema.DecimalPlaces),
			Mark:          mark.StringFixed(schema.DecimalPlaces),
			MarketValue:   value.StringFixed(schema.DecimalPlaces),
			RealizedPnL:   pos.RealizedPnL.StringFixed(schema.DecimalPlaces),
			UnrealizedPnL: unreal.StringFixed(schema.DecimalPlaces),
			Fees:          pos.FeesAccumulated.StringFixed(schema.DecimalPlaces),
		})
	}

	doc := snapshotDoc{
		TsSim:         tsSim.UTC().Format(time.RFC3339Nano),
		Cash:          e.Cash().StringFixed(schema.DecimalPlaces),
		Equity:        equity.StringFixed(schema.DecimalPlaces),
		RealizedPnL:   realized.StringFixed(schema.DecimalPlaces),
		UnrealizedPnL: unrealized.StringFixed(schema.DecimalPlaces),
		Fees:          fees.StringFixed(schema.DecimalPlaces),
		Positions:     posDocs,
	}
	return json.Marshal(doc)
}
