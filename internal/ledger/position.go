package ledger

import (
	"github.com/shopspring/decimal"

	"main/internal/schema"
)

// Position tracks one symbol's holdings under weighted-average cost.
// InventoryCost is the signed cost basis carried on the books;
// AvgCost is derived from it and never stored.
type Position struct {
	Symbol          string
	QuoteCurrency   string
	Qty             decimal.Decimal
	InventoryCost   decimal.Decimal
	RealizedPnL     decimal.Decimal
	FeesAccumulated decimal.Decimal
}

// AvgCost returns the weighted-average cost per unit, zero when flat.
func (p Position) AvgCost() decimal.Decimal {
	if p.Qty.IsZero() {
		return decimal.Zero
	}
	return schema.Quantize(p.InventoryCost.Div(p.Qty))
}

// UnrealizedPnL values the open quantity at mark against its cost.
func (p Position) UnrealizedPnL(mark decimal.Decimal) decimal.Decimal {
	if p.Qty.IsZero() {
		return decimal.Zero
	}
	return schema.Quantize(p.Qty.Mul(mark).Sub(p.InventoryCost))
}

// MarketValue returns qty valued at mark.
func (p Position) MarketValue(mark decimal.Decimal) decimal.Decimal {
	return schema.Quantize(p.Qty.Mul(mark))
}

// fillDelta describes how one fill moves a position: the quantity that
// closes existing exposure, the inventory cost relieved for it, and the
// quantity opened in the fill's direction.
type fillDelta struct {
	closeQty      decimal.Decimal
	closeNotional decimal.Decimal
	costRelieved  decimal.Decimal
	openQty       decimal.Decimal
	openCost      decimal.Decimal
	realizedDelta decimal.Decimal
}

// applyFill splits a fill into closing and opening parts. Closing the
// entire position relieves the entire inventory cost so a flat position
// carries exactly zero cost, with no rounding residue.
func (p *Position) applyFill(side schema.OrderSide, qty, price decimal.Decimal) fillDelta {
	signed := qty
	if side == schema.OrderSideSell {
		signed = qty.Neg()
	}

	var d fillDelta
	remaining := signed

	// Reduce existing exposure first when the fill opposes it.
	if !p.Qty.IsZero() && p.Qty.Sign() != signed.Sign() {
		closeQty := decimal.Min(p.Qty.Abs(), signed.Abs())
		if closeQty.Equal(p.Qty.Abs()) {
			d.costRelieved = p.InventoryCost
		} else {
			d.costRelieved = schema.Quantize(p.AvgCost().Mul(closeQty)).Mul(sign(p.Qty))
		}
		d.closeNotional = schema.Quantize(closeQty.Mul(price)).Mul(sign(p.Qty))
		d.closeQty = closeQty
		d.realizedDelta = d.closeNotional.Sub(d.costRelieved)

		p.Qty = p.Qty.Sub(closeQty.Mul(sign(p.Qty)))
		p.InventoryCost = p.InventoryCost.Sub(d.costRelieved)
		p.RealizedPnL = schema.Quantize(p.RealizedPnL.Add(d.realizedDelta))
		remaining = signed.Sub(closeQty.Mul(sign(signed)))
	}

	// Whatever is left extends (or opens) in the fill's direction; the
	// weighted-average cost moves only on this path.
	if !remaining.IsZero() {
		d.openQty = remaining
		d.openCost = schema.Quantize(remaining.Mul(price))
		p.Qty = p.Qty.Add(remaining)
		p.InventoryCost = p.InventoryCost.Add(d.openCost)
	}

	return d
}

func sign(d decimal.Decimal) decimal.Decimal {
	if d.Sign() < 0 {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}
