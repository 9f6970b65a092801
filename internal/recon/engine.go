package recon

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/schema"
)

// Config sets the divergence tolerances. Zero values fall back to the
// defaults below.
type Config struct {
	AbsoluteFloor decimal.Decimal
	RelativeFloor decimal.Decimal
	ZeroFloor     decimal.Decimal
	CashTolerance decimal.Decimal
}

func (c Config) withDefaults() Config {
	if c.AbsoluteFloor.IsZero() {
		c.AbsoluteFloor = decimal.RequireFromString("0.00000001")
	}
	if c.RelativeFloor.IsZero() {
		c.RelativeFloor = decimal.RequireFromString("0.001") // 0.1%
	}
	if c.ZeroFloor.IsZero() {
		c.ZeroFloor = decimal.RequireFromString("0.000001")
	}
	if c.CashTolerance.IsZero() {
		c.CashTolerance = decimal.RequireFromString("0.01")
	}
	return c
}

// InternalView is the engine-side state handed to a reconciliation run.
type InternalView struct {
	Cash      decimal.Decimal
	Positions map[string]decimal.Decimal
	Orders    map[string]schema.OrderState
}

// ExternalSnapshot is the venue-reported view. A nil snapshot mirrors
// the internal view, which reconciles clean by construction.
type ExternalSnapshot struct {
	Cash      *decimal.Decimal
	Positions map[string]decimal.Decimal
	Orders    map[string]schema.OrderState
}

// Engine diffs internal books against an external snapshot. It never
// mutates either side; diffs are findings, not errors.
type Engine struct {
	cfg   Config
	clock schema.Clock
}

// NewEngine creates a reconciliation engine.
func NewEngine(clock schema.Clock, cfg Config) *Engine {
	if clock == nil {
		clock = schema.RealClock{}
	}
	return &Engine{cfg: cfg.withDefaults(), clock: clock}
}

// Reconcile compares internal state to the external snapshot as of the
// given time. Diff ids derive from (runID, type, subject) so repeated
// runs over identical state produce identical diffs.
func (e *Engine) Reconcile(runID string, internal InternalView, external *ExternalSnapshot, asOf time.Time) []schema.ReconDiff {
	if asOf.IsZero() {
		asOf = e.clock.Now()
	}
	if external == nil {
		external = e.mirror(internal)
	}

	var diffs []schema.ReconDiff
	diffs = append(diffs, e.positionDiffs(runID, internal, external, asOf)...)
	if d := e.cashDiff(runID, internal, external, asOf); d != nil {
		diffs = append(diffs, *d)
	}
	diffs = append(diffs, e.orderDiffs(runID, internal, external, asOf)...)
	return diffs
}

// mirror builds an external view identical to the internal one.
func (e *Engine) mirror(internal InternalView) *ExternalSnapshot {
	cash := internal.Cash
	ext := &ExternalSnapshot{
		Cash:      &cash,
		Positions: make(map[string]decimal.Decimal, len(internal.Positions)),
		Orders:    make(map[string]schema.OrderState, len(internal.Orders)),
	}
	for symbol, qty := range internal.Positions {
		ext.Positions[symbol] = qty
	}
	for id, state := range internal.Orders {
		ext.Orders[id] = state
	}
	return ext
}

func (e *Engine) positionDiffs(runID string, internal InternalView, external *ExternalSnapshot, asOf time.Time) []schema.ReconDiff {
	symbols := make(map[string]struct{}, len(internal.Positions)+len(external.Positions))
	for symbol := range internal.Positions {
		symbols[symbol] = struct{}{}
	}
	for symbol := range external.Positions {
		symbols[symbol] = struct{}{}
	}
	ordered := make([]string, 0, len(symbols))
	for symbol := range symbols {
		ordered = append(ordered, symbol)
	}
	sort.Strings(ordered)

	var diffs []schema.ReconDiff
	for _, symbol := range ordered {
		internalQty := internal.Positions[symbol]
		externalQty, reported := external.Positions[symbol]

		delta := internalQty.Sub(externalQty).Abs()
		if delta.LessThanOrEqual(e.cfg.AbsoluteFloor) {
			continue
		}

		var severity schema.Severity
		switch {
		case !internalQty.IsZero() && reported && !externalQty.IsZero() &&
			internalQty.Sign() != externalQty.Sign():
			// Opposite exposure is the worst kind of divergence.
			severity = schema.SeverityCritical
		case !reported || externalQty.IsZero():
			severity = schema.SeverityWarn
			if delta.GreaterThan(e.cfg.ZeroFloor) {
				severity = schema.SeverityFail
			}
		default:
			tolerance := decimal.Max(e.cfg.AbsoluteFloor, externalQty.Abs().Mul(e.cfg.RelativeFloor))
			if delta.LessThanOrEqual(tolerance) {
				continue
			}
			severity = severityByRatio(delta.Div(externalQty.Abs()))
		}

		diffs = append(diffs, schema.ReconDiff{
			DiffID:      schema.DeriveID(runID, "POSITION", symbol),
			Timestamp:   asOf,
			Severity:    severity,
			Type:        schema.DiffTypePosition,
			Description: fmt.Sprintf("position mismatch for %s", symbol),
			Details: map[string]string{
				"symbol":   symbol,
				"internal": internalQty.String(),
				"external": externalQty.String(),
				"delta":    delta.String(),
			},
		})
	}
	return diffs
}

func (e *Engine) cashDiff(runID string, internal InternalView, external *ExternalSnapshot, asOf time.Time) *schema.ReconDiff {
	if external.Cash == nil {
		return nil
	}
	delta := internal.Cash.Sub(*external.Cash).Abs()
	if delta.LessThanOrEqual(e.cfg.CashTolerance) {
		return nil
	}
	// Cash divergence is never tolerable noise.
	return &schema.ReconDiff{
		DiffID:      schema.DeriveID(runID, "CASH"),
		Timestamp:   asOf,
		Severity:    schema.SeverityFail,
		Type:        schema.DiffTypeCash,
		Description: "cash balance mismatch",
		Details: map[string]string{
			"internal": internal.Cash.String(),
			"external": external.Cash.String(),
			"delta":    delta.String(),
		},
	}
}

func (e *Engine) orderDiffs(runID string, internal InternalView, external *ExternalSnapshot, asOf time.Time) []schema.ReconDiff {
	ids := make([]string, 0, len(internal.Orders))
	for id := range internal.Orders {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var diffs []schema.ReconDiff
	for _, id := range ids {
		internalState := internal.Orders[id]
		externalState, reported := external.Orders[id]
		if reported && externalState == internalState {
			continue
		}

		severity := schema.SeverityWarn
		description := fmt.Sprintf("order state mismatch for %s", id)
		if !reported {
			if internalState != schema.OrderStateFilled && internalState != schema.OrderStatePartFilled {
				continue
			}
			severity = schema.SeverityFail
			description = fmt.Sprintf("order %s filled internally but unknown externally", id)
		}

		diffs = append(diffs, schema.ReconDiff{
			DiffID:        schema.DeriveID(runID, "ORDER", id),
			Timestamp:     asOf,
			ClientOrderID: id,
			Severity:      severity,
			Type:          schema.DiffTypeOrder,
			Description:   description,
			Details: map[string]string{
				"internal": string(internalState),
				"external": string(externalState),
			},
		})
	}
	return diffs
}

// severityByRatio maps delta/|external| onto the severity bands.
func severityByRatio(ratio decimal.Decimal) schema.Severity {
	switch {
	case ratio.LessThan(decimal.RequireFromString("0.001")):
		return schema.SeverityInfo
	case ratio.LessThanOrEqual(decimal.RequireFromString("0.01")):
		return schema.SeverityWarn
	default:
		return schema.SeverityFail
	}
}
