package risk

import (
	"github.com/shopspring/decimal"

	"main/internal/schema"
)

// Reason codes carried on BLOCK/PAUSE decisions.
const (
	ReasonNone        = ""
	ReasonPaused      = "STRATEGY_PAUSED"
	ReasonMaxQty      = "MAX_ORDER_QTY"
	ReasonMaxNotional = "MAX_ORDER_NOTIONAL"
	ReasonPriceBand   = "PRICE_BAND"
)

// Config defines the static limits. Zero limits disable a check.
type Config struct {
	Paused               bool            `json:"paused"`
	MaxOrderQty          decimal.Decimal `json:"maxOrderQty"`
	MaxOrderNotional     decimal.Decimal `json:"maxOrderNotional"`
	MaxPriceDeviationBps int64           `json:"maxPriceDeviationBps"`
}

// Engine is a static-limit risk hook. It is pure: Evaluate has no side
// effects and the same order always yields the same decision.
type Engine struct {
	cfg      Config
	registry *schema.Registry
}

// NewEngine creates a risk hook with static limits. registry supplies
// reference prices for the deviation check and may be nil.
func NewEngine(cfg Config, registry *schema.Registry) *Engine {
	return &Engine{cfg: cfg, registry: registry}
}

// EvaluateOrder applies the configured checks in a fixed order and
// returns the first violation.
func (e *Engine) EvaluateOrder(order schema.Order) schema.RiskDecision {
	if e.cfg.Paused {
		return schema.RiskDecision{Action: schema.RiskActionPause, Reason: ReasonPaused}
	}

	if e.cfg.MaxOrderQty.IsPositive() && order.Qty.GreaterThan(e.cfg.MaxOrderQty) {
		return schema.RiskDecision{Action: schema.RiskActionBlock, Reason: ReasonMaxQty}
	}

	if e.cfg.MaxOrderNotional.IsPositive() && order.Price.IsPositive() {
		if order.Notional().GreaterThan(e.cfg.MaxOrderNotional) {
			return schema.RiskDecision{Action: schema.RiskActionBlock, Reason: ReasonMaxNotional}
		}
	}

	if e.cfg.MaxPriceDeviationBps > 0 && order.Type == schema.OrderTypeLimit && e.registry != nil {
		if sym, ok := e.registry.Symbol(order.Symbol); ok && sym.MarkPrice.IsPositive() {
			diff := order.Price.Sub(sym.MarkPrice).Abs()
			limit := sym.MarkPrice.Mul(decimal.NewFromInt(e.cfg.MaxPriceDeviationBps)).
				Div(decimal.NewFromInt(10000))
			if diff.GreaterThan(limit) {
				return schema.RiskDecision{Action: schema.RiskActionBlock, Reason: ReasonPriceBand}
			}
		}
	}

	return schema.RiskDecision{Action: schema.RiskActionAllow, Reason: ReasonNone}
}
