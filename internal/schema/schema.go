package schema

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyClientOrderID = errors.New("client order id is empty")
	ErrUnknownSymbol      = errors.New("symbol is unknown")
	ErrUnknownSide        = errors.New("order side is unknown")
	ErrUnknownType        = errors.New("order type is unknown")
	ErrNonPositiveQty     = errors.New("order quantity must be > 0")
	ErrMissingPrice       = errors.New("order type requires a price")
	ErrUnexpectedPrice    = errors.New("order type forbids a price")
)

// DecimalPlaces is the quantization applied to every money and quantity
// value before it is stored or compared.
const DecimalPlaces = 8

// Quantize rounds a decimal to the canonical precision.
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.Round(DecimalPlaces)
}

// OrderSide describes order direction.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType describes order type.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStop      OrderType = "STOP"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
)

// RequiresPrice reports whether the order type carries a limit price.
func (t OrderType) RequiresPrice() bool {
	switch t {
	case OrderTypeLimit, OrderTypeStop, OrderTypeStopLimit:
		return true
	default:
		return false
	}
}

// OrderState tracks the lifecycle of an order.
type OrderState string

const (
	OrderStateCreated    OrderState = "CREATED"
	OrderStateSubmitted  OrderState = "SUBMITTED"
	OrderStateAcked      OrderState = "ACKNOWLEDGED"
	OrderStatePartFilled OrderState = "PARTIALLY_FILLED"
	OrderStateFilled     OrderState = "FILLED"
	OrderStateClosed     OrderState = "CLOSED"
	OrderStateRejected   OrderState = "REJECTED"
	OrderStateCancelled  OrderState = "CANCELLED"
	OrderStateFailed     OrderState = "FAILED"
)

// Terminal reports whether no further transition can leave the state.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateClosed, OrderStateRejected, OrderStateCancelled, OrderStateFailed:
		return true
	default:
		return false
	}
}

// ExecMode selects the venue routing target.
type ExecMode string

const (
	ExecModePaper       ExecMode = "PAPER"
	ExecModeShadow      ExecMode = "SHADOW"
	ExecModeTestnet     ExecMode = "TESTNET"
	ExecModeLiveBlocked ExecMode = "LIVE_BLOCKED"
)

// Order is the engine's view of one order. Only the state machine and
// the pipeline mutate it; everything else treats it as a value.
type Order struct {
	ClientOrderID string          `json:"clientOrderId"`
	Symbol        string          `json:"symbol"`
	Side          OrderSide       `json:"side"`
	Type          OrderType       `json:"type"`
	Qty           decimal.Decimal `json:"qty"`
	Price         decimal.Decimal `json:"price"`
	State         OrderState      `json:"state"`
	StrategyID    string          `json:"strategyId"`
	SessionID     string          `json:"sessionId"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Validate checks the order invariants that hold independently of any
// engine state.
func (o Order) Validate() error {
	if o.ClientOrderID == "" {
		return ErrEmptyClientOrderID
	}
	if o.Symbol == "" {
		return ErrUnknownSymbol
	}
	if o.Side != OrderSideBuy && o.Side != OrderSideSell {
		return ErrUnknownSide
	}
	switch o.Type {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStop, OrderTypeStopLimit:
	default:
		return ErrUnknownType
	}
	if !o.Qty.IsPositive() {
		return ErrNonPositiveQty
	}
	if o.Type.RequiresPrice() && !o.Price.IsPositive() {
		return ErrMissingPrice
	}
	if !o.Type.RequiresPrice() && !o.Price.IsZero() {
		return ErrUnexpectedPrice
	}
	return nil
}

// Notional returns price*qty quantized to the canonical precision.
func (o Order) Notional() decimal.Decimal {
	return Quantize(o.Price.Mul(o.Qty))
}

// RiskAction is the outcome of a risk hook evaluation.
type RiskAction string

const (
	RiskActionAllow RiskAction = "ALLOW"
	RiskActionBlock RiskAction = "BLOCK"
	RiskActionPause RiskAction = "PAUSE"
)

// RiskDecision is returned by a risk hook. Hooks are pure: evaluating
// an order has no side effects.
type RiskDecision struct {
	Action RiskAction `json:"action"`
	Reason string     `json:"reason"`
}

// ExecutionEventType describes the venue response category.
type ExecutionEventType string

const (
	ExecutionEventAck       ExecutionEventType = "ACK"
	ExecutionEventReject    ExecutionEventType = "REJECT"
	ExecutionEventFill      ExecutionEventType = "FILL"
	ExecutionEventCancelAck ExecutionEventType = "CANCEL_ACK"
)

// ExecutionEvent is the venue adapter's answer to a dispatched order.
type ExecutionEvent struct {
	Type            ExecutionEventType `json:"type"`
	ClientOrderID   string             `json:"clientOrderId"`
	ExchangeOrderID string             `json:"exchangeOrderId,omitempty"`
	Fill            *Fill              `json:"fill,omitempty"`
	RejectReason    string             `json:"rejectReason,omitempty"`
	Timestamp       time.Time          `json:"timestamp"`
}
