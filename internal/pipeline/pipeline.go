package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/audit"
	"main/internal/gov"
	"main/internal/ledger"
	"main/internal/obs"
	"main/internal/order"
	"main/internal/recon"
	"main/internal/schema"
	"main/internal/venue"
)

var (
	ErrNilDependency = errors.New("pipeline dependency is nil")
	ErrAuditFailed   = errors.New("audit append failed")
)

// Outcome classifies what the pipeline did with one intent.
type Outcome string

const (
	OutcomeAccepted         Outcome = "ACCEPTED"
	OutcomeValidationReject Outcome = "VALIDATION_REJECT"
	OutcomeRiskReject       Outcome = "RISK_REJECT"
	OutcomeGovernanceReject Outcome = "GOVERNANCE_REJECT"
	OutcomeVenueReject      Outcome = "VENUE_REJECT"
	OutcomeCancelled        Outcome = "CANCELLED"
	OutcomeFailed           Outcome = "FAILED"
)

// Stable reason codes carried on rejects. Risk hook reasons are prefixed
// with ReasonRiskPrefix.
const (
	ReasonBadQty         = "VALIDATION_REJECT_BAD_QTY"
	ReasonBadSymbol      = "VALIDATION_REJECT_BAD_SYMBOL"
	ReasonBadSide        = "VALIDATION_REJECT_BAD_SIDE"
	ReasonBadType        = "VALIDATION_REJECT_BAD_TYPE"
	ReasonBadPrice       = "VALIDATION_REJECT_BAD_PRICE"
	ReasonBadIntent      = "VALIDATION_REJECT_BAD_INTENT"
	ReasonKillSwitch     = "RISK_REJECT_KILL_SWITCH"
	ReasonMaxPosition    = "RISK_REJECT_MAX_POSITION"
	ReasonRiskPrefix     = "RISK_REJECT_"
	ReasonLiveBlocked    = "GOVERNANCE_REJECT_LIVE_BLOCKED"
	ReasonNoAdapter      = "DISPATCH_NO_ADAPTER"
	ReasonDispatchFailed = "DISPATCH_FAILED"
	ReasonTimeout        = "DISPATCH_TIMEOUT"
	ReasonRateLimited    = "DISPATCH_RATE_LIMITED"
)

// OrderIntent is the caller's request to trade. The pipeline derives the
// order identity from it; submitting the same intent twice lands on the
// same order.
type OrderIntent struct {
	IntentID   string           `json:"intentId"`
	StrategyID string           `json:"strategyId"`
	Symbol     string           `json:"symbol"`
	Side       schema.OrderSide `json:"side"`
	Type       schema.OrderType `json:"type"`
	Qty        decimal.Decimal  `json:"qty"`
	Price      decimal.Decimal  `json:"price"`
}

// SubmitResult is the typed outcome of one Submit call. Validation,
// risk, governance and venue rejects are results, not errors; the error
// return is reserved for engine faults.
type SubmitResult struct {
	ClientOrderID string
	Outcome       Outcome
	ReasonCode    string
	Order         schema.Order
	Fill          *schema.Fill
}

// Config tunes one orchestrator.
type Config struct {
	Mode        schema.ExecMode
	KillSwitch  bool
	MaxPosition decimal.Decimal
	MaxRetries  int
	RetryDelay  time.Duration
}

// Deps wires the orchestrator to the engine components it drives. The
// state machine must be constructed without a risk hook; the pipeline
// evaluates Risk itself so the reject carries a stable reason code.
type Deps struct {
	Clock    schema.Clock
	Registry *schema.Registry
	Orders   *order.Machine
	Ledger   *ledger.Engine
	Audit    *audit.Log
	Router   *venue.Router
	Gate     *gov.Gate
	Risk     order.RiskHook
	Metrics  *obs.Metrics
}

// Orchestrator runs intents through the stages in a fixed order. No
// stage is skippable; a stage either passes the intent on or settles it
// with a terminal result. Not safe for concurrent use.
type Orchestrator struct {
	cfg       Config
	runID     string
	sessionID string
	deps      Deps
	results   map[string]SubmitResult
}

// NewOrchestrator creates an orchestrator for one run.
func NewOrchestrator(cfg Config, runID, sessionID string, deps Deps) (*Orchestrator, error) {
	if deps.Registry == nil || deps.Orders == nil || deps.Ledger == nil ||
		deps.Audit == nil || deps.Router == nil || deps.Gate == nil {
		return nil, ErrNilDependency
	}
	if deps.Clock == nil {
		deps.Clock = schema.RealClock{}
	}
	if deps.Metrics == nil {
		deps.Metrics = &obs.Metrics{}
	}
	return &Orchestrator{
		cfg:       cfg,
		runID:     runID,
		sessionID: sessionID,
		deps:      deps,
		results:   make(map[string]SubmitResult),
	}, nil
}

// RunID returns the run identity all derived ids are scoped to.
func (o *Orchestrator) RunID() string { return o.runID }

// Submit drives one intent through every stage. Re-submitting an intent
// already settled in this run returns the prior result unchanged.
func (o *Orchestrator) Submit(ctx context.Context, intent OrderIntent) (SubmitResult, error) {
	clientOrderID := schema.DeriveID(o.runID, o.sessionID, intent.IntentID)
	if prior, ok := o.results[clientOrderID]; ok {
		return prior, nil
	}
	o.deps.Metrics.IncIntent()
	if err := o.note(schema.AuditIntentReceived, clientOrderID, "", "", map[string]string{
		"intentId": intent.IntentID,
		"symbol":   intent.Symbol,
		"side":     string(intent.Side),
		"qty":      intent.Qty.String(),
	}); err != nil {
		return SubmitResult{}, err
	}

	ord := schema.Order{
		ClientOrderID: clientOrderID,
		Symbol:        intent.Symbol,
		Side:          intent.Side,
		Type:          intent.Type,
		Qty:           intent.Qty,
		Price:         intent.Price,
		StrategyID:    intent.StrategyID,
		SessionID:     o.sessionID,
	}

	result, err := o.run(ctx, ord)
	if err != nil {
		return result, err
	}
	o.results[clientOrderID] = result
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, ord schema.Order) (SubmitResult, error) {
	// Stage: contract validation.
	if reason, ok := o.validate(ord); !ok {
		o.deps.Metrics.IncValidationReject()
		if err := o.note(schema.AuditValidationReject, ord.ClientOrderID, "", "",
			map[string]string{"reason": reason}); err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{
			ClientOrderID: ord.ClientOrderID,
			Outcome:       OutcomeValidationReject,
			ReasonCode:    reason,
		}, nil
	}

	created, err := o.deps.Orders.CreateOrder(ord)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("create order: %w", err)
	}

	// Stage: pre-trade risk gate.
	if reason, ok := o.riskCheck(created); !ok {
		return o.settleRiskReject(created, reason)
	}

	// Stage: route selection under governance.
	resolved := o.deps.Gate.Resolve(o.cfg.Mode)
	adapter, routeErr := o.deps.Router.Route(resolved)
	if routeErr != nil {
		return o.settleRouteFailure(created, routeErr)
	}

	// Stage: submit and dispatch.
	submitted, err := o.deps.Orders.SubmitOrder(created.ClientOrderID)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("submit order: %w", err)
	}
	if err := o.noteTransition(schema.AuditOrderSubmitted, submitted,
		map[string]string{"mode": string(resolved), "venue": adapter.Name()}); err != nil {
		return SubmitResult{}, err
	}

	event, result, dispatchErr := o.dispatch(ctx, adapter, submitted.Order)
	if dispatchErr != nil {
		return result, dispatchErr
	}
	if result.Outcome == OutcomeFailed {
		return result, nil
	}

	// Stage: execution event handling and post-trade hooks.
	return o.handleEvent(event)
}

// validate maps contract violations to stable reason codes. The order
// carries a derived id and session fields, so only the intent-supplied
// fields can fail here.
func (o *Orchestrator) validate(ord schema.Order) (string, bool) {
	if !o.deps.Registry.Known(ord.Symbol) {
		return ReasonBadSymbol, false
	}
	err := ord.Validate()
	switch {
	case err == nil:
		return "", true
	case errors.Is(err, schema.ErrNonPositiveQty):
		return ReasonBadQty, false
	case errors.Is(err, schema.ErrUnknownSymbol):
		return ReasonBadSymbol, false
	case errors.Is(err, schema.ErrUnknownSide):
		return ReasonBadSide, false
	case errors.Is(err, schema.ErrUnknownType):
		return ReasonBadType, false
	case errors.Is(err, schema.ErrMissingPrice), errors.Is(err, schema.ErrUnexpectedPrice):
		return ReasonBadPrice, false
	default:
		return ReasonBadIntent, false
	}
}

// riskCheck runs the orchestrator-owned gates before the injected hook.
func (o *Orchestrator) riskCheck(ord schema.Order) (string, bool) {
	if o.cfg.KillSwitch {
		return ReasonKillSwitch, false
	}
	if o.cfg.MaxPosition.IsPositive() {
		current := decimal.Zero
		if pos, ok := o.deps.Ledger.Position(ord.Symbol); ok {
			current = pos.Qty
		}
		signed := ord.Qty
		if ord.Side == schema.OrderSideSell {
			signed = signed.Neg()
		}
		if current.Add(signed).Abs().GreaterThan(o.cfg.MaxPosition) {
			return ReasonMaxPosition, false
		}
	}
	if o.deps.Risk != nil {
		decision := o.deps.Risk.EvaluateOrder(ord)
		if decision.Action != schema.RiskActionAllow {
			return ReasonRiskPrefix + decision.Reason, false
		}
	}
	return "", true
}

func (o *Orchestrator) settleRiskReject(created schema.Order, reason string) (SubmitResult, error) {
	o.deps.Metrics.IncRiskReject()
	result, err := o.deps.Orders.ApplyEvent(schema.ExecutionEvent{
		Type:          schema.ExecutionEventReject,
		ClientOrderID: created.ClientOrderID,
		RejectReason:  reason,
		Timestamp:     o.deps.Clock.Now(),
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("risk reject transition: %w", err)
	}
	if err := o.noteTransition(schema.AuditRiskReject, result,
		map[string]string{"reason": reason}); err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{
		ClientOrderID: created.ClientOrderID,
		Outcome:       OutcomeRiskReject,
		ReasonCode:    reason,
		Order:         result.Order,
	}, nil
}

func (o *Orchestrator) settleRouteFailure(created schema.Order, routeErr error) (SubmitResult, error) {
	if errors.Is(routeErr, venue.ErrLiveBlocked) {
		o.deps.Metrics.IncGovernanceReject()
		result, err := o.deps.Orders.Fail(created.ClientOrderID, "LIVE_BLOCKED")
		if err != nil {
			return SubmitResult{}, fmt.Errorf("governance reject transition: %w", err)
		}
		if err := o.noteTransition(schema.AuditGovernanceReject, result,
			map[string]string{"reason": ReasonLiveBlocked, "mode": string(o.cfg.Mode)}); err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{
			ClientOrderID: created.ClientOrderID,
			Outcome:       OutcomeGovernanceReject,
			ReasonCode:    ReasonLiveBlocked,
			Order:         result.Order,
		}, nil
	}
	return o.settleFailure(created.ClientOrderID, ReasonNoAdapter, routeErr)
}

// dispatch calls the adapter with a content-derived idempotency key and
// retries transient failures up to the configured bound. The key folds
// in the order content, so a resubmission of identical content replays
// the same venue side effect.
func (o *Orchestrator) dispatch(ctx context.Context, adapter venue.Adapter, ord schema.Order) (schema.ExecutionEvent, SubmitResult, error) {
	key := dispatchKey(o.runID, ord)
	attempts := o.cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		o.deps.Metrics.IncDispatch()
		event, err := adapter.ExecuteOrder(ctx, ord, key)
		if err == nil {
			return event, SubmitResult{}, nil
		}
		lastErr = err
		if !venue.Retryable(err) || attempt == attempts {
			break
		}
		o.deps.Metrics.IncDispatchRetry()
		if noteErr := o.note(schema.AuditAdapterRetry, ord.ClientOrderID,
			schema.OrderStateSubmitted, schema.OrderStateSubmitted, map[string]string{
				"attempt": strconv.Itoa(attempt),
				"error":   err.Error(),
			}); noteErr != nil {
			return schema.ExecutionEvent{}, SubmitResult{}, noteErr
		}
		if o.cfg.RetryDelay > 0 {
			// Exponential backoff from the base delay.
			delay := o.cfg.RetryDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return schema.ExecutionEvent{}, SubmitResult{}, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	result, err := o.settleFailure(ord.ClientOrderID, dispatchReason(lastErr), lastErr)
	return schema.ExecutionEvent{}, result, err
}

func dispatchReason(err error) string {
	switch {
	case errors.Is(err, venue.ErrTimeout):
		return ReasonTimeout
	case errors.Is(err, venue.ErrRateLimited):
		return ReasonRateLimited
	default:
		return ReasonDispatchFailed
	}
}

// dispatchKey is the adapter idempotency key: a content hash over the
// order plus the run scope. Distinct from the fill fingerprint, which
// guards the ledger.
func dispatchKey(runID string, ord schema.Order) string {
	return schema.DeriveID(runID, "dispatch",
		ord.ClientOrderID,
		ord.Symbol,
		string(ord.Side),
		string(ord.Type),
		schema.Quantize(ord.Qty).String(),
		schema.Quantize(ord.Price).String(),
	)
}

func (o *Orchestrator) settleFailure(clientOrderID, reason string, cause error) (SubmitResult, error) {
	o.deps.Metrics.IncOrderFailed()
	details := map[string]string{"reason": reason}
	if cause != nil {
		details["error"] = cause.Error()
	}
	result, err := o.deps.Orders.Fail(clientOrderID, reason)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("failure transition: %w", err)
	}
	if err := o.noteTransition(schema.AuditOrderFailed, result, details); err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{
		ClientOrderID: clientOrderID,
		Outcome:       OutcomeFailed,
		ReasonCode:    reason,
		Order:         result.Order,
	}, nil
}

func (o *Orchestrator) handleEvent(event schema.ExecutionEvent) (SubmitResult, error) {
	result, err := o.deps.Orders.ApplyEvent(event)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("apply event: %w", err)
	}

	switch event.Type {
	case schema.ExecutionEventAck:
		if err := o.noteTransition(schema.AuditOrderAcked, result, nil); err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{
			ClientOrderID: event.ClientOrderID,
			Outcome:       OutcomeAccepted,
			Order:         result.Order,
		}, nil

	case schema.ExecutionEventReject:
		if err := o.noteTransition(schema.AuditOrderRejected, result,
			map[string]string{"reason": event.RejectReason}); err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{
			ClientOrderID: event.ClientOrderID,
			Outcome:       OutcomeVenueReject,
			ReasonCode:    event.RejectReason,
			Order:         result.Order,
		}, nil

	case schema.ExecutionEventCancelAck:
		if err := o.noteTransition(schema.AuditOrderCancelled, result, nil); err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{
			ClientOrderID: event.ClientOrderID,
			Outcome:       OutcomeCancelled,
			Order:         result.Order,
		}, nil

	case schema.ExecutionEventFill:
		return o.handleFill(event, result)

	default:
		return SubmitResult{}, fmt.Errorf("unknown execution event type %q", event.Type)
	}
}

// handleFill posts the fill to the ledger and closes the order once it
// is fully filled. The ledger's duplicate detection makes replays safe;
// the audit log records them explicitly.
func (o *Orchestrator) handleFill(event schema.ExecutionEvent, transition order.Result) (SubmitResult, error) {
	fill := *event.Fill
	applied, err := o.deps.Ledger.Apply(fill)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateFillConflict) {
			o.deps.Metrics.IncFillConflict()
		}
		return SubmitResult{}, fmt.Errorf("ledger apply: %w", err)
	}

	if applied.Applied {
		o.deps.Metrics.IncFillApplied()
		if err := o.noteTransition(schema.AuditFillApplied, transition, map[string]string{
			"fillId": fill.FillID,
			"qty":    schema.Quantize(fill.Qty).String(),
			"price":  schema.Quantize(fill.Price).String(),
			"fee":    schema.Quantize(fill.Fee).String(),
		}); err != nil {
			return SubmitResult{}, err
		}
	} else {
		o.deps.Metrics.IncFillDeduped()
		if err := o.note(schema.AuditFillDuplicate, fill.ClientOrderID,
			transition.Order.State, transition.Order.State,
			map[string]string{"fillId": fill.FillID}); err != nil {
			return SubmitResult{}, err
		}
	}

	current := transition.Order
	if current.State == schema.OrderStateFilled {
		closed, err := o.deps.Orders.Close(current.ClientOrderID)
		if err != nil {
			return SubmitResult{}, fmt.Errorf("close order: %w", err)
		}
		if err := o.noteTransition(schema.AuditOrderClosed, closed, nil); err != nil {
			return SubmitResult{}, err
		}
		current = closed.Order
	}

	return SubmitResult{
		ClientOrderID: fill.ClientOrderID,
		Outcome:       OutcomeAccepted,
		Order:         current,
		Fill:          &fill,
	}, nil
}

// InternalView assembles the engine-side state for a reconciliation run.
func (o *Orchestrator) InternalView() recon.InternalView {
	positions := make(map[string]decimal.Decimal)
	for symbol, pos := range o.deps.Ledger.Positions() {
		if !pos.Qty.IsZero() {
			positions[symbol] = pos.Qty
		}
	}
	return recon.InternalView{
		Cash:      o.deps.Ledger.Cash(),
		Positions: positions,
		Orders:    o.deps.Orders.States(),
	}
}

func (o *Orchestrator) note(eventType schema.AuditEventType, clientOrderID string, oldState, newState schema.OrderState, details map[string]string) error {
	if _, err := o.deps.Audit.Append(eventType, clientOrderID, oldState, newState, details); err != nil {
		return fmt.Errorf("%w: %s", ErrAuditFailed, eventType)
	}
	return nil
}

func (o *Orchestrator) noteTransition(eventType schema.AuditEventType, result order.Result, details map[string]string) error {
	return o.note(eventType, result.Order.ClientOrderID, result.OldState, result.NewState, details)
}
