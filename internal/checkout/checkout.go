// Package checkout drives a cart through address and order-type selection,
// review, order creation and payment handoff.
package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/tiffin/internal/address"
	"github.com/dukerupert/tiffin/internal/billing"
	"github.com/dukerupert/tiffin/internal/domain"
	"github.com/dukerupert/tiffin/internal/events"
	"github.com/dukerupert/tiffin/internal/order"
	"github.com/dukerupert/tiffin/internal/telemetry"
)

// State is a step of the checkout flow.
type State string

const (
	StateAddressSelection   State = "ADDRESS_SELECTION"
	StateOrderTypeSelection State = "ORDER_TYPE_SELECTION"
	StateSummaryReview      State = "SUMMARY_REVIEW"
	StatePaymentHandoff     State = "PAYMENT_HANDOFF"
	StateOrderCreated       State = "ORDER_CREATED"
	StateFailed             State = "FAILED"
)

// ErrInvalidStep is returned when an operation is not allowed in the
// current state.
var ErrInvalidStep = &domain.Error{Code: domain.EINVALID, Message: "This checkout step is not available right now"}

// Cart is the subset of *cart.Manager the orchestrator needs.
type Cart interface {
	Cart() domain.Cart
	Clear(ctx context.Context) error
}

// Config configures an Orchestrator.
type Config struct {
	Cart     Cart             // Required
	Orders   order.Service    // Required
	Payments billing.Provider // Required for card payments
	Geocoder address.Geocoder // Optional: addresses are used as entered
	Events   events.Publisher // Optional: defaults to events.NopPublisher
	Pricer   *Pricer          // Optional: defaults to NewPricer()
	Logger   *slog.Logger     // Optional: defaults to slog.Default()
	Metrics  *telemetry.BusinessMetrics
}

// Result is the outcome of a placed order.
type Result struct {
	Order *domain.Order    `json:"order"`
	Draft domain.OrderDraft `json:"draft"`

	// Payment is set for card payments. Its ClientSecret is confirmed by the
	// client-side payment sheet.
	Payment *billing.PaymentIntent `json:"payment,omitempty"`
}

// Orchestrator is the checkout state machine for one session. It is not
// safe for concurrent use.
type Orchestrator struct {
	cart     Cart
	orders   order.Service
	payments billing.Provider
	geocoder address.Geocoder
	events   events.Publisher
	pricer   Pricer
	logger   *slog.Logger
	metrics  *telemetry.BusinessMetrics
	now      func() time.Time

	state     State
	address   *domain.Address
	orderType domain.OrderType
	draft     *domain.OrderDraft
	failure   string
	result    *Result

	// unpaid is an order created on the server whose payment did not start.
	unpaid      *domain.Order
	unpaidDraft domain.OrderDraft
}

// New creates an orchestrator in ADDRESS_SELECTION with DELIVERY selected.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	publisher := cfg.Events
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	pricer := NewPricer()
	if cfg.Pricer != nil {
		pricer = *cfg.Pricer
	}

	return &Orchestrator{
		cart:      cfg.Cart,
		orders:    cfg.Orders,
		payments:  cfg.Payments,
		geocoder:  cfg.Geocoder,
		events:    publisher,
		pricer:    pricer,
		logger:    logger,
		metrics:   cfg.Metrics,
		now:       time.Now,
		state:     StateAddressSelection,
		orderType: domain.OrderTypeDelivery,
	}
}

// State returns the current step.
func (o *Orchestrator) State() State { return o.state }

// OrderType returns the selected order type.
func (o *Orchestrator) OrderType() domain.OrderType { return o.orderType }

// Address returns the selected delivery address, or nil.
func (o *Orchestrator) Address() *domain.Address {
	if o.address == nil {
		return nil
	}
	a := *o.address
	return &a
}

// Draft returns the last priced draft, or nil before the first Review.
// A draft blocked for being out of range is kept so it can be shown.
func (o *Orchestrator) Draft() *domain.OrderDraft {
	if o.draft == nil {
		return nil
	}
	d := *o.draft
	return &d
}

// FailureMessage is the user-facing message of the last failure, empty
// unless the state is FAILED.
func (o *Orchestrator) FailureMessage() string { return o.failure }

// Result returns the placed order, or nil until ORDER_CREATED.
func (o *Orchestrator) Result() *Result { return o.result }

// Reset starts a new checkout.
func (o *Orchestrator) Reset() {
	o.address = nil
	o.orderType = domain.OrderTypeDelivery
	o.draft = nil
	o.failure = ""
	o.result = nil
	o.unpaid, o.unpaidDraft = nil, domain.OrderDraft{}
	o.transition(StateAddressSelection)
}

// SelectAddress validates addr, fills blank street, city and state through
// the geocoder when possible, and moves to ORDER_TYPE_SELECTION.
func (o *Orchestrator) SelectAddress(ctx context.Context, addr domain.Address) error {
	if err := o.require("checkout.select_address", StateAddressSelection, StateOrderTypeSelection, StateSummaryReview, StateFailed); err != nil {
		return err
	}
	if err := address.Validate(addr); err != nil {
		return err
	}

	completed := address.Complete(ctx, o.geocoder, addr, o.logger)
	o.address = &completed
	o.draft = nil
	o.transition(StateOrderTypeSelection)
	return nil
}

// SelectOrderType chooses delivery or pickup and moves to ORDER_TYPE_SELECTION.
func (o *Orchestrator) SelectOrderType(t domain.OrderType) error {
	if err := o.require("checkout.select_order_type", StateAddressSelection, StateOrderTypeSelection, StateSummaryReview, StateFailed); err != nil {
		return err
	}
	if !t.Valid() {
		return fmt.Errorf("checkout.select_order_type: %w", domain.ErrInvalidOrderType)
	}

	o.orderType = t
	o.draft = nil
	o.transition(StateOrderTypeSelection)
	return nil
}

// Review prices the cart and enters SUMMARY_REVIEW. It is blocked, leaving
// the state unchanged, when the cart is empty or a delivery has no address
// or is out of range.
func (o *Orchestrator) Review(ctx context.Context) (*domain.OrderDraft, error) {
	const op = "checkout.review"

	if err := o.require(op, StateOrderTypeSelection, StateSummaryReview, StateFailed); err != nil {
		return nil, err
	}

	draft, err := o.price(ctx, op)
	if err != nil {
		o.metrics.CheckoutFailure("review", domain.ErrorCode(err))
		return nil, err
	}

	o.draft = &draft
	if !draft.DeliveryAvailable && draft.Type == domain.OrderTypeDelivery {
		o.metrics.DeliveryOutOfRange()
		o.metrics.CheckoutFailure("review", domain.EINVALID)
		return nil, fmt.Errorf("%s: %w", op, domain.ErrDeliveryOutOfRange)
	}

	o.failure = ""
	o.transition(StateSummaryReview)
	return o.Draft(), nil
}

// PlaceOrder re-prices the cart, creates the order and, for card payments,
// starts the payment. The cart is cleared only once the order exists. Any
// failure moves to FAILED without retrying; Review may be called again.
// An order whose payment failed to start is kept, and the next PlaceOrder
// only starts the payment for it.
func (o *Orchestrator) PlaceOrder(ctx context.Context, method domain.PaymentMethod) (*Result, error) {
	const op = "checkout.place_order"

	if err := o.require(op, StateSummaryReview); err != nil {
		return nil, err
	}
	if !method.Valid() {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrInvalidPayment)
	}
	if o.unpaid != nil && method != domain.PaymentMethodCard {
		return nil, domain.Errorf(domain.EINVALID, op, "Order %s is waiting for card payment", o.unpaid.ID)
	}

	o.transition(StatePaymentHandoff)

	created, draft := o.unpaid, o.unpaidDraft
	if created == nil {
		var err error
		draft, err = o.price(ctx, op)
		if err != nil {
			return nil, o.fail("pricing", err)
		}
		o.draft = &draft
		if draft.Type == domain.OrderTypeDelivery && !draft.DeliveryAvailable {
			return nil, o.fail("pricing", fmt.Errorf("%s: %w", op, domain.ErrDeliveryOutOfRange))
		}

		created, err = o.orders.CreateOrder(ctx, draft, method)
		if err != nil {
			return nil, o.fail("order", err)
		}
	} else {
		o.draft = &draft
		o.logger.Info("retrying payment for existing order", "order_id", created.ID)
	}

	result := &Result{Order: created, Draft: draft}

	if method == domain.PaymentMethodCard {
		o.unpaid, o.unpaidDraft = created, draft
		if o.payments == nil {
			return nil, o.fail("payment", fmt.Errorf("%s: %w", op, domain.ErrPaymentNotInitiated))
		}
		intent, err := o.payments.CreatePaymentIntent(ctx, billing.CreatePaymentIntentParams{
			OrderID:     created.ID,
			AmountMinor: draft.AmountMinor(),
			Currency:    draft.Currency,
			Description: fmt.Sprintf("Order %s", created.ID),
			Metadata: map[string]string{
				"restaurant_id": draft.RestaurantID,
				"order_type":    string(draft.Type),
			},
			IdempotencyKey: "order-" + created.ID,
		})
		if err != nil {
			return nil, o.fail("payment", err)
		}
		result.Payment = intent
	}

	o.unpaid, o.unpaidDraft = nil, domain.OrderDraft{}
	o.result = result
	o.failure = ""
	o.transition(StateOrderCreated)

	o.logger.Info("order created",
		"order_id", created.ID,
		"order_type", draft.Type,
		"payment_method", method,
		"total", draft.Total.StringFixed(2),
		"currency", draft.Currency,
	)
	o.metrics.OrderCreated(string(draft.Type), string(method), draft.Total.InexactFloat64())

	if err := o.cart.Clear(ctx); err != nil {
		o.logger.Warn("failed to clear cart after order", "order_id", created.ID, "error", err)
	}

	o.publish(ctx, created, draft, method)
	return result, nil
}

func (o *Orchestrator) price(ctx context.Context, op string) (domain.OrderDraft, error) {
	c := o.cart.Cart()
	if c.IsEmpty() {
		return domain.OrderDraft{}, fmt.Errorf("%s: %w", op, domain.ErrEmptyCart)
	}
	if o.orderType == domain.OrderTypeDelivery && o.address == nil {
		return domain.OrderDraft{}, fmt.Errorf("%s: %w", op, domain.ErrAddressRequired)
	}

	var addr *domain.Address
	if o.orderType == domain.OrderTypeDelivery {
		addr = o.address
	}
	return o.pricer.Price(ctx, c, o.orderType, addr)
}

func (o *Orchestrator) publish(ctx context.Context, created *domain.Order, draft domain.OrderDraft, method domain.PaymentMethod) {
	evt := events.OrderCreated{
		OrderID:       created.ID,
		RestaurantID:  draft.RestaurantID,
		OrderType:     string(draft.Type),
		PaymentMethod: string(method),
		Currency:      draft.Currency,
		Subtotal:      draft.Subtotal,
		DeliveryFee:   draft.DeliveryFee,
		Tax:           draft.Tax,
		Total:         draft.Total,
		ItemCount:     len(draft.Items),
		CreatedAt:     o.now().UTC(),
	}
	if err := o.events.PublishOrderCreated(ctx, evt); err != nil {
		o.logger.Error("failed to publish order event", "order_id", created.ID, "error", err)
	}
}

// fail records err as the checkout failure and returns it.
func (o *Orchestrator) fail(stage string, err error) error {
	o.failure = domain.ErrorMessage(err)
	o.transition(StateFailed)

	o.logger.Error("checkout failed",
		"stage", stage,
		"code", domain.ErrorCode(err),
		"op", domain.ErrorOp(err),
		"error", err,
	)
	o.metrics.CheckoutFailure(stage, domain.ErrorCode(err))
	return err
}

func (o *Orchestrator) require(op string, allowed ...State) error {
	for _, s := range allowed {
		if o.state == s {
			return nil
		}
	}
	return domain.WrapError(ErrInvalidStep, domain.EINVALID, op, fmt.Sprintf("Cannot %s from %s", stepName(op), o.state))
}

func (o *Orchestrator) transition(to State) {
	o.state = to
	o.metrics.CheckoutState(string(to))
}

func stepName(op string) string {
	switch op {
	case "checkout.select_address":
		return "select an address"
	case "checkout.select_order_type":
		return "select an order type"
	case "checkout.review":
		return "review the order"
	case "checkout.place_order":
		return "place the order"
	}
	return op
}
