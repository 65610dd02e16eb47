package checkout_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dukerupert/tiffin/internal/address"
	"github.com/dukerupert/tiffin/internal/billing"
	"github.com/dukerupert/tiffin/internal/cart"
	"github.com/dukerupert/tiffin/internal/checkout"
	"github.com/dukerupert/tiffin/internal/domain"
	"github.com/dukerupert/tiffin/internal/events"
	"github.com/dukerupert/tiffin/internal/geo"
	"github.com/dukerupert/tiffin/internal/order"
	"github.com/dukerupert/tiffin/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	kitchen = domain.Restaurant{
		ID:          "rest-1",
		Name:        "Kottu Hut",
		DeliveryFee: decimal.NewFromInt(80),
		Address:     domain.RestaurantAddress{Coordinates: &geo.Coordinates{Lat: 6.90, Lng: 79.86}},
	}

	// About 5.6 km due north of the kitchen.
	nearby = domain.Address{
		Street:      "12 Duplication Rd",
		City:        "Colombo",
		State:       "Western",
		Coordinates: &geo.Coordinates{Lat: 6.95, Lng: 79.86},
	}

	// Kandy, far beyond the service radius.
	faraway = domain.Address{
		Street:      "1 Temple St",
		City:        "Kandy",
		State:       "Central",
		Coordinates: &geo.Coordinates{Lat: 7.2906, Lng: 80.6337},
	}
)

type fixture struct {
	cart     *cart.Manager
	orders   *order.MockService
	payments *billing.MockProvider
	geocoder *address.MockGeocoder
	events   *events.MockPublisher
	metrics  *telemetry.BusinessMetrics
	checkout *checkout.Orchestrator
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture builds an orchestrator over a guest cart holding 2 x 500.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	local, err := cart.NewLocalStore(cart.NewMemoryBackend(), "session-1")
	require.NoError(t, err)

	metrics := telemetry.NewBusinessMetrics("test", prometheus.NewRegistry())
	m := cart.NewManager(cart.ManagerConfig{Local: local, Logger: testLogger(), Metrics: metrics})
	require.NoError(t, m.Refresh(ctx))

	_, err = m.AddItem(ctx, cart.NewItem{
		ItemID:    "kottu",
		Name:      "Chicken Kottu",
		UnitPrice: decimal.NewFromInt(500),
		Quantity:  2,
	}, kitchen)
	require.NoError(t, err)

	f := &fixture{
		cart:     m,
		orders:   order.NewMockService(),
		payments: billing.NewMockProvider(),
		geocoder: address.NewMockGeocoder(),
		events:   &events.MockPublisher{},
		metrics:  metrics,
	}
	f.checkout = checkout.New(checkout.Config{
		Cart:     m,
		Orders:   f.orders,
		Payments: f.payments,
		Geocoder: f.geocoder,
		Events:   f.events,
		Logger:   testLogger(),
		Metrics:  metrics,
	})
	return f
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(expected).Equal(actual),
		"expected %s, got %s %v", expected, actual, msgAndArgs)
}

func Test_Checkout_DeliveryWithCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, checkout.StateAddressSelection, f.checkout.State())

	require.NoError(t, f.checkout.SelectAddress(ctx, nearby))
	assert.Equal(t, checkout.StateOrderTypeSelection, f.checkout.State())

	require.NoError(t, f.checkout.SelectOrderType(domain.OrderTypeDelivery))

	draft, err := f.checkout.Review(ctx)
	require.NoError(t, err)
	assert.Equal(t, checkout.StateSummaryReview, f.checkout.State())

	assertDecimal(t, "1000", draft.Subtotal)
	assertDecimal(t, "110", draft.DeliveryFee, "80 + ceil(0.6) * 30")
	assertDecimal(t, "55.5", draft.Tax)
	assertDecimal(t, "1165.5", draft.Total)
	assert.True(t, draft.DeliveryAvailable)
	require.NotNil(t, draft.DistanceKm)
	assert.InDelta(t, 5.56, *draft.DistanceKm, 0.01)

	res, err := f.checkout.PlaceOrder(ctx, domain.PaymentMethodCard)
	require.NoError(t, err)
	assert.Equal(t, checkout.StateOrderCreated, f.checkout.State())
	assert.Empty(t, f.checkout.FailureMessage())

	require.Len(t, f.orders.Drafts, 1)
	assertDecimal(t, "1165.5", f.orders.Drafts[0].Total)
	require.NotNil(t, f.orders.Drafts[0].DeliveryAddress)

	require.Len(t, f.payments.Params, 1)
	params := f.payments.Params[0]
	assert.Equal(t, res.Order.ID, params.OrderID)
	assert.Equal(t, int64(116550), params.AmountMinor)
	assert.Equal(t, "LKR", params.Currency)
	assert.Equal(t, "order-"+res.Order.ID, params.IdempotencyKey)

	require.NotNil(t, res.Payment)
	assert.NotEmpty(t, res.Payment.ClientSecret)
	assert.Same(t, res, f.checkout.Result())

	assert.True(t, f.cart.Cart().IsEmpty(), "cart is cleared after the order is acknowledged")

	require.Len(t, f.events.Orders, 1)
	assert.Equal(t, res.Order.ID, f.events.Orders[0].OrderID)
	assert.Equal(t, "DELIVERY", f.events.Orders[0].OrderType)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersCreated.WithLabelValues("DELIVERY", "CARD")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CheckoutStep.WithLabelValues("ORDER_CREATED")))
}

func Test_Checkout_PickupWithCash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.checkout.SelectOrderType(domain.OrderTypePickup))

	draft, err := f.checkout.Review(ctx)
	require.NoError(t, err)
	assertDecimal(t, "0", draft.DeliveryFee)
	assertDecimal(t, "50", draft.Tax)
	assertDecimal(t, "1050", draft.Total)
	assert.Nil(t, draft.DeliveryAddress)

	_, err = f.checkout.PlaceOrder(ctx, domain.PaymentMethodCash)
	require.NoError(t, err)

	assert.Equal(t, checkout.StateOrderCreated, f.checkout.State())
	assert.Empty(t, f.payments.CallLog, "cash orders skip the payment step")
	assert.True(t, f.cart.Cart().IsEmpty())
}

func Test_Checkout_ReviewBlocked(t *testing.T) {
	ctx := context.Background()

	t.Run("delivery without address", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.checkout.SelectOrderType(domain.OrderTypeDelivery))

		_, err := f.checkout.Review(ctx)

		assert.ErrorIs(t, err, domain.ErrAddressRequired)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
		assert.Equal(t, checkout.StateOrderTypeSelection, f.checkout.State())
	})

	t.Run("delivery out of range", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.checkout.SelectAddress(ctx, faraway))

		_, err := f.checkout.Review(ctx)

		assert.ErrorIs(t, err, domain.ErrDeliveryOutOfRange)
		assert.Contains(t, domain.ErrorMessage(err), "pickup")
		assert.Equal(t, checkout.StateOrderTypeSelection, f.checkout.State())

		draft := f.checkout.Draft()
		require.NotNil(t, draft, "the blocked draft is kept for display")
		assert.False(t, draft.DeliveryAvailable)
		assertDecimal(t, "0", draft.DeliveryFee)
		assertDecimal(t, "50", draft.Tax, "fee is excluded from the taxable base")
		assertDecimal(t, "1050", draft.Total)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DeliveryRejected))

		// Switching to pickup unblocks the review.
		require.NoError(t, f.checkout.SelectOrderType(domain.OrderTypePickup))
		_, err = f.checkout.Review(ctx)
		assert.NoError(t, err)
	})

	t.Run("empty cart", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.cart.Clear(ctx))
		require.NoError(t, f.checkout.SelectOrderType(domain.OrderTypePickup))

		_, err := f.checkout.Review(ctx)

		assert.ErrorIs(t, err, domain.ErrEmptyCart)
		assert.Empty(t, f.orders.CallLog)
	})
}

func Test_Checkout_OrderFailureKeepsCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orders.CreateOrderFunc = func(ctx context.Context, draft domain.OrderDraft, method domain.PaymentMethod) (*domain.Order, error) {
		return nil, &domain.Error{Code: domain.EINVALID, Message: "Restaurant is closed"}
	}

	require.NoError(t, f.checkout.SelectAddress(ctx, nearby))
	_, err := f.checkout.Review(ctx)
	require.NoError(t, err)

	_, err = f.checkout.PlaceOrder(ctx, domain.PaymentMethodCard)

	require.Error(t, err)
	assert.Equal(t, checkout.StateFailed, f.checkout.State())
	assert.Equal(t, "Restaurant is closed", f.checkout.FailureMessage())
	assert.Empty(t, f.payments.CallLog, "no payment without an order")
	assert.Equal(t, 2, f.cart.ItemCount(), "cart stays intact for a retry")
	assert.Empty(t, f.events.Orders)
	assert.Nil(t, f.checkout.Result())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CheckoutFailed.WithLabelValues("order", domain.EINVALID)))

	// No automatic retry; the caller reviews again.
	assert.Len(t, f.orders.CallLog, 1)

	f.orders.CreateOrderFunc = nil
	_, err = f.checkout.Review(ctx)
	require.NoError(t, err)
	_, err = f.checkout.PlaceOrder(ctx, domain.PaymentMethodCard)
	require.NoError(t, err)
	assert.Equal(t, checkout.StateOrderCreated, f.checkout.State())
}

func Test_Checkout_PaymentFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.payments.CreatePaymentIntentFunc = func(ctx context.Context, params billing.CreatePaymentIntentParams) (*billing.PaymentIntent, error) {
		return nil, domain.Unavailable(errors.New("dial tcp: connection refused"), "api.POST /payment/initiate", "")
	}

	require.NoError(t, f.checkout.SelectOrderType(domain.OrderTypePickup))
	_, err := f.checkout.Review(ctx)
	require.NoError(t, err)

	_, err = f.checkout.PlaceOrder(ctx, domain.PaymentMethodCard)

	assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))
	assert.Equal(t, checkout.StateFailed, f.checkout.State())
	assert.Equal(t, domain.GenericMessage, f.checkout.FailureMessage(), "transport details are not shown")
	assert.Equal(t, 2, f.cart.ItemCount())
}

func Test_Checkout_PaymentRetryReusesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	attempts := 0
	f.payments.CreatePaymentIntentFunc = func(ctx context.Context, params billing.CreatePaymentIntentParams) (*billing.PaymentIntent, error) {
		attempts++
		if attempts == 1 {
			return nil, domain.Unavailable(errors.New("dial tcp: connection refused"), "api.POST /payment/initiate", "")
		}
		return &billing.PaymentIntent{ID: "pi_1", ClientSecret: "pi_1_secret", AmountMinor: params.AmountMinor, Currency: params.Currency}, nil
	}

	require.NoError(t, f.checkout.SelectOrderType(domain.OrderTypePickup))
	_, err := f.checkout.Review(ctx)
	require.NoError(t, err)

	_, err = f.checkout.PlaceOrder(ctx, domain.PaymentMethodCard)
	require.Error(t, err)
	require.Equal(t, checkout.StateFailed, f.checkout.State())
	require.Len(t, f.orders.CallLog, 1)

	_, err = f.checkout.Review(ctx)
	require.NoError(t, err)

	t.Run("cash is refused for an order awaiting card payment", func(t *testing.T) {
		_, err := f.checkout.PlaceOrder(ctx, domain.PaymentMethodCash)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
		assert.Equal(t, checkout.StateSummaryReview, f.checkout.State())
	})

	result, err := f.checkout.PlaceOrder(ctx, domain.PaymentMethodCard)
	require.NoError(t, err)

	assert.Len(t, f.orders.CallLog, 1, "the order is not created twice")
	require.Len(t, f.payments.Params, 2)
	assert.Equal(t, f.payments.Params[0].OrderID, f.payments.Params[1].OrderID)
	assert.Equal(t, f.payments.Params[0].IdempotencyKey, f.payments.Params[1].IdempotencyKey)
	assert.Equal(t, f.payments.Params[0].OrderID, result.Order.ID)
	assert.Equal(t, "pi_1_secret", result.Payment.ClientSecret)
	assert.Equal(t, checkout.StateOrderCreated, f.checkout.State())
	assert.True(t, f.cart.Cart().IsEmpty())
}

func Test_Checkout_CardWithoutProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flow := checkout.New(checkout.Config{Cart: f.cart, Orders: f.orders, Logger: testLogger()})

	require.NoError(t, flow.SelectOrderType(domain.OrderTypePickup))
	_, err := flow.Review(ctx)
	require.NoError(t, err)

	_, err = flow.PlaceOrder(ctx, domain.PaymentMethodCard)

	assert.ErrorIs(t, err, domain.ErrPaymentNotInitiated)
	assert.Equal(t, checkout.StateFailed, flow.State())
	assert.Equal(t, "Payment could not be started", flow.FailureMessage())
	assert.Equal(t, 2, f.cart.ItemCount(), "cart is kept")
}

func Test_Checkout_ServerPaymentMessageVerbatim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.payments.CreatePaymentIntentFunc = func(ctx context.Context, params billing.CreatePaymentIntentParams) (*billing.PaymentIntent, error) {
		return nil, &domain.Error{Code: domain.EPAYMENT, Message: "Your card was declined."}
	}

	require.NoError(t, f.checkout.SelectOrderType(domain.OrderTypePickup))
	_, err := f.checkout.Review(ctx)
	require.NoError(t, err)

	_, err = f.checkout.PlaceOrder(ctx, domain.PaymentMethodCard)
	require.Error(t, err)
	assert.Equal(t, "Your card was declined.", f.checkout.FailureMessage())
}

func Test_Checkout_InvalidSteps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.checkout.PlaceOrder(ctx, domain.PaymentMethodCash)
	assert.ErrorIs(t, err, checkout.ErrInvalidStep)
	assert.Equal(t, checkout.StateAddressSelection, f.checkout.State())

	_, err = f.checkout.Review(ctx)
	assert.ErrorIs(t, err, checkout.ErrInvalidStep, "review needs an order type step first")

	require.NoError(t, f.checkout.SelectOrderType(domain.OrderTypePickup))
	_, err = f.checkout.Review(ctx)
	require.NoError(t, err)

	_, err = f.checkout.PlaceOrder(ctx, domain.PaymentMethod("BARTER"))
	assert.ErrorIs(t, err, domain.ErrInvalidPayment)
	assert.Equal(t, checkout.StateSummaryReview, f.checkout.State(), "bad input does not fail the checkout")

	assert.ErrorIs(t, f.checkout.SelectOrderType("DRONE"), domain.ErrInvalidOrderType)

	_, err = f.checkout.PlaceOrder(ctx, domain.PaymentMethodCash)
	require.NoError(t, err)

	assert.ErrorIs(t, f.checkout.SelectAddress(ctx, nearby), checkout.ErrInvalidStep, "a placed order is final")
}

func Test_Checkout_SelectAddress(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects missing coordinates", func(t *testing.T) {
		f := newFixture(t)
		err := f.checkout.SelectAddress(ctx, domain.Address{Street: "1 Main St"})

		assert.True(t, domain.IsValidationError(err))
		assert.Equal(t, checkout.StateAddressSelection, f.checkout.State())
		assert.Nil(t, f.checkout.Address())
	})

	t.Run("fills blank fields from the geocoder", func(t *testing.T) {
		f := newFixture(t)
		f.geocoder.ReverseFunc = func(ctx context.Context, c geo.Coordinates) (*address.Place, error) {
			return &address.Place{Street: "Galle Road", City: "Colombo", State: "Western"}, nil
		}

		require.NoError(t, f.checkout.SelectAddress(ctx, domain.Address{Coordinates: nearby.Coordinates}))

		addr := f.checkout.Address()
		require.NotNil(t, addr)
		assert.Equal(t, "Galle Road", addr.Street)
		assert.Equal(t, "Colombo", addr.City)
	})

	t.Run("geocoder failure does not block", func(t *testing.T) {
		f := newFixture(t)
		f.geocoder.ReverseFunc = func(ctx context.Context, c geo.Coordinates) (*address.Place, error) {
			return nil, errors.New("timeout")
		}

		require.NoError(t, f.checkout.SelectAddress(ctx, domain.Address{Coordinates: nearby.Coordinates}))
		assert.Empty(t, f.checkout.Address().Street)

		_, err := f.checkout.Review(ctx)
		assert.NoError(t, err)
	})
}

func Test_Checkout_Reset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.checkout.SelectAddress(ctx, nearby))
	_, err := f.checkout.Review(ctx)
	require.NoError(t, err)

	f.checkout.Reset()

	assert.Equal(t, checkout.StateAddressSelection, f.checkout.State())
	assert.Equal(t, domain.OrderTypeDelivery, f.checkout.OrderType())
	assert.Nil(t, f.checkout.Address())
	assert.Nil(t, f.checkout.Draft())
}

func Test_Checkout_EventFailureDoesNotFailOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.events.PublishOrderCreatedFunc = func(ctx context.Context, evt events.OrderCreated) error {
		return errors.New("nats: no servers available")
	}

	require.NoError(t, f.checkout.SelectOrderType(domain.OrderTypePickup))
	_, err := f.checkout.Review(ctx)
	require.NoError(t, err)

	_, err = f.checkout.PlaceOrder(ctx, domain.PaymentMethodCash)
	require.NoError(t, err)
	assert.Equal(t, checkout.StateOrderCreated, f.checkout.State())
}

func Test_Checkout_WithRemoteCart(t *testing.T) {
	ctx := context.Background()

	local, err := cart.NewLocalStore(cart.NewMemoryBackend(), "s")
	require.NoError(t, err)

	remote := cart.NewMockStore(cart.ModeRemote)
	m := cart.NewManager(cart.ManagerConfig{Local: local, Remote: remote, Logger: testLogger()})
	require.NoError(t, m.SetAuthenticated(ctx, true))
	_, err = m.AddItem(ctx, cart.NewItem{ItemID: "roti", Name: "Roti", UnitPrice: decimal.NewFromInt(100), Quantity: 3}, kitchen)
	require.NoError(t, err)

	orders := order.NewMockService()
	co := checkout.New(checkout.Config{Cart: m, Orders: orders, Payments: billing.NewMockProvider(), Logger: testLogger()})

	require.NoError(t, co.SelectOrderType(domain.OrderTypePickup))
	_, err = co.Review(ctx)
	require.NoError(t, err)
	_, err = co.PlaceOrder(ctx, domain.PaymentMethodCash)
	require.NoError(t, err)

	assert.Equal(t, 1, remote.Count("Reset"), "the remote cart is reset after the order")
	assert.True(t, m.Cart().IsEmpty())
}

var _ checkout.Cart = (*cart.Manager)(nil)

