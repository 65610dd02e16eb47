package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics holds Prometheus metrics for the cart and checkout funnel.
// A nil *BusinessMetrics is valid and records nothing.
type BusinessMetrics struct {
	// Cart
	CartMutations  *prometheus.CounterVec
	CartFallbacks  *prometheus.CounterVec
	CartConflicts  prometheus.Counter
	CartModeSwitch *prometheus.CounterVec

	// Checkout funnel
	CheckoutStep     *prometheus.CounterVec
	CheckoutFailed   *prometheus.CounterVec
	DeliveryRejected prometheus.Counter

	// Orders
	OrdersCreated *prometheus.CounterVec
	OrderValue    *prometheus.HistogramVec

	// Quotes
	QuotesServed *prometheus.CounterVec

	// Background jobs
	JobRuns         *prometheus.CounterVec
	GuestCartsSwept prometheus.Counter
}

// NewBusinessMetrics creates all business metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewBusinessMetrics(namespace string, reg prometheus.Registerer) *BusinessMetrics {
	if namespace == "" {
		namespace = "tiffin"
	}

	factory := promauto.With(reg)
	subsystem := "business"

	return &BusinessMetrics{
		// =======================================================================
		// Cart
		// =======================================================================
		CartMutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cart_mutations_total",
				Help:      "Total cart mutations by operation and store mode",
			},
			[]string{"operation", "mode", "outcome"}, // mode: local, remote
		),
		CartFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cart_store_fallbacks_total",
				Help:      "Cart mutations applied in memory after the store failed",
			},
			[]string{"operation", "mode"},
		),
		CartConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cart_restaurant_conflicts_total",
				Help:      "Add-to-cart attempts that needed clear-and-replace confirmation",
			},
		),
		CartModeSwitch: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cart_mode_switches_total",
				Help:      "Transitions between guest and authenticated cart modes",
			},
			[]string{"to"},
		),

		// =======================================================================
		// Checkout Funnel
		// =======================================================================
		CheckoutStep: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_step_total",
				Help:      "Total entries into each checkout state",
			},
			[]string{"state"},
		),
		CheckoutFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_failed_total",
				Help:      "Total checkouts that ended in FAILED",
			},
			[]string{"stage", "code"}, // stage: order, payment
		),
		DeliveryRejected: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "delivery_out_of_range_total",
				Help:      "Reviews blocked because the address is beyond the delivery radius",
			},
		),

		// =======================================================================
		// Orders
		// =======================================================================
		OrdersCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_created_total",
				Help:      "Total orders created",
			},
			[]string{"order_type", "payment_method"},
		),
		OrderValue: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_value",
				Help:      "Order total distribution in major currency units",
				Buckets:   []float64{500, 1000, 2000, 3500, 5000, 7500, 10000, 20000},
			},
			[]string{"order_type"},
		),

		// =======================================================================
		// Quotes
		// =======================================================================
		QuotesServed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "quotes_served_total",
				Help:      "Total price quotes served over HTTP",
			},
			[]string{"kind", "available"}, // kind: delivery, order
		),

		// =======================================================================
		// Background jobs
		// =======================================================================
		JobRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "job_runs_total",
				Help:      "Total background job runs by job and outcome",
			},
			[]string{"job", "outcome"}, // outcome: success, error
		),
		GuestCartsSwept: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "guest_carts_swept_total",
				Help:      "Total idle guest carts deleted by the cleanup job",
			},
		),
	}
}

// CartMutation records a cart store mutation.
func (m *BusinessMetrics) CartMutation(operation, mode, outcome string) {
	if m == nil {
		return
	}
	m.CartMutations.WithLabelValues(operation, mode, outcome).Inc()
}

// CartFallback records a mutation applied locally after a store failure.
func (m *BusinessMetrics) CartFallback(operation, mode string) {
	if m == nil {
		return
	}
	m.CartFallbacks.WithLabelValues(operation, mode).Inc()
}

// CartConflict records a different-restaurant conflict.
func (m *BusinessMetrics) CartConflict() {
	if m == nil {
		return
	}
	m.CartConflicts.Inc()
}

// ModeSwitch records a guest/authenticated transition.
func (m *BusinessMetrics) ModeSwitch(to string) {
	if m == nil {
		return
	}
	m.CartModeSwitch.WithLabelValues(to).Inc()
}

// CheckoutState records entry into a checkout state.
func (m *BusinessMetrics) CheckoutState(state string) {
	if m == nil {
		return
	}
	m.CheckoutStep.WithLabelValues(state).Inc()
}

// CheckoutFailure records a failed checkout.
func (m *BusinessMetrics) CheckoutFailure(stage, code string) {
	if m == nil {
		return
	}
	m.CheckoutFailed.WithLabelValues(stage, code).Inc()
}

// DeliveryOutOfRange records a review blocked by distance.
func (m *BusinessMetrics) DeliveryOutOfRange() {
	if m == nil {
		return
	}
	m.DeliveryRejected.Inc()
}

// OrderCreated records a created order and its total.
func (m *BusinessMetrics) OrderCreated(orderType, paymentMethod string, total float64) {
	if m == nil {
		return
	}
	m.OrdersCreated.WithLabelValues(orderType, paymentMethod).Inc()
	m.OrderValue.WithLabelValues(orderType).Observe(total)
}

// QuoteServed records a served quote.
func (m *BusinessMetrics) QuoteServed(kind string, available bool) {
	if m == nil {
		return
	}
	label := "false"
	if available {
		label = "true"
	}
	m.QuotesServed.WithLabelValues(kind, label).Inc()
}

// JobRun records a finished background job run.
func (m *BusinessMetrics) JobRun(job, outcome string) {
	if m == nil {
		return
	}
	m.JobRuns.WithLabelValues(job, outcome).Inc()
}

// GuestCartsDeleted records carts removed by the cleanup job.
func (m *BusinessMetrics) GuestCartsDeleted(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.GuestCartsSwept.Add(float64(n))
}
