package billing

import (
	"context"
	"time"
)

// Provider starts payments for created orders.
// Implementations: HTTPProvider (backend /payment/initiate), StripeProvider, MockProvider
type Provider interface {
	// CreatePaymentIntent creates a payment intent for one order.
	// Returns the client secret the payment sheet confirms against;
	// completion is reported by the payment SDK, not here.
	CreatePaymentIntent(ctx context.Context, params CreatePaymentIntentParams) (*PaymentIntent, error)
}

// CreatePaymentIntentParams contains parameters for creating a payment intent.
type CreatePaymentIntentParams struct {
	// OrderID is the server-assigned id of the order being paid.
	OrderID string

	// AmountMinor is the amount in the smallest currency unit (cents).
	AmountMinor int64

	// Currency code (ISO 4217) - e.g., "LKR"
	Currency string

	// Description appears in the payment dashboard.
	Description string

	// Metadata for filtering and reporting (order_id is always added).
	Metadata map[string]string

	// IdempotencyKey prevents duplicate payment intents for one order.
	IdempotencyKey string
}

// PaymentIntent represents a payment awaiting client-side confirmation.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	AmountMinor  int64
	Currency     string
	Status       string
	Metadata     map[string]string
	CreatedAt    time.Time
}

func validateParams(params CreatePaymentIntentParams) error {
	if params.OrderID == "" {
		return ErrMissingOrderID
	}
	if params.AmountMinor <= 0 {
		return ErrInvalidAmount
	}
	if params.Currency == "" {
		return ErrMissingCurrency
	}
	return nil
}
