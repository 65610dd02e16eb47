package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MockProvider is an in-memory Provider for tests. Like the real gateway it
// validates params and replays the intent created earlier for a repeated
// IdempotencyKey.
type MockProvider struct {
	// CreatePaymentIntentFunc overrides the default behavior when set.
	CreatePaymentIntentFunc func(ctx context.Context, params CreatePaymentIntentParams) (*PaymentIntent, error)

	// PaymentIntents holds created intents by id.
	PaymentIntents map[string]*PaymentIntent

	// Params records every CreatePaymentIntent call, including replays.
	Params []CreatePaymentIntentParams

	CallLog []string

	byKey map[string]*PaymentIntent
}

var _ Provider = (*MockProvider)(nil)

// NewMockProvider creates an empty mock.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		PaymentIntents: make(map[string]*PaymentIntent),
		CallLog:        []string{},
		byKey:          make(map[string]*PaymentIntent),
	}
}

// CreatePaymentIntent implements Provider.
func (m *MockProvider) CreatePaymentIntent(ctx context.Context, params CreatePaymentIntentParams) (*PaymentIntent, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("CreatePaymentIntent(%s, %d, %s)", params.OrderID, params.AmountMinor, params.Currency))
	m.Params = append(m.Params, params)

	if m.CreatePaymentIntentFunc != nil {
		return m.CreatePaymentIntentFunc(ctx, params)
	}
	if err := validateParams(params); err != nil {
		return nil, err
	}

	if params.IdempotencyKey != "" {
		if pi, ok := m.byKey[params.IdempotencyKey]; ok {
			return pi, nil
		}
	}

	id := "pi_" + uuid.NewString()
	pi := &PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret_" + uuid.NewString(),
		AmountMinor:  params.AmountMinor,
		Currency:     params.Currency,
		Status:       "requires_payment_method",
		Metadata:     params.Metadata,
		CreatedAt:    time.Now(),
	}

	m.PaymentIntents[pi.ID] = pi
	if params.IdempotencyKey != "" {
		m.byKey[params.IdempotencyKey] = pi
	}
	return pi, nil
}
