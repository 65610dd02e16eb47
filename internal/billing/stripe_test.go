package billing_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/tiffin/internal/billing"
	"github.com/dukerupert/tiffin/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStripeProvider(t *testing.T, handler http.HandlerFunc) *billing.StripeProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := billing.NewStripeProvider(billing.StripeConfig{
		APIKey:     "sk_test_123",
		BackendURL: srv.URL,
		MaxRetries: -1,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return p
}

func TestStripeProvider_CreatePaymentIntent(t *testing.T) {
	p := newStripeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		assert.Equal(t, "order-ord-1", r.Header.Get("Idempotency-Key"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "116550", r.PostForm.Get("amount"))
		assert.Equal(t, "lkr", r.PostForm.Get("currency"))
		assert.Equal(t, "ord-1", r.PostForm.Get("metadata[order_id]"))
		assert.Equal(t, "DELIVERY", r.PostForm.Get("metadata[order_type]"))
		assert.Equal(t, "true", r.PostForm.Get("automatic_payment_methods[enabled]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "pi_123",
			"object": "payment_intent",
			"amount": 116550,
			"currency": "lkr",
			"client_secret": "pi_123_secret_abc",
			"status": "requires_payment_method",
			"created": 1700000000,
			"metadata": {"order_id": "ord-1", "order_type": "DELIVERY"}
		}`))
	})

	pi, err := p.CreatePaymentIntent(context.Background(), billing.CreatePaymentIntentParams{
		OrderID:        "ord-1",
		AmountMinor:    116550,
		Currency:       "LKR",
		Metadata:       map[string]string{"order_type": "DELIVERY"},
		IdempotencyKey: "order-ord-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "pi_123", pi.ID)
	assert.Equal(t, "pi_123_secret_abc", pi.ClientSecret)
	assert.Equal(t, int64(116550), pi.AmountMinor)
	assert.Equal(t, "LKR", pi.Currency)
	assert.Equal(t, "requires_payment_method", pi.Status)
	assert.Equal(t, "ord-1", pi.Metadata["order_id"])
}

func TestStripeProvider_CardDeclined(t *testing.T) {
	p := newStripeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Request-Id", "req_42")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error": {
			"type": "card_error",
			"code": "card_declined",
			"decline_code": "insufficient_funds",
			"message": "Your card has insufficient funds."
		}}`))
	})

	_, err := p.CreatePaymentIntent(context.Background(), billing.CreatePaymentIntentParams{
		OrderID:     "ord-1",
		AmountMinor: 5000,
		Currency:    "LKR",
	})

	require.Error(t, err)
	assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
	assert.Equal(t, "Your card has insufficient funds.", domain.ErrorMessage(err), "gateway message passes through")

	var serr *billing.StripeError
	require.True(t, errors.As(err, &serr))
	assert.True(t, serr.IsDeclined())
	assert.Equal(t, "insufficient_funds", serr.DeclineCode)
	assert.Equal(t, "402", serr.StripeCode)
}

func TestStripeProvider_DeclineWithoutMessage(t *testing.T) {
	p := newStripeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error": {"type": "card_error", "code": "card_declined", "decline_code": "do_not_honor"}}`))
	})

	_, err := p.CreatePaymentIntent(context.Background(), billing.CreatePaymentIntentParams{
		OrderID:     "ord-1",
		AmountMinor: 5000,
		Currency:    "LKR",
	})

	require.Error(t, err)
	assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
	assert.Equal(t, "Your card was declined", domain.ErrorMessage(err))
}

func TestStripeProvider_ValidatesBeforeCalling(t *testing.T) {
	called := false
	p := newStripeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	tests := []struct {
		name   string
		params billing.CreatePaymentIntentParams
		want   error
	}{
		{"missing order", billing.CreatePaymentIntentParams{AmountMinor: 100, Currency: "LKR"}, billing.ErrMissingOrderID},
		{"zero amount", billing.CreatePaymentIntentParams{OrderID: "o", Currency: "LKR"}, billing.ErrInvalidAmount},
		{"missing currency", billing.CreatePaymentIntentParams{OrderID: "o", AmountMinor: 100}, billing.ErrMissingCurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.CreatePaymentIntent(context.Background(), tt.params)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
		})
	}
	assert.False(t, called)
}

func TestStripeConfig_Validation(t *testing.T) {
	tests := []struct {
		name     string
		cfg      billing.StripeConfig
		wantErr  bool
		testMode bool
	}{
		{"missing key", billing.StripeConfig{}, true, false},
		{"publishable key", billing.StripeConfig{APIKey: "pk_test_abc"}, true, false},
		{"test secret key", billing.StripeConfig{APIKey: "sk_test_abc"}, false, true},
		{"live secret key", billing.StripeConfig{APIKey: "sk_live_abc"}, false, false},
		{"restricted key", billing.StripeConfig{APIKey: "rk_test_abc"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, billing.ErrInvalidAPIKey)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.testMode, tt.cfg.IsTestMode())
		})
	}
}

func TestStripeError(t *testing.T) {
	cause := errors.New("boom")
	err := &billing.StripeError{Message: "Rate limited", Code: "rate_limit", OriginalError: cause}

	assert.Equal(t, "stripe: Rate limited (code: rate_limit)", err.Error())
	assert.True(t, err.IsTemporary())
	assert.False(t, err.IsDeclined())
	assert.ErrorIs(t, err, cause)

	plain := &billing.StripeError{Message: "Unknown"}
	assert.Equal(t, "stripe: Unknown", plain.Error())
}
