package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/tiffin/internal/domain"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
)

// StripeProvider implements Provider by creating PaymentIntents directly.
type StripeProvider struct {
	client paymentintent.Client
	logger *slog.Logger
}

var _ Provider = (*StripeProvider)(nil)

// declinedMessage is shown when Stripe declines a card without a message.
const declinedMessage = "Your card was declined"

// NewStripeProvider creates a Stripe billing provider.
func NewStripeProvider(cfg StripeConfig, logger *slog.Logger) (*StripeProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := int64(cfg.MaxRetries)
	if cfg.MaxRetries == 0 {
		retries = 2
	}
	if cfg.MaxRetries < 0 {
		retries = 0
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(retries),
	}
	if cfg.BackendURL != "" {
		backendCfg.URL = stripe.String(cfg.BackendURL)
	}

	return &StripeProvider{
		client: paymentintent.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: cfg.APIKey,
		},
		logger: logger,
	}, nil
}

// CreatePaymentIntent implements Provider.
func (s *StripeProvider) CreatePaymentIntent(ctx context.Context, params CreatePaymentIntentParams) (*PaymentIntent, error) {
	const op = "billing.stripe.create_payment_intent"

	if err := validateParams(params); err != nil {
		return nil, domain.WrapError(err, domain.EINVALID, op, "")
	}

	piParams := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(params.AmountMinor),
		Currency: stripe.String(strings.ToLower(params.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if params.Description != "" {
		piParams.Description = stripe.String(params.Description)
	}
	piParams.Context = ctx
	for k, v := range params.Metadata {
		piParams.AddMetadata(k, v)
	}
	piParams.AddMetadata("order_id", params.OrderID)
	if params.IdempotencyKey != "" {
		piParams.SetIdempotencyKey(params.IdempotencyKey)
	}

	logger := s.logger.With(
		"order_id", params.OrderID,
		"amount", params.AmountMinor,
		"currency", params.Currency,
	)

	pi, err := s.client.New(piParams)
	if err != nil {
		serr := toStripeError(err)
		logger.Error("stripe payment intent failed",
			"code", serr.Code,
			"decline_code", serr.DeclineCode,
			"declined", serr.IsDeclined(),
			"request_id", serr.RequestID,
			"error", err,
		)
		code, message := domain.EPAYMENT, serr.Message
		switch {
		case serr.IsTemporary():
			code = domain.EUNAVAILABLE
		case serr.IsDeclined() && message == "":
			message = declinedMessage
		}
		return nil, domain.WrapError(serr, code, op, message)
	}

	logger.Info("stripe payment intent created", "payment_intent_id", pi.ID)

	return &PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountMinor:  pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		Status:       string(pi.Status),
		Metadata:     pi.Metadata,
		CreatedAt:    time.Unix(pi.Created, 0),
	}, nil
}

func toStripeError(err error) *StripeError {
	var se *stripe.Error
	if errors.As(err, &se) {
		return &StripeError{
			Message:       se.Msg,
			Code:          string(se.Code),
			DeclineCode:   string(se.DeclineCode),
			StripeCode:    strconv.Itoa(se.HTTPStatusCode),
			RequestID:     se.RequestID,
			OriginalError: err,
		}
	}
	return &StripeError{
		Message:       "",
		Code:          "api_connection_error",
		OriginalError: fmt.Errorf("stripe request failed: %w", err),
	}
}
