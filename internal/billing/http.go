package billing

import (
	"context"
	"strings"
	"time"

	"github.com/dukerupert/tiffin/internal/api"
	"github.com/dukerupert/tiffin/internal/domain"
)

// HTTPProvider initiates payments through the backend Payment service,
// which owns the gateway credentials.
type HTTPProvider struct {
	client *api.Client
}

var _ Provider = (*HTTPProvider)(nil)

// NewHTTPProvider creates a provider calling POST /payment/initiate.
func NewHTTPProvider(client *api.Client) *HTTPProvider {
	return &HTTPProvider{client: client}
}

type initiateRequest struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type initiateResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
	Status          string `json:"status"`
}

// CreatePaymentIntent implements Provider.
func (p *HTTPProvider) CreatePaymentIntent(ctx context.Context, params CreatePaymentIntentParams) (*PaymentIntent, error) {
	if err := validateParams(params); err != nil {
		return nil, domain.WrapError(err, domain.EINVALID, "billing.initiate", "")
	}

	req := initiateRequest{
		OrderID:  params.OrderID,
		Amount:   params.AmountMinor,
		Currency: strings.ToUpper(params.Currency),
	}

	var resp initiateResponse
	if err := p.client.Post(ctx, "/payment/initiate", req, &resp); err != nil {
		return nil, err
	}
	if resp.ClientSecret == "" {
		return nil, domain.WrapError(ErrMissingClientSecret, domain.EPAYMENT, "billing.initiate", "")
	}

	return &PaymentIntent{
		ID:           resp.PaymentIntentID,
		ClientSecret: resp.ClientSecret,
		AmountMinor:  params.AmountMinor,
		Currency:     req.Currency,
		Status:       resp.Status,
		Metadata:     params.Metadata,
		CreatedAt:    time.Now(),
	}, nil
}
