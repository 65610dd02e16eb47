// Package order submits priced checkout drafts to the Order service.
package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukerupert/tiffin/internal/api"
	"github.com/dukerupert/tiffin/internal/domain"
	"github.com/shopspring/decimal"
)

// Service creates orders.
type Service interface {
	// CreateOrder submits draft and returns the service's acknowledgement.
	// The draft's amounts are final; the service must not re-price them.
	CreateOrder(ctx context.Context, draft domain.OrderDraft, method domain.PaymentMethod) (*domain.Order, error)
}

// Client calls the Order service over HTTP.
type Client struct {
	api *api.Client
}

var _ Service = (*Client)(nil)

// NewClient creates an order client.
func NewClient(client *api.Client) *Client {
	return &Client{api: client}
}

type createRequest struct {
	Type            domain.OrderType     `json:"type"`
	DeliveryAddress *domain.Address      `json:"deliveryAddress,omitempty"`
	PaymentMethod   domain.PaymentMethod `json:"paymentMethod"`
	Tax             json.Number          `json:"tax"`
	DeliveryFee     json.Number          `json:"deliveryFee"`
	Subtotal        json.Number          `json:"subtotal"`
}

// CreateOrder implements Service.
func (c *Client) CreateOrder(ctx context.Context, draft domain.OrderDraft, method domain.PaymentMethod) (*domain.Order, error) {
	const op = "order.create"

	if err := validateDraft(draft, method); err != nil {
		return nil, err
	}

	req := createRequest{
		Type:          draft.Type,
		PaymentMethod: method,
		Tax:           amount(draft.Tax),
		DeliveryFee:   amount(draft.DeliveryFee),
		Subtotal:      amount(draft.Subtotal),
	}
	if draft.Type == domain.OrderTypeDelivery {
		req.DeliveryAddress = draft.DeliveryAddress
	}

	var resp domain.Order
	if err := c.api.Post(ctx, "/orders", req, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, domain.Internal(errors.New("response has no orderId"), op, "")
	}
	return &resp, nil
}

func validateDraft(draft domain.OrderDraft, method domain.PaymentMethod) error {
	const op = "order.create"

	if !draft.Type.Valid() {
		return fmt.Errorf("%s: %w", op, domain.ErrInvalidOrderType)
	}
	if !method.Valid() {
		return fmt.Errorf("%s: %w", op, domain.ErrInvalidPayment)
	}
	if len(draft.Items) == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrEmptyCart)
	}
	if draft.Type == domain.OrderTypeDelivery {
		if draft.DeliveryAddress == nil {
			return fmt.Errorf("%s: %w", op, domain.ErrAddressRequired)
		}
		if !draft.DeliveryAvailable {
			return fmt.Errorf("%s: %w", op, domain.ErrDeliveryOutOfRange)
		}
	}
	return nil
}

// amount renders d as a JSON number with two decimal places.
func amount(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}
