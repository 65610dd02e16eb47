// Package events publishes checkout lifecycle events.
package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SubjectOrderCreated is published after the Order service acknowledges an order.
const SubjectOrderCreated = "order.created"

// OrderCreated is the payload of SubjectOrderCreated.
type OrderCreated struct {
	OrderID       string          `json:"orderId"`
	RestaurantID  string          `json:"restaurantId"`
	OrderType     string          `json:"orderType"`
	PaymentMethod string          `json:"paymentMethod"`
	Currency      string          `json:"currency"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	DeliveryFee   decimal.Decimal `json:"deliveryFee"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	ItemCount     int             `json:"itemCount"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Publisher delivers events. Publishing is fire-and-forget from the
// caller's point of view: an error is logged, never surfaced to the customer.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, evt OrderCreated) error
}

// NopPublisher discards every event.
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

// PublishOrderCreated implements Publisher.
func (NopPublisher) PublishOrderCreated(context.Context, OrderCreated) error { return nil }
