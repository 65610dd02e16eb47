package domain

import (
	"strings"

	"github.com/dukerupert/tiffin/internal/geo"
	"github.com/shopspring/decimal"
)

// Order-related domain errors.
var (
	ErrEmptyCart           = &Error{Code: EINVALID, Message: "Cart is empty"}
	ErrAddressRequired     = &Error{Code: EINVALID, Message: "Select a delivery address to continue"}
	ErrInvalidCoordinates  = &Error{Code: EINVALID, Message: "Delivery address has invalid coordinates"}
	ErrDeliveryOutOfRange  = &Error{Code: EINVALID, Message: "This address is too far for delivery. Choose pickup or another address"}
	ErrInvalidOrderType    = &Error{Code: EINVALID, Message: "Order type must be DELIVERY or PICKUP"}
	ErrInvalidPayment      = &Error{Code: EINVALID, Message: "Payment method must be CARD or CASH"}
	ErrPaymentNotInitiated = &Error{Code: EPAYMENT, Message: "Payment could not be started"}
)

// OrderType selects how the customer receives the order.
type OrderType string

const (
	OrderTypeDelivery OrderType = "DELIVERY"
	OrderTypePickup   OrderType = "PICKUP"
)

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool {
	return t == OrderTypeDelivery || t == OrderTypePickup
}

// ParseOrderType accepts either case.
func ParseOrderType(s string) (OrderType, error) {
	t := OrderType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", ErrInvalidOrderType
	}
	return t, nil
}

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentMethodCard PaymentMethod = "CARD"
	PaymentMethodCash PaymentMethod = "CASH"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCard || m == PaymentMethodCash
}

// ParsePaymentMethod accepts either case.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", ErrInvalidPayment
	}
	return m, nil
}

// Address is a customer delivery address.
type Address struct {
	Street      string           `json:"street"`
	City        string           `json:"city"`
	State       string           `json:"state"`
	Coordinates *geo.Coordinates `json:"coordinates,omitempty"`
}

// NeedsGeocoding reports whether any text field is blank while coordinates are known.
func (a Address) NeedsGeocoding() bool {
	return a.Coordinates != nil && (a.Street == "" || a.City == "" || a.State == "")
}

// OrderDraft is the computed, not-yet-submitted pricing summary of a checkout.
// It is passed by value to the order and payment collaborators.
type OrderDraft struct {
	Type            OrderType       `json:"type"`
	DeliveryAddress *Address        `json:"deliveryAddress,omitempty"`
	RestaurantID    string          `json:"restaurantId"`
	Items           []CartItem      `json:"items"`
	Currency        string          `json:"currency"`
	DistanceKm      *float64        `json:"distanceKm,omitempty"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DeliveryFee     decimal.Decimal `json:"deliveryFee"`
	Tax             decimal.Decimal `json:"tax"`
	Total           decimal.Decimal `json:"total"`

	// DeliveryAvailable is false when the address is beyond the service
	// radius. The fee is then zero and excluded from tax and total.
	DeliveryAvailable bool `json:"deliveryAvailable"`
}

// AmountMinor returns Total in minor currency units (cents).
func (d OrderDraft) AmountMinor() int64 {
	return d.Total.Shift(2).Round(0).IntPart()
}

// Order is the Order service's acknowledgement of a created order.
type Order struct {
	ID              string           `json:"orderId"`
	Status          string           `json:"status,omitempty"`
	Total           decimal.Decimal  `json:"total"`
	RestaurantOrder *RestaurantOrder `json:"restaurantOrder,omitempty"`
}

// RestaurantOrder is the restaurant-side status nested in an Order.
type RestaurantOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
