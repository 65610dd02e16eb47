package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/tiffin/internal/cart"
	"github.com/dukerupert/tiffin/internal/checkout"
	"github.com/dukerupert/tiffin/internal/domain"
	"github.com/dukerupert/tiffin/internal/geo"
	"github.com/dukerupert/tiffin/internal/telemetry"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// QuoteHandler prices deliveries and orders without placing anything.
type QuoteHandler struct {
	pricer  checkout.Pricer
	carts   cart.Backend
	metrics *telemetry.BusinessMetrics
	logger  *slog.Logger
}

type deliveryQuoteRequest struct {
	From    *geo.Coordinates `json:"from"`
	To      *geo.Coordinates `json:"to"`
	BaseFee decimal.Decimal  `json:"baseFee"`

	// DistanceKm overrides the distance measured between From and To.
	DistanceKm *float64 `json:"distanceKm" validate:"omitempty,min=0"`
}

type orderQuoteRequest struct {
	Type            string          `json:"type" validate:"required"`
	DeliveryAddress *domain.Address `json:"deliveryAddress"`
}

// Delivery handles POST /api/quotes/delivery. An out-of-range distance is
// a successful quote with available=false.
func (h *QuoteHandler) Delivery(c echo.Context) error {
	const op = "quote.delivery"

	var req deliveryQuoteRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := domain.Validate(op, req); err != nil {
		return err
	}
	if req.BaseFee.IsNegative() {
		return domain.NewValidationError(op, "baseFee", "must not be negative")
	}

	res := h.pricer.Policy.Quote(req.From, req.To, req.BaseFee)
	if req.DistanceKm != nil {
		res = h.pricer.Policy.Fee(req.DistanceKm, req.BaseFee)
	}

	h.metrics.QuoteServed("delivery", res.Available)
	return c.JSON(http.StatusOK, res)
}

// Order handles POST /api/quotes/order: it prices the session's guest cart
// for the requested order type.
func (h *QuoteHandler) Order(c echo.Context) error {
	const op = "quote.order"

	var req orderQuoteRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := domain.Validate(op, req); err != nil {
		return err
	}
	orderType, err := domain.ParseOrderType(req.Type)
	if err != nil {
		return err
	}

	session, err := sessionKey(c)
	if err != nil {
		return err
	}
	local, err := cart.NewLocalStore(h.carts, session)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	current, err := local.Fetch(ctx)
	if err != nil {
		return err
	}
	if current.IsEmpty() {
		return domain.ErrEmptyCart
	}
	if orderType == domain.OrderTypeDelivery && req.DeliveryAddress == nil {
		return domain.ErrAddressRequired
	}

	draft, err := h.pricer.Price(ctx, current, orderType, req.DeliveryAddress)
	if err != nil {
		return err
	}

	h.metrics.QuoteServed("order", orderType == domain.OrderTypePickup || draft.DeliveryAvailable)
	return c.JSON(http.StatusOK, draft)
}
