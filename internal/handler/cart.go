package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/tiffin/internal/cart"
	"github.com/dukerupert/tiffin/internal/domain"
	"github.com/dukerupert/tiffin/internal/telemetry"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// SessionHeader carries the guest cart key. Responses always echo it, so
// a client without one learns the key it was assigned.
const SessionHeader = "X-Cart-Session"

// CartHandler serves guest carts. Each request loads the session's cart
// into a fresh Manager, so requests for one session must not overlap.
type CartHandler struct {
	backend cart.Backend
	policy  cart.LoginPolicy
	metrics *telemetry.BusinessMetrics
	logger  *slog.Logger
}

type cartResponse struct {
	Session     string             `json:"session"`
	Items       []domain.CartItem  `json:"items"`
	Restaurant  *domain.Restaurant `json:"restaurant"`
	ItemCount   int                `json:"itemCount"`
	Subtotal    decimal.Decimal    `json:"subtotal"`
	DeliveryFee decimal.Decimal    `json:"deliveryFee"`
	Tax         decimal.Decimal    `json:"tax"`
	Total       decimal.Decimal    `json:"total"`
	Stale       bool               `json:"stale,omitempty"`
}

type addItemRequest struct {
	Item       cart.NewItem      `json:"item"`
	Restaurant domain.Restaurant `json:"restaurant"`

	// ReplaceCart confirms a restaurant switch: the cart is emptied first.
	ReplaceCart bool `json:"replaceCart"`
}

type addItemResponse struct {
	cart.AddResult
	Cart cartResponse `json:"cart"`
}

type updateItemRequest struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

type replaceRequest struct {
	Restaurant domain.Restaurant `json:"restaurant"`
	Items      []cart.NewItem    `json:"items" validate:"required,min=1"`
}

// Get handles GET /api/cart.
func (h *CartHandler) Get(c echo.Context) error {
	m, session, err := h.manager(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toCartResponse(session, m))
}

// AddItem handles POST /api/cart/items. A restaurant conflict answers 409
// with the current restaurant so the client can ask for confirmation and
// retry with replaceCart.
func (h *CartHandler) AddItem(c echo.Context) error {
	var req addItemRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	m, session, err := h.manager(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	if req.ReplaceCart && m.Cart().ConflictsWith(req.Restaurant.ID) {
		if err := m.Clear(ctx); err != nil {
			return err
		}
	}

	res, err := m.AddItem(ctx, req.Item, req.Restaurant)
	if err != nil {
		return err
	}

	status := http.StatusOK
	if res.Outcome == cart.OutcomeNeedsConfirmation {
		status = http.StatusConflict
	}
	return c.JSON(status, addItemResponse{AddResult: res, Cart: toCartResponse(session, m)})
}

// UpdateItem handles PUT /api/cart/items/:id.
func (h *CartHandler) UpdateItem(c echo.Context) error {
	var req updateItemRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	m, session, err := h.manager(c)
	if err != nil {
		return err
	}

	if err := m.UpdateQuantity(c.Request().Context(), c.Param("id"), req.ItemID, req.Quantity); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toCartResponse(session, m))
}

// RemoveItem handles DELETE /api/cart/items/:id.
func (h *CartHandler) RemoveItem(c echo.Context) error {
	m, session, err := h.manager(c)
	if err != nil {
		return err
	}

	if err := m.RemoveItem(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toCartResponse(session, m))
}

// Reset handles POST /api/cart/reset.
func (h *CartHandler) Reset(c echo.Context) error {
	m, session, err := h.manager(c)
	if err != nil {
		return err
	}

	if err := m.Clear(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toCartResponse(session, m))
}

// Replace handles POST /api/cart/replace.
func (h *CartHandler) Replace(c echo.Context) error {
	var req replaceRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := domain.Validate("cart.replace", req); err != nil {
		return err
	}

	m, session, err := h.manager(c)
	if err != nil {
		return err
	}

	if err := m.Replace(c.Request().Context(), req.Items, req.Restaurant); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toCartResponse(session, m))
}

// manager loads the session's cart, assigning a new session when the
// request has none.
func (h *CartHandler) manager(c echo.Context) (*cart.Manager, string, error) {
	session, err := sessionKey(c)
	if err != nil {
		return nil, "", err
	}

	local, err := cart.NewLocalStore(h.backend, session)
	if err != nil {
		return nil, "", err
	}

	m := cart.NewManager(cart.ManagerConfig{
		Local:       local,
		LoginPolicy: h.policy,
		Logger:      h.logger.With("session", session),
		Metrics:     h.metrics,
	})
	if err := m.Refresh(c.Request().Context()); err != nil {
		return nil, "", err
	}
	return m, session, nil
}

func sessionKey(c echo.Context) (string, error) {
	session := c.Request().Header.Get(SessionHeader)
	if session == "" {
		session = uuid.NewString()
	} else if err := cart.ValidateKey(session); err != nil {
		return "", err
	}
	c.Response().Header().Set(SessionHeader, session)
	return session, nil
}

func toCartResponse(session string, m *cart.Manager) cartResponse {
	c := m.Cart()
	items := c.Items
	if items == nil {
		items = []domain.CartItem{}
	}
	return cartResponse{
		Session:     session,
		Items:       items,
		Restaurant:  c.Restaurant,
		ItemCount:   m.ItemCount(),
		Subtotal:    m.Subtotal(),
		DeliveryFee: m.BaseDeliveryFee(),
		Tax:         m.Tax(),
		Total:       m.Total(),
		Stale:       m.Stale(),
	}
}
