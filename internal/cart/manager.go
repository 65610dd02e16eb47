package cart

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukerupert/tiffin/internal/domain"
	"github.com/dukerupert/tiffin/internal/tax"
	"github.com/dukerupert/tiffin/internal/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoginPolicy decides what happens to a guest cart when the session
// becomes authenticated.
type LoginPolicy string

const (
	// DiscardGuestCart always uses the remote cart as fetched.
	DiscardGuestCart LoginPolicy = "discard"

	// AdoptGuestCartWhenRemoteEmpty replays the guest lines into the remote
	// cart when the remote cart is empty. A non-empty remote cart wins.
	AdoptGuestCartWhenRemoteEmpty LoginPolicy = "adopt-when-empty"
)

// ParseLoginPolicy validates a configured policy name.
func ParseLoginPolicy(s string) (LoginPolicy, error) {
	switch p := LoginPolicy(s); p {
	case DiscardGuestCart, AdoptGuestCartWhenRemoteEmpty:
		return p, nil
	case "":
		return AdoptGuestCartWhenRemoteEmpty, nil
	default:
		return "", domain.Errorf(domain.EINVALID, "cart.login_policy", "unknown login policy %q", s)
	}
}

// Outcome is the result kind of AddItem.
type Outcome string

const (
	OutcomeAdded             Outcome = "ADDED"
	OutcomeNeedsConfirmation Outcome = "NEEDS_CONFIRMATION"
)

// NewItem is a menu item being added to the cart.
type NewItem struct {
	ItemID    string          `json:"itemId" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	UnitPrice decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity" validate:"min=1"`
	Portion   *domain.Portion `json:"portion,omitempty"`
}

func (n NewItem) toCartItem() domain.CartItem {
	var portion *domain.Portion
	if n.Portion != nil {
		p := *n.Portion
		portion = &p
	}
	return domain.CartItem{
		ItemID:    n.ItemID,
		Name:      n.Name,
		UnitPrice: n.UnitPrice,
		Quantity:  n.Quantity,
		Portion:   portion,
	}
}

// AddResult reports what AddItem did.
type AddResult struct {
	Outcome Outcome `json:"outcome"`

	// CurrentRestaurant is set for OutcomeNeedsConfirmation: the restaurant
	// whose items occupy the cart.
	CurrentRestaurant *domain.Restaurant `json:"currentRestaurant,omitempty"`

	// Synced is false when the store failed and the line was only added in
	// memory.
	Synced bool `json:"synced"`
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Local holds the guest cart. Required.
	Local Store

	// Remote is the Cart service. Optional: without it the manager stays
	// in guest mode.
	Remote Store

	LoginPolicy LoginPolicy
	Logger      *slog.Logger               // Optional: defaults to slog.Default()
	Metrics     *telemetry.BusinessMetrics // Optional
}

// Manager owns the active cart of one session. It is not safe for
// concurrent use; callers serialize operations per session.
type Manager struct {
	local  Store
	remote Store
	store  Store

	policy  LoginPolicy
	logger  *slog.Logger
	metrics *telemetry.BusinessMetrics
	newID   func() string

	cart  domain.Cart
	stale bool
}

// NewManager creates a manager in guest mode. Call Refresh to load the
// stored cart.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := cfg.LoginPolicy
	if policy == "" {
		policy = AdoptGuestCartWhenRemoteEmpty
	}

	return &Manager{
		local:   cfg.Local,
		remote:  cfg.Remote,
		store:   cfg.Local,
		policy:  policy,
		logger:  logger,
		metrics: cfg.Metrics,
		newID:   uuid.NewString,
	}
}

// Cart returns a copy of the current cart.
func (m *Manager) Cart() domain.Cart {
	return m.cart.Clone()
}

// Restaurant returns the cart's restaurant, or nil for an empty cart.
func (m *Manager) Restaurant() *domain.Restaurant {
	c := m.cart.Clone()
	return c.Restaurant
}

// Mode reports the active persistence mode.
func (m *Manager) Mode() Mode {
	return m.store.Mode()
}

// Authenticated reports whether the manager uses the remote store.
func (m *Manager) Authenticated() bool {
	return m.store.Mode() == ModeRemote
}

// Stale reports whether the in-memory cart holds changes the store has not
// confirmed. The next successful Refresh clears it.
func (m *Manager) Stale() bool {
	return m.stale
}

// Subtotal is the sum of all line totals.
func (m *Manager) Subtotal() decimal.Decimal {
	return m.cart.Subtotal()
}

// ItemCount is the sum of all line quantities.
func (m *Manager) ItemCount() int {
	return m.cart.ItemCount()
}

// BaseDeliveryFee is the restaurant's base fee, or zero for an empty cart.
func (m *Manager) BaseDeliveryFee() decimal.Decimal {
	if m.cart.Restaurant == nil {
		return decimal.Zero
	}
	return m.cart.Restaurant.DeliveryFee
}

// Tax is the tax on the subtotal plus the restaurant's base delivery fee.
func (m *Manager) Tax() decimal.Decimal {
	return tax.Compute(m.Subtotal(), m.BaseDeliveryFee(), true)
}

// Total is subtotal + base delivery fee + tax.
func (m *Manager) Total() decimal.Decimal {
	return tax.Total(m.Subtotal(), m.BaseDeliveryFee(), m.Tax())
}

// Refresh reloads the cart from the active store.
func (m *Manager) Refresh(ctx context.Context) error {
	c, err := m.store.Fetch(ctx)
	if err != nil {
		return err
	}
	m.cart = c
	m.stale = false
	return nil
}

// AddItem adds item from restaurant. A non-empty cart for another
// restaurant is left untouched and OutcomeNeedsConfirmation is returned;
// the caller confirms by calling Replace.
func (m *Manager) AddItem(ctx context.Context, item NewItem, restaurant domain.Restaurant) (AddResult, error) {
	const op = "cart.add"

	if err := m.validate(op, item, restaurant); err != nil {
		return AddResult{}, err
	}

	if m.cart.ConflictsWith(restaurant.ID) {
		return m.needsConfirmation(), nil
	}

	line := item.toCartItem()
	synced, err := m.mutate(ctx, op,
		func(ctx context.Context) error {
			return m.store.AddItem(ctx, AddItemParams{Item: line, Restaurant: restaurant})
		},
		func(c *domain.Cart) error {
			_, err := c.AddLine(line, restaurant, m.newID)
			return err
		},
	)
	if domain.IsCode(err, domain.ECONFLICT) {
		// The store knows of a different restaurant we did not.
		if rerr := m.Refresh(ctx); rerr != nil {
			m.logger.Warn("cart refetch after conflict failed", "op", op, "error", rerr)
		}
		return m.needsConfirmation(), nil
	}
	if err != nil {
		return AddResult{}, err
	}

	return AddResult{Outcome: OutcomeAdded, Synced: synced}, nil
}

func (m *Manager) needsConfirmation() AddResult {
	m.metrics.CartConflict()
	return AddResult{Outcome: OutcomeNeedsConfirmation, CurrentRestaurant: m.Restaurant()}
}

// RemoveItem deletes a line by its cart-line id.
func (m *Manager) RemoveItem(ctx context.Context, lineID string) error {
	_, err := m.mutate(ctx, "cart.remove",
		func(ctx context.Context) error {
			return m.store.RemoveItem(ctx, lineID)
		},
		func(c *domain.Cart) error {
			return c.RemoveLine(lineID)
		},
	)
	return err
}

// UpdateQuantity sets a line's quantity. quantity <= 0 removes the line.
func (m *Manager) UpdateQuantity(ctx context.Context, lineID, itemID string, quantity int) error {
	if quantity <= 0 {
		return m.RemoveItem(ctx, lineID)
	}
	_, err := m.mutate(ctx, "cart.update",
		func(ctx context.Context) error {
			return m.store.UpdateQuantity(ctx, lineID, itemID, quantity)
		},
		func(c *domain.Cart) error {
			return c.SetQuantity(lineID, quantity)
		},
	)
	return err
}

// Clear empties the cart. A failed store reset still clears the in-memory
// cart; the next Refresh reconciles.
func (m *Manager) Clear(ctx context.Context) error {
	const op = "cart.clear"
	mode := string(m.store.Mode())

	if err := m.store.Reset(ctx); err != nil {
		m.logger.Warn("cart reset failed, cleared locally",
			"op", op,
			"mode", mode,
			"error", err,
		)
		m.metrics.CartFallback(op, mode)
		m.cart.Clear()
		m.stale = true
		return nil
	}

	m.metrics.CartMutation(op, mode, "ok")
	m.cart.Clear()
	m.stale = false
	return nil
}

// Replace clears the cart and adds every item from restaurant, one store
// call per item in order. Used after the caller confirms a restaurant
// switch. When the reset fails but the store still answers with the old
// lines, Replace returns ErrCartResetFailed without adding anything.
func (m *Manager) Replace(ctx context.Context, items []NewItem, restaurant domain.Restaurant) error {
	const op = "cart.replace"

	for _, item := range items {
		if err := m.validate(op, item, restaurant); err != nil {
			return err
		}
	}

	if err := m.Clear(ctx); err != nil {
		return err
	}
	if m.stale {
		// The reset never reached the store, which may still hold the
		// previous restaurant's lines. Adding now would conflict.
		if err := m.Refresh(ctx); err == nil && !m.cart.IsEmpty() {
			m.logger.Warn("cart replace aborted, store was not reset", "op", op)
			return fmt.Errorf("%s: %w", op, domain.ErrCartResetFailed)
		}
	}

	for _, item := range items {
		line := item.toCartItem()
		_, err := m.apply(ctx, op,
			func(ctx context.Context) error {
				return m.store.AddItem(ctx, AddItemParams{Item: line, Restaurant: restaurant})
			},
			func(c *domain.Cart) error {
				_, err := c.AddLine(line, restaurant, m.newID)
				return err
			},
		)
		if err != nil {
			if rerr := m.Refresh(ctx); rerr != nil {
				m.logger.Warn("cart refetch failed after replace error", "op", op, "error", rerr)
				m.stale = true
			}
			return err
		}
	}

	if err := m.Refresh(ctx); err != nil {
		m.logger.Warn("cart refetch failed after replace", "op", op, "error", err)
		m.stale = true
	}
	return nil
}

// SetAuthenticated switches persistence mode. Logging in fetches the remote
// cart, which replaces the in-memory guest cart subject to the login
// policy. Logging out reloads local storage as it is, which may be older
// than the last remote state.
func (m *Manager) SetAuthenticated(ctx context.Context, authenticated bool) error {
	if authenticated == m.Authenticated() {
		return nil
	}

	if !authenticated {
		m.store = m.local
		m.metrics.ModeSwitch(string(ModeLocal))
		return m.Refresh(ctx)
	}

	if m.remote == nil {
		return domain.Errorf(domain.EUNAVAILABLE, "cart.login", "remote cart is not configured")
	}

	guest := m.cart.Clone()
	m.store = m.remote
	m.metrics.ModeSwitch(string(ModeRemote))

	if err := m.Refresh(ctx); err != nil {
		m.stale = true
		return err
	}

	if m.policy != AdoptGuestCartWhenRemoteEmpty || guest.IsEmpty() || !m.cart.IsEmpty() || guest.Restaurant == nil {
		if !guest.IsEmpty() {
			m.logger.Info("guest cart superseded by remote cart",
				"policy", string(m.policy),
				"guest_items", guest.ItemCount(),
				"remote_items", m.cart.ItemCount(),
			)
		}
		return nil
	}

	m.logger.Info("adopting guest cart into empty remote cart", "guest_items", guest.ItemCount())
	for _, line := range guest.Items {
		line.ID = ""
		_, err := m.apply(ctx, "cart.adopt",
			func(ctx context.Context) error {
				return m.store.AddItem(ctx, AddItemParams{Item: line, Restaurant: *guest.Restaurant})
			},
			func(c *domain.Cart) error {
				_, err := c.AddLine(line, *guest.Restaurant, m.newID)
				return err
			},
		)
		if err != nil {
			return err
		}
	}
	if err := m.Refresh(ctx); err != nil {
		m.stale = true
	}
	return nil
}

func (m *Manager) validate(op string, item NewItem, restaurant domain.Restaurant) error {
	err := domain.Validate(op, item)
	if item.UnitPrice.IsNegative() {
		err = domain.AddFieldError(err, "price", "must not be negative")
	}
	if err != nil {
		return err
	}
	if restaurant.ID == "" {
		return domain.ErrRestaurantMissing
	}
	return domain.Validate(op, restaurant)
}

// mutate runs call against the store and refetches on success. When the
// store is unreachable, apply runs on the in-memory cart instead and the
// manager is marked stale. synced reports whether the store confirmed.
func (m *Manager) mutate(ctx context.Context, op string, call func(context.Context) error, apply func(*domain.Cart) error) (synced bool, err error) {
	fellBack, err := m.apply(ctx, op, call, apply)
	if err != nil || fellBack {
		return false, err
	}

	if err := m.Refresh(ctx); err != nil {
		m.logger.Warn("cart refetch failed, applying locally",
			"op", op,
			"mode", string(m.store.Mode()),
			"error", err,
		)
		if aerr := m.applyLocal(apply); aerr != nil {
			return false, aerr
		}
		m.stale = true
		return false, nil
	}
	return true, nil
}

// apply runs call and falls back to the in-memory cart for failures that
// may be transient. It does not refetch.
func (m *Manager) apply(ctx context.Context, op string, call func(context.Context) error, apply func(*domain.Cart) error) (fellBack bool, err error) {
	mode := string(m.store.Mode())

	err = call(ctx)
	if err == nil {
		m.metrics.CartMutation(op, mode, "ok")
		return false, nil
	}

	if !canFallBack(err) {
		m.metrics.CartMutation(op, mode, domain.ErrorCode(err))
		return false, err
	}

	m.logger.Warn("cart store failed, applying locally",
		"op", op,
		"mode", mode,
		"error", err,
	)
	m.metrics.CartFallback(op, mode)

	if aerr := m.applyLocal(apply); aerr != nil {
		return true, aerr
	}
	m.stale = true
	return true, nil
}

func (m *Manager) applyLocal(apply func(*domain.Cart) error) error {
	next := m.cart.Clone()
	if err := apply(&next); err != nil {
		return err
	}
	m.cart = next
	return nil
}

// canFallBack reports whether err means the store could not be reached or
// failed internally, as opposed to rejecting the request.
func canFallBack(err error) bool {
	if domain.IsValidationError(err) {
		return false
	}
	switch domain.ErrorCode(err) {
	case domain.EUNAVAILABLE, domain.EINTERNAL, domain.ERATELIMIT:
		return true
	default:
		return false
	}
}
