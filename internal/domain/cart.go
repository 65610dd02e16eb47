package domain

import (
	"fmt"

	"github.com/dukerupert/tiffin/internal/geo"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CART DOMAIN ERRORS
// =============================================================================

var (
	ErrCartLineNotFound    = &Error{Code: ENOTFOUND, Message: "Cart item not found"}
	ErrInvalidQuantity     = &Error{Code: EINVALID, Message: "Quantity must be greater than 0"}
	ErrNegativePrice       = &Error{Code: EINVALID, Message: "Price must not be negative"}
	ErrRestaurantMissing   = &Error{Code: EINVALID, Message: "Restaurant is required"}
	ErrDifferentRestaurant = &Error{Code: ECONFLICT, Message: "Your cart contains items from another restaurant"}
	ErrCartResetFailed     = &Error{Code: EUNAVAILABLE, Message: "Your cart could not be cleared. Please try again"}
)

// Portion identifies a size or portion variant of a menu item.
type Portion struct {
	ID   string `json:"portionId" validate:"required"`
	Name string `json:"portionName"`
}

// LineKey identifies a cart line for merge purposes: one line per item and portion.
type LineKey struct {
	ItemID    string
	PortionID string
}

// CartItem is one product line in the active cart.
type CartItem struct {
	ID          string          `json:"id"`
	ItemID      string          `json:"itemId"`
	Name        string          `json:"name"`
	DisplayName string          `json:"displayName"`
	UnitPrice   decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	Portion     *Portion        `json:"portion,omitempty"`
}

// Key returns the merge identity of the line.
func (i CartItem) Key() LineKey {
	k := LineKey{ItemID: i.ItemID}
	if i.Portion != nil {
		k.PortionID = i.Portion.ID
	}
	return k
}

// Recalculate derives TotalPrice and DisplayName from the other fields.
func (i *CartItem) Recalculate() {
	i.TotalPrice = i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
	i.DisplayName = DisplayName(i.Name, i.Portion)
}

// DisplayName renders an item label including its portion, if any.
func DisplayName(name string, portion *Portion) string {
	if portion == nil || portion.Name == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, portion.Name)
}

// RestaurantAddress holds the location of a restaurant.
type RestaurantAddress struct {
	Coordinates *geo.Coordinates `json:"coordinates,omitempty"`
}

// Restaurant is the cart-scoped projection of the restaurant whose items
// occupy the cart.
type Restaurant struct {
	ID           string            `json:"id" validate:"required"`
	Name         string            `json:"name"`
	Image        string            `json:"image,omitempty"`
	DeliveryFee  decimal.Decimal   `json:"deliveryFee"`
	DeliveryTime string            `json:"deliveryTime,omitempty"`
	Address      RestaurantAddress `json:"address"`
}

// Cart is the aggregate of line items and the single restaurant they belong to.
// The zero value is an empty cart.
type Cart struct {
	Items      []CartItem  `json:"items"`
	Restaurant *Restaurant `json:"restaurant"`
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Subtotal is the sum of all line totals.
func (c Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range c.Items {
		sum = sum.Add(item.TotalPrice)
	}
	return sum
}

// ItemCount is the sum of all line quantities.
func (c Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// ConflictsWith reports whether adding an item from restaurantID would mix
// restaurants.
func (c Cart) ConflictsWith(restaurantID string) bool {
	return !c.IsEmpty() && c.Restaurant != nil && c.Restaurant.ID != restaurantID
}

// Line returns the line with the given cart-line id.
func (c *Cart) Line(lineID string) (*CartItem, bool) {
	for i := range c.Items {
		if c.Items[i].ID == lineID {
			return &c.Items[i], true
		}
	}
	return nil, false
}

// LineByKey returns the line matching the given merge identity.
func (c *Cart) LineByKey(key LineKey) (*CartItem, bool) {
	for i := range c.Items {
		if c.Items[i].Key() == key {
			return &c.Items[i], true
		}
	}
	return nil, false
}

// AddLine merges item into the cart. An existing line with the same key has
// its quantity incremented; otherwise the item is appended with newID().
// The cart adopts restaurant. Callers must check ConflictsWith first.
func (c *Cart) AddLine(item CartItem, restaurant Restaurant, newID func() string) (CartItem, error) {
	if item.Quantity < 1 {
		return CartItem{}, ErrInvalidQuantity
	}
	if item.UnitPrice.IsNegative() {
		return CartItem{}, ErrNegativePrice
	}
	if c.ConflictsWith(restaurant.ID) {
		return CartItem{}, ErrDifferentRestaurant
	}

	r := restaurant
	c.Restaurant = &r

	if existing, ok := c.LineByKey(item.Key()); ok {
		existing.Quantity += item.Quantity
		existing.Recalculate()
		return *existing, nil
	}

	if item.ID == "" {
		item.ID = newID()
	}
	item.Recalculate()
	c.Items = append(c.Items, item)
	return item, nil
}

// SetQuantity updates a line's quantity. A quantity of zero or less removes it.
func (c *Cart) SetQuantity(lineID string, quantity int) error {
	if quantity <= 0 {
		return c.RemoveLine(lineID)
	}
	line, ok := c.Line(lineID)
	if !ok {
		return ErrCartLineNotFound
	}
	line.Quantity = quantity
	line.Recalculate()
	return nil
}

// RemoveLine deletes a line by its cart-line id. Removing the last line
// resets the restaurant.
func (c *Cart) RemoveLine(lineID string) error {
	for i := range c.Items {
		if c.Items[i].ID == lineID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			if len(c.Items) == 0 {
				c.Clear()
			}
			return nil
		}
	}
	return ErrCartLineNotFound
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Items = nil
	c.Restaurant = nil
}

// Normalize re-derives line totals and drops the restaurant of an empty cart.
// Snapshots read from storage or the network pass through here.
func (c *Cart) Normalize() {
	for i := range c.Items {
		c.Items[i].Recalculate()
	}
	if len(c.Items) == 0 {
		c.Clear()
	}
}

// Clone returns a deep copy of the cart.
func (c Cart) Clone() Cart {
	out := Cart{}
	if c.Restaurant != nil {
		r := *c.Restaurant
		if r.Address.Coordinates != nil {
			coords := *r.Address.Coordinates
			r.Address.Coordinates = &coords
		}
		out.Restaurant = &r
	}
	if len(c.Items) > 0 {
		out.Items = make([]CartItem, len(c.Items))
		for i, item := range c.Items {
			if item.Portion != nil {
				p := *item.Portion
				item.Portion = &p
			}
			out.Items[i] = item
		}
	}
	return out
}
