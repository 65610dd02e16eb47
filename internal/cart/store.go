// Package cart manages the active cart for a session.
//
// The Manager holds the in-memory cart and delegates persistence to a Store.
// A LocalStore keeps guest carts in a Backend (memory, file, Redis or
// Postgres); a RemoteStore talks to the backend Cart service for
// authenticated sessions. After every successful mutation the Manager
// refetches the cart from the active Store.
package cart

import (
	"context"

	"github.com/dukerupert/tiffin/internal/domain"
)

// Mode names the active persistence strategy.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// AddItemParams describes one add-to-cart call.
type AddItemParams struct {
	Item       domain.CartItem
	Restaurant domain.Restaurant
}

// Store persists a single cart.
// Implementations: LocalStore, RemoteStore
type Store interface {
	// Mode reports whether the store is local or remote.
	Mode() Mode

	// Fetch returns the authoritative cart. A cart that was never written
	// is returned empty.
	Fetch(ctx context.Context) (domain.Cart, error)

	// AddItem adds or merges a line. Adding from a different restaurant
	// while the cart is non-empty returns an ECONFLICT error.
	AddItem(ctx context.Context, params AddItemParams) error

	// UpdateQuantity sets a line's quantity. quantity is always >= 1.
	UpdateQuantity(ctx context.Context, lineID, itemID string, quantity int) error

	// RemoveItem deletes a line by cart-line id.
	RemoveItem(ctx context.Context, lineID string) error

	// Reset empties the cart.
	Reset(ctx context.Context) error
}
