package cart

import (
	"context"
	"net/url"

	"github.com/dukerupert/tiffin/internal/api"
	"github.com/dukerupert/tiffin/internal/domain"
	"github.com/shopspring/decimal"
)

// RemoteStore is the Cart service for authenticated sessions. The server
// assigns line ids and enforces the single-restaurant rule with a 409.
type RemoteStore struct {
	client *api.Client
}

var _ Store = (*RemoteStore)(nil)

// NewRemoteStore creates a store backed by the Cart service.
func NewRemoteStore(client *api.Client) *RemoteStore {
	return &RemoteStore{client: client}
}

// addItemRequest is the body of POST /cart.
type addItemRequest struct {
	ItemID       string          `json:"itemId"`
	RestaurantID string          `json:"restaurantId"`
	Quantity     int             `json:"quantity"`
	ItemPrice    decimal.Decimal `json:"itemPrice"`
	PortionID    string          `json:"portionId,omitempty"`
	PortionName  string          `json:"portionName,omitempty"`
}

// updateQuantityRequest is the body of PUT /cart/:id.
type updateQuantityRequest struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// Mode implements Store.
func (s *RemoteStore) Mode() Mode { return ModeRemote }

// Fetch implements Store.
func (s *RemoteStore) Fetch(ctx context.Context) (domain.Cart, error) {
	var c domain.Cart
	if err := s.client.Get(ctx, "/cart", &c); err != nil {
		return domain.Cart{}, err
	}
	c.Normalize()
	return c, nil
}

// AddItem implements Store.
func (s *RemoteStore) AddItem(ctx context.Context, params AddItemParams) error {
	req := addItemRequest{
		ItemID:       params.Item.ItemID,
		RestaurantID: params.Restaurant.ID,
		Quantity:     params.Item.Quantity,
		ItemPrice:    params.Item.UnitPrice,
	}
	if p := params.Item.Portion; p != nil {
		req.PortionID = p.ID
		req.PortionName = p.Name
	}
	return s.client.Post(ctx, "/cart", req, nil)
}

// UpdateQuantity implements Store.
func (s *RemoteStore) UpdateQuantity(ctx context.Context, lineID, itemID string, quantity int) error {
	req := updateQuantityRequest{ItemID: itemID, Quantity: quantity}
	return s.client.Put(ctx, "/cart/"+url.PathEscape(lineID), req, nil)
}

// RemoveItem implements Store.
func (s *RemoteStore) RemoveItem(ctx context.Context, lineID string) error {
	return s.client.Delete(ctx, "/cart/"+url.PathEscape(lineID), nil)
}

// Reset implements Store.
func (s *RemoteStore) Reset(ctx context.Context) error {
	return s.client.Post(ctx, "/cart/reset", nil, nil)
}
