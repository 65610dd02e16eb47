package cart

import (
	"context"

	"github.com/dukerupert/tiffin/internal/domain"
)

// MockStore is a test implementation of Store. Unset funcs fall through to
// an in-memory cart with server-like behaviour.
type MockStore struct {
	ModeValue Mode

	FetchFunc          func(ctx context.Context) (domain.Cart, error)
	AddItemFunc        func(ctx context.Context, params AddItemParams) error
	UpdateQuantityFunc func(ctx context.Context, lineID, itemID string, quantity int) error
	RemoveItemFunc     func(ctx context.Context, lineID string) error
	ResetFunc          func(ctx context.Context) error

	// CallLog records method names in call order.
	CallLog []string

	// Backing is the default in-memory implementation.
	Backing *LocalStore
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates a mock store reporting mode.
func NewMockStore(mode Mode) *MockStore {
	backing, _ := NewLocalStore(NewMemoryBackend(), "mock")
	return &MockStore{ModeValue: mode, Backing: backing}
}

// Mode implements Store.
func (m *MockStore) Mode() Mode { return m.ModeValue }

// Fetch implements Store.
func (m *MockStore) Fetch(ctx context.Context) (domain.Cart, error) {
	m.CallLog = append(m.CallLog, "Fetch")
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx)
	}
	return m.Backing.Fetch(ctx)
}

// AddItem implements Store.
func (m *MockStore) AddItem(ctx context.Context, params AddItemParams) error {
	m.CallLog = append(m.CallLog, "AddItem")
	if m.AddItemFunc != nil {
		return m.AddItemFunc(ctx, params)
	}
	return m.Backing.AddItem(ctx, params)
}

// UpdateQuantity implements Store.
func (m *MockStore) UpdateQuantity(ctx context.Context, lineID, itemID string, quantity int) error {
	m.CallLog = append(m.CallLog, "UpdateQuantity")
	if m.UpdateQuantityFunc != nil {
		return m.UpdateQuantityFunc(ctx, lineID, itemID, quantity)
	}
	return m.Backing.UpdateQuantity(ctx, lineID, itemID, quantity)
}

// RemoveItem implements Store.
func (m *MockStore) RemoveItem(ctx context.Context, lineID string) error {
	m.CallLog = append(m.CallLog, "RemoveItem")
	if m.RemoveItemFunc != nil {
		return m.RemoveItemFunc(ctx, lineID)
	}
	return m.Backing.RemoveItem(ctx, lineID)
}

// Reset implements Store.
func (m *MockStore) Reset(ctx context.Context) error {
	m.CallLog = append(m.CallLog, "Reset")
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx)
	}
	return m.Backing.Reset(ctx)
}

// Count returns how many times method was called.
func (m *MockStore) Count(method string) int {
	n := 0
	for _, c := range m.CallLog {
		if c == method {
			n++
		}
	}
	return n
}
