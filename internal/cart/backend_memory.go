package cart

import (
	"context"
	"sync"
	"time"

	"github.com/dukerupert/tiffin/internal/domain"
)

// MemoryBackend keeps carts in process memory. Used in tests and as the
// default guest backend for single-instance deployments.
type MemoryBackend struct {
	mu    sync.Mutex
	carts map[string]memoryEntry
	now   func() time.Time
}

type memoryEntry struct {
	cart      domain.Cart
	updatedAt time.Time
}

var (
	_ Backend = (*MemoryBackend)(nil)
	_ Sweeper = (*MemoryBackend)(nil)
)

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{carts: make(map[string]memoryEntry), now: time.Now}
}

// Load implements Backend.
func (b *MemoryBackend) Load(ctx context.Context, key string) (domain.Cart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.carts[key]
	if !ok {
		return domain.Cart{}, nil
	}
	return e.cart.Clone(), nil
}

// Save implements Backend.
func (b *MemoryBackend) Save(ctx context.Context, key string, c domain.Cart) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.carts[key] = memoryEntry{cart: c.Clone(), updatedAt: b.now()}
	return nil
}

// Delete implements Backend.
func (b *MemoryBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.carts, key)
	return nil
}

// DeleteIdle implements Sweeper.
func (b *MemoryBackend) DeleteIdle(ctx context.Context, before time.Time) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var n int64
	for key, e := range b.carts {
		if e.updatedAt.Before(before) {
			delete(b.carts, key)
			n++
		}
	}
	return n, nil
}
