package cart

import (
	"context"
	"regexp"
	"time"

	"github.com/dukerupert/tiffin/internal/domain"
	"github.com/google/uuid"
)

// Backend stores serialized guest carts by key.
// Implementations: MemoryBackend, FileBackend, RedisBackend, PostgresBackend
type Backend interface {
	// Load returns the cart stored under key, or an empty cart.
	Load(ctx context.Context, key string) (domain.Cart, error)

	// Save overwrites the cart stored under key.
	Save(ctx context.Context, key string, cart domain.Cart) error

	// Delete removes the cart stored under key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

// Sweeper is implemented by backends that cannot expire carts on their own.
// RedisBackend relies on key TTLs instead.
type Sweeper interface {
	// DeleteIdle removes carts last saved before the given time and reports
	// how many were removed.
	DeleteIdle(ctx context.Context, before time.Time) (int64, error)
}

var validKey = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateKey checks that a cart key is safe to use as a file name or
// storage key.
func ValidateKey(key string) error {
	if !validKey.MatchString(key) {
		return domain.Invalid("cart.key", "Cart session id must be 1-128 letters, digits, '-' or '_'")
	}
	return nil
}

// LocalStore keeps a guest cart in a Backend. Line ids are random UUIDs.
type LocalStore struct {
	backend Backend
	key     string
	newID   func() string
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates a store for the cart saved under key.
func NewLocalStore(backend Backend, key string) (*LocalStore, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	return &LocalStore{
		backend: backend,
		key:     key,
		newID:   uuid.NewString,
	}, nil
}

// Mode implements Store.
func (s *LocalStore) Mode() Mode { return ModeLocal }

// Key returns the storage key of the cart.
func (s *LocalStore) Key() string { return s.key }

// Fetch implements Store.
func (s *LocalStore) Fetch(ctx context.Context) (domain.Cart, error) {
	c, err := s.backend.Load(ctx, s.key)
	if err != nil {
		return domain.Cart{}, domain.Internal(err, "cart.local.fetch", "failed to load cart")
	}
	c.Normalize()
	return c, nil
}

// AddItem implements Store.
func (s *LocalStore) AddItem(ctx context.Context, params AddItemParams) error {
	return s.update(ctx, "cart.local.add", func(c *domain.Cart) error {
		_, err := c.AddLine(params.Item, params.Restaurant, s.newID)
		return err
	})
}

// UpdateQuantity implements Store.
func (s *LocalStore) UpdateQuantity(ctx context.Context, lineID, itemID string, quantity int) error {
	return s.update(ctx, "cart.local.update", func(c *domain.Cart) error {
		return c.SetQuantity(lineID, quantity)
	})
}

// RemoveItem implements Store.
func (s *LocalStore) RemoveItem(ctx context.Context, lineID string) error {
	return s.update(ctx, "cart.local.remove", func(c *domain.Cart) error {
		return c.RemoveLine(lineID)
	})
}

// Reset implements Store.
func (s *LocalStore) Reset(ctx context.Context) error {
	if err := s.backend.Delete(ctx, s.key); err != nil {
		return domain.Internal(err, "cart.local.reset", "failed to reset cart")
	}
	return nil
}

func (s *LocalStore) update(ctx context.Context, op string, fn func(c *domain.Cart) error) error {
	c, err := s.Fetch(ctx)
	if err != nil {
		return err
	}
	if err := fn(&c); err != nil {
		return err
	}
	if err := s.backend.Save(ctx, s.key, c); err != nil {
		return domain.Internal(err, op, "failed to save cart")
	}
	return nil
}
