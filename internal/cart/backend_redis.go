package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/tiffin/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultGuestCartTTL is how long an untouched guest cart is kept.
const DefaultGuestCartTTL = 7 * 24 * time.Hour

// RedisBackend stores carts as JSON strings with a sliding TTL.
type RedisBackend struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend creates a Redis backend. A zero ttl uses DefaultGuestCartTTL.
func NewRedisBackend(client *redis.Client, ttl time.Duration) *RedisBackend {
	if ttl <= 0 {
		ttl = DefaultGuestCartTTL
	}
	return &RedisBackend{client: client, ttl: ttl}
}

// Load implements Backend.
func (b *RedisBackend) Load(ctx context.Context, key string) (domain.Cart, error) {
	data, err := b.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Cart{}, nil
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("redis get failed: %w", err)
	}

	var c domain.Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.Cart{}, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return c, nil
}

// Save implements Backend.
func (b *RedisBackend) Save(ctx context.Context, key string, c domain.Cart) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	if err := b.client.Set(ctx, redisKey(key), data, b.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete implements Backend.
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func redisKey(key string) string {
	return fmt.Sprintf("guest_cart:%s", key)
}
