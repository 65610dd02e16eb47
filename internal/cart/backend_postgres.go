package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/tiffin/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend stores carts in the guest_carts table as JSONB.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

var (
	_ Backend = (*PostgresBackend)(nil)
	_ Sweeper = (*PostgresBackend)(nil)
)

// NewPostgresBackend creates a backend on an open pool. The guest_carts
// table is created by the migrations.
func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

const (
	loadGuestCartSQL = `SELECT cart FROM guest_carts WHERE session_key = $1`

	saveGuestCartSQL = `
INSERT INTO guest_carts (session_key, cart, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (session_key) DO UPDATE
SET cart = EXCLUDED.cart, updated_at = now()`

	deleteGuestCartSQL = `DELETE FROM guest_carts WHERE session_key = $1`

	deleteIdleGuestCartsSQL = `DELETE FROM guest_carts WHERE updated_at < $1`
)

// Load implements Backend.
func (b *PostgresBackend) Load(ctx context.Context, key string) (domain.Cart, error) {
	var raw []byte
	err := b.pool.QueryRow(ctx, loadGuestCartSQL, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Cart{}, nil
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("failed to load guest cart: %w", err)
	}

	var c domain.Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return domain.Cart{}, fmt.Errorf("failed to decode guest cart: %w", err)
	}
	return c, nil
}

// Save implements Backend.
func (b *PostgresBackend) Save(ctx context.Context, key string, c domain.Cart) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode guest cart: %w", err)
	}
	if _, err := b.pool.Exec(ctx, saveGuestCartSQL, key, raw); err != nil {
		return fmt.Errorf("failed to save guest cart: %w", err)
	}
	return nil
}

// Delete implements Backend.
func (b *PostgresBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.pool.Exec(ctx, deleteGuestCartSQL, key); err != nil {
		return fmt.Errorf("failed to delete guest cart: %w", err)
	}
	return nil
}

// DeleteIdle implements Sweeper.
func (b *PostgresBackend) DeleteIdle(ctx context.Context, before time.Time) (int64, error) {
	tag, err := b.pool.Exec(ctx, deleteIdleGuestCartsSQL, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete idle guest carts: %w", err)
	}
	return tag.RowsAffected(), nil
}
