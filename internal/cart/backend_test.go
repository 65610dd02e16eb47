package cart_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dukerupert/tiffin/internal/cart"
	"github.com/dukerupert/tiffin/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCart() domain.Cart {
	c := domain.Cart{}
	_, _ = c.AddLine(domain.CartItem{
		ID:        "line-1",
		ItemID:    "pizza",
		Name:      "Margherita Pizza",
		UnitPrice: decimal.RequireFromString("12.99"),
		Quantity:  2,
		Portion:   &domain.Portion{ID: "l", Name: "Large"},
	}, restaurantA, nil)
	return c
}

// exerciseBackend runs the same contract against any Backend.
func exerciseBackend(t *testing.T, backend cart.Backend) {
	t.Helper()
	ctx := context.Background()

	empty, err := backend.Load(ctx, "nobody")
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty(), "missing key loads as an empty cart")

	want := sampleCart()
	require.NoError(t, backend.Save(ctx, "session-1", want))

	got, err := backend.Load(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "line-1", got.Items[0].ID)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.True(t, want.Subtotal().Equal(got.Subtotal()))
	assert.Equal(t, "Large", got.Items[0].Portion.Name)
	assert.Equal(t, "rest-a", got.Restaurant.ID)
	assert.True(t, decimal.NewFromInt(80).Equal(got.Restaurant.DeliveryFee))

	require.NoError(t, backend.Delete(ctx, "session-1"))
	require.NoError(t, backend.Delete(ctx, "session-1"), "deleting twice is fine")

	gone, err := backend.Load(ctx, "session-1")
	require.NoError(t, err)
	assert.True(t, gone.IsEmpty())
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, cart.NewMemoryBackend())
}

func TestMemoryBackend_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	backend := cart.NewMemoryBackend()
	require.NoError(t, backend.Save(ctx, "k", sampleCart()))

	first, err := backend.Load(ctx, "k")
	require.NoError(t, err)
	first.Items[0].Quantity = 99

	second, err := backend.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Items[0].Quantity)
}

func TestFileBackend(t *testing.T) {
	backend, err := cart.NewFileBackend(t.TempDir())
	require.NoError(t, err)

	exerciseBackend(t, backend)
}

func TestRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	backend := cart.NewRedisBackend(client, 0)
	exerciseBackend(t, backend)
}

func TestRedisBackend_SetsTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	backend := cart.NewRedisBackend(client, 0)
	require.NoError(t, backend.Save(context.Background(), "abc", sampleCart()))

	assert.True(t, mr.Exists("guest_cart:abc"))
	assert.Equal(t, cart.DefaultGuestCartTTL, mr.TTL("guest_cart:abc"))

	mr.FastForward(cart.DefaultGuestCartTTL + 1)
	c, err := backend.Load(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty(), "expired carts load empty")
}

func TestRedisBackend_UnreachableIsFallbackable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store, err := cart.NewLocalStore(cart.NewRedisBackend(client, 0), "abc")
	require.NoError(t, err)
	m := cart.NewManager(cart.ManagerConfig{Local: store, Logger: testLogger()})

	mr.Close()

	res, err := m.AddItem(context.Background(), pizza(1), restaurantA)
	require.NoError(t, err)
	assert.False(t, res.Synced)
	assert.True(t, m.Stale())
	assert.Equal(t, 1, m.ItemCount())
}

func TestPostgresBackend(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS guest_carts (
		session_key TEXT PRIMARY KEY,
		cart JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	require.NoError(t, err)

	exerciseBackend(t, cart.NewPostgresBackend(pool))
	exerciseSweeper(t, cart.NewPostgresBackend(pool))
}

func TestLocalStore_RejectsUnsafeKeys(t *testing.T) {
	for _, key := range []string{"", "../etc/passwd", "a/b", "has space"} {
		_, err := cart.NewLocalStore(cart.NewMemoryBackend(), key)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err), key)
	}

	_, err := cart.NewLocalStore(cart.NewMemoryBackend(), "0b5f1d2e-9c1a-4e0b-a7e2-3f5d6c7b8a90")
	assert.NoError(t, err)
}

func TestLocalStore_PersistsAcrossManagers(t *testing.T) {
	ctx := context.Background()
	backend, err := cart.NewFileBackend(t.TempDir())
	require.NoError(t, err)

	store, err := cart.NewLocalStore(backend, "device")
	require.NoError(t, err)
	first := cart.NewManager(cart.ManagerConfig{Local: store, Logger: testLogger()})
	_, err = first.AddItem(ctx, pizza(3), restaurantA)
	require.NoError(t, err)

	second := cart.NewManager(cart.ManagerConfig{Local: store, Logger: testLogger()})
	require.NoError(t, second.Refresh(ctx))
	assert.Equal(t, 3, second.ItemCount())
	assert.Equal(t, "rest-a", second.Restaurant().ID)
}

// exerciseSweeper checks that DeleteIdle removes only carts saved before
// the cutoff.
func exerciseSweeper(t *testing.T, backend interface {
	cart.Backend
	cart.Sweeper
}) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, backend.Save(ctx, "idle", sampleCart()))

	n, err := backend.DeleteIdle(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "a cart saved just now is not idle")

	n, err = backend.DeleteIdle(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	gone, err := backend.Load(ctx, "idle")
	require.NoError(t, err)
	assert.True(t, gone.IsEmpty())
}

func TestMemoryBackend_DeleteIdle(t *testing.T) {
	exerciseSweeper(t, cart.NewMemoryBackend())
}

func TestFileBackend_DeleteIdle(t *testing.T) {
	backend, err := cart.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	exerciseSweeper(t, backend)
}

func TestFileBackend_DeleteIdle_UsesModTime(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backend, err := cart.NewFileBackend(dir)
	require.NoError(t, err)

	require.NoError(t, backend.Save(ctx, "old", sampleCart()))
	require.NoError(t, backend.Save(ctx, "fresh", sampleCart()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0644))

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old.json"), past, past))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "notes.txt"), past, past))

	n, err := backend.DeleteIdle(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	fresh, err := backend.Load(ctx, "fresh")
	require.NoError(t, err)
	assert.False(t, fresh.IsEmpty())
	assert.FileExists(t, filepath.Join(dir, "notes.txt"), "only cart files are swept")
}
