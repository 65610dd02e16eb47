package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dukerupert/tiffin/internal/domain"
)

// FileBackend stores each cart as a JSON file named after its key.
type FileBackend struct {
	basePath string
}

var (
	_ Backend = (*FileBackend)(nil)
	_ Sweeper = (*FileBackend)(nil)
)

// NewFileBackend creates a file backend rooted at basePath (created if it
// doesn't exist).
func NewFileBackend(basePath string) (*FileBackend, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cart directory: %w", err)
	}
	return &FileBackend{basePath: basePath}, nil
}

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.basePath, key+".json")
}

// Load implements Backend.
func (b *FileBackend) Load(ctx context.Context, key string) (domain.Cart, error) {
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Cart{}, nil
		}
		return domain.Cart{}, fmt.Errorf("failed to read cart file: %w", err)
	}

	var c domain.Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.Cart{}, fmt.Errorf("failed to decode cart file: %w", err)
	}
	return c, nil
}

// Save implements Backend. The file is replaced atomically.
func (b *FileBackend) Save(ctx context.Context, key string, c domain.Cart) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}

	tmp, err := os.CreateTemp(b.basePath, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cart file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cart file: %w", err)
	}

	if err := os.Rename(tmp.Name(), b.path(key)); err != nil {
		return fmt.Errorf("failed to replace cart file: %w", err)
	}
	return nil
}

// Delete implements Backend.
func (b *FileBackend) Delete(ctx context.Context, key string) error {
	err := os.Remove(b.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cart file: %w", err)
	}
	return nil
}

// DeleteIdle implements Sweeper using file modification times.
func (b *FileBackend) DeleteIdle(ctx context.Context, before time.Time) (int64, error) {
	entries, err := os.ReadDir(b.basePath)
	if err != nil {
		return 0, fmt.Errorf("failed to list cart directory: %w", err)
	}

	var n int64
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return n, fmt.Errorf("failed to stat cart file: %w", err)
		}
		if !info.ModTime().Before(before) {
			continue
		}
		if err := os.Remove(filepath.Join(b.basePath, entry.Name())); err != nil && !os.IsNotExist(err) {
			return n, fmt.Errorf("failed to delete cart file: %w", err)
		}
		n++
	}
	return n, nil
}
