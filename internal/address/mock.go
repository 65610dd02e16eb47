package address

import (
	"context"

	"github.com/dukerupert/tiffin/internal/geo"
)

// MockGeocoder is a test implementation of Geocoder.
type MockGeocoder struct {
	ReverseFunc func(ctx context.Context, c geo.Coordinates) (*Place, error)

	// Calls counts Reverse invocations.
	Calls int
}

// NewMockGeocoder creates a new mock geocoder for testing.
func NewMockGeocoder() *MockGeocoder {
	return &MockGeocoder{}
}

// Reverse delegates to the configured function or returns an empty place.
func (m *MockGeocoder) Reverse(ctx context.Context, c geo.Coordinates) (*Place, error) {
	m.Calls++
	if m.ReverseFunc != nil {
		return m.ReverseFunc(ctx, c)
	}
	return &Place{}, nil
}
