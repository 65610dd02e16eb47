package address

import (
	"context"
	"log/slog"

	"github.com/dukerupert/tiffin/internal/domain"
	"github.com/dukerupert/tiffin/internal/geo"
)

// Geocoder turns coordinates into a street address.
// Implementations can use external APIs like Nominatim, Google, Mapbox, etc.
type Geocoder interface {
	// Reverse looks up the address at c.
	Reverse(ctx context.Context, c geo.Coordinates) (*Place, error)
}

// Place is the result of a reverse lookup. Any field may be blank.
type Place struct {
	Street string
	City   string
	State  string
}

// Validate checks that a delivery address can be priced: coordinates must be
// present and in range. Text fields are optional.
func Validate(addr domain.Address) error {
	if addr.Coordinates == nil {
		return domain.NewValidationError("address.validate", "coordinates", "is required")
	}
	if !addr.Coordinates.Valid() {
		return domain.ErrInvalidCoordinates
	}
	return nil
}

// Complete fills blank text fields of addr from the geocoder. Lookup is
// best-effort: on failure addr is returned unchanged and the error is only
// logged.
func Complete(ctx context.Context, g Geocoder, addr domain.Address, logger *slog.Logger) domain.Address {
	if g == nil || !addr.NeedsGeocoding() || !addr.Coordinates.Valid() {
		return addr
	}
	if logger == nil {
		logger = slog.Default()
	}

	place, err := g.Reverse(ctx, *addr.Coordinates)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"lat", addr.Coordinates.Lat,
			"lng", addr.Coordinates.Lng,
			"error", err,
		)
		return addr
	}
	if place == nil {
		return addr
	}

	if addr.Street == "" {
		addr.Street = place.Street
	}
	if addr.City == "" {
		addr.City = place.City
	}
	if addr.State == "" {
		addr.State = place.State
	}
	return addr
}
