package address_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/tiffin/internal/address"
	"github.com/dukerupert/tiffin/internal/api"
	"github.com/dukerupert/tiffin/internal/domain"
	"github.com/dukerupert/tiffin/internal/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var colombo = &geo.Coordinates{Lat: 6.9271, Lng: 79.8612}

func TestValidate(t *testing.T) {
	assert.NoError(t, address.Validate(domain.Address{Coordinates: colombo}))

	err := address.Validate(domain.Address{Street: "1 Galle Rd"})
	assert.True(t, domain.IsValidationError(err))

	err = address.Validate(domain.Address{Coordinates: &geo.Coordinates{Lat: 91}})
	assert.ErrorIs(t, err, domain.ErrInvalidCoordinates)
}

func TestComplete_FillsBlankFields(t *testing.T) {
	g := address.NewMockGeocoder()
	g.ReverseFunc = func(ctx context.Context, c geo.Coordinates) (*address.Place, error) {
		return &address.Place{Street: "Galle Road", City: "Colombo", State: "Western Province"}, nil
	}

	got := address.Complete(context.Background(), g, domain.Address{Street: "42 Flower Rd", Coordinates: colombo}, nil)

	assert.Equal(t, "42 Flower Rd", got.Street, "user input is kept")
	assert.Equal(t, "Colombo", got.City)
	assert.Equal(t, "Western Province", got.State)
}

func TestComplete_FailureLeavesFieldsBlank(t *testing.T) {
	g := address.NewMockGeocoder()
	g.ReverseFunc = func(ctx context.Context, c geo.Coordinates) (*address.Place, error) {
		return nil, errors.New("quota exceeded")
	}
	in := domain.Address{Coordinates: colombo}

	got := address.Complete(context.Background(), g, in, nil)

	assert.Equal(t, in, got)
	assert.Equal(t, 1, g.Calls)
}

func TestComplete_SkipsLookup(t *testing.T) {
	g := address.NewMockGeocoder()

	full := domain.Address{Street: "a", City: "b", State: "c", Coordinates: colombo}
	assert.Equal(t, full, address.Complete(context.Background(), g, full, nil))
	assert.Equal(t, domain.Address{}, address.Complete(context.Background(), g, domain.Address{}, nil))
	assert.Zero(t, g.Calls)

	assert.NotPanics(t, func() {
		address.Complete(context.Background(), nil, domain.Address{Coordinates: colombo}, nil)
	})
}

func TestNominatimGeocoder_Reverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		assert.Equal(t, "6.927100", r.URL.Query().Get("lat"))
		assert.Equal(t, "79.861200", r.URL.Query().Get("lon"))

		_, _ = w.Write([]byte(`{"address": {"house_number": "42", "road": "Galle Road", "town": "Dehiwala", "state": "Western Province"}}`))
	}))
	t.Cleanup(srv.Close)

	g := address.NewNominatimGeocoder(api.New(api.Config{BaseURL: srv.URL}))
	place, err := g.Reverse(context.Background(), *colombo)

	require.NoError(t, err)
	assert.Equal(t, "42 Galle Road", place.Street)
	assert.Equal(t, "Dehiwala", place.City)
	assert.Equal(t, "Western Province", place.State)
}

func TestNominatimGeocoder_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	g := address.NewNominatimGeocoder(api.New(api.Config{BaseURL: srv.URL}))
	_, err := g.Reverse(context.Background(), *colombo)

	assert.Equal(t, domain.ERATELIMIT, domain.ErrorCode(err))
}
