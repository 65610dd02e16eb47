package address

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/dukerupert/tiffin/internal/api"
	"github.com/dukerupert/tiffin/internal/geo"
)

// NominatimGeocoder reverse-geocodes through a Nominatim-compatible
// /reverse endpoint.
type NominatimGeocoder struct {
	client *api.Client
}

var _ Geocoder = (*NominatimGeocoder)(nil)

// NewNominatimGeocoder creates a geocoder. The client's base URL points at
// the Nominatim server.
func NewNominatimGeocoder(client *api.Client) *NominatimGeocoder {
	return &NominatimGeocoder{client: client}
}

type nominatimResponse struct {
	Address struct {
		HouseNumber string `json:"house_number"`
		Road        string `json:"road"`
		Suburb      string `json:"suburb"`
		City        string `json:"city"`
		Town        string `json:"town"`
		Village     string `json:"village"`
		State       string `json:"state"`
		Province    string `json:"province"`
	} `json:"address"`
}

// Reverse implements Geocoder.
func (g *NominatimGeocoder) Reverse(ctx context.Context, c geo.Coordinates) (*Place, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(c.Lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(c.Lng, 'f', 6, 64))

	var resp nominatimResponse
	if err := g.client.Get(ctx, "/reverse?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("reverse geocode: %w", err)
	}

	a := resp.Address
	return &Place{
		Street: strings.TrimSpace(strings.Join(nonEmpty(a.HouseNumber, a.Road), " ")),
		City:   firstNonEmpty(a.City, a.Town, a.Village, a.Suburb),
		State:  firstNonEmpty(a.State, a.Province),
	}, nil
}

func nonEmpty(values ...string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
