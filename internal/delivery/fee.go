// Package delivery computes distance-tiered delivery fees.
package delivery

import (
	"math"

	"github.com/dukerupert/tiffin/internal/geo"
	"github.com/shopspring/decimal"
)

// ReasonOutOfRange marks a quote beyond the maximum service radius.
const ReasonOutOfRange = "OUT_OF_RANGE"

// Policy maps a delivery distance and a restaurant's base fee to a fee.
type Policy struct {
	// BaseRadiusKm is the radius served at the flat base fee.
	BaseRadiusKm float64

	// MaxRadiusKm is the farthest distance delivered to.
	MaxRadiusKm float64

	// SurchargePerKm is charged for every started kilometre beyond BaseRadiusKm.
	SurchargePerKm decimal.Decimal
}

// DefaultPolicy returns the production tiers: flat fee up to 5 km, 30 per
// started kilometre up to 20 km, unavailable beyond.
func DefaultPolicy() Policy {
	return Policy{
		BaseRadiusKm:   5,
		MaxRadiusKm:    20,
		SurchargePerKm: decimal.NewFromInt(30),
	}
}

// Result is the outcome of a fee calculation. When Available is false the
// fee must not be charged and Reason explains why.
type Result struct {
	Available  bool            `json:"available"`
	Fee        decimal.Decimal `json:"fee"`
	Reason     string          `json:"reason,omitempty"`
	DistanceKm *float64        `json:"distanceKm,omitempty"`
}

// Fee returns the delivery fee for distanceKm. A nil distance falls back to
// the base fee.
func (p Policy) Fee(distanceKm *float64, baseFee decimal.Decimal) Result {
	if distanceKm == nil {
		return Result{Available: true, Fee: baseFee}
	}

	d := *distanceKm
	res := Result{DistanceKm: &d}

	switch {
	case d > p.MaxRadiusKm:
		res.Reason = ReasonOutOfRange
		return res
	case d <= p.BaseRadiusKm:
		res.Available = true
		res.Fee = baseFee
		return res
	}

	units := decimal.NewFromFloat(math.Ceil(d - p.BaseRadiusKm))
	res.Available = true
	res.Fee = baseFee.Add(units.Mul(p.SurchargePerKm))
	return res
}

// Quote measures the distance between from and to and prices it. Missing or
// invalid coordinates are treated as an unknown distance.
func (p Policy) Quote(from, to *geo.Coordinates, baseFee decimal.Decimal) Result {
	if from == nil || to == nil || !from.Valid() || !to.Valid() {
		return p.Fee(nil, baseFee)
	}
	d := from.DistanceTo(*to)
	return p.Fee(&d, baseFee)
}

// Charge is the amount to add to an order: the fee when available, else zero.
func (r Result) Charge() decimal.Decimal {
	if !r.Available {
		return decimal.Zero
	}
	return r.Fee
}
