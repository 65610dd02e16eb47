package tax

import (
	"context"

	"github.com/shopspring/decimal"
)

// Rate is the tax rate applied to every order.
var Rate = decimal.RequireFromString("0.05")

// SetRate replaces Rate after validating it. Call it once at startup,
// before any pricing happens.
func SetRate(rate float64) error {
	if err := ValidateRate(rate); err != nil {
		return err
	}
	Rate = decimal.NewFromFloat(rate)
	return nil
}

// Compute returns the tax on subtotal, optionally including the delivery fee
// in the taxable base, rounded to the cent.
func Compute(subtotal, deliveryFee decimal.Decimal, includeDeliveryInBase bool) decimal.Decimal {
	return computeAt(Rate, subtotal, deliveryFee, includeDeliveryInBase)
}

// Total returns subtotal + deliveryFee + tax rounded to the cent.
func Total(subtotal, deliveryFee, tax decimal.Decimal) decimal.Decimal {
	return Round2(subtotal.Add(deliveryFee).Add(tax))
}

// Round2 rounds half-up on the cent boundary. Amounts are never negative.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func computeAt(rate, subtotal, deliveryFee decimal.Decimal, includeDeliveryInBase bool) decimal.Decimal {
	base := subtotal
	if includeDeliveryInBase {
		base = base.Add(deliveryFee)
	}
	return Round2(base.Mul(rate))
}

// Calculator defines the interface for tax calculation.
// Implementations: PercentageCalculator, NoTaxCalculator, MockCalculator
type Calculator interface {
	// CalculateTax computes tax for an order's subtotal and delivery fee.
	CalculateTax(ctx context.Context, params TaxParams) (*TaxResult, error)
}

// TaxParams contains all information needed for tax calculation.
type TaxParams struct {
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal

	// IncludeDelivery adds the delivery fee to the taxable base.
	// False for pickup orders and for unavailable delivery quotes.
	IncludeDelivery bool
}

// TaxableBase returns the amount the rate applies to.
func (p TaxParams) TaxableBase() decimal.Decimal {
	if p.IncludeDelivery {
		return p.Subtotal.Add(p.DeliveryFee)
	}
	return p.Subtotal
}

// TaxResult contains the calculated tax amount and breakdown.
type TaxResult struct {
	Total     decimal.Decimal
	Breakdown []TaxBreakdown
}

// TaxBreakdown represents tax for a single levy.
type TaxBreakdown struct {
	Name   string          // e.g., "Sales Tax"
	Rate   decimal.Decimal // e.g., 0.05 for 5%
	Amount decimal.Decimal
}
