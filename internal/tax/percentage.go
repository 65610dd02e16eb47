package tax

import (
	"context"

	"github.com/shopspring/decimal"
)

// PercentageCalculator calculates tax using a single percentage rate.
type PercentageCalculator struct {
	rate decimal.Decimal // e.g., 0.05 for 5%
}

// NewPercentageCalculator creates a new percentage-based tax calculator.
func NewPercentageCalculator(rate float64) Calculator {
	return &PercentageCalculator{rate: decimal.NewFromFloat(rate)}
}

// NewDefaultCalculator returns a calculator using the package Rate.
func NewDefaultCalculator() Calculator {
	return &PercentageCalculator{rate: Rate}
}

// CalculateTax computes tax on the taxable base using the configured rate.
func (c *PercentageCalculator) CalculateTax(ctx context.Context, params TaxParams) (*TaxResult, error) {
	if params.Subtotal.IsNegative() || params.DeliveryFee.IsNegative() {
		return nil, ErrNegativeAmount
	}

	amount := computeAt(c.rate, params.Subtotal, params.DeliveryFee, params.IncludeDelivery)

	return &TaxResult{
		Total: amount,
		Breakdown: []TaxBreakdown{
			{
				Name:   "Sales Tax",
				Rate:   c.rate,
				Amount: amount,
			},
		},
	}, nil
}
