package tax_test

import (
	"context"
	"testing"

	"github.com/dukerupert/tiffin/internal/tax"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal, explanation ...string) {
	t.Helper()
	assert.True(t, d(expected).Equal(actual), "expected %s, got %s %v", expected, actual, explanation)
}

// Test_Compute_DeliveryInBase validates the taxable base with and without the delivery fee.
func Test_Compute_DeliveryInBase(t *testing.T) {
	tests := []struct {
		name        string
		subtotal    string
		fee         string
		include     bool
		expectedTax string
		explanation string
	}{
		{"no fee", "1000", "0", true, "50", "1000 * 0.05 = 50"},
		{"fee included", "1000", "80", true, "54", "(1000 + 80) * 0.05 = 54"},
		{"fee excluded", "1000", "80", false, "50", "pickup taxes the subtotal only"},
		{"surcharged delivery", "1000", "110", true, "55.5", "(1000 + 110) * 0.05 = 55.50"},
		{"rounds half up", "0.1", "0", true, "0.01", "0.1 * 0.05 = 0.005 rounds to 0.01"},
		{"rounds down", "0.08", "0", true, "0", "0.08 * 0.05 = 0.004 rounds to 0.00"},
		{"empty cart", "0", "0", true, "0", "nothing to tax"},
		{"fractional prices", "999.99", "30.01", true, "51.5", "1030.00 * 0.05 = 51.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tax.Compute(d(tt.subtotal), d(tt.fee), tt.include)
			assertDecimal(t, tt.expectedTax, got, tt.explanation)
		})
	}
}

func Test_Total(t *testing.T) {
	subtotal := d("1000")
	fee := d("110")
	taxAmount := tax.Compute(subtotal, fee, true)

	assertDecimal(t, "1165.5", tax.Total(subtotal, fee, taxAmount), "1000 + 110 + 55.50")
	assertDecimal(t, "1050", tax.Total(subtotal, decimal.Zero, tax.Compute(subtotal, decimal.Zero, false)))
}

// Test_PercentageCalculator_DefaultRate validates the calculator agrees with Compute.
func Test_PercentageCalculator_DefaultRate(t *testing.T) {
	calc := tax.NewDefaultCalculator()

	result, err := calc.CalculateTax(context.Background(), tax.TaxParams{
		Subtotal:        d("1000"),
		DeliveryFee:     d("80"),
		IncludeDelivery: true,
	})

	require.NoError(t, err)
	assertDecimal(t, "54", result.Total)
	require.Len(t, result.Breakdown, 1, "Should have exactly one breakdown entry")
	assert.Equal(t, "Sales Tax", result.Breakdown[0].Name)
	assertDecimal(t, "0.05", result.Breakdown[0].Rate)
	assertDecimal(t, "54", result.Breakdown[0].Amount)
}

// Test_PercentageCalculator_DifferentTaxRates validates calculation accuracy across various rates
func Test_PercentageCalculator_DifferentTaxRates(t *testing.T) {
	tests := []struct {
		name        string
		rate        float64
		subtotal    string
		fee         string
		expectedTax string
		explanation string
	}{
		{"zero percent rate", 0.0, "100", "5", "0", "(100 + 5) * 0.00 = 0"},
		{"eight percent rate", 0.08, "50", "10", "4.8", "(50 + 10) * 0.08 = 4.80"},
		{"fractional rate", 0.0725, "100", "0", "7.25", "100 * 0.0725 = 7.25"},
		{"rounding at the cent", 0.0825, "10.01", "0", "0.83", "10.01 * 0.0825 = 0.8258 rounds to 0.83"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc := tax.NewPercentageCalculator(tt.rate)
			result, err := calc.CalculateTax(context.Background(), tax.TaxParams{
				Subtotal:        d(tt.subtotal),
				DeliveryFee:     d(tt.fee),
				IncludeDelivery: true,
			})

			require.NoError(t, err)
			assertDecimal(t, tt.expectedTax, result.Total, tt.explanation)
		})
	}
}

func Test_PercentageCalculator_RejectsNegativeAmounts(t *testing.T) {
	calc := tax.NewDefaultCalculator()

	_, err := calc.CalculateTax(context.Background(), tax.TaxParams{Subtotal: d("-1")})
	assert.ErrorIs(t, err, tax.ErrNegativeAmount)

	_, err = calc.CalculateTax(context.Background(), tax.TaxParams{Subtotal: d("1"), DeliveryFee: d("-80")})
	assert.ErrorIs(t, err, tax.ErrNegativeAmount)
}

func Test_TaxParams_TaxableBase(t *testing.T) {
	p := tax.TaxParams{Subtotal: d("1000"), DeliveryFee: d("80")}
	assertDecimal(t, "1000", p.TaxableBase())

	p.IncludeDelivery = true
	assertDecimal(t, "1080", p.TaxableBase())
}

func TestNoTaxCalculator_CalculateTax_ReturnsZeroTax(t *testing.T) {
	calc := tax.NewNoTaxCalculator()

	result, err := calc.CalculateTax(context.Background(), tax.TaxParams{
		Subtotal:        d("1000"),
		DeliveryFee:     d("80"),
		IncludeDelivery: true,
	})

	require.NoError(t, err)
	assert.True(t, result.Total.IsZero())
	assert.Empty(t, result.Breakdown)
}

func TestMockCalculator_RecordsCalls(t *testing.T) {
	mock := tax.NewMockCalculator()
	params := tax.TaxParams{Subtotal: d("200")}

	result, err := mock.CalculateTax(context.Background(), params)
	require.NoError(t, err)
	assertDecimal(t, "10", result.Total)
	require.Len(t, mock.Calls, 1)
	assert.Equal(t, params, mock.Calls[0])

	mock.CalculateTaxFunc = func(ctx context.Context, params tax.TaxParams) (*tax.TaxResult, error) {
		return &tax.TaxResult{Total: d("1")}, nil
	}
	result, err = mock.CalculateTax(context.Background(), params)
	require.NoError(t, err)
	assertDecimal(t, "1", result.Total)
}

func TestValidateRate(t *testing.T) {
	assert.NoError(t, tax.ValidateRate(0))
	assert.NoError(t, tax.ValidateRate(0.05))
	assert.NoError(t, tax.ValidateRate(1))
	assert.Error(t, tax.ValidateRate(-0.01))
	assert.Error(t, tax.ValidateRate(1.5))
}

func TestSetRate(t *testing.T) {
	original := tax.Rate
	t.Cleanup(func() { tax.Rate = original })

	require.NoError(t, tax.SetRate(0.08))
	assertDecimal(t, "86.4", tax.Compute(d("1000"), d("80"), true))

	assert.Error(t, tax.SetRate(2))
	assertDecimal(t, "0.08", tax.Rate, "an invalid rate leaves the previous one")
}
