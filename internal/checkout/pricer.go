package checkout

import (
	"context"

	"github.com/dukerupert/tiffin/internal/delivery"
	"github.com/dukerupert/tiffin/internal/domain"
	"github.com/dukerupert/tiffin/internal/geo"
	"github.com/dukerupert/tiffin/internal/tax"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when no currency is configured.
const DefaultCurrency = "LKR"

// Pricer turns a cart and an order type into a priced OrderDraft.
type Pricer struct {
	Policy   delivery.Policy
	Tax      tax.Calculator
	Currency string
}

// NewPricer returns a pricer with the default delivery tiers, the 5% tax
// rate and LKR.
func NewPricer() Pricer {
	return Pricer{
		Policy:   delivery.DefaultPolicy(),
		Tax:      tax.NewDefaultCalculator(),
		Currency: DefaultCurrency,
	}
}

// Price computes subtotal, delivery fee, tax and total for c. For delivery
// the fee is quoted from the restaurant to addr; when the quote is out of
// range the fee is excluded from tax and total and DeliveryAvailable is
// false. Price does not reject an unpurchasable draft; callers decide.
func (p Pricer) Price(ctx context.Context, c domain.Cart, orderType domain.OrderType, addr *domain.Address) (domain.OrderDraft, error) {
	const op = "checkout.price"

	draft := domain.OrderDraft{
		Type:        orderType,
		Items:       c.Items,
		Currency:    p.currency(),
		Subtotal:    c.Subtotal(),
		DeliveryFee: decimal.Zero,
	}
	if c.Restaurant != nil {
		draft.RestaurantID = c.Restaurant.ID
	}

	if orderType == domain.OrderTypeDelivery {
		var from, to *geo.Coordinates
		baseFee := decimal.Zero
		if c.Restaurant != nil {
			from = c.Restaurant.Address.Coordinates
			baseFee = c.Restaurant.DeliveryFee
		}
		if addr != nil {
			a := *addr
			draft.DeliveryAddress = &a
			to = addr.Coordinates
		}

		quote := p.Policy.Quote(from, to, baseFee)
		draft.DistanceKm = quote.DistanceKm
		draft.DeliveryAvailable = quote.Available
		draft.DeliveryFee = quote.Charge()
	}

	calc := p.Tax
	if calc == nil {
		calc = tax.NewDefaultCalculator()
	}
	res, err := calc.CalculateTax(ctx, tax.TaxParams{
		Subtotal:        draft.Subtotal,
		DeliveryFee:     draft.DeliveryFee,
		IncludeDelivery: draft.DeliveryAvailable,
	})
	if err != nil {
		return domain.OrderDraft{}, domain.Internal(err, op, "")
	}

	draft.Tax = res.Total
	draft.Total = tax.Total(draft.Subtotal, draft.DeliveryFee, draft.Tax)
	return draft, nil
}

func (p Pricer) currency() string {
	if p.Currency == "" {
		return DefaultCurrency
	}
	return p.Currency
}
