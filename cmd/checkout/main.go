// Command checkout runs one checkout against the backend: it loads the
// signed-in customer's cart, prices it for the given address and places the
// order.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/dukerupert/tiffin/internal"
	"github.com/dukerupert/tiffin/internal/bootstrap"
	"github.com/dukerupert/tiffin/internal/cart"
	"github.com/dukerupert/tiffin/internal/checkout"
	"github.com/dukerupert/tiffin/internal/domain"
	"github.com/dukerupert/tiffin/internal/geo"
	"github.com/dukerupert/tiffin/internal/order"
	"github.com/dukerupert/tiffin/internal/tax"
)

type options struct {
	token      string
	orderType  string
	payment    string
	street     string
	city       string
	state      string
	lat, lng   float64
	reviewOnly bool
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.token, "token", "", "bearer token of the signed-in customer (defaults to API_TOKEN)")
	flag.StringVar(&o.orderType, "type", "delivery", "order type: delivery or pickup")
	flag.StringVar(&o.payment, "payment", "cash", "payment method: card or cash")
	flag.StringVar(&o.street, "street", "", "delivery street")
	flag.StringVar(&o.city, "city", "", "delivery city")
	flag.StringVar(&o.state, "state", "", "delivery state or province")
	flag.Float64Var(&o.lat, "lat", 0, "delivery latitude")
	flag.Float64Var(&o.lng, "lng", 0, "delivery longitude")
	flag.BoolVar(&o.reviewOnly, "review", false, "print the order summary without placing the order")
	flag.Parse()
	return o
}

func run() error {
	opts := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}
	logger := internal.NewLogger(os.Stderr, cfg.Env, cfg.LogLevel)

	if err := tax.SetRate(cfg.Pricing.TaxRate); err != nil {
		return fmt.Errorf("invalid tax rate: %w", err)
	}

	orderType, err := domain.ParseOrderType(opts.orderType)
	if err != nil {
		return err
	}
	method, err := domain.ParsePaymentMethod(opts.payment)
	if err != nil {
		return err
	}

	client := bootstrap.NewAPIClient(cfg, opts.token, logger)

	local, err := cart.NewLocalStore(cart.NewMemoryBackend(), "cli")
	if err != nil {
		return err
	}
	manager := cart.NewManager(cart.ManagerConfig{
		Local:       local,
		Remote:      cart.NewRemoteStore(client),
		LoginPolicy: cfg.Cart.LoginPolicy,
		Logger:      logger,
	})
	if err := manager.SetAuthenticated(ctx, true); err != nil {
		return fmt.Errorf("failed to load cart: %w", err)
	}

	payments, err := bootstrap.NewPaymentProvider(cfg, client, logger)
	if err != nil {
		return err
	}
	publisher, closePublisher, err := bootstrap.NewPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	pricer := bootstrap.NewPricer(cfg)
	flow := checkout.New(checkout.Config{
		Cart:     manager,
		Orders:   order.NewClient(client),
		Payments: payments,
		Geocoder: bootstrap.NewGeocoder(cfg, logger),
		Events:   publisher,
		Pricer:   &pricer,
		Logger:   logger,
	})

	if orderType == domain.OrderTypeDelivery {
		addr := domain.Address{
			Street:      opts.street,
			City:        opts.city,
			State:       opts.state,
			Coordinates: &geo.Coordinates{Lat: opts.lat, Lng: opts.lng},
		}
		if err := flow.SelectAddress(ctx, addr); err != nil {
			return err
		}
	}
	if err := flow.SelectOrderType(orderType); err != nil {
		return err
	}

	draft, err := flow.Review(ctx)
	if err != nil {
		if blocked := flow.Draft(); blocked != nil {
			_ = printJSON(blocked)
		}
		return err
	}
	if opts.reviewOnly {
		return printJSON(draft)
	}

	res, err := flow.PlaceOrder(ctx, method)
	if err != nil {
		return fmt.Errorf("%s: %w", flow.FailureMessage(), err)
	}
	return printJSON(res)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
