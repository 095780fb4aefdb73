// Package checkout turns a storefront cart into a payment provider preference.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoseSOto27/WNGL/common/api"
	"github.com/JoseSOto27/WNGL/common/pricing"
	"github.com/JoseSOto27/WNGL/common/store"
	"github.com/JoseSOto27/WNGL/payments/processor"
)

const (
	ShippingTitle = "Costo de Envío"
	DiscountTitle = "Descuento Wingool Points"

	defaultItemTitle = "Producto Wingool"
	defaultName      = "Cliente Wingool"
	defaultPhone     = "Sin teléfono"
	defaultAddress   = "Dirección no especificada"
)

// Request is the /create_preference body.
type Request struct {
	Items          []api.CartLine   `json:"items"`
	UserData       api.Customer     `json:"userData"`
	ShippingCost   *decimal.Decimal `json:"shippingCost,omitempty"`
	PointsRedeemed int              `json:"puntosUsados"`
}

// ValidationError is a checkout the client has to fix.
type ValidationError = pricing.ValidationError

// BalanceReader reads a customer's points balance.
type BalanceReader interface {
	GetPoints(ctx context.Context, customerID string) (int, error)
}

type Result struct {
	PreferenceID      string
	ExternalReference string
	Quote             pricing.Quote
}

type Builder struct {
	processor processor.PaymentProcessor
	balances  BalanceReader
	policy    processor.Policy
	logger    *slog.Logger
	now       func() time.Time
}

func NewBuilder(p processor.PaymentProcessor, balances BalanceReader, policy processor.Policy, logger *slog.Logger) *Builder {
	return &Builder{
		processor: p,
		balances:  balances,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

// Create validates and prices the request, then registers the preference with
// the provider. Nothing is persisted; a failed call leaves no trace.
func (b *Builder) Create(ctx context.Context, req Request) (*Result, error) {
	pref, quote, err := b.Build(ctx, req)
	if err != nil {
		return nil, err
	}

	id, err := b.processor.CreatePreference(ctx, pref)
	if err != nil {
		return nil, err
	}

	b.logger.Info("preference created",
		slog.String("preference_id", id),
		slog.String("reference", pref.ExternalReference),
		slog.String("total", quote.Total.StringFixed(2)),
		slog.Int("points_redeemed", quote.DiscountPoints()),
	)

	return &Result{PreferenceID: id, ExternalReference: pref.ExternalReference, Quote: quote}, nil
}

// Build produces the provider request without calling the provider.
func (b *Builder) Build(ctx context.Context, req Request) (*processor.Preference, pricing.Quote, error) {
	lines, shipping, err := pricing.Normalize(req.Items, req.ShippingCost, req.PointsRedeemed)
	if err != nil {
		return nil, pricing.Quote{}, err
	}

	customer := req.UserData
	balance, err := b.balance(ctx, customer.ID, req.PointsRedeemed)
	if err != nil {
		return nil, pricing.Quote{}, err
	}
	quote := pricing.Price(lines, shipping, req.PointsRedeemed, balance)

	ref := api.Reference(api.ReferenceCard, b.now(), customer.ID)

	meta := Metadata{
		CustomerID:     customer.ID,
		CustomerName:   orDefault(customer.Name, defaultName),
		CustomerPhone:  orDefault(customer.Phone, defaultPhone),
		Address:        orDefault(customer.Address, defaultAddress),
		Cart:           lines,
		PointsRedeemed: quote.DiscountPoints(),
		Shipping:       quote.Shipping,
		Reference:      ref,
	}
	metaMap, err := meta.Map()
	if err != nil {
		return nil, pricing.Quote{}, err
	}

	return &processor.Preference{
		Items:             items(lines, quote),
		ExternalReference: ref,
		Metadata:          metaMap,
		Policy:            b.policy,
	}, quote, nil
}

// balance returns the balance the discount is clamped against. Anonymous
// customers have none. Without a reader the requested amount is trusted.
func (b *Builder) balance(ctx context.Context, customerID string, requested int) (int, error) {
	if requested <= 0 || customerID == "" {
		return 0, nil
	}
	if b.balances == nil {
		return requested, nil
	}

	points, err := b.balances.GetPoints(ctx, customerID)
	if errors.Is(err, store.ErrProfileNotFound) {
		b.logger.Warn("points requested without a profile", slog.String("customer_id", customerID))
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read points balance: %w", err)
	}
	return points, nil
}

func items(lines []api.CartLine, q pricing.Quote) []processor.Item {
	out := make([]processor.Item, 0, len(lines)+2)
	for _, l := range lines {
		out = append(out, processor.Item{
			Title:     orDefault(l.Name, defaultItemTitle),
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		})
	}

	if q.Shipping.IsPositive() {
		out = append(out, processor.Item{Title: ShippingTitle, UnitPrice: q.Shipping, Quantity: 1})
	}
	if q.Discount.IsPositive() {
		out = append(out, processor.Item{Title: DiscountTitle, UnitPrice: q.Discount.Neg(), Quantity: 1})
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
