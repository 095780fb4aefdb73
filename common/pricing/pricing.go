// Package pricing computes cart totals and the loyalty points that go with them.
//
// One point is worth one peso of discount. Points are earned on the subtotal
// (products only, before shipping and before any points discount), both when
// the checkout estimate is shown and when a paid order is reconciled.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/JoseSOto27/WNGL/common/api"
)

const (
	// DefaultShipping is the flat delivery fee in MXN.
	DefaultShipping = 40
	// MinRedeemBalance is the balance a customer needs before points can be used.
	MinRedeemBalance = 50
)

// EarnRate is the share of the subtotal returned as points.
var EarnRate = decimal.RequireFromString("0.05")

type Quote struct {
	Subtotal     decimal.Decimal
	Shipping     decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
	PointsToEarn int
}

// DiscountPoints is the discount as a whole number of points.
func (q Quote) DiscountPoints() int {
	return int(q.Discount.IntPart())
}

// Subtotal sums unit price times quantity over all lines.
func Subtotal(lines []api.CartLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}

// Price quotes a cart. requested is the number of points the customer asked to
// redeem and balance is the customer's current balance as read from storage.
// The discount is zero below MinRedeemBalance and otherwise never exceeds the
// subtotal, the balance or the request.
func Price(lines []api.CartLine, shipping decimal.Decimal, requested, balance int) Quote {
	subtotal := Subtotal(lines)
	if shipping.IsNegative() {
		shipping = decimal.Zero
	}

	discount := decimal.Zero
	if requested > 0 && balance >= MinRedeemBalance {
		limit := min(requested, balance)
		discount = decimal.Min(subtotal.Floor(), decimal.NewFromInt(int64(limit)))
		if discount.IsNegative() {
			discount = decimal.Zero
		}
	}

	total := subtotal.Add(shipping).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Quote{
		Subtotal:     subtotal,
		Shipping:     shipping,
		Discount:     discount,
		Total:        total,
		PointsToEarn: PointsFor(subtotal),
	}
}

// PointsFor is floor(amount × EarnRate), never negative.
func PointsFor(amount decimal.Decimal) int {
	if !amount.IsPositive() {
		return 0
	}
	return int(amount.Mul(EarnRate).Floor().IntPart())
}

// EarnBase recovers the subtotal from a provider-confirmed amount: the
// provider charged subtotal + shipping − redeemed, so the subtotal is
// amount − shipping + redeemed. Clamped at zero.
func EarnBase(transactionAmount, shipping decimal.Decimal, redeemed int) decimal.Decimal {
	base := transactionAmount.Sub(shipping).Add(decimal.NewFromInt(int64(redeemed)))
	if base.IsNegative() {
		return decimal.Zero
	}
	return base
}

// SettleBalance is max(0, balance + earned − redeemed).
func SettleBalance(balance, earned, redeemed int) int {
	return max(0, balance+earned-redeemed)
}

// ValidationError is a cart the client has to fix.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Normalize checks a cart before pricing and returns a copy with missing
// quantities set to 1, extras de-duplicated and shipping defaulted when nil.
func Normalize(lines []api.CartLine, shipping *decimal.Decimal, requested int) ([]api.CartLine, decimal.Decimal, error) {
	if len(lines) == 0 {
		return nil, decimal.Zero, &ValidationError{Field: "items", Message: "cart is empty"}
	}
	if requested < 0 {
		return nil, decimal.Zero, &ValidationError{Field: "puntosUsados", Message: "must not be negative"}
	}

	ship := decimal.NewFromInt(DefaultShipping)
	if shipping != nil {
		if shipping.IsNegative() {
			return nil, decimal.Zero, &ValidationError{Field: "shippingCost", Message: "must not be negative"}
		}
		ship = *shipping
	}

	out := make([]api.CartLine, len(lines))
	for i, l := range lines {
		if l.UnitPrice.IsNegative() {
			return nil, decimal.Zero, &ValidationError{
				Field:   fmt.Sprintf("items[%d].precio", i),
				Message: "must not be negative",
			}
		}
		if l.Quantity < 0 {
			return nil, decimal.Zero, &ValidationError{
				Field:   fmt.Sprintf("items[%d].quantity", i),
				Message: "must be at least 1",
			}
		}
		if l.Quantity == 0 {
			l.Quantity = 1
		}
		out[i] = l
	}

	return api.DedupeExtras(out), ship, nil
}
