// Package processor is the boundary to the payment provider. The rest of the
// payments service only sees PaymentProcessor, so tests swap in a fake.
package processor

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// StatusApproved is the only payment status that creates an order.
const StatusApproved = "approved"

type PaymentProcessor interface {
	// CreatePreference registers a checkout with the provider and returns the
	// preference id the storefront opens the hosted checkout with.
	CreatePreference(ctx context.Context, p *Preference) (string, error)
	// GetPayment fetches the authoritative state of a payment.
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
}

type Item struct {
	Title     string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Policy is the static part of every preference.
type Policy struct {
	CurrencyID           string
	ExcludedPaymentTypes []string
	Installments         int
	SuccessURL           string
	FailureURL           string
	PendingURL           string
	AutoReturn           string
	NotificationURL      string
}

type Preference struct {
	Items             []Item
	ExternalReference string
	Metadata          map[string]any
	Policy            Policy
}

// Payment is what the provider reports for a payment id. Metadata echoes the
// preference metadata; numbers in it may come back as float64.
type Payment struct {
	ID                string
	Status            string
	TransactionAmount decimal.Decimal
	ExternalReference string
	Metadata          map[string]any
}

func (p *Payment) Approved() bool {
	return p.Status == StatusApproved
}

// GatewayError wraps every failure talking to the provider, including timeouts
// and ids the provider cannot resolve.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
