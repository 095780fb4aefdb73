package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"github.com/shopspring/decimal"

	"github.com/JoseSOto27/WNGL/common/metrics"
)

// MercadoPago implements PaymentProcessor on the official SDK. Every call
// runs under its own timeout so a stalled provider cannot pin a request.
type MercadoPago struct {
	preferences preference.Client
	payments    payment.Client
	timeout     time.Duration
	metrics     *metrics.PaymentMetrics
}

// NewMercadoPago builds the SDK clients from an access token. m may be nil.
func NewMercadoPago(accessToken string, timeout time.Duration, m *metrics.PaymentMetrics) (*MercadoPago, error) {
	if accessToken == "" {
		return nil, errors.New("mercadopago access token is empty")
	}

	cfg, err := config.New(accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to configure mercadopago: %w", err)
	}

	return &MercadoPago{
		preferences: preference.NewClient(cfg),
		payments:    payment.NewClient(cfg),
		timeout:     timeout,
		metrics:     m,
	}, nil
}

func (mp *MercadoPago) CreatePreference(ctx context.Context, p *Preference) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, mp.timeout)
	defer cancel()

	start := time.Now()
	res, err := mp.preferences.Create(ctx, preferenceRequest(p))
	mp.observe("create_preference", err, start)
	if err != nil {
		return "", &GatewayError{Op: "create preference", Err: err}
	}
	if res.ID == "" {
		return "", &GatewayError{Op: "create preference", Err: errors.New("empty preference id")}
	}

	return res.ID, nil
}

func (mp *MercadoPago) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	id, err := strconv.Atoi(paymentID)
	if err != nil {
		return nil, &GatewayError{Op: "get payment", Err: fmt.Errorf("invalid payment id %q", paymentID)}
	}

	ctx, cancel := context.WithTimeout(ctx, mp.timeout)
	defer cancel()

	start := time.Now()
	res, err := mp.payments.Get(ctx, id)
	mp.observe("get_payment", err, start)
	if err != nil {
		return nil, &GatewayError{Op: "get payment", Err: err}
	}

	return &Payment{
		ID:                strconv.Itoa(res.ID),
		Status:            res.Status,
		TransactionAmount: decimal.NewFromFloat(res.TransactionAmount),
		ExternalReference: res.ExternalReference,
		Metadata:          res.Metadata,
	}, nil
}

func (mp *MercadoPago) observe(op string, err error, start time.Time) {
	if mp.metrics != nil {
		mp.metrics.ObserveGateway(op, err, time.Since(start))
	}
}

func preferenceRequest(p *Preference) preference.Request {
	items := make([]preference.ItemRequest, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, preference.ItemRequest{
			Title:      it.Title,
			UnitPrice:  it.UnitPrice.InexactFloat64(),
			Quantity:   it.Quantity,
			CurrencyID: p.Policy.CurrencyID,
		})
	}

	excluded := make([]preference.ExcludedPaymentTypeRequest, 0, len(p.Policy.ExcludedPaymentTypes))
	for _, t := range p.Policy.ExcludedPaymentTypes {
		excluded = append(excluded, preference.ExcludedPaymentTypeRequest{ID: t})
	}

	return preference.Request{
		Items:             items,
		ExternalReference: p.ExternalReference,
		Metadata:          p.Metadata,
		PaymentMethods: &preference.PaymentMethodsRequest{
			ExcludedPaymentTypes: excluded,
			Installments:         p.Policy.Installments,
		},
		BackURLs: &preference.BackURLsRequest{
			Success: p.Policy.SuccessURL,
			Failure: p.Policy.FailureURL,
			Pending: p.Policy.PendingURL,
		},
		AutoReturn:      p.Policy.AutoReturn,
		NotificationURL: p.Policy.NotificationURL,
	}
}
