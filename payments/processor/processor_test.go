package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreferenceRequestMapping(t *testing.T) {
	p := &Preference{
		Items: []Item{
			{Title: "Alitas", UnitPrice: decimal.RequireFromString("89.50"), Quantity: 2},
			{Title: "Descuento Wingool Points", UnitPrice: decimal.NewFromInt(-30), Quantity: 1},
		},
		ExternalReference: "ORDER-1-c1",
		Metadata:          map[string]any{"user_id": "c1"},
		Policy: Policy{
			CurrencyID:           "MXN",
			ExcludedPaymentTypes: []string{"ticket", "atm"},
			Installments:         12,
			SuccessURL:           "https://shop/ok",
			FailureURL:           "https://shop/cart",
			AutoReturn:           "approved",
			NotificationURL:      "https://api/webhook",
		},
	}

	req := preferenceRequest(p)

	require.Len(t, req.Items, 2)
	assert.Equal(t, "Alitas", req.Items[0].Title)
	assert.Equal(t, 89.5, req.Items[0].UnitPrice)
	assert.Equal(t, 2, req.Items[0].Quantity)
	assert.Equal(t, "MXN", req.Items[0].CurrencyID)
	assert.Equal(t, -30.0, req.Items[1].UnitPrice)

	assert.Equal(t, "ORDER-1-c1", req.ExternalReference)
	assert.Equal(t, "c1", req.Metadata["user_id"])
	require.NotNil(t, req.PaymentMethods)
	assert.Equal(t, 12, req.PaymentMethods.Installments)
	require.Len(t, req.PaymentMethods.ExcludedPaymentTypes, 2)
	assert.Equal(t, "atm", req.PaymentMethods.ExcludedPaymentTypes[1].ID)
	require.NotNil(t, req.BackURLs)
	assert.Equal(t, "https://shop/cart", req.BackURLs.Failure)
	assert.Equal(t, "approved", req.AutoReturn)
	assert.Equal(t, "https://api/webhook", req.NotificationURL)
}

func TestNewMercadoPagoRequiresToken(t *testing.T) {
	_, err := NewMercadoPago("", time.Second, nil)
	assert.Error(t, err)
}

func TestGetPaymentRejectsNonNumericID(t *testing.T) {
	mp, err := NewMercadoPago("TEST-token", time.Second, nil)
	require.NoError(t, err)

	_, err = mp.GetPayment(context.Background(), "abc")

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, "get payment", gwErr.Op)
}

func TestGatewayErrorUnwrap(t *testing.T) {
	err := &GatewayError{Op: "get payment", Err: context.DeadlineExceeded}
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "get payment")
}
