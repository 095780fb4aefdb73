package main

import (
	"context"

	"github.com/JoseSOto27/WNGL/payments/checkout"
	"github.com/JoseSOto27/WNGL/payments/webhook"
)

// PaymentService defines the business logic interface
type PaymentService interface {
	CreatePreference(context.Context, checkout.Request) (*checkout.Result, error)
	// HandleNotification never fails; outcomes are logged and counted.
	HandleNotification(context.Context, webhook.Notification)
}
