package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/JoseSOto27/WNGL/common/metrics"
	"github.com/JoseSOto27/WNGL/payments/checkout"
	"github.com/JoseSOto27/WNGL/payments/processor"
	"github.com/JoseSOto27/WNGL/payments/reconcile"
	"github.com/JoseSOto27/WNGL/payments/webhook"
)

type service struct {
	builder *checkout.Builder
	engine  *reconcile.Engine
	logger  *slog.Logger
	metrics *metrics.PaymentMetrics
}

func NewService(builder *checkout.Builder, engine *reconcile.Engine, logger *slog.Logger, m *metrics.PaymentMetrics) *service {
	return &service{
		builder: builder,
		engine:  engine,
		logger:  logger,
		metrics: m,
	}
}

func (s *service) CreatePreference(ctx context.Context, req checkout.Request) (*checkout.Result, error) {
	res, err := s.builder.Create(ctx, req)
	if err != nil {
		s.metrics.CheckoutFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	s.metrics.PreferencesCreated.Inc()
	return res, nil
}

func (s *service) HandleNotification(ctx context.Context, n webhook.Notification) {
	s.metrics.WebhooksReceived.WithLabelValues(n.Kind.String()).Inc()

	switch n.Kind {
	case webhook.KindIgnored:
		s.logger.Debug("ignoring notification", slog.String("event", n.Event))
	case webhook.KindMissingID:
		s.logger.Warn("payment notification without id", slog.String("event", n.Event))
	case webhook.KindPayment:
		res := s.engine.Reconcile(ctx, n.PaymentID)
		s.logger.Info("notification processed",
			slog.String("event", n.Event),
			slog.String("payment_id", n.PaymentID),
			slog.String("outcome", string(res.Outcome)),
		)
	}
}

func failureReason(err error) string {
	var vErr *checkout.ValidationError
	var gwErr *processor.GatewayError
	switch {
	case errors.As(err, &vErr):
		return "validation"
	case errors.As(err, &gwErr):
		return "gateway"
	default:
		return "internal"
	}
}
