package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/JoseSOto27/WNGL/common/api"
	"github.com/JoseSOto27/WNGL/common/broker"
	"github.com/JoseSOto27/WNGL/common/metrics"
)

// StatsInvalidator drops the cached dashboard.
type StatsInvalidator interface {
	InvalidateStats(context.Context)
}

// consumer follows order.paid so the dashboard reflects card payments the
// payments service recorded.
type consumer struct {
	ch      broker.Channel
	stats   StatsInvalidator
	logger  *slog.Logger
	metrics *metrics.OrderMetrics
	tracer  trace.Tracer
}

// NewConsumer builds the order.paid consumer. ch republishes retries; stats may
// be nil when no cache is configured.
func NewConsumer(ch broker.Channel, stats StatsInvalidator, logger *slog.Logger, m *metrics.OrderMetrics) *consumer {
	return &consumer{
		ch:      ch,
		stats:   stats,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("orders"),
	}
}

// Listen declares and binds the order.paid queue and handles deliveries until
// ctx is done or the channel closes.
func (c *consumer) Listen(ctx context.Context, ch *amqp.Channel) error {
	q, err := ch.QueueDeclare(
		broker.OrderPaidEvent,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		broker.QueueArgs(),
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", broker.OrderPaidEvent, err)
	}

	if err := ch.QueueBind(q.Name, "", broker.OrderPaidEvent, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", q.Name, err)
	}

	// auto-ack off: every delivery is acked, retried or dead-lettered by handle.
	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.Name, err)
	}

	c.logger.Info("order.paid consumer started", slog.String("queue", q.Name))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("order.paid delivery channel closed")
			}
			c.handle(d)
		}
	}
}

func (c *consumer) handle(d amqp.Delivery) {
	ctx := broker.ExtractTraceContext(context.Background(), d.Headers)
	ctx, span := c.tracer.Start(ctx, "AMQP - consume - "+broker.OrderPaidEvent)
	defer span.End()

	var ev api.OrderEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		span.SetStatus(codes.Error, "malformed event")
		c.retry(&d, fmt.Errorf("unmarshal order event: %w", err))
		return
	}
	if ev.Reference == "" {
		span.SetStatus(codes.Error, "event without reference")
		c.retry(&d, errors.New("order event without reference"))
		return
	}

	span.SetAttributes(
		attribute.String("order.reference", ev.Reference),
		attribute.Int64("order.id", ev.OrderID),
	)

	if c.stats != nil {
		c.stats.InvalidateStats(ctx)
	}

	if err := d.Ack(false); err != nil {
		c.logger.Error("failed to ack delivery", slog.Any("error", err))
	}
	c.metrics.EventsConsumed.WithLabelValues(broker.OrderPaidEvent, "ok").Inc()

	c.logger.Info("order paid",
		slog.String("reference", ev.Reference),
		slog.Int64("order_id", ev.OrderID),
		slog.String("total", ev.Total.StringFixed(2)),
		slog.Int("points_earned", ev.PointsEarned),
	)
}

// retry republishes the delivery with a bumped retry count and acks the
// original, or leaves it nacked for the DLQ once the retries are spent.
func (c *consumer) retry(d *amqp.Delivery, cause error) {
	c.logger.Error("failed to handle order.paid", slog.Any("error", cause))

	err := broker.HandleRetry(c.ch, d, c.logger)
	count, _ := d.Headers["x-retry-count"].(int64)
	if count >= broker.MaxRetryCount {
		c.metrics.EventsConsumed.WithLabelValues(broker.OrderPaidEvent, "dead_letter").Inc()
		if err != nil {
			c.logger.Error("failed to dead-letter delivery", slog.Any("error", err))
		}
		return
	}

	if err != nil {
		c.logger.Error("failed to republish delivery, dead-lettering", slog.Any("error", err))
		d.Nack(false, false)
		c.metrics.EventsConsumed.WithLabelValues(broker.OrderPaidEvent, "dead_letter").Inc()
		return
	}

	if err := d.Ack(false); err != nil {
		c.logger.Error("failed to ack retried delivery", slog.Any("error", err))
	}
	c.metrics.EventsConsumed.WithLabelValues(broker.OrderPaidEvent, "retry").Inc()
}
