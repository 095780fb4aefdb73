package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Event names. Each one is a durable direct exchange with a queue of the same
// name and a "<name>.dlq" dead-letter queue.
const (
	OrderCreatedEvent = "order.created" // orders: cash order placed
	OrderPaidEvent    = "order.paid"    // payments: webhook recorded an approved payment
)

// MaxRetryCount is how many redeliveries a message gets before it is routed to its DLQ.
const MaxRetryCount = 3

// DLX routes failed messages to the queue-specific DLQs.
const DLX = "dlx"

// RetryDelay is multiplied by the retry count before republishing.
var RetryDelay = time.Second

var events = []string{OrderCreatedEvent, OrderPaidEvent}

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Connect dials RabbitMQ, declares exchanges and DLQs, and returns the channel
// plus a close func that shuts channel and connection in order.
func Connect(user, pass, host, port string, logger *slog.Logger) (*amqp.Channel, func() error, error) {
	address := fmt.Sprintf("amqp://%s:%s@%s:%s/", user, pass, host, port)

	conn, err := amqp.Dial(address)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := createDLQAndDLX(ch, logger); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to create DLQ: %w", err)
	}

	if err := createExchanges(ch, logger); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to create exchanges: %w", err)
	}

	close := func() error {
		if err := ch.Close(); err != nil {
			return err
		}
		return conn.Close()
	}

	return ch, close, nil
}

// Publisher publishes JSON events with trace context in the headers.
type Publisher struct {
	ch Channel
}

func NewPublisher(ch Channel) *Publisher {
	return &Publisher{ch: ch}
}

// Publish marshals v and sends it, persistent, to the exchange named after the event.
func (p *Publisher) Publish(ctx context.Context, event string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}

	err = p.ch.PublishWithContext(ctx, event, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		Headers:      InjectTraceContext(ctx),
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

// HandleRetry republishes a failed delivery with an incremented x-retry-count
// header, or nacks it (requeue=false) once MaxRetryCount is reached so the
// queue's dead-letter exchange moves it to "<queue>.dlq".
func HandleRetry(ch Channel, d *amqp.Delivery, logger *slog.Logger) error {
	if d.Headers == nil {
		d.Headers = amqp.Table{}
	}

	retryCount, ok := d.Headers["x-retry-count"].(int64)
	if !ok {
		retryCount = 0
	}
	retryCount++
	d.Headers["x-retry-count"] = retryCount

	if retryCount >= MaxRetryCount {
		logger.Warn("max retries reached, dead-lettering",
			slog.String("exchange", d.Exchange),
			slog.String("dlq", d.RoutingKey+".dlq"),
			slog.Int64("retry_count", retryCount),
		)
		return d.Nack(false, false)
	}

	logger.Info("retrying message", slog.String("exchange", d.Exchange), slog.Int64("retry_count", retryCount))

	time.Sleep(RetryDelay * time.Duration(retryCount))

	return ch.PublishWithContext(
		context.Background(),
		d.Exchange,
		d.RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Headers:      d.Headers,
			Body:         d.Body,
			DeliveryMode: amqp.Persistent,
		},
	)
}

// QueueArgs are the declare arguments every consumer queue uses.
func QueueArgs() amqp.Table {
	return amqp.Table{"x-dead-letter-exchange": DLX}
}

func createDLQAndDLX(ch *amqp.Channel, logger *slog.Logger) error {
	err := ch.ExchangeDeclare(DLX, "direct", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare DLX exchange: %w", err)
	}

	for _, event := range events {
		dlq := event + ".dlq"
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare DLQ %s: %w", dlq, err)
		}

		// Dead-lettered messages keep their original routing key, the queue name.
		if err := ch.QueueBind(dlq, event, DLX, false, nil); err != nil {
			return fmt.Errorf("failed to bind DLQ %s to DLX: %w", dlq, err)
		}
		logger.Debug("dlq bound", slog.String("queue", dlq), slog.String("exchange", DLX), slog.String("routing_key", event))
	}

	return nil
}

func createExchanges(ch *amqp.Channel, logger *slog.Logger) error {
	for _, event := range events {
		if err := ch.ExchangeDeclare(event, "direct", true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare %s exchange: %w", event, err)
		}
	}
	logger.Debug("exchanges declared", slog.Any("events", events))
	return nil
}
