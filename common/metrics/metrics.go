package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics contains HTTP-related Prometheus metrics
type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// PaymentMetrics covers checkout and webhook reconciliation.
type PaymentMetrics struct {
	PreferencesCreated prometheus.Counter
	CheckoutFailures   *prometheus.CounterVec
	WebhooksReceived   *prometheus.CounterVec
	Reconciliations    *prometheus.CounterVec
	PointsCredited     prometheus.Counter
	PointsRedeemed     prometheus.Counter
	GatewayDuration    *prometheus.HistogramVec
}

// OrderMetrics covers the back-office service.
type OrderMetrics struct {
	CashOrdersCreated prometheus.Counter
	StatusUpdates     *prometheus.CounterVec
	EventsConsumed    *prometheus.CounterVec
	CacheLookups      *prometheus.CounterVec
}

// NewHTTPMetrics creates HTTP metrics for a service
func NewHTTPMetrics(reg prometheus.Registerer, serviceName string) *HTTPMetrics {
	factory := promauto.With(reg)
	return &HTTPMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    serviceName + "_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// NewPaymentMetrics creates the checkout/webhook metrics
func NewPaymentMetrics(reg prometheus.Registerer, serviceName string) *PaymentMetrics {
	factory := promauto.With(reg)
	return &PaymentMetrics{
		PreferencesCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: serviceName + "_preferences_created_total",
				Help: "Total number of payment preferences created",
			},
		),
		CheckoutFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_checkout_failures_total",
				Help: "Checkout requests rejected, by reason",
			},
			[]string{"reason"},
		),
		WebhooksReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_webhooks_received_total",
				Help: "Webhook notifications received, by normalized kind",
			},
			[]string{"kind"},
		),
		Reconciliations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_reconciliations_total",
				Help: "Reconciliation attempts, by outcome",
			},
			[]string{"outcome"},
		),
		PointsCredited: factory.NewCounter(
			prometheus.CounterOpts{
				Name: serviceName + "_points_credited_total",
				Help: "Loyalty points earned through paid orders",
			},
		),
		PointsRedeemed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: serviceName + "_points_redeemed_total",
				Help: "Loyalty points spent through paid orders",
			},
		),
		GatewayDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    serviceName + "_gateway_duration_seconds",
				Help:    "Payment provider API call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "result"},
		),
	}
}

// NewOrderMetrics creates the back-office metrics
func NewOrderMetrics(reg prometheus.Registerer, serviceName string) *OrderMetrics {
	factory := promauto.With(reg)
	return &OrderMetrics{
		CashOrdersCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: serviceName + "_cash_orders_created_total",
				Help: "Total number of cash-on-delivery orders",
			},
		),
		StatusUpdates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_status_updates_total",
				Help: "Order status changes, by new status",
			},
			[]string{"status"},
		),
		EventsConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_events_consumed_total",
				Help: "Broker events consumed, by event and result",
			},
			[]string{"event", "result"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_cache_lookups_total",
				Help: "Redis cache lookups, by cache and result",
			},
			[]string{"cache", "result"},
		),
	}
}

// RecordHTTPRequest records an HTTP request metric
func (m *HTTPMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveGateway records one provider call.
func (m *PaymentMetrics) ObserveGateway(operation string, err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.GatewayDuration.WithLabelValues(operation, result).Observe(duration.Seconds())
}
