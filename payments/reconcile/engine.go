// Package reconcile turns an approved provider payment into exactly one order
// row and exactly one points adjustment.
//
// A payment goes unseen -> recorded -> points-settled. The UNIQUE constraint on
// the order reference is the only mutual exclusion: concurrent or repeated
// deliveries of the same payment race on InsertOrder and every loser stops
// there, before touching points. The order insert and the points update are
// two independent statements; if the second fails the order stays recorded
// without its points effect and a log line is the only trace.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/JoseSOto27/WNGL/common/api"
	"github.com/JoseSOto27/WNGL/common/broker"
	"github.com/JoseSOto27/WNGL/common/metrics"
	"github.com/JoseSOto27/WNGL/common/pricing"
	"github.com/JoseSOto27/WNGL/common/store"
	"github.com/JoseSOto27/WNGL/payments/checkout"
	"github.com/JoseSOto27/WNGL/payments/processor"
)

type Outcome string

const (
	OutcomeRecorded        Outcome = "recorded"
	OutcomeAnonymous       Outcome = "recorded_anonymous"
	OutcomeProfileMissing  Outcome = "profile_missing"
	OutcomePointsFailed    Outcome = "points_failed"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeNotApproved     Outcome = "not_approved"
	OutcomeGatewayFailed   Outcome = "gateway_failed"
	OutcomeInvalidMetadata Outcome = "invalid_metadata"
	OutcomeStoreFailed     Outcome = "store_failed"
)

// OrderRecorded reports whether this call inserted the order.
func (o Outcome) OrderRecorded() bool {
	switch o {
	case OutcomeRecorded, OutcomeAnonymous, OutcomeProfileMissing, OutcomePointsFailed:
		return true
	}
	return false
}

type Store interface {
	InsertOrder(ctx context.Context, o *api.Order) (int64, error)
	// AdjustPoints applies delta atomically, floors the balance at zero and
	// returns it. store.ErrProfileNotFound when the customer has no profile.
	AdjustPoints(ctx context.Context, customerID string, delta int) (int, error)
}

type Publisher interface {
	Publish(ctx context.Context, event string, v any) error
}

type Result struct {
	Outcome        Outcome
	Reference      string
	OrderID        int64
	PointsEarned   int
	PointsRedeemed int
	Balance        int
}

type Engine struct {
	processor processor.PaymentProcessor
	store     Store
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.PaymentMetrics
	tracer    trace.Tracer
	now       func() time.Time
}

// NewEngine wires the collaborators. publisher and m may be nil.
func NewEngine(p processor.PaymentProcessor, s Store, publisher Publisher, logger *slog.Logger, m *metrics.PaymentMetrics) *Engine {
	return &Engine{
		processor: p,
		store:     s,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		tracer:    otel.Tracer("payments/reconcile"),
		now:       time.Now,
	}
}

// Reconcile re-fetches paymentID from the provider and, when it is approved,
// records it. It never returns an error: every failure is logged and reported
// as an Outcome, since the caller answers the provider 200 regardless.
func (e *Engine) Reconcile(ctx context.Context, paymentID string) Result {
	ctx, span := e.tracer.Start(ctx, "reconcile payment",
		trace.WithAttributes(attribute.String("payment.id", paymentID)))
	defer span.End()

	res := e.reconcile(ctx, paymentID)

	span.SetAttributes(
		attribute.String("reconcile.outcome", string(res.Outcome)),
		attribute.String("order.reference", res.Reference),
	)
	switch res.Outcome {
	case OutcomeGatewayFailed, OutcomeInvalidMetadata, OutcomeStoreFailed, OutcomePointsFailed:
		span.SetStatus(codes.Error, string(res.Outcome))
	}

	if e.metrics != nil {
		e.metrics.Reconciliations.WithLabelValues(string(res.Outcome)).Inc()
	}
	return res
}

func (e *Engine) reconcile(ctx context.Context, paymentID string) Result {
	log := e.logger.With(slog.String("payment_id", paymentID))

	payment, err := e.processor.GetPayment(ctx, paymentID)
	if err != nil {
		log.Error("failed to fetch payment", slog.Any("error", err))
		return Result{Outcome: OutcomeGatewayFailed}
	}

	if !payment.Approved() {
		log.Info("payment not approved, nothing to record", slog.String("status", payment.Status))
		return Result{Outcome: OutcomeNotApproved, Reference: payment.ExternalReference}
	}

	meta, err := checkout.ParseMetadata(payment.Metadata)
	if err != nil {
		log.Error("approved payment has unusable metadata",
			slog.String("reference", payment.ExternalReference),
			slog.Any("error", err),
		)
		return Result{Outcome: OutcomeInvalidMetadata, Reference: payment.ExternalReference}
	}

	order := e.buildOrder(payment, meta)
	log = log.With(slog.String("reference", order.Reference))
	res := Result{
		Reference:      order.Reference,
		PointsEarned:   order.PointsEarned,
		PointsRedeemed: order.PointsRedeemed,
	}

	id, err := e.store.InsertOrder(ctx, order)
	if errors.Is(err, store.ErrDuplicateOrder) {
		log.Info("payment already recorded, skipping")
		res.Outcome = OutcomeDuplicate
		return res
	}
	if err != nil {
		log.Error("failed to record order", slog.Any("error", err))
		res.Outcome = OutcomeStoreFailed
		return res
	}
	res.OrderID = id

	log.Info("order recorded",
		slog.Int64("order_id", id),
		slog.String("total", order.Total.StringFixed(2)),
		slog.Int("points_earned", order.PointsEarned),
		slog.Int("points_redeemed", order.PointsRedeemed),
	)

	res.Outcome, res.Balance = e.settlePoints(ctx, log, meta.CustomerID, order)
	e.publishPaid(ctx, log, order)
	return res
}

func (e *Engine) buildOrder(p *processor.Payment, meta checkout.Metadata) *api.Order {
	reference := meta.Reference
	if reference == "" {
		reference = p.ExternalReference
	}
	if reference == "" {
		// Payment ids are unique at the provider, so this still dedupes.
		reference = "MP-" + p.ID
	}

	subtotal := pricing.EarnBase(p.TransactionAmount, meta.Shipping, meta.PointsRedeemed)

	return &api.Order{
		Reference:       reference,
		PaymentID:       p.ID,
		CustomerID:      meta.CustomerID,
		CustomerName:    meta.CustomerName,
		CustomerPhone:   meta.CustomerPhone,
		DeliveryAddress: meta.Address,
		Items:           meta.Cart,
		Subtotal:        subtotal,
		Total:           p.TransactionAmount,
		PaymentMethod:   api.PaymentMethodCard,
		Status:          api.StatusPaid,
		PointsEarned:    pricing.PointsFor(subtotal),
		PointsRedeemed:  meta.PointsRedeemed,
	}
}

func (e *Engine) settlePoints(ctx context.Context, log *slog.Logger, customerID string, o *api.Order) (Outcome, int) {
	if customerID == "" {
		return OutcomeAnonymous, 0
	}

	balance, err := e.store.AdjustPoints(ctx, customerID, o.PointsEarned-o.PointsRedeemed)
	if errors.Is(err, store.ErrProfileNotFound) {
		log.Warn("no profile for customer, order kept without points",
			slog.String("customer_id", customerID))
		return OutcomeProfileMissing, 0
	}
	if err != nil {
		log.Error("failed to update points, order kept without points",
			slog.String("customer_id", customerID),
			slog.Any("error", err),
		)
		return OutcomePointsFailed, 0
	}

	if e.metrics != nil {
		e.metrics.PointsCredited.Add(float64(o.PointsEarned))
		e.metrics.PointsRedeemed.Add(float64(o.PointsRedeemed))
	}
	log.Info("points settled",
		slog.String("customer_id", customerID),
		slog.Int("balance", balance),
	)
	return OutcomeRecorded, balance
}

func (e *Engine) publishPaid(ctx context.Context, log *slog.Logger, o *api.Order) {
	if e.publisher == nil {
		return
	}

	event := api.OrderEvent{
		EventID:        uuid.NewString(),
		OrderID:        o.ID,
		Reference:      o.Reference,
		CustomerID:     o.CustomerID,
		Status:         o.Status,
		PaymentMethod:  o.PaymentMethod,
		Total:          o.Total,
		PointsEarned:   o.PointsEarned,
		PointsRedeemed: o.PointsRedeemed,
		OccurredAt:     e.now().UTC(),
	}
	if err := e.publisher.Publish(ctx, broker.OrderPaidEvent, event); err != nil {
		log.Warn("failed to publish order.paid", slog.Any("error", err))
	}
}
