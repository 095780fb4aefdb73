package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JoseSOto27/WNGL/common/api"
	"github.com/JoseSOto27/WNGL/common/broker"
	"github.com/JoseSOto27/WNGL/common/metrics"
	"github.com/JoseSOto27/WNGL/common/pricing"
	"github.com/JoseSOto27/WNGL/common/store"
)

type service struct {
	store     OrdersStore
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.OrderMetrics
	now       func() time.Time
}

// NewService wires the back-office logic. publisher may be nil.
func NewService(store OrdersStore, publisher Publisher, logger *slog.Logger, m *metrics.OrderMetrics) *service {
	return &service{
		store:     store,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// PlaceCashOrder records a cash-on-delivery order as pending and settles its
// points right away: there is no later payment confirmation to wait for.
func (s *service) PlaceCashOrder(ctx context.Context, req CashOrderRequest) (*api.Order, error) {
	lines, shipping, err := pricing.Normalize(req.Items, req.ShippingCost, req.PointsRedeemed)
	if err != nil {
		return nil, err
	}

	customer := req.UserData
	if strings.TrimSpace(customer.Phone) == "" {
		return nil, &pricing.ValidationError{Field: "userData.phone", Message: "is required"}
	}
	if strings.TrimSpace(customer.Address) == "" {
		return nil, &pricing.ValidationError{Field: "userData.address", Message: "is required"}
	}

	balance, err := s.redeemableBalance(ctx, customer.ID, req.PointsRedeemed)
	if err != nil {
		return nil, err
	}
	quote := pricing.Price(lines, shipping, req.PointsRedeemed, balance)

	order := &api.Order{
		Reference:       api.Reference(api.ReferenceCash, s.now(), customer.ID),
		CustomerID:      customer.ID,
		CustomerName:    customer.Name,
		CustomerPhone:   customer.Phone,
		DeliveryAddress: customer.Address,
		Items:           lines,
		Subtotal:        quote.Subtotal,
		Total:           quote.Total,
		PaymentMethod:   api.PaymentMethodCash,
		Status:          api.StatusPending,
		PointsEarned:    quote.PointsToEarn,
		PointsRedeemed:  quote.DiscountPoints(),
	}

	if _, err := s.store.InsertOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("record cash order: %w", err)
	}
	s.metrics.CashOrdersCreated.Inc()

	log := s.logger.With(slog.String("reference", order.Reference), slog.Int64("order_id", order.ID))
	log.Info("cash order recorded",
		slog.String("total", order.Total.StringFixed(2)),
		slog.Int("points_earned", order.PointsEarned),
		slog.Int("points_redeemed", order.PointsRedeemed),
	)

	if customer.ID != "" {
		balance, err := s.store.AdjustPoints(ctx, customer.ID, order.PointsEarned-order.PointsRedeemed)
		switch {
		case errors.Is(err, store.ErrProfileNotFound):
			log.Warn("no profile for customer, order kept without points", slog.String("customer_id", customer.ID))
		case err != nil:
			log.Error("failed to update points, order kept without points", slog.Any("error", err))
		default:
			log.Info("points settled", slog.String("customer_id", customer.ID), slog.Int("balance", balance))
		}
	}

	s.publish(ctx, broker.OrderCreatedEvent, order)
	return order, nil
}

func (s *service) redeemableBalance(ctx context.Context, customerID string, requested int) (int, error) {
	if requested <= 0 || customerID == "" {
		return 0, nil
	}
	points, err := s.store.GetPoints(ctx, customerID)
	if errors.Is(err, store.ErrProfileNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read points balance: %w", err)
	}
	return points, nil
}

func (s *service) publish(ctx context.Context, event string, o *api.Order) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, event, api.OrderEvent{
		EventID:        uuid.NewString(),
		OrderID:        o.ID,
		Reference:      o.Reference,
		CustomerID:     o.CustomerID,
		Status:         o.Status,
		PaymentMethod:  o.PaymentMethod,
		Total:          o.Total,
		PointsEarned:   o.PointsEarned,
		PointsRedeemed: o.PointsRedeemed,
		OccurredAt:     s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to publish event", slog.String("event", event), slog.Any("error", err))
	}
}

func (s *service) ListOrders(ctx context.Context, status string) ([]*api.Order, error) {
	if status != "" && !api.ValidStatus(status) {
		return nil, &pricing.ValidationError{Field: "estado", Message: fmt.Sprintf("unknown status %q", status)}
	}
	return s.store.ListOrders(ctx, store.OrderFilter{Status: status})
}

func (s *service) CustomerOrders(ctx context.Context, customerID string) ([]*api.Order, error) {
	return s.store.ListOrders(ctx, store.OrderFilter{CustomerID: customerID})
}

func (s *service) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	if !api.ValidStatus(status) {
		return &pricing.ValidationError{Field: "estado", Message: fmt.Sprintf("unknown status %q", status)}
	}
	if err := s.store.UpdateOrderStatus(ctx, orderID, status); err != nil {
		return err
	}

	s.metrics.StatusUpdates.WithLabelValues(status).Inc()
	s.logger.Info("order status updated", slog.Int64("order_id", orderID), slog.String("status", status))
	return nil
}

func (s *service) DashboardStats(ctx context.Context) (*api.DashboardStats, error) {
	return s.store.DashboardStats(ctx)
}

func (s *service) Points(ctx context.Context, customerID string) (int, error) {
	return s.store.GetPoints(ctx, customerID)
}

func (s *service) Addresses(ctx context.Context, customerID string) ([]*api.Address, error) {
	return s.store.ListAddresses(ctx, customerID)
}

func (s *service) AddAddress(ctx context.Context, a *api.Address) error {
	a.Label = strings.TrimSpace(a.Label)
	a.Address = strings.TrimSpace(a.Address)
	if a.Label == "" {
		return &pricing.ValidationError{Field: "label", Message: "is required"}
	}
	if a.Address == "" {
		return &pricing.ValidationError{Field: "address", Message: "is required"}
	}
	return s.store.CreateAddress(ctx, a)
}

func (s *service) RemoveAddress(ctx context.Context, customerID string, addressID int64) error {
	return s.store.DeleteAddress(ctx, customerID, addressID)
}

func (s *service) Menu(ctx context.Context) ([]*api.Product, error) {
	return s.store.ListProducts(ctx)
}
