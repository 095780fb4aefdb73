package main

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/JoseSOto27/WNGL/common/api"
	"github.com/JoseSOto27/WNGL/common/store"
)

type OrdersService interface {
	PlaceCashOrder(context.Context, CashOrderRequest) (*api.Order, error)
	ListOrders(ctx context.Context, status string) ([]*api.Order, error)
	CustomerOrders(ctx context.Context, customerID string) ([]*api.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	DashboardStats(context.Context) (*api.DashboardStats, error)
	Points(ctx context.Context, customerID string) (int, error)
	Addresses(ctx context.Context, customerID string) ([]*api.Address, error)
	AddAddress(context.Context, *api.Address) error
	RemoveAddress(ctx context.Context, customerID string, addressID int64) error
	Menu(context.Context) ([]*api.Product, error)
}

type OrdersStore interface {
	InsertOrder(context.Context, *api.Order) (int64, error)
	ListOrders(context.Context, store.OrderFilter) ([]*api.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status string) error
	DashboardStats(context.Context) (*api.DashboardStats, error)
	GetPoints(ctx context.Context, customerID string) (int, error)
	AdjustPoints(ctx context.Context, customerID string, delta int) (int, error)
	ListAddresses(ctx context.Context, userID string) ([]*api.Address, error)
	CreateAddress(context.Context, *api.Address) error
	DeleteAddress(ctx context.Context, userID string, id int64) error
	ListProducts(context.Context) ([]*api.Product, error)
}

type Publisher interface {
	Publish(ctx context.Context, event string, v any) error
}

// CashOrderRequest has the same shape as the card checkout body.
type CashOrderRequest struct {
	Items          []api.CartLine   `json:"items"`
	UserData       api.Customer     `json:"userData"`
	ShippingCost   *decimal.Decimal `json:"shippingCost,omitempty"`
	PointsRedeemed int              `json:"puntosUsados"`
}
