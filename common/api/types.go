// Package api holds the domain types shared by the payments and orders services.
package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers to and from the storefront and jsonb columns.
	decimal.MarshalJSONWithoutQuotes = true
}

// Order statuses as stored in pedidos_v2.estado.
const (
	StatusPending    = "pendiente"
	StatusPaid       = "pagado"
	StatusProcessing = "procesando"
	StatusShipped    = "enviado"
	StatusDelivered  = "entregado"
	StatusCancelled  = "cancelado"
)

// Payment methods as stored in pedidos_v2.metodo_pago.
const (
	PaymentMethodCard = "Tarjeta (Mercado Pago)"
	PaymentMethodCash = "Efectivo"
)

// Reference prefixes. The prefix tells card and cash orders apart at a glance.
const (
	ReferenceCard = "ORDER"
	ReferenceCash = "CASH"
)

// Reference builds an order reference "<prefix>-<unix millis>-<customer id or anon>".
func Reference(prefix string, at time.Time, customerID string) string {
	if customerID == "" {
		customerID = "anon"
	}
	return fmt.Sprintf("%s-%d-%s", prefix, at.UnixMilli(), customerID)
}

// ValidStatus reports whether s is one of the known order statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusPaid, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

type Customer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// Order is one row of pedidos_v2. Reference is unique and is the idempotency
// key for webhook reconciliation.
type Order struct {
	ID              int64           `json:"id"`
	Reference       string          `json:"referencia_externa"`
	PaymentID       string          `json:"pago_id,omitempty"`
	CustomerID      string          `json:"customer_id,omitempty"`
	CustomerName    string          `json:"cliente_nombre"`
	CustomerPhone   string          `json:"cliente_telefono"`
	DeliveryAddress string          `json:"direccion_entrega"`
	Items           []CartLine      `json:"productos"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Total           decimal.Decimal `json:"total"`
	PaymentMethod   string          `json:"metodo_pago"`
	Status          string          `json:"estado"`
	PointsEarned    int             `json:"puntos_generados"`
	PointsRedeemed  int             `json:"puntos_usados"`
	CreatedAt       time.Time       `json:"fecha_pedido"`
}

// OrderEvent is the broker payload for order.created and order.paid.
type OrderEvent struct {
	EventID        string          `json:"event_id"`
	OrderID        int64           `json:"order_id"`
	Reference      string          `json:"reference"`
	CustomerID     string          `json:"customer_id,omitempty"`
	Status         string          `json:"status"`
	PaymentMethod  string          `json:"payment_method"`
	Total          decimal.Decimal `json:"total"`
	PointsEarned   int             `json:"points_earned"`
	PointsRedeemed int             `json:"points_redeemed"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

type Address struct {
	ID      int64  `json:"id"`
	UserID  string `json:"user_id"`
	Label   string `json:"label"`
	Address string `json:"address"`
}

type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"nombre"`
	Price    decimal.Decimal `json:"precio"`
	Category string          `json:"categoria"`
	Image    string          `json:"imagen"`
}

// DashboardStats backs the admin dashboard cards.
type DashboardStats struct {
	Orders         int              `json:"orders"`
	Revenue        decimal.Decimal  `json:"revenue"`
	PointsIssued   int              `json:"points_issued"`
	PointsRedeemed int              `json:"points_redeemed"`
	ByStatus       map[string]int   `json:"by_status"`
	PointsByDay    []DailyPoints    `json:"points_by_day"`
	TopCustomers   []CustomerPoints `json:"top_customers"`
}

// DailyPoints is the points flow of one calendar day.
type DailyPoints struct {
	Day      time.Time `json:"day"`
	Issued   int       `json:"issued"`
	Redeemed int       `json:"redeemed"`
}

// CustomerPoints is one row of the loyalty leaderboard.
type CustomerPoints struct {
	CustomerID string `json:"customer_id"`
	Name       string `json:"nombre"`
	Email      string `json:"email"`
	Points     int    `json:"points"`
}
