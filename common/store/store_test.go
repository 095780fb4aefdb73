package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoseSOto27/WNGL/common/api"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewFromDB(db), mock
}

const profileID = "6f1c2b7e-3d4a-4f5b-9c8d-1e2f3a4b5c6d"

func sampleOrder() *api.Order {
	return &api.Order{
		Reference:       "ORDER-1700000000000-c1",
		PaymentID:       "123",
		CustomerID:      "c1",
		CustomerName:    "Ana",
		CustomerPhone:   "555",
		DeliveryAddress: "Calle 1",
		Items: []api.CartLine{
			{Name: "Tacos", UnitPrice: decimal.NewFromInt(50), Quantity: 2},
		},
		Subtotal:       decimal.NewFromInt(100),
		Total:          decimal.NewFromInt(140),
		PaymentMethod:  api.PaymentMethodCard,
		Status:         api.StatusPaid,
		PointsEarned:   5,
		PointsRedeemed: 0,
	}
}

func TestInsertOrder(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO pedidos_v2").
		WithArgs("ORDER-1700000000000-c1", "123", profileID, "Ana", "555", "Calle 1",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			api.PaymentMethodCard, api.StatusPaid, 5, 0, "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "fecha_pedido"}).AddRow(int64(42), created))

	o := sampleOrder()
	o.CustomerID = profileID
	id, err := s.InsertOrder(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, int64(42), o.ID)
	assert.Equal(t, created, o.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertOrderCustomerColumns(t *testing.T) {
	tests := []struct {
		name       string
		customerID string
		wantUUID   string
		wantRef    string
	}{
		{"profile uuid", profileID, profileID, ""},
		{"non-uuid id", "c1", "", "c1"},
		{"anonymous", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)

			// customer_id only ever receives a uuid, so Postgres never rejects the cast.
			mock.ExpectQuery(`NULLIF\(\$3, ''\)::uuid.*NULLIF\(\$14, ''\)`).
				WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), tt.wantUUID,
					sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
					sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
					sqlmock.AnyArg(), sqlmock.AnyArg(), tt.wantRef).
				WillReturnRows(sqlmock.NewRows([]string{"id", "fecha_pedido"}).AddRow(int64(1), time.Now()))

			o := sampleOrder()
			o.CustomerID = tt.customerID
			_, err := s.InsertOrder(context.Background(), o)
			require.NoError(t, err)
			assert.Equal(t, tt.customerID, o.CustomerID)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestInsertOrderDuplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO pedidos_v2").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "pedidos_v2_referencia_externa_key"})

	_, err := s.InsertOrder(context.Background(), sampleOrder())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateOrder))
}

func TestInsertOrderOtherError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO pedidos_v2").WillReturnError(errors.New("connection reset"))

	_, err := s.InsertOrder(context.Background(), sampleOrder())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDuplicateOrder))
}

func TestAdjustPoints(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("UPDATE profiles").
		WithArgs(-20, "c1").
		WillReturnRows(sqlmock.NewRows([]string{"points"}).AddRow(80))

	points, err := s.AdjustPoints(context.Background(), "c1", -20)
	require.NoError(t, err)
	assert.Equal(t, 80, points)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustPointsMissingProfile(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"no row", sql.ErrNoRows},
		{"malformed id", &pq.Error{Code: "22P02"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			mock.ExpectQuery("UPDATE profiles").WillReturnError(tt.err)

			_, err := s.AdjustPoints(context.Background(), "nope", 5)
			assert.ErrorIs(t, err, ErrProfileNotFound)
		})
	}
}

func TestGetPoints(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT points FROM profiles").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"points"}).AddRow(120))

	points, err := s.GetPoints(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 120, points)
}

func orderRowColumns() []string {
	return []string{"id", "referencia_externa", "pago_id", "customer_id", "cliente_nombre",
		"cliente_telefono", "direccion_entrega", "productos", "subtotal", "total",
		"metodo_pago", "estado", "puntos_generados", "puntos_usados", "fecha_pedido"}
}

func TestListOrdersFilters(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(orderRowColumns()).
		AddRow(int64(1), "CASH-1-c1", "", "c1", "Ana", "555", "Calle 1",
			`[{"id":"p1","nombre":"Tacos","precio":50,"quantity":2}]`,
			"100.00", "140.00", api.PaymentMethodCash, api.StatusPending, 5, 0, now)

	mock.ExpectQuery(`FROM pedidos_v2 WHERE estado = \$1 AND customer_id = \$2::uuid ORDER BY fecha_pedido DESC LIMIT \$3`).
		WithArgs(api.StatusPending, profileID, 100).
		WillReturnRows(rows)

	orders, err := s.ListOrders(context.Background(), OrderFilter{Status: api.StatusPending, CustomerID: profileID})
	require.NoError(t, err)
	require.Len(t, orders, 1)

	o := orders[0]
	assert.Equal(t, "CASH-1-c1", o.Reference)
	assert.True(t, o.Total.Equal(decimal.NewFromInt(140)))
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Tacos", o.Items[0].Name)
	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrdersNonUUIDCustomer(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM pedidos_v2 WHERE customer_ref = \$1 ORDER BY fecha_pedido DESC LIMIT \$2`).
		WithArgs("c1", 100).
		WillReturnRows(sqlmock.NewRows(orderRowColumns()))

	orders, err := s.ListOrders(context.Background(), OrderFilter{CustomerID: "c1"})
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrdersBadReference(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("FROM pedidos_v2").WillReturnError(&pq.Error{Code: "22P02"})

	orders, err := s.ListOrders(context.Background(), OrderFilter{CustomerID: profileID})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestUpdateOrderStatus(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE pedidos_v2 SET estado").
		WithArgs(api.StatusShipped, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.UpdateOrderStatus(context.Background(), 7, api.StatusShipped))

	mock.ExpectExec("UPDATE pedidos_v2 SET estado").
		WithArgs(api.StatusShipped, int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.UpdateOrderStatus(context.Background(), 8, api.StatusShipped), ErrOrderNotFound)
}

func TestDashboardStatsSkipsCancelledRevenue(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"estado", "count", "revenue", "issued", "redeemed"}).
		AddRow(api.StatusPaid, 3, "420.00", 15, 30).
		AddRow(api.StatusPending, 1, "140.00", 5, 0).
		AddRow(api.StatusCancelled, 2, "300.00", 10, 0)
	mock.ExpectQuery("GROUP BY estado").WillReturnRows(rows)
	mock.ExpectQuery("GROUP BY dia").
		WithArgs(api.StatusCancelled, DashboardDays).
		WillReturnRows(sqlmock.NewRows([]string{"dia", "issued", "redeemed"}))
	mock.ExpectQuery("FROM profiles").
		WithArgs(LeaderboardSize).
		WillReturnRows(sqlmock.NewRows([]string{"id", "nombre", "email", "points"}))

	stats, err := s.DashboardStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Orders)
	assert.True(t, stats.Revenue.Equal(decimal.NewFromInt(560)), stats.Revenue.String())
	assert.Equal(t, 20, stats.PointsIssued)
	assert.Equal(t, 30, stats.PointsRedeemed)
	assert.Equal(t, 2, stats.ByStatus[api.StatusCancelled])
}

func TestDashboardStatsPointsFlowAndLeaderboard(t *testing.T) {
	s, mock := newMockStore(t)
	today := time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("GROUP BY estado").
		WillReturnRows(sqlmock.NewRows([]string{"estado", "count", "revenue", "issued", "redeemed"}).
			AddRow(api.StatusPaid, 2, "300.00", 15, 50))
	mock.ExpectQuery(`(?s)date_trunc\('day', fecha_pedido\).*WHERE estado <> \$1.*ORDER BY dia DESC\s+LIMIT \$2`).
		WithArgs(api.StatusCancelled, 5).
		WillReturnRows(sqlmock.NewRows([]string{"dia", "issued", "redeemed"}).
			AddRow(today, 10, 50).
			AddRow(today.AddDate(0, 0, -2), 5, 0))
	mock.ExpectQuery(`(?s)FROM profiles\s+WHERE points > 0\s+ORDER BY points DESC`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "nombre", "email", "points"}).
			AddRow(profileID, "Ana", "ana@example.com", 320).
			AddRow("0b8e1f4c-5a6d-4e7f-8a9b-0c1d2e3f4a5b", "", "", 75))

	stats, err := s.DashboardStats(context.Background())
	require.NoError(t, err)

	require.Len(t, stats.PointsByDay, 2)
	assert.Equal(t, today, stats.PointsByDay[0].Day)
	assert.Equal(t, 10, stats.PointsByDay[0].Issued)
	assert.Equal(t, 50, stats.PointsByDay[0].Redeemed)

	require.Len(t, stats.TopCustomers, 2)
	assert.Equal(t, "Ana", stats.TopCustomers[0].Name)
	assert.Equal(t, 320, stats.TopCustomers[0].Points)
	assert.Equal(t, 75, stats.TopCustomers[1].Points)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardStatsLeaderboardError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("GROUP BY estado").
		WillReturnRows(sqlmock.NewRows([]string{"estado", "count", "revenue", "issued", "redeemed"}))
	mock.ExpectQuery("GROUP BY dia").
		WillReturnRows(sqlmock.NewRows([]string{"dia", "issued", "redeemed"}))
	mock.ExpectQuery("FROM profiles").WillReturnError(errors.New("connection reset"))

	_, err := s.DashboardStats(context.Background())
	assert.Error(t, err)
}

func TestAddresses(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("INSERT INTO direcciones").
		WithArgs("c1", "Casa", "Calle 1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	a := &api.Address{UserID: "c1", Label: "Casa", Address: "Calle 1"}
	require.NoError(t, s.CreateAddress(ctx, a))
	assert.Equal(t, int64(3), a.ID)

	mock.ExpectQuery("FROM direcciones").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "label", "address"}).
			AddRow(int64(3), "c1", "Casa", "Calle 1"))
	addrs, err := s.ListAddresses(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	assert.Equal(t, "Casa", addrs[0].Label)

	mock.ExpectExec("DELETE FROM direcciones").
		WithArgs(int64(3), "c1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.DeleteAddress(ctx, "c1", 3), ErrAddressNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListProducts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM productos WHERE activo").
		WillReturnRows(sqlmock.NewRows([]string{"id", "nombre", "precio", "categoria", "imagen"}).
			AddRow("p1", "Alitas", "120.00", "Alitas", "alitas.png"))

	products, err := s.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.True(t, products[0].Price.Equal(decimal.NewFromInt(120)))
}
