package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JoseSOto27/WNGL/common/api"
)

const orderColumns = `id, referencia_externa, COALESCE(pago_id, ''), COALESCE(customer_id::text, customer_ref, ''),
	cliente_nombre, cliente_telefono, direccion_entrega, productos, subtotal, total,
	metodo_pago, estado, puntos_generados, puntos_usados, fecha_pedido`

// Dashboard sizes.
const (
	DashboardDays   = 5
	LeaderboardSize = 10
)

// OrderFilter narrows ListOrders. Zero values mean "any".
type OrderFilter struct {
	Status     string
	CustomerID string
	Limit      int
}

// InsertOrder writes a new pedidos_v2 row and fills in its id and timestamp.
// A second insert with the same Reference returns ErrDuplicateOrder; that is
// the only mutual exclusion between concurrent webhook deliveries.
func (s *PostgresStore) InsertOrder(ctx context.Context, o *api.Order) (int64, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal order items: %w", err)
	}

	query := `
		INSERT INTO pedidos_v2 (
			referencia_externa, pago_id, customer_id, cliente_nombre, cliente_telefono,
			direccion_entrega, productos, subtotal, total, metodo_pago, estado,
			puntos_generados, puntos_usados, customer_ref
		)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, '')::uuid, $4, $5, $6, $7::jsonb, $8, $9, $10, $11, $12, $13, NULLIF($14, ''))
		RETURNING id, fecha_pedido
	`
	customerID, customerRef := splitCustomer(o.CustomerID)
	err = s.db.QueryRowContext(ctx, query,
		o.Reference,
		o.PaymentID,
		customerID,
		o.CustomerName,
		o.CustomerPhone,
		o.DeliveryAddress,
		string(items),
		o.Subtotal,
		o.Total,
		o.PaymentMethod,
		o.Status,
		o.PointsEarned,
		o.PointsRedeemed,
		customerRef,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateOrder, o.Reference)
		}
		return 0, fmt.Errorf("failed to insert order: %w", err)
	}

	return o.ID, nil
}

// splitCustomer routes a customer id to customer_id when it is a uuid and to
// customer_ref otherwise, so an id the auth system never issued cannot fail
// the insert of a paid order.
func splitCustomer(id string) (customerID, customerRef string) {
	if id == "" {
		return "", ""
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", id
	}
	return id, ""
}

// GetOrder loads one order by id.
func (s *PostgresStore) GetOrder(ctx context.Context, id int64) (*api.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM pedidos_v2 WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

// ListOrders returns orders newest first.
func (s *PostgresStore) ListOrders(ctx context.Context, f OrderFilter) ([]*api.Order, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("estado = $%d", len(args)))
	}
	if f.CustomerID != "" {
		args = append(args, f.CustomerID)
		if id, _ := splitCustomer(f.CustomerID); id != "" {
			conds = append(conds, fmt.Sprintf("customer_id = $%d::uuid", len(args)))
		} else {
			conds = append(conds, fmt.Sprintf("customer_ref = $%d", len(args)))
		}
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)

	query := `SELECT ` + orderColumns + ` FROM pedidos_v2`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY fecha_pedido DESC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		if isBadReference(err) {
			return []*api.Order{}, nil
		}
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []*api.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// UpdateOrderStatus sets estado on one order.
func (s *PostgresStore) UpdateOrderStatus(ctx context.Context, id int64, status string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE pedidos_v2 SET estado = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// DashboardStats aggregates pedidos_v2 per status. Cancelled orders count in
// ByStatus but not in revenue or points.
func (s *PostgresStore) DashboardStats(ctx context.Context) (*api.DashboardStats, error) {
	query := `
		SELECT estado, COUNT(*), COALESCE(SUM(total), 0),
		       COALESCE(SUM(puntos_generados), 0), COALESCE(SUM(puntos_usados), 0)
		FROM pedidos_v2
		GROUP BY estado
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	stats := &api.DashboardStats{Revenue: decimal.Zero, ByStatus: map[string]int{}}
	for rows.Next() {
		var (
			status           string
			count            int
			revenue          decimal.Decimal
			issued, redeemed int
		)
		if err := rows.Scan(&status, &count, &revenue, &issued, &redeemed); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}

		stats.ByStatus[status] = count
		stats.Orders += count
		if status == api.StatusCancelled {
			continue
		}
		stats.Revenue = stats.Revenue.Add(revenue)
		stats.PointsIssued += issued
		stats.PointsRedeemed += redeemed
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if stats.PointsByDay, err = s.pointsByDay(ctx); err != nil {
		return nil, err
	}
	if stats.TopCustomers, err = s.topCustomers(ctx, LeaderboardSize); err != nil {
		return nil, err
	}

	return stats, nil
}

// pointsByDay returns points issued and redeemed on the last DashboardDays
// days that saw orders, newest first. Cancelled orders are left out.
func (s *PostgresStore) pointsByDay(ctx context.Context) ([]api.DailyPoints, error) {
	query := `
		SELECT date_trunc('day', fecha_pedido) AS dia,
		       COALESCE(SUM(puntos_generados), 0), COALESCE(SUM(puntos_usados), 0)
		FROM pedidos_v2
		WHERE estado <> $1
		GROUP BY dia
		ORDER BY dia DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, api.StatusCancelled, DashboardDays)
	if err != nil {
		return nil, fmt.Errorf("failed to query points by day: %w", err)
	}
	defer rows.Close()

	days := []api.DailyPoints{}
	for rows.Next() {
		var d api.DailyPoints
		if err := rows.Scan(&d.Day, &d.Issued, &d.Redeemed); err != nil {
			return nil, fmt.Errorf("failed to scan points by day: %w", err)
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return days, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*api.Order, error) {
	var (
		o     api.Order
		items []byte
	)
	err := row.Scan(
		&o.ID,
		&o.Reference,
		&o.PaymentID,
		&o.CustomerID,
		&o.CustomerName,
		&o.CustomerPhone,
		&o.DeliveryAddress,
		&items,
		&o.Subtotal,
		&o.Total,
		&o.PaymentMethod,
		&o.Status,
		&o.PointsEarned,
		&o.PointsRedeemed,
		&o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, fmt.Errorf("decode productos for order %d: %w", o.ID, err)
		}
	}
	return &o, nil
}
