package store

import (
	"context"
	"fmt"

	"github.com/JoseSOto27/WNGL/common/api"
)

// ListAddresses returns a customer's saved delivery addresses.
func (s *PostgresStore) ListAddresses(ctx context.Context, userID string) ([]*api.Address, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id::text, label, address FROM direcciones WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		if isBadReference(err) {
			return []*api.Address{}, nil
		}
		return nil, fmt.Errorf("failed to query addresses: %w", err)
	}
	defer rows.Close()

	addrs := []*api.Address{}
	for rows.Next() {
		var a api.Address
		if err := rows.Scan(&a.ID, &a.UserID, &a.Label, &a.Address); err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		addrs = append(addrs, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return addrs, nil
}

// CreateAddress inserts an address and sets its id.
func (s *PostgresStore) CreateAddress(ctx context.Context, a *api.Address) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO direcciones (user_id, label, address) VALUES ($1, $2, $3) RETURNING id`,
		a.UserID, a.Label, a.Address,
	).Scan(&a.ID)
	if err != nil {
		if isBadReference(err) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("failed to insert address: %w", err)
	}
	return nil
}

// DeleteAddress removes an address owned by userID.
func (s *PostgresStore) DeleteAddress(ctx context.Context, userID string, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM direcciones WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		if isBadReference(err) {
			return ErrAddressNotFound
		}
		return fmt.Errorf("failed to delete address: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAddressNotFound
	}
	return nil
}

// ListProducts returns the active catalog ordered by category and name.
func (s *PostgresStore) ListProducts(ctx context.Context) ([]*api.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, nombre, precio, categoria, imagen FROM productos WHERE activo ORDER BY categoria, nombre`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []*api.Product{}
	for rows.Next() {
		var p api.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Category, &p.Image); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return products, nil
}
