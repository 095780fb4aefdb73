package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/JoseSOto27/WNGL/common/api"
)

// GetPoints reads a customer's balance.
func (s *PostgresStore) GetPoints(ctx context.Context, customerID string) (int, error) {
	var points int
	err := s.db.QueryRowContext(ctx, `SELECT points FROM profiles WHERE id = $1`, customerID).Scan(&points)
	if errors.Is(err, sql.ErrNoRows) || isBadReference(err) {
		return 0, ErrProfileNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get points: %w", err)
	}
	return points, nil
}

// AdjustPoints adds delta (which may be negative) to a balance in a single
// statement and returns the new balance, floored at zero. The increment runs
// inside Postgres, so concurrent adjustments for the same customer cannot
// overwrite each other.
func (s *PostgresStore) AdjustPoints(ctx context.Context, customerID string, delta int) (int, error) {
	query := `
		UPDATE profiles
		SET points = GREATEST(points + $1, 0)
		WHERE id = $2
		RETURNING points
	`
	var points int
	err := s.db.QueryRowContext(ctx, query, delta, customerID).Scan(&points)
	if errors.Is(err, sql.ErrNoRows) || isBadReference(err) {
		return 0, ErrProfileNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to adjust points: %w", err)
	}
	return points, nil
}

// topCustomers is the loyalty leaderboard: the highest balances first.
func (s *PostgresStore) topCustomers(ctx context.Context, limit int) ([]api.CustomerPoints, error) {
	query := `
		SELECT id::text, COALESCE(nombre, ''), COALESCE(email, ''), points
		FROM profiles
		WHERE points > 0
		ORDER BY points DESC, nombre
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	top := []api.CustomerPoints{}
	for rows.Next() {
		var c api.CustomerPoints
		if err := rows.Scan(&c.CustomerID, &c.Name, &c.Email, &c.Points); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard: %w", err)
		}
		top = append(top, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return top, nil
}
