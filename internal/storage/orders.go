package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jiaulislam/order.ticketing.dev/internal/order"
)

// OrderStore persists orders in Postgres. All consistency is pushed to the
// database's conditional writes; no in-process locks.
type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

func (s *OrderStore) Insert(ctx context.Context, o order.Order) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO orders (id, user_id, ticket_id, status, total_amount, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.ID, o.UserID, o.TicketID, o.Status, o.TotalAmount, o.ExpiresAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *OrderStore) Find(ctx context.Context, orderID, userID uuid.UUID) (*order.Order, error) {
	var o order.Order
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, ticket_id, status, total_amount, expires_at, created_at, updated_at
		FROM orders
		WHERE id = $1 AND user_id = $2`,
		orderID, userID,
	).Scan(&o.ID, &o.UserID, &o.TicketID, &o.Status, &o.TotalAmount, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("find order: %w", err)
	}
	return &o, nil
}

func (s *OrderStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]order.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, ticket_id, status, total_amount, expires_at, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var result []order.Order
	for rows.Next() {
		var o order.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.TicketID, &o.Status, &o.TotalAmount, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, o)
	}

	return result, rows.Err()
}

// TransitionStatus moves an order from one status to another only if it
// still holds the expected current status. Racing transitions resolve here:
// the loser matches zero rows. Leaving PENDING clears the expiry.
func (s *OrderStore) TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to order.Status, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $3,
		    expires_at = NULL,
		    updated_at = $4
		WHERE id = $1 AND status = $2`,
		orderID, from, to, now,
	)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindExpired returns PENDING orders whose reservation window has passed.
// Orders cancelled by an earlier sweep are excluded by the predicate itself.
func (s *OrderStore) FindExpired(ctx context.Context, now time.Time) ([]order.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, ticket_id, status, total_amount, expires_at, created_at, updated_at
		FROM orders
		WHERE status = $1 AND expires_at < $2
		ORDER BY expires_at`,
		order.StatusPending, now,
	)
	if err != nil {
		return nil, fmt.Errorf("query expired orders: %w", err)
	}
	defer rows.Close()

	var result []order.Order
	for rows.Next() {
		var o order.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.TicketID, &o.Status, &o.TotalAmount, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, o)
	}

	return result, rows.Err()
}
