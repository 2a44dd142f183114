package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jiaulislam/order.ticketing.dev/internal/order"
	"github.com/jiaulislam/order.ticketing.dev/internal/ticket"
)

// TicketStore persists the local ticket replica. Rows are written only by
// the inbound event handlers and never deleted.
type TicketStore struct {
	pool *pgxpool.Pool
}

func NewTicketStore(pool *pgxpool.Pool) *TicketStore {
	return &TicketStore{pool: pool}
}

func (s *TicketStore) Find(ctx context.Context, id int64) (*ticket.Ticket, error) {
	var t ticket.Ticket
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, price, version, updated_at
		FROM tickets
		WHERE id = $1`, id,
	).Scan(&t.ID, &t.Title, &t.Price, &t.Version, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrTicketNotFound
		}
		return nil, fmt.Errorf("find ticket: %w", err)
	}
	return &t, nil
}

// Upsert writes a replica row unconditionally. Re-delivering the same
// creation event overwrites with identical values, so it is idempotent.
func (s *TicketStore) Upsert(ctx context.Context, t ticket.Ticket) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tickets (id, title, price, version, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title,
		    price = EXCLUDED.price,
		    version = EXCLUDED.version,
		    updated_at = NOW()`,
		t.ID, t.Title, t.Price, t.Version,
	)
	if err != nil {
		return fmt.Errorf("upsert ticket: %w", err)
	}
	return nil
}

// ApplyUpdate advances the replica only when it currently holds exactly the
// predecessor version. Zero rows matched means the event is stale, early, or
// the replica is missing; the caller treats that as a no-op.
func (s *TicketStore) ApplyUpdate(ctx context.Context, t ticket.Ticket) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tickets
		SET title = $2, price = $3, version = $4, updated_at = NOW()
		WHERE id = $1 AND version = $4 - 1`,
		t.ID, t.Title, t.Price, t.Version,
	)
	if err != nil {
		return false, fmt.Errorf("update ticket: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
