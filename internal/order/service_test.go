package order

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jiaulislam/order.ticketing.dev/internal/clock"
	"github.com/jiaulislam/order.ticketing.dev/internal/contracts"
	"github.com/jiaulislam/order.ticketing.dev/internal/ticket"
)

type fakeStore struct {
	orders map[string]*Order
}

func newFakeStore(orders ...Order) *fakeStore {
	s := &fakeStore{orders: make(map[string]*Order)}
	for i := range orders {
		o := orders[i]
		s.orders[o.ID] = &o
	}
	return s
}

func (s *fakeStore) Insert(ctx context.Context, o Order) error {
	s.orders[o.ID] = &o
	return nil
}

func (s *fakeStore) Find(ctx context.Context, orderID, userID uuid.UUID) (*Order, error) {
	o, ok := s.orders[orderID.String()]
	if !ok || o.UserID != userID.String() {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *fakeStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	var result []Order
	for _, o := range s.orders {
		if o.UserID == userID.String() {
			result = append(result, *o)
		}
	}
	return result, nil
}

func (s *fakeStore) TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to Status, now time.Time) (bool, error) {
	o, ok := s.orders[orderID.String()]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.ExpiresAt = nil
	o.UpdatedAt = now
	return true, nil
}

type fakeTickets struct {
	tickets map[int64]ticket.Ticket
}

func (f *fakeTickets) Find(ctx context.Context, id int64) (*ticket.Ticket, error) {
	t, ok := f.tickets[id]
	if !ok {
		return nil, ErrTicketNotFound
	}
	return &t, nil
}

type fakePublisher struct {
	published []publishedEvent
	err       error
}

type publishedEvent struct {
	topic   string
	payload []byte
}

func (p *fakePublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, publishedEvent{topic: routingKey, payload: payload})
	return nil
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestService_Reserve(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()

	makeSvc := func(tickets map[int64]ticket.Ticket) (*Service, *fakeStore, *fakePublisher) {
		store := newFakeStore()
		pub := &fakePublisher{}
		svc := NewService(store, &fakeTickets{tickets: tickets}, pub, clock.NewFixed(now), testLogger)
		return svc, store, pub
	}

	t.Run("creates pending order priced from the replica", func(t *testing.T) {
		svc, store, pub := makeSvc(map[int64]ticket.Ticket{
			7: {ID: 7, Title: "concert", Price: 4200, Version: 1},
		})

		o, err := svc.Reserve(context.Background(), userID, 7, StatusPending)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if o.Status != StatusPending {
			t.Errorf("expected status PENDING, got %s", o.Status)
		}
		if o.TotalAmount != 4200 {
			t.Errorf("expected amount 4200 from replica, got %d", o.TotalAmount)
		}
		if o.ExpiresAt == nil || !o.ExpiresAt.Equal(now.Add(15*time.Minute)) {
			t.Errorf("expected expiry exactly 15m after now, got %v", o.ExpiresAt)
		}
		if len(store.orders) != 1 {
			t.Fatalf("expected 1 persisted order, got %d", len(store.orders))
		}

		if len(pub.published) != 1 {
			t.Fatalf("expected 1 published event, got %d", len(pub.published))
		}
		if pub.published[0].topic != contracts.TopicOrderCreated {
			t.Errorf("expected topic %s, got %s", contracts.TopicOrderCreated, pub.published[0].topic)
		}
		var snap contracts.OrderSnapshot
		if err := json.Unmarshal(pub.published[0].payload, &snap); err != nil {
			t.Fatalf("unmarshal snapshot: %v", err)
		}
		if snap.ID != o.ID || snap.Status != "PENDING" || snap.ExpiresAt != "2025-06-01T12:15:00Z" {
			t.Errorf("unexpected snapshot: %+v", snap)
		}
	})

	t.Run("fails with not found for unknown ticket", func(t *testing.T) {
		svc, _, pub := makeSvc(nil)

		if _, err := svc.Reserve(context.Background(), userID, 99, StatusPending); !errors.Is(err, ErrTicketNotFound) {
			t.Fatalf("expected ErrTicketNotFound, got %v", err)
		}
		if len(pub.published) != 0 {
			t.Errorf("expected no events, got %d", len(pub.published))
		}
	})

	t.Run("rejects any requested status other than PENDING", func(t *testing.T) {
		svc, _, _ := makeSvc(map[int64]ticket.Ticket{7: {ID: 7, Price: 100, Version: 1}})

		for _, status := range []Status{StatusPaymentPending, StatusCompleted, StatusCancelled, Status("BOGUS")} {
			if _, err := svc.Reserve(context.Background(), userID, 7, status); !errors.Is(err, ErrInvalidStatus) {
				t.Errorf("Reserve(%s): expected ErrInvalidStatus, got %v", status, err)
			}
		}
	})

	t.Run("rejects a negative replica price", func(t *testing.T) {
		svc, _, _ := makeSvc(map[int64]ticket.Ticket{7: {ID: 7, Price: -1, Version: 1}})

		if _, err := svc.Reserve(context.Background(), userID, 7, StatusPending); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount, got %v", err)
		}
	})

	t.Run("succeeds even when publish fails", func(t *testing.T) {
		store := newFakeStore()
		pub := &fakePublisher{err: errors.New("broker down")}
		svc := NewService(store, &fakeTickets{tickets: map[int64]ticket.Ticket{7: {ID: 7, Price: 100, Version: 1}}}, pub, clock.NewFixed(now), testLogger)

		o, err := svc.Reserve(context.Background(), userID, 7, StatusPending)
		if err != nil {
			t.Fatalf("expected store write to win over publish failure, got %v", err)
		}
		if _, ok := store.orders[o.ID]; !ok {
			t.Error("expected order to be persisted despite publish failure")
		}
	})
}

func TestService_Transition(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()
	orderID := uuid.New()

	makeSvc := func(status Status) (*Service, *fakeStore, *fakePublisher) {
		expires := now.Add(15 * time.Minute)
		store := newFakeStore(Order{
			ID:          orderID.String(),
			UserID:      userID.String(),
			TicketID:    7,
			Status:      status,
			TotalAmount: 100,
			ExpiresAt:   &expires,
		})
		pub := &fakePublisher{}
		svc := NewService(store, &fakeTickets{}, pub, clock.NewFixed(now), testLogger)
		return svc, store, pub
	}

	t.Run("moves PENDING to PAYMENT_PENDING and publishes", func(t *testing.T) {
		svc, store, pub := makeSvc(StatusPending)

		o, err := svc.Transition(context.Background(), orderID, userID, StatusPaymentPending)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if o.Status != StatusPaymentPending {
			t.Errorf("expected PAYMENT_PENDING, got %s", o.Status)
		}
		if store.orders[orderID.String()].Status != StatusPaymentPending {
			t.Error("expected store to hold the new status")
		}
		if len(pub.published) != 1 || pub.published[0].topic != contracts.TopicOrderUpdated {
			t.Fatalf("expected one %s event, got %+v", contracts.TopicOrderUpdated, pub.published)
		}
		var snap contracts.OrderSnapshot
		if err := json.Unmarshal(pub.published[0].payload, &snap); err != nil {
			t.Fatalf("unmarshal snapshot: %v", err)
		}
		if snap.ExpiresAt != "" {
			t.Errorf("expected expiry dropped after leaving PENDING, got %q", snap.ExpiresAt)
		}
	})

	t.Run("rejects unreachable targets", func(t *testing.T) {
		cases := []struct {
			from, to Status
		}{
			{StatusPending, StatusCompleted},
			{StatusCompleted, StatusCancelled},
			{StatusCancelled, StatusCompleted},
			{StatusCancelled, StatusPaymentPending},
		}
		for _, c := range cases {
			svc, _, pub := makeSvc(c.from)
			if _, err := svc.Transition(context.Background(), orderID, userID, c.to); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%s -> %s: expected ErrInvalidTransition, got %v", c.from, c.to, err)
			}
			if len(pub.published) != 0 {
				t.Errorf("%s -> %s: expected no events", c.from, c.to)
			}
		}
	})

	t.Run("rejects PENDING as a target", func(t *testing.T) {
		svc, _, _ := makeSvc(StatusPaymentPending)
		if _, err := svc.Transition(context.Background(), orderID, userID, StatusPending); !errors.Is(err, ErrInvalidStatus) {
			t.Fatalf("expected ErrInvalidStatus, got %v", err)
		}
	})

	t.Run("not found for another user's order", func(t *testing.T) {
		svc, _, _ := makeSvc(StatusPending)
		if _, err := svc.Transition(context.Background(), orderID, uuid.New(), StatusCancelled); !errors.Is(err, ErrOrderNotFound) {
			t.Fatalf("expected ErrOrderNotFound, got %v", err)
		}
	})

	t.Run("lost race surfaces as conflict", func(t *testing.T) {
		svc, store, pub := makeSvc(StatusPaymentPending)

		// Simulate a concurrent winner between Find and the conditional
		// update.
		store.orders[orderID.String()].Status = StatusCancelled

		if _, err := svc.Transition(context.Background(), orderID, userID, StatusCompleted); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		if store.orders[orderID.String()].Status != StatusCancelled {
			t.Error("loser must not overwrite the winner")
		}
		if len(pub.published) != 0 {
			t.Error("loser must not publish")
		}
	})
}
