package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jiaulislam/order.ticketing.dev/internal/clock"
	"github.com/jiaulislam/order.ticketing.dev/internal/contracts"
	"github.com/jiaulislam/order.ticketing.dev/internal/ticket"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrInvalidTransition = errors.New("transition not allowed")
	ErrInvalidAmount     = errors.New("order amount must not be negative")
	ErrConflict          = errors.New("order was modified concurrently")
)

// Store is the order persistence surface the service needs. TransitionStatus
// must be a conditional write on the current status and report whether any
// row matched; it is the only guard against racing transitions.
type Store interface {
	Insert(ctx context.Context, o Order) error
	Find(ctx context.Context, orderID, userID uuid.UUID) (*Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error)
	TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to Status, now time.Time) (bool, error)
}

// TicketFinder reads the local ticket replica.
type TicketFinder interface {
	Find(ctx context.Context, id int64) (*ticket.Ticket, error)
}

// Publisher sends a payload under a routing key. Publishing is best-effort:
// the store is the source of truth and a missed event is never rolled back.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
}

// StatusNotifier receives in-process status change notifications, e.g. the
// WebSocket hub.
type StatusNotifier interface {
	BroadcastOrderUpdate(orderID, status string)
}

type Service struct {
	store    Store
	tickets  TicketFinder
	pub      Publisher
	notifier StatusNotifier
	clock    clock.Clock
	ttl      time.Duration
	logger   *slog.Logger
}

const defaultReservationTTL = 15 * time.Minute

type Option func(*Service)

// WithReservationTTL overrides the default 15 minute reservation window.
func WithReservationTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithNotifier attaches an in-process status notifier.
func WithNotifier(n StatusNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

func NewService(store Store, tickets TicketFinder, pub Publisher, clk clock.Clock, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		tickets: tickets,
		pub:     pub,
		clock:   clk,
		ttl:     defaultReservationTTL,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reserve creates a PENDING order against a replicated ticket. The amount is
// taken from the replica's current price, never from the caller, and the
// reservation expires ttl after now unless payment starts first.
func (s *Service) Reserve(ctx context.Context, userID uuid.UUID, ticketID int64, requested Status) (*Order, error) {
	if requested != StatusPending {
		return nil, fmt.Errorf("%w: new orders must be %s, got %s", ErrInvalidStatus, StatusPending, requested)
	}

	tkt, err := s.tickets.Find(ctx, ticketID)
	if err != nil {
		if errors.Is(err, ErrTicketNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("find ticket %d: %w", ticketID, err)
	}
	if tkt.Price < 0 {
		return nil, ErrInvalidAmount
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.ttl)
	o := Order{
		ID:          uuid.New().String(),
		UserID:      userID.String(),
		TicketID:    ticketID,
		Status:      StatusPending,
		TotalAmount: tkt.Price,
		ExpiresAt:   &expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Insert(ctx, o); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	s.publish(ctx, contracts.TopicOrderCreated, &o)
	return &o, nil
}

// Transition moves an order owned by userID to newStatus. The store update
// is conditioned on the status observed here; a lost race surfaces as
// ErrConflict rather than overwriting the winner.
func (s *Service) Transition(ctx context.Context, orderID, userID uuid.UUID, newStatus Status) (*Order, error) {
	if !newStatus.Valid() || newStatus == StatusPending {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, newStatus)
	}

	o, err := s.store.Find(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, newStatus)
	}

	now := s.clock.Now()
	updated, err := s.store.TransitionStatus(ctx, orderID, o.Status, newStatus, now)
	if err != nil {
		return nil, fmt.Errorf("transition order %s: %w", orderID, err)
	}
	if !updated {
		return nil, fmt.Errorf("%w: %s", ErrConflict, orderID)
	}

	o.Status = newStatus
	o.ExpiresAt = nil
	o.UpdatedAt = now
	s.publish(ctx, contracts.TopicOrderUpdated, o)
	return o, nil
}

// List returns all orders owned by userID, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	return s.store.ListByUser(ctx, userID)
}

// Get returns a single order owned by userID.
func (s *Service) Get(ctx context.Context, orderID, userID uuid.UUID) (*Order, error) {
	return s.store.Find(ctx, orderID, userID)
}

func (s *Service) publish(ctx context.Context, topic string, o *Order) {
	payload, err := json.Marshal(o.Snapshot())
	if err != nil {
		s.logger.Error("marshal order snapshot", "order_id", o.ID, "err", err)
		return
	}
	if err := s.pub.Publish(ctx, topic, payload); err != nil {
		s.logger.Error("publish order event", "topic", topic, "order_id", o.ID, "err", err)
	}
	if s.notifier != nil {
		s.notifier.BroadcastOrderUpdate(o.ID, string(o.Status))
	}
}
