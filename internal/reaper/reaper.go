package reaper

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jiaulislam/order.ticketing.dev/internal/clock"
	"github.com/jiaulislam/order.ticketing.dev/internal/contracts"
	"github.com/jiaulislam/order.ticketing.dev/internal/order"
)

// Store is the slice of order persistence the reaper needs. CancelExpired is
// conditional on the order still being PENDING, so a sweep interrupted by a
// crash re-cancels nothing on the next run.
type Store interface {
	FindExpired(ctx context.Context, now time.Time) ([]order.Order, error)
	TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to order.Status, now time.Time) (bool, error)
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
}

type StatusNotifier interface {
	BroadcastOrderUpdate(orderID, status string)
}

// Reaper cancels PENDING orders whose reservation window has passed. It runs
// on its own ticker, independent of request traffic, acting with system
// authority rather than on behalf of a user.
type Reaper struct {
	store    Store
	pub      Publisher
	notifier StatusNotifier
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger
}

func New(store Store, pub Publisher, clk clock.Clock, interval time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{
		store:    store,
		pub:      pub,
		clock:    clk,
		interval: interval,
		logger:   logger,
	}
}

// WithNotifier attaches an in-process status notifier.
func (r *Reaper) WithNotifier(n StatusNotifier) *Reaper {
	r.notifier = n
	return r
}

func (r *Reaper) Start(ctx context.Context) {
	go r.loop(ctx)
}

func (r *Reaper) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.Sweep(ctx); err != nil {
			r.logger.Error("expiry sweep failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep runs one scan-and-cancel cycle. A failure on one order is logged and
// must never block the rest of the batch.
func (r *Reaper) Sweep(ctx context.Context) error {
	now := r.clock.Now()
	expired, err := r.store.FindExpired(ctx, now)
	if err != nil {
		return err
	}

	for _, o := range expired {
		if err := r.cancelOne(ctx, o, now); err != nil {
			r.logger.Warn("cancel expired order failed", "order_id", o.ID, "err", err)
		}
	}
	return nil
}

func (r *Reaper) cancelOne(ctx context.Context, o order.Order, now time.Time) error {
	orderID, err := uuid.Parse(o.ID)
	if err != nil {
		return err
	}

	cancelled, err := r.store.TransitionStatus(ctx, orderID, order.StatusPending, order.StatusCancelled, now)
	if err != nil {
		return err
	}
	if !cancelled {
		// Someone beat us to it between the query and the update.
		return nil
	}

	o.Status = order.StatusCancelled
	o.UpdatedAt = now
	r.logger.Info("cancelled expired order", "order_id", o.ID, "expired_at", o.ExpiresAt)

	payload, err := json.Marshal(o.Snapshot())
	if err != nil {
		return err
	}
	if err := r.pub.Publish(ctx, contracts.TopicOrderUpdated, payload); err != nil {
		return err
	}
	if r.notifier != nil {
		r.notifier.BroadcastOrderUpdate(o.ID, string(o.Status))
	}
	return nil
}
