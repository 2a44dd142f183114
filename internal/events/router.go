package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jiaulislam/order.ticketing.dev/internal/contracts"
	"github.com/jiaulislam/order.ticketing.dev/internal/ticket"
)

// HandlerFunc processes the body of one inbound event.
type HandlerFunc func(ctx context.Context, payload []byte) error

// TicketWriter is the replica write surface the handlers need.
type TicketWriter interface {
	Upsert(ctx context.Context, t ticket.Ticket) error
	ApplyUpdate(ctx context.Context, t ticket.Ticket) (bool, error)
}

// Router maps inbound topics to handlers. The table is assembled once at
// startup; a topic without a handler is logged and dropped, since a missing
// mapping is a configuration fact, not a transient error.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *slog.Logger
}

func NewRouter(tickets TicketWriter, logger *slog.Logger) *Router {
	r := &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
	r.handlers[contracts.TopicTicketCreated] = r.handleTicketCreated(tickets)
	r.handlers[contracts.TopicTicketUpdated] = r.handleTicketUpdated(tickets)
	return r
}

// Dispatch routes one delivery to its handler. Errors are returned for the
// caller to log; the caller must keep consuming regardless.
func (r *Router) Dispatch(ctx context.Context, topic string, payload []byte) error {
	handler, ok := r.handlers[topic]
	if !ok {
		r.logger.Warn("no handler for topic, dropping message", "topic", topic)
		return nil
	}
	return handler(ctx, payload)
}

func (r *Router) handleTicketCreated(tickets TicketWriter) HandlerFunc {
	return func(ctx context.Context, payload []byte) error {
		evt, err := decodeTicketEvent(payload)
		if err != nil {
			return err
		}
		if err := tickets.Upsert(ctx, evt); err != nil {
			return fmt.Errorf("apply ticket created %d: %w", evt.ID, err)
		}
		r.logger.Info("ticket replica created", "ticket_id", evt.ID, "version", evt.Version)
		return nil
	}
}

func (r *Router) handleTicketUpdated(tickets TicketWriter) HandlerFunc {
	return func(ctx context.Context, payload []byte) error {
		evt, err := decodeTicketEvent(payload)
		if err != nil {
			return err
		}
		applied, err := tickets.ApplyUpdate(ctx, evt)
		if err != nil {
			return fmt.Errorf("apply ticket updated %d: %w", evt.ID, err)
		}
		if !applied {
			// Stale, out-of-order, or gapped event. Convergence is
			// best-effort; the replica simply does not advance.
			r.logger.Warn("ticket update skipped by version gate", "ticket_id", evt.ID, "version", evt.Version)
			return nil
		}
		r.logger.Info("ticket replica updated", "ticket_id", evt.ID, "version", evt.Version)
		return nil
	}
}

func decodeTicketEvent(payload []byte) (ticket.Ticket, error) {
	var evt contracts.TicketEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return ticket.Ticket{}, fmt.Errorf("decode ticket event: %w", err)
	}
	return ticket.Ticket{
		ID:      evt.ID,
		Title:   evt.Title,
		Price:   evt.Price,
		Version: evt.Version,
	}, nil
}
