package order

import (
	"time"

	"github.com/jiaulislam/order.ticketing.dev/internal/contracts"
)

type Status string

const (
	StatusPending        Status = "PENDING"
	StatusPaymentPending Status = "PAYMENT_PENDING"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
)

// allowedTransitions is the order state machine. PENDING is never a target
// after creation; COMPLETED and CANCELLED are terminal.
var allowedTransitions = map[Status][]Status{
	StatusPending:        {StatusPaymentPending, StatusCancelled},
	StatusPaymentPending: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether to is reachable from from in one step.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the known order statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaymentPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Order struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	TicketID    int64      `json:"ticketId"`
	Status      Status     `json:"status"`
	TotalAmount int64      `json:"totalAmount"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Snapshot converts the order into its wire form, with the expiry rendered
// as RFC 3339 UTC when present.
func (o *Order) Snapshot() contracts.OrderSnapshot {
	snap := contracts.OrderSnapshot{
		ID:          o.ID,
		UserID:      o.UserID,
		TicketID:    o.TicketID,
		Status:      string(o.Status),
		TotalAmount: o.TotalAmount,
	}
	if o.ExpiresAt != nil {
		snap.ExpiresAt = o.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return snap
}
