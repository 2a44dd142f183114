package contracts

// Routing keys shared with the ticket catalog service and downstream
// consumers. Inbound ticket events arrive under ticket.*; order events go
// out under order.*.
const (
	TopicTicketCreated = "ticket.created"
	TopicTicketUpdated = "ticket.updated"
	TopicOrderCreated  = "order.created"
	TopicOrderUpdated  = "order.updated"
)

// TicketEvent is the payload of TICKET_CREATED and TICKET_UPDATED. The
// catalog service increments Version by exactly one on every update.
type TicketEvent struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Price   int64  `json:"price"`
	Version int64  `json:"version"`
}

// OrderSnapshot is the full order state carried by ORDER_CREATED and
// ORDER_UPDATED. ExpiresAt is RFC 3339 UTC while the order is PENDING and
// empty once it leaves that state. Field names are camelCase to match the
// upstream services.
type OrderSnapshot struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	TicketID    int64  `json:"ticketId"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"totalAmount"`
	ExpiresAt   string `json:"expiresAt,omitempty"`
}
