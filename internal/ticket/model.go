package ticket

import "time"

// Ticket is the local replica of a catalog ticket. The catalog service owns
// creation and pricing; this service only mirrors it through events and
// never deletes a row. Version tracks the upstream revision and gates every
// update.
type Ticket struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Price     int64     `json:"price"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}
