package order

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusPaymentPending, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusPaymentPending, StatusCompleted, true},
		{StatusPaymentPending, StatusCancelled, true},
		{StatusPaymentPending, StatusPending, false},
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusPaymentPending, false},
		{StatusCancelled, StatusCompleted, false},
	}

	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() || StatusPaymentPending.Terminal() {
		t.Error("expected PENDING and PAYMENT_PENDING to be non-terminal")
	}
	if !StatusCompleted.Terminal() || !StatusCancelled.Terminal() {
		t.Error("expected COMPLETED and CANCELLED to be terminal")
	}
}

func TestSnapshot(t *testing.T) {
	expires := time.Date(2025, 6, 1, 10, 15, 0, 0, time.UTC)
	o := Order{
		ID:          "c7a3f1f0-0000-0000-0000-000000000001",
		UserID:      "c7a3f1f0-0000-0000-0000-000000000002",
		TicketID:    42,
		Status:      StatusPending,
		TotalAmount: 2500,
		ExpiresAt:   &expires,
	}

	snap := o.Snapshot()
	if snap.ExpiresAt != "2025-06-01T10:15:00Z" {
		t.Errorf("expected RFC 3339 expiry, got %q", snap.ExpiresAt)
	}
	if snap.Status != "PENDING" || snap.TotalAmount != 2500 || snap.TicketID != 42 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}

	o.Status = StatusCompleted
	o.ExpiresAt = nil
	if snap := o.Snapshot(); snap.ExpiresAt != "" {
		t.Errorf("expected empty expiry once order left PENDING, got %q", snap.ExpiresAt)
	}
}
