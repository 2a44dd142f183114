package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	gw "github.com/gorilla/websocket"

	"github.com/jiaulislam/order.ticketing.dev/internal/auth"
	"github.com/jiaulislam/order.ticketing.dev/internal/order"
)

type Conn = gw.Conn

var upgrader = gw.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// OrderReader fetches an order for the connecting user, both as an ownership
// check and to send the current status as the first frame.
type OrderReader interface {
	Get(ctx context.Context, orderID, userID uuid.UUID) (*order.Order, error)
}

type Handler struct {
	hub      *Hub
	orders   OrderReader
	verifier *auth.Verifier
	logger   *slog.Logger
}

func NewHandler(hub *Hub, orders OrderReader, verifier *auth.Verifier) *Handler {
	return &Handler{hub: hub, orders: orders, verifier: verifier, logger: slog.Default()}
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := h.verifier.UserIDFromRequest(r)
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	orderID, err := uuid.Parse(r.PathValue("orderID"))
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	o, err := h.orders.Get(r.Context(), orderID, userID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		hub:     h.hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		orderID: orderID.String(),
	}

	client.hub.register <- client
	go client.writePump()
	go client.readPump()

	upd := OrderUpdate{OrderID: o.ID, Status: string(o.Status)}
	if b, err := json.Marshal(upd); err == nil {
		select {
		case client.send <- b:
		case <-time.After(1 * time.Second):
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(gw.TextMessage, msg); err != nil {
			return
		}
	}
}
