package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/jiaulislam/order.ticketing.dev/internal/auth"
	"github.com/jiaulislam/order.ticketing.dev/internal/order"
)

// OrderService is the lifecycle surface exposed over HTTP.
type OrderService interface {
	Reserve(ctx context.Context, userID uuid.UUID, ticketID int64, requested order.Status) (*order.Order, error)
	Transition(ctx context.Context, orderID, userID uuid.UUID, newStatus order.Status) (*order.Order, error)
	List(ctx context.Context, userID uuid.UUID) ([]order.Order, error)
	Get(ctx context.Context, orderID, userID uuid.UUID) (*order.Order, error)
}

type Server struct {
	orders   OrderService
	verifier *auth.Verifier
	logger   *slog.Logger
	mux      *http.ServeMux
}

func NewServer(orders OrderService, verifier *auth.Verifier, logger *slog.Logger) *Server {
	s := &Server{
		orders:   orders,
		verifier: verifier,
		logger:   logger,
		mux:      http.NewServeMux(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/v1/orders", s.reserveOrder)
	s.mux.HandleFunc("GET /api/v1/orders", s.listOrders)
	s.mux.HandleFunc("GET /api/v1/orders/{orderID}", s.getOrder)
	s.mux.HandleFunc("PATCH /api/v1/orders/{orderID}", s.updateOrder)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// HandleFunc exposes the mux for extra routes, e.g. the WebSocket endpoint.
func (s *Server) HandleFunc(pattern string, handler http.HandlerFunc) {
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) reserveOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req struct {
		TicketID int64  `json:"ticketId"`
		Status   string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TicketID <= 0 {
		writeError(w, http.StatusBadRequest, "ticketId must be a positive integer")
		return
	}

	o, err := s.orders.Reserve(r.Context(), userID, req.TicketID, order.Status(req.Status))
	if err != nil {
		s.writeServiceError(w, err, "reserve order")
		return
	}

	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	orders, err := s.orders.List(r.Context(), userID)
	if err != nil {
		s.logger.Error("list orders", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(r.PathValue("orderID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := s.orders.Get(r.Context(), orderID, userID)
	if err != nil {
		s.writeServiceError(w, err, "get order")
		return
	}

	writeJSON(w, http.StatusOK, o)
}

func (s *Server) updateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(r.PathValue("orderID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	o, err := s.orders.Transition(r.Context(), orderID, userID, order.Status(req.Status))
	if err != nil {
		s.writeServiceError(w, err, "update order")
		return
	}

	writeJSON(w, http.StatusOK, o)
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, err := s.verifier.UserIDFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return uuid.UUID{}, false
	}
	return userID, true
}

// writeServiceError maps the service error taxonomy onto HTTP statuses:
// validation 400, not found 404, lost race 409, anything else 500.
func (s *Server) writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, order.ErrTicketNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error(op, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
