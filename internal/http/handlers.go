package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ticketline/booking/internal/adapters/postgres"
	"github.com/ticketline/booking/internal/booking"
	"github.com/ticketline/booking/internal/config"
	"github.com/ticketline/booking/internal/domain"
	"github.com/ticketline/booking/internal/lifecycle"
)

type Handlers struct {
	cfg       *config.Config
	repo      *postgres.Repository
	bookings  *booking.Service
	lifecycle *lifecycle.Service
}

func NewHandlers(cfg *config.Config, repo *postgres.Repository, bookings *booking.Service, lc *lifecycle.Service) *Handlers {
	return &Handlers{
		cfg:       cfg,
		repo:      repo,
		bookings:  bookings,
		lifecycle: lc,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeBookingError maps the reservation error taxonomy onto HTTP statuses.
// Only insufficient inventory and transient failures are worth retrying.
func writeBookingError(w http.ResponseWriter, err error) {
	var insufficient *domain.InsufficientInventoryError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid request")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, domain.ErrSaleNotOpen):
		writeError(w, http.StatusConflict, "this event is not open for sales")
	case errors.Is(err, domain.ErrSoldOut):
		writeError(w, http.StatusConflict, "this event is sold out")
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":     "insufficient inventory",
			"remaining": insufficient.Remaining,
		})
	case errors.Is(err, domain.ErrTransient):
		writeError(w, http.StatusServiceUnavailable, "temporary failure, try again")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID  int64     `json:"event_id"`
		Quantity int       `json:"quantity"`
		UserID   uuid.UUID `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conf, err := h.bookings.PlaceBooking(r.Context(), booking.PlaceBookingRequest{
		UserID:         req.UserID,
		EventID:        req.EventID,
		Quantity:       req.Quantity,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeBookingError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, conf)
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	b, err := h.repo.GetBooking(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "booking not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"booking_id":   b.ID,
		"event_id":     b.EventID,
		"ticket_count": b.TicketCount,
		"total_amount": b.TotalAmount,
		"created_at":   b.CreatedAt.Format(time.RFC3339),
	})
}

func (h *Handlers) ListUserBookings(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	bookings, err := h.repo.ListBookingsByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]map[string]interface{}, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, map[string]interface{}{
			"booking_id":   b.ID,
			"event_id":     b.EventID,
			"ticket_count": b.TicketCount,
			"total_amount": b.TotalAmount,
			"created_at":   b.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bookings": out})
}

func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	// Lazy sweep so listings never show a past event as open for sale.
	if _, err := h.lifecycle.Sweep(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	events, err := h.repo.ListEvents(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]map[string]interface{}, 0, len(events))
	for _, ev := range events {
		out = append(out, eventJSON(&ev))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": out})
}

func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := eventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if _, err := h.lifecycle.Sweep(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	ev, err := h.repo.GetEvent(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, eventJSON(ev))
}

func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title        string    `json:"title"`
		Price        float64   `json:"price"`
		TotalTickets int       `json:"total_tickets"`
		StartsAt     time.Time `json:"starts_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Title == "" || req.Price < 0 || req.TotalTickets < 0 || req.StartsAt.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid event")
		return
	}

	ev := domain.Event{
		Title:        req.Title,
		Price:        req.Price,
		TotalTickets: req.TotalTickets,
		StartsAt:     req.StartsAt.UTC(),
	}
	if err := h.repo.CreateEvent(r.Context(), &ev); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, eventJSON(&ev))
}

// UpdateEvent edits price and/or capacity. Capacity can never drop below the
// sold count; historical bookings keep their frozen amounts either way.
func (h *Handlers) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := eventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req struct {
		Price        *float64 `json:"price"`
		TotalTickets *int     `json:"total_tickets"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Price != nil {
		if *req.Price < 0 {
			writeError(w, http.StatusBadRequest, "price must be non-negative")
			return
		}
		if err := h.repo.UpdateEventPrice(r.Context(), id, *req.Price); err != nil {
			h.writeEventError(w, err)
			return
		}
	}
	if req.TotalTickets != nil {
		if *req.TotalTickets < 0 {
			writeError(w, http.StatusBadRequest, "total_tickets must be non-negative")
			return
		}
		err := h.repo.UpdateEventCapacity(r.Context(), id, *req.TotalTickets)
		if errors.Is(err, domain.ErrConflict) {
			writeError(w, http.StatusConflict, "total tickets cannot drop below sold count")
			return
		}
		if err != nil {
			h.writeEventError(w, err)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) PublishEvent(w http.ResponseWriter, r *http.Request) {
	h.lifecycleAction(w, r, h.lifecycle.Publish, "only upcoming events can be published")
}

func (h *Handlers) UnpublishEvent(w http.ResponseWriter, r *http.Request) {
	h.lifecycleAction(w, r, h.lifecycle.Unpublish, "only live events can be unpublished")
}

func (h *Handlers) CancelEvent(w http.ResponseWriter, r *http.Request) {
	h.lifecycleAction(w, r, h.lifecycle.Cancel, "event cannot be cancelled")
}

func (h *Handlers) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := eventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.repo.DeleteEvent(r.Context(), id); err != nil {
		h.writeEventError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) lifecycleAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, id int64) error, conflictMsg string) {
	id, err := eventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	err = action(r.Context(), id)
	if errors.Is(err, domain.ErrConflict) {
		writeError(w, http.StatusConflict, conflictMsg)
		return
	}
	if err != nil {
		h.writeEventError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) writeEventError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func eventID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func eventJSON(ev *domain.Event) map[string]interface{} {
	return map[string]interface{}{
		"event_id":      ev.ID,
		"title":         ev.Title,
		"price":         ev.Price,
		"total_tickets": ev.TotalTickets,
		"sold_count":    ev.SoldCount,
		"remaining":     ev.Remaining(),
		"status":        ev.Status,
		"starts_at":     ev.StartsAt.Format(time.RFC3339),
	}
}
