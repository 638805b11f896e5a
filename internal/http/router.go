package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ticketline/booking/internal/observability"
	"github.com/ticketline/booking/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(RateLimitMiddleware(rl))

	r.With(IdempotencyKeyMiddleware).Post("/v1/bookings", h.CreateBooking)
	r.Get("/v1/bookings/{id}", h.GetBooking)
	r.Get("/v1/users/{id}/bookings", h.ListUserBookings)

	r.Get("/v1/events", h.ListEvents)
	r.Post("/v1/events", h.CreateEvent)
	r.Get("/v1/events/{id}", h.GetEvent)
	r.Patch("/v1/events/{id}", h.UpdateEvent)
	r.Delete("/v1/events/{id}", h.DeleteEvent)
	r.Post("/v1/events/{id}/publish", h.PublishEvent)
	r.Post("/v1/events/{id}/unpublish", h.UnpublishEvent)
	r.Post("/v1/events/{id}/cancel", h.CancelEvent)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
