package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/ticket-waitlist/internal/idempotency"
	"github.com/robertarktes/ticket-waitlist/internal/observability"
	"github.com/robertarktes/ticket-waitlist/internal/rateLimit"
)

// SetupRouter wires the API. rl and idemp are optional.
func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter, ipLimit int, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		if rl != nil {
			r.Use(RateLimitMiddleware(rl, ipLimit))
		}
		if idemp != nil {
			r.Use(IdempotencyMiddleware(idemp))
		}

		r.Get("/healthz", h.Healthz)
		r.Get("/readyz", h.Readyz)

		r.Post("/events", h.CreateEvent)
		r.Route("/events/{eventID}", func(r chi.Router) {
			r.Patch("/capacity", h.UpdateCapacity)
			r.Get("/availability", h.Availability)
			r.Post("/cancel", h.CancelEvent)
			r.Post("/queue", h.Join)
			r.Get("/queue/position", h.QueuePosition)
			r.Post("/queue/process", h.ProcessQueue)
			r.Post("/offers/{entryID}/release", h.ReleaseOffer)
			r.Post("/offers/{entryID}/purchase", h.Purchase)
			r.Get("/tickets", h.EventTickets)
		})
		r.Post("/tickets/{ticketID}/refund", h.Refund)
		r.Post("/tickets/{ticketID}/use", h.MarkTicketUsed)
		r.Post("/tickets/{ticketID}/cancel", h.CancelTicket)
		r.Get("/users/{userID}/tickets", h.UserTickets)
	})

	return r
}
