package http

import (
	"crypto/rsa"
	"net/http"
	"time"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/idempotency"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/observability"
	"github.com/abhayrajpersonal/Turfex-sub001/internal/rateLimit"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterOptions struct {
	Logger         observability.Logger
	RateLimiter    *rateLimit.RateLimiter
	Idempotency    *idempotency.Idempotency
	JWTKey         *rsa.PublicKey
	AllowedOrigins []string
	StoreTimeout   time.Duration
	PerIPLimit     int
	PerUserLimit   int
}

func SetupRouter(h *Handlers, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(opts.Logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Idempotent-Replayed"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(TimeoutMiddleware(opts.StoreTimeout))
		r.Use(RateLimitMiddleware(opts.RateLimiter, opts.PerIPLimit, opts.PerUserLimit))

		r.Get("/v1/venues/{venueID}/availability", h.Availability)
		// Called by the payment provider, which carries no user token.
		r.Post("/v1/payments/verify", h.VerifyPayment)

		r.Group(func(r chi.Router) {
			r.Use(JWTMiddleware(opts.JWTKey, opts.Logger))
			r.Use(RateLimitMiddleware(opts.RateLimiter, 0, opts.PerUserLimit))

			r.With(IdempotencyMiddleware(opts.Idempotency, opts.Logger)).Post("/v1/bookings", h.CreateBooking)
			r.Get("/v1/bookings/{id}", h.GetBooking)
			r.Post("/v1/bookings/{id}/cancel", h.CancelBooking)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = writeJSONError(w, http.StatusNotFound, "not found")
	})
	return r
}
