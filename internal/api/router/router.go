package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/patient-portal/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/patient-portal/internal/http/middleware"
	"github.com/wolfman30/patient-portal/internal/payments"
	"github.com/wolfman30/patient-portal/internal/session"
	"github.com/wolfman30/patient-portal/pkg/logging"
)

// Config holds router configuration. Nil handlers leave their routes
// unmounted.
type Config struct {
	Logger             *logging.Logger
	CORSAllowedOrigins []string

	// Sessions resolves the portal session on /api routes.
	Sessions        func(http.Handler) http.Handler
	AuthRateLimiter *httpmiddleware.RateLimiter

	Health     http.Handler
	Auth       *handlers.AuthHandler
	Catalog    *handlers.CatalogHandler
	Flow       *handlers.FlowHandler
	Library    *handlers.LibraryHandler
	Calls      *handlers.CallsHandler
	CallSocket http.Handler

	StripeWebhook  *payments.StripeWebhookHandler
	FakePayments   *payments.FakePaymentsHandler
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks, hosted fake checkout)
	r.Group(func(public chi.Router) {
		if cfg.Health != nil {
			public.Handle("/health", cfg.Health)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.StripeWebhook != nil {
			public.Post("/webhooks/stripe", cfg.StripeWebhook.Handle)
		}
		if cfg.FakePayments != nil {
			public.Mount("/payments/fake", cfg.FakePayments.Routes())
		}
	})

	r.Route("/api", func(api chi.Router) {
		if cfg.Sessions != nil {
			api.Use(cfg.Sessions)
		}

		if cfg.Auth != nil {
			api.Route("/auth", func(auth chi.Router) {
				auth.Group(func(limited chi.Router) {
					if cfg.AuthRateLimiter != nil {
						limited.Use(httpmiddleware.RateLimit(cfg.AuthRateLimiter))
					}
					limited.Post("/login", cfg.Auth.Login)
					limited.Post("/register", cfg.Auth.Register)
				})
				auth.Post("/logout", cfg.Auth.Logout)
				auth.Get("/session", cfg.Auth.Current)
				auth.Get("/events", cfg.Auth.Events)
			})
		}

		if cfg.Catalog != nil {
			api.Route("/catalog", func(catalog chi.Router) {
				catalog.Get("/skills", cfg.Catalog.Skills)
				catalog.Get("/doctors", cfg.Catalog.Doctors)
				catalog.Get("/organization", cfg.Catalog.Organization)
				catalog.Get("/test-checkups", cfg.Catalog.TestCheckups)
			})
		}

		if cfg.Flow != nil {
			api.Route("/flow", func(f chi.Router) {
				f.Get("/", cfg.Flow.Get)
				f.Post("/specialty", cfg.Flow.Specialty)
				f.Post("/doctor", cfg.Flow.Doctor)
				f.Post("/detail", cfg.Flow.Detail)
				f.Post("/back", cfg.Flow.Back)
				f.Post("/reset", cfg.Flow.Reset)

				// steps that talk to the hospital API on the patient's behalf
				f.Group(func(authed chi.Router) {
					authed.Use(session.RequireAuth)
					authed.Post("/patient", cfg.Flow.Patient)
					authed.Post("/consultation", cfg.Flow.Consultation)
					authed.Get("/availability", cfg.Flow.Availability)
					authed.Post("/slot", cfg.Flow.Slot)
					authed.Post("/checkout", cfg.Flow.Checkout)
					authed.Post("/payment/complete", cfg.Flow.PaymentComplete)
					authed.Post("/add-more", cfg.Flow.AddMore)
				})
			})
		}

		api.Group(func(authed chi.Router) {
			authed.Use(session.RequireAuth)
			if cfg.Catalog != nil {
				authed.Get("/profile", cfg.Catalog.Profile)
				authed.Put("/profile", cfg.Catalog.UpdateProfile)
				authed.Get("/relatives", cfg.Catalog.Relatives)
				authed.Post("/relatives", cfg.Catalog.AddRelative)
				authed.Get("/appointments", cfg.Catalog.Appointments)
				authed.Post("/appointments/{id}/cancel", cfg.Catalog.CancelAppointment)
				authed.Post("/test-bookings", cfg.Catalog.BookTest)
			}
			if cfg.Library != nil {
				authed.Get("/bookmarks", cfg.Library.Bookmarks)
				authed.Post("/bookmarks/toggle", cfg.Library.Toggle)
				authed.Get("/history", cfg.Library.History)
			}
			if cfg.Calls != nil {
				authed.Post("/calls/invitations", cfg.Calls.Invite)
				authed.Post("/calls/token", cfg.Calls.Token)
			}
			if cfg.CallSocket != nil {
				authed.Handle("/calls/ws", cfg.CallSocket)
			}
		})
	})

	return r
}
