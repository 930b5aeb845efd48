package api

import (
	"net/http"

	"github.com/Rrens/omnichannel-session/internal/api/handler"
	customMiddleware "github.com/Rrens/omnichannel-session/internal/api/middleware"
	"github.com/Rrens/omnichannel-session/internal/config"
	"github.com/Rrens/omnichannel-session/internal/metrics"
	"github.com/Rrens/omnichannel-session/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Dependencies are the wired services the router exposes.
// Limiter may be nil to disable rate limiting.
type Dependencies struct {
	Sessions *service.SessionService
	Auth     *service.AuthService
	Metrics  *metrics.Metrics
	Limiter  customMiddleware.Limiter
	Ready    map[string]handler.Pinger
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger(deps.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.MiddlewareTimeout))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", handler.HeaderSessionToken, handler.HeaderPhone},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	sessionHandler := handler.NewSessionHandler(deps.Sessions)
	authHandler := handler.NewAuthHandler(deps.Auth)

	r.Get("/health", handler.HealthCheck(deps.Sessions))
	r.Get("/ready", handler.ReadyCheck(deps.Ready))
	if cfg.Metrics.Enabled && deps.Metrics != nil {
		r.Handle(cfg.Metrics.Path, deps.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if cfg.Security.RateLimit.Enabled && deps.Limiter != nil {
			r.Use(customMiddleware.NewRateLimitMiddleware(deps.Limiter).Limit)
		}

		r.Route("/session", func(r chi.Router) {
			r.Post("/start", sessionHandler.Start)
			r.Get("/restore", sessionHandler.Restore)
			r.Post("/update", sessionHandler.Update)
			r.Post("/end", sessionHandler.End)
			r.Post("/login", authHandler.SessionLogin)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/context", sessionHandler.Context)
				r.Get("/summary", sessionHandler.Summary)
				r.Post("/summary", sessionHandler.SetSummary)
				r.Get("/recommendations", sessionHandler.Recommendations)
				r.Get("/cart", sessionHandler.Cart)
			})
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.Signup)
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Post("/qr-init", authHandler.QRInit)
			r.Post("/qr-verify", authHandler.QRVerify)
		})
	})

	return r
}
