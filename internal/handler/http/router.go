package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samiralam04/Note-app/internal/auth"
	"github.com/samiralam04/Note-app/pkg/health"
	"github.com/samiralam04/Note-app/pkg/middleware"
)

// ServiceName labels metrics and spans emitted by the HTTP layer.
const ServiceName = "note-app"

// RouterConfig carries the dependencies of NewRouter.
type RouterConfig struct {
	AuthService   AuthService
	NoteService   NoteService
	JWTManager    *auth.JWTManager
	HealthHandler *health.Handler
	RateLimiter   *middleware.RateLimiter
	CORS          middleware.CORSConfig
	Logger        *slog.Logger
}

// NewRouter creates a chi router with all note-app routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.PrometheusMetrics(ServiceName))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Note-App Backend API is running!"))
	})

	// Health check endpoints
	r.Get("/health/live", cfg.HealthHandler.LivenessHandler())
	r.Get("/health/ready", cfg.HealthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	tokenValidator := func(token string) (*middleware.Claims, error) {
		claims, err := cfg.JWTManager.ValidateToken(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{UserID: claims.UserID}, nil
	}

	authHandler := NewAuthHandler(cfg.AuthService, logger)
	noteHandler := NewNoteHandler(cfg.NoteService, logger)

	r.Route("/api", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware(logger))
		}
		r.Use(ContentTypeJSON)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/request-otp", authHandler.RequestOTP)
			r.Post("/login", authHandler.Login)

			// Responses below carry session tokens or profile data.
			r.Group(func(r chi.Router) {
				r.Use(middleware.NoStore)

				r.Post("/verify-otp", authHandler.VerifyOTP)
				r.Post("/google", authHandler.GoogleLogin)
				r.Get("/google/login", authHandler.GoogleRedirect)
				r.Get("/google/callback", authHandler.GoogleCallback)

				r.With(middleware.Auth(tokenValidator)).Get("/me", authHandler.Me)
			})
		})

		r.Route("/notes", func(r chi.Router) {
			r.Use(middleware.Auth(tokenValidator))
			r.Use(middleware.NoStore)

			r.Get("/", noteHandler.List)
			r.Post("/", noteHandler.Create)
			r.Get("/{id}", noteHandler.Get)
			r.Put("/{id}", noteHandler.Update)
			r.Delete("/{id}", noteHandler.Delete)
		})
	})

	return r
}
