package handlers

import (
	"net/http"
	"time"

	"github.com/civicwatch/incident-portal/internal/apperr"
	"github.com/civicwatch/incident-portal/internal/middleware"
	"github.com/civicwatch/incident-portal/internal/models"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterDeps wires the HTTP surface to its collaborators.
type RouterDeps struct {
	Logger     *zap.Logger
	Verifier   middleware.TokenVerifier
	Accounts   AccountService
	Incidents  IncidentService
	Stats      StatsService
	Categories CategoryLister
	DB         Pinger

	AllowOrigin func(r *http.Request, origin string) bool
	// Optional. Nil disables the corresponding limit.
	GlobalLimiter *middleware.Limiter
	CreateLimiter *middleware.Limiter

	RequestTimeout time.Duration
}

// NewRouter builds the chi router for the API.
func NewRouter(d RouterDeps) http.Handler {
	sugar := d.Logger.Sugar()
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}

	authHandler := NewAuthHandler(d.Accounts, sugar)
	profileHandler := NewProfileHandler(d.Accounts, sugar)
	incidentHandler := NewIncidentHandler(d.Incidents, d.Stats, sugar)
	categoryHandler := NewCategoryHandler(d.Categories, sugar)
	healthHandler := NewHealthHandler(d.DB, sugar)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger(d.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(d.RequestTimeout))
	r.Use(middleware.SecureHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  d.AllowOrigin,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, apperr.KindNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed", "code": "method_not_allowed"})
	})

	// Health checks stay outside the rate limit for probes.
	r.Get("/health", healthHandler.Check)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api", func(r chi.Router) {
		r.Use(limit(d.GlobalLimiter))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/request-reset", authHandler.RequestReset)
			r.Post("/reset", authHandler.Reset)
		})

		// Everything below requires a bearer token
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(d.Verifier))

			r.Get("/profiles/me", profileHandler.Me)
			r.Get("/profiles/{id}", profileHandler.ByID)

			r.Get("/categories", categoryHandler.List)

			r.Route("/incidents", func(r chi.Router) {
				r.Get("/", incidentHandler.List)
				r.With(limit(d.CreateLimiter)).Post("/", incidentHandler.Create)
				r.Get("/stats", incidentHandler.Stats)
				r.Get("/{id}", incidentHandler.Get)
				r.Put("/{id}", incidentHandler.Edit)
				r.Delete("/{id}", incidentHandler.Delete)
				r.With(middleware.RequireRole(models.RoleAuthority)).Patch("/{id}", incidentHandler.UpdateStatus)
				r.Get("/{id}/updates", incidentHandler.History)
			})
		})
	})

	return r
}

func limit(l *middleware.Limiter) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return l.Handler
}
