package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"brainflow-backend/application/services/session"
	"brainflow-backend/infrastructure/config"
	"brainflow-backend/interfaces/http/rest/handlers"
	"brainflow-backend/interfaces/http/rest/middleware"
	"brainflow-backend/pkg/auth"
	"brainflow-backend/pkg/observability"

	"brainflow-backend/application/ports"
)

// Router creates and configures the HTTP router
type Router struct {
	config   *config.Config
	sessions *session.Manager
	store    ports.PageStore
	limiter  auth.RateLimiter
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	cfg *config.Config,
	sessions *session.Manager,
	store ports.PageStore,
	limiter auth.RateLimiter,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Router {
	return &Router{
		config:   cfg,
		sessions: sessions,
		store:    store,
		limiter:  limiter,
		metrics:  metrics,
		logger:   logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))

	if rt.config.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:3000", "https://*.brainflow.app"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-User-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Health check
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)

	if rt.config.EnableMetrics && rt.metrics != nil {
		router.Handle("/metrics", rt.metrics.Handler())
	}

	// API v1 routes
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(rt.authOptions()))

		editHandler := handlers.NewEditHandler(rt.sessions, rt.logger)
		r.Route("/edits", func(r chi.Router) {
			r.Post("/", editHandler.AppendEdit)
			r.Post("/flush", editHandler.Flush)
		})
		r.Route("/lines", func(r chi.Router) {
			r.Get("/unorganized", editHandler.ListUnorganized)
			r.Get("/{lineID}/history", editHandler.LineHistory)
		})

		treeHandler := handlers.NewTreeHandler(rt.store, rt.logger)
		r.Get("/tree", treeHandler.GetTree)
	})

	return router
}

func (rt *Router) authOptions() middleware.Options {
	opts := middleware.Options{
		Limiter:        rt.limiter,
		AllowAnonymous: rt.config.IsDevelopment(),
	}
	if rt.config.JWTSecret != "" {
		validator, err := auth.NewJWTValidator(auth.JWTConfig{
			SecretKey: rt.config.JWTSecret,
			Issuer:    rt.config.JWTIssuer,
		})
		if err == nil {
			opts.Validator = validator
		} else {
			rt.logger.Error("Failed to create JWT validator", zap.Error(err))
		}
	}
	return opts
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck reports whether the store answers queries
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := rt.store.ListTree(req.Context(), "readiness-probe"); err != nil {
		rt.logger.Warn("Readiness check failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
