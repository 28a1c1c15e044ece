package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Tyrone-Ward/nodeify/internal/api/middleware"
	"github.com/Tyrone-Ward/nodeify/internal/bridge"
	"github.com/Tyrone-Ward/nodeify/internal/handlers"
	"github.com/Tyrone-Ward/nodeify/internal/presence"
	"github.com/Tyrone-Ward/nodeify/internal/store"
)

// Gateway is the websocket endpoint mounted under /ws/{token} and /{token}.
type Gateway interface {
	http.Handler
	ConnectionCount() int
}

// Deps are the components the HTTP surface is built over.
type Deps struct {
	Store      store.DataStore
	Redis      *store.RedisStore // optional
	Presence   *presence.Directory
	Gateway    Gateway
	Dispatcher bridge.Dispatcher

	AllowedOrigins     []string
	RateLimitWhitelist []string
	AutoBlockEnabled   bool
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	limiter := middleware.NewRateLimiter(deps.Redis.Client(), logger, middleware.RateLimiterConfig{
		Whitelist:        deps.RateLimitWhitelist,
		AutoBlockEnabled: deps.AutoBlockEnabled,
	})
	r.Use(limiter.Middleware)

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Create handler and auth middleware
	h := handlers.NewHandler(deps.Store, deps.Redis, deps.Presence, deps.Dispatcher, deps.Gateway, logger)
	auth := middleware.NewAuthMiddleware(deps.Store, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/api", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Post("/message", h.SendMessage)

	// Authenticated routes (require client token)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireClientToken)

		r.Get("/who/{identity}", h.Who)
	})

	// Websocket handshakes carry the token as the last path segment
	r.Handle("/ws/{token}", deps.Gateway)
	r.Handle("/{token}", deps.Gateway)

	return r
}
