// Package router assembles the HTTP surface.
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/appointly/assistant/internal/http/handlers"
	httpmiddleware "github.com/appointly/assistant/internal/http/middleware"
	"github.com/appointly/assistant/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	ChatHandler        *handlers.ChatHandler
	WSHandler          *handlers.WSHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// ChatRatePerSecond caps per-IP chat throughput; zero disables limiting.
	ChatRatePerSecond float64
	ChatRateBurst     int
	// ChatRateIdleTTL controls when an idle client's bucket is evicted;
	// zero uses the middleware default.
	ChatRateIdleTTL time.Duration
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", cfg.ChatHandler.HealthCheck)

	r.Group(func(chat chi.Router) {
		if cfg.ChatRatePerSecond > 0 {
			chat.Use(httpmiddleware.RateLimit(httpmiddleware.RateLimitOptions{
				PerSecond: cfg.ChatRatePerSecond,
				Burst:     cfg.ChatRateBurst,
				IdleTTL:   cfg.ChatRateIdleTTL,
			}))
		}
		chat.Post("/chat", cfg.ChatHandler.HandleChat)
		if cfg.WSHandler != nil {
			chat.Get("/ws", cfg.WSHandler.HandleWS)
		}
	})

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
