// Package router assembles the HTTP surface of the chat gateway.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/ops-online-support/chattia-gateway/internal/http/middleware"
	"github.com/ops-online-support/chattia-gateway/internal/webchat"
	"github.com/ops-online-support/chattia-gateway/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Webchat            *webchat.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	RateLimitPerSec    float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.RateLimitPerSec > 0 && cfg.RateLimitBurst > 0 {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSec, cfg.RateLimitBurst))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Webchat != nil {
		r.Route("/v1", func(v1 chi.Router) {
			v1.Post("/chat", cfg.Webchat.HandleChat)
			v1.Get("/chat/ws", cfg.Webchat.HandleWebSocket)
			v1.Get("/session", cfg.Webchat.HandleSession)
			v1.Post("/session/reset", cfg.Webchat.HandleSessionReset)
			v1.Get("/transcript", cfg.Webchat.HandleTranscript)
			v1.Get("/analytics", cfg.Webchat.HandleAnalytics)
			v1.Get("/audit", cfg.Webchat.HandleAudit)
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
