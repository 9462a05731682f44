package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/hrconsult-assistant/internal/conversation"
	"github.com/wolfman30/hrconsult-assistant/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/hrconsult-assistant/internal/http/middleware"
	"github.com/wolfman30/hrconsult-assistant/internal/leads"
	"github.com/wolfman30/hrconsult-assistant/internal/payments"
	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	LeadsHandler        *leads.Handler
	PaymentsHandler     *payments.Handler
	AdminConversations  *handlers.AdminConversationsHandler
	AdminPayments       *handlers.AdminPaymentsHandler
	AdminAuthSecret     string
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string
	RateLimiter         *httpmiddleware.RateLimiter
	HealthChecks        map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	origins := httpmiddleware.NewOriginPolicy(cfg.CORSAllowedOrigins)
	if !origins.Empty() {
		r.Use(httpmiddleware.CORS(origins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", healthHandler(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Visitor-facing endpoints share the per-IP budget.
	r.Group(func(public chi.Router) {
		if cfg.RateLimiter != nil {
			public.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		}

		if h := cfg.ConversationHandler; h != nil {
			public.Route("/chat", func(chat chi.Router) {
				chat.Post("/sessions", h.StartSession)
				chat.Route("/sessions/{sessionID}", func(s chi.Router) {
					s.Get("/", h.GetSession)
					s.Get("/messages", h.ListMessages)
					s.Post("/messages", h.PostMessage)
					s.Post("/stream", h.StreamMessage)
					s.Post("/cancel", h.CancelTurn)
				})
				chat.Get("/ws", h.WebSocket(conversation.NewUpgrader(origins.Allows)))
			})
		}

		if cfg.LeadsHandler != nil {
			public.Post("/leads/web", cfg.LeadsHandler.CreateWebLead)
		}

		if cfg.PaymentsHandler != nil {
			public.Route("/payments", func(p chi.Router) {
				p.Post("/orders", cfg.PaymentsHandler.CreateOrder)
				p.Post("/verify", cfg.PaymentsHandler.Verify)
			})
		}
	})

	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.LeadsHandler != nil {
				admin.Get("/leads", cfg.LeadsHandler.ListLeads)
			}
			if cfg.AdminConversations != nil {
				admin.Get("/conversations/{sessionID}", cfg.AdminConversations.GetConversation)
			}
			if cfg.AdminPayments != nil {
				admin.Get("/payments/{orderID}", cfg.AdminPayments.GetTransaction)
			}
		})
	}

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		resp := map[string]any{"status": "ok"}
		deps := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				deps[name] = err.Error()
				status = http.StatusServiceUnavailable
				resp["status"] = "degraded"
				continue
			}
			deps[name] = "ok"
		}
		if len(deps) > 0 {
			resp["dependencies"] = deps
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
