// Package router wires the HTTP surface: patient chat, clinical advisor,
// admin API and operational endpoints.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dentalchat-ai/platform/internal/admin"
	"github.com/dentalchat-ai/platform/internal/clinical"
	"github.com/dentalchat-ai/platform/internal/conversation"
	httpmiddleware "github.com/dentalchat-ai/platform/internal/http/middleware"
	"github.com/dentalchat-ai/platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger           *logging.Logger
	ChatHandler      *conversation.Handler
	ClinicalHandler  *clinical.Handler
	AdminHandler     *admin.Handler
	DashboardHandler *admin.DashboardHandler
	TokenResolver    httpmiddleware.TokenResolver
	AdminAuthSecret  string
	MetricsHandler   http.Handler
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.ChatHandler != nil {
		r.Post("/api/chat", cfg.ChatHandler.Chat)
	}

	if cfg.ClinicalHandler != nil && cfg.TokenResolver != nil {
		r.Route("/api/clinical", func(clinicalRoutes chi.Router) {
			clinicalRoutes.Use(httpmiddleware.ClientToken(cfg.TokenResolver, cfg.Logger))
			clinicalRoutes.Post("/chat", cfg.ClinicalHandler.Chat)
			clinicalRoutes.Get("/profile", cfg.ClinicalHandler.Profile)
		})
	}

	if cfg.AdminHandler != nil && cfg.AdminAuthSecret != "" {
		r.Route("/api/admin", func(adminRoutes chi.Router) {
			adminRoutes.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			adminRoutes.Get("/leads/{clientID}", cfg.AdminHandler.Leads)
			adminRoutes.Get("/deliveries/{clientID}", cfg.AdminHandler.Deliveries)
			adminRoutes.Get("/profiles/{clientID}", cfg.AdminHandler.GetProfile)
			adminRoutes.Put("/profiles/{clientID}", cfg.AdminHandler.PutProfile)
			adminRoutes.Delete("/profiles/{clientID}", cfg.AdminHandler.DeleteProfile)
			if cfg.DashboardHandler != nil {
				adminRoutes.Get("/dashboard/{clientID}", cfg.DashboardHandler.GetDashboard)
			}
		})
	}

	return r
}
