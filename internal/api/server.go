package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"haintegrations/internal/coordinator"
	"haintegrations/internal/entity"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// IntegrationStatus is the status of one configured entry
type IntegrationStatus struct {
	EntryID      string                 `json:"entry_id"`
	Domain       string                 `json:"domain"`
	Name         string                 `json:"name"`
	State        string                 `json:"state"`
	Error        string                 `json:"error,omitempty"`
	Coordinators []coordinator.Stats    `json:"coordinators,omitempty"`
	Diagnostics  map[string]interface{} `json:"diagnostics,omitempty"`
}

// Provider is implemented by the integration host
type Provider interface {
	Integrations() []IntegrationStatus
	// EntityStates returns the entities of every entry of a domain; ok is
	// false for an unknown domain
	EntityStates(domain string) (states []entity.State, ok bool)
	// Refresh refreshes every coordinator of an entry
	Refresh(ctx context.Context, entryID string) error
}

// ErrUnknownEntry is matched by Refresh errors for entries that do not exist
var ErrUnknownEntry = errors.New("unknown entry")

// Server provides the HTTP status API
type Server struct {
	provider Provider
	logger   *zap.Logger
	router   chi.Router
	server   *http.Server
}

// NewServer creates a new API server listening on addr
func NewServer(provider Provider, logger *zap.Logger, addr string) *Server {
	s := &Server{
		provider: provider,
		logger:   logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, s.logRequests)
	r.Get("/", s.handleSitemap)
	r.Get("/health", s.handleHealth)
	r.Route("/api/integrations", func(r chi.Router) {
		r.Get("/", s.handleIntegrations)
		r.Get("/{domain}/entities", s.handleEntities)
	})
	r.Post("/api/entries/{entryID}/refresh", s.handleRefresh)
	r.NotFound(s.handleSitemap)
	s.router = r

	s.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIntegrations(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"integrations": s.provider.Integrations(),
	})
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	states, ok := s.provider.EntityStates(domain)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("unknown domain %q", domain),
		})
		return
	}
	if states == nil {
		states = []entity.State{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"domain":   domain,
		"entities": states,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryID")
	err := s.provider.Refresh(r.Context(), entryID)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
	case errors.Is(err, ErrUnknownEntry):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

var endpoints = []Endpoint{
	{Path: "/", Method: "GET", Description: "This sitemap - lists all available API endpoints"},
	{Path: "/health", Method: "GET", Description: "Health check endpoint - returns {\"status\": \"ok\"}"},
	{Path: "/api/integrations", Method: "GET", Description: "Configured entries with coordinator statistics"},
	{Path: "/api/integrations/{domain}/entities", Method: "GET", Description: "Current entity states of a domain"},
	{Path: "/api/entries/{entry_id}/refresh", Method: "POST", Description: "Refresh every coordinator of an entry now"},
}

// handleSitemap lists the endpoints. Unknown paths get the sitemap with a 404.
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if r.URL.Path != "/" {
		status = http.StatusNotFound
	}

	preferHTML := strings.Contains(r.Header.Get("Accept"), "text/html")
	if preferHTML {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head>
    <title>Integration Host API</title>
    <style>
        body { font-family: monospace; margin: 40px; background: #1e1e1e; color: #d4d4d4; }
        h1 { color: #4ec9b0; }
        .endpoint { background: #2d2d2d; padding: 15px; margin: 10px 0; border-left: 3px solid #007acc; }
        .method { color: #4ec9b0; font-weight: bold; }
        .path { color: #ce9178; }
        .description { color: #9cdcfe; margin-top: 5px; }
    </style>
</head>
<body>
    <h1>Integration Host API</h1>
`)
		for _, ep := range endpoints {
			fmt.Fprintf(w, `    <div class="endpoint">
        <div><span class="method">%s</span> <span class="path">%s</span></div>
        <div class="description">%s</div>
    </div>
`, ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprint(w, "</body>\n</html>\n")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprintf(w, "Integration Host API\n")
		fmt.Fprintf(w, "====================\n\n")
		fmt.Fprintf(w, "Available endpoints:\n\n")
		for _, ep := range endpoints {
			fmt.Fprintf(w, "  %-6s %-36s %s\n", ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprintf(w, "\nExample:\n\n")
		fmt.Fprintf(w, "  curl http://localhost:8080/api/integrations | jq\n")
	}
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
