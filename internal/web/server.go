// Package web provides the HTTP surface for dispatchd: the lead ingest
// webhook and a minimal JSON API over the ticket and finance engines (ticket
// list/get/take/close and finance reports), stripped of the teacher's dashboard/SSE/template concerns (that
// UI belongs to the out-of-scope bot/dashboard, per SPEC_FULL.md §1).
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/fieldops/dispatchcore/access"
	"github.com/fieldops/dispatchcore/finance"
	"github.com/fieldops/dispatchcore/internal/db"
	"github.com/fieldops/dispatchcore/lead"
	"github.com/fieldops/dispatchcore/link"
	"github.com/fieldops/dispatchcore/ticket"
)

// Server is the dispatchd HTTP server.
type Server struct {
	store  *db.Store
	logger *slog.Logger
	server *http.Server

	webhookSecret string

	tickets *ticket.Engine
	leads   *lead.Engine
	finance *finance.Engine
	links   *link.Engine
	access  *access.Filter
}

// NewServer wires the HTTP surface over the already-constructed engines,
// matching the teacher's NewServer(database, logger) + separately-wired
// collaborators shape.
func NewServer(store *db.Store, logger *slog.Logger, webhookSecret string, tickets *ticket.Engine, leads *lead.Engine, financeEngine *finance.Engine, links *link.Engine, accessFilter *access.Filter) *Server {
	return &Server{
		store:         store,
		logger:        logger,
		webhookSecret: webhookSecret,
		tickets:       tickets,
		leads:         leads,
		finance:       financeEngine,
		links:         links,
		access:        accessFilter,
	}
}

// Start starts the HTTP server, blocking until it stops.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /webhook/lead", s.handleLeadWebhook)

	mux.HandleFunc("GET /api/tickets", s.apiListTickets)
	mux.HandleFunc("GET /api/tickets/{id}", s.apiGetTicket)
	mux.HandleFunc("POST /api/tickets/{id}/take", s.apiTakeTicket)
	mux.HandleFunc("POST /api/tickets/{id}/close", s.apiCloseTicket)

	mux.HandleFunc("GET /api/finance/master/{id}", s.apiMasterMoney)
	mux.HandleFunc("GET /api/finance/project-summary", s.apiProjectSummary)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.withLogging(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting dispatchd server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// withLogging wraps a handler with request logging, matching the teacher's
// withLogging middleware.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

// jsonResponse writes a JSON response, matching the teacher's jsonResponse.
func (s *Server) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode json response", "error", err)
	}
}

// jsonError writes a JSON error response, matching the teacher's jsonError.
func (s *Server) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		s.logger.Error("failed to encode json error response", "error", err)
	}
}
