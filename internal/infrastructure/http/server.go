// Package http provides the HTTP server infrastructure.
// Clean Architecture: Framework/driver layer - outermost circle.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/0xcro3dile/docchat-go/internal/domain/usecases"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Server is the HTTP server for the chat and ingestion API.
type Server struct {
	chat     *usecases.ChatUseCase
	ingest   *usecases.IngestUseCase
	checks   map[string]HealthCheck
	upgrader websocket.Upgrader
	addr     string
}

// NewServer creates a new HTTP server.
func NewServer(chat *usecases.ChatUseCase, ingest *usecases.IngestUseCase, addr string) *Server {
	return &Server{
		chat:     chat,
		ingest:   ingest,
		checks:   make(map[string]HealthCheck),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		addr:     addr,
	}
}

// AddHealthCheck registers a dependency probed by /api/health.
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

// Handler returns the routed API with logging and CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/chat/ws", s.handleChatWS)
	mux.HandleFunc("POST /api/ingest", s.handleIngest)
	mux.HandleFunc("GET /api/documents", s.handleListDocuments)
	mux.HandleFunc("GET /api/documents/{id}", s.handleGetDocument)
	mux.HandleFunc("POST /api/documents/{id}/retrigger", s.handleRetrigger)
	mux.HandleFunc("GET /api/health", healthHandler(s.checks))

	return corsMiddleware(loggingMiddleware("api", mux))
}

// Start runs the HTTP server until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      300 * time.Second, // Longer for streaming
	}
	return serve(ctx, "api", server)
}

// healthHandler reports ok, or 503 naming every failed check.
func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		failed := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "failed": failed})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// serve runs server until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, name string, server *http.Server) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Str("component", name).Msg("shutdown did not complete cleanly")
		}
	}()

	log.Info().Str("component", name).Str("addr", server.Addr).Msg("server starting")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(err, "%s server", name)
	}
	return nil
}
