package api

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/starboard-io/starboard/internal/query"
	"github.com/starboard-io/starboard/internal/respcache"
)

// Server wraps the HTTP server and mux for the Starboard API.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
}

// NewServer creates a new API server wired with all routes. All routes
// are read-only; the /{owner}/{repo} short-URL pattern loses to the
// literal /api/ and /healthz prefixes under mux precedence.
func NewServer(listenAddress string, port int, q *query.Engine, cache *respcache.Cache) *Server {
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", HandleHealthz())

	mux.Handle("GET /api/leaderboard", HandleLeaderboard(q, cache))
	mux.Handle("GET /api/repo", HandleGetRepo(q, cache))
	mux.Handle("GET /api/repo/history", HandleRepoHistory(q, cache))
	mux.Handle("GET /api/rank", HandleRank(q, cache))

	mux.Handle("GET /{owner}/{repo}", HandleRepoRedirect(q))

	handler := RequestIDMiddleware(mux)

	srv := &http.Server{
		Addr:    net.JoinHostPort(listenAddress, strconv.Itoa(port)),
		Handler: handler,
	}

	return &Server{
		httpServer: srv,
		handler:    handler,
	}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
