// Package statusapi exposes a small read-mostly HTTP surface for
// introspecting the engine's live state: relay connection status, image
// cache statistics, and P2P session list, patterned on the teacher's
// chi-based admin API.
package statusapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/941design/nostling/internal/imagecache"
	"github.com/941design/nostling/internal/p2p"
	"github.com/941design/nostling/internal/relaypool"
)

// Server serves a JSON introspection API over the engine's components.
type Server struct {
	addr      string
	relayPool *relaypool.Pool
	cache     *imagecache.Cache
	sessions  *p2p.Store
	startedAt time.Time
	router    *chi.Mux
}

// New wires the introspection server to a relay pool, image cache, and P2P
// session store. Any of cache/sessions may be nil when that component is
// disabled; the corresponding endpoint then reports an empty result.
func New(addr string, relayPool *relaypool.Pool, cache *imagecache.Cache, sessions *p2p.Store) *Server {
	s := &Server{
		addr:      addr,
		relayPool: relayPool,
		cache:     cache,
		sessions:  sessions,
		startedAt: time.Now(),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/api/relays", s.handleRelayStatus)
	r.Get("/api/cache/stats", s.handleCacheStats)
	r.Get("/api/p2p/sessions", s.handleP2PSessions)

	return r
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting status API", "addr", s.addr)

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Error("status API shutdown error", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("status API server error", "error", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
	}, http.StatusOK)
}

func (s *Server) handleRelayStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, s.relayPool.Statuses(), http.StatusOK)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		jsonResponse(w, imagecache.Stats{}, http.StatusOK)
		return
	}
	jsonResponse(w, s.cache.Stats(), http.StatusOK)
}

func (s *Server) handleP2PSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		jsonResponse(w, []*p2p.Session{}, http.StatusOK)
		return
	}
	list, err := s.sessions.ListSessions()
	if err != nil {
		slog.Error("list p2p sessions", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, list, http.StatusOK)
}

func jsonResponse(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}
