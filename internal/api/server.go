// Package api is the pagepatch control plane: a small chi router exposing
// the running pages, the patch catalog, and the hit history over HTTP, plus
// a websocket feed of hits as they happen.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/hazyhaar/pagepatch/hitsink"
	"github.com/hazyhaar/pagepatch/internal/config"
	"github.com/hazyhaar/pagepatch/internal/guard"
	"github.com/hazyhaar/pagepatch/internal/runner"
	"github.com/hazyhaar/pagepatch/patches"
)

// PageRunner is what the API needs from the runner.
type PageRunner interface {
	Pages() []runner.PageStatus
	RunPage(ctx context.Context, cfg config.PageConfig) error
	Apply(ctx context.Context, pageID, patch string, args []string) error
	ClosePage(pageID string) error
}

// Server serves the control plane. Store and Stream are optional; their
// endpoints report 501 when absent.
type Server struct {
	runner PageRunner
	store  *hitsink.Store
	stream *hitsink.Stream
	logger *slog.Logger
	router chi.Router
}

var upgrader = websocket.Upgrader{
	// The control plane is not exposed publicly; cross-origin local
	// tooling is fine.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewServer builds the router.
func NewServer(r PageRunner, store *hitsink.Store, stream *hitsink.Stream, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{runner: r, store: store, stream: stream, logger: logger}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(guard.SecurityHeaders())
	mux.Use(guard.MaxBody(1 << 20))
	mux.Use(guard.NewRateLimiter(300, time.Minute).Middleware)

	mux.Get("/healthz", s.handleHealth)
	mux.Route("/api/v1", func(v1 chi.Router) {
		v1.Get("/patches", s.handlePatches)
		v1.Get("/pages", s.handlePages)
		v1.Post("/pages", s.handleRunPage)
		v1.Post("/pages/{id}/patches", s.handleApply)
		v1.Delete("/pages/{id}", s.handleClosePage)
		v1.Get("/hits", s.handleHits)
		v1.Get("/hits/stream", s.handleHitStream)
	})
	s.router = mux
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handlePatches(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, patches.Names())
}

func (s *Server) handlePages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.runner.Pages())
}

func (s *Server) handleRunPage(w http.ResponseWriter, r *http.Request) {
	var cfg config.PageConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if cfg.ID == "" || cfg.URL == "" {
		http.Error(w, "id and url required", http.StatusBadRequest)
		return
	}

	if err := s.runner.RunPage(r.Context(), cfg); err != nil {
		s.logger.Error("api: run page failed", "page", cfg.ID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"id": cfg.ID})
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req config.PatchConfig
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}

	pageID := chi.URLParam(r, "id")
	if err := s.runner.Apply(r.Context(), pageID, req.Name, req.Args); err != nil {
		s.logger.Error("api: apply failed",
			"page", pageID, "patch", req.Name, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]string{"page": pageID, "patch": req.Name})
}

func (s *Server) handleClosePage(w http.ResponseWriter, r *http.Request) {
	if err := s.runner.ClosePage(chi.URLParam(r, "id")); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHits(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "no hit store configured", http.StatusNotImplemented)
		return
	}

	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	hits, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("api: list hits failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, hits)
}

func (s *Server) handleHitStream(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		http.Error(w, "no hit stream configured", http.StatusNotImplemented)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("api: websocket upgrade failed", "error", err)
		return
	}
	s.stream.Attach(conn)

	// Clients only receive. The read pump exists to notice a disconnect
	// promptly instead of waiting for the next broadcast to fail.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.stream.Detach(conn)
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
