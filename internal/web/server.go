// Package web serves the local dashboard API: health, recent highlights and
// Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tsubaki/internal/storage"
	"tsubaki/internal/version"
	"tsubaki/pkg/reconnws"
)

// StateFunc reports one managed connection's state for the health payload.
type StateFunc func() reconnws.State

// Server is the local HTTP surface. It binds to loopback-style addresses
// only; there is no auth layer.
type Server struct {
	Addr        string
	Store       *storage.Store
	Connections map[string]StateFunc
}

// RunWithContext serves until ctx is cancelled; run in a goroutine.
func (s *Server) RunWithContext(ctx context.Context) {
	srv := &http.Server{Addr: s.Addr, Handler: s.routes()}

	go func() {
		<-ctx.Done()
		log.Println("[INFO] Shutting down web server...")
		srv.Shutdown(context.Background()) //nolint:errcheck
	}()

	log.Printf("[INFO] Web server listening on %s\n", s.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("[ERR] Web server exited: %v", err)
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/highlights", s.handleHighlights)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	connections := map[string]string{}
	for name, state := range s.Connections {
		connections[name] = state().String()
	}
	writeJSON(w, map[string]any{
		"app":         version.AppName,
		"version":     version.Version,
		"status":      "ok",
		"connections": connections,
	})
}

func (s *Server) handleHighlights(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	highlights, err := s.Store.ListHighlights(limit)
	if err != nil {
		log.Println("[ERR] Listing highlights failed:", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if highlights == nil {
		highlights = []storage.Highlight{}
	}
	writeJSON(w, highlights)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("[WARN] Writing response failed:", err)
	}
}
