package api

import (
	"encoding/json"
	"net/http"

	"github.com/forgekit/forge/internal/history"
)

// Server exposes the runtime directory snapshots over HTTP. It holds no run
// state of its own; every request re-reads the files the run loop persists.
type Server struct {
	runtimeDir string
	addr       string
	mux        *http.ServeMux
	hub        *Hub
	history    *history.Store
}

// NewServer creates an API server for one runtime directory. The history
// store is optional; without it /api/history serves an empty list.
func NewServer(runtimeDir string, hist *history.Store, addr string) *Server {
	s := &Server{
		runtimeDir: runtimeDir,
		addr:       addr,
		mux:        http.NewServeMux(),
		hub:        NewHub(),
	}
	s.history = hist
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/progress", s.progressHandler())
	s.mux.HandleFunc("/api/plan", s.planHandler())
	s.mux.HandleFunc("/api/breaker", s.breakerHandler())
	s.mux.HandleFunc("/api/history", s.historyHandler())
	s.mux.HandleFunc("/api/run/stop", s.stopRunHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
	s.mux.HandleFunc("/ws", s.wsHandler())
}

// Start runs the event hub, the filesystem watcher, and the HTTP listener.
// It blocks until the listener fails.
func (s *Server) Start() error {
	go s.hub.Run()

	watcher, err := s.watchRuntimeDir()
	if err != nil {
		return err
	}
	defer watcher.Close()

	return http.ListenAndServe(s.addr, s.mux)
}

// Handler returns the route mux, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Broadcast pushes an event to all SSE and websocket clients
func (s *Server) Broadcast(event Event) {
	s.hub.Broadcast(event)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
