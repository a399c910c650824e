// Package api serves run status over HTTP: JSON endpoints for runs and
// metrics, plus live event streams over SSE and WebSocket.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/flowsmith/flowsmith/internal/domain"
	"github.com/flowsmith/flowsmith/internal/observer"
)

// RunStore is the read surface the API needs from run persistence
type RunStore interface {
	ListRuns(limit int) ([]*domain.RunResult, error)
	GetRun(id string) (*domain.RunResult, error)
	ListEvents(runID string) ([]domain.Event, error)
}

// Server is the HTTP API server
type Server struct {
	store    RunStore
	observer *observer.Observer
	addr     string
	mux      *http.ServeMux
	sseHub   *SSEHub
	wsHub    *WSHub
}

// NewServer creates a new API server
func NewServer(store RunStore, obs *observer.Observer, addr string) *Server {
	s := &Server{
		store:    store,
		observer: obs,
		addr:     addr,
		mux:      http.NewServeMux(),
		sseHub:   NewSSEHub(),
		wsHub:    NewWSHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/runs", s.listRunsHandler())
	s.mux.HandleFunc("/api/runs/", s.getRunHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
	s.mux.HandleFunc("/ws", s.wsHandler())
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go s.sseHub.Run()
	go s.wsHub.Run()
	return http.ListenAndServe(s.addr, s.mux)
}

// Handle broadcasts a pipeline event to all connected clients. Implements
// the pipeline's event sink, so the server can be wired directly into a
// Runner's sink list.
func (s *Server) Handle(ev domain.Event) {
	s.sseHub.Broadcast(SSEEvent{Type: string(ev.State), Data: ev})
	s.wsHub.Broadcast(ev)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
