// Package httpapi exposes the discovery platform's HTTP surface from
// spec.md §6, adapted from manifold's stdlib-ServeMux method-pattern
// routing idiom (the original server.go wired a playground API the same
// way).
package httpapi

import (
	"net/http"

	"manifold/internal/discovery/llmclient"
	"manifold/internal/discovery/orchestrator"
	"manifold/internal/discovery/sessionstore"
)

// Server exposes the session-selection and streaming chat endpoints.
type Server struct {
	sessions     sessionstore.Store
	orchestrator *orchestrator.Orchestrator
	llm          *llmclient.Client
	countries    []string
	serviceTypes []string
	mux          *http.ServeMux
}

func NewServer(sessions sessionstore.Store, orch *orchestrator.Orchestrator, countries, serviceTypes []string) *Server {
	s := &Server{sessions: sessions, orchestrator: orch, countries: countries, serviceTypes: serviceTypes, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /country/", s.handleCountryOptions)
	s.mux.HandleFunc("POST /proceed-to-chat", s.handleProceedToChat)
	s.mux.HandleFunc("GET /chat-public/", s.handleChatStream)
}
