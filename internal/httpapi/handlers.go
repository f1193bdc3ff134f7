package httpapi

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"manifold/internal/discovery"
)

// handleCountryOptions returns the allowed country/service-type values for
// the UI dropdowns (spec.md §6's /country/ endpoint, data-only — the HTML
// rendering itself is a presentation-layer concern out of scope here).
func (s *Server) handleCountryOptions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"countries":     s.countries,
		"service_types": s.serviceTypes,
	})
}

// handleProceedToChat runs get_or_create and redirects to the streaming
// chat endpoint (spec.md §6: 303 redirect after get_or_create).
func (s *Server) handleProceedToChat(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	country := firstNonEmpty(r.FormValue("country"), r.URL.Query().Get("country"))
	serviceType := firstNonEmpty(r.FormValue("service_type"), r.URL.Query().Get("service_type"))
	if country == "" || serviceType == "" {
		respondError(w, http.StatusBadRequest, errors.New("country and service_type are required"))
		return
	}

	var sessionID *uuid.UUID
	if raw := firstNonEmpty(r.FormValue("session_id"), r.URL.Query().Get("session_id")); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Errorf("invalid session_id: %w", err))
			return
		}
		sessionID = &parsed
	}

	session, _, err := s.sessions.GetOrCreate(r.Context(), sessionID, nil, country, serviceType)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}

	target := fmt.Sprintf("/chat-public/?session_id=%s&country=%s&service_type=%s", session.SessionID, country, serviceType)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// handleChatStream is the streaming chat endpoint (spec.md §6): accepts one
// user message per turn and emits the agent/workflow event stream as
// `data: <json>\n\n` SSE frames until the turn ends (a workflow
// complete/no_results/error/cancelled event, or a conversational final).
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	rawSessionID := query.Get("session_id")
	country := query.Get("country")
	serviceType := query.Get("service_type")
	message := query.Get("message")
	if rawSessionID == "" || message == "" {
		respondError(w, http.StatusBadRequest, errors.New("session_id and message are required"))
		return
	}
	sessionID, err := uuid.Parse(rawSessionID)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid session_id: %w", err))
		return
	}
	if _, err := s.sessions.Get(r.Context(), sessionID); err != nil {
		respondError(w, statusFromError(err), err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writer := bufio.NewWriter(w)
	events := make(chan discovery.Event, 32)
	done := make(chan error, 1)
	go func() {
		defer close(events)
		done <- s.orchestrator.Handle(r.Context(), events, sessionID, message, country, serviceType)
	}()

	for evt := range events {
		writeSSE(writer, evt.MarshalMap())
		flusher.Flush()
	}
	if err := <-done; err != nil && !errors.Is(err, r.Context().Err()) {
		writeSSE(writer, map[string]any{"type": "error", "message": err.Error()})
		flusher.Flush()
	}
}

func writeSSE(w *bufio.Writer, payload map[string]any) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", body)
	_ = w.Flush()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, discovery.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, discovery.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, discovery.ErrClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
