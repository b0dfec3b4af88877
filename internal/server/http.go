package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/alfredjeanlab/baywatch/internal/model"
	"github.com/alfredjeanlab/baywatch/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// SessionList is the body of GET /v1/sessions.
type SessionList struct {
	Sessions []*model.Session `json:"sessions"`
	Total    int              `json:"total"`
}

// EventList is the body of GET /v1/sessions/{id}/events.
type EventList struct {
	Events []*model.Event `json:"events"`
}

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("GET /v1/sessions/{id}/events", s.handleGetSessionEvents)
	mux.HandleFunc("GET "+streamPath, s.handleEventStream)
	return AuthMiddleware(authToken, mux)
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus handles GET /v1/status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

// handleListSessions handles GET /v1/sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseSessionFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessions, total, err := s.store.ListSessions(r.Context(), filter)
	if err != nil {
		s.logger.Error("list sessions", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}
	s.withLive(sessions...)
	writeJSON(w, http.StatusOK, SessionList{Sessions: sessions, Total: total})
}

// handleGetSession handles GET /v1/sessions/{id}.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.store.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error("get session", "session", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	live := []*model.Session{sess}
	s.withLive(live...)
	writeJSON(w, http.StatusOK, live[0])
}

// handleGetSessionEvents handles GET /v1/sessions/{id}/events.
func (s *Server) handleGetSessionEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetSession(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("get session", "session", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	evts, err := s.store.GetEvents(r.Context(), id)
	if err != nil {
		s.logger.Error("get events", "session", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to get events")
		return
	}
	if evts == nil {
		evts = []*model.Event{}
	}
	writeJSON(w, http.StatusOK, EventList{Events: evts})
}

func parseSessionFilter(r *http.Request) (model.SessionFilter, error) {
	q := r.URL.Query()
	filter := model.SessionFilter{
		TagID: q.Get("tag"),
		Limit: defaultListLimit,
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, inputError("limit must be a non-negative integer")
		}
		if n > 0 {
			filter.Limit = min(n, maxListLimit)
		}
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, inputError("offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	if v := q.Get("open"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, inputError("open must be true or false")
		}
		filter.Open = &b
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, inputError("since must be an RFC 3339 timestamp")
		}
		filter.Since = &t
	}
	return filter, nil
}

// inputError indicates invalid user input and maps to 400.
type inputError string

func (e inputError) Error() string { return string(e) }

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
