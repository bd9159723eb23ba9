// Package api serves the read-only REST view of recorded sessions.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Harsha-Reddy21/AI-Onboarding/logger"
	"github.com/Harsha-Reddy21/AI-Onboarding/process"
	"github.com/Harsha-Reddy21/AI-Onboarding/session"
)

// RunLookup finds a session that is still held in memory.
type RunLookup interface {
	Get(sessionID string) *process.Run
	Cancel(sessionID string) bool
}

type SessionHandler struct {
	store     session.Store
	runs      RunLookup
	configFor process.ConfigFunc
}

func NewSessionHandler(store session.Store, runs RunLookup, configFor process.ConfigFunc) *SessionHandler {
	return &SessionHandler{store: store, runs: runs, configFor: configFor}
}

func (h *SessionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", h.HandleList)
	mux.HandleFunc("GET /api/sessions/{id}", h.HandleGet)
	mux.HandleFunc("GET /api/sessions/{id}/timeline", h.HandleTimeline)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.HandleDelete)
}

func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	log := logger.NewRequestLogger()

	sessions, err := h.store.List(r.Context())
	if err != nil {
		log.Error("failed to list sessions", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	meta, found, err := h.store.Get(r.Context(), id)
	if err != nil {
		logger.NewRequestLogger().Error("failed to get session", "sessionId", id, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, meta)
}

// HandleTimeline returns the live timeline of a running session, or rebuilds
// it from the frame log once the session has left memory.
func (h *SessionHandler) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if run := h.runs.Get(id); run != nil {
		writeJSON(w, http.StatusOK, run.Timeline())
		return
	}

	_, found, err := h.store.Get(r.Context(), id)
	if err != nil {
		logger.NewRequestLogger().Error("failed to get session", "sessionId", id, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	tl, err := session.Replay(r.Context(), h.store, id, h.configFor)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		logger.NewRequestLogger().Error("failed to replay session", "sessionId", id, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, tl)
}

func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	log := logger.NewRequestLogger()
	id := r.PathValue("id")

	h.runs.Cancel(id)
	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		log.Error("failed to delete session", "sessionId", id, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	log.Info("session deleted", "sessionId", id)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
