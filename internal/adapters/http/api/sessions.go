package api

import (
	"context"
	"net/http"

	service "github.com/okian/repsense/internal/app"
	"github.com/okian/repsense/internal/domain/model"
)

// SessionDependencies defines the session lifecycle operations.
type SessionDependencies interface {
	CreateSession(ctx context.Context, streamMode *bool) (service.SessionInfo, error)
	Session(ctx context.Context, id string) (service.SessionInfo, error)
	CloseSession(ctx context.Context, id string) error
	ResetSession(ctx context.Context, id string) (service.SessionInfo, error)
	History(ctx context.Context, id string) ([]model.RepEvent, error)
	Totals(ctx context.Context, id string) (map[string]int, error)
}

// createSessionRequest is the optional body of POST /sessions.
type createSessionRequest struct {
	StreamMode *bool `json:"stream_mode"`
}

type historyResponse struct {
	SessionID string           `json:"session_id"`
	Events    []model.RepEvent `json:"events"`
	Totals    map[string]int   `json:"totals"`
}

// SessionsHandler handles session lifecycle requests.
type SessionsHandler struct {
	deps SessionDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// HandleCreate handles POST /sessions.
func (h *SessionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	info, err := h.deps.CreateSession(r.Context(), req.StreamMode)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Location", "/sessions/"+info.ID)
	writeJSON(w, http.StatusCreated, info)
}

// HandleGet handles GET /sessions/{id}.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	info, err := h.deps.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// HandleDelete handles DELETE /sessions/{id}.
func (h *SessionsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.CloseSession(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReset handles POST /sessions/{id}/reset.
func (h *SessionsHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	info, err := h.deps.ResetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// HandleHistory handles GET /sessions/{id}/history.
func (h *SessionsHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	events, err := h.deps.History(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	totals, err := h.deps.Totals(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if events == nil {
		events = []model.RepEvent{}
	}
	writeJSON(w, http.StatusOK, historyResponse{SessionID: id, Events: events, Totals: totals})
}
