package api

import (
	"context"
	"net/http"

	service "github.com/okian/repsense/internal/app"
	"github.com/okian/repsense/internal/domain/model"
)

// FrameDependencies defines the frame processing dependency.
type FrameDependencies interface {
	ProcessFrame(ctx context.Context, id string, f model.Frame) (service.FrameResult, error)
}

// FramesHandler handles frame submissions.
type FramesHandler struct {
	deps FrameDependencies
}

// NewFramesHandler creates a new frames handler.
func NewFramesHandler(deps FrameDependencies) *FramesHandler {
	return &FramesHandler{deps: deps}
}

// HandlePostFrame handles POST /sessions/{id}/frames. The body is one
// model.Frame; landmarks are keyed by name, e.g. "LEFT_SHOULDER".
func (h *FramesHandler) HandlePostFrame(w http.ResponseWriter, r *http.Request) {
	var f model.Frame
	if err := decodeBody(w, r, &f, false); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	res, err := h.deps.ProcessFrame(r.Context(), r.PathValue("id"), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
