package api

import (
	"context"
	"net/http"

	"github.com/okian/cadenza/internal/domain/model"
	"github.com/okian/cadenza/internal/domain/types"
)

// PortalDependencies defines the interface for admin portal operations.
type PortalDependencies interface {
	PortalStatus(ctx context.Context) (model.PortalStatus, error)
	OpenPortal(ctx context.Context) error
	ClosePortal(ctx context.Context) error
	RestartPortal(ctx context.Context, mode string) error
}

// PortalHandler handles portal requests.
type PortalHandler struct {
	deps PortalDependencies
}

// NewPortalHandler creates a new portal handler.
func NewPortalHandler(deps PortalDependencies) *PortalHandler {
	return &PortalHandler{deps: deps}
}

// HandleStatus handles GET /portal requests.
func (h *PortalHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w, r, "api.portal_status")
}

// HandleOpen handles POST /portal/open requests.
func (h *PortalHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	const op = "api.portal_open"
	if err := h.deps.OpenPortal(r.Context()); err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	h.writeStatus(w, r, op)
}

// HandleClose handles POST /portal/close requests.
func (h *PortalHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	const op = "api.portal_close"
	if err := h.deps.ClosePortal(r.Context()); err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	h.writeStatus(w, r, op)
}

// HandleRestart handles POST /portal/restart?mode=soft|hard requests.
func (h *PortalHandler) HandleRestart(w http.ResponseWriter, r *http.Request) {
	const op = "api.portal_restart"
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		writeError(w, NewKind(op, ErrBadRequest))
		return
	}
	if err := h.deps.RestartPortal(r.Context(), mode); err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	h.writeStatus(w, r, op)
}

func (h *PortalHandler) writeStatus(w http.ResponseWriter, r *http.Request, op string) {
	st, err := h.deps.PortalStatus(r.Context())
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.Portal{IsOpen: st.IsOpen})
}
