// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	repository "github.com/okian/cadenza/internal/adapters/repository"
	service "github.com/okian/cadenza/internal/app"
	"github.com/okian/cadenza/internal/domain/model"
	"github.com/okian/cadenza/internal/domain/portal"
	"github.com/okian/cadenza/internal/domain/types"
)

const defaultMaxUploadBytes = 25 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	RecordingDependencies
	LeaderboardDependencies
	PortalDependencies
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	recordingsHandler  *RecordingsHandler
	leaderboardHandler *LeaderboardHandler
	portalHandler      *PortalHandler
}

// NewServer creates a new API server with all handlers. maxUploadBytes
// caps POST /recordings bodies; zero selects the default.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxUploadBytes int64) *Server {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		recordingsHandler:  NewRecordingsHandler(deps, maxUploadBytes),
		leaderboardHandler: NewLeaderboardHandler(deps),
		portalHandler:      NewPortalHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /recordings", MetricsMiddleware(s.recordingsHandler.HandleSubmit, "recordings_submit"))
	mux.HandleFunc("GET /recordings", MetricsMiddleware(s.recordingsHandler.HandleList, "recordings_list"))
	mux.HandleFunc("GET /recordings/{id}", MetricsMiddleware(s.recordingsHandler.HandleGet, "recordings_get"))

	mux.HandleFunc("GET /leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))

	mux.HandleFunc("GET /portal", MetricsMiddleware(s.portalHandler.HandleStatus, "portal_status"))
	mux.HandleFunc("POST /portal/open", MetricsMiddleware(s.portalHandler.HandleOpen, "portal_open"))
	mux.HandleFunc("POST /portal/close", MetricsMiddleware(s.portalHandler.HandleClose, "portal_close"))
	mux.HandleFunc("POST /portal/restart", MetricsMiddleware(s.portalHandler.HandleRestart, "portal_restart"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code and writes it as JSON.
func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := http.StatusText(status)
	if err != nil && status != http.StatusInternalServerError {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// classify picks the status for err. Portal closed is checked before the
// generic validation kind it wraps.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrPortalClosed), errors.Is(err, portal.ErrClosed):
		return http.StatusServiceUnavailable, "portal_closed"
	case errors.Is(err, service.ErrDuplicateSubmission), errors.Is(err, repository.ErrDuplicateIdentity),
		errors.Is(err, ErrConflict):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, ErrBadRequest), errors.Is(err, service.ErrValidation), errors.Is(err, portal.ErrInvalidMode):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrNotFound), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBackpressure), errors.Is(err, service.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, ErrUnavailable), errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}

// statusFor is the response code of a freshly submitted recording.
func statusFor(rec model.Recording) int {
	if rec.Status == model.StatusPending {
		return http.StatusAccepted
	}
	return http.StatusOK
}
