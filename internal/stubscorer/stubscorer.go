// Package stubscorer is a local stand-in for the remote evaluation
// service. It accepts uploads, keeps each task unfinished for a simulated
// latency and then reports seeded random per-take scores.
package stubscorer

import (
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/cadenza/internal/domain/model"
	"github.com/okian/cadenza/pkg/logger"
)

// Default stub configuration.
const (
	defaultMinLatency = 200 * time.Millisecond
	defaultMaxLatency = 2 * time.Second
	defaultSeed       = 42
	defaultTakes      = 3

	fileField      = "file"
	maxUploadBytes = 64 << 20

	// NotReadyMessage is the body signature of an unfinished task.
	NotReadyMessage = "evaluation not completed"
)

type task struct {
	readyAt time.Time
	result  model.Evaluation
}

// Server implements the scorer's upload and results endpoints in memory.
type Server struct {
	mu    sync.Mutex
	tasks map[string]*task
	rng   *rand.Rand

	minLatency  time.Duration
	maxLatency  time.Duration
	seed        int64
	failureRate float64
	takes       int
	now         func() time.Time

	logger logger.Logger
}

// New creates a stub scorer.
func New(opts ...Option) *Server {
	s := &Server{
		tasks:      make(map[string]*task),
		minLatency: defaultMinLatency,
		maxLatency: defaultMaxLatency,
		seed:       defaultSeed,
		takes:      defaultTakes,
		now:        time.Now,
		logger:     logger.Get().Named("stub-scorer"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rng = rand.New(rand.NewSource(s.seed)) //nolint:gosec // reproducible fake scores
	return s
}

// Handler returns the HTTP routes of the stub.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /evaluate/upload", s.handleUpload)
	mux.HandleFunc("GET /evaluate/results/{taskID}", s.handleResults)
	return mux
}

// Pending returns the number of tasks not yet finished.
func (s *Server) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var n int
	for _, t := range s.tasks {
		if now.Before(t.readyAt) {
			n++
		}
	}
	return n
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	f, hdr, err := r.FormFile(fileField)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "missing file: " + err.Error()})
		return
	}
	defer f.Close() //nolint:errcheck // read-only
	size, err := io.Copy(io.Discard, f)
	if err != nil || size == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "empty or unreadable file"})
		return
	}

	id := uuid.NewString()
	t := s.schedule(id)

	s.logger.Info(r.Context(), "task accepted",
		logger.String("taskID", id),
		logger.String("filename", hdr.Filename),
		logger.Int("bytes", int(size)),
		logger.Duration("readyIn", t.readyAt.Sub(s.now())),
	)
	writeJSON(w, http.StatusOK, map[string]string{"task_id": id})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("taskID")
	ev, err := s.result(id)
	switch {
	case errors.Is(err, ErrTaskNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": err.Error()})
	case err != nil:
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
	default:
		writeJSON(w, http.StatusOK, ev)
	}
}

// schedule draws the task's latency and outcome up front so results are
// stable across polls.
func (s *Server) schedule(id string) *task {
	s.mu.Lock()
	defer s.mu.Unlock()

	latency := s.minLatency
	if span := s.maxLatency - s.minLatency; span > 0 {
		latency += time.Duration(s.rng.Int63n(int64(span)))
	}
	t := &task{readyAt: s.now().Add(latency)}

	if s.rng.Float64() < s.failureRate {
		t.result = model.Evaluation{Status: model.RemoteFailed, Results: []model.EvaluationItem{}}
	} else {
		items := make([]model.EvaluationItem, s.takes)
		for i := range items {
			items[i] = model.Item(s.rng.Float64())
		}
		t.result = model.Evaluation{Status: model.RemoteCompleted, Results: items}
	}
	t.result.TaskID = id
	s.tasks[id] = t
	return t
}

func (s *Server) result(id string) (model.Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return model.Evaluation{}, ErrTaskNotFound
	}
	if s.now().Before(t.readyAt) {
		return model.Evaluation{}, errors.New(NotReadyMessage)
	}
	return t.result, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
