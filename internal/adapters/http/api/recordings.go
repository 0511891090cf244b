package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/okian/cadenza/internal/domain/model"
	"github.com/okian/cadenza/internal/domain/types"
)

// Multipart field names of POST /recordings.
const (
	fieldIdentity = "identity"
	fieldAudio    = "audio"
)

// RecordingDependencies defines the interface for recording operations.
type RecordingDependencies interface {
	Submit(ctx context.Context, identity string, audio []byte) (model.Recording, error)
	Get(ctx context.Context, id string) (model.Recording, error)
	ListAll(ctx context.Context) ([]model.Recording, error)
}

// RecordingsHandler handles recording requests.
type RecordingsHandler struct {
	deps     RecordingDependencies
	maxBytes int64
}

// NewRecordingsHandler creates a new recordings handler.
func NewRecordingsHandler(deps RecordingDependencies, maxBytes int64) *RecordingsHandler {
	return &RecordingsHandler{deps: deps, maxBytes: maxBytes}
}

// HandleSubmit handles POST /recordings (multipart: identity, audio).
func (h *RecordingsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_recording"

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, WrapKind(op, ErrBadRequest, errors.New("upload too large")))
			return
		}
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck // temp files only

	identity := strings.TrimSpace(r.FormValue(fieldIdentity))
	audio, err := readPart(r, fieldAudio)
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	rec, err := h.deps.Submit(r.Context(), identity, audio)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, statusFor(rec), types.FromRecording(rec))
}

// HandleList handles GET /recordings requests.
func (h *RecordingsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_recordings"
	recs, err := h.deps.ListAll(r.Context())
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.FromRecordings(recs))
}

// HandleGet handles GET /recordings/{id} requests.
func (h *RecordingsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_recording"
	id := r.PathValue("id")
	if id == "" {
		writeError(w, NewKind(op, ErrBadRequest))
		return
	}
	rec, err := h.deps.Get(r.Context(), id)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.FromRecording(rec))
}

// readPart returns the bytes of file field name. A missing part yields an
// empty slice so the service reports the validation error.
func readPart(r *http.Request, name string) ([]byte, error) {
	f, _, err := r.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only
	return io.ReadAll(f)
}
