package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/cadenza/internal/adapters/http/api"
	repository "github.com/okian/cadenza/internal/adapters/repository"
	service "github.com/okian/cadenza/internal/app"
	"github.com/okian/cadenza/internal/domain/model"
	"github.com/okian/cadenza/internal/domain/portal"
	"github.com/okian/cadenza/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDeps struct {
	submitErr error
	submitted []string
	recs      map[string]model.Recording
	board     []types.Entry
	isOpen    bool
	restarts  []string
	closeErr  error
}

func newMockDeps() *mockDeps {
	return &mockDeps{recs: map[string]model.Recording{}, isOpen: true}
}

func (m *mockDeps) Submit(_ context.Context, identity string, audio []byte) (model.Recording, error) {
	if m.submitErr != nil {
		return model.Recording{}, m.submitErr
	}
	if identity == "" {
		return model.Recording{}, service.ErrMissingIdentity
	}
	if len(audio) == 0 {
		return model.Recording{}, service.ErrMissingAudio
	}
	m.submitted = append(m.submitted, string(audio))
	rec := model.Recording{ID: fmt.Sprintf("rec-%d", len(m.submitted)), Identity: identity, Status: model.StatusPending}
	if string(audio) == "corrupt" {
		rec.Status = model.StatusClosed
	}
	m.recs[rec.ID] = rec
	return rec, nil
}

func (m *mockDeps) Get(_ context.Context, id string) (model.Recording, error) {
	rec, ok := m.recs[id]
	if !ok {
		return model.Recording{}, fmt.Errorf("get %s: %w", id, repository.ErrNotFound)
	}
	return rec, nil
}

func (m *mockDeps) ListAll(_ context.Context) ([]model.Recording, error) {
	out := make([]model.Recording, 0, len(m.recs))
	for _, r := range m.recs {
		out = append(out, r)
	}
	return out, nil
}

func (m *mockDeps) Leaderboard(_ context.Context) ([]types.Entry, error) {
	return m.board, nil
}

func (m *mockDeps) PortalStatus(_ context.Context) (model.PortalStatus, error) {
	return model.PortalStatus{IsOpen: m.isOpen}, nil
}

func (m *mockDeps) OpenPortal(_ context.Context) error {
	m.isOpen = true
	return nil
}

func (m *mockDeps) ClosePortal(_ context.Context) error {
	if m.closeErr != nil {
		return m.closeErr
	}
	m.isOpen = false
	return nil
}

func (m *mockDeps) RestartPortal(_ context.Context, mode string) error {
	if _, err := portal.ParseMode(mode); err != nil {
		return err
	}
	m.restarts = append(m.restarts, mode)
	m.isOpen = true
	return nil
}

type mockStats struct{}

func (mockStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true, "queueLength": 0}
}

func newMux(deps *mockDeps, maxBytes int64) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, mockStats{}, maxBytes).Register(context.Background(), mux)
	return mux
}

func multipartBody(identity string, audio []byte) (*bytes.Buffer, string) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if identity != "" {
		_ = mw.WriteField("identity", identity)
	}
	if audio != nil {
		fw, _ := mw.CreateFormFile("audio", "take.webm")
		_, _ = fw.Write(audio)
	}
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func do(mux *http.ServeMux, method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) map[string]string {
	var out map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

func TestRecordingsEndpoints(t *testing.T) {
	Convey("Given the API server", t, func() {
		deps := newMockDeps()
		mux := newMux(deps, 0)

		Convey("When a recording is submitted", func() {
			body, ct := multipartBody("ada@example.com", []byte("RIFF"))
			w := do(mux, http.MethodPost, "/recordings", body, ct)

			Convey("Then it should be accepted as pending", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				var rec types.Recording
				So(json.Unmarshal(w.Body.Bytes(), &rec), ShouldBeNil)
				So(rec.Status, ShouldEqual, "pending")
				So(rec.Identity, ShouldEqual, "ada@example.com")
				So(rec.Score, ShouldBeNil)
			})

			Convey("Then it should be listed and retrievable", func() {
				w := do(mux, http.MethodGet, "/recordings", nil, "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var list []types.Recording
				So(json.Unmarshal(w.Body.Bytes(), &list), ShouldBeNil)
				So(len(list), ShouldEqual, 1)

				w = do(mux, http.MethodGet, "/recordings/"+list[0].ID, nil, "")
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When the conversion fails", func() {
			body, ct := multipartBody("bob@example.com", []byte("corrupt"))
			w := do(mux, http.MethodPost, "/recordings", body, ct)

			Convey("Then the closed recording should be returned with 200", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"status":"closed"`)
			})
		})

		Convey("When the audio part is missing", func() {
			body, ct := multipartBody("ada@example.com", nil)
			w := do(mux, http.MethodPost, "/recordings", body, ct)

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w)["code"], ShouldEqual, "bad_request")
			})
		})

		Convey("When the body is not multipart", func() {
			w := do(mux, http.MethodPost, "/recordings", bytes.NewBufferString(`{"identity":"x"}`), "application/json")

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the upload exceeds the limit", func() {
			mux := newMux(deps, 64)
			body, ct := multipartBody("ada@example.com", bytes.Repeat([]byte("x"), 1024))
			w := do(mux, http.MethodPost, "/recordings", body, ct)

			Convey("Then it should be rejected before reaching the service", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(deps.submitted, ShouldBeEmpty)
			})
		})

		Convey("When an unknown recording is requested", func() {
			w := do(mux, http.MethodGet, "/recordings/missing", nil, "")

			Convey("Then it should be not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decodeError(w)["code"], ShouldEqual, "not_found")
			})
		})

		Convey("When the list is empty", func() {
			w := do(mux, http.MethodGet, "/recordings", nil, "")

			Convey("Then it should render an empty array", func() {
				So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
			})
		})
	})
}

func TestSubmitErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{service.ErrPortalClosed, http.StatusServiceUnavailable, "portal_closed"},
		{service.ErrDuplicateSubmission, http.StatusConflict, "duplicate"},
		{fmt.Errorf("%w: queue full", service.ErrBackpressure), http.StatusTooManyRequests, "backpressure"},
		{service.ErrNotStarted, http.StatusServiceUnavailable, "unavailable"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}

	Convey("Given service errors on submit", t, func() {
		for _, tc := range cases {
			deps := newMockDeps()
			deps.submitErr = tc.err
			mux := newMux(deps, 0)
			body, ct := multipartBody("ada@example.com", []byte("RIFF"))

			w := do(mux, http.MethodPost, "/recordings", body, ct)

			So(w.Code, ShouldEqual, tc.status)
			So(decodeError(w)["code"], ShouldEqual, tc.code)
		}
	})

	Convey("Given an internal error", t, func() {
		deps := newMockDeps()
		deps.submitErr = errors.New("secret path /var/lib")
		mux := newMux(deps, 0)
		body, ct := multipartBody("ada@example.com", []byte("RIFF"))

		w := do(mux, http.MethodPost, "/recordings", body, ct)

		Convey("Then its message should not leak", func() {
			So(w.Body.String(), ShouldNotContainSubstring, "/var/lib")
		})
	})
}

func TestPortalEndpoints(t *testing.T) {
	Convey("Given the API server", t, func() {
		deps := newMockDeps()
		mux := newMux(deps, 0)

		Convey("When the portal is closed", func() {
			w := do(mux, http.MethodPost, "/portal/close", nil, "")

			Convey("Then the new status should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(strings.TrimSpace(w.Body.String()), ShouldEqual, `{"is_open":false}`)
			})

			Convey("And reopened", func() {
				w := do(mux, http.MethodPost, "/portal/open", nil, "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(strings.TrimSpace(w.Body.String()), ShouldEqual, `{"is_open":true}`)
			})
		})

		Convey("When the portal status is requested", func() {
			w := do(mux, http.MethodGet, "/portal", nil, "")

			Convey("Then it should be open", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"is_open":true`)
			})
		})

		Convey("When a hard restart is requested", func() {
			w := do(mux, http.MethodPost, "/portal/restart?mode=hard", nil, "")

			Convey("Then the mode should reach the service", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.restarts, ShouldResemble, []string{"hard"})
			})
		})

		Convey("When a restart has no mode", func() {
			w := do(mux, http.MethodPost, "/portal/restart", nil, "")

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When a restart has an unknown mode", func() {
			w := do(mux, http.MethodPost, "/portal/restart?mode=sideways", nil, "")

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w)["message"], ShouldContainSubstring, "sideways")
			})
		})

		Convey("When close fails", func() {
			deps.closeErr = errors.New("store unavailable")
			w := do(mux, http.MethodPost, "/portal/close", nil, "")

			Convey("Then it should be an internal error", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})

		Convey("When close is called with GET", func() {
			w := do(mux, http.MethodGet, "/portal/close", nil, "")

			Convey("Then it should be rejected", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			})
		})
	})
}

func TestLeaderboardAndOps(t *testing.T) {
	Convey("Given a service with ranked recordings", t, func() {
		deps := newMockDeps()
		hi, lo := 90, 81
		deps.board = []types.Entry{
			types.FromRanked(1, model.Recording{ID: "r2", Identity: "b@example.com", Status: model.StatusScored, Score: &hi}),
			types.FromRanked(2, model.Recording{ID: "r1", Identity: "a@example.com", Status: model.StatusScored, Score: &lo}),
		}
		mux := newMux(deps, 0)

		Convey("When the leaderboard is requested", func() {
			w := do(mux, http.MethodGet, "/leaderboard", nil, "")

			Convey("Then entries should be returned in rank order", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var got []types.Entry
				So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
				So(got, ShouldResemble, deps.board)
			})
		})

		Convey("When the leaderboard is empty", func() {
			deps.board = nil
			w := do(mux, http.MethodGet, "/leaderboard", nil, "")

			Convey("Then it should render an empty array", func() {
				So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
			})
		})

		Convey("When health is requested", func() {
			w := do(mux, http.MethodGet, "/healthz", nil, "")

			Convey("Then Prometheus metrics should be served", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "# HELP")
			})
		})

		Convey("When stats are requested", func() {
			w := do(mux, http.MethodGet, "/stats", nil, "")

			Convey("Then they should be JSON", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldContainSubstring, "application/json")
				So(w.Body.String(), ShouldContainSubstring, `"started":true`)
			})
		})
	})
}

func TestWrap(t *testing.T) {
	Convey("Given an op-tagged error", t, func() {
		err := api.WrapKind("api.test", api.ErrBadRequest, repository.ErrNotFound)

		Convey("Then both kind and cause should match", func() {
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			So(err.Error(), ShouldStartWith, "api.test: bad request")
		})

		Convey("Then Wrap should pass nil through", func() {
			So(api.Wrap("api.test", nil), ShouldBeNil)
		})

		Convey("Then NewKind should carry only the kind", func() {
			So(api.NewKind("api.test", api.ErrNotFound).Error(), ShouldEqual, "api.test: not found")
		})
	})
}
