package scorer_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/cadenza/internal/adapters/scorer"
	"github.com/okian/cadenza/internal/domain/model"
	"github.com/okian/cadenza/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.InitWith(io.Discard, "text"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type memArtifacts map[string]string

func (m memArtifacts) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	v, ok := m[ref]
	if !ok {
		return nil, fmt.Errorf("no artifact %s", ref)
	}
	return io.NopCloser(strings.NewReader(v)), nil
}

// recordSleep collects requested waits without actually waiting.
type recordSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newClient(url string, sl *recordSleep, opts ...scorer.Option) *scorer.Client {
	base := []scorer.Option{
		scorer.WithSleep(sl.sleep),
		scorer.WithTimeout(2 * time.Second),
	}
	return scorer.NewClient(url, memArtifacts{"rec-1/canonical.wav": "RIFFdata"}, append(base, opts...)...)
}

func TestUpload(t *testing.T) {
	Convey("Given a scorer that accepts uploads", t, func() {
		var gotFile, gotName string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/evaluate/upload" || r.Method != http.MethodPost {
				http.NotFound(w, r)
				return
			}
			f, hdr, err := r.FormFile("file")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			b, _ := io.ReadAll(f)
			gotFile, gotName = string(b), hdr.Filename
			_, _ = io.WriteString(w, `{"task_id":"task-42"}`)
		}))
		defer srv.Close()
		sl := &recordSleep{}

		Convey("When uploading a stored artifact", func() {
			taskID, err := newClient(srv.URL+"/", sl).Upload(context.Background(), "rec-1/canonical.wav")

			Convey("Then it should send the audio as the file field and return the task id", func() {
				So(err, ShouldBeNil)
				So(taskID, ShouldEqual, "task-42")
				So(gotFile, ShouldEqual, "RIFFdata")
				So(gotName, ShouldEqual, "canonical.wav")
				So(sl.delays, ShouldBeEmpty)
			})
		})

		Convey("When the artifact does not exist", func() {
			_, err := newClient(srv.URL, sl).Upload(context.Background(), "missing")

			Convey("Then it should be an upload failure", func() {
				So(errors.Is(err, scorer.ErrUpload), ShouldBeTrue)
			})
		})
	})

	Convey("Given a scorer that always fails uploads", t, func() {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()
		sl := &recordSleep{}

		Convey("When uploading", func() {
			_, err := newClient(srv.URL, sl).Upload(context.Background(), "rec-1/canonical.wav")

			Convey("Then it should try three times with linear backoff", func() {
				So(errors.Is(err, scorer.ErrUpload), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "503")
				So(calls.Load(), ShouldEqual, 3)
				So(sl.delays, ShouldResemble, []time.Duration{time.Second, 2 * time.Second})
			})
		})
	})

	Convey("Given a scorer that answers 200 without a task id, then recovers", t, func() {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 1 {
				_, _ = io.WriteString(w, `{}`)
				return
			}
			_, _ = io.WriteString(w, `{"task_id":"t-2"}`)
		}))
		defer srv.Close()
		sl := &recordSleep{}

		Convey("When uploading", func() {
			taskID, err := newClient(srv.URL, sl).Upload(context.Background(), "rec-1/canonical.wav")

			Convey("Then the empty answer should count as a failed attempt", func() {
				So(err, ShouldBeNil)
				So(taskID, ShouldEqual, "t-2")
				So(calls.Load(), ShouldEqual, 2)
			})
		})
	})
}

func TestAwait(t *testing.T) {
	Convey("Given a scorer that is not ready twice, fails once, then completes", t, func() {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/evaluate/results/task-1" {
				http.NotFound(w, r)
				return
			}
			switch calls.Add(1) {
			case 1:
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"detail":"Evaluation NOT completed yet"}`)
			case 2:
				_, _ = io.WriteString(w, `{"status":"processing","results":[]}`)
			case 3:
				http.Error(w, "boom", http.StatusInternalServerError)
			default:
				_, _ = io.WriteString(w, `{"status":"completed","results":[{"final_score":0.81}]}`)
			}
		}))
		defer srv.Close()
		sl := &recordSleep{}

		Convey("When awaiting the task", func() {
			ev, err := newClient(srv.URL, sl).Await(context.Background(), "task-1")

			Convey("Then it should keep polling and return the terminal payload", func() {
				So(err, ShouldBeNil)
				So(ev.Status, ShouldEqual, model.RemoteCompleted)
				So(ev.TaskID, ShouldEqual, "task-1")
				So(len(ev.Results), ShouldEqual, 1)
				So(*ev.Results[0].FinalScore, ShouldAlmostEqual, 0.81)
				So(string(ev.Raw), ShouldContainSubstring, `"final_score":0.81`)
				So(calls.Load(), ShouldEqual, 4)
				So(sl.delays, ShouldResemble, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second})
			})
		})
	})

	Convey("Given a scorer that never finishes", t, func() {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 2 {
				http.Error(w, "bad gateway", http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, "evaluation not completed")
		}))
		defer srv.Close()
		sl := &recordSleep{}
		c := newClient(srv.URL, sl, scorer.WithPollPolicy(scorer.PollPolicy{MaxAttempts: 5, Interval: time.Millisecond}))

		Convey("When awaiting the task", func() {
			_, err := c.Await(context.Background(), "task-1")

			Convey("Then it should time out carrying the last poll error", func() {
				So(errors.Is(err, scorer.ErrEvaluationTimeout), ShouldBeTrue)
				So(errors.Is(err, scorer.ErrPoll), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "502")
				So(calls.Load(), ShouldEqual, 5)
			})
		})
	})

	Convey("Given a custom not-ready classifier", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
			_, _ = io.WriteString(w, "still cooking")
		}))
		defer srv.Close()
		sl := &recordSleep{}
		c := newClient(srv.URL, sl, scorer.WithPollPolicy(scorer.PollPolicy{
			MaxAttempts: 3,
			IsNotReady:  scorer.NotReadySignature("still cooking"),
		}))

		Convey("When the budget runs out", func() {
			_, err := c.Await(context.Background(), "task-1")

			Convey("Then the timeout should not report a poll error", func() {
				So(errors.Is(err, scorer.ErrEvaluationTimeout), ShouldBeTrue)
				So(errors.Is(err, scorer.ErrPoll), ShouldBeFalse)
			})
		})
	})
}

func TestNotReadySignature(t *testing.T) {
	Convey("Given the default not-ready classifier", t, func() {
		isNotReady := scorer.NotReadySignature(scorer.DefaultNotReady)

		Convey("Then only 4xx bodies with the signature match", func() {
			So(isNotReady(400, []byte("Evaluation not completed")), ShouldBeTrue)
			So(isNotReady(404, []byte(`{"detail":"evaluation not completed"}`)), ShouldBeTrue)
			So(isNotReady(500, []byte("evaluation not completed")), ShouldBeFalse)
			So(isNotReady(400, []byte("bad file")), ShouldBeFalse)
		})
	})

	Convey("Given a blank signature", t, func() {
		isNotReady := scorer.NotReadySignature("  ")

		Convey("Then no 4xx body should count as not ready", func() {
			So(isNotReady(400, []byte("bad file")), ShouldBeFalse)
			So(isNotReady(404, []byte("")), ShouldBeFalse)
			So(isNotReady(422, []byte("evaluation not completed")), ShouldBeFalse)
		})
	})
}

func TestSubmitAndAwait(t *testing.T) {
	Convey("Given a working scorer", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/upload") {
				_, _ = io.WriteString(w, `{"task_id":"t-1"}`)
				return
			}
			_, _ = io.WriteString(w, `{"status":"failed","results":[]}`)
		}))
		defer srv.Close()
		sl := &recordSleep{}
		c := newClient(srv.URL, sl)

		Convey("When the acceptance hook succeeds", func() {
			var accepted string
			ev, err := c.SubmitAndAwait(context.Background(), "rec-1/canonical.wav", func(_ context.Context, id string) error {
				accepted = id
				return nil
			})

			Convey("Then the hook should see the task id before polling finishes", func() {
				So(err, ShouldBeNil)
				So(accepted, ShouldEqual, "t-1")
				So(ev.Status, ShouldEqual, model.RemoteFailed)
			})
		})

		Convey("When the acceptance hook fails", func() {
			stop := errors.New("recording gone")
			_, err := c.SubmitAndAwait(context.Background(), "rec-1/canonical.wav", func(context.Context, string) error {
				return stop
			})

			Convey("Then its error should be returned unchanged", func() {
				So(errors.Is(err, stop), ShouldBeTrue)
				So(scorer.IsUploadFailure(err), ShouldBeFalse)
			})
		})
	})
}
