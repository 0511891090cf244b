// Package scorer talks to the remote evaluation service: it uploads the
// canonical audio and polls the resulting task until it finishes.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/okian/cadenza/internal/domain/model"
	"github.com/okian/cadenza/pkg/logger"
	"github.com/okian/cadenza/pkg/metrics"
)

// Remote endpoints, relative to the base URL.
const (
	uploadPath  = "/evaluate/upload"
	resultsPath = "/evaluate/results/"
	fileField   = "file"

	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20
	maxErrSnippet  = 256
)

// Artifacts opens stored media for upload.
type Artifacts interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// Client calls the remote scorer.
type Client struct {
	baseURL   string
	artifacts Artifacts
	http      *http.Client
	timeout   time.Duration
	upload    UploadPolicy
	poll      PollPolicy
	sleep     func(ctx context.Context, d time.Duration) error
	logger    logger.Logger
}

// NewClient creates a scorer client for baseURL reading media from artifacts.
func NewClient(baseURL string, artifacts Artifacts, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		artifacts: artifacts,
		http:      &http.Client{},
		timeout:   defaultTimeout,
		upload:    DefaultUploadPolicy(),
		poll:      DefaultPollPolicy(),
		sleep:     sleepCtx,
		logger:    logger.Get().Named("scorer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitAndAwait uploads ref, calls onAccepted with the task id, then polls
// until the task reaches a terminal status. An error from onAccepted stops
// the evaluation and is returned unchanged.
func (c *Client) SubmitAndAwait(ctx context.Context, ref string, onAccepted func(ctx context.Context, taskID string) error) (model.Evaluation, error) {
	taskID, err := c.Upload(ctx, ref)
	if err != nil {
		return model.Evaluation{}, err
	}
	if onAccepted != nil {
		if err := onAccepted(ctx, taskID); err != nil {
			return model.Evaluation{TaskID: taskID}, err
		}
	}
	return c.Await(ctx, taskID)
}

// Upload sends the artifact and returns the remote task id. Transport
// errors, non-2xx answers and bodies without a task id are retried; when
// the budget is spent the last error is returned wrapped in ErrUpload.
func (c *Client) Upload(ctx context.Context, ref string) (string, error) {
	audio, err := c.readArtifact(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.upload.Attempts; attempt++ {
		taskID, err := c.uploadOnce(ctx, path.Base(ref), audio)
		if err == nil {
			metrics.RecordUploadAttempt("ok")
			c.logger.Debug(ctx, "upload accepted",
				logger.String("ref", ref),
				logger.String("taskID", taskID),
				logger.Int("attempt", attempt),
			)
			return taskID, nil
		}
		lastErr = err
		metrics.RecordUploadAttempt("error")
		c.logger.Warn(ctx, "upload attempt failed",
			logger.String("ref", ref),
			logger.Int("attempt", attempt),
			logger.Int("maxAttempts", c.upload.Attempts),
			logger.Error(err),
		)

		if attempt < c.upload.Attempts {
			if err := c.sleep(ctx, c.upload.BaseDelay*time.Duration(attempt)); err != nil {
				return "", fmt.Errorf("%w: %w", ErrUpload, err)
			}
		}
	}
	return "", fmt.Errorf("%w after %d attempts: %w", ErrUpload, c.upload.Attempts, lastErr)
}

// Await polls the task until the policy sees a terminal status. Failed
// polls are remembered and reported only if the budget runs out.
func (c *Client) Await(ctx context.Context, taskID string) (model.Evaluation, error) {
	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= c.poll.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.poll.Interval); err != nil {
				return model.Evaluation{TaskID: taskID}, fmt.Errorf("%w: %w", ErrEvaluationTimeout, err)
			}
		}

		ev, done, err := c.pollOnce(ctx, taskID)
		switch {
		case err != nil:
			lastErr = err
			metrics.RecordPollAttempt("error")
			c.logger.Warn(ctx, "poll attempt failed",
				logger.String("taskID", taskID),
				logger.Int("attempt", attempt),
				logger.Error(err),
			)
		case done:
			metrics.RecordPollAttempt("terminal")
			metrics.RecordEvaluation(ev.Status, float64(time.Since(start).Milliseconds()))
			return ev, nil
		default:
			metrics.RecordPollAttempt("not_ready")
		}
	}

	metrics.RecordEvaluation("timeout", float64(time.Since(start).Milliseconds()))
	if lastErr != nil {
		return model.Evaluation{TaskID: taskID}, fmt.Errorf("%w after %d attempts, last error: %w", ErrEvaluationTimeout, c.poll.MaxAttempts, lastErr)
	}
	return model.Evaluation{TaskID: taskID}, fmt.Errorf("%w after %d attempts", ErrEvaluationTimeout, c.poll.MaxAttempts)
}

func (c *Client) readArtifact(ctx context.Context, ref string) ([]byte, error) {
	rc, err := c.artifacts.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck // read-only
	return io.ReadAll(rc)
}

func (c *Client) uploadOnce(ctx context.Context, filename string, audio []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(fileField, filename)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(audio); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+uploadPath, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	code, respBody, err := c.do(req, "upload")
	if err != nil {
		return "", err
	}
	if code < 200 || code > 299 {
		return "", fmt.Errorf("upload rejected with status %d: %s", code, snippet(respBody))
	}

	var accepted struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(respBody, &accepted); err != nil {
		return "", fmt.Errorf("%w: malformed body: %w", ErrMissingTaskID, err)
	}
	if accepted.TaskID == "" {
		return "", ErrMissingTaskID
	}
	return accepted.TaskID, nil
}

// pollOnce reports done when the task reached a terminal status. A
// not-ready answer is neither done nor an error.
func (c *Client) pollOnce(ctx context.Context, taskID string) (model.Evaluation, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+resultsPath+url.PathEscape(taskID), nil)
	if err != nil {
		return model.Evaluation{}, false, fmt.Errorf("%w: %w", ErrPoll, err)
	}

	code, body, err := c.do(req, "poll")
	if err != nil {
		return model.Evaluation{}, false, fmt.Errorf("%w: %w", ErrPoll, err)
	}
	if code < 200 || code > 299 {
		if c.poll.IsNotReady(code, body) {
			return model.Evaluation{}, false, nil
		}
		return model.Evaluation{}, false, fmt.Errorf("%w: status %d: %s", ErrPoll, code, snippet(body))
	}

	var ev model.Evaluation
	if err := json.Unmarshal(body, &ev); err != nil {
		return model.Evaluation{}, false, fmt.Errorf("%w: malformed body: %w", ErrPoll, err)
	}
	if !c.poll.IsTerminal(ev.Status) {
		return model.Evaluation{}, false, nil
	}
	if ev.TaskID == "" {
		ev.TaskID = taskID
	}
	ev.Raw = json.RawMessage(body)
	return ev, true, nil
}

func (c *Client) do(req *http.Request, call string) (int, []byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.RecordRemoteRequestDuration(call, float64(time.Since(start).Milliseconds()))
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close() //nolint:errcheck // read-only

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrSnippet {
		return s[:maxErrSnippet] + "..."
	}
	return s
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsUploadFailure reports whether err came from the upload phase.
func IsUploadFailure(err error) bool {
	return errors.Is(err, ErrUpload)
}
