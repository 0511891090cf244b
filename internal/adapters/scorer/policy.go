package scorer

import (
	"bytes"
	"net/http"
	"time"

	"github.com/okian/cadenza/internal/domain/model"
)

// Default remote call budgets.
const (
	DefaultUploadAttempts  = 3
	DefaultUploadBaseDelay = time.Second
	DefaultPollAttempts    = 120
	DefaultPollInterval    = 2 * time.Second
	DefaultNotReady        = "evaluation not completed"
)

// UploadPolicy bounds upload retries. The wait before attempt n+1 is
// BaseDelay * n.
type UploadPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

// PollPolicy decides how a task is polled and how responses are classified.
type PollPolicy struct {
	MaxAttempts int
	Interval    time.Duration
	// IsTerminal reports whether a remote status ends polling.
	IsTerminal func(status string) bool
	// IsNotReady reports whether a non-2xx response is the normal
	// "still working" answer rather than an error.
	IsNotReady func(code int, body []byte) bool
}

// DefaultUploadPolicy returns the standard upload budget.
func DefaultUploadPolicy() UploadPolicy {
	return UploadPolicy{Attempts: DefaultUploadAttempts, BaseDelay: DefaultUploadBaseDelay}
}

// DefaultPollPolicy returns the standard poll budget and classifiers.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		MaxAttempts: DefaultPollAttempts,
		Interval:    DefaultPollInterval,
		IsTerminal:  TerminalStatus,
		IsNotReady:  NotReadySignature(DefaultNotReady),
	}
}

// TerminalStatus reports completed and failed as terminal.
func TerminalStatus(status string) bool {
	return status == model.RemoteCompleted || status == model.RemoteFailed
}

// NotReadySignature matches 4xx responses whose body contains sig,
// ignoring case. A blank sig matches nothing.
func NotReadySignature(sig string) func(code int, body []byte) bool {
	needle := bytes.ToLower(bytes.TrimSpace([]byte(sig)))
	return func(code int, body []byte) bool {
		if len(needle) == 0 || code < http.StatusBadRequest || code >= http.StatusInternalServerError {
			return false
		}
		return bytes.Contains(bytes.ToLower(body), needle)
	}
}

func (p PollPolicy) withDefaults() PollPolicy {
	d := DefaultPollPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.Interval < 0 {
		p.Interval = d.Interval
	}
	if p.IsTerminal == nil {
		p.IsTerminal = d.IsTerminal
	}
	if p.IsNotReady == nil {
		p.IsNotReady = d.IsNotReady
	}
	return p
}
