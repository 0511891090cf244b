package media

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/okian/cadenza/pkg/logger"
	"github.com/okian/cadenza/pkg/metrics"
)

// Canonical encoding defaults.
const (
	defaultFFmpegPath = "ffmpeg"
	defaultCodec      = "pcm_s16le"
	defaultFormat     = "wav"
	defaultSampleRate = 16000
	defaultChannels   = 1

	originalName = "original"
)

// Artifact references the stored forms of one upload.
type Artifact struct {
	// CanonicalRef is set once the canonical artifact was written.
	CanonicalRef string
	// OriginalRef is set while the raw upload is still stored.
	OriginalRef string
}

// Normalizer converts an uploaded recording to the canonical encoding.
type Normalizer interface {
	// Normalize stores raw under id and converts it. On failure the error
	// wraps ErrConversion and the Artifact still carries OriginalRef when
	// the raw upload was stored.
	Normalize(ctx context.Context, id string, raw []byte) (Artifact, error)
}

// Runner executes an external command and returns its stderr.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// FFmpegNormalizer implements Normalizer with the ffmpeg binary.
type FFmpegNormalizer struct {
	store      ArtifactStore
	ffmpegPath string
	codec      string
	format     string
	sampleRate int
	channels   int
	run        Runner
	logger     logger.Logger
}

// NewFFmpegNormalizer creates a normalizer writing into store.
func NewFFmpegNormalizer(store ArtifactStore, opts ...Option) *FFmpegNormalizer {
	n := &FFmpegNormalizer{
		store:      store,
		ffmpegPath: defaultFFmpegPath,
		codec:      defaultCodec,
		format:     defaultFormat,
		sampleRate: defaultSampleRate,
		channels:   defaultChannels,
		run:        ExecRunner,
		logger:     logger.Get().Named("media"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// CanonicalRef returns the reference the canonical artifact of id is stored under.
func (n *FFmpegNormalizer) CanonicalRef(id string) string {
	return id + "/canonical." + n.format
}

// Normalize implements Normalizer.
func (n *FFmpegNormalizer) Normalize(ctx context.Context, id string, raw []byte) (art Artifact, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordConversion(float64(time.Since(start).Milliseconds()), err != nil)
	}()

	if len(raw) == 0 {
		return Artifact{}, fmt.Errorf("%w: empty upload", ErrConversion)
	}

	origRef := id + "/" + originalName
	if err := n.store.Put(ctx, origRef, bytes.NewReader(raw), int64(len(raw)), http.DetectContentType(raw)); err != nil {
		return Artifact{}, fmt.Errorf("%w: store original: %w", ErrConversion, err)
	}
	art.OriginalRef = origRef

	out, err := n.transcode(ctx, raw)
	if err != nil {
		return art, err
	}

	canonRef := n.CanonicalRef(id)
	if err := n.store.Put(ctx, canonRef, bytes.NewReader(out), int64(len(out)), "audio/"+n.format); err != nil {
		return art, fmt.Errorf("%w: store canonical: %w", ErrConversion, err)
	}
	art.CanonicalRef = canonRef

	if err := n.store.Delete(ctx, origRef); err != nil {
		n.logger.Warn(ctx, "original upload not removed",
			logger.String("ref", origRef),
			logger.Error(err),
		)
		return art, nil
	}
	art.OriginalRef = ""
	return art, nil
}

// transcode runs ffmpeg over temp files. Seekable input is required for
// containers that keep their index at the end.
func (n *FFmpegNormalizer) transcode(ctx context.Context, raw []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "cadenza-ffmpeg-*")
	if err != nil {
		return nil, fmt.Errorf("%w: temp dir: %w", ErrConversion, err)
	}
	defer os.RemoveAll(dir) //nolint:errcheck // best effort cleanup

	in := filepath.Join(dir, "input")
	outPath := filepath.Join(dir, "output."+n.format)
	if err := os.WriteFile(in, raw, filePerm); err != nil {
		return nil, fmt.Errorf("%w: write input: %w", ErrConversion, err)
	}

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", in,
		"-vn",
		"-ac", strconv.Itoa(n.channels),
		"-ar", strconv.Itoa(n.sampleRate),
		"-c:a", n.codec,
		"-f", n.format,
		outPath,
	}
	n.logger.Debug(ctx, "running ffmpeg", logger.String("path", n.ffmpegPath), logger.Any("args", args))

	if stderr, err := n.run(ctx, n.ffmpegPath, args...); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg: %w: %s", ErrConversion, err, bytes.TrimSpace(stderr))
	}

	out, err := os.ReadFile(outPath) //nolint:gosec // path is inside our temp dir
	if err != nil {
		return nil, fmt.Errorf("%w: read output: %w", ErrConversion, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: ffmpeg produced no output", ErrConversion)
	}
	return out, nil
}
