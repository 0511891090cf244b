// Package media stores uploaded audio and converts it to the canonical
// encoding the remote scorer expects.
package media

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

// ArtifactStore persists media artifacts addressed by opaque references.
type ArtifactStore interface {
	// Put writes size bytes from r under ref, replacing any previous artifact.
	Put(ctx context.Context, ref string, r io.Reader, size int64, contentType string) error

	// Open returns a reader for ref or ErrArtifactNotFound.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)

	// Delete removes ref. Deleting a missing artifact is not an error.
	Delete(ctx context.Context, ref string) error
}

// cleanRef validates ref as a relative slash path that stays inside the store.
func cleanRef(ref string) (string, error) {
	if ref == "" || strings.ContainsRune(ref, '\\') || strings.HasPrefix(ref, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	clean := path.Clean(ref)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return clean, nil
}
