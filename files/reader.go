// Package files provides the default core.FileReader backed by the local
// filesystem, plus MIME detection for attached files.
package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"unicode/utf8"
)

// DefaultMaxFileBytes caps a single attachment.
const DefaultMaxFileBytes = 1 << 20

var (
	ErrNotFound         = errors.New("file not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrTooLarge         = errors.New("file too large")
	ErrNotRegular       = errors.New("not a regular file")
	ErrBinary           = errors.New("binary content")
)

// OSReader reads attachments from the local filesystem.
type OSReader struct {
	MaxBytes int64
}

// NewOSReader returns an OSReader with the default size cap.
func NewOSReader() *OSReader {
	return &OSReader{MaxBytes: DefaultMaxFileBytes}
}

// Read returns the file content or one of the package errors wrapped with
// the path.
func (r *OSReader) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, classify(path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, classify(path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", path, ErrNotRegular)
	}
	limit := r.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxFileBytes
	}
	if info.Size() > limit {
		return nil, fmt.Errorf("%s: %w (%d > %d bytes)", path, ErrTooLarge, info.Size(), limit)
	}

	// The file may grow between Stat and Read.
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, classify(path, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s: %w (> %d bytes)", path, ErrTooLarge, limit)
	}
	if bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data) {
		return nil, fmt.Errorf("%s: %w", path, ErrBinary)
	}
	return data, nil
}

func classify(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s: %w", path, ErrPermissionDenied)
	default:
		return fmt.Errorf("%s: %w", path, err)
	}
}
