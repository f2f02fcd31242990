package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/consultmesh/files"
)

// MapReader is an in-memory core.FileReader. Paths absent from the map fail
// with files.ErrNotFound. Reads are counted per path.
type MapReader struct {
	mu    sync.Mutex
	files map[string]string
	reads map[string]int
}

// NewMapReader returns a reader serving the given path -> content pairs.
func NewMapReader(contents map[string]string) *MapReader {
	cp := make(map[string]string, len(contents))
	for k, v := range contents {
		cp[k] = v
	}
	return &MapReader{files: cp, reads: map[string]int{}}
}

// Read implements core.FileReader.
func (r *MapReader) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads[path]++
	content, ok := r.files[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, files.ErrNotFound)
	}
	return []byte(content), nil
}

// Put adds or replaces a file.
func (r *MapReader) Put(path, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[path] = content
}

// Reads returns how often path has been read.
func (r *MapReader) Reads(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads[path]
}
