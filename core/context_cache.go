package core

import "context"

// FileRequest asks for a file to be attached to a session.
type FileRequest struct {
	Path        string
	Description string
}

// CachedFile is an attached file held in the context cache.
type CachedFile struct {
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mime_type,omitempty"`
	Content     string `json:"-"`
	Size        int    `json:"size"`
}

// ContextSnapshot is a copy of everything cached for a session, in the order
// the assembler consumes it.
type ContextSnapshot struct {
	Description string
	CodeContext string
	Files       []CachedFile
}

// Size returns the cached character volume of the snapshot.
func (s ContextSnapshot) Size() int {
	n := len(s.Description) + len(s.CodeContext)
	for _, f := range s.Files {
		n += f.Size
	}
	return n
}

// EntryStats describes a single session's cache entry.
type EntryStats struct {
	Bytes          int
	FileCount      int
	HasCodeContext bool
}

// CacheUsage reports cached volume per session and in total.
type CacheUsage struct {
	TotalBytes int
	Sessions   map[string]int
}

// ContextCache stores the problem description, code context and attached
// files per session. The code context is immutable once set; later turns may
// only add files. A cached file keeps the content and description it was
// first attached with. Implementations must be thread-safe and must never perform
// file I/O while holding internal locks.
type ContextCache interface {
	SetInitial(sessionID, description, codeContext string) error
	AddFiles(ctx context.Context, sessionID string, files []FileRequest) ([]CachedFile, []FileError)
	StageFiles(ctx context.Context, sessionID string, files []FileRequest) ([]CachedFile, []FileError)
	CommitFiles(sessionID string, files []CachedFile) error
	Snapshot(sessionID string) (ContextSnapshot, error)
	Stats(sessionID string) (EntryStats, bool)
	Delete(sessionID string)
	Usage() CacheUsage
}

// FileReader loads attached files. Any error is treated as a per-file,
// non-fatal failure.
type FileReader interface {
	Read(ctx context.Context, path string) ([]byte, error)
}

// FileReaderFunc adapts an ordinary function to FileReader.
type FileReaderFunc func(ctx context.Context, path string) ([]byte, error)

// Read implements FileReader.
func (f FileReaderFunc) Read(ctx context.Context, path string) ([]byte, error) { return f(ctx, path) }
