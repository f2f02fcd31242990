package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/consultmesh/core"
	"github.com/hupe1980/consultmesh/files"
)

const (
	// DefaultMaxSessionBytes bounds the cached volume of one session.
	DefaultMaxSessionBytes = 512 << 10
	// DefaultMaxTotalBytes bounds the cached volume of the whole process.
	DefaultMaxTotalBytes = 64 << 20
	// DefaultReadConcurrency bounds parallel file reads while staging.
	DefaultReadConcurrency = 4
)

// Options configures an InMemoryCache.
type Options struct {
	Reader          core.FileReader
	MaxSessionBytes int
	MaxTotalBytes   int
	ReadConcurrency int
}

type entry struct {
	description string
	codeContext string
	files       []core.CachedFile
	index       map[string]int // path -> position in files
	bytes       int
}

// InMemoryCache is a process‑local ContextCache guarded by an RWMutex.
// Layout: sessionID -> entry. File reads always happen outside the lock;
// content is only ever appended, never overwritten.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	total   int
	opts    Options
}

// NewInMemoryCache returns an empty cache.
func NewInMemoryCache(optFns ...func(o *Options)) *InMemoryCache {
	opts := Options{
		Reader:          files.NewOSReader(),
		MaxSessionBytes: DefaultMaxSessionBytes,
		MaxTotalBytes:   DefaultMaxTotalBytes,
		ReadConcurrency: DefaultReadConcurrency,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ReadConcurrency <= 0 {
		opts.ReadConcurrency = 1
	}
	return &InMemoryCache{entries: make(map[string]*entry), opts: opts}
}

// SetInitial caches the problem description and code context. It fails with
// ErrContextAlreadySet if either is already cached for the session, leaving
// the cached values untouched.
func (c *InMemoryCache) SetInitial(sessionID, description, codeContext string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[sessionID]
	if ok && (e.description != "" || e.codeContext != "") {
		return &core.Error{Kind: core.KindContextAlreadySet, SessionID: sessionID}
	}
	size := len(description) + len(codeContext)
	cur := 0
	if ok {
		cur = e.bytes
	}
	if !c.fitsLocked(cur, size) {
		return &core.Error{Kind: core.KindCacheFull, SessionID: sessionID, Msg: "initial context exceeds cache ceiling"}
	}
	if !ok {
		e = &entry{index: map[string]int{}}
		c.entries[sessionID] = e
	}
	e.description = description
	e.codeContext = codeContext
	e.bytes += size
	c.total += size
	return nil
}

// AddFiles stages and immediately commits the given files.
func (c *InMemoryCache) AddFiles(ctx context.Context, sessionID string, reqs []core.FileRequest) ([]core.CachedFile, []core.FileError) {
	staged, fileErrs := c.StageFiles(ctx, sessionID, reqs)
	if err := c.CommitFiles(sessionID, staged); err != nil {
		for _, f := range staged {
			fileErrs = append(fileErrs, core.FileError{Path: f.Path, Kind: core.KindOf(err), Message: err.Error()})
		}
		return nil, fileErrs
	}
	return staged, fileErrs
}

// StageFiles reads the requested files that are not cached yet and checks
// them against the ceilings. Nothing is stored; pass the result to
// CommitFiles once the turn has succeeded. Failures are reported per file.
//
// A request for a path that is already cached is a no-op: the file is not
// re-read and the description given on first attachment is kept, even when
// the new request carries a different one.
func (c *InMemoryCache) StageFiles(ctx context.Context, sessionID string, reqs []core.FileRequest) ([]core.CachedFile, []core.FileError) {
	c.mu.RLock()
	cur := 0
	cached := map[string]bool{}
	if e, ok := c.entries[sessionID]; ok {
		cur = e.bytes
		for p := range e.index {
			cached[p] = true
		}
	}
	c.mu.RUnlock()

	pending := make([]core.FileRequest, 0, len(reqs))
	for _, r := range reqs {
		if !cached[r.Path] {
			pending = append(pending, r)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	contents := make([][]byte, len(pending))
	readErrs := make([]error, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.ReadConcurrency)
	for i, r := range pending {
		g.Go(func() error {
			contents[i], readErrs[i] = c.opts.Reader.Read(gctx, r.Path)
			return nil
		})
	}
	_ = g.Wait()

	var (
		staged   []core.CachedFile
		fileErrs []core.FileError
		added    int
	)
	for i, r := range pending {
		if readErrs[i] != nil {
			fileErrs = append(fileErrs, core.FileError{Path: r.Path, Kind: core.KindFileUnreadable, Message: readErrs[i].Error()})
			continue
		}
		size := len(contents[i])
		c.mu.RLock()
		fits := c.fitsLocked(cur, added+size)
		c.mu.RUnlock()
		if !fits {
			fileErrs = append(fileErrs, core.FileError{Path: r.Path, Kind: core.KindCacheFull, Message: "attachment would exceed cache ceiling"})
			continue
		}
		added += size
		staged = append(staged, core.CachedFile{
			Path:        r.Path,
			Description: r.Description,
			MIMEType:    files.DetectMIME(r.Path),
			Content:     string(contents[i]),
			Size:        size,
		})
	}
	return staged, fileErrs
}

// CommitFiles appends staged files to the session's entry in order. Paths
// already cached are skipped. The ceilings are re-checked atomically; if the
// batch no longer fits nothing is stored and ErrCacheFull is returned.
func (c *InMemoryCache) CommitFiles(sessionID string, staged []core.CachedFile) error {
	if len(staged) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[sessionID]
	if !ok {
		return &core.Error{Kind: core.KindSessionNotFound, SessionID: sessionID}
	}
	add := 0
	for _, f := range staged {
		if _, dup := e.index[f.Path]; !dup {
			add += f.Size
		}
	}
	if !c.fitsLocked(e.bytes, add) {
		return &core.Error{Kind: core.KindCacheFull, SessionID: sessionID}
	}
	for _, f := range staged {
		if _, dup := e.index[f.Path]; dup {
			continue
		}
		e.index[f.Path] = len(e.files)
		e.files = append(e.files, f)
	}
	e.bytes += add
	c.total += add
	return nil
}

// Snapshot returns a copy of the session's cached material.
func (c *InMemoryCache) Snapshot(sessionID string) (core.ContextSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[sessionID]
	if !ok {
		return core.ContextSnapshot{}, &core.Error{Kind: core.KindSessionNotFound, SessionID: sessionID}
	}
	snap := core.ContextSnapshot{
		Description: e.description,
		CodeContext: e.codeContext,
		Files:       make([]core.CachedFile, len(e.files)),
	}
	copy(snap.Files, e.files)
	return snap, nil
}

// Stats reports the entry's size and shape.
func (c *InMemoryCache) Stats(sessionID string) (core.EntryStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[sessionID]
	if !ok {
		return core.EntryStats{}, false
	}
	return core.EntryStats{Bytes: e.bytes, FileCount: len(e.files), HasCodeContext: e.codeContext != ""}, true
}

// Delete drops the session's entry. Unknown ids are ignored.
func (c *InMemoryCache) Delete(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[sessionID]; ok {
		c.total -= e.bytes
		delete(c.entries, sessionID)
	}
}

// Usage reports cached bytes per session and in total.
func (c *InMemoryCache) Usage() core.CacheUsage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u := core.CacheUsage{TotalBytes: c.total, Sessions: make(map[string]int, len(c.entries))}
	for id, e := range c.entries {
		u.Sessions[id] = e.bytes
	}
	return u
}

// fitsLocked reports whether adding n bytes to a session currently holding
// cur bytes stays within both ceilings. Caller must hold a lock.
func (c *InMemoryCache) fitsLocked(cur, n int) bool {
	if c.opts.MaxSessionBytes > 0 && cur+n > c.opts.MaxSessionBytes {
		return false
	}
	if c.opts.MaxTotalBytes > 0 && c.total+n > c.opts.MaxTotalBytes {
		return false
	}
	return true
}
