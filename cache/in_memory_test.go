package cache

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/consultmesh/core"
	"github.com/hupe1980/consultmesh/internal/testutil"
)

// Interface compliance (compile-time assertion)
var _ core.ContextCache = (*InMemoryCache)(nil)

func newTestCache(reader core.FileReader, optFns ...func(o *Options)) *InMemoryCache {
	return NewInMemoryCache(append([]func(o *Options){func(o *Options) { o.Reader = reader }}, optFns...)...)
}

func TestInMemoryCache_SetInitialTwice(t *testing.T) {
	c := newTestCache(testutil.NewMapReader(nil))
	require.NoError(t, c.SetInitial("s1", "fix cache bug", "func get() {}"))

	err := c.SetInitial("s1", "other", "other code")
	require.ErrorIs(t, err, core.ErrContextAlreadySet)

	snap, err := c.Snapshot("s1")
	require.NoError(t, err)
	assert.Equal(t, "fix cache bug", snap.Description)
	assert.Equal(t, "func get() {}", snap.CodeContext)
}

func TestInMemoryCache_AddFilesPartialSuccess(t *testing.T) {
	reader := testutil.NewMapReader(map[string]string{
		"/src/a.go": "package a",
		"/src/b.go": "package b",
	})
	c := newTestCache(reader)
	require.NoError(t, c.SetInitial("s1", "desc", ""))

	added, fileErrs := c.AddFiles(context.Background(), "s1", []core.FileRequest{
		{Path: "/src/b.go", Description: "second"},
		{Path: "/tmp/missing.js"},
		{Path: "/src/a.go"},
	})
	require.Len(t, added, 2)
	require.Len(t, fileErrs, 1)
	assert.Equal(t, "/tmp/missing.js", fileErrs[0].Path)
	assert.Equal(t, core.KindFileUnreadable, fileErrs[0].Kind)

	snap, err := c.Snapshot("s1")
	require.NoError(t, err)
	require.Len(t, snap.Files, 2)
	assert.Equal(t, "/src/b.go", snap.Files[0].Path, "insertion order must be preserved")
	assert.Equal(t, "second", snap.Files[0].Description)
	assert.Equal(t, "/src/a.go", snap.Files[1].Path)
	assert.Equal(t, "text/x-go", snap.Files[1].MIMEType)
}

func TestInMemoryCache_CachedPathsAreNotReread(t *testing.T) {
	reader := testutil.NewMapReader(map[string]string{"/src/a.go": "v1"})
	c := newTestCache(reader)
	require.NoError(t, c.SetInitial("s1", "desc", "code"))

	_, errs := c.AddFiles(context.Background(), "s1", []core.FileRequest{{Path: "/src/a.go", Description: "entry point"}})
	require.Empty(t, errs)

	reader.Put("/src/a.go", "v2")
	staged, errs := c.StageFiles(context.Background(), "s1", []core.FileRequest{{Path: "/src/a.go", Description: "renamed"}})
	assert.Empty(t, staged)
	assert.Empty(t, errs)
	assert.Equal(t, 1, reader.Reads("/src/a.go"))

	snap, _ := c.Snapshot("s1")
	assert.Equal(t, "v1", snap.Files[0].Content)
	assert.Equal(t, "entry point", snap.Files[0].Description)
}

func TestInMemoryCache_StageDoesNotMutate(t *testing.T) {
	reader := testutil.NewMapReader(map[string]string{"/src/a.go": "package a"})
	c := newTestCache(reader)
	require.NoError(t, c.SetInitial("s1", "desc", "code"))

	staged, errs := c.StageFiles(context.Background(), "s1", []core.FileRequest{{Path: "/src/a.go"}})
	require.Empty(t, errs)
	require.Len(t, staged, 1)

	snap, _ := c.Snapshot("s1")
	assert.Empty(t, snap.Files)

	require.NoError(t, c.CommitFiles("s1", staged))
	snap, _ = c.Snapshot("s1")
	assert.Len(t, snap.Files, 1)
}

func TestInMemoryCache_SessionCeiling(t *testing.T) {
	reader := testutil.NewMapReader(map[string]string{
		"/small": strings.Repeat("s", 10),
		"/large": strings.Repeat("l", 100),
	})
	c := newTestCache(reader, func(o *Options) { o.MaxSessionBytes = 50 })
	require.NoError(t, c.SetInitial("s1", "desc", "code"))

	added, errs := c.AddFiles(context.Background(), "s1", []core.FileRequest{{Path: "/large"}, {Path: "/small"}})
	require.Len(t, added, 1)
	assert.Equal(t, "/small", added[0].Path)
	require.Len(t, errs, 1)
	assert.Equal(t, core.KindCacheFull, errs[0].Kind)

	st, ok := c.Stats("s1")
	require.True(t, ok)
	assert.Equal(t, len("desc")+len("code")+10, st.Bytes)
}

func TestInMemoryCache_GlobalCeiling(t *testing.T) {
	c := newTestCache(testutil.NewMapReader(nil), func(o *Options) { o.MaxTotalBytes = 20 })
	require.NoError(t, c.SetInitial("s1", "0123456789", ""))
	require.NoError(t, c.SetInitial("s2", "0123456789", ""))

	err := c.SetInitial("s3", "x", "")
	assert.ErrorIs(t, err, core.ErrCacheFull)

	c.Delete("s1")
	require.NoError(t, c.SetInitial("s3", "x", ""))
	assert.Equal(t, 11, c.Usage().TotalBytes)
}

func TestInMemoryCache_CommitUnknownSession(t *testing.T) {
	c := newTestCache(testutil.NewMapReader(nil))
	err := c.CommitFiles("nope", []core.CachedFile{{Path: "/a", Size: 1}})
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	_, err = c.Snapshot("nope")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestInMemoryCache_Concurrency(t *testing.T) {
	contents := map[string]string{}
	for i := 0; i < 20; i++ {
		contents["/f"+strings.Repeat("x", i)] = "data"
	}
	reader := testutil.NewMapReader(contents)
	c := newTestCache(reader)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		id := "s" + strings.Repeat("x", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.SetInitial(id, "d", "c"))
			var reqs []core.FileRequest
			for p := range contents {
				reqs = append(reqs, core.FileRequest{Path: p})
			}
			_, errs := c.AddFiles(context.Background(), id, reqs)
			assert.Empty(t, errs)
			_, _ = c.Snapshot(id)
		}()
	}
	wg.Wait()

	u := c.Usage()
	assert.Len(t, u.Sessions, 20)
	assert.Equal(t, 20*(2+20*4), u.TotalBytes)
}
