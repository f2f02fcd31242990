package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/consultmesh/cache"
	"github.com/hupe1980/consultmesh/core"
	"github.com/hupe1980/consultmesh/internal/clock"
	"github.com/hupe1980/consultmesh/internal/testutil"
)

// Interface compliance (compile-time assertion)
var _ core.SessionStore = (*InMemoryStore)(nil)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*InMemoryStore, *clock.FakeClock, *cache.InMemoryCache) {
	t.Helper()
	fc := clock.Fake(epoch)
	c := cache.NewInMemoryCache(func(o *cache.Options) { o.Reader = testutil.NewMapReader(nil) })
	s := NewInMemoryStore(func(o *Options) {
		o.Clock = fc
		o.Cache = c
	})
	return s, fc, c
}

func TestInMemoryStore_CreateTouchGet(t *testing.T) {
	s, fc, _ := newTestStore(t)
	id, err := s.Create()
	require.NoError(t, err)
	require.NotEmpty(t, id)

	fc.Advance(time.Minute)
	_, err = s.Touch(id)
	require.NoError(t, err)

	sess, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, epoch, sess.Created)
	assert.False(t, sess.LastActivity.Before(sess.Created))
	assert.Equal(t, epoch.Add(time.Minute), sess.LastActivity)
}

func TestInMemoryStore_GetDoesNotRefresh(t *testing.T) {
	s, fc, _ := newTestStore(t)
	id, _ := s.Create()
	fc.Advance(time.Hour)
	sess, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, epoch, sess.LastActivity)
}

func TestInMemoryStore_IDsAreUnique(t *testing.T) {
	ids := []string{"dup", "dup", "fresh"}
	var n int
	s := NewInMemoryStore(func(o *Options) {
		o.NewID = func() string { id := ids[n]; n++; return id }
	})
	first, _ := s.Create()
	second, _ := s.Create()
	assert.Equal(t, "dup", first)
	assert.Equal(t, "fresh", second)
}

func TestInMemoryStore_AppendTurn(t *testing.T) {
	s, fc, _ := newTestStore(t)
	id, _ := s.Create()
	fc.Advance(time.Second)

	sess, err := s.AppendTurn(id, core.Turn{Question: "q", Answer: "a"})
	require.NoError(t, err)
	require.Equal(t, 1, sess.TurnCount())
	assert.Equal(t, epoch.Add(time.Second), sess.Turns[0].Timestamp)
	assert.Equal(t, epoch.Add(time.Second), sess.LastActivity)

	// returned clone must not alias internal state
	sess.Turns[0].Answer = "mutated"
	again, _ := s.Get(id)
	assert.Equal(t, "a", again.Turns[0].Answer)
}

func TestInMemoryStore_DeleteTwice(t *testing.T) {
	s, _, c := newTestStore(t)
	id, _ := s.Create()
	require.NoError(t, c.SetInitial(id, "desc", "code"))

	require.NoError(t, s.Delete(id))
	assert.ErrorIs(t, s.Delete(id), core.ErrSessionNotFound)

	_, err := s.Get(id)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
	_, ok := c.Stats(id)
	assert.False(t, ok, "cache entry must be purged with the session")
}

func TestInMemoryStore_SweepMatchesDelete(t *testing.T) {
	s, fc, c := newTestStore(t)
	ttl := time.Hour

	idle, _ := s.Create()
	ended, _ := s.Create()
	require.NoError(t, c.SetInitial(idle, "desc", "code"))

	fc.Advance(30 * time.Minute)
	active, _ := s.Create()
	require.NoError(t, s.Delete(ended))

	fc.Advance(31 * time.Minute)
	removed := s.Sweep(fc.Now(), ttl, nil)
	assert.Equal(t, []string{idle}, removed)

	for _, id := range []string{idle, ended} {
		_, err := s.Get(id)
		assert.ErrorIs(t, err, core.ErrSessionNotFound)
		_, err = s.Touch(id)
		assert.ErrorIs(t, err, core.ErrSessionNotFound)
	}
	_, err := s.Get(active)
	assert.NoError(t, err)
	_, ok := c.Stats(idle)
	assert.False(t, ok)
}

func TestInMemoryStore_SweepBoundaryIsExclusive(t *testing.T) {
	s, fc, _ := newTestStore(t)
	id, _ := s.Create()
	fc.Advance(time.Hour)
	assert.Empty(t, s.Sweep(fc.Now(), time.Hour, nil))
	fc.Advance(time.Nanosecond)
	assert.Equal(t, []string{id}, s.Sweep(fc.Now(), time.Hour, nil))
	_, err := s.Get(id)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestInMemoryStore_SweepKeepsProtectedSessions(t *testing.T) {
	s, fc, c := newTestStore(t)
	busy, _ := s.Create()
	idle, _ := s.Create()
	require.NoError(t, c.SetInitial(busy, "desc", "code"))
	fc.Advance(2 * time.Hour)

	removed := s.Sweep(fc.Now(), time.Hour, func(id string) bool { return id == busy })
	assert.Equal(t, []string{idle}, removed)

	_, err := s.Get(busy)
	assert.NoError(t, err)
	_, ok := c.Stats(busy)
	assert.True(t, ok)
}

func TestInMemoryStore_List(t *testing.T) {
	s, fc, c := newTestStore(t)
	first, _ := s.Create()
	require.NoError(t, s.SetSummary(first, "fix cache bug"))
	require.NoError(t, c.SetInitial(first, "fix cache bug", "code"))
	fc.Advance(time.Second)
	second, _ := s.Create()
	_, _ = s.AppendTurn(second, core.Turn{Question: "q"})

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, first, list[0].ID)
	assert.Equal(t, "fix cache bug", list[0].Summary)
	assert.True(t, list[0].HasCodeContext)
	assert.Equal(t, second, list[1].ID)
	assert.Equal(t, 1, list[1].TurnCount)
}

func TestInMemoryStore_Concurrency(t *testing.T) {
	s, fc, _ := newTestStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.Create()
			assert.NoError(t, err)
			_, err = s.AppendTurn(id, core.Turn{Question: fmt.Sprintf("q%d", i)})
			assert.NoError(t, err)
			_ = s.List()
			if i%2 == 0 {
				assert.NoError(t, s.Delete(id))
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			s.Sweep(fc.Now(), time.Hour, nil)
		}
	}()
	wg.Wait()
	assert.Equal(t, 25, s.Len())
}
