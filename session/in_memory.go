package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/consultmesh/core"
	"github.com/hupe1980/consultmesh/internal/clock"
)

// Options configures an InMemoryStore.
type Options struct {
	// Clock supplies timestamps. Defaults to the real clock.
	Clock clock.Clock
	// Cache, when set, has its entry purged whenever a session is deleted or
	// swept so cached context never outlives its session.
	Cache core.ContextCache
	// NewID generates session identifiers. Defaults to uuid.NewString.
	NewID func() string
}

// InMemoryStore is a volatile SessionStore storing sessions in a process
// local map. A single RWMutex guards the map; only cheap bookkeeping runs
// under it. Each returned session is cloned to prevent external mutation of
// internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
	clock    clock.Clock
	cache    core.ContextCache
	newID    func() string
}

// NewInMemoryStore constructs an empty in‑memory session store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{
		Clock: clock.Real(),
		NewID: uuid.NewString,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryStore{
		sessions: make(map[string]*core.Session),
		clock:    opts.Clock,
		cache:    opts.Cache,
		newID:    opts.NewID,
	}
}

// Create allocates a new session with an empty history and returns its id.
func (s *InMemoryStore) Create() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.newID()
	for _, taken := s.sessions[id]; taken; _, taken = s.sessions[id] {
		id = s.newID()
	}
	s.sessions[id] = core.NewSession(id, s.clock.Now())
	return id, nil
}

// Get returns a clone of the session without refreshing its activity.
func (s *InMemoryStore) Get(id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, notFound(id)
	}
	return sess.Clone(), nil
}

// Touch refreshes the session's last activity and returns a clone.
func (s *InMemoryStore) Touch(id string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, notFound(id)
	}
	s.touchLocked(sess)
	return sess.Clone(), nil
}

// AppendTurn records a completed turn and refreshes activity atomically.
func (s *InMemoryStore) AppendTurn(id string, turn core.Turn) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, notFound(id)
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = s.clock.Now()
	}
	sess.Turns = append(sess.Turns, turn)
	s.touchLocked(sess)
	return sess.Clone(), nil
}

// SetSummary replaces the listing summary.
func (s *InMemoryStore) SetSummary(id, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return notFound(id)
	}
	sess.Summary = summary
	return nil
}

// Delete removes the session and its cache entry. Deleting an unknown id
// returns ErrSessionNotFound.
func (s *InMemoryStore) Delete(id string) error {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return notFound(id)
	}
	if s.cache != nil {
		s.cache.Delete(id)
	}
	return nil
}

// List returns a snapshot of all sessions ordered by creation time.
func (s *InMemoryStore) List() []core.SessionSummary {
	s.mu.RLock()
	out := make([]core.SessionSummary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, core.SessionSummary{
			ID:           sess.ID,
			Summary:      sess.Summary,
			Created:      sess.Created,
			LastActivity: sess.LastActivity,
			TurnCount:    len(sess.Turns),
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})

	if s.cache != nil {
		for i := range out {
			if st, ok := s.cache.Stats(out[i].ID); ok {
				out[i].FileCount = st.FileCount
				out[i].HasCodeContext = st.HasCodeContext
			}
		}
	}
	return out
}

// Sweep removes every session idle for longer than ttl and returns the ids
// it removed. Sessions for which keep reports true stay in place regardless
// of age. keep runs under the store lock and must not call back into the
// store. Cache entries are purged after the store lock is released.
func (s *InMemoryStore) Sweep(now time.Time, ttl time.Duration, keep func(id string) bool) []string {
	s.mu.Lock()
	var expired []string
	for id, sess := range s.sessions {
		if now.Sub(sess.LastActivity) <= ttl {
			continue
		}
		if keep != nil && keep(id) {
			continue
		}
		expired = append(expired, id)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if s.cache != nil {
		for _, id := range expired {
			s.cache.Delete(id)
		}
	}
	sort.Strings(expired)
	return expired
}

// Len returns the number of live sessions.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// touchLocked refreshes LastActivity; caller must hold the write lock.
func (s *InMemoryStore) touchLocked(sess *core.Session) {
	if now := s.clock.Now(); now.After(sess.LastActivity) {
		sess.LastActivity = now
	}
}

func notFound(id string) error {
	return &core.Error{Kind: core.KindSessionNotFound, SessionID: id}
}
