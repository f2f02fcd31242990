package core

import (
	"time"
)

// Turn is one question/answer exchange recorded after a successful model call.
type Turn struct {
	Question          string    `json:"question"`
	AdditionalContext string    `json:"additional_context,omitempty"`
	Approach          string    `json:"approach"`
	Answer            string    `json:"answer"`
	Timestamp         time.Time `json:"timestamp"`
}

// Session is the server-side record of a multi-turn consultation.
//
// Contract:
//   - The SessionStore owns the authoritative record; callers only ever see clones
//   - Turns are append-only and ordered oldest first
//   - LastActivity never moves backwards
//   - The cached problem/code context lives in the ContextCache under the same ID
type Session struct {
	ID           string    `json:"id"`
	Created      time.Time `json:"created"`
	LastActivity time.Time `json:"last_activity"`
	Turns        []Turn    `json:"turns"`
	Summary      string    `json:"summary"`
}

// NewSession creates a new session with the given ID and timestamp.
func NewSession(id string, now time.Time) *Session {
	return &Session{ID: id, Created: now, LastActivity: now, Turns: []Turn{}}
}

// TurnCount returns the number of recorded turns.
func (s *Session) TurnCount() int { return len(s.Turns) }

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Turns = make([]Turn, len(s.Turns))
	copy(clone.Turns, s.Turns)
	return &clone
}

// SessionSummary is the listing view of a session.
type SessionSummary struct {
	ID             string    `json:"id"`
	Summary        string    `json:"summary"`
	Created        time.Time `json:"created"`
	LastActivity   time.Time `json:"last_activity"`
	TurnCount      int       `json:"turn_count"`
	FileCount      int       `json:"file_count"`
	HasCodeContext bool      `json:"has_code_context"`
}

// SessionStore persists sessions and their turn history. Implementations must
// be safe for concurrent use; every lookup on an unknown or expired id
// returns an error matching ErrSessionNotFound.
type SessionStore interface {
	Create() (string, error)
	Get(id string) (*Session, error)
	Touch(id string) (*Session, error)
	AppendTurn(id string, turn Turn) (*Session, error)
	SetSummary(id, summary string) error
	Delete(id string) error
	List() []SessionSummary
	// Sweep removes sessions idle for longer than ttl, except those keep
	// reports true for, and returns the removed ids.
	Sweep(now time.Time, ttl time.Duration, keep func(id string) bool) []string
}
