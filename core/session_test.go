package core

import (
	"testing"
	"time"
)

func TestSession_CloneIsolation(t *testing.T) {
	now := time.Now()
	s := NewSession("s1", now)
	s.Turns = append(s.Turns, Turn{Question: "q1", Answer: "a1", Timestamp: now})

	clone := s.Clone()
	if clone == s {
		t.Error("Clone should be a different pointer")
	}

	clone.Turns[0].Answer = "changed"
	clone.Turns = append(clone.Turns, Turn{Question: "q2"})

	if s.Turns[0].Answer != "a1" {
		t.Errorf("original turn mutated through clone: %q", s.Turns[0].Answer)
	}
	if s.TurnCount() != 1 {
		t.Fatalf("expected 1 turn on original, got %d", s.TurnCount())
	}
}

func TestConsultRequest_FileRequests(t *testing.T) {
	req := ConsultRequest{
		AttachedFiles:    []string{"a.go", "", "b.go", "a.go"},
		FileDescriptions: map[string]string{"b.go": "handler"},
	}
	got := req.FileRequests()
	if len(got) != 2 {
		t.Fatalf("expected 2 file requests, got %d", len(got))
	}
	if got[0].Path != "a.go" || got[1].Path != "b.go" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[1].Description != "handler" {
		t.Fatalf("expected description to be carried, got %q", got[1].Description)
	}
}
