package testutil

import "github.com/hupe1980/consultmesh/core"

// RequestBuilder helps construct consult requests with fluent chaining.
// Example:
//
//	req := NewRequest("why stale?").Problem("fix cache bug").Code("...").Approach("debug").Build()
type RequestBuilder struct {
	req core.ConsultRequest
}

// NewRequest starts a builder for the given question.
func NewRequest(question string) *RequestBuilder {
	return &RequestBuilder{req: core.ConsultRequest{Question: question}}
}

// Session continues an existing session (chainable).
func (b *RequestBuilder) Session(id string) *RequestBuilder { b.req.SessionID = id; return b }

// Problem sets the problem description (chainable).
func (b *RequestBuilder) Problem(p string) *RequestBuilder { b.req.ProblemDescription = p; return b }

// Code sets the code context (chainable).
func (b *RequestBuilder) Code(c string) *RequestBuilder { b.req.CodeContext = c; return b }

// File attaches a path with an optional description (chainable).
func (b *RequestBuilder) File(path, description string) *RequestBuilder {
	b.req.AttachedFiles = append(b.req.AttachedFiles, path)
	if description != "" {
		if b.req.FileDescriptions == nil {
			b.req.FileDescriptions = map[string]string{}
		}
		b.req.FileDescriptions[path] = description
	}
	return b
}

// Extra sets the additional context (chainable).
func (b *RequestBuilder) Extra(c string) *RequestBuilder { b.req.AdditionalContext = c; return b }

// Approach sets the preferred approach (chainable).
func (b *RequestBuilder) Approach(a string) *RequestBuilder { b.req.PreferredApproach = a; return b }

// Build returns the request.
func (b *RequestBuilder) Build() core.ConsultRequest { return b.req }
