package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/consultmesh/core"
)

// Request is a fully assembled prompt ready to be sent.
type Request struct {
	Prompt          string `json:"prompt"`
	MaxOutputTokens int    `json:"max_output_tokens,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the completion for a Request.
type Response struct {
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", ...
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "gemini", "anthropic", "openai", "mock"
}

// Model is the minimal interface the engine needs to execute a turn.
// Implementations must honour ctx cancellation and return errors built with
// ClassifyError.
type Model interface {
	Complete(ctx context.Context, req Request) (Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// ClassifyError maps a provider failure onto the consultmesh error taxonomy.
// statusCode is the HTTP status reported by the provider SDK (0 if unknown).
func ClassifyError(ctx context.Context, provider string, statusCode int, err error) error {
	if err == nil {
		return nil
	}
	kind := core.KindTransport
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		kind = core.KindTimeout
	case statusCode == 429 || strings.Contains(err.Error(), "RESOURCE_EXHAUSTED"):
		kind = core.KindQuotaExceeded
	}
	return &core.Error{Kind: kind, Msg: provider + " api error", Err: err}
}

// MockModel is a lightweight in‑memory Model useful for tests & examples.
// It records every prompt it receives.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	responses map[string]string
	errs      []error
	delay     time.Duration
	prompts   []string
	inFlight  int
	maxFlight int
}

// NewMockModel constructs a MockModel.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: provider},
		responses: make(map[string]string),
	}
}

// AddResponse registers a canned completion returned when the prompt
// contains the given marker.
func (m *MockModel) AddResponse(marker, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[marker] = response
}

// FailNext queues errors returned by the next calls, in order.
func (m *MockModel) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
}

// SetDelay makes every call block for d (or until ctx ends).
func (m *MockModel) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Prompts returns a copy of every prompt received so far.
func (m *MockModel) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// MaxConcurrent returns the highest number of overlapping calls observed.
func (m *MockModel) MaxConcurrent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxFlight
}

// Complete implements Model.
func (m *MockModel) Complete(ctx context.Context, req Request) (Response, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, req.Prompt)
	m.inFlight++
	if m.inFlight > m.maxFlight {
		m.maxFlight = m.inFlight
	}
	delay := m.delay
	var queued error
	if len(m.errs) > 0 {
		queued, m.errs = m.errs[0], m.errs[1:]
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Response{}, ClassifyError(ctx, m.info.Provider, 0, ctx.Err())
		case <-t.C:
		}
	}
	if queued != nil {
		return Response{}, queued
	}
	if req.Prompt == "" {
		return Response{}, &core.Error{Kind: core.KindInvalidRequest, Msg: "empty prompt"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for marker, resp := range m.responses {
		if strings.Contains(req.Prompt, marker) {
			return Response{Text: resp, FinishReason: "stop"}, nil
		}
	}
	return Response{Text: fmt.Sprintf("Mock response #%d", len(m.prompts)), FinishReason: "stop"}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
