package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/hupe1980/consultmesh/core"
	"github.com/hupe1980/consultmesh/model"
)

func newTestModel(t *testing.T, h http.HandlerFunc) *Model {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	m, err := NewModel(context.Background(), func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
	})
	require.NoError(t, err)
	return m
}

func TestModel_Complete(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"check the TTL"}]},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":3,"totalTokenCount":10}}`)
	})

	resp, err := m.Complete(context.Background(), model.Request{Prompt: "why stale?"})
	require.NoError(t, err)
	assert.Equal(t, "check the TTL", resp.Text)
	assert.Equal(t, "STOP", resp.FinishReason)
	assert.Equal(t, 10, resp.Usage.TotalTokens)
	assert.Equal(t, "gemini", m.Info().Provider)
}

func TestModel_ResourceExhausted(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`)
	})

	_, err := m.Complete(context.Background(), model.Request{Prompt: "p"})
	assert.ErrorIs(t, err, core.ErrQuotaExceeded)
}

func TestModel_QuotaFromStatusCode(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"code":429,"message":"slow down","status":"UNAVAILABLE"}}`)
	})

	_, err := m.Complete(context.Background(), model.Request{Prompt: "p"})
	assert.ErrorIs(t, err, core.ErrQuotaExceeded)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, 429, statusCode(fmt.Errorf("wrapped: %w", genai.APIError{Code: 429})))
	assert.Equal(t, 503, statusCode(&genai.APIError{Code: 503}))
	assert.Zero(t, statusCode(errors.New("dial tcp: refused")))
}
