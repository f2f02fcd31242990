// Package gemini provides a model wrapper for the Google Gemini API using
// the google.golang.org/genai SDK.
package gemini

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/genai"

	"github.com/hupe1980/consultmesh/model"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-pro"

// Options configures the Gemini adapter. Generation defaults favour precise,
// low-variance technical answers.
type Options struct {
	Model           string
	APIKey          string
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int32
	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL string
	// HTTPClient overrides the transport.
	HTTPClient *http.Client
}

// Model wraps the Gemini generateContent endpoint behind model.Model.
type Model struct {
	client *genai.Client
	opts   Options
}

var _ model.Model = (*Model)(nil)

func defaultOptions() Options {
	return Options{
		Model:           DefaultModel,
		Temperature:     0.2,
		TopP:            0.95,
		TopK:            40,
		MaxOutputTokens: 8192,
	}
}

// NewModel creates a Gemini model. The API key falls back to the SDK's
// environment lookup (GEMINI_API_KEY / GOOGLE_API_KEY) when empty.
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Model{client: client, opts: opts}, nil
}

// Complete sends the prompt as a single user turn.
func (m *Model) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	maxTokens := m.opts.MaxOutputTokens
	if req.MaxOutputTokens > 0 {
		maxTokens = int32(req.MaxOutputTokens)
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(m.opts.Temperature),
		TopP:            genai.Ptr(m.opts.TopP),
		TopK:            genai.Ptr(m.opts.TopK),
		MaxOutputTokens: maxTokens,
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.opts.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return model.Response{}, model.ClassifyError(ctx, "gemini", statusCode(err), err)
	}
	if len(resp.Candidates) == 0 {
		reason := "no candidates returned"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + string(resp.PromptFeedback.BlockReason)
		}
		return model.Response{}, model.ClassifyError(ctx, "gemini", 0, errors.New(reason))
	}

	out := model.Response{
		Text:         resp.Text(),
		FinishReason: string(resp.Candidates[0].FinishReason),
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = &model.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "gemini"}
}

// statusCode extracts the HTTP status of a Gemini API error, or 0.
func statusCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	return 0
}
