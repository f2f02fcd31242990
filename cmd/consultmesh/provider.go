package main

import (
	"context"
	"fmt"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/consultmesh/config"
	"github.com/hupe1980/consultmesh/core"
	"github.com/hupe1980/consultmesh/model"
	"github.com/hupe1980/consultmesh/model/anthropic"
	"github.com/hupe1980/consultmesh/model/gemini"
	"github.com/hupe1980/consultmesh/model/openai"
)

// newModel builds the model client selected by cfg.Model.Provider.
func newModel(ctx context.Context, cfg *config.Config) (model.Model, error) {
	mc := cfg.Model
	switch mc.Provider {
	case config.ProviderGemini:
		return gemini.NewModel(ctx, func(o *gemini.Options) {
			o.APIKey = mc.APIKey
			o.BaseURL = mc.BaseURL
			if mc.Name != "" {
				o.Model = mc.Name
			}
			o.Temperature = float32(mc.Temperature)
			o.TopP = float32(mc.TopP)
			o.TopK = float32(mc.TopK)
			o.MaxOutputTokens = int32(mc.MaxOutputTokens)
		})
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = mc.APIKey
			o.BaseURL = mc.BaseURL
			if mc.Name != "" {
				o.Model = sdkanthropic.Model(mc.Name)
			}
			o.Temperature = mc.Temperature
			o.MaxTokens = int64(mc.MaxOutputTokens)
		}), nil
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			o.APIKey = mc.APIKey
			o.BaseURL = mc.BaseURL
			if mc.Name != "" {
				o.Model = mc.Name
			}
			o.Temperature = mc.Temperature
			o.MaxCompletionTokens = int64(mc.MaxOutputTokens)
		}), nil
	case config.ProviderMock:
		name := mc.Name
		if name == "" {
			name = "mock"
		}
		return model.NewMockModel(name, config.ProviderMock), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", mc.Provider)
	}
}

func limitPolicy(s string) core.LimitPolicy {
	p, err := core.ParseLimitPolicy(s)
	if err != nil {
		return core.PolicyBlock
	}
	return p
}
