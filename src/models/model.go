package models

import (
	"context"
	"fmt"
)

// Model is a text-in, text-out language model used for summarization and
// topic extraction.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// NewProvider returns a concrete Model for the named provider.
func NewProvider(ctx context.Context, provider, model, promptPrefix string) (Model, error) {
	switch provider {
	case "openai":
		return NewOpenAIModel(model, promptPrefix), nil
	case "gemini", "google":
		return NewGeminiModel(ctx, model, promptPrefix)
	case "ollama":
		return NewOllamaModel(model, promptPrefix)
	case "anthropic", "claude":
		return NewAnthropicModel(model, promptPrefix), nil
	case "dummy", "":
		return NewDummyModel(""), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}
