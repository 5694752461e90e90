package embed

import (
	"context"
	"errors"
	"os"
	"strings"
)

// Embedder is a pluggable text-embedding provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ErrNotSupported signals a provider that cannot produce embeddings; callers
// fall back to another provider.
var ErrNotSupported = errors.New("embedding not supported")

// ---------- Dummy (fallback) ----------

// DummyEmbedder produces deterministic vectors from the raw bytes of the
// input. Good enough for tests and offline runs.
type DummyEmbedder struct{}

func (DummyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return DummyEmbedding(text), nil
}

// DummyEmbedding folds the input bytes into a fixed 768-dim vector.
func DummyEmbedding(text string) []float32 {
	vec := make([]float32, 768)
	for i, ch := range []byte(text) {
		vec[i%768] += float32(ch) / 255.0
	}
	return vec
}

// AutoEmbedder chooses a provider from env:
// CTXMEM_EMBED_PROVIDER=openai|google|gemini|ollama|claude|fastembed
// CTXMEM_EMBED_MODEL=<model string>
// If not set, it infers from available API keys/OLLAMA_HOST, else dummy.
func AutoEmbedder() Embedder {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("CTXMEM_EMBED_PROVIDER")))
	model := strings.TrimSpace(os.Getenv("CTXMEM_EMBED_MODEL"))

	switch provider {
	case "openai":
		if e, err := NewOpenAIEmbedder(model); err == nil {
			return e
		}
	case "google", "gemini", "vertex", "vertexai":
		if e, err := NewGeminiEmbedder(model); err == nil {
			return e
		}
	case "ollama":
		if e, err := NewOllamaEmbedder(model); err == nil {
			return e
		}
	case "claude", "anthropic":
		if e, err := NewClaudeEmbedder(model); err == nil {
			return e
		}
	case "fastembed":
		if opts := defaultFastEmbedOptions(); opts != nil {
			if e, err := NewFastEmbedder(context.Background(), opts); err == nil {
				return e
			}
		}
	}

	if os.Getenv("OPENAI_API_KEY") != "" {
		if e, err := NewOpenAIEmbedder(model); err == nil {
			return e
		}
	}
	if os.Getenv("GOOGLE_API_KEY") != "" || os.Getenv("GEMINI_API_KEY") != "" {
		if e, err := NewGeminiEmbedder(model); err == nil {
			return e
		}
	}
	if os.Getenv("OLLAMA_HOST") != "" {
		if e, err := NewOllamaEmbedder(model); err == nil {
			return e
		}
	}
	return DummyEmbedder{}
}
