package models

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

type OllamaModel struct {
	Client       *ollama.Client
	Model        string
	PromptPrefix string
}

func NewOllamaModel(model string, promptPrefix string) (*OllamaModel, error) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", host, err)
	}

	httpClient := &http.Client{
		Timeout: 60 * time.Second,
	}

	c := ollama.NewClient(u, httpClient)
	return &OllamaModel{
		Client:       c,
		Model:        model,
		PromptPrefix: promptPrefix,
	}, nil
}

func (o *OllamaModel) Generate(ctx context.Context, prompt string) (string, error) {
	fullPrompt := prompt
	if o.PromptPrefix != "" {
		fullPrompt = fmt.Sprintf("%s\n\n%s", o.PromptPrefix, prompt)
	}

	var text strings.Builder
	req := &ollama.GenerateRequest{
		Model:  o.Model,
		Prompt: fullPrompt,
	}
	if err := o.Client.Generate(ctx, req, func(gr ollama.GenerateResponse) error {
		if gr.Response != "" {
			text.WriteString(gr.Response)
		}
		return nil
	}); err != nil {
		return "", err
	}
	return text.String(), nil
}

var _ Model = (*OllamaModel)(nil)
