package models

import (
	"context"
	"errors"
	"os"

	"github.com/sashabaranov/go-openai"
)

type OpenAIModel struct {
	Client       *openai.Client
	Model        string
	PromptPrefix string
}

// NewOpenAIModel reads OPENAI_API_KEY (or OPENAI_KEY) from the env.
func NewOpenAIModel(model string, promptPrefix string) *OpenAIModel {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_KEY") // fallback
	}
	client := openai.NewClient(apiKey)
	return &OpenAIModel{Client: client, Model: model, PromptPrefix: promptPrefix}
}

func (o *OpenAIModel) Generate(ctx context.Context, prompt string) (string, error) {
	fullPrompt := prompt
	if o.PromptPrefix != "" {
		fullPrompt = o.PromptPrefix + "\n" + prompt
	}

	resp, err := o.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.Model,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: fullPrompt,
		}},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}

var _ Model = (*OpenAIModel)(nil)
