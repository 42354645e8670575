package generation

import (
	"context"
	"errors"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI implements Generator using the openai-go SDK (chat completions).
type OpenAI struct {
	model string
	opts  []option.RequestOption
}

// NewOpenAI validates settings and builds the client options.
func NewOpenAI(cfg Settings) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("generation: openai api key missing")
	}
	if cfg.Model == "" {
		return nil, errors.New("generation: model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAI{model: cfg.Model, opts: opts}, nil
}

// Complete sends a single chat completion request.
func (o *OpenAI) Complete(ctx context.Context, prompt Prompt) (string, error) {
	client := openai.NewClient(o.opts...)
	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.System),
			openai.UserMessage(prompt.User),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("generation: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}
