package nlp

import (
	"context"
	"errors"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAISettings configures an OpenAI-compatible chat completion endpoint.
type OpenAISettings struct {
	Model   string
	APIKey  string
	BaseURL string
}

// OpenAICompleter implements Completer using the official openai-go SDK.
type OpenAICompleter struct {
	Model string
	Opts  []option.RequestOption
}

func NewOpenAICompleter(cfg OpenAISettings) (*OpenAICompleter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("nlp: openai api key missing; set nlp.api_key")
	}
	if cfg.Model == "" {
		return nil, errors.New("nlp: llm model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(1)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAICompleter{Model: cfg.Model, Opts: opts}, nil
}

func (o *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	client := openai.NewClient(o.Opts...)

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}
