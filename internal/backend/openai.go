package backend

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/dshills/ghostpad/internal/config"
	"github.com/dshills/ghostpad/internal/logging"
)

// OpenAIBackend uses the official OpenAI SDK. BaseURL, when set, points
// it at another service speaking the same API.
type OpenAIBackend struct {
	client openai.Client
	model  string
	log    *logging.Logger
}

// NewOpenAI creates an OpenAI SDK backend for cfg.
func NewOpenAI(cfg config.AIConfig, opts ...Option) *OpenAIBackend {
	o := buildOptions(cfg, opts)

	clientOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(o.httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(endpoint(cfg.BaseURL, "/v1/")))
	}

	return &OpenAIBackend{
		client: openai.NewClient(clientOpts...),
		model:  cfg.Model,
		log:    o.log,
	}
}

// Name implements Backend.
func (b *OpenAIBackend) Name() string {
	return config.ProviderOpenAI
}

// Complete implements Backend.
func (b *OpenAIBackend) Complete(ctx context.Context, req Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(b.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	b.log.Debug("chat completion model=%s max_tokens=%d", b.model, req.MaxTokens)
	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", &Error{Provider: b.Name(), Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
