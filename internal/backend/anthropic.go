package backend

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/ghostpad/internal/config"
	"github.com/dshills/ghostpad/internal/logging"
)

// defaultAnthropicMaxTokens is used when the request sets no limit; the
// Messages API requires one.
const defaultAnthropicMaxTokens = 64

// AnthropicBackend uses the Anthropic Messages API.
type AnthropicBackend struct {
	client anthropic.Client
	model  string
	log    *logging.Logger
}

// NewAnthropic creates an Anthropic backend for cfg.
func NewAnthropic(cfg config.AIConfig, opts ...Option) *AnthropicBackend {
	o := buildOptions(cfg, opts)

	clientOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(o.httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}

	return &AnthropicBackend{
		client: anthropic.NewClient(clientOpts...),
		model:  cfg.Model,
		log:    o.log,
	}
}

// Name implements Backend.
func (b *AnthropicBackend) Name() string {
	return config.ProviderAnthropic
}

// Complete implements Backend.
func (b *AnthropicBackend) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	b.log.Debug("messages model=%s max_tokens=%d", b.model, maxTokens)
	msg, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return "", &Error{Provider: b.Name(), Err: err}
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return out.String(), nil
}
