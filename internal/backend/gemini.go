package backend

import (
	"context"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dshills/ghostpad/internal/config"
	"github.com/dshills/ghostpad/internal/logging"
)

// GeminiBackend uses the Google Generative AI SDK. The client is created
// on first use and kept until Close.
type GeminiBackend struct {
	apiKey  string
	baseURL string
	model   string
	log     *logging.Logger

	mu     sync.Mutex
	client *genai.Client
}

// NewGemini creates a Gemini backend for cfg.
func NewGemini(cfg config.AIConfig, opts ...Option) *GeminiBackend {
	o := buildOptions(cfg, opts)
	return &GeminiBackend{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		log:     o.log,
	}
}

// Name implements Backend.
func (b *GeminiBackend) Name() string {
	return config.ProviderGemini
}

func (b *GeminiBackend) getClient(ctx context.Context) (*genai.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil {
		return b.client, nil
	}
	clientOpts := []option.ClientOption{option.WithAPIKey(b.apiKey)}
	if b.baseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(b.baseURL))
	}
	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, err
	}
	b.client = client
	return client, nil
}

// Complete implements Backend.
func (b *GeminiBackend) Complete(ctx context.Context, req Request) (string, error) {
	client, err := b.getClient(ctx)
	if err != nil {
		return "", &Error{Provider: b.Name(), Message: "creating client", Err: err}
	}

	model := client.GenerativeModel(b.model)
	model.SetTemperature(float32(req.Temperature))
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}

	b.log.Debug("generate content model=%s max_tokens=%d", b.model, req.MaxTokens)
	resp, err := model.GenerateContent(ctx, genai.Text(req.User))
	if err != nil {
		return "", &Error{Provider: b.Name(), Err: err}
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}
	return out.String(), nil
}

// Close releases the SDK client.
func (b *GeminiBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}
