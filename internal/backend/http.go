package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/dshills/ghostpad/internal/config"
	"github.com/dshills/ghostpad/internal/logging"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// HTTPBackend calls an OpenAI-compatible chat completions endpoint
// (POST {baseUrl}/v1/chat/completions) directly over HTTP. It works with
// local servers such as llama.cpp, Ollama and vLLM.
type HTTPBackend struct {
	url    string
	apiKey string
	model  string
	client *http.Client
	log    *logging.Logger
}

// NewHTTP creates an HTTP backend for cfg.
func NewHTTP(cfg config.AIConfig, opts ...Option) *HTTPBackend {
	o := buildOptions(cfg, opts)
	return &HTTPBackend{
		url:    endpoint(cfg.BaseURL, "/v1/chat/completions"),
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		client: o.httpClient,
		log:    o.log,
	}
}

// Name implements Backend.
func (b *HTTPBackend) Name() string {
	return config.ProviderOpenAICompatible
}

// URL returns the endpoint requests are sent to.
func (b *HTTPBackend) URL() string {
	return b.url
}

// Complete implements Backend.
func (b *HTTPBackend) Complete(ctx context.Context, req Request) (string, error) {
	body, err := b.requestBody(req)
	if err != nil {
		return "", &Error{Provider: b.Name(), Message: "encoding request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Provider: b.Name(), Err: err}
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	log := b.log.WithField("request", requestID)
	if log.Enabled(logging.LevelDebug) {
		log.Debug("POST %s %s", b.url, pretty.Ugly(body))
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", &Error{Provider: b.Name(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &Error{Provider: b.Name(), Status: resp.StatusCode, Err: err}
	}
	if log.Enabled(logging.LevelDebug) {
		log.Debug("response %d %s", resp.StatusCode, pretty.Ugly(data))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(data, "error.message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", &Error{Provider: b.Name(), Status: resp.StatusCode, Message: msg}
	}
	if !gjson.ValidBytes(data) {
		return "", &Error{Provider: b.Name(), Status: resp.StatusCode, Message: "invalid JSON response"}
	}

	return gjson.GetBytes(data, "choices.0.message.content").String(), nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (b *HTTPBackend) requestBody(req Request) ([]byte, error) {
	body := []byte(`{}`)
	sets := []struct {
		path  string
		value any
	}{
		{"model", b.model},
		{"messages", []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		}},
		{"temperature", req.Temperature},
		{"max_tokens", req.MaxTokens},
		{"stream", false},
	}
	for _, s := range sets {
		var err error
		if body, err = sjson.SetBytes(body, s.path, s.value); err != nil {
			return nil, fmt.Errorf("setting %s: %w", s.path, err)
		}
	}
	return body, nil
}
