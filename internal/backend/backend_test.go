package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/dshills/ghostpad/internal/config"
)

func testConfig(provider, baseURL string) config.AIConfig {
	return config.AIConfig{
		Enabled:        true,
		Provider:       provider,
		BaseURL:        baseURL,
		APIKey:         "sk-test",
		Model:          "test-model",
		RequestTimeout: 5 * time.Second,
	}
}

func testRequest() Request {
	return Request{
		System:      "complete code",
		User:        "func main() {",
		Temperature: 0.2,
		MaxTokens:   32,
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"", config.ProviderOpenAICompatible},
		{config.ProviderOpenAICompatible, config.ProviderOpenAICompatible},
		{"OpenAI", config.ProviderOpenAI},
		{config.ProviderAnthropic, config.ProviderAnthropic},
		{config.ProviderGemini, config.ProviderGemini},
	}

	for _, tt := range tests {
		b, err := New(testConfig(tt.provider, "http://localhost:1"))
		if err != nil {
			t.Errorf("New(%q) error = %v", tt.provider, err)
			continue
		}
		if got := b.Name(); got != tt.want {
			t.Errorf("New(%q).Name() = %q, want %q", tt.provider, got, tt.want)
		}
		if err := Close(b); err != nil {
			t.Errorf("Close(%q) error = %v", tt.provider, err)
		}
	}

	if _, err := New(testConfig("mystery", "")); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("New(mystery) error = %v, want ErrUnknownProvider", err)
	}
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8080", "http://localhost:8080/v1/chat/completions"},
		{"http://localhost:8080/", "http://localhost:8080/v1/chat/completions"},
		{"http://localhost:8080/v1", "http://localhost:8080/v1/chat/completions"},
		{"http://localhost:8080/v1/", "http://localhost:8080/v1/chat/completions"},
	}

	for _, tt := range tests {
		if got := endpoint(tt.base, "/v1/chat/completions"); got != tt.want {
			t.Errorf("endpoint(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestHTTPBackendComplete(t *testing.T) {
	var body []byte
	var header http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/chat/completions" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		header = r.Header.Clone()
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"fmt.Println()"}}]}`)
	}))
	defer srv.Close()

	b := NewHTTP(testConfig(config.ProviderOpenAICompatible, srv.URL))
	got, err := b.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "fmt.Println()" {
		t.Errorf("Complete() = %q, want fmt.Println()", got)
	}

	if auth := header.Get("Authorization"); auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if id := header.Get("X-Request-ID"); len(id) != 36 {
		t.Errorf("X-Request-ID = %q, want a uuid", id)
	}

	checks := map[string]string{
		"model":              "test-model",
		"messages.0.role":    "system",
		"messages.0.content": "complete code",
		"messages.1.role":    "user",
		"messages.1.content": "func main() {",
		"temperature":        "0.2",
		"max_tokens":         "32",
		"stream":             "false",
	}
	for path, want := range checks {
		if got := gjson.GetBytes(body, path).String(); got != want {
			t.Errorf("body %s = %q, want %q", path, got, want)
		}
	}
}

func TestHTTPBackendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key"}}`)
	}))
	defer srv.Close()

	_, err := NewHTTP(testConfig("", srv.URL)).Complete(context.Background(), testRequest())

	var berr *Error
	if !errors.As(err, &berr) {
		t.Fatalf("Complete() error = %v, want *Error", err)
	}
	if berr.Status != http.StatusUnauthorized || berr.Message != "bad key" {
		t.Errorf("Error = %+v", berr)
	}
	if !strings.Contains(err.Error(), "status 401") {
		t.Errorf("Error() = %q, want status in message", err.Error())
	}
}

func TestHTTPBackendInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `not json`)
	}))
	defer srv.Close()

	_, err := NewHTTP(testConfig("", srv.URL)).Complete(context.Background(), testRequest())
	var berr *Error
	if !errors.As(err, &berr) || berr.Message != "invalid JSON response" {
		t.Errorf("Complete() error = %v, want invalid JSON error", err)
	}
}

func TestHTTPBackendNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	got, err := NewHTTP(testConfig("", srv.URL)).Complete(context.Background(), testRequest())
	if err != nil || got != "" {
		t.Errorf("Complete() = %q, %v, want empty", got, err)
	}
}

func TestHTTPBackendCanceled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTP(testConfig("", srv.URL)).Complete(ctx, testRequest())
	if !Canceled(err) {
		t.Errorf("Complete() error = %v, want cancellation", err)
	}
}

func TestOpenAIBackendComplete(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"test-model",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"x := 1"}}]}`)
	}))
	defer srv.Close()

	got, err := NewOpenAI(testConfig(config.ProviderOpenAI, srv.URL)).Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "x := 1" {
		t.Errorf("Complete() = %q, want x := 1", got)
	}
	if m := gjson.GetBytes(body, "model").String(); m != "test-model" {
		t.Errorf("request model = %q", m)
	}
	if n := gjson.GetBytes(body, "messages.#").Int(); n != 2 {
		t.Errorf("request messages = %d, want 2", n)
	}
}

func TestAnthropicBackendComplete(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"m1","type":"message","role":"assistant","model":"test-model",
			"content":[{"type":"text","text":"return nil"}],
			"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`)
	}))
	defer srv.Close()

	got, err := NewAnthropic(testConfig(config.ProviderAnthropic, srv.URL)).Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "return nil" {
		t.Errorf("Complete() = %q, want return nil", got)
	}
	if s := gjson.GetBytes(body, "system.0.text").String(); s != "complete code" {
		t.Errorf("request system = %q", s)
	}
	if n := gjson.GetBytes(body, "max_tokens").Int(); n != 32 {
		t.Errorf("request max_tokens = %d, want 32", n)
	}
}

func TestErrorIs(t *testing.T) {
	inner := errors.New("boom")
	err := &Error{Provider: "p", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is should match the wrapped error")
	}
	if !errors.Is(err, err) {
		t.Error("errors.Is should match the same instance")
	}
	if errors.Is(err, &Error{Provider: "p"}) {
		t.Error("errors.Is should not match a different instance")
	}

	var nilErr *Error
	if nilErr.Error() != "" || nilErr.Unwrap() != nil {
		t.Error("nil *Error should be safe")
	}
}
