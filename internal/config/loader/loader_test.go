package loader

import (
	"errors"
	"reflect"
	"testing"
	"testing/fstest"
	"time"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"ghostpad.toml", FormatTOML},
		{"/etc/ghostpad.YAML", FormatYAML},
		{"config.yml", FormatYAML},
		{"config.json", FormatUnknown},
		{"config", FormatUnknown},
	}

	for _, tt := range tests {
		if got := DetectFormat(tt.path); got != tt.want {
			t.Errorf("DetectFormat(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestFileLoaderTOML(t *testing.T) {
	fsys := fstest.MapFS{
		"ghostpad.toml": {Data: []byte(`
[ai]
model = "gpt-4o-mini"
temperature = 0.1
excludeLanguages = ["markdown", "plain*"]

[completion]
rateLimit = 4
retryTtl = "45s"
`)},
	}

	got, err := NewFileLoaderFS(fsys, "ghostpad.toml").Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	ai, ok := got["ai"].(map[string]any)
	if !ok {
		t.Fatalf("ai section = %T, want map", got["ai"])
	}
	if ai["model"] != "gpt-4o-mini" {
		t.Errorf("ai.model = %v, want gpt-4o-mini", ai["model"])
	}
	if ai["temperature"] != 0.1 {
		t.Errorf("ai.temperature = %v, want 0.1", ai["temperature"])
	}
	if langs, ok := ai["excludeLanguages"].([]any); !ok || len(langs) != 2 {
		t.Errorf("ai.excludeLanguages = %#v, want two entries", ai["excludeLanguages"])
	}

	completion := got["completion"].(map[string]any)
	if completion["rateLimit"] != int64(4) {
		t.Errorf("completion.rateLimit = %#v, want int64(4)", completion["rateLimit"])
	}
}

func TestFileLoaderYAML(t *testing.T) {
	fsys := fstest.MapFS{
		"ghostpad.yaml": {Data: []byte(`
ai:
  provider: anthropic
  maxTokens: 48
ghost:
  retriggerRatio: 0.8
`)},
	}

	got, err := NewFileLoaderFS(fsys, "ghostpad.yaml").Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	ai := got["ai"].(map[string]any)
	if ai["provider"] != "anthropic" {
		t.Errorf("ai.provider = %v, want anthropic", ai["provider"])
	}
	if ai["maxTokens"] != 48 {
		t.Errorf("ai.maxTokens = %#v, want 48", ai["maxTokens"])
	}
	ghost := got["ghost"].(map[string]any)
	if ghost["retriggerRatio"] != 0.8 {
		t.Errorf("ghost.retriggerRatio = %v, want 0.8", ghost["retriggerRatio"])
	}
}

func TestFileLoaderMissingFile(t *testing.T) {
	got, err := NewFileLoaderFS(fstest.MapFS{}, "missing.toml").Load()
	if err != nil || got != nil {
		t.Errorf("Load() = %v, %v, want nil, nil", got, err)
	}
}

func TestFileLoaderParseError(t *testing.T) {
	fsys := fstest.MapFS{
		"bad.toml": {Data: []byte("[ai\nmodel = ")},
	}

	_, err := NewFileLoaderFS(fsys, "bad.toml").Load()
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Load() error = %v, want *ParseError", err)
	}
	if perr.Path != "bad.toml" || perr.Format != FormatTOML {
		t.Errorf("ParseError = %+v", perr)
	}
}

func TestFileLoaderUnsupported(t *testing.T) {
	fsys := fstest.MapFS{
		"ghostpad.json": {Data: []byte(`{}`)},
	}

	_, err := NewFileLoaderFS(fsys, "ghostpad.json").Load()
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Load() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestEnvLoader(t *testing.T) {
	env := []string{
		"GHOSTPAD_LOG_LEVEL=debug",
		"GHOSTPAD_API_KEY=sk-test",
		"GHOSTPAD_AI_BASE_URL=http://localhost:8080",
		"GHOSTPAD_COMPLETION_RATE_LIMIT=3",
		"GHOSTPAD_COMPLETION_RETRY_DELAY=500ms",
		"GHOSTPAD_AI_ENABLED=yes",
		"GHOSTPAD_NOSECTION=1",
		"OTHER_VAR=ignored",
	}

	got, err := NewEnvLoaderFrom(DefaultEnvPrefix, env).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := map[string]any{
		"logging": map[string]any{"level": "debug"},
		"ai": map[string]any{
			"apiKey":  "sk-test",
			"baseUrl": "http://localhost:8080",
			"enabled": true,
		},
		"completion": map[string]any{
			"rateLimit":  int64(3),
			"retryDelay": 500 * time.Millisecond,
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %#v, want %#v", got, want)
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"", ""},
		{"true", true},
		{"Off", false},
		{"1", int64(1)},
		{"0.25", 0.25},
		{"2s", 2 * time.Second},
		{`["go","lua"]`, []any{"go", "lua"}},
		{"plain", "plain"},
	}

	for _, tt := range tests {
		if got := ParseValue(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseValue(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestDeepMerge(t *testing.T) {
	dst := map[string]any{
		"ai":      map[string]any{"model": "a", "temperature": 0.2},
		"logging": map[string]any{"level": "info"},
	}
	src := map[string]any{
		"ai":      map[string]any{"model": "b"},
		"logging": "flat",
	}

	got := DeepMerge(dst, src)
	want := map[string]any{
		"ai":      map[string]any{"model": "b", "temperature": 0.2},
		"logging": "flat",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DeepMerge() = %#v, want %#v", got, want)
	}
}

func TestCloneIsDeep(t *testing.T) {
	src := map[string]any{
		"ai": map[string]any{"langs": []any{"go"}},
	}
	dst := Clone(src)
	dst["ai"].(map[string]any)["langs"].([]any)[0] = "lua"

	if src["ai"].(map[string]any)["langs"].([]any)[0] != "go" {
		t.Error("Clone() shares nested slices with the source")
	}
}
