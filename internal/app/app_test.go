package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dshills/ghostpad/internal/backend"
	"github.com/dshills/ghostpad/internal/config"
	"github.com/dshills/ghostpad/internal/editor"
	"github.com/dshills/ghostpad/internal/schedule"
)

type stubBackend struct {
	mu    sync.Mutex
	reply string
	calls int
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Complete(context.Context, backend.Request) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return b.reply, nil
}

// seqBackend answers with replies in order.
type seqBackend struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (b *seqBackend) Name() string { return "seq" }

func (b *seqBackend) Complete(context.Context, backend.Request) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.calls > len(b.replies) {
		return "", nil
	}
	return b.replies[b.calls-1], nil
}

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		SettingsPath: MemorySettings,
		Environ:      []string{},
		LogOutput:    &bytes.Buffer{},
	}
}

func newTestApp(t *testing.T, opts Options) *Application {
	t.Helper()
	app, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(app.Shutdown)
	return app
}

func configure(t *testing.T, app *Application) {
	t.Helper()
	ctx := context.Background()
	for key, value := range map[string]string{
		"ai.enabled": "true",
		"ai.baseUrl": "http://localhost:11434",
		"ai.apiKey":  "secret",
		"ai.model":   "test-model",
	} {
		if err := app.SetSetting(ctx, key, value); err != nil {
			t.Fatalf("SetSetting(%s) error = %v", key, err)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	app := newTestApp(t, testOptions(t))

	if app.Pipeline().Configured() {
		t.Error("Configured() = true without AI settings")
	}
	if got := app.Config().Completion().RateLimit; got != 6 {
		t.Errorf("RateLimit = %d, want 6", got)
	}

	app.Shutdown()
	app.Shutdown()
	if _, err := app.OpenText("a.go", "go", "x"); !errors.Is(err, ErrShutdown) {
		t.Errorf("OpenText() after Shutdown error = %v, want ErrShutdown", err)
	}
}

func TestCompleteEndToEnd(t *testing.T) {
	stub := &stubBackend{reply: "compute(1)"}
	opts := testOptions(t)
	opts.Backend = stub
	app := newTestApp(t, opts)

	doc, err := app.OpenText("main.go", "go", "package main\n\nx := ")
	if err != nil {
		t.Fatal(err)
	}
	pos := editor.Position{Line: 3, Column: 6}

	if _, err := app.Complete(context.Background(), doc, pos); err == nil {
		t.Fatal("Complete() succeeded before AI settings were stored")
	}

	// Storing settings broadcasts a change the session reloads on.
	configure(t, app)

	sug, err := app.Complete(context.Background(), doc, pos)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if sug.Text != "compute(1)" || sug.Label != "compute(1)" {
		t.Errorf("Complete() = %+v", sug)
	}
	if snap := app.Metrics(); snap.Accepted != 1 {
		t.Errorf("Metrics().Accepted = %d, want 1", snap.Accepted)
	}
	if stub.calls != 1 {
		t.Errorf("backend calls = %d, want 1", stub.calls)
	}
}

func TestCompleteInvalidPosition(t *testing.T) {
	app := newTestApp(t, testOptions(t))
	doc, err := app.OpenText("a.go", "go", "x")
	if err != nil {
		t.Fatal(err)
	}

	_, err = app.Complete(context.Background(), doc, editor.Position{Line: 4, Column: 1})
	if !errors.Is(err, ErrInvalidPosition) {
		t.Errorf("Complete() error = %v, want ErrInvalidPosition", err)
	}
}

func TestEnvironConfiguresAI(t *testing.T) {
	opts := testOptions(t)
	opts.Environ = []string{
		"GHOSTPAD_AI_ENABLED=true",
		"GHOSTPAD_AI_BASE_URL=http://localhost:8080",
		"GHOSTPAD_API_KEY=k",
		"GHOSTPAD_AI_MODEL=m",
		"HOME=/tmp",
	}
	app := newTestApp(t, opts)

	ai, err := app.AI(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !ai.Complete() || ai.BaseURL != "http://localhost:8080" {
		t.Errorf("AI() = %+v, missing %v", ai, ai.Missing())
	}
	if !app.Pipeline().Configured() {
		t.Error("Configured() = false with a complete environment")
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ghostpad.toml")
	content := "[completion]\nrateLimit = 2\n\n[ghost]\nretriggerRatio = 0.5\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := testOptions(t)
	opts.ConfigPath = path
	app := newTestApp(t, opts)

	if got := app.Config().Completion().RateLimit; got != 2 {
		t.Errorf("RateLimit = %d, want 2", got)
	}
	if got := app.Config().Ghost().RetriggerRatio; got != 0.5 {
		t.Errorf("RetriggerRatio = %v, want 0.5", got)
	}
}

func TestBoltSettingsPersist(t *testing.T) {
	opts := testOptions(t)
	opts.SettingsPath = filepath.Join(t.TempDir(), "settings.db")

	app, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := app.SetSetting(context.Background(), "ai.model", "persisted"); err != nil {
		t.Fatal(err)
	}
	app.Shutdown()

	app = newTestApp(t, opts)
	v, err := app.GetSetting(context.Background(), "ai.model")
	if err != nil {
		t.Fatalf("GetSetting() error = %v", err)
	}
	if v != "persisted" {
		t.Errorf("GetSetting() = %v, want persisted", v)
	}
}

func TestSettingErrors(t *testing.T) {
	app := newTestApp(t, testOptions(t))
	ctx := context.Background()

	if err := app.SetSetting(ctx, "ai.nope", "x"); err == nil {
		t.Error("SetSetting() with an unknown key succeeded")
	}
	if err := app.SetSetting(ctx, "ai.enabled", "maybe"); err == nil {
		t.Error("SetSetting() with a bad bool succeeded")
	}
	var opErr *OperationError
	if _, err := app.GetSetting(ctx, "ai.model"); !errors.As(err, &opErr) {
		t.Errorf("GetSetting() of an unset key error = %v, want *OperationError", err)
	}
}

func TestDocuments(t *testing.T) {
	app := newTestApp(t, testOptions(t))

	path := filepath.Join(t.TempDir(), "main.py")
	if err := os.WriteFile(path, []byte("def f():\n    pass\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := app.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	if doc.LanguageID != "python" || doc.Name != "main.py" {
		t.Errorf("document = %q (%s)", doc.Name, doc.LanguageID)
	}
	if _, err := app.OpenFile(path); !errors.Is(err, ErrDocumentAlreadyOpen) {
		t.Errorf("second OpenFile() error = %v, want ErrDocumentAlreadyOpen", err)
	}
	if got, ok := app.Document(path); !ok || got != doc {
		t.Error("Document() did not find the open file")
	}
	if n := app.Host().(*editor.MemoryHost).SourceCount("python"); n != 1 {
		t.Errorf("SourceCount() = %d, want 1", n)
	}

	if err := app.CloseDocument(doc); err != nil {
		t.Fatalf("CloseDocument() error = %v", err)
	}
	if app.Documents() != 0 {
		t.Errorf("Documents() = %d, want 0", app.Documents())
	}
	if err := app.CloseDocument(doc); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("second CloseDocument() error = %v, want ErrDocumentNotFound", err)
	}
	if _, err := app.OpenFile(filepath.Join(t.TempDir(), "missing.go")); err == nil {
		t.Error("OpenFile() of a missing file succeeded")
	}
}

func TestCompleteAcrossDocuments(t *testing.T) {
	clock := schedule.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	seq := &seqBackend{replies: []string{"resultValue", "fromA", "bubble()"}}
	opts := testOptions(t)
	opts.Backend = seq
	opts.Clock = clock
	app := newTestApp(t, opts)
	configure(t, app)

	docA, err := app.OpenText("a.go", "go", "return result")
	if err != nil {
		t.Fatal(err)
	}
	docB, err := app.OpenText("b.go", "go", "return result")
	if err != nil {
		t.Fatal(err)
	}
	pos := editor.Position{Line: 1, Column: 14}
	ctx := context.Background()

	if _, err := app.Complete(ctx, docA, pos); err == nil {
		t.Fatal("Complete(a.go) should reject the first suggestion")
	}
	clock.Advance(config.DefaultRetryDelay)

	tests := []struct {
		name      string
		doc       *Document
		wantText  string
		wantRetry bool
	}{
		{"other document asks the backend", docB, "bubble()", false},
		{"owner gets its retry", docA, "fromA", true},
	}
	for _, tt := range tests {
		sug, err := app.Complete(ctx, tt.doc, pos)
		if err != nil {
			t.Fatalf("%s: Complete() error = %v", tt.name, err)
		}
		if sug.Text != tt.wantText || sug.Retry != tt.wantRetry {
			t.Errorf("%s: Complete() = %q retry=%v, want %q retry=%v", tt.name, sug.Text, sug.Retry, tt.wantText, tt.wantRetry)
		}
	}
	if seq.calls != 3 {
		t.Errorf("backend calls = %d, want 3", seq.calls)
	}
}

func TestGhostTextStaysInItsDocument(t *testing.T) {
	app := newTestApp(t, testOptions(t))
	docA, err := app.OpenText("a.go", "go", "x := ")
	if err != nil {
		t.Fatal(err)
	}
	docB, err := app.OpenText("b.go", "go", "y := ")
	if err != nil {
		t.Fatal(err)
	}
	at := editor.Position{Line: 1, Column: 6}
	if _, ok := docA.Ghosts.Create("42", editor.Range{Start: at}); !ok {
		t.Fatal("Create() failed")
	}

	// Completion is not configured, so only ghost text can answer.
	host := app.Host().(*editor.MemoryHost)
	tests := []struct {
		name   string
		doc    *Document
		wantOK bool
	}{
		{"owner", docA, true},
		{"other document", docB, false},
	}
	for _, tt := range tests {
		item, ok := host.Query(context.Background(), tt.doc.Buffer, at)
		if ok != tt.wantOK || (ok && item.Text != "42") {
			t.Errorf("%s: Query() = %+v, %v, want ok=%v", tt.name, item, ok, tt.wantOK)
		}
	}
}
