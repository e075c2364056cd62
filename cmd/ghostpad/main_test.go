package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func runArgs(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunExitCodes(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no command", nil, 2},
		{"help", []string{"-h"}, 0},
		{"unknown command", []string{"frobnicate"}, 2},
		{"bad log level", []string{"-log-level", "loud", "version"}, 2},
		{"bad flag", []string{"-nope"}, 2},
		{"complete without file", []string{"-settings", ":memory:", "complete", "-line", "1", "-col", "1"}, 2},
		{"settings without action", []string{"-settings", ":memory:", "settings"}, 2},
		{"settings bad action", []string{"-settings", ":memory:", "settings", "rename", "a", "b"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _, _ := runArgs(t, tt.args...); got != tt.want {
				t.Errorf("run(%v) = %d, want %d", tt.args, got, tt.want)
			}
		})
	}
}

func TestRunVersion(t *testing.T) {
	code, out, _ := runArgs(t, "version")
	if code != 0 {
		t.Fatalf("run(version) = %d, want 0", code)
	}
	if !strings.Contains(out, "ghostpad dev") {
		t.Errorf("version output = %q, want it to contain %q", out, "ghostpad dev")
	}
}

func TestRunSettings(t *testing.T) {
	db := filepath.Join(t.TempDir(), "settings.db")
	base := []string{"-settings", db, "-log-level", "error", "settings"}
	cmd := func(args ...string) (int, string) {
		code, out, _ := runArgs(t, append(append([]string{}, base...), args...)...)
		return code, out
	}

	if code, _ := cmd("set", "ai.model", "codellama"); code != 0 {
		t.Fatalf("set ai.model = %d, want 0", code)
	}
	if code, _ := cmd("set", "ai.apiKey", "sk-secret"); code != 0 {
		t.Fatalf("set ai.apiKey = %d, want 0", code)
	}
	if code, _ := cmd("set", "ai.maxTokens", "lots"); code != 1 {
		t.Errorf("set ai.maxTokens lots = %d, want 1", code)
	}

	code, out := cmd("get", "ai.model")
	if code != 0 || strings.TrimSpace(out) != "codellama" {
		t.Errorf("get ai.model = %d %q, want 0 %q", code, out, "codellama")
	}
	code, out = cmd("get", "ai.apiKey")
	if code != 0 || strings.Contains(out, "sk-secret") {
		t.Errorf("get ai.apiKey = %d %q, want the key hidden", code, out)
	}

	_, out = cmd("list")
	if !strings.Contains(out, "ai.model = codellama") {
		t.Errorf("list = %q, want ai.model entry", out)
	}
	if strings.Contains(out, "sk-secret") {
		t.Errorf("list = %q, leaks the api key", out)
	}

	if code, _ := cmd("delete", "ai.model"); code != 0 {
		t.Errorf("delete ai.model = %d, want 0", code)
	}
	if code, _ := cmd("get", "ai.model"); code != 1 {
		t.Errorf("get deleted ai.model = %d, want 1", code)
	}
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		key  string
		v    any
		want string
	}{
		{"ai.model", "gpt-4o", "gpt-4o"},
		{"ai.apiKey", "sk-123", "********"},
		{"ai.maxTokens", 64, "64"},
		{"ai.excludeLanguages", []any{"markdown", "plaintext"}, "markdown,plaintext"},
	}
	for _, tt := range tests {
		if got := display(tt.key, tt.v); got != tt.want {
			t.Errorf("display(%q, %v) = %q, want %q", tt.key, tt.v, got, tt.want)
		}
	}
}
