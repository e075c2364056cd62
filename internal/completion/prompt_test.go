package completion

import (
	"strings"
	"testing"
)

func TestPrimaryRequest(t *testing.T) {
	ctx := Context{
		Prefix:   "func add(a, b int) int {\n\treturn ",
		Suffix:   "\n}",
		Kind:     LineCode,
		Language: "go",
	}
	req := PrimaryRequest(ctx, 0.2, 128)

	if req.Temperature != 0.2 || req.MaxTokens != 128 {
		t.Errorf("PrimaryRequest() tuning = %v/%d, want 0.2/128", req.Temperature, req.MaxTokens)
	}
	if !strings.Contains(req.User, "\treturn <CURSOR>\n}") {
		t.Errorf("PrimaryRequest().User = %q, want cursor marker between prefix and suffix", req.User)
	}
	if !strings.HasPrefix(req.User, "Language: go\n") {
		t.Errorf("PrimaryRequest().User = %q, want language header", req.User)
	}
	if req.System == "" {
		t.Error("PrimaryRequest().System is empty")
	}
}

func TestPrimaryRequestKind(t *testing.T) {
	tests := []struct {
		kind LineKind
		lang string
		want string
	}{
		{LineCode, "", "Language: plaintext"},
		{LineComment, "go", "a comment"},
		{LineString, "go", "a string literal"},
	}
	for _, tt := range tests {
		req := PrimaryRequest(Context{Kind: tt.kind, Language: tt.lang}, 0, 0)
		if !strings.Contains(req.User, tt.want) {
			t.Errorf("PrimaryRequest(kind %v).User = %q, want it to contain %q", tt.kind, req.User, tt.want)
		}
	}
}

func TestRetryRequest(t *testing.T) {
	ctx := Context{Before: "x := ", After: ")", Language: "go"}
	v := Verdict{Filter: FilterSuffixDuplication, Reason: "repeats the text after the cursor"}
	req := RetryRequest(ctx, v, "foo)", 0.1, 50, 32)

	for _, want := range []string{
		`Rejected suggestion: "foo)"`,
		FilterSuffixDuplication,
		v.Reason,
		"Line: x := <CURSOR>)",
	} {
		if !strings.Contains(req.User, want) {
			t.Errorf("RetryRequest().User = %q, want it to contain %q", req.User, want)
		}
	}
	if !strings.Contains(req.System, "at most 50 characters") {
		t.Errorf("RetryRequest().System = %q, want the length bound", req.System)
	}
	if req.MaxTokens != 32 {
		t.Errorf("RetryRequest().MaxTokens = %d, want 32", req.MaxTokens)
	}
}
