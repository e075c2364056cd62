package completion

import (
	"fmt"
	"strings"

	"github.com/dshills/ghostpad/internal/backend"
)

const primarySystem = `You are an inline code completion engine.
Reply with only the text to insert at the cursor marker <CURSOR>.
Do not repeat text that is already before or after the cursor.
Do not explain. Do not use Markdown or code fences.
If nothing useful fits, reply with an empty message.`

const retrySystem = `You are an inline code completion engine.
Your previous suggestion was rejected. Reply with a short alternative only,
at most %d characters, that does not overlap the text around the cursor.
Do not explain. Do not use Markdown or code fences.`

// PrimaryRequest builds the full-context fill-in-the-middle request.
func PrimaryRequest(ctx Context, temperature float64, maxTokens int) backend.Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\n", languageName(ctx.Language))
	fmt.Fprintf(&b, "The cursor is in %s.\n\n", kindPhrase(ctx.Kind))
	b.WriteString(ctx.Prefix)
	b.WriteString("<CURSOR>")
	b.WriteString(ctx.Suffix)

	return backend.Request{
		System:      primarySystem,
		User:        b.String(),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}

// RetryRequest builds the shorter request sent after a rejection. It
// names the rejecting filter and its reason.
func RetryRequest(ctx Context, v Verdict, rejected string, temperature float64, maxChars, maxTokens int) backend.Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\n", languageName(ctx.Language))
	fmt.Fprintf(&b, "Rejected suggestion: %q\n", rejected)
	fmt.Fprintf(&b, "Rejected by the %s check: %s\n\n", v.Filter, v.Reason)
	fmt.Fprintf(&b, "Line: %s<CURSOR>%s\n", ctx.Before, ctx.After)

	return backend.Request{
		System:      fmt.Sprintf(retrySystem, maxChars),
		User:        b.String(),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}

func languageName(id string) string {
	if id == "" {
		return "plaintext"
	}
	return id
}

func kindPhrase(k LineKind) string {
	switch k {
	case LineComment:
		return "a comment; continue the comment in plain words"
	case LineString:
		return "a string literal"
	default:
		return "code"
	}
}
