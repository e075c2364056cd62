package completion

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize cleans raw model output: carriage returns and surrounding
// Markdown code fences are removed, the text is NFC-normalized and
// trimmed.
func Normalize(raw string) string {
	s := strings.ReplaceAll(raw, "\r", "")
	s = stripFences(strings.TrimSpace(s))
	s = norm.NFC.String(s)
	return strings.TrimSpace(s)
}

func stripFences(s string) string {
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimLeft(s, "`")
		}
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimRight(s, "\n")
	}
	// A single inline code span around the whole answer.
	if len(s) > 2 && strings.Count(s, "`") == 2 && s[0] == '`' && s[len(s)-1] == '`' {
		s = s[1 : len(s)-1]
	}
	return s
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	return headRunes(s, n)
}
