package completion

import "strings"

// maxLabel is the rune limit of a suggestion label.
const maxLabel = 24

// Label returns the short text shown next to a suggestion: its first
// non-blank line, cut at maxLabel runes.
func Label(text string) string {
	first := ""
	for _, line := range strings.Split(text, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			first = t
			break
		}
	}
	r := []rune(first)
	if len(r) <= maxLabel {
		return first
	}
	return strings.TrimRight(string(r[:maxLabel-1]), " ") + "…"
}
