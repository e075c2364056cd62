package completion

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/dshills/ghostpad/internal/editor"
)

// Filter names, in cascade order.
const (
	FilterCommentSymbol     = "comment-symbol"
	FilterSelfDuplication   = "self-duplication"
	FilterPrefixOverlap     = "prefix-overlap"
	FilterSuffixDuplication = "suffix-duplication"
	FilterWordBoundary      = "word-boundary"
	FilterCommentSemantics  = "comment-semantics"
	FilterValidity          = "validity"
)

// Verdict is the outcome of running a suggestion through a Cascade.
type Verdict struct {
	Accepted bool
	// Filter and Reason name the first rejecting filter.
	Filter string
	Reason string
}

// Filter inspects one suggestion. Check returns ok=false and a reason to
// reject it.
type Filter interface {
	Name() string
	Check(suggestion string, ctx Context) (reason string, ok bool)
}

// FilterFunc adapts a function to Filter.
type FilterFunc struct {
	FilterName string
	Fn         func(suggestion string, ctx Context) (string, bool)
}

// Name implements Filter.
func (f FilterFunc) Name() string { return f.FilterName }

// Check implements Filter.
func (f FilterFunc) Check(suggestion string, ctx Context) (string, bool) {
	return f.Fn(suggestion, ctx)
}

// Cascade runs filters in order; the first rejection wins.
type Cascade []Filter

// DefaultCascade returns the built-in filters in their fixed order.
func DefaultCascade() Cascade {
	return Cascade{
		FilterFunc{FilterCommentSymbol, checkCommentSymbol},
		FilterFunc{FilterSelfDuplication, checkSelfDuplication},
		FilterFunc{FilterPrefixOverlap, checkPrefixOverlap},
		FilterFunc{FilterSuffixDuplication, checkSuffixDuplication},
		FilterFunc{FilterWordBoundary, checkWordBoundary},
		FilterFunc{FilterCommentSemantics, checkCommentSemantics},
		FilterFunc{FilterValidity, checkValidity},
	}
}

// With returns a copy of c with extra filters appended.
func (c Cascade) With(extra ...Filter) Cascade {
	out := make(Cascade, 0, len(c)+len(extra))
	out = append(out, c...)
	return append(out, extra...)
}

// Evaluate runs the cascade. It is deterministic for a given suggestion
// and context.
func (c Cascade) Evaluate(suggestion string, ctx Context) Verdict {
	for _, f := range c {
		if reason, ok := f.Check(suggestion, ctx); !ok {
			return Verdict{Filter: f.Name(), Reason: reason}
		}
	}
	return Verdict{Accepted: true}
}

var commentMarkers = []string{"//", "/*", "*/", "#", "<!--", "-->"}

// checkCommentSymbol keeps comment-line suggestions from opening or
// closing comments of their own.
func checkCommentSymbol(s string, ctx Context) (string, bool) {
	if ctx.Kind != LineComment {
		return "", true
	}
	if strings.TrimSpace(ctx.Line) == "" && strings.TrimSpace(ctx.Before) == "" {
		return "", true
	}
	for _, m := range commentMarkers {
		if strings.Contains(s, m) {
			return fmt.Sprintf("contains comment marker %q", m), false
		}
	}
	return "", true
}

// checkSelfDuplication rejects suggestions sharing a word with the
// current line.
func checkSelfDuplication(s string, ctx Context) (string, bool) {
	lineWords := words(ctx.Line, 3)
	for _, w := range words(s, 3) {
		for _, lw := range lineWords {
			if strings.Contains(lw, w) || strings.Contains(w, lw) {
				return fmt.Sprintf("repeats %q from the current line", lw), false
			}
		}
	}
	return "", true
}

// prefixOverlapAllowed lists idioms that legitimately overlap the text
// before the cursor.
var prefixOverlapAllowed = map[string]bool{
	"const":    true,
	"function": true,
	"this.":    true,
	"return":   true,
	"import":   true,
	"export":   true,
	"self.":    true,
}

// checkPrefixOverlap rejects suggestions that re-type the end of the text
// before the cursor.
func checkPrefixOverlap(s string, ctx Context) (string, bool) {
	tail := []rune(tailRunes(ctx.Before, 8))
	sr := []rune(s)

	for k := min(len(tail), len(sr)); k >= 4; k-- {
		overlap := string(tail[len(tail)-k:])
		if overlap != string(sr[:k]) {
			continue
		}
		if prefixOverlapAllowed[strings.TrimSpace(overlap)] {
			return "", true
		}
		return fmt.Sprintf("restates %q before the cursor", overlap), false
	}
	return "", true
}

// checkSuffixDuplication rejects suggestions that duplicate what already
// follows the cursor.
func checkSuffixDuplication(s string, ctx Context) (string, bool) {
	after := strings.TrimSpace(ctx.After)
	if after == "" {
		return "", true
	}
	if strings.Contains(after, s) || strings.Contains(s, after) {
		return "overlaps the text after the cursor", false
	}
	for _, w := range words(s, 2) {
		if strings.Contains(after, w) {
			return fmt.Sprintf("word %q already follows the cursor", w), false
		}
	}
	return "", true
}

// checkWordBoundary rejects suggestions that continue or repeat the word
// the cursor is in.
func checkWordBoundary(s string, ctx Context) (string, bool) {
	last := trailingWord(ctx.Before)
	first := leadingWord(s)
	if last == "" || first == "" {
		return "", true
	}
	if last == first {
		return fmt.Sprintf("repeats %q", last), false
	}
	if strings.Contains(last, first) || strings.Contains(first, last) {
		return fmt.Sprintf("%q and %q contain each other", last, first), false
	}

	lr, fr := []rune(last), []rune(first)
	for k := min(len(lr), len(fr)); k >= 2; k-- {
		if string(lr[len(lr)-k:]) == string(fr[:k]) {
			return fmt.Sprintf("%q overlaps %q", last, first), false
		}
	}
	return "", true
}

// stopWords are ignored when looking for repeated content words in
// comments.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "this": true,
	"that": true, "from": true, "are": true, "was": true, "not": true,
	"but": true, "you": true, "all": true, "can": true, "has": true,
	"have": true, "its": true, "into": true, "use": true, "when": true,
}

const commentJaccardLimit = 0.3

// checkCommentSemantics rejects comment suggestions that mostly restate
// the comment being written.
func checkCommentSemantics(s string, ctx Context) (string, bool) {
	if ctx.Kind != LineComment || editor.RuneLen(s) <= 3 {
		return "", true
	}

	lineSet := wordSet(ctx.Line)
	suggSet := wordSet(s)
	if j := jaccard(lineSet, suggSet); j > commentJaccardLimit {
		return fmt.Sprintf("similarity %.2f with the comment", j), false
	}

	seen := make(map[string]bool)
	for _, w := range words(strings.ToLower(s), 3) {
		if stopWords[w] {
			continue
		}
		if seen[w] || lineSet[w] {
			return fmt.Sprintf("content word %q repeats", w), false
		}
		seen[w] = true
	}
	return "", true
}

// checkValidity rejects suggestions with nothing worth inserting.
func checkValidity(s string, _ Context) (string, bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "empty", false
	}

	distinct := make(map[rune]struct{})
	meaningful := false
	for _, r := range t {
		distinct[r] = struct{}{}
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) && !unicode.IsSpace(r) {
			meaningful = true
		}
	}
	if !meaningful {
		return "punctuation only", false
	}
	if editor.RuneLen(t) > 5 && len(distinct) <= 2 {
		return "repeats one or two characters", false
	}
	return "", true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// words splits s into identifier-like words of at least minLen runes.
func words(s string, minLen int) []string {
	var out []string
	for _, w := range strings.FieldsFunc(s, func(r rune) bool { return !isWordRune(r) }) {
		if editor.RuneLen(w) >= minLen {
			out = append(out, w)
		}
	}
	return out
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range words(strings.ToLower(s), 1) {
		set[w] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func trailingWord(s string) string {
	r := []rune(s)
	i := len(r)
	for i > 0 && isWordRune(r[i-1]) {
		i--
	}
	return string(r[i:])
}

func leadingWord(s string) string {
	r := []rune(s)
	i := 0
	for i < len(r) && isWordRune(r[i]) {
		i++
	}
	return string(r[:i])
}
