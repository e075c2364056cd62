package completion

import "testing"

func codeCtx(line, before string) Context {
	return Context{
		Line:   line,
		Before: before,
		After:  line[len(before):],
		Kind:   ClassifyLine(line, before),
	}
}

func TestCascadeDeterminism(t *testing.T) {
	cascade := DefaultCascade()

	v := cascade.Evaluate("resultValue", codeCtx("return result", "return result"))
	if v.Accepted || v.Filter != FilterSelfDuplication {
		t.Errorf("Evaluate(resultValue) = %+v, want rejection by %s", v, FilterSelfDuplication)
	}

	ctx := codeCtx("// todo: implement sort", "// todo: implement sort")
	if ctx.Kind != LineComment {
		t.Fatalf("Kind = %v, want comment", ctx.Kind)
	}
	for i := 0; i < 3; i++ {
		if v := cascade.Evaluate("bubbleSort(arr)", ctx); !v.Accepted {
			t.Errorf("Evaluate(bubbleSort(arr)) = %+v, want accepted", v)
		}
	}
}

func TestFilters(t *testing.T) {
	comment := func(line, before string) Context {
		c := codeCtx(line, before)
		c.Kind = LineComment
		return c
	}

	tests := []struct {
		name   string
		check  func(string, Context) (string, bool)
		sugg   string
		ctx    Context
		wantOK bool
	}{
		{"comment symbol in comment", checkCommentSymbol, "done // later", comment("// compute", "// compute"), false},
		{"comment symbol hash", checkCommentSymbol, "see #12", comment("// issue", "// issue"), false},
		{"comment symbol plain text", checkCommentSymbol, "the sum", comment("// compute", "// compute"), true},
		{"comment symbol on code line", checkCommentSymbol, "x // y", codeCtx("a := 1", "a := 1"), true},
		{"comment symbol empty line", checkCommentSymbol, "// header", Context{Kind: LineComment}, true},

		{"self dup contained", checkSelfDuplication, "resultValue", codeCtx("return result", "return result"), false},
		{"self dup containing", checkSelfDuplication, "val", codeCtx("x := value", "x := value"), false},
		{"self dup short words ignored", checkSelfDuplication, "id", codeCtx("x.id = ", "x.id = "), true},
		{"self dup distinct", checkSelfDuplication, "42", codeCtx("count := ", "count := "), true},

		{"prefix overlap", checkPrefixOverlap, "Println(x)", codeCtx("fmt.Prin", "fmt.Prin"), false},
		{"prefix overlap allowed idiom", checkPrefixOverlap, "const x = 1", codeCtx("const ", "const "), true},
		{"prefix overlap short", checkPrefixOverlap, "abc", codeCtx("xab", "xab"), true},
		{"prefix overlap none", checkPrefixOverlap, "(x)", codeCtx("foo", "foo"), true},

		{"suffix dup word", checkSuffixDuplication, "value", codeCtx("f(value)", "f("), false},
		{"suffix dup contains after", checkSuffixDuplication, "x)", codeCtx("f()", "f("), false},
		{"suffix dup empty after", checkSuffixDuplication, "value", codeCtx("f(", "f("), true},
		{"suffix dup distinct", checkSuffixDuplication, "x", codeCtx("f( y)", "f("), true},

		{"word boundary exact", checkWordBoundary, "foo()", codeCtx("foo", "foo"), false},
		{"word boundary containment", checkWordBoundary, "result", codeCtx("resu", "resu"), false},
		{"word boundary overlap", checkWordBoundary, "bcx", codeCtx("abc", "abc"), false},
		{"word boundary after separator", checkWordBoundary, "bar", codeCtx("foo.", "foo."), true},
		{"word boundary distinct", checkWordBoundary, "Sort", codeCtx("bubble", "bubble"), true},

		{"comment semantics similar", checkCommentSemantics, "sort the list quickly", comment("// sort the list", "// sort the list"), false},
		{"comment semantics repeat", checkCommentSemantics, "cache cache entries", comment("// ", "// "), false},
		{"comment semantics short", checkCommentSemantics, "sor", comment("// sort", "// sort"), true},
		{"comment semantics code line", checkCommentSemantics, "sort the list", codeCtx("sort the list", "sort the list"), true},
		{"comment semantics fresh", checkCommentSemantics, "using quicksort", comment("// order items", "// order items"), true},

		{"validity empty", checkValidity, "  ", Context{}, false},
		{"validity punctuation", checkValidity, ";;", Context{}, false},
		{"validity one char", checkValidity, "aaaaaa", Context{}, false},
		{"validity two chars", checkValidity, "ababab", Context{}, false},
		{"validity short repeat", checkValidity, "aa", Context{}, true},
		{"validity code", checkValidity, "x + 1", Context{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, ok := tt.check(tt.sugg, tt.ctx)
			if ok != tt.wantOK {
				t.Errorf("check(%q) = %v (%s), want %v", tt.sugg, ok, reason, tt.wantOK)
			}
			if !ok && reason == "" {
				t.Error("rejection without a reason")
			}
		})
	}
}

func TestCascadeFirstRejectionWins(t *testing.T) {
	var calls []string
	record := func(name string, ok bool) Filter {
		return FilterFunc{name, func(string, Context) (string, bool) {
			calls = append(calls, name)
			return name, ok
		}}
	}

	c := Cascade{record("a", true), record("b", false), record("c", false)}
	v := c.Evaluate("x", Context{})
	if v.Accepted || v.Filter != "b" {
		t.Errorf("Evaluate() = %+v, want rejection by b", v)
	}
	if len(calls) != 2 {
		t.Errorf("filters called = %v, want [a b]", calls)
	}
}

func TestCascadeWith(t *testing.T) {
	base := DefaultCascade()
	extended := base.With(FilterFunc{"never", func(string, Context) (string, bool) { return "no", false }})

	if len(extended) != len(base)+1 {
		t.Fatalf("len(With()) = %d, want %d", len(extended), len(base)+1)
	}
	if v := base.Evaluate("x + 1", Context{}); !v.Accepted {
		t.Errorf("base Evaluate() = %+v, want accepted", v)
	}
	if v := extended.Evaluate("x + 1", Context{}); v.Filter != "never" {
		t.Errorf("extended Evaluate() filter = %q, want never", v.Filter)
	}
}

func TestJaccard(t *testing.T) {
	a := wordSet("Sort the list")
	b := wordSet("sort a list")
	// {sort,the,list} and {sort,a,list}: 2 shared of 4.
	if got := jaccard(a, b); got != 0.5 {
		t.Errorf("jaccard() = %v, want 0.5", got)
	}
	if got := jaccard(wordSet(""), wordSet("")); got != 0 {
		t.Errorf("jaccard(empty) = %v, want 0", got)
	}
}
