package slack

import (
	"testing"
)

func TestConvertMarkdown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "plain text unchanged", in: "hello world", want: "hello world"},
		{name: "header", in: "# Title", want: "*Title*"},
		{name: "deep header", in: "###### Sub", want: "*Sub*"},
		{name: "link", in: "see [docs](https://example.com)", want: "see <https://example.com|docs>"},
		{name: "strikethrough", in: "~~gone~~", want: "~gone~"},
		{name: "bold stars", in: "**bold**", want: "*bold*"},
		{name: "bold underscores", in: "__bold__", want: "*bold*"},
		{name: "existing single stars survive", in: "*already bold*", want: "*already bold*"},
		{name: "bullet", in: "- item", want: "* item"},
		{name: "indented bullet", in: "  - item", want: "  * item"},
		{
			name: "mixed document",
			in:   "## Notes\n\n- **first** point\n- see [link](https://example.com/a)",
			want: "*Notes*\n\n* *first* point\n* see <https://example.com/a|link>",
		},
		{name: "unclosed bold untouched", in: "**dangling", want: "**dangling"},
		{name: "bold inside sentence", in: "a **b** c", want: "a *b* c"},
		{name: "multiple headers", in: "# One\n## Two", want: "*One*\n*Two*"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ConvertMarkdown(tt.in)
			if got != tt.want {
				t.Fatalf("ConvertMarkdown(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestConvertMarkdownBoldHeader(t *testing.T) {
	t.Parallel()

	// Header wrapping plus bold collapsing leaves an italic shell around
	// the bold span. Quirky, but stable.
	got := ConvertMarkdown("# **Title**")
	if got != "_*Title*_" {
		t.Fatalf("unexpected conversion: %q", got)
	}
}
