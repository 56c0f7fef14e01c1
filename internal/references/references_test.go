package references

import (
	"strings"
	"testing"

	"ragchat/internal/domain"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"escaped newlines collapse", `line one\nline two`, "line one line two"},
		{"special tokens", "answer <EOS> <pad> more", "answer more"},
		{"whitespace", "  a \t\n b  ", "a b"},
		{"html entities", "fish &amp; chips &lt;3", "fish & chips <3"},
		{"ligatures", "deï¬\u0081ne ï¬\u0082ow", "define flow"},
		{"dash and times", "a â\u0080\u0093 b Ã\u0097 c", "a - b × c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.in); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	results := []domain.SearchResult{
		{Chunk: domain.Chunk{Source: "/data/docs/attention paper.pdf", Page: 3, Text: "Self   attention."}},
		{Chunk: domain.Chunk{Source: "/data/docs/notes.txt", Page: 1, Text: "Second."}},
	}
	out := Format(results, "http://localhost:8000/")
	want := "# Retrieved content 1:\nSelf attention.\n\n" +
		"Source: attention paper.pdf | Page number: 3 | [View PDF](http://localhost:8000/docs/attention%20paper.pdf)\n\n"
	if !strings.HasPrefix(out, want) {
		t.Errorf("unexpected first section:\n%s", out)
	}
	if !strings.Contains(out, "# Retrieved content 2:\nSecond.") {
		t.Errorf("missing second section:\n%s", out)
	}
}

func TestFormat_NoServer(t *testing.T) {
	out := Format([]domain.SearchResult{{Chunk: domain.Chunk{Source: "a.pdf", Page: 1, Text: "x"}}}, "")
	if strings.Contains(out, "View PDF") {
		t.Errorf("expected no link, got %q", out)
	}
}

func TestFormat_Empty(t *testing.T) {
	if out := Format(nil, "http://x"); out != "" {
		t.Errorf("expected empty output, got %q", out)
	}
}
