package summarizer

import (
	"strings"
	"testing"
)

func TestFrequencySummarizer_KeepsOriginalOrder(t *testing.T) {
	text := "Go is a language. Cats sleep a lot. Go has goroutines and Go has channels. Rain fell."
	out, err := NewFrequencySummarizer().Summarize(text, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := strings.Index(out, "Go is a language.")
	second := strings.Index(out, "Go has goroutines")
	if first < 0 || second < 0 {
		t.Fatalf("expected the two Go sentences, got %q", out)
	}
	if first > second {
		t.Errorf("expected original order, got %q", out)
	}
}

func TestFrequencySummarizer_NoSentenceTerminators(t *testing.T) {
	out, err := NewFrequencySummarizer().Summarize("  just a fragment  ", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "just a fragment" {
		t.Errorf("expected trimmed text, got %q", out)
	}
}

func TestFrequencySummarizer_ConsidersTrailingFragment(t *testing.T) {
	out, err := NewFrequencySummarizer().Summarize("Cats sleep. Gophers dig gophers tunnels gophers", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Gophers dig gophers tunnels gophers" {
		t.Errorf("expected the unterminated sentence to rank first, got %q", out)
	}
}
