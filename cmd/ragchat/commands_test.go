package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"ragchat/internal/domain"
	"ragchat/internal/service"
	"ragchat/internal/summarizer"
)

type stubResponder struct {
	histories [][]domain.Turn
	fail      string
}

func (s *stubResponder) Respond(ctx context.Context, source domain.Source, history []domain.Turn, message string) (*service.Reply, error) {
	s.histories = append(s.histories, history)
	if message == s.fail {
		return nil, errors.New("quota exceeded")
	}
	return &service.Reply{
		Answer:  "answer to " + message,
		Results: []domain.SearchResult{{Chunk: domain.Chunk{Source: "docs/a.pdf", Page: 2, Text: "context"}}},
	}, nil
}

func TestAskLoop(t *testing.T) {
	stub := &stubResponder{fail: "broken"}
	in := strings.NewReader("first\n\nbroken\nsecond\nq\nnever\n")
	var out bytes.Buffer
	if err := askLoop(context.Background(), stub, domain.SourcePreprocessed, "http://localhost:8000", in, &out); err != nil {
		t.Fatalf("askLoop: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"answer to first",
		"Error: quota exceeded",
		"answer to second",
		"Source: a.pdf | Page number: 2 | [View PDF](http://localhost:8000/docs/a.pdf)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in output:\n%s", want, got)
		}
	}
	if strings.Contains(got, "never") {
		t.Error("loop must stop at q")
	}
	if len(stub.histories) != 3 || len(stub.histories[2]) != 1 {
		t.Errorf("failed turns must not enter history: %+v", stub.histories)
	}
}

func TestAskLoop_EOF(t *testing.T) {
	var out bytes.Buffer
	if err := askLoop(context.Background(), &stubResponder{}, domain.SourceUploaded, "", strings.NewReader(""), &out); err != nil {
		t.Fatalf("expected clean exit on EOF, got %v", err)
	}
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	printSummary(&out, &summarizer.Result{Pages: 4, FailedPages: 1, Full: "ab", FullTokens: 1, Final: "f"}, true)
	want := "Full summary (1 tokens):\nab\n\nFinal summary:\nf\n\n1 of 4 pages could not be summarized.\n"
	if out.String() != want {
		t.Errorf("expected %q, got %q", want, out.String())
	}
}
