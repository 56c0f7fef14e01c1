package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"ragchat/internal/domain"
	"ragchat/internal/service"
	"ragchat/internal/summarizer"
)

type fakePort struct {
	source    domain.Source
	history   []domain.Turn
	question  string
	ingestErr error
}

func (f *fakePort) Respond(ctx context.Context, source domain.Source, history []domain.Turn, message string) (*service.Reply, error) {
	f.source, f.history, f.question = source, history, message
	return &service.Reply{
		Answer: "Gophers dig.",
		Results: []domain.SearchResult{{
			Chunk: domain.Chunk{Source: "/data/gophers.pdf", Page: 4, Text: "Gophers live underground. They dig tunnels."},
			Score: 0.9,
		}},
	}, nil
}

func (f *fakePort) Ingest(ctx context.Context, source domain.Source, paths []string) (*service.IngestReport, error) {
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	return &service.IngestReport{Documents: len(paths), Chunks: 3}, nil
}

func (f *fakePort) SummarizePDF(ctx context.Context, path string, _ func(summarizer.Progress)) (*summarizer.Result, error) {
	return &summarizer.Result{Path: path, Pages: 2, Final: "short summary"}, nil
}

func (f *fakePort) Overview() string { return "gophers and tunnels" }

func newModel(t *testing.T, port *fakePort) Model {
	t.Helper()
	m := New(context.Background(), port, "http://localhost:8000")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

// run executes cmd and returns the first message that is not a spinner tick.
func run(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	msg := cmd()
	batch, ok := msg.(tea.BatchMsg)
	if !ok {
		return msg
	}
	for _, c := range batch {
		if c == nil {
			continue
		}
		switch out := c().(type) {
		case replyMsg, ingestMsg, summaryMsg:
			return out
		}
	}
	t.Fatal("no service message in batch")
	return nil
}

func submit(t *testing.T, m Model, line string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(line)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func TestNew_ShowsOverview(t *testing.T) {
	m := newModel(t, &fakePort{})
	if !strings.Contains(m.View(), "gophers and tunnels") {
		t.Errorf("expected overview in view:\n%s", m.View())
	}
}

func TestChat_RoundTrip(t *testing.T) {
	port := &fakePort{}
	m := newModel(t, port)
	m, cmd := submit(t, m, "Do gophers dig?")
	if !m.busy {
		t.Fatal("expected model to be busy while waiting")
	}
	next, _ := m.Update(run(t, cmd))
	m = next.(Model)

	if port.question != "Do gophers dig?" || port.source != domain.SourcePreprocessed {
		t.Errorf("unexpected call %q %s", port.question, port.source)
	}
	if m.busy {
		t.Error("expected model idle after reply")
	}
	if len(m.history) != 1 || m.history[0].Answer != "Gophers dig." {
		t.Errorf("unexpected history %+v", m.history)
	}
	if !strings.Contains(m.View(), "Gophers dig.") {
		t.Errorf("expected answer in view:\n%s", m.View())
	}

	// Second question replays the first turn.
	m, cmd = submit(t, m, "And then?")
	run(t, cmd)
	if len(port.history) != 1 {
		t.Errorf("expected history to be passed, got %+v", port.history)
	}
}

func TestTab_TogglesReferences(t *testing.T) {
	m := newModel(t, &fakePort{})
	m, cmd := submit(t, m, "tunnels")
	next, _ := m.Update(run(t, cmd))
	next, _ = next.(Model).Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	view := m.View()
	if !strings.Contains(view, "Retrieved content 1") || !strings.Contains(view, "Page number: 4") {
		t.Errorf("expected references pane:\n%s", view)
	}
	if !strings.Contains(view, "/docs/gophers.pdf") {
		t.Errorf("expected document link:\n%s", view)
	}
}

func TestCtrlT_TogglesSource(t *testing.T) {
	port := &fakePort{}
	m := newModel(t, port)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlT})
	m = next.(Model)
	if m.source != domain.SourceUploaded {
		t.Fatalf("expected uploaded source, got %s", m.source)
	}
	_, cmd := submit(t, m, "hello")
	run(t, cmd)
	if port.source != domain.SourceUploaded {
		t.Errorf("expected request against uploaded index, got %s", port.source)
	}
}

func TestUpload(t *testing.T) {
	m := newModel(t, &fakePort{})
	m, cmd := submit(t, m, "/upload a.pdf b.txt")
	next, _ := m.Update(run(t, cmd))
	m = next.(Model)
	if m.source != domain.SourceUploaded {
		t.Errorf("expected switch to uploaded source, got %s", m.source)
	}
	if !strings.Contains(m.renderConversation(), "2 documents") {
		t.Errorf("unexpected conversation:\n%s", m.renderConversation())
	}
}

func TestUpload_Failure(t *testing.T) {
	m := newModel(t, &fakePort{ingestErr: errors.New("no such file")})
	m, cmd := submit(t, m, "/upload missing.pdf")
	next, _ := m.Update(run(t, cmd))
	m = next.(Model)
	if m.source != domain.SourcePreprocessed {
		t.Errorf("source must not change on failure, got %s", m.source)
	}
	if !strings.Contains(m.renderConversation(), "no such file") {
		t.Errorf("expected error in conversation:\n%s", m.renderConversation())
	}
}

func TestUsageWithoutArgument(t *testing.T) {
	m := newModel(t, &fakePort{})
	m, cmd := submit(t, m, "/summarize")
	if cmd != nil || m.busy || m.status != "Usage: /summarize <path>" {
		t.Errorf("unexpected state busy=%v status=%q", m.busy, m.status)
	}
}

func TestSummarizeAndClear(t *testing.T) {
	m := newModel(t, &fakePort{})
	m, cmd := submit(t, m, "/summarize docs/paper.pdf")
	next, _ := m.Update(run(t, cmd))
	m = next.(Model)
	conv := m.renderConversation()
	if !strings.Contains(conv, "Summary of paper.pdf (2 pages):") || !strings.Contains(conv, "short summary") {
		t.Errorf("unexpected conversation:\n%s", conv)
	}

	m, _ = submit(t, m, "/clear")
	if len(m.entries) != 0 || len(m.history) != 0 || len(m.results) != 0 {
		t.Errorf("expected cleared state, got %d entries", len(m.entries))
	}
}

func TestSummaryEntry(t *testing.T) {
	e := summaryEntry(summaryMsg{path: "/x/a.pdf", res: &summarizer.Result{Pages: 5, FailedPages: 2, Final: summarizer.FinalFailure}})
	if e.text != "Summary of a.pdf (5 pages, 2 failed):\n"+summarizer.FinalFailure {
		t.Errorf("unexpected entry %q", e.text)
	}
	e = summaryEntry(summaryMsg{path: "a.pdf", err: errors.New("boom")})
	if e.role != roleSystem || !strings.Contains(e.text, "boom") {
		t.Errorf("unexpected entry %+v", e)
	}
}

func TestHighlightBestSentence(t *testing.T) {
	text := "Cats sleep a lot. Gophers dig long tunnels. Birds fly."
	if got := highlightBestSentence(text, "zebra"); got != text {
		t.Errorf("expected plain text without overlap, got %q", got)
	}
	got := highlightBestSentence(text, "where do gophers dig")
	if !strings.Contains(got, "Gophers dig long tunnels.") || !strings.HasPrefix(got, "Cats sleep a lot. ") {
		t.Errorf("unexpected highlight %q", got)
	}
	if n := tokenOverlapScore(toTokenSet("dig dig gophers"), "Gophers dig and dig."); n != 2 {
		t.Errorf("expected 2 distinct overlaps, got %d", n)
	}
}

func TestHighlightBestSentence_KeepsTrailingFragment(t *testing.T) {
	text := "Cats sleep a lot. Gophers dig tunnels under the"
	got := highlightBestSentence(text, "tunnels")
	if !strings.HasPrefix(got, "Cats sleep a lot. ") || !strings.Contains(got, "Gophers dig tunnels under the") {
		t.Errorf("expected the unterminated tail to be shown, got %q", got)
	}
	if got := highlightBestSentence(text, "zebra"); got != text {
		t.Errorf("expected unchanged text, got %q", got)
	}
}
