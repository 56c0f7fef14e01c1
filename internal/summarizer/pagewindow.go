package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ragchat/internal/domain"
	"ragchat/internal/llm"
)

// FinalFailure is returned as Result.Final when the second pass could not run.
const FinalFailure = "Error generating final summary."

// Options controls one page-window summarization.
type Options struct {
	MaxFinalTokens   int
	TokenThreshold   int
	Temperature      float64
	PagePrompt       string
	FinalPrompt      string
	CharacterOverlap int
	// MinPageTokens floors the per-page budget; values below 1 mean 1.
	MinPageTokens int
	// Concurrency bounds parallel page requests; 1 or less is sequential.
	Concurrency int
	// PageTimeout bounds each page request; zero means one minute.
	PageTimeout time.Duration
	// OnProgress, when set, is called after each page. Calls are serialized.
	OnProgress func(Progress)
}

// Progress reports that one page has been processed.
type Progress struct {
	Page  int
	Done  int
	Total int
	Err   error
}

// PageResult carries the outcome of summarizing one page window.
type PageResult struct {
	Index   int
	Summary string
	Err     error
}

// Result is the outcome of a page-window summarization. A failed final pass is
// reported through Degraded and FinalErr rather than as an error.
type Result struct {
	Path        string
	Pages       int
	PageBudget  int
	PageResults []PageResult
	FailedPages int
	Full        string
	FullTokens  int
	Final       string
	Degraded    bool
	FinalErr    error
}

// PageWindow summarizes a document page by page with neighbour overlap, then
// summarizes the concatenated page summaries again.
type PageWindow struct {
	loader    domain.PageLoader
	completer llm.Completer
	tokens    TokenCounter
	log       *slog.Logger
}

// NewPageWindow wires the summarizer to its collaborators. A nil counter
// falls back to WordCounter and a nil logger discards output.
func NewPageWindow(loader domain.PageLoader, completer llm.Completer, tokens TokenCounter, log *slog.Logger) *PageWindow {
	if tokens == nil {
		tokens = WordCounter{}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &PageWindow{loader: loader, completer: completer, tokens: tokens, log: log}
}

// Summarize runs both passes over the file at path. Only invalid options, load
// failures and cancellation of ctx are returned as errors.
func (s *PageWindow) Summarize(ctx context.Context, path string, opts Options) (*Result, error) {
	if opts.MaxFinalTokens <= 0 {
		return nil, errors.New("max final tokens must be positive")
	}
	if opts.TokenThreshold < 0 {
		return nil, errors.New("token threshold must not be negative")
	}
	if opts.CharacterOverlap < 0 {
		return nil, errors.New("character overlap must not be negative")
	}
	pages, err := s.loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("load %s: document has no pages", path)
	}

	res := &Result{
		Path:       path,
		Pages:      len(pages),
		PageBudget: PageBudget(opts.MaxFinalTokens, len(pages), opts.TokenThreshold, opts.MinPageTokens),
	}
	s.log.Info("summarizing document", "path", path, "pages", res.Pages, "page_budget", res.PageBudget)

	if len(pages) == 1 {
		res.Full = pages[0].Text
		res.PageResults = []PageResult{{Index: 0, Summary: res.Full}}
		s.progress(opts, Progress{Page: 0, Done: 1, Total: 1})
	} else {
		res.PageResults = s.summarizePages(ctx, pages, res.PageBudget, opts)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var sb strings.Builder
		for _, pr := range res.PageResults {
			if pr.Err != nil {
				res.FailedPages++
				continue
			}
			sb.WriteString(pr.Summary)
		}
		res.Full = sb.String()
	}
	res.FullTokens = s.tokens.Count(res.Full)
	s.log.Info("page pass finished", "path", path, "failed_pages", res.FailedPages, "full_summary_tokens", res.FullTokens)

	final, err := s.completer.Generate(ctx, opts.FinalPrompt+res.Full, llm.GenerateOptions{Temperature: opts.Temperature})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.log.Error("final summary failed", "path", path, "error", err)
		res.Final = FinalFailure
		res.Degraded = true
		res.FinalErr = err
		return res, nil
	}
	res.Final = final
	return res, nil
}

func (s *PageWindow) summarizePages(ctx context.Context, pages []domain.Page, budget int, opts Options) []PageResult {
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	windows := Windows(texts, opts.CharacterOverlap)
	role := PagePrompt(opts.PagePrompt, budget)
	timeout := opts.PageTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	results := make([]PageResult, len(pages))
	var mu sync.Mutex
	done := 0
	run := func(i int) {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		out, err := s.completer.Generate(pctx, role+windows[i], llm.GenerateOptions{Temperature: opts.Temperature})
		results[i] = PageResult{Index: i, Summary: out, Err: err}
		if err != nil {
			results[i].Summary = ""
			s.log.Warn("page summary failed", "page", i+1, "error", err)
		}
		mu.Lock()
		done++
		s.progress(opts, Progress{Page: i, Done: done, Total: len(pages), Err: err})
		mu.Unlock()
	}

	if opts.Concurrency <= 1 {
		for i := range windows {
			run(i)
		}
		return results
	}
	var g errgroup.Group
	g.SetLimit(opts.Concurrency)
	for i := range windows {
		g.Go(func() error {
			run(i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *PageWindow) progress(opts Options, p Progress) {
	s.log.Info("page summarized", "page", p.Page+1, "done", p.Done, "total", p.Total, "failed", p.Err != nil)
	if opts.OnProgress != nil {
		opts.OnProgress(p)
	}
}
