// Package service is the application core: it ingests documents into the
// retrieval indexes, answers chat questions against them and summarizes PDFs.
package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ragchat/internal/domain"
	"ragchat/internal/llm"
	"ragchat/internal/loader"
	"ragchat/internal/summarizer"
)

var (
	// ErrNoIndex means no documents have been ingested into the preprocessed index.
	ErrNoIndex = errors.New("the document index is empty; ingest documents from the data directory first")
	// ErrNoUpload means no file has been uploaded into the uploaded index.
	ErrNoUpload = errors.New("no file was uploaded; upload a file first")
	// ErrUnknownSource is returned for a source other than preprocessed or uploaded.
	ErrUnknownSource = errors.New("unknown data source")
)

// Options carries the tunables the service passes through to retrieval, the
// chat model and the summarizer.
type Options struct {
	SystemRole          string
	TopK                int
	HistoryPairs        int
	Temperature         float64
	MaxOutputTokens     int
	SummaryMaxSentences int
	Summarize           summarizer.Options
}

// Deps are the collaborators the service is assembled from.
type Deps struct {
	Loader     domain.PageLoader
	Chunker    domain.Chunker
	Completer  llm.Completer
	Overview   domain.Summarizer
	PageWindow *summarizer.PageWindow
	Indexes    map[domain.Source]*Index
	Log        *slog.Logger
}

// Reply is the answer to one chat message with the chunks it was grounded on.
type Reply struct {
	Answer  string
	Results []domain.SearchResult
}

// IngestReport summarizes an Ingest call.
type IngestReport struct {
	Documents int
	Chunks    int
	Skipped   []string
}

type Service struct {
	loader     domain.PageLoader
	chunker    domain.Chunker
	completer  llm.Completer
	overviewer domain.Summarizer
	pdf        *summarizer.PageWindow
	indexes    map[domain.Source]*Index
	opts       Options
	log        *slog.Logger

	mu       sync.RWMutex
	overview string
}

func New(deps Deps, opts Options) *Service {
	log := deps.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{
		loader:     deps.Loader,
		chunker:    deps.Chunker,
		completer:  deps.Completer,
		overviewer: deps.Overview,
		pdf:        deps.PageWindow,
		indexes:    deps.Indexes,
		opts:       opts,
		log:        log,
	}
}

// Ingest loads every supported file named by paths (files, globs or
// directories) into the index for source.
func (s *Service) Ingest(ctx context.Context, source domain.Source, paths []string) (*IngestReport, error) {
	ix, ok := s.indexes[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	files, skipped, err := expandPaths(paths)
	if err != nil {
		return nil, err
	}
	report := &IngestReport{Skipped: skipped}
	if len(files) == 0 {
		return report, fmt.Errorf("no supported documents found in %s", strings.Join(paths, ", "))
	}

	var (
		docs   []domain.Document
		chunks []domain.Chunk
	)
	for _, f := range files {
		pages, err := s.loader.Load(ctx, f)
		if err != nil {
			return nil, err
		}
		d := domain.Document{ID: hashString(f), Path: f, Pages: pages}
		cs, err := s.chunker.Chunk(d)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", f, err)
		}
		docs = append(docs, d)
		chunks = append(chunks, cs...)
		s.log.Info("loaded document", "source", source, "path", f, "pages", len(pages), "chunks", len(cs))
	}
	if err := ix.Add(ctx, chunks); err != nil {
		return nil, err
	}
	report.Documents = len(docs)
	report.Chunks = len(chunks)

	if source == domain.SourcePreprocessed && s.overviewer != nil {
		texts := make([]string, len(docs))
		for i, d := range docs {
			texts[i] = d.Content()
		}
		summary, err := s.overviewer.Summarize(strings.Join(texts, "\n"), s.opts.SummaryMaxSentences)
		if err != nil {
			s.log.Warn("overview failed", "error", err)
		} else {
			s.mu.Lock()
			s.overview = summary
			s.mu.Unlock()
		}
	}
	s.log.Info("ingest finished", "source", source, "documents", report.Documents, "chunks", report.Chunks, "skipped", len(skipped))
	return report, nil
}

// Overview returns the extractive summary of the last preprocessed ingest.
func (s *Service) Overview() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overview
}

// Query returns the topK chunks of source most relevant to query.
func (s *Service) Query(ctx context.Context, source domain.Source, query string, topK int) ([]domain.SearchResult, error) {
	ix, err := s.index(source)
	if err != nil {
		return nil, err
	}
	return ix.Search(ctx, query, topK)
}

// Respond answers message from the chunks retrieved out of source, replaying
// the tail of history to the model.
func (s *Service) Respond(ctx context.Context, source domain.Source, history []domain.Turn, message string) (*Reply, error) {
	ix, err := s.index(source)
	if err != nil {
		return nil, err
	}
	results, err := ix.Search(ctx, message, s.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	prompt := BuildPrompt(s.opts.SystemRole, history, s.opts.HistoryPairs, results, message)
	s.log.Debug("chat prompt", "source", source, "chunks", len(results), "prompt_chars", len(prompt))
	answer, err := s.completer.Generate(ctx, prompt, llm.GenerateOptions{
		Temperature:     s.opts.Temperature,
		MaxOutputTokens: s.opts.MaxOutputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	return &Reply{Answer: answer, Results: results}, nil
}

// SummarizePDF runs the page-window summarizer on path with the configured
// options. onProgress may be nil.
func (s *Service) SummarizePDF(ctx context.Context, path string, onProgress func(summarizer.Progress)) (*summarizer.Result, error) {
	opts := s.opts.Summarize
	opts.OnProgress = onProgress
	return s.pdf.Summarize(ctx, path, opts)
}

func (s *Service) index(source domain.Source) (*Index, error) {
	ix, ok := s.indexes[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	if ix.Len() == 0 {
		if source == domain.SourceUploaded {
			return nil, ErrNoUpload
		}
		return nil, ErrNoIndex
	}
	return ix, nil
}

// expandPaths resolves globs and walks directories, returning supported files
// in a stable order and the unsupported ones it skipped.
func expandPaths(paths []string) (files, skipped []string, err error) {
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		if loader.IsSupported(p) {
			files = append(files, p)
		} else {
			skipped = append(skipped, p)
		}
	}
	for _, p := range paths {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			info, statErr := os.Stat(m)
			if statErr != nil {
				return nil, nil, statErr
			}
			if !info.IsDir() {
				add(m)
				continue
			}
			walkErr := filepath.WalkDir(m, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() {
					add(path)
				}
				return nil
			})
			if walkErr != nil {
				return nil, nil, walkErr
			}
		}
	}
	return files, skipped, nil
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
