package main

import (
	"fmt"
	"log/slog"
	"time"

	"ragchat/internal/chunker"
	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/embedding/openai"
	"ragchat/internal/embedding/tfidf"
	"ragchat/internal/llm"
	"ragchat/internal/loader"
	"ragchat/internal/service"
	"ragchat/internal/summarizer"
	"ragchat/internal/vectorstore"
	"ragchat/internal/vectorstore/memory"
	"ragchat/internal/vectorstore/qdrant"
)

// buildService assembles the service from configuration.
func buildService(cfg *config.AppConfig, log *slog.Logger) (*service.Service, error) {
	completer, err := llm.New(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	var ch domain.Chunker
	switch cfg.Chunker.Type {
	case "sentence", "":
		ch = chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences)
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}

	var overview domain.Summarizer
	switch cfg.Summarizer.Type {
	case "frequency", "":
		overview = summarizer.NewFrequencySummarizer()
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}

	indexes := make(map[domain.Source]*service.Index, 2)
	for source, suffix := range map[domain.Source]string{
		domain.SourcePreprocessed: "",
		domain.SourceUploaded:     "_uploads",
	} {
		emb, err := newEmbedder(cfg.Embedder)
		if err != nil {
			return nil, err
		}
		st, err := newStore(cfg.VectorStore, suffix)
		if err != nil {
			return nil, err
		}
		indexes[source] = service.NewIndex(string(source), emb, st)
	}

	var tokens summarizer.TokenCounter
	if tc, err := summarizer.NewTikTokenCounter(cfg.Summarizer.TokenEncoding); err != nil {
		log.Warn("token encoding unavailable, counting words instead", "encoding", cfg.Summarizer.TokenEncoding, "error", err)
	} else {
		tokens = tc
	}

	l := loader.New()
	sc := cfg.Summarizer
	return service.New(service.Deps{
		Loader:     l,
		Chunker:    ch,
		Completer:  completer,
		Overview:   overview,
		PageWindow: summarizer.NewPageWindow(l, completer, tokens, log.With("component", "summarizer")),
		Indexes:    indexes,
		Log:        log.With("component", "service"),
	}, service.Options{
		SystemRole:          cfg.LLM.SystemRole,
		TopK:                cfg.Retrieval.K,
		HistoryPairs:        cfg.Memory.NumberOfQAPairs,
		Temperature:         cfg.LLM.Temperature,
		MaxOutputTokens:     cfg.LLM.MaxOutputTokens,
		SummaryMaxSentences: sc.MaxSentences,
		Summarize: summarizer.Options{
			MaxFinalTokens:   sc.MaxFinalTokens,
			TokenThreshold:   sc.TokenThreshold,
			Temperature:      cfg.LLM.Temperature,
			PagePrompt:       sc.PagePrompt,
			FinalPrompt:      sc.FinalPrompt,
			CharacterOverlap: sc.CharacterOverlap,
			MinPageTokens:    sc.MinPageTokens,
			Concurrency:      sc.Concurrency,
			PageTimeout:      time.Duration(sc.PageTimeoutSecs) * time.Second,
		},
	}), nil
}

// newEmbedder returns a fresh embedder; each index prepares its own vocabulary.
func newEmbedder(cfg config.EmbedderConfig) (embedding.Embedder, error) {
	switch cfg.Type {
	case "tfidf", "":
		return tfidf.NewEmbedder(), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Timeout:   time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

// newStore returns the vector store for one index. Qdrant indexes live in
// separate collections distinguished by suffix.
func newStore(cfg config.VectorStoreConfig, suffix string) (vectorstore.Storage, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.NewStorage(), nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection + suffix,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}
