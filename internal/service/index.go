package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/vectorstore"
)

// Index is one searchable collection: an embedder prepared over its own
// corpus and the store holding the chunk vectors.
type Index struct {
	name     string
	embedder embedding.Embedder
	store    vectorstore.Storage

	mu     sync.RWMutex
	chunks []domain.Chunk
}

// NewIndex pairs an embedder with a store.
func NewIndex(name string, embedder embedding.Embedder, store vectorstore.Storage) *Index {
	return &Index{name: name, embedder: embedder, store: store}
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks)
}

// Add merges chunks into the index, replacing earlier chunks of the same
// documents, and rebuilds the vectors. The embedder vocabulary may depend on the
// whole corpus, so every vector is recomputed.
func (ix *Index) Add(ctx context.Context, chunks []domain.Chunk) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	replaced := make(map[string]struct{})
	for _, ch := range chunks {
		replaced[ch.DocumentID] = struct{}{}
	}
	merged := make([]domain.Chunk, 0, len(ix.chunks)+len(chunks))
	for _, ch := range ix.chunks {
		if _, ok := replaced[ch.DocumentID]; !ok {
			merged = append(merged, ch)
		}
	}
	merged = append(merged, chunks...)
	if len(merged) == 0 {
		return errors.New("no chunks to index")
	}

	texts := make([]string, len(merged))
	for i, ch := range merged {
		texts[i] = ch.Text
	}
	if err := ix.embedder.Prepare(texts); err != nil {
		return fmt.Errorf("%s index: prepare embedder: %w", ix.name, err)
	}
	vectors := make([][]float64, len(merged))
	for i, text := range texts {
		vec, err := ix.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("%s index: embed chunk %s: %w", ix.name, merged[i].ChunkID, err)
		}
		vectors[i] = vec
	}
	if err := ix.store.Clear(ctx); err != nil {
		return fmt.Errorf("%s index: clear store: %w", ix.name, err)
	}
	// From here on the store no longer matches ix.chunks; a failure leaves the
	// index empty so callers see ErrNoIndex instead of stale results.
	if err := ix.store.Init(ctx, len(vectors[0])); err != nil {
		ix.chunks = nil
		return fmt.Errorf("%s index: init store: %w", ix.name, err)
	}
	if err := ix.store.Upsert(ctx, merged, vectors); err != nil {
		ix.chunks = nil
		return fmt.Errorf("%s index: upsert: %w", ix.name, err)
	}
	ix.chunks = merged
	return nil
}

// Search returns the topK chunks closest to query. When the query has no
// known terms, or the store scores everything zero, it falls back to lexical
// overlap so the user still sees something relevant.
func (ix *Index) Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(ix.chunks) == 0 {
		return nil, nil
	}
	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if isZero(vec) {
		return ix.lexicalSearch(query, topK), nil
	}
	res, err := ix.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, err
	}
	for _, r := range res {
		if r.Score > 1e-9 {
			return res, nil
		}
	}
	return ix.lexicalSearch(query, topK), nil
}

func isZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

var unicodeWordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

func (ix *Index) lexicalSearch(query string, topK int) []domain.SearchResult {
	qset := toTokenSet(query)
	out := make([]domain.SearchResult, len(ix.chunks))
	for i, ch := range ix.chunks {
		out[i] = domain.SearchResult{Chunk: ch, Score: overlapOchiai(qset, ch.Text)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK <= 0 {
		topK = 5
	}
	if topK < len(out) {
		out = out[:topK]
	}
	return out
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// overlapOchiai is |A∩B| / sqrt(|A||B|) over distinct lowercase words.
func overlapOchiai(qset map[string]struct{}, text string) float64 {
	tset := toTokenSet(text)
	if len(qset) == 0 || len(tset) == 0 {
		return 0
	}
	inter := 0
	for t := range tset {
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(tset)))
}
