package domain

import (
	"context"
	"strings"
)

// Page is one logical page of extracted document text.
type Page struct {
	Index  int
	Number int
	Source string
	Text   string
}

// Document represents a single file loaded into the system as ordered pages.
type Document struct {
	ID    string
	Path  string
	Pages []Page
}

// Content joins the page texts of the document with newlines.
func (d Document) Content() string {
	texts := make([]string, len(d.Pages))
	for i, p := range d.Pages {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n")
}

// Chunk is a semantically meaningful part of a document used for indexing.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Source     string
	Page       int
	Text       string
	Index      int
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Source names one of the retrieval indexes a question can be answered from.
type Source string

const (
	SourcePreprocessed Source = "preprocessed"
	SourceUploaded     Source = "uploaded"
)

// Turn is one question/answer pair of the chat history.
type Turn struct {
	Question string
	Answer   string
}

// PageLoader splits a file into ordered pages.
type PageLoader interface {
	Load(ctx context.Context, path string) ([]Page, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Summarizer produces a brief extractive summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
