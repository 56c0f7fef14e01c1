package summarizer

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates the number of model tokens in a text.
type TokenCounter interface {
	Count(text string) int
}

// WordCounter approximates tokens by whitespace-separated words.
type WordCounter struct{}

// Count returns the number of words in text.
func (WordCounter) Count(text string) int { return len(strings.Fields(text)) }

// TikTokenCounter counts tokens with a BPE encoding such as cl100k_base.
type TikTokenCounter struct {
	tke *tiktoken.Tiktoken
}

// NewTikTokenCounter loads the named encoding. Loading may need network access
// the first time, so callers usually fall back to WordCounter on error.
func NewTikTokenCounter(encoding string) (*TikTokenCounter, error) {
	tke, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TikTokenCounter{tke: tke}, nil
}

// Count returns the number of BPE tokens in text.
func (c *TikTokenCounter) Count(text string) int {
	return len(c.tke.Encode(text, nil, nil))
}
