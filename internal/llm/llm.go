// Package llm talks to hosted text-generation APIs.
package llm

import (
	"context"
	"fmt"
	"os"
	"time"

	"ragchat/internal/config"
)

// GenerateOptions tunes a single completion request.
// A zero MaxOutputTokens leaves the limit to the provider.
type GenerateOptions struct {
	Temperature     float64
	MaxOutputTokens int
}

// Completer produces generated text for a prompt.
type Completer interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// StatusError is a non-2xx reply from a provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, truncate(e.Message, 200))
}

// Retryable reports whether the failure is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// New builds the configured provider wrapped with retries and, when a
// requests-per-minute budget is set, a rate limiter. Gemini needs an API key;
// OpenAI-compatible servers such as Ollama may run without one. A negative
// MaxRetries disables retrying.
func New(cfg config.LLMConfig) (Completer, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	var c Completer
	switch cfg.Provider {
	case "gemini", "":
		if key == "" {
			return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
		}
		c = NewGemini(GeminiConfig{BaseURL: cfg.BaseURL, APIKey: key, Model: cfg.Model, Timeout: timeout})
	case "openai":
		c = NewOpenAI(OpenAIConfig{BaseURL: cfg.BaseURL, APIKey: key, Model: cfg.Model, Timeout: timeout})
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	c = WithRetry(c, cfg.MaxRetries)
	if cfg.RequestsPerMin > 0 {
		c = WithRateLimit(c, cfg.RequestsPerMin)
	}
	return c, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
