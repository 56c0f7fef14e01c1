package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"ragchat/internal/config"
)

func TestGemini_Generate(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-pro:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "k" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello "},{"text":"world"}]}}]}`))
	}))
	defer srv.Close()

	g := NewGemini(GeminiConfig{BaseURL: srv.URL, APIKey: "k"})
	out, err := g.Generate(context.Background(), "say hi", GenerateOptions{Temperature: 0.2, MaxOutputTokens: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello world" {
		t.Errorf("expected %q, got %q", "hello world", out)
	}
	if len(got.Contents) != 1 || got.Contents[0].Parts[0].Text != "say hi" {
		t.Errorf("prompt not sent: %+v", got.Contents)
	}
	if got.GenerationConfig.Temperature != 0.2 || got.GenerationConfig.MaxOutputTokens != 50 {
		t.Errorf("generation config not sent: %+v", got.GenerationConfig)
	}
}

func TestGemini_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"quota"}}`))
	}))
	defer srv.Close()

	_, err := NewGemini(GeminiConfig{BaseURL: srv.URL, APIKey: "k"}).Generate(context.Background(), "p", GenerateOptions{})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusTooManyRequests || !se.Retryable() {
		t.Errorf("expected retryable 429, got %+v", se)
	}
}

func TestGemini_BlockedPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer srv.Close()

	_, err := NewGemini(GeminiConfig{BaseURL: srv.URL}).Generate(context.Background(), "p", GenerateOptions{})
	if err == nil || !strings.Contains(err.Error(), "SAFETY") {
		t.Fatalf("expected blocked error, got %v", err)
	}
}

func TestOpenAI_Generate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"answer"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAI(OpenAIConfig{BaseURL: srv.URL + "/", APIKey: "secret", Model: "m"})
	out, err := c.Generate(context.Background(), "question", GenerateOptions{Temperature: 0.5, MaxOutputTokens: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "answer" {
		t.Errorf("expected %q, got %q", "answer", out)
	}
	if got.Model != "m" || got.MaxTokens != 10 || got.Messages[0].Content != "question" {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestOpenAI_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	if _, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL}).Generate(context.Background(), "p", GenerateOptions{}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

type scriptedCompleter struct {
	calls int32
	errs  []error
}

func (s *scriptedCompleter) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	n := int(atomic.AddInt32(&s.calls, 1)) - 1
	if n < len(s.errs) && s.errs[n] != nil {
		return "", s.errs[n]
	}
	return "ok", nil
}

func noDelay(int) time.Duration { return 0 }

func TestRetry_RetriesRetryableErrors(t *testing.T) {
	sc := &scriptedCompleter{errs: []error{
		&StatusError{StatusCode: 503},
		&StatusError{StatusCode: 429},
	}}
	r := &retrying{next: sc, maxRetries: 3, delay: noDelay}
	out, err := r.Generate(context.Background(), "p", GenerateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok" || sc.calls != 3 {
		t.Errorf("expected ok after 3 calls, got %q after %d", out, sc.calls)
	}
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	sc := &scriptedCompleter{errs: []error{&StatusError{StatusCode: 400}}}
	r := &retrying{next: sc, maxRetries: 3, delay: noDelay}
	if _, err := r.Generate(context.Background(), "p", GenerateOptions{}); err == nil {
		t.Fatal("expected error")
	}
	if sc.calls != 1 {
		t.Errorf("expected 1 call, got %d", sc.calls)
	}
}

func TestRetry_GivesUpAfterMaxRetries(t *testing.T) {
	e := &StatusError{StatusCode: 500}
	sc := &scriptedCompleter{errs: []error{e, e, e}}
	r := &retrying{next: sc, maxRetries: 2, delay: noDelay}
	_, err := r.Generate(context.Background(), "p", GenerateOptions{})
	if !errors.Is(err, e) {
		t.Fatalf("expected last error, got %v", err)
	}
	if sc.calls != 3 {
		t.Errorf("expected 3 calls, got %d", sc.calls)
	}
}

func TestRateLimit_HonoursContext(t *testing.T) {
	c := WithRateLimit(&scriptedCompleter{}, 1)
	if _, err := c.Generate(context.Background(), "p", GenerateOptions{}); err != nil {
		t.Fatalf("first call should pass: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.Generate(ctx, "p", GenerateOptions{}); err == nil {
		t.Fatal("expected limiter to refuse a second call inside the deadline")
	}
}

func TestNew_MissingKey(t *testing.T) {
	t.Setenv("RAGCHAT_TEST_KEY", "")
	_, err := New(config.LLMConfig{Provider: "gemini", APIKeyEnv: "RAGCHAT_TEST_KEY"})
	if err == nil {
		t.Fatal("expected missing key error")
	}
}

func TestNew_OpenAIWithoutKeyAndRetriesOff(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("expected no Authorization header, got %q", auth)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	t.Setenv("RAGCHAT_TEST_KEY", "")
	c, err := New(config.LLMConfig{Provider: "openai", BaseURL: srv.URL, APIKeyEnv: "RAGCHAT_TEST_KEY", Model: "llama3", MaxRetries: -1})
	if err != nil {
		t.Fatalf("keyless openai-compatible provider must be accepted: %v", err)
	}
	if _, err := c.Generate(context.Background(), "p", GenerateOptions{}); !IsRetryable(err) {
		t.Fatalf("expected retryable status error, got %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("expected a single attempt with retries off, got %d", n)
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	t.Setenv("RAGCHAT_TEST_KEY", "x")
	if _, err := New(config.LLMConfig{Provider: "palm", APIKeyEnv: "RAGCHAT_TEST_KEY"}); err == nil {
		t.Fatal("expected unknown provider error")
	}
}
