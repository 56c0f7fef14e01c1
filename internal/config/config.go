package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LLMConfig configures the hosted completion service.
type LLMConfig struct {
	Provider        string  `yaml:"provider"`
	BaseURL         string  `yaml:"base_url"`
	APIKeyEnv       string  `yaml:"api_key_env"`
	Model           string  `yaml:"model"`
	Temperature     float64 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	TimeoutSecs     int     `yaml:"timeout_secs"`
	// MaxRetries is the number of extra attempts on 429/5xx; 0 means the
	// default of 3 and a negative value disables retrying.
	MaxRetries      int     `yaml:"max_retries"`
	RequestsPerMin  int     `yaml:"requests_per_minute"`
	SystemRole      string  `yaml:"llm_system_role"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// RetrievalConfig controls how many chunks are pulled into a prompt.
type RetrievalConfig struct {
	K int `yaml:"k"`
}

// MemoryConfig controls how much chat history is replayed to the model.
type MemoryConfig struct {
	NumberOfQAPairs int `yaml:"number_of_q_a_pairs"`
}

// SummarizerConfig configures both the extractive corpus overview and the
// page-window PDF summarizer.
type SummarizerConfig struct {
	Type             string `yaml:"type"`
	MaxSentences     int    `yaml:"max_sentences"`
	MaxFinalTokens   int    `yaml:"max_final_token"`
	TokenThreshold   int    `yaml:"token_threshold"`
	CharacterOverlap int    `yaml:"character_overlap"`
	MinPageTokens    int    `yaml:"min_page_tokens"`
	Concurrency      int    `yaml:"concurrency"`
	PageTimeoutSecs  int    `yaml:"page_timeout_secs"`
	PagePrompt       string `yaml:"summarizer_llm_system_role"`
	FinalPrompt      string `yaml:"final_summarizer_llm_system_role"`
	TokenEncoding    string `yaml:"token_encoding"`
}

// DirectoriesConfig locates documents on disk.
type DirectoriesConfig struct {
	DataDirectory string `yaml:"data_directory"`
}

// ServerConfig configures the document server.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	PublicURL string `yaml:"public_url"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	LLM         LLMConfig         `yaml:"llm"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Memory      MemoryConfig      `yaml:"memory"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Directories DirectoriesConfig `yaml:"directories"`
	Server      ServerConfig      `yaml:"server"`
}

const (
	defaultSystemRole = "You are a chatbot. You'll receive a prompt that includes a chat history, retrieved content from the vectorDB based on the user's question, and the source. " +
		"Your task is to respond to the user's new question using the information from the vectorDB without relying on your own knowledge. " +
		"You will receive a prompt with the following format:\n\n" +
		"# Chat history:\n[user query, response]\n\n# Retrieved content number:\nContent\n\nSource\n\n# User question:\nNew question\n"
	defaultPagePrompt = "You are an expert text summarizer. You will receive a text and your task is to summarize and keep all the key information. " +
		"Keep the maximum length of summary within {} number of tokens.\n"
	defaultFinalPrompt = "You are an expert text summarizer. You will receive a text and your task is to give a comprehensive summary and keep all the key information.\n"
)

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragchat/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragchat/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports settings that would make the summarizer or retrieval misbehave.
func (c *AppConfig) Validate() error {
	if c.Summarizer.MaxFinalTokens <= 0 {
		return errors.New("summarizer.max_final_token must be positive")
	}
	if c.Summarizer.TokenThreshold < 0 {
		return errors.New("summarizer.token_threshold must not be negative")
	}
	if c.Summarizer.CharacterOverlap < 0 {
		return errors.New("summarizer.character_overlap must not be negative")
	}
	if c.Retrieval.K <= 0 {
		return errors.New("retrieval.k must be positive")
	}
	if c.Memory.NumberOfQAPairs < 0 {
		return errors.New("memory.number_of_q_a_pairs must not be negative")
	}
	switch c.LLM.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unknown llm provider: %q", c.LLM.Provider)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragchat", "config.yaml"), nil
}

// Default returns the configuration used when no file is present.
func Default() *AppConfig {
	cfg := &AppConfig{
		LLM:         LLMConfig{Provider: "gemini", Temperature: 0, MaxOutputTokens: 800},
		Embedder:    EmbedderConfig{Type: "tfidf"},
		Chunker:     ChunkerConfig{Type: "sentence", SentencesPerChunk: 5, OverlapSentences: 1},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Retrieval:   RetrievalConfig{K: 3},
		Memory:      MemoryConfig{NumberOfQAPairs: 2},
		Summarizer: SummarizerConfig{
			Type:             "frequency",
			MaxSentences:     5,
			MaxFinalTokens:   3000,
			TokenThreshold:   0,
			CharacterOverlap: 100,
		},
		Directories: DirectoriesConfig{DataDirectory: "data/docs"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "gemini"
	}
	switch cfg.LLM.Provider {
	case "gemini":
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
		}
		if cfg.LLM.APIKeyEnv == "" {
			cfg.LLM.APIKeyEnv = "GOOGLE_API_KEY"
		}
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = "gemini-pro"
		}
	case "openai":
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.LLM.APIKeyEnv == "" {
			cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = "gpt-4o-mini"
		}
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 60
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}
	if cfg.LLM.SystemRole == "" {
		cfg.LLM.SystemRole = defaultSystemRole
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}
	if cfg.Retrieval.K == 0 {
		cfg.Retrieval.K = 3
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 5
	}
	if cfg.Summarizer.MaxFinalTokens == 0 {
		cfg.Summarizer.MaxFinalTokens = 3000
	}
	if cfg.Summarizer.MinPageTokens == 0 {
		cfg.Summarizer.MinPageTokens = 16
	}
	if cfg.Summarizer.Concurrency == 0 {
		cfg.Summarizer.Concurrency = 1
	}
	if cfg.Summarizer.PageTimeoutSecs == 0 {
		cfg.Summarizer.PageTimeoutSecs = 60
	}
	if cfg.Summarizer.PagePrompt == "" {
		cfg.Summarizer.PagePrompt = defaultPagePrompt
	}
	if cfg.Summarizer.FinalPrompt == "" {
		cfg.Summarizer.FinalPrompt = defaultFinalPrompt
	}
	if cfg.Summarizer.TokenEncoding == "" {
		cfg.Summarizer.TokenEncoding = "cl100k_base"
	}
	if cfg.Directories.DataDirectory == "" {
		cfg.Directories.DataDirectory = "data/docs"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "localhost:8000"
	}
	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = "http://" + cfg.Server.Addr
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
}
