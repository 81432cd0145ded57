// Package config loads persona-memory settings from a YAML file, a .env
// file and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/persona-memory/internal/embedding"
	"github.com/rcliao/persona-memory/internal/llm"
	"github.com/rcliao/persona-memory/internal/logging"
	"github.com/rcliao/persona-memory/internal/retrieve"
)

// Config is the complete configuration.
type Config struct {
	DBPath    string          `yaml:"db"`
	Log       LogConfig       `yaml:"log"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Interview InterviewConfig `yaml:"interview"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EmbeddingConfig selects the embedding provider. An empty provider disables
// embedding; retrieval then relies on stored vectors only.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Dimensions int    `yaml:"dimensions"`
	CacheBytes int64  `yaml:"cache_bytes"`
}

type LLMConfig struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

type RetrievalConfig struct {
	Count       int              `yaml:"count"`
	Weights     retrieve.Weights `yaml:"weights"`
	Parallelism int              `yaml:"parallelism"`
}

type InterviewConfig struct {
	Interviewer string `yaml:"interviewer"`
	Questions   string `yaml:"questions"`
	Clause      string `yaml:"clause"`
	Event       string `yaml:"event"`
	Seed        int64  `yaml:"seed"`
	Concurrency int    `yaml:"concurrency"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DBPath: filepath.Join(home, ".persona-memory", "memory.db"),
		Log:    LogConfig{Level: "info", Format: "text"},
		Embedding: EmbeddingConfig{
			CacheBytes: 64 << 20,
		},
		LLM: LLMConfig{
			MaxTokens: 512,
			Timeout:   60 * time.Second,
		},
		Retrieval: RetrievalConfig{
			Count:       30,
			Weights:     retrieve.DefaultWeights(),
			Parallelism: 1,
		},
		Interview: InterviewConfig{
			Interviewer: "Interviewer",
			Seed:        1,
			Concurrency: 4,
		},
	}
}

// Load builds the configuration. Defaults are overlaid with the YAML file at
// path (skipped when empty), then with the environment, which also picks up
// a .env file in the working directory. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// A missing .env is fine.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.DBPath, "PERSONA_MEMORY_DB")
	setString(&c.Log.Level, "PERSONA_MEMORY_LOG_LEVEL")
	setString(&c.Log.Format, "PERSONA_MEMORY_LOG_FORMAT")

	setString(&c.Embedding.Provider, "PERSONA_MEMORY_EMBEDDING_PROVIDER")
	setString(&c.Embedding.Model, "PERSONA_MEMORY_EMBEDDING_MODEL")
	if err := setInt(&c.Embedding.Dimensions, "PERSONA_MEMORY_EMBEDDING_DIMS"); err != nil {
		return err
	}

	setString(&c.LLM.Provider, "PERSONA_MEMORY_LLM_PROVIDER")
	setString(&c.LLM.Model, "PERSONA_MEMORY_LLM_MODEL")
	if err := setInt(&c.Retrieval.Count, "PERSONA_MEMORY_RETRIEVAL_COUNT"); err != nil {
		return err
	}

	// Provider credentials fill in only what the file left empty.
	switch c.Embedding.Provider {
	case "ollama":
		fillString(&c.Embedding.BaseURL, "OLLAMA_HOST")
	case "openai":
		fillString(&c.Embedding.APIKey, "OPENAI_API_KEY")
		fillString(&c.Embedding.BaseURL, "OPENAI_BASE_URL")
	}
	switch c.LLM.Provider {
	case "openai":
		fillString(&c.LLM.APIKey, "OPENAI_API_KEY")
		fillString(&c.LLM.BaseURL, "OPENAI_BASE_URL")
	case "anthropic":
		fillString(&c.LLM.APIKey, "ANTHROPIC_API_KEY")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func fillString(dst *string, key string) {
	if *dst == "" {
		setString(dst, key)
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

// Validate rejects settings no command could run with.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("config: db path is empty")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Embedding.Provider {
	case "", "ollama", "openai", "hash":
	default:
		return fmt.Errorf("config: unknown embedding provider %q", c.Embedding.Provider)
	}
	switch c.LLM.Provider {
	case "", "openai", "anthropic":
	default:
		return fmt.Errorf("config: unknown llm provider %q", c.LLM.Provider)
	}
	w := c.Retrieval.Weights
	if w.Recency < 0 || w.Relevance < 0 || w.Importance < 0 {
		return fmt.Errorf("config: retrieval weights must not be negative: %+v", w)
	}
	if c.Retrieval.Count < 0 {
		return fmt.Errorf("config: retrieval count must not be negative")
	}
	return nil
}

// EmbeddingOptions converts the embedding section for embedding.New.
func (c *Config) EmbeddingOptions() embedding.Options {
	return embedding.Options{
		Provider:  c.Embedding.Provider,
		Model:     c.Embedding.Model,
		BaseURL:   c.Embedding.BaseURL,
		APIKey:    c.Embedding.APIKey,
		Dims:      c.Embedding.Dimensions,
		CacheSize: c.Embedding.CacheBytes,
	}
}

// LLMOptions converts the llm section for llm.New.
func (c *Config) LLMOptions() llm.Options {
	return llm.Options{
		Provider:  c.LLM.Provider,
		Model:     c.LLM.Model,
		APIKey:    c.LLM.APIKey,
		BaseURL:   c.LLM.BaseURL,
		MaxTokens: c.LLM.MaxTokens,
		Timeout:   c.LLM.Timeout,
	}
}

// LogOptions converts the log section for logging.New.
func (c *Config) LogOptions() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}
