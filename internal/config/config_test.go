package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PERSONA_MEMORY_DB", "PERSONA_MEMORY_LOG_LEVEL", "PERSONA_MEMORY_LOG_FORMAT",
		"PERSONA_MEMORY_EMBEDDING_PROVIDER", "PERSONA_MEMORY_EMBEDDING_MODEL", "PERSONA_MEMORY_EMBEDDING_DIMS",
		"PERSONA_MEMORY_LLM_PROVIDER", "PERSONA_MEMORY_LLM_MODEL", "PERSONA_MEMORY_RETRIEVAL_COUNT",
		"OLLAMA_HOST", "OPENAI_API_KEY", "OPENAI_BASE_URL", "ANTHROPIC_API_KEY",
	} {
		t.Setenv(k, "")
	}
	// Keep a developer's .env out of the test.
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ".persona-memory", filepath.Base(filepath.Dir(cfg.DBPath)))
	assert.Equal(t, 30, cfg.Retrieval.Count)
	assert.Equal(t, 1.0, cfg.Retrieval.Weights.Recency)
	assert.Equal(t, "Interviewer", cfg.Interview.Interviewer)
	assert.Empty(t, cfg.Embedding.Provider)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db: /tmp/from-file.db
embedding:
  provider: openai
  model: text-embedding-3-small
llm:
  provider: anthropic
  timeout: 30s
retrieval:
  count: 10
  weights:
    recency: 0.5
    relevance: 3
    importance: 2
interview:
  event: on Valentine's Day
`), 0o644))

	t.Setenv("PERSONA_MEMORY_DB", "/tmp/from-env.db")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "ant-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-env.db", cfg.DBPath, "env overrides the file")
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, "ant-test", cfg.LLM.APIKey)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 10, cfg.Retrieval.Count)
	assert.Equal(t, 3.0, cfg.Retrieval.Weights.Relevance)
	assert.Equal(t, "on Valentine's Day", cfg.Interview.Event)
	assert.Equal(t, "Interviewer", cfg.Interview.Interviewer, "defaults survive a partial file")

	opts := cfg.EmbeddingOptions()
	assert.Equal(t, "openai", opts.Provider)
	assert.Equal(t, int64(64<<20), opts.CacheSize)
	assert.Equal(t, "anthropic", cfg.LLMOptions().Provider)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.WriteFile(".env", []byte("PERSONA_MEMORY_EMBEDDING_PROVIDER=ollama\nOLLAMA_HOST=http://gpu:11434\n"), 0o644))
	// .env never overrides a variable that is set, even to "".
	os.Unsetenv("PERSONA_MEMORY_EMBEDDING_PROVIDER")
	os.Unsetenv("OLLAMA_HOST")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, "http://gpu:11434", cfg.Embedding.BaseURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db", func(c *Config) { c.DBPath = "" }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad embedder", func(c *Config) { c.Embedding.Provider = "word2vec" }},
		{"bad llm", func(c *Config) { c.LLM.Provider = "palm" }},
		{"negative weight", func(c *Config) { c.Retrieval.Weights.Importance = -1 }},
		{"negative count", func(c *Config) { c.Retrieval.Count = -5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("PERSONA_MEMORY_RETRIEVAL_COUNT", "many")
	_, err = Load("")
	assert.Error(t, err)
}
