package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("source:\n  path: tweets.json\n"))
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 384, cfg.Embedding.Dimensions)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, DefaultNamespace, cfg.Store.Namespace)
	assert.Equal(t, DefaultBatchSize, cfg.Indexer.BatchSize)
	assert.Equal(t, DefaultTopK, cfg.Search.DefaultTopK)
	assert.Equal(t, "auto", cfg.Source.Format)
	assert.True(t, cfg.KeywordIndexEnabled())
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown provider", "embedding:\n  provider: cohere\n"},
		{"openai without key", "embedding:\n  provider: openai\n"},
		{"unknown backend", "store:\n  backend: chroma\n"},
		{"negative batch", "indexer:\n  batch_size: -1\n"},
		{"unknown format", "source:\n  format: xml\n"},
		{"negative top k", "search:\n  default_top_k: -3\n"},
	}

	t.Setenv("OPENAI_API_KEY", "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestOpenAIKeyFromEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Parse([]byte("embedding:\n  provider: openai\n"))
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
}

func TestKeywordIndexCanBeDisabled(t *testing.T) {
	cfg, err := Parse([]byte("indexer:\n  keyword_index: false\n"))
	require.NoError(t, err)
	assert.False(t, cfg.KeywordIndexEnabled())
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	assert.Equal(t, "/home/tester", expandPath("~"))
	assert.Equal(t, "/home/tester/.tweetsearch/data", expandPath("~/.tweetsearch/data"))
	assert.Equal(t, "/home/tester/x", expandPath("$HOME/x"))
	assert.Equal(t, "./relative", expandPath("./relative"))
}

func TestLoadFromFileNotFound(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, IsConfigNotFound(err))
}

func TestWriteDefaultTemplateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "tweetsearch.yaml")

	created, err := WriteDefaultTemplate(path)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = WriteDefaultTemplate(path)
	require.NoError(t, err)
	assert.False(t, created)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3500, cfg.Source.ExpectedTotal)
	assert.Equal(t, 256, cfg.Indexer.BatchSize)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	// The offline default says it is word-based and names the semantic provider.
	assert.Contains(t, string(data), "hashed bag-of-words")
	assert.Contains(t, string(data), `Switch to "openai" to search by meaning`)
}
