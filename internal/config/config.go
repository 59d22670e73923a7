package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Source    SourceConfig    `yaml:"source"`
	Indexer   IndexerConfig   `yaml:"indexer,omitempty"`
	Search    SearchConfig    `yaml:"search,omitempty"`
}

// EmbeddingConfig holds embedding service configuration
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "local" | "openai" | "volcengine"

	APIKey   string `yaml:"api_key,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
	Model    string `yaml:"model,omitempty"`

	Dimensions        int     `yaml:"dimensions"`
	BatchSize         int     `yaml:"batch_size"`                    // Texts per provider request
	MaxWorkers        int     `yaml:"max_workers,omitempty"`         // Concurrent provider requests
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"` // 0 means unlimited
}

// StoreConfig holds vector store configuration
type StoreConfig struct {
	Backend string `yaml:"backend"` // "sqlite" | "qdrant"

	// Path is the persistent collection location. Reusing it across runs
	// reloads the same collections.
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`

	QdrantURL    string `yaml:"qdrant_url,omitempty"`
	QdrantAPIKey string `yaml:"qdrant_api_key,omitempty"`
}

// SourceConfig describes the bulk record file
type SourceConfig struct {
	Path          string `yaml:"path"`                     // File path or doublestar glob
	Format        string `yaml:"format,omitempty"`         // "auto" | "json" | "csv"
	ExpectedTotal int    `yaml:"expected_total,omitempty"` // Progress estimate, 0 if unknown
}

// IndexerConfig holds indexer-specific configuration
type IndexerConfig struct {
	BatchSize    int   `yaml:"batch_size,omitempty"`
	KeywordIndex *bool `yaml:"keyword_index,omitempty"`
}

// SearchConfig holds search-specific configuration
type SearchConfig struct {
	DefaultTopK  int    `yaml:"default_top_k,omitempty"`
	SynonymsFile string `yaml:"synonyms_file,omitempty"` // Keyword query expansion groups
}

const (
	DefaultNamespace = "tweets"
	DefaultBatchSize = 256
	DefaultTopK      = 10
)

// DefaultConfigPath returns ~/.tweetsearch/config/tweetsearch.yaml
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".tweetsearch", "config", "tweetsearch.yaml")
	}
	return filepath.Join(homeDir, ".tweetsearch", "config", "tweetsearch.yaml")
}

// Load loads configuration from the default config file
func Load() (*Config, error) {
	return LoadFromFile(DefaultConfigPath())
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ConfigNotFoundError{
				RequestedPath: path,
				DefaultPath:   DefaultConfigPath(),
			}
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ConfigNotFoundError is returned when config file is not found
type ConfigNotFoundError struct {
	RequestedPath string
	DefaultPath   string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("config file not found at: %s\n\nDefault location: %s\n\nYou can:\n"+
		"  1. Run 'tweetsearch init' to create the default config\n"+
		"  2. Specify a custom path with --config",
		e.RequestedPath, e.DefaultPath)
}

// IsConfigNotFound checks if error is config not found
func IsConfigNotFound(err error) bool {
	var target *ConfigNotFoundError
	return errors.As(err, &target)
}

// KeywordIndexEnabled reports whether the bleve companion index is built.
func (c *Config) KeywordIndexEnabled() bool {
	if c.Indexer.KeywordIndex == nil {
		return true
	}
	return *c.Indexer.KeywordIndex
}

// expandPath expands ~ and $HOME to the user's home directory
func expandPath(path string) string {
	var rest string
	switch {
	case path == "~" || path == "$HOME":
	case strings.HasPrefix(path, "~/"):
		rest = path[2:]
	case strings.HasPrefix(path, "$HOME/"):
		rest = path[6:]
	default:
		return path
	}

	homeDir := os.Getenv("HOME")
	if homeDir == "" {
		var err error
		homeDir, err = os.UserHomeDir()
		if err != nil {
			return path
		}
	}
	if rest == "" {
		return homeDir
	}
	return filepath.Join(homeDir, rest)
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "local"
	}
	switch c.Embedding.Provider {
	case "openai":
		if c.Embedding.APIKey == "" {
			c.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if c.Embedding.Model == "" {
			c.Embedding.Model = "text-embedding-3-small"
		}
		if c.Embedding.Dimensions == 0 {
			c.Embedding.Dimensions = 1536
		}
	case "volcengine":
		if c.Embedding.Model == "" {
			c.Embedding.Model = "doubao-embedding-vision-250615"
		}
		if c.Embedding.Dimensions == 0 {
			c.Embedding.Dimensions = 2048
		}
	default:
		if c.Embedding.Model == "" {
			c.Embedding.Model = "hashed-bow-v1"
		}
		if c.Embedding.Dimensions == 0 {
			c.Embedding.Dimensions = 384
		}
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = 64
	}
	if c.Embedding.MaxWorkers == 0 {
		c.Embedding.MaxWorkers = 1
	}

	if c.Store.Backend == "" {
		c.Store.Backend = "sqlite"
	}
	if c.Store.Path == "" {
		c.Store.Path = "~/.tweetsearch/data"
	}
	c.Store.Path = expandPath(c.Store.Path)
	if c.Store.Namespace == "" {
		c.Store.Namespace = DefaultNamespace
	}
	if c.Store.Backend == "qdrant" && c.Store.QdrantURL == "" {
		c.Store.QdrantURL = "http://localhost:6334"
	}

	c.Source.Path = expandPath(c.Source.Path)
	if c.Source.Format == "" {
		c.Source.Format = "auto"
	}

	if c.Indexer.BatchSize == 0 {
		c.Indexer.BatchSize = DefaultBatchSize
	}
	if c.Search.DefaultTopK == 0 {
		c.Search.DefaultTopK = DefaultTopK
	}
	c.Search.SynonymsFile = expandPath(c.Search.SynonymsFile)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "local":
	case "openai", "volcengine":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("%s provider requires api_key", c.Embedding.Provider)
		}
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}

	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive, got: %d", c.Embedding.Dimensions)
	}
	if c.Embedding.BatchSize <= 0 || c.Embedding.BatchSize > 2048 {
		return fmt.Errorf("embedding.batch_size must be between 1 and 2048, got: %d", c.Embedding.BatchSize)
	}
	if c.Embedding.MaxWorkers < 1 {
		return fmt.Errorf("embedding.max_workers must be at least 1, got: %d", c.Embedding.MaxWorkers)
	}
	if c.Embedding.RequestsPerSecond < 0 {
		return fmt.Errorf("embedding.requests_per_second must not be negative")
	}

	switch c.Store.Backend {
	case "sqlite", "qdrant":
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Store.Backend)
	}
	if strings.TrimSpace(c.Store.Namespace) == "" {
		return fmt.Errorf("store.namespace must not be empty")
	}

	switch c.Source.Format {
	case "auto", "json", "csv":
	default:
		return fmt.Errorf("unsupported source format: %s", c.Source.Format)
	}
	if c.Source.ExpectedTotal < 0 {
		return fmt.Errorf("source.expected_total must not be negative")
	}

	if c.Indexer.BatchSize < 1 {
		return fmt.Errorf("indexer.batch_size must be at least 1, got: %d", c.Indexer.BatchSize)
	}
	if c.Search.DefaultTopK < 1 {
		return fmt.Errorf("search.default_top_k must be at least 1, got: %d", c.Search.DefaultTopK)
	}

	return nil
}

const defaultConfigTemplate = `# tweetsearch configuration
#
# Default location: $HOME/.tweetsearch/config/tweetsearch.yaml

embedding:
  # Provider: "local", "openai" or "volcengine"
  # "local" is an offline hashed bag-of-words: it only matches tweets that share
  # words with the query. Switch to "openai" to search by meaning.
  provider: local
  dimensions: 384
  batch_size: 64
  max_workers: 1

  # provider: openai
  # api_key: your-openai-api-key   # or set OPENAI_API_KEY
  # model: text-embedding-3-small
  # dimensions: 1536
  # requests_per_second: 5

store:
  backend: sqlite
  path: ~/.tweetsearch/data
  namespace: tweets
  # backend: qdrant
  # qdrant_url: http://localhost:6334

source:
  # Twitter/X archive (tweets.json or tweets.js) or a CSV with text,date columns.
  # Globs are accepted: ~/archive/**/*.json
  path: ./tweets.json
  format: auto
  expected_total: 3500

indexer:
  batch_size: 256
  keyword_index: true

search:
  default_top_k: 10
  # Optional keyword expansion groups, e.g. {synonyms: {spacex: [starship, falcon]}}
  # synonyms_file: ~/.tweetsearch/config/synonyms.yaml
`

// WriteDefaultTemplate creates a default configuration file if it does not exist.
// It returns true if a file was created, false if it already existed.
func WriteDefaultTemplate(path string) (bool, error) {
	if path == "" {
		return false, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0644); err != nil {
		return false, fmt.Errorf("failed to write config template: %w", err)
	}

	return true, nil
}
