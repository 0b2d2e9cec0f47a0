package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"pdfchat/internal/domain"
)

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string `yaml:"type"`
	Model     string `yaml:"model,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
	BatchSize int    `yaml:"batch_size,omitempty"`
	// CacheSize bounds the query embedding cache; 0 disables it.
	CacheSize int `yaml:"cache_size"`
}

// ChatConfig selects and configures the chat-completion model.
type ChatConfig struct {
	Type        string  `yaml:"type"`
	Model       string  `yaml:"model,omitempty"`
	Temperature float64 `yaml:"temperature"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	APIKeyEnv   string  `yaml:"api_key_env,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
}

// ChunkerConfig configures how corpus text is split into chunks.
type ChunkerConfig struct {
	Separator    string `yaml:"separator"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
}

// MarshalYAML writes the separator double-quoted. A plain or block scalar
// does not reload whitespace-only separators such as "\n".
func (c ChunkerConfig) MarshalYAML() (interface{}, error) {
	str := func(v string, style yaml.Style) *yaml.Node {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v, Style: style}
	}
	num := func(v int) *yaml.Node {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(v)}
	}
	return &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
		str("separator", 0), str(c.Separator, yaml.DoubleQuotedStyle),
		str("chunk_size", 0), num(c.ChunkSize),
		str("chunk_overlap", 0), num(c.ChunkOverlap),
	}}, nil
}

// RetrievalConfig tunes question answering.
type RetrievalConfig struct {
	TopK             int  `yaml:"top_k"`
	CondenseQuestion bool `yaml:"condense_question"`
	HistoryWindow    int  `yaml:"history_window"`
}

// IndexConfig selects and configures the vector index backend.
type IndexConfig struct {
	Type     string          `yaml:"type"`
	Chromem  *ChromemConfig  `yaml:"chromem,omitempty"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	Pgvector *PgvectorConfig `yaml:"pgvector,omitempty"`
}

// ChromemConfig configures the embedded chromem-go index.
type ChromemConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env,omitempty"`
	Prefix      string `yaml:"collection_prefix,omitempty"`
	TimeoutSecs int    `yaml:"timeout_secs,omitempty"`
}

// PgvectorConfig contains connection details for PostgreSQL with pgvector.
type PgvectorConfig struct {
	DSN   string `yaml:"dsn"`
	Debug bool   `yaml:"debug,omitempty"`
}

// SummaryConfig configures the extractive corpus summary.
type SummaryConfig struct {
	MaxSentences int `yaml:"max_sentences"`
}

// LogConfig configures zerolog output. The terminal UI always logs to a
// file (~/.config/pdfchat/pdfchat.log unless File is set); Pretty writes
// file logs as console text instead of JSON.
type LogConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file,omitempty"`
	Pretty bool   `yaml:"pretty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Chat      ChatConfig      `yaml:"chat"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Index     IndexConfig     `yaml:"index"`
	Summary   SummaryConfig   `yaml:"summary"`
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Keys missing from the file keep their default values.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyConfigDefaults(cfg)
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/pdfchat/config.yaml.
// If neither exists, it writes defaults to ~/.config/pdfchat/config.yaml and returns them.
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
	cfg := defaultConfig()
	applyConfigDefaults(cfg)
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

// Dir returns the per-user configuration directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pdfchat"), nil
}

func defaultUserConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Embedder:  EmbedderConfig{Type: "openai", CacheSize: 256},
		Chat:      ChatConfig{Type: "openai", Temperature: 0.7},
		Chunker:   ChunkerConfig{Separator: "\n", ChunkSize: 1000, ChunkOverlap: 200},
		Retrieval: RetrievalConfig{TopK: 4},
		Index:     IndexConfig{Type: "chromem"},
		Summary:   SummaryConfig{MaxSentences: 3},
		Log:       LogConfig{Level: "info"},
		Server:    ServerConfig{Addr: ":8080"},
	}
}

// applyConfigDefaults fills provider-specific settings that depend on the
// selected type.
func applyConfigDefaults(cfg *AppConfig) {
	switch cfg.Embedder.Type {
	case "openai":
		if cfg.Embedder.Model == "" {
			cfg.Embedder.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.APIKeyEnv == "" {
			cfg.Embedder.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.BatchSize == 0 {
			cfg.Embedder.BatchSize = 32
		}
	case "ollama":
		if cfg.Embedder.Model == "" {
			cfg.Embedder.Model = "nomic-embed-text"
		}
		if cfg.Embedder.BatchSize == 0 {
			cfg.Embedder.BatchSize = 32
		}
	}
	switch cfg.Chat.Type {
	case "openai":
		if cfg.Chat.Model == "" {
			cfg.Chat.Model = "gpt-3.5-turbo"
		}
		if cfg.Chat.APIKeyEnv == "" {
			cfg.Chat.APIKeyEnv = "OPENAI_API_KEY"
		}
	case "anthropic":
		if cfg.Chat.Model == "" {
			cfg.Chat.Model = "claude-3-5-haiku-latest"
		}
		if cfg.Chat.APIKeyEnv == "" {
			cfg.Chat.APIKeyEnv = "ANTHROPIC_API_KEY"
		}
		if cfg.Chat.MaxTokens == 0 {
			cfg.Chat.MaxTokens = 1024
		}
	case "ollama":
		if cfg.Chat.Model == "" {
			cfg.Chat.Model = "llama3.2"
		}
	}
	switch cfg.Index.Type {
	case "chromem":
		if cfg.Index.Chromem == nil {
			cfg.Index.Chromem = &ChromemConfig{}
		}
		if cfg.Index.Chromem.Concurrency == 0 {
			cfg.Index.Chromem.Concurrency = 4
		}
	case "qdrant":
		if cfg.Index.Qdrant == nil {
			cfg.Index.Qdrant = &QdrantConfig{}
		}
		if cfg.Index.Qdrant.URL == "" {
			cfg.Index.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.Index.Qdrant.Prefix == "" {
			cfg.Index.Qdrant.Prefix = "pdfchat"
		}
		if cfg.Index.Qdrant.TimeoutSecs == 0 {
			cfg.Index.Qdrant.TimeoutSecs = 15
		}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate checks value ranges and the selected implementation types.
func (c *AppConfig) Validate() error {
	var errs []error
	oneOf := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%w: %s %q must be one of %v", domain.ErrInvalidConfig, field, value, allowed))
	}
	oneOf("embedder.type", c.Embedder.Type, "openai", "ollama", "tfidf")
	oneOf("chat.type", c.Chat.Type, "openai", "anthropic", "ollama")
	oneOf("index.type", c.Index.Type, "chromem", "memory", "qdrant", "pgvector")

	if c.Chunker.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: chunk_size must be greater than zero", domain.ErrInvalidChunkConfig))
	} else if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		errs = append(errs, fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size)", domain.ErrInvalidChunkConfig))
	}
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		errs = append(errs, fmt.Errorf("%w: chat.temperature must be in [0, 2]", domain.ErrInvalidConfig))
	}
	if c.Retrieval.TopK < 0 {
		errs = append(errs, fmt.Errorf("%w: retrieval.top_k cannot be negative", domain.ErrInvalidConfig))
	}
	if c.Retrieval.HistoryWindow < 0 {
		errs = append(errs, fmt.Errorf("%w: retrieval.history_window cannot be negative", domain.ErrInvalidConfig))
	}
	if c.Embedder.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("%w: embedder.cache_size cannot be negative", domain.ErrInvalidConfig))
	}
	if c.Index.Type == "pgvector" && (c.Index.Pgvector == nil || c.Index.Pgvector.DSN == "") {
		errs = append(errs, fmt.Errorf("%w: index.pgvector.dsn is required", domain.ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

// Credentials are the secrets resolved from the environment.
type Credentials struct {
	EmbedderKey string
	ChatKey     string
	QdrantKey   string
}

// Credentials resolves API keys from the environment variables named in the
// config. Providers that need a key fail with ErrMissingCredential naming the
// variable.
func (c *AppConfig) Credentials() (Credentials, error) {
	var creds Credentials
	var err error
	if c.Embedder.Type == "openai" {
		if creds.EmbedderKey, err = requireEnv(c.Embedder.APIKeyEnv); err != nil {
			return Credentials{}, err
		}
	}
	if c.Chat.Type == "openai" || c.Chat.Type == "anthropic" {
		if creds.ChatKey, err = requireEnv(c.Chat.APIKeyEnv); err != nil {
			return Credentials{}, err
		}
	}
	if c.Index.Type == "qdrant" && c.Index.Qdrant != nil && c.Index.Qdrant.APIKeyEnv != "" {
		creds.QdrantKey = os.Getenv(c.Index.Qdrant.APIKeyEnv)
	}
	return creds, nil
}

func requireEnv(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: no environment variable configured", domain.ErrMissingCredential)
	}
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("%w: environment variable %s is not set", domain.ErrMissingCredential, name)
	}
	return v, nil
}
