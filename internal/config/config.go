// Package config provides configuration loading and structs for the vecsearch command.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/vecsearch/distance"
)

// Backend types.
const (
	BackendLocal   = "local"
	BackendRemote  = "remote"
	BackendChromem = "chromem"
)

// Embedding providers.
const (
	ProviderHashing = "hashing"
	ProviderOpenAI  = "openai"
)

// Config holds all configuration for the command.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Index     IndexConfig     `yaml:"index"`
	Backend   BackendConfig   `yaml:"backend"`
	Search    SearchConfig    `yaml:"search"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Server    ServerConfig    `yaml:"server"`
}

// IndexConfig names the index and fixes its shape.
type IndexConfig struct {
	Name      string `yaml:"name"`
	Dimension int    `yaml:"dimension"`
	Metric    string `yaml:"metric"`
}

// BackendConfig selects and configures the backend.
type BackendConfig struct {
	Type    string        `yaml:"type"`
	Remote  RemoteConfig  `yaml:"remote"`
	Chromem ChromemConfig `yaml:"chromem"`
}

// RemoteConfig holds the hosted index client settings.
type RemoteConfig struct {
	URL               string        `yaml:"url"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	BaseBackoff       time.Duration `yaml:"base_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	BatchSize         int           `yaml:"batch_size"`
	Concurrency       int           `yaml:"concurrency"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Gzip              bool          `yaml:"gzip"`
}

// APIKey returns the key read from APIKeyEnv, or "".
func (r *RemoteConfig) APIKey() string { return getenv(r.APIKeyEnv) }

// ChromemConfig holds the embedded Chroma-compatible store settings.
type ChromemConfig struct {
	Collection string `yaml:"collection"`
	// Path persists the database in a directory; empty keeps it in memory.
	Path     string `yaml:"path"`
	Compress bool   `yaml:"compress"`
}

// SearchConfig holds service settings.
type SearchConfig struct {
	FetchMultiplier int   `yaml:"fetch_multiplier"`
	MaxFetch        int   `yaml:"max_fetch"`
	FilterPushdown  *bool `yaml:"filter_pushdown"`
	BatchSize       int   `yaml:"batch_size"`
}

// FilterPushdownOrDefault returns whether filters are pushed to the backend;
// defaults to true when unset.
func (s *SearchConfig) FilterPushdownOrDefault() bool {
	if s.FilterPushdown != nil {
		return *s.FilterPushdown
	}
	return true
}

// EmbeddingConfig selects the embedder.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
}

// APIKey returns the key read from APIKeyEnv, or "".
func (e *EmbeddingConfig) APIKey() string { return getenv(e.APIKeyEnv) }

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	APIKeyEnv      string        `yaml:"api_key_env"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxInFlight    int           `yaml:"max_in_flight"`
	// MaxBodyBytes and BodyMemoryLimit bound request bodies; zero keeps
	// the server defaults.
	MaxBodyBytes      int64   `yaml:"max_body_bytes"`
	BodyMemoryLimit   int64   `yaml:"body_memory_limit"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// APIKey returns the key read from APIKeyEnv, or "" when the server runs
// without authentication.
func (s *ServerConfig) APIKey() string { return getenv(s.APIKeyEnv) }

func getenv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// Load reads and parses the config file at path and applies defaults.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	ApplyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.Index.Name == "" {
		errs = append(errs, errors.New("index.name is required"))
	}
	if c.Index.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("index.dimension must be positive, got %d", c.Index.Dimension))
	}
	if _, err := c.Metric(); err != nil {
		errs = append(errs, fmt.Errorf("index.metric: %w", err))
	}

	switch c.Backend.Type {
	case BackendLocal:
	case BackendRemote:
		if c.Backend.Remote.URL == "" {
			errs = append(errs, errors.New("backend.remote.url is required"))
		}
		if c.Backend.Remote.MaxRetries < 0 {
			errs = append(errs, errors.New("backend.remote.max_retries must not be negative"))
		}
		if c.Backend.Remote.RequestsPerSecond < 0 {
			errs = append(errs, errors.New("backend.remote.requests_per_second must not be negative"))
		}
	case BackendChromem:
		if m, err := c.Metric(); err == nil && m != distance.MetricCosine {
			errs = append(errs, fmt.Errorf("backend chromem requires metric cosine, got %s", m))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend.type %q", c.Backend.Type))
	}

	if c.Search.FetchMultiplier < 1 {
		errs = append(errs, errors.New("search.fetch_multiplier must be at least 1"))
	}
	if c.Search.MaxFetch < 1 {
		errs = append(errs, errors.New("search.max_fetch must be positive"))
	}
	if c.Search.BatchSize < 1 {
		errs = append(errs, errors.New("search.batch_size must be positive"))
	}

	switch c.Embedding.Provider {
	case ProviderHashing, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown embedding.provider %q", c.Embedding.Provider))
	}

	if c.Server.MaxInFlight < 0 {
		errs = append(errs, errors.New("server.max_in_flight must not be negative"))
	}
	if c.Server.MaxBodyBytes < 0 || c.Server.BodyMemoryLimit < 0 {
		errs = append(errs, errors.New("server body limits must not be negative"))
	}
	if c.Server.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("server.requests_per_second must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Metric parses Index.Metric.
func (c *Config) Metric() (distance.Metric, error) {
	return distance.ParseMetric(c.Index.Metric)
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
