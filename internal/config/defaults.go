package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Index.Name == "" {
		cfg.Index.Name = "smart-contracts"
	}
	if cfg.Index.Dimension == 0 {
		cfg.Index.Dimension = 384
	}
	if cfg.Index.Metric == "" {
		cfg.Index.Metric = "cosine"
	}
	if cfg.Backend.Type == "" {
		cfg.Backend.Type = BackendLocal
	}

	r := &cfg.Backend.Remote
	if r.APIKeyEnv == "" {
		r.APIKeyEnv = "VECSEARCH_API_KEY"
	}
	if r.Timeout == 0 {
		r.Timeout = 10 * time.Second
	}
	if r.MaxRetries == 0 {
		r.MaxRetries = 3
	}
	if r.BaseBackoff == 0 {
		r.BaseBackoff = 100 * time.Millisecond
	}
	if r.MaxBackoff == 0 {
		r.MaxBackoff = 2 * time.Second
	}
	if r.BatchSize == 0 {
		r.BatchSize = 100
	}
	if r.Concurrency == 0 {
		r.Concurrency = 4
	}

	if cfg.Backend.Chromem.Collection == "" {
		cfg.Backend.Chromem.Collection = cfg.Index.Name
	}

	if cfg.Search.FetchMultiplier == 0 {
		cfg.Search.FetchMultiplier = 4
	}
	if cfg.Search.MaxFetch == 0 {
		cfg.Search.MaxFetch = 10000
	}
	if cfg.Search.BatchSize == 0 {
		cfg.Search.BatchSize = 100
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderHashing
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.APIKeyEnv == "" {
		cfg.Server.APIKeyEnv = "VECSEARCH_SERVER_KEY"
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if cfg.Server.MaxInFlight == 0 {
		cfg.Server.MaxInFlight = 64
	}
}
