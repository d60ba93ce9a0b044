package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecsearch/distance"
	"github.com/hupe1980/vecsearch/metadata"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "config.yaml", `
log_level: debug
index: {name: contracts, dimension: 8, metric: dot}
backend:
  type: remote
  remote:
    url: http://localhost:9000
    timeout: 2s
    max_retries: 5
    base_backoff: 50ms
    requests_per_second: 20
    gzip: true
search:
  fetch_multiplier: 2
  filter_pushdown: false
embedding: {provider: openai, model: text-embedding-3-large}
server: {addr: ":9090", request_timeout: 5s}
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	assert.Equal(t, "contracts", cfg.Index.Name)
	assert.Equal(t, 8, cfg.Index.Dimension)
	metric, err := cfg.Metric()
	require.NoError(t, err)
	assert.Equal(t, distance.MetricDot, metric)

	r := cfg.Backend.Remote
	assert.Equal(t, BackendRemote, cfg.Backend.Type)
	assert.Equal(t, "http://localhost:9000", r.URL)
	assert.Equal(t, 2*time.Second, r.Timeout)
	assert.Equal(t, 5, r.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, r.BaseBackoff)
	assert.Equal(t, 2*time.Second, r.MaxBackoff, "default")
	assert.InDelta(t, 20.0, r.RequestsPerSecond, 1e-9)
	assert.True(t, r.Gzip)

	assert.Equal(t, 2, cfg.Search.FetchMultiplier)
	assert.Equal(t, 10000, cfg.Search.MaxFetch)
	assert.False(t, cfg.Search.FilterPushdownOrDefault())

	assert.Equal(t, ProviderOpenAI, cfg.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedding.Model)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "smart-contracts", cfg.Index.Name)
	assert.Equal(t, 384, cfg.Index.Dimension)
	metric, err := cfg.Metric()
	require.NoError(t, err)
	assert.Equal(t, distance.MetricCosine, metric)
	assert.Equal(t, BackendLocal, cfg.Backend.Type)
	assert.Equal(t, "smart-contracts", cfg.Backend.Chromem.Collection)
	assert.Equal(t, 10*time.Second, cfg.Backend.Remote.Timeout)
	assert.Equal(t, 3, cfg.Backend.Remote.MaxRetries)
	assert.Equal(t, 4, cfg.Search.FetchMultiplier)
	assert.True(t, cfg.Search.FilterPushdownOrDefault())
	assert.Equal(t, 100, cfg.Search.BatchSize)
	assert.Equal(t, ProviderHashing, cfg.Embedding.Provider)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 64, cfg.Server.MaxInFlight)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "index: [unterminated"))
	require.Error(t, err)

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"LogLevel", "log_level: loud", "log_level"},
		{"Dimension", "index: {dimension: -3}", "index.dimension"},
		{"Metric", "index: {metric: hamming}", "index.metric"},
		{"BackendType", "backend: {type: faiss}", "backend.type"},
		{"RemoteURL", "backend: {type: remote}", "backend.remote.url"},
		{"ChromemMetric", "index: {metric: l2}\nbackend: {type: chromem}", "requires metric cosine"},
		{"Provider", "embedding: {provider: onnx}", "embedding.provider"},
		{"FetchMultiplier", "search: {fetch_multiplier: -1}", "search.fetch_multiplier"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yaml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAPIKeys(t *testing.T) {
	t.Setenv("TEST_VECSEARCH_KEY", "secret")
	cfg, err := Load(writeFile(t, "config.yaml", `
backend:
  remote: {api_key_env: TEST_VECSEARCH_KEY}
server: {api_key_env: TEST_VECSEARCH_UNSET_KEY}
`))
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Backend.Remote.APIKey())
	assert.Empty(t, cfg.Server.APIKey())

	empty := RemoteConfig{}
	assert.Empty(t, empty.APIKey())
}

func TestLoadRecords(t *testing.T) {
	path := writeFile(t, "records.yaml", `
records:
  - id: erc20
    text: "function transfer(address to, uint256 amount)"
    metadata: {type: ERC-20, year: 2017, audited: true, score: 0.5}
  - id: raw
    vector: [0.1, 0.2, 0.3]
`)
	records, err := LoadRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "erc20", records[0].ID)
	assert.NotEmpty(t, records[0].Text)
	doc, err := records[0].Document()
	require.NoError(t, err)
	assert.Equal(t, metadata.String("ERC-20"), doc["type"])
	assert.Equal(t, metadata.Int(2017), doc["year"])
	assert.Equal(t, metadata.Bool(true), doc["audited"])
	assert.Equal(t, metadata.Float(0.5), doc["score"])

	assert.Equal(t, []float32{0.1, 0.2, 0.3}, records[1].Vector)
	doc, err = records[1].Document()
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestLoadRecords_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"MissingID", "records: [{text: a}]", "id is required"},
		{"NoPayload", "records: [{id: a}]", "exactly one of text and vector"},
		{"BothPayloads", "records: [{id: a, text: x, vector: [1]}]", "exactly one of text and vector"},
		{"Duplicate", "records: [{id: a, text: x}, {id: a, text: y}]", "duplicate of record 0"},
		{"NestedMetadata", "records: [{id: a, text: x, metadata: {tags: [a, b]}}]", "not a scalar"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRecords(writeFile(t, "records.yaml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
