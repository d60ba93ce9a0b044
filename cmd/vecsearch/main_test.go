package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecsearch/server"
)

const contractsYAML = `
records:
  - id: erc20-transfer
    text: "function transfer(address to, uint256 amount) public returns (bool) { balanceOf[msg.sender] -= amount; }"
    metadata: {type: ERC-20}
  - id: erc1155-batch
    text: "function safeBatchTransferFrom(address from, address to, uint256[] ids, uint256[] amounts, bytes data) external"
    metadata: {type: ERC-1155}
`

const erc20Query = "function transfer(address recipient, uint256 amount) external returns (bool)"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestClassify(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.yaml", "index: {dimension: 256}\nembedding: {provider: hashing}\n")
	records := writeFile(t, dir, "contracts.yaml", contractsYAML)

	out, err := run(t, "--config", cfg, "classify", "--file", records, "--text", erc20Query)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ERC-20 (nearest erc20-transfer"), out)

	out, err = run(t, "--config", cfg, "classify", "--file", records, "--text", erc20Query, "--label-key", "family")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "(unlabelled)"), out)

	_, err = run(t, "--config", cfg, "classify", "--file", records)
	assert.ErrorContains(t, err, "one of --text and --vector")
}

func TestUpsertAndQuery_Chromem(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.yaml", `
index: {name: contracts, dimension: 256, metric: cosine}
backend:
  type: chromem
  chromem: {path: "`+filepath.Join(dir, "db")+`"}
`)
	records := writeFile(t, dir, "contracts.yaml", contractsYAML)

	out, err := run(t, "--config", cfg, "upsert", "--file", records)
	require.NoError(t, err)
	assert.Contains(t, out, "upserted 2 of 2 records")

	// A second process reads the persisted collection.
	out, err = run(t, "--config", cfg, "query", "--text", erc20Query, "--k", "1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "1. erc20-transfer "), out)
	assert.Contains(t, out, "type:ERC-20")

	out, err = run(t, "--config", cfg, "query", "--text", erc20Query, "--filter", "type=ERC-1155")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "1. erc1155-batch "), out)
	assert.NotContains(t, out, "erc20-transfer")

	out, err = run(t, "--config", cfg, "query", "--text", erc20Query, "--filter", "type=ERC-721")
	require.NoError(t, err)
	assert.Equal(t, "no matches\n", out)
}

func TestRemote(t *testing.T) {
	srv := server.New()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})

	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.yaml", `
index: {name: contracts, dimension: 3, metric: l2}
backend:
  type: remote
  remote: {url: "`+ts.URL+`", gzip: true}
`)

	out, err := run(t, "--config", cfg, "create-index")
	require.NoError(t, err)
	assert.Equal(t, "index contracts ready: backend=remote dimension=3 metric=L2 records=0\n", out)
	assert.Equal(t, []string{"contracts"}, srv.Indexes())

	records := writeFile(t, dir, "vectors.yaml", `
records:
  - {id: a, vector: [1, 0, 0], metadata: {year: 2019}}
  - {id: b, vector: [0, 1, 0], metadata: {year: 2023}}
  - {id: c, vector: [0, 0, 1, 0]}
`)
	out, err = run(t, "--config", cfg, "upsert", "--file", records)
	require.Error(t, err)
	assert.Contains(t, out, "upserted 2 of 3 records")
	assert.Contains(t, out, "record 2 (c): dimension mismatch")

	out, err = run(t, "--config", cfg, "query", "--vector", "1,0,0", "--k", "5")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "1. a distance=0.0000"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2. b distance=2.0000"), lines[1])

	out, err = run(t, "--config", cfg, "query", "--vector", "1,0,0", "--filter", "year>=2020")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "1. b "), out)
}

func TestCommandErrors(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.yaml", "index: {dimension: 3}\n")

	_, err := run(t, "--config", cfg, "create-index")
	assert.ErrorContains(t, err, "persistent backend")

	_, err = run(t, "--config", cfg, "query", "--text", "x", "--vector", "1,0,0")
	assert.ErrorContains(t, err, "mutually exclusive")

	_, err = run(t, "--config", cfg, "query", "--vector", "1,0,0", "--filter", "no-operator")
	assert.ErrorContains(t, err, "invalid condition")

	_, err = run(t, "--config", cfg, "--log-level", "loud", "query", "--vector", "1,0,0")
	assert.ErrorContains(t, err, "log_level")

	_, err = run(t, "--config", filepath.Join(dir, "missing.yaml"), "query", "--vector", "1,0,0")
	assert.Error(t, err)

	_, err = run(t, "--config", cfg, "upsert")
	assert.ErrorContains(t, err, "required flag")
}
