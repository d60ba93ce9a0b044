package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/philippgille/chromem-go"
	"github.com/spf13/cobra"

	"github.com/hupe1980/vecsearch"
	"github.com/hupe1980/vecsearch/backend"
	chromembackend "github.com/hupe1980/vecsearch/backend/chromem"
	"github.com/hupe1980/vecsearch/backend/local"
	"github.com/hupe1980/vecsearch/backend/remote"
	"github.com/hupe1980/vecsearch/embedding"
	"github.com/hupe1980/vecsearch/internal/config"
	"github.com/hupe1980/vecsearch/model"
)

// app holds the state shared by the subcommands.
type app struct {
	cfgFile  string
	logLevel string

	cfg    *config.Config
	logger *vecsearch.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "vecsearch",
		Short: "Exact nearest-neighbor search over smart-contract embeddings",
		Long: `vecsearch stores contract embeddings with scalar metadata and answers
k-nearest-neighbor queries, optionally filtered by metadata.

The backend (in-process, embedded chromem or a hosted index reached over
HTTP) and the embedder are chosen in the config file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (defaults apply when empty)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log_level of the config")

	root.AddCommand(
		a.serveCmd(),
		a.createIndexCmd(),
		a.upsertCmd(),
		a.queryCmd(),
		a.classifyCmd(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = vecsearch.NewLogger(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

// serviceOptions returns the Service options of the config.
func (a *app) serviceOptions() []vecsearch.Option {
	return append([]vecsearch.Option{vecsearch.WithLogger(a.logger)}, a.searchOptions()...)
}

// searchOptions maps the search config to Service options.
func (a *app) searchOptions() []vecsearch.Option {
	s := a.cfg.Search
	return []vecsearch.Option{
		vecsearch.WithFetchMultiplier(s.FetchMultiplier),
		vecsearch.WithMaxFetch(s.MaxFetch),
		vecsearch.WithFilterPushdown(s.FilterPushdownOrDefault()),
		vecsearch.WithBatchSize(s.BatchSize),
	}
}

// openBackend opens the configured backend for the configured index.
func (a *app) openBackend(ctx context.Context) (backend.Backend, error) {
	metric, err := a.cfg.Metric()
	if err != nil {
		return nil, err
	}
	dim := a.cfg.Index.Dimension

	switch a.cfg.Backend.Type {
	case config.BackendLocal:
		return local.New(dim, metric, func(o *local.Options) { o.Logger = a.logger.Logger })
	case config.BackendChromem:
		c := a.cfg.Backend.Chromem
		var db *chromem.DB
		if c.Path != "" {
			if db, err = chromem.NewPersistentDB(c.Path, c.Compress); err != nil {
				return nil, fmt.Errorf("open chromem database %s: %w", c.Path, err)
			}
		}
		return chromembackend.New(c.Collection, dim, metric, func(o *chromembackend.Options) {
			o.DB = db
			o.Logger = a.logger.Logger
		})
	case config.BackendRemote:
		client, err := a.remoteClient()
		if err != nil {
			return nil, err
		}
		return remote.OpenOrCreate(ctx, client, a.cfg.Index.Name, dim, metric)
	}
	return nil, fmt.Errorf("unknown backend type %q", a.cfg.Backend.Type)
}

func (a *app) remoteClient() (*remote.Client, error) {
	r := a.cfg.Backend.Remote
	return remote.NewClient(r.URL, func(o *remote.Options) {
		o.APIKey = r.APIKey()
		o.Timeout = r.Timeout
		o.MaxRetries = r.MaxRetries
		o.BaseBackoff = r.BaseBackoff
		o.MaxBackoff = r.MaxBackoff
		o.BatchSize = r.BatchSize
		o.Concurrency = r.Concurrency
		o.RequestsPerSecond = r.RequestsPerSecond
		o.Gzip = r.Gzip
		o.Logger = a.logger.Logger
	})
}

// openService opens the configured backend behind a Service.
func (a *app) openService(ctx context.Context) (*vecsearch.Service, error) {
	b, err := a.openBackend(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := vecsearch.New(b, a.serviceOptions()...)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	return svc, nil
}

// embedder returns the configured embedder, sized to the index dimension.
func (a *app) embedder() (embedding.Embedder, error) {
	dim := a.cfg.Index.Dimension
	e := a.cfg.Embedding

	switch e.Provider {
	case config.ProviderHashing:
		return embedding.NewHashing(dim)
	case config.ProviderOpenAI:
		base := func(o *embedding.OpenAIOptions) {
			o.APIKey = e.APIKey()
			o.Model = e.Model
			o.BaseURL = e.BaseURL
			o.Logger = a.logger.Logger
		}
		emb, err := embedding.NewOpenAI(base)
		if err != nil || emb.Dimension() != dim {
			emb, err = embedding.NewOpenAI(base, func(o *embedding.OpenAIOptions) { o.Dimensions = dim })
		}
		if err != nil {
			return nil, err
		}
		return emb, nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q", e.Provider)
}

// loadRecords reads a records file and embeds the text records.
func (a *app) loadRecords(ctx context.Context, path string) ([]model.Record, error) {
	specs, err := config.LoadRecords(path)
	if err != nil {
		return nil, err
	}

	var (
		texts   []string
		textIdx []int
	)
	records := make([]model.Record, len(specs))
	for i, spec := range specs {
		doc, err := spec.Document()
		if err != nil {
			return nil, err
		}
		records[i] = model.Record{ID: spec.ID, Vector: spec.Vector, Metadata: doc}
		if spec.Text != "" {
			texts = append(texts, spec.Text)
			textIdx = append(textIdx, i)
		}
	}

	if len(texts) > 0 {
		emb, err := a.embedder()
		if err != nil {
			return nil, err
		}
		vecs, err := embedding.EmbedAll(ctx, emb, texts)
		if err != nil {
			return nil, err
		}
		for j, i := range textIdx {
			records[i].Vector = vecs[j]
		}
		a.logger.DebugContext(ctx, "embedded records", "count", len(texts), "dimension", emb.Dimension())
	}
	return records, nil
}

// embedQuery returns vector when given, otherwise the embedding of text.
func (a *app) embedQuery(ctx context.Context, text string, vector []float32) ([]float32, error) {
	if len(vector) > 0 {
		if text != "" {
			return nil, errors.New("--text and --vector are mutually exclusive")
		}
		return vector, nil
	}
	if text == "" {
		return nil, errors.New("one of --text and --vector is required")
	}
	emb, err := a.embedder()
	if err != nil {
		return nil, err
	}
	return emb.Embed(ctx, text)
}
