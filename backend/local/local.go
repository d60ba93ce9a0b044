// Package local provides the in-process backend over the exact flat store.
package local

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/hupe1980/vecsearch/backend"
	"github.com/hupe1980/vecsearch/distance"
	"github.com/hupe1980/vecsearch/index"
	"github.com/hupe1980/vecsearch/index/flat"
	"github.com/hupe1980/vecsearch/metadata"
	"github.com/hupe1980/vecsearch/model"
)

var (
	_ backend.Backend         = (*Backend)(nil)
	_ backend.FilteredQuerier = (*Backend)(nil)
)

// Options configures the local backend.
type Options struct {
	// Logger receives debug logs. Defaults to a discarding logger.
	Logger *slog.Logger

	// Flat configures the underlying store.
	Flat []func(o *flat.Options)
}

// Backend serves queries from an in-process flat.Store.
type Backend struct {
	store  *flat.Store
	logger *slog.Logger
	closed atomic.Bool
}

// New creates a backend over a new flat store.
func New(dim int, metric distance.Metric, optFns ...func(o *Options)) (*Backend, error) {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}

	store, err := flat.New(dim, metric, opts.Flat...)
	if err != nil {
		return nil, err
	}
	return Wrap(store, opts.Logger), nil
}

// Wrap creates a backend over an existing store.
func Wrap(store *flat.Store, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Backend{store: store, logger: logger.With("backend", "local")}
}

// Store returns the underlying flat store.
func (b *Backend) Store() *flat.Store { return b.store }

// Name implements backend.Backend.
func (b *Backend) Name() string { return "local" }

// Dimension implements backend.Backend.
func (b *Backend) Dimension() int { return b.store.Dimension() }

// Metric implements backend.Backend.
func (b *Backend) Metric() distance.Metric { return b.store.Metric() }

// UpsertBatch applies each record independently. Invalid records are
// collected into a *backend.BatchError; a cancelled context aborts.
func (b *Backend) UpsertBatch(ctx context.Context, records []model.Record) error {
	if b.closed.Load() {
		return backend.ErrClosed
	}

	var batchErr backend.BatchError
	for i, rec := range records {
		if err := b.store.Upsert(ctx, rec.ID, rec.Vector, rec.Metadata); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if !isRecordError(err) {
				return err
			}
			batchErr.Add(i, rec.ID, err)
		}
	}

	b.logger.DebugContext(ctx, "upsert batch applied",
		"records", len(records),
		"failed", len(batchErr.Items),
	)
	return batchErr.ErrOrNil()
}

func isRecordError(err error) bool {
	var dm *index.ErrDimensionMismatch
	var im *index.ErrInvalidMetadata
	return errors.As(err, &dm) || errors.As(err, &im) || errors.Is(err, index.ErrEmptyID)
}

// QueryRaw implements backend.Backend.
func (b *Backend) QueryRaw(ctx context.Context, vector []float32, k int) ([]model.Match, error) {
	if b.closed.Load() {
		return nil, backend.ErrClosed
	}
	return b.store.Search(ctx, vector, k)
}

// QueryFiltered implements backend.FilteredQuerier.
func (b *Backend) QueryFiltered(ctx context.Context, vector []float32, k int, filter *metadata.FilterSet) ([]model.Match, error) {
	if b.closed.Load() {
		return nil, backend.ErrClosed
	}
	return b.store.SearchFiltered(ctx, vector, k, filter)
}

// Delete implements backend.Backend.
func (b *Backend) Delete(ctx context.Context, ids ...string) error {
	if b.closed.Load() {
		return backend.ErrClosed
	}
	for _, id := range ids {
		if err := b.store.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Size implements backend.Backend.
func (b *Backend) Size(context.Context) (int, error) {
	if b.closed.Load() {
		return 0, backend.ErrClosed
	}
	return b.store.Size(), nil
}

// Close implements backend.Backend. Closing twice is a no-op.
func (b *Backend) Close() error {
	b.closed.Store(true)
	return nil
}
