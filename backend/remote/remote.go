package remote

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecsearch/backend"
	"github.com/hupe1980/vecsearch/distance"
	"github.com/hupe1980/vecsearch/index"
	"github.com/hupe1980/vecsearch/metadata"
	"github.com/hupe1980/vecsearch/model"
)

var (
	_ backend.Backend         = (*Backend)(nil)
	_ backend.FilteredQuerier = (*Backend)(nil)
)

// Backend adapts a named index of the remote service to backend.Backend.
type Backend struct {
	client *Client
	desc   IndexDescription
}

// Open binds to an existing index. It fails with backend.ErrNotFound when
// the index does not exist.
func Open(ctx context.Context, client *Client, name string) (*Backend, error) {
	desc, err := client.DescribeIndex(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open index %q: %w", name, err)
	}
	return &Backend{client: client, desc: desc}, nil
}

// OpenOrCreate binds to the index, creating it when missing. An existing
// index must have the requested dimension and metric.
func OpenOrCreate(ctx context.Context, client *Client, name string, dimension int, metric distance.Metric) (*Backend, error) {
	if err := index.ValidateBasicOptions(dimension, metric); err != nil {
		return nil, err
	}

	desc, err := client.DescribeIndex(ctx, name)
	if errors.Is(err, backend.ErrNotFound) {
		client.logger.InfoContext(ctx, "creating index", "index", name, "dimension", dimension, "metric", metric)
		desc, err = client.CreateIndex(ctx, name, dimension, metric)
		if errors.Is(err, backend.ErrAlreadyExists) {
			// Lost a creation race.
			desc, err = client.DescribeIndex(ctx, name)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open index %q: %w", name, err)
	}

	if desc.Dimension != dimension {
		return nil, fmt.Errorf("open index %q: %w", name, &index.ErrDimensionMismatch{Expected: dimension, Actual: desc.Dimension})
	}
	if desc.Metric != metric {
		return nil, fmt.Errorf("open index %q: metric is %s, want %s", name, desc.Metric, metric)
	}
	return &Backend{client: client, desc: desc}, nil
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return "remote" }

// Index returns the bound index name.
func (b *Backend) Index() string { return b.desc.Name }

// Dimension implements backend.Backend.
func (b *Backend) Dimension() int { return b.desc.Dimension }

// Metric implements backend.Backend.
func (b *Backend) Metric() distance.Metric { return b.desc.Metric }

// UpsertBatch splits records into requests of BatchSize vectors and sends up
// to Concurrency of them at once. Requests may complete in any order, so only
// the last record of a repeated id is sent. Vectors rejected by the service
// are reported through *backend.BatchError. Any other failure cancels the
// remaining requests and is returned.
func (b *Backend) UpsertBatch(ctx context.Context, records []model.Record) error {
	var (
		mu       sync.Mutex
		batchErr backend.BatchError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.client.opts.Concurrency)

	positions := lastOccurrences(records)
	for start := 0; start < len(positions); start += b.client.opts.BatchSize {
		chunk := positions[start:min(start+b.client.opts.BatchSize, len(positions))]

		g.Go(func() error {
			vectors := make([]Vector, len(chunk))
			for i, pos := range chunk {
				rec := records[pos]
				vectors[i] = Vector{ID: rec.ID, Values: rec.Vector, Metadata: rec.Metadata}
			}

			resp, err := b.client.Upsert(gctx, b.desc.Name, vectors)
			if err != nil {
				return err
			}

			if len(resp.Errors) > 0 {
				mu.Lock()
				for _, ie := range resp.Errors {
					pos := -1
					if ie.Index >= 0 && ie.Index < len(chunk) {
						pos = chunk[ie.Index]
					}
					batchErr.Add(pos, ie.ID, ie.Err())
				}
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	slices.SortFunc(batchErr.Items, func(a, c backend.ItemError) int { return cmp.Compare(a.Index, c.Index) })
	return batchErr.ErrOrNil()
}

// lastOccurrences returns the positions of the records to send, in input
// order, keeping the last record of each id.
func lastOccurrences(records []model.Record) []int {
	last := make(map[string]int, len(records))
	for i, rec := range records {
		last[rec.ID] = i
	}
	positions := make([]int, 0, len(last))
	for i, rec := range records {
		if last[rec.ID] == i {
			positions = append(positions, i)
		}
	}
	return positions
}

// QueryRaw implements backend.Backend.
func (b *Backend) QueryRaw(ctx context.Context, vector []float32, k int) ([]model.Match, error) {
	return b.query(ctx, vector, k, nil)
}

// QueryFiltered implements backend.FilteredQuerier.
func (b *Backend) QueryFiltered(ctx context.Context, vector []float32, k int, filter *metadata.FilterSet) ([]model.Match, error) {
	return b.query(ctx, vector, k, filter)
}

func (b *Backend) query(ctx context.Context, vector []float32, k int, filter *metadata.FilterSet) ([]model.Match, error) {
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	if err := index.ValidateVector(b.desc.Dimension, vector); err != nil {
		return nil, err
	}
	if filter.IsEmpty() {
		filter = nil
	}

	resp, err := b.client.Query(ctx, b.desc.Name, QueryRequest{Vector: vector, TopK: k, Filter: filter})
	if err != nil {
		return nil, err
	}

	// Hosted services report the native score; derive the distance here so
	// ranking is uniform across backends.
	matches := make([]model.Match, len(resp.Matches))
	for i, m := range resp.Matches {
		matches[i] = model.Match{
			ID:       m.ID,
			Metadata: m.Metadata,
			Score:    m.Score,
			Distance: distance.ScoreToDistance(b.desc.Metric, m.Score),
		}
	}
	slices.SortStableFunc(matches, func(a, c model.Match) int { return cmp.Compare(a.Distance, c.Distance) })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Delete implements backend.Backend.
func (b *Backend) Delete(ctx context.Context, ids ...string) error {
	for chunk := range slices.Chunk(ids, b.client.opts.BatchSize) {
		if err := b.client.Delete(ctx, b.desc.Name, chunk); err != nil {
			return err
		}
	}
	return nil
}

// Size implements backend.Backend.
func (b *Backend) Size(ctx context.Context) (int, error) {
	desc, err := b.client.DescribeIndex(ctx, b.desc.Name)
	if err != nil {
		return 0, err
	}
	return desc.Count, nil
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}
