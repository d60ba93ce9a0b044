// Package chromem provides an embedded, Chroma-compatible backend built on
// chromem-go.
//
// chromem-go ranks by cosine similarity only and stores metadata as strings.
// The adapter keeps a JSON copy of the typed metadata under a reserved key so
// results carry the original kinds, and mirrors every scalar as a string for
// chromem's where-equality filter.
package chromem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"

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

// metaKey holds the JSON-encoded typed metadata document.
const metaKey = "_vecsearch_meta"

// ErrZeroVector is reported for records and queries whose vector has zero
// norm; chromem normalizes every vector.
var ErrZeroVector = errors.New("zero vector cannot be normalized")

// Options configures the chromem backend.
type Options struct {
	// DB is an existing chromem database; a new in-memory one is created when nil.
	DB *chromem.DB

	// Concurrency bounds chromem's parallel document processing.
	Concurrency int

	// Logger receives debug logs. Defaults to a discarding logger.
	Logger *slog.Logger
}

// Backend stores records in one chromem collection.
type Backend struct {
	db          *chromem.DB
	collection  *chromem.Collection
	dim         int
	concurrency int
	logger      *slog.Logger
}

// New opens (or creates) the named collection. Only distance.MetricCosine
// is supported.
func New(collection string, dim int, metric distance.Metric, optFns ...func(o *Options)) (*Backend, error) {
	opts := Options{Concurrency: runtime.NumCPU()}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := index.ValidateBasicOptions(dim, metric); err != nil {
		return nil, err
	}
	if metric != distance.MetricCosine {
		return nil, &index.ErrUnsupportedMetric{Metric: metric}
	}

	db := opts.DB
	if db == nil {
		db = chromem.NewDB()
	}

	// Embeddings are always supplied by the caller.
	c, err := db.GetOrCreateCollection(collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: get or create collection %q: %w", collection, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Backend{
		db:          db,
		collection:  c,
		dim:         dim,
		concurrency: max(1, opts.Concurrency),
		logger:      logger.With("backend", "chromem", "collection", collection),
	}, nil
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return "chromem" }

// Dimension implements backend.Backend.
func (b *Backend) Dimension() int { return b.dim }

// Metric implements backend.Backend.
func (b *Backend) Metric() distance.Metric { return distance.MetricCosine }

// UpsertBatch implements backend.Backend. Records that fail validation are
// reported through *backend.BatchError; the rest are added in one call.
func (b *Backend) UpsertBatch(ctx context.Context, records []model.Record) error {
	var batchErr backend.BatchError
	docs := make([]chromem.Document, 0, len(records))

	for i, rec := range records {
		doc, err := b.toDocument(rec)
		if err != nil {
			batchErr.Add(i, rec.ID, err)
			continue
		}
		docs = append(docs, doc)
	}

	if len(docs) > 0 {
		if err := b.collection.AddDocuments(ctx, docs, b.concurrency); err != nil {
			return fmt.Errorf("chromem: add documents: %w", err)
		}
	}

	b.logger.DebugContext(ctx, "upsert batch applied", "records", len(records), "failed", len(batchErr.Items))
	return batchErr.ErrOrNil()
}

func (b *Backend) toDocument(rec model.Record) (chromem.Document, error) {
	if rec.ID == "" {
		return chromem.Document{}, index.ErrEmptyID
	}
	if err := index.ValidateVector(b.dim, rec.Vector); err != nil {
		return chromem.Document{}, err
	}
	if distance.Norm(rec.Vector) == 0 {
		return chromem.Document{}, ErrZeroVector
	}
	if err := rec.Metadata.Validate(); err != nil {
		return chromem.Document{}, index.NewErrInvalidMetadata(rec.ID, err)
	}

	meta := make(map[string]string, len(rec.Metadata)+1)
	for k, v := range rec.Metadata {
		if k == metaKey {
			return chromem.Document{}, index.NewErrInvalidMetadata(rec.ID, fmt.Errorf("key %q is reserved", metaKey))
		}
		meta[k] = whereString(v)
	}
	if len(rec.Metadata) > 0 {
		raw, err := json.Marshal(rec.Metadata)
		if err != nil {
			return chromem.Document{}, index.NewErrInvalidMetadata(rec.ID, err)
		}
		meta[metaKey] = string(raw)
	}

	vec := make([]float32, len(rec.Vector))
	copy(vec, rec.Vector)

	return chromem.Document{ID: rec.ID, Metadata: meta, Embedding: vec}, nil
}

// whereString renders a scalar the way where-equality compares it.
func whereString(v metadata.Value) string {
	switch v.Kind {
	case metadata.KindString:
		return v.StringValue()
	case metadata.KindInt:
		return strconv.FormatFloat(float64(v.I64), 'g', -1, 64)
	case metadata.KindFloat:
		return strconv.FormatFloat(v.F64, 'g', -1, 64)
	case metadata.KindBool:
		return strconv.FormatBool(v.B)
	default:
		return v.String()
	}
}

// QueryRaw implements backend.Backend. k above the collection size is clamped.
func (b *Backend) QueryRaw(ctx context.Context, vector []float32, k int) ([]model.Match, error) {
	return b.QueryFiltered(ctx, vector, k, nil)
}

// QueryFiltered implements backend.FilteredQuerier. Equality conditions on
// scalars are pushed into chromem's where clause. When the filter has other
// conditions, the whole collection is ranked and filtered here.
func (b *Backend) QueryFiltered(ctx context.Context, vector []float32, k int, filter *metadata.FilterSet) ([]model.Match, error) {
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	if err := index.ValidateVector(b.dim, vector); err != nil {
		return nil, err
	}
	if distance.Norm(vector) == 0 {
		return nil, ErrZeroVector
	}

	count := b.collection.Count()
	if count == 0 {
		return []model.Match{}, nil
	}

	where, complete := pushdown(filter)
	n := min(k, count)
	if !complete {
		n = count
	}

	results, err := b.queryEmbedding(ctx, vector, n, where)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}

	matches := make([]model.Match, 0, min(k, len(results)))
	for _, r := range results {
		meta, err := decodeMetadata(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("chromem: record %q: %w", r.ID, err)
		}
		if !complete && !filter.Matches(meta) {
			continue
		}
		matches = append(matches, model.Match{
			ID:       r.ID,
			Metadata: meta,
			Score:    r.Similarity,
			Distance: distance.ScoreToDistance(distance.MetricCosine, r.Similarity),
		})
		if len(matches) == k {
			break
		}
	}
	return matches, nil
}

// queryEmbedding asks chromem for n results. chromem rejects n above the
// collection size, so n is lowered when deletes shrank the collection after
// it was counted.
func (b *Backend) queryEmbedding(ctx context.Context, vector []float32, n int, where map[string]string) ([]chromem.Result, error) {
	for {
		results, err := b.collection.QueryEmbedding(ctx, vector, n, where, nil)
		if err == nil {
			return results, nil
		}
		count := b.collection.Count()
		if count >= n {
			return nil, err
		}
		if count == 0 {
			return nil, nil
		}
		n = count
	}
}

// pushdown translates scalar Eq conditions into a where clause. complete is
// false when some condition could not be translated.
func pushdown(fs *metadata.FilterSet) (where map[string]string, complete bool) {
	if fs.IsEmpty() {
		return nil, true
	}
	complete = true
	for _, f := range fs.Filters {
		if f.Operator != metadata.OpEqual || !f.Value.Kind.IsScalar() {
			complete = false
			continue
		}
		if where == nil {
			where = make(map[string]string)
		}
		s := whereString(f.Value)
		if prev, dup := where[f.Key]; dup && prev != s {
			// Contradictory equalities; leave it to the post-filter.
			complete = false
			continue
		}
		where[f.Key] = s
	}
	return where, complete
}

func decodeMetadata(raw map[string]string) (metadata.Document, error) {
	encoded, ok := raw[metaKey]
	if !ok {
		return nil, nil
	}
	var doc metadata.Document
	if err := json.Unmarshal([]byte(encoded), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete implements backend.Backend.
func (b *Backend) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := b.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("chromem: delete: %w", err)
	}
	return nil
}

// Size implements backend.Backend.
func (b *Backend) Size(context.Context) (int, error) {
	return b.collection.Count(), nil
}

// Close implements backend.Backend. The in-memory database needs no teardown.
func (b *Backend) Close() error {
	return nil
}
