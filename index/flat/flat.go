// Package flat provides an exact (brute-force) vector store with metadata
// filtering.
//
// Every search scores every live record, so results are the true top-k.
// Vectors are kept contiguously in a columnar store; ids, insertion sequence
// and metadata live in a per-slot record table.
package flat

import (
	"context"
	"iter"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecsearch/distance"
	"github.com/hupe1980/vecsearch/index"
	"github.com/hupe1980/vecsearch/internal/queue"
	"github.com/hupe1980/vecsearch/metadata"
	metaindex "github.com/hupe1980/vecsearch/metadata/index"
	"github.com/hupe1980/vecsearch/model"
	"github.com/hupe1980/vecsearch/vectorstore"
)

// Options contains configuration options for the flat store.
type Options struct {
	// InitialCapacity pre-sizes vector storage (in records).
	InitialCapacity int

	// DisableFilterIndex turns off the inverted metadata index. Filtered
	// searches then evaluate the filter on every record.
	DisableFilterIndex bool
}

// DefaultOptions contains the default configuration options for the flat store.
var DefaultOptions = Options{
	InitialCapacity: 1024,
}

// entry is the per-slot record table row.
type entry struct {
	id   string
	seq  uint64 // insertion sequence, kept across upserts
	meta metadata.Document
	live bool
}

// Store is an exact nearest-neighbor store over vectors of a fixed dimension.
//
// Mutations take the write lock; searches hold the read lock for the whole
// scan and therefore never observe a partially applied upsert or delete.
type Store struct {
	mu sync.RWMutex

	dim    int
	metric distance.Metric
	opts   Options

	vectors *vectorstore.ColumnarStore
	norms   []float32 // per-slot L2 norm, maintained for cosine only
	entries []entry
	ids     map[string]model.Slot
	free    []model.Slot
	nextSeq uint64
	live    int

	filters *metaindex.Inverted
}

// New creates an empty store.
// It fails with *index.ErrInvalidDimension when dim <= 0.
func New(dim int, metric distance.Metric, optFns ...func(o *Options)) (*Store, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := index.ValidateBasicOptions(dim, metric); err != nil {
		return nil, err
	}

	vectors, err := vectorstore.New(dim, opts.InitialCapacity)
	if err != nil {
		return nil, err
	}

	s := &Store{
		dim:     dim,
		metric:  metric,
		opts:    opts,
		vectors: vectors,
		ids:     make(map[string]model.Slot),
	}
	if !opts.DisableFilterIndex {
		s.filters = metaindex.New()
	}
	return s, nil
}

// Dimension returns the vector dimension.
func (s *Store) Dimension() int { return s.dim }

// Metric returns the distance metric.
func (s *Store) Metric() distance.Metric { return s.metric }

// Size returns the number of live records.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

// Upsert inserts the record if id is absent, else replaces its vector and
// metadata. The vector and metadata are copied. On error the store is unchanged.
func (s *Store) Upsert(ctx context.Context, id string, vec []float32, meta metadata.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return index.ErrEmptyID
	}
	if err := index.ValidateVector(s.dim, vec); err != nil {
		return err
	}
	if err := meta.Validate(); err != nil {
		return index.NewErrInvalidMetadata(id, err)
	}

	meta = metadata.CloneIfNeeded(meta)

	s.mu.Lock()
	defer s.mu.Unlock()

	if slot, ok := s.ids[id]; ok {
		if err := s.vectors.SetVector(slot, vec); err != nil {
			return err
		}
		s.setNorm(slot, vec)
		e := &s.entries[slot]
		if s.filters != nil {
			s.filters.Update(uint32(slot), e.meta, meta)
		}
		e.meta = meta
		return nil
	}

	slot, err := s.allocate(vec)
	if err != nil {
		return err
	}
	s.setNorm(slot, vec)
	s.entries[slot] = entry{id: id, seq: s.nextSeq, meta: meta, live: true}
	s.nextSeq++
	s.ids[id] = slot
	s.live++
	if s.filters != nil {
		s.filters.Add(uint32(slot), meta)
	}
	return nil
}

// allocate places vec in a free slot or a new one. Caller holds the write lock.
func (s *Store) allocate(vec []float32) (model.Slot, error) {
	if n := len(s.free); n > 0 {
		slot := s.free[n-1]
		if err := s.vectors.SetVector(slot, vec); err != nil {
			return 0, err
		}
		s.free = s.free[:n-1]
		return slot, nil
	}

	slot, err := s.vectors.Append(vec)
	if err != nil {
		return 0, err
	}
	s.entries = append(s.entries, entry{})
	if s.metric == distance.MetricCosine {
		s.norms = append(s.norms, 0)
	}
	return slot, nil
}

func (s *Store) setNorm(slot model.Slot, vec []float32) {
	if s.metric == distance.MetricCosine {
		s.norms[slot] = distance.Norm(vec)
	}
}

// Delete removes the record with the given id. Deleting an absent id is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.ids[id]
	if !ok {
		return nil
	}

	e := &s.entries[slot]
	if s.filters != nil {
		s.filters.Remove(uint32(slot), e.meta)
	}
	*e = entry{}
	s.vectors.Zero(slot)
	delete(s.ids, id)
	s.free = append(s.free, slot)
	s.live--
	return nil
}

// Get returns a copy of the record stored under id.
func (s *Store) Get(id string) (model.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.ids[id]
	if !ok {
		return model.Record{}, false
	}
	vec, _ := s.vectors.GetVector(slot)
	rec := model.Record{ID: id, Vector: vec, Metadata: s.entries[slot].meta}
	return rec.Clone(), true
}

// Search returns up to k matches ordered by ascending distance. Ties are
// broken by insertion order. An empty store yields an empty result.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]model.Match, error) {
	return s.SearchFiltered(ctx, query, k, nil)
}

// SearchFiltered is Search restricted to records whose metadata satisfies fs.
// A nil or empty fs matches every record.
func (s *Store) SearchFiltered(ctx context.Context, query []float32, k int, fs *metadata.FilterSet) ([]model.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	if err := index.ValidateVector(s.dim, query); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.live == 0 {
		return []model.Match{}, nil
	}

	top := queue.NewTopK(min(k, s.live))
	score := s.scorer(query)

	for slot := range s.candidates(fs) {
		e := &s.entries[slot]
		if !e.live {
			continue
		}
		if !fs.IsEmpty() && !fs.Matches(e.meta) {
			continue
		}
		top.Offer(queue.Item{Slot: uint32(slot), Seq: e.seq, Distance: score(slot)})
	}

	items := top.Sorted()
	matches := make([]model.Match, len(items))
	for i, it := range items {
		e := &s.entries[it.Slot]
		matches[i] = model.Match{
			ID:       e.id,
			Metadata: e.meta.Clone(),
			Distance: it.Distance,
			Score:    distance.DistanceToScore(s.metric, it.Distance),
		}
	}
	return matches, nil
}

// candidates yields the slots to scan: the inverted index pre-selection when
// fs has indexable conditions, every allocated slot otherwise.
// Caller holds the read lock.
func (s *Store) candidates(fs *metadata.FilterSet) iter.Seq[model.Slot] {
	var bm *roaring.Bitmap
	if s.filters != nil && !fs.IsEmpty() {
		if compiled, ok := s.filters.Compile(fs); ok {
			bm = compiled
		}
	}

	return func(yield func(model.Slot) bool) {
		if bm != nil {
			it := bm.Iterator()
			for it.HasNext() {
				if !yield(model.Slot(it.Next())) {
					return
				}
			}
			return
		}
		for i := range s.entries {
			if !yield(model.Slot(i)) {
				return
			}
		}
	}
}

// scorer returns the lower-is-better distance from query to the vector at a slot.
// Caller holds the read lock.
func (s *Store) scorer(query []float32) func(model.Slot) float32 {
	data, dim := s.vectors.RawData()
	vecAt := func(slot model.Slot) []float32 {
		start := int(slot) * dim
		return data[start : start+dim : start+dim]
	}

	switch s.metric {
	case distance.MetricCosine:
		qnorm := distance.Norm(query)
		return func(slot model.Slot) float32 {
			return 1 - distance.CosineWithNorms(query, vecAt(slot), qnorm, s.norms[slot])
		}
	case distance.MetricDot:
		return func(slot model.Slot) float32 {
			return -distance.Dot(query, vecAt(slot))
		}
	default:
		return func(slot model.Slot) float32 {
			return distance.SquaredL2(query, vecAt(slot))
		}
	}
}
