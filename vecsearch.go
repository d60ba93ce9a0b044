package vecsearch

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vecsearch/backend"
	"github.com/hupe1980/vecsearch/distance"
	"github.com/hupe1980/vecsearch/index"
	"github.com/hupe1980/vecsearch/metadata"
	"github.com/hupe1980/vecsearch/model"
)

// Service runs upserts and nearest-neighbor queries against a backend.
//
// A Service is safe for concurrent use when its backend is.
type Service struct {
	backend backend.Backend
	opts    options
	metrics MetricsCollector
	logger  *Logger
	closed  atomic.Bool
}

// New creates a Service over b.
func New(b backend.Backend, optFns ...Option) (*Service, error) {
	if b == nil {
		return nil, errors.New("vecsearch: backend must not be nil")
	}
	opts := applyOptions(optFns)
	if opts.fetchMultiplier < 1 {
		return nil, fmt.Errorf("vecsearch: fetch multiplier must be at least 1, got %d", opts.fetchMultiplier)
	}
	if opts.maxFetch < 1 {
		return nil, fmt.Errorf("vecsearch: max fetch must be positive, got %d", opts.maxFetch)
	}
	if opts.batchSize < 1 {
		return nil, fmt.Errorf("vecsearch: batch size must be positive, got %d", opts.batchSize)
	}
	if err := index.ValidateBasicOptions(b.Dimension(), b.Metric()); err != nil {
		return nil, translateError(err)
	}
	return &Service{
		backend: b,
		opts:    opts,
		metrics: opts.metricsCollector,
		logger:  opts.logger.WithBackend(b.Name()),
	}, nil
}

// Backend returns the backend the service delegates to.
func (s *Service) Backend() backend.Backend { return s.backend }

// Dimension returns the vector dimension of the backend.
func (s *Service) Dimension() int { return s.backend.Dimension() }

// Metric returns the distance metric of the backend.
func (s *Service) Metric() distance.Metric { return s.backend.Metric() }

// BatchResult reports the outcome of UpsertBatch.
type BatchResult struct {
	// Upserted is the number of records stored.
	Upserted int
	// Errors lists rejected records ordered by their position in the input.
	Errors []backend.ItemError
}

// Failed returns the number of rejected records.
func (r BatchResult) Failed() int { return len(r.Errors) }

// Err returns the rejections as a *backend.BatchError, or nil.
func (r BatchResult) Err() error {
	return (&backend.BatchError{Items: r.Errors}).ErrOrNil()
}

// UpsertBatch inserts or replaces records.
//
// Invalid records (empty ID, wrong dimension, non-scalar metadata) and
// records the backend rejects individually are reported in the result; the
// others are stored. A failure of the backend as a whole aborts the batch
// and is returned together with the progress made so far.
func (s *Service) UpsertBatch(ctx context.Context, records []model.Record) (BatchResult, error) {
	start := time.Now()
	res, err := s.upsertBatch(ctx, records)
	s.metrics.RecordUpsertBatch(len(records), res.Failed(), time.Since(start), err)
	s.logger.LogUpsertBatch(ctx, len(records), res.Failed(), err)
	return res, err
}

func (s *Service) upsertBatch(ctx context.Context, records []model.Record) (BatchResult, error) {
	var res BatchResult
	if s.closed.Load() {
		return res, ErrClosed
	}

	valid := make([]model.Record, 0, len(records))
	positions := make([]int, 0, len(records))
	for i, rec := range records {
		if err := s.validateRecord(rec); err != nil {
			res.Errors = append(res.Errors, backend.ItemError{Index: i, ID: rec.ID, Err: translateError(err)})
			continue
		}
		valid = append(valid, rec)
		positions = append(positions, i)
	}

	for lo := 0; lo < len(valid); lo += s.opts.batchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		hi := min(lo+s.opts.batchSize, len(valid))
		failed := 0
		if err := s.backend.UpsertBatch(ctx, valid[lo:hi]); err != nil {
			var be *backend.BatchError
			if !errors.As(err, &be) {
				return res, translateError(err)
			}
			for _, it := range be.Items {
				pos := it.Index
				if it.Index >= 0 && lo+it.Index < hi {
					pos = positions[lo+it.Index]
				}
				res.Errors = append(res.Errors, backend.ItemError{Index: pos, ID: it.ID, Err: translateError(it.Err)})
			}
			failed = len(be.Items)
		}
		res.Upserted += hi - lo - failed
	}

	slices.SortStableFunc(res.Errors, func(a, b backend.ItemError) int {
		return cmp.Compare(a.Index, b.Index)
	})
	return res, nil
}

func (s *Service) validateRecord(rec model.Record) error {
	if rec.ID == "" {
		return index.ErrEmptyID
	}
	if err := index.ValidateVector(s.backend.Dimension(), rec.Vector); err != nil {
		return err
	}
	if err := rec.Metadata.Validate(); err != nil {
		return index.NewErrInvalidMetadata(rec.ID, err)
	}
	return nil
}

// Query returns up to k records nearest to vector, ordered by ascending
// Distance. A nil or empty filter matches every record.
//
// Fewer than k matches are returned when fewer records (or fewer records
// satisfying the filter) exist. An empty backend yields an empty result.
func (s *Service) Query(ctx context.Context, vector []float32, k int, filter *metadata.FilterSet) ([]model.Match, error) {
	start := time.Now()
	matches, err := s.query(ctx, vector, k, filter)
	s.metrics.RecordQuery(k, len(matches), time.Since(start), err)
	s.logger.LogQuery(ctx, k, len(matches), !filter.IsEmpty(), err)
	return matches, err
}

func (s *Service) query(ctx context.Context, vector []float32, k int, filter *metadata.FilterSet) ([]model.Match, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if dim := s.backend.Dimension(); len(vector) != dim {
		return nil, invalidQuery(&ErrDimensionMismatch{Expected: dim, Actual: len(vector)})
	}
	if err := filter.Validate(); err != nil {
		return nil, invalidQuery(err)
	}

	if filter.IsEmpty() {
		matches, err := s.backend.QueryRaw(ctx, vector, k)
		if err != nil {
			return nil, translateError(err)
		}
		return truncate(matches, k), nil
	}

	if fq, ok := s.backend.(backend.FilteredQuerier); ok && s.opts.filterPushdown {
		matches, err := fq.QueryFiltered(ctx, vector, k, filter)
		if err != nil {
			return nil, translateError(err)
		}
		return truncate(matches, k), nil
	}

	return s.overFetch(ctx, vector, k, filter)
}

// overFetch requests more candidates than needed, filters them and widens
// the request until k survive, the backend runs out of records or the fetch
// reaches maxFetch.
func (s *Service) overFetch(ctx context.Context, vector []float32, k int, filter *metadata.FilterSet) ([]model.Match, error) {
	fetch := max(min(mulSat(k, s.opts.fetchMultiplier), s.opts.maxFetch), k)
	for {
		raw, err := s.backend.QueryRaw(ctx, vector, fetch)
		if err != nil {
			return nil, translateError(err)
		}

		out := make([]model.Match, 0, min(k, len(raw)))
		for _, m := range raw {
			if filter.Matches(m.Metadata) {
				out = append(out, m)
				if len(out) == k {
					return out, nil
				}
			}
		}

		next := min(mulSat(fetch, s.opts.fetchMultiplier), s.opts.maxFetch)
		if len(raw) < fetch || next <= fetch {
			return out, nil
		}
		s.metrics.RecordWiden(k, next)
		s.logger.LogWiden(ctx, k, fetch, len(out), next)
		fetch = next
	}
}

// mulSat multiplies two positive ints, saturating instead of overflowing.
func mulSat(a, b int) int {
	if a > 0 && b > 0 && a > int(^uint(0)>>1)/b {
		return int(^uint(0) >> 1)
	}
	return a * b
}

func truncate(matches []model.Match, k int) []model.Match {
	if matches == nil {
		return []model.Match{}
	}
	if len(matches) > k {
		return matches[:k]
	}
	return matches
}

// Delete removes records by ID. Absent IDs are ignored.
func (s *Service) Delete(ctx context.Context, ids ...string) error {
	start := time.Now()
	err := s.delete(ctx, ids)
	s.metrics.RecordDelete(len(ids), time.Since(start), err)
	s.logger.LogDelete(ctx, len(ids), err)
	return err
}

func (s *Service) delete(ctx context.Context, ids []string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if len(ids) == 0 {
		return nil
	}
	return translateError(s.backend.Delete(ctx, ids...))
}

// Size returns the number of records stored in the backend.
func (s *Service) Size(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	n, err := s.backend.Size(ctx)
	return n, translateError(err)
}

// Close releases the backend. Closing twice is a no-op.
func (s *Service) Close() error {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.backend.Close()
}
