package vecsearch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecsearch/backend"
	"github.com/hupe1980/vecsearch/backend/local"
	"github.com/hupe1980/vecsearch/distance"
	"github.com/hupe1980/vecsearch/index"
	"github.com/hupe1980/vecsearch/metadata"
	"github.com/hupe1980/vecsearch/model"
)

// rawOnly hides the FilteredQuerier capability of the wrapped backend and
// records every call.
type rawOnly struct {
	backend.Backend

	mu        sync.Mutex
	fetches   []int
	chunks    []int
	upsertErr []error // returned by successive UpsertBatch calls
	queryErr  error
	closed    int
}

func (r *rawOnly) UpsertBatch(ctx context.Context, records []model.Record) error {
	r.mu.Lock()
	r.chunks = append(r.chunks, len(records))
	var injected error
	if len(r.upsertErr) > 0 {
		injected, r.upsertErr = r.upsertErr[0], r.upsertErr[1:]
	}
	r.mu.Unlock()
	if injected != nil {
		return injected
	}
	return r.Backend.UpsertBatch(ctx, records)
}

func (r *rawOnly) QueryRaw(ctx context.Context, vector []float32, k int) ([]model.Match, error) {
	r.mu.Lock()
	r.fetches = append(r.fetches, k)
	r.mu.Unlock()
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	return r.Backend.QueryRaw(ctx, vector, k)
}

func (r *rawOnly) Close() error {
	r.closed++
	return r.Backend.Close()
}

func newRawOnly(t *testing.T, dim int, metric distance.Metric) *rawOnly {
	t.Helper()
	b, err := local.New(dim, metric)
	require.NoError(t, err)
	return &rawOnly{Backend: b}
}

func typed(id string, vec []float32, typ string) model.Record {
	return model.NewRecord(id, vec).WithMetadata("type", metadata.String(typ)).Build()
}

// contracts stores five records; the two ERC-1155 ones are the 4th and 5th
// nearest to erc20Query.
func contracts() []model.Record {
	return []model.Record{
		typed("erc20-a", []float32{1, 0, 0}, "ERC-20"),
		typed("erc20-b", []float32{0.9, 0.1, 0}, "ERC-20"),
		typed("erc20-c", []float32{0.8, 0.2, 0}, "ERC-20"),
		typed("erc1155-a", []float32{0, 1, 0}, "ERC-1155"),
		typed("erc1155-b", []float32{0, 0, 1}, "ERC-1155"),
	}
}

var (
	erc20Query = []float32{1, 0.05, 0}
	erc1155    = metadata.NewFilterSet(metadata.Eq("type", metadata.String("ERC-1155")))
)

func TestNew(t *testing.T) {
	b := newRawOnly(t, 3, distance.MetricL2)

	_, err := New(nil)
	require.Error(t, err)

	for name, opt := range map[string]Option{
		"FetchMultiplier": WithFetchMultiplier(0),
		"MaxFetch":        WithMaxFetch(0),
		"BatchSize":       WithBatchSize(-1),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := New(b, opt)
			assert.Error(t, err)
		})
	}

	svc, err := New(b, nil, WithLogger(nil), WithMetricsCollector(nil))
	require.NoError(t, err)
	assert.Equal(t, 3, svc.Dimension())
	assert.Equal(t, distance.MetricL2, svc.Metric())
	assert.Same(t, b, svc.Backend())
}

func TestService_SelfMatch(t *testing.T) {
	ctx := context.Background()
	b, err := local.New(3, distance.MetricL2)
	require.NoError(t, err)
	svc, err := New(b)
	require.NoError(t, err)

	res, err := svc.UpsertBatch(ctx, []model.Record{
		{ID: "x", Vector: []float32{1, 0, 0}},
		{ID: "y", Vector: []float32{0, 1, 0}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Upserted)
	assert.NoError(t, res.Err())

	matches, err := svc.Query(ctx, []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "x", matches[0].ID)
	assert.Equal(t, float32(0), matches[0].Distance)

	matches, err = svc.Query(ctx, []float32{0.9, 0.1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "x", matches[0].ID)
	assert.Equal(t, "y", matches[1].ID)
	assert.Less(t, matches[0].Distance, matches[1].Distance)
}

func TestService_UpsertBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("InvalidRecordsAreSkipped", func(t *testing.T) {
		b := newRawOnly(t, 3, distance.MetricL2)
		svc, err := New(b)
		require.NoError(t, err)

		res, err := svc.UpsertBatch(ctx, []model.Record{
			{ID: "ok-1", Vector: []float32{1, 0, 0}},
			{ID: "short", Vector: []float32{1, 0}},
			{ID: "", Vector: []float32{1, 0, 0}},
			{ID: "nested", Vector: []float32{1, 0, 0}, Metadata: metadata.Document{"tags": metadata.Array(nil)}},
			{ID: "ok-2", Vector: []float32{0, 1, 0}},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Upserted)
		require.Equal(t, 3, res.Failed())

		assert.Equal(t, 1, res.Errors[0].Index)
		var dm *ErrDimensionMismatch
		require.ErrorAs(t, res.Errors[0].Err, &dm)
		assert.Equal(t, 3, dm.Expected)
		assert.Equal(t, 2, dm.Actual)

		assert.Equal(t, 2, res.Errors[1].Index)
		assert.ErrorIs(t, res.Errors[1].Err, index.ErrEmptyID)

		assert.Equal(t, 3, res.Errors[2].Index)
		var im *index.ErrInvalidMetadata
		assert.ErrorAs(t, res.Errors[2].Err, &im)

		var be *backend.BatchError
		require.ErrorAs(t, res.Err(), &be)
		assert.Len(t, be.Items, 3)

		size, err := svc.Size(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, size)
	})

	t.Run("Chunks", func(t *testing.T) {
		b := newRawOnly(t, 3, distance.MetricL2)
		svc, err := New(b, WithBatchSize(2))
		require.NoError(t, err)

		res, err := svc.UpsertBatch(ctx, contracts())
		require.NoError(t, err)
		assert.Equal(t, 5, res.Upserted)
		assert.Equal(t, []int{2, 2, 1}, b.chunks)
	})

	t.Run("BackendItemErrorsContinue", func(t *testing.T) {
		b := newRawOnly(t, 3, distance.MetricL2)
		rejected := &backend.BatchError{}
		rejected.Add(1, "erc1155-b", errors.New("rejected"))
		b.upsertErr = []error{nil, rejected}

		svc, err := New(b, WithBatchSize(2))
		require.NoError(t, err)

		records := contracts()
		records[1].Vector = []float32{1} // invalid, never forwarded
		res, err := svc.UpsertBatch(ctx, records)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 2}, b.chunks)
		// Chunk two holds input records 3 and 4; its item 1 is input 4.
		require.Len(t, res.Errors, 2)
		assert.Equal(t, 1, res.Errors[0].Index)
		assert.Equal(t, 4, res.Errors[1].Index)
		assert.Equal(t, 3, res.Upserted)
	})

	t.Run("FatalErrorAborts", func(t *testing.T) {
		b := newRawOnly(t, 3, distance.MetricL2)
		b.upsertErr = []error{nil, fmt.Errorf("%w: connection refused", backend.ErrUnavailable)}

		svc, err := New(b, WithBatchSize(2))
		require.NoError(t, err)

		res, err := svc.UpsertBatch(ctx, contracts())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrBackendUnavailable)
		assert.ErrorIs(t, err, backend.ErrUnavailable)
		assert.Equal(t, 2, res.Upserted)
		assert.Equal(t, []int{2, 2}, b.chunks)
	})

	t.Run("AuthFailureAborts", func(t *testing.T) {
		b := newRawOnly(t, 3, distance.MetricL2)
		b.upsertErr = []error{fmt.Errorf("%w: 401", backend.ErrAuth)}

		svc, err := New(b)
		require.NoError(t, err)

		res, err := svc.UpsertBatch(ctx, contracts())
		assert.ErrorIs(t, err, ErrAuthFailure)
		assert.Zero(t, res.Upserted)
	})

	t.Run("UpsertIsIdempotent", func(t *testing.T) {
		b := newRawOnly(t, 3, distance.MetricL2)
		svc, err := New(b)
		require.NoError(t, err)

		for range 2 {
			_, err := svc.UpsertBatch(ctx, contracts())
			require.NoError(t, err)
		}
		size, err := svc.Size(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, size)
	})
}

func TestService_QueryValidation(t *testing.T) {
	ctx := context.Background()
	b := newRawOnly(t, 3, distance.MetricL2)
	svc, err := New(b)
	require.NoError(t, err)

	_, err = svc.Query(ctx, []float32{1, 0, 0}, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidK)

	_, err = svc.Query(ctx, []float32{1, 0, 0, 0}, 1, nil)
	assert.ErrorIs(t, err, ErrInvalidQuery)
	var dm *ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Expected)
	assert.Equal(t, 4, dm.Actual)

	bad := metadata.NewFilterSet(metadata.Filter{Key: "", Operator: metadata.OpEqual, Value: metadata.Int(1)})
	_, err = svc.Query(ctx, []float32{1, 0, 0}, 1, bad)
	assert.ErrorIs(t, err, ErrInvalidQuery)

	assert.Empty(t, b.fetches, "invalid queries must not reach the backend")
}

func TestService_QueryEmptyStore(t *testing.T) {
	b := newRawOnly(t, 3, distance.MetricL2)
	svc, err := New(b)
	require.NoError(t, err)

	matches, err := svc.Query(context.Background(), []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)

	matches, err = svc.Query(context.Background(), []float32{1, 0, 0}, 5, erc1155)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestService_QueryBackendErrors(t *testing.T) {
	ctx := context.Background()
	b := newRawOnly(t, 3, distance.MetricL2)
	svc, err := New(b)
	require.NoError(t, err)

	b.queryErr = fmt.Errorf("%w: POST /query after 4 attempts: 503", backend.ErrUnavailable)
	_, err = svc.Query(ctx, []float32{1, 0, 0}, 1, nil)
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	b.queryErr = context.Canceled
	_, err = svc.Query(ctx, []float32{1, 0, 0}, 1, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrBackendUnavailable)
}

func TestService_OverFetchAndFilter(t *testing.T) {
	ctx := context.Background()

	t.Run("WideningReachesMatch", func(t *testing.T) {
		b := newRawOnly(t, 3, distance.MetricL2)
		mc := &BasicMetricsCollector{}
		svc, err := New(b, WithFetchMultiplier(2), WithMetricsCollector(mc))
		require.NoError(t, err)
		_, err = svc.UpsertBatch(ctx, contracts())
		require.NoError(t, err)

		matches, err := svc.Query(ctx, erc20Query, 1, erc1155)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "erc1155-a", matches[0].ID)
		assert.Equal(t, "ERC-1155", matches[0].Metadata["type"].StringValue())

		assert.Equal(t, []int{2, 4}, b.fetches)
		assert.Equal(t, int64(1), mc.GetStats().WidenCount)
	})

	t.Run("DefaultMultiplierNeedsNoWidening", func(t *testing.T) {
		b := newRawOnly(t, 3, distance.MetricL2)
		svc, err := New(b)
		require.NoError(t, err)
		_, err = svc.UpsertBatch(ctx, contracts())
		require.NoError(t, err)

		matches, err := svc.Search(erc20Query).KNN(2).Filter(erc1155).Execute(ctx)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "erc1155-a", matches[0].ID)
		assert.Equal(t, "erc1155-b", matches[1].ID)
		assert.Equal(t, []int{8}, b.fetches)
	})

	t.Run("MaxFetchExhausted", func(t *testing.T) {
		b := newRawOnly(t, 3, distance.MetricL2)
		svc, err := New(b, WithFetchMultiplier(2), WithMaxFetch(3))
		require.NoError(t, err)
		_, err = svc.UpsertBatch(ctx, contracts())
		require.NoError(t, err)

		matches, err := svc.Query(ctx, erc20Query, 1, erc1155)
		require.NoError(t, err)
		assert.Empty(t, matches)
		assert.Equal(t, []int{2, 3}, b.fetches)
	})

	t.Run("FewerMatchesThanK", func(t *testing.T) {
		b := newRawOnly(t, 3, distance.MetricL2)
		svc, err := New(b, WithFetchMultiplier(2))
		require.NoError(t, err)
		_, err = svc.UpsertBatch(ctx, contracts())
		require.NoError(t, err)

		matches, err := svc.Query(ctx, erc20Query, 3, erc1155)
		require.NoError(t, err)
		assert.Len(t, matches, 2)
		// The page was short, so the backend is exhausted.
		assert.Equal(t, []int{6}, b.fetches)
	})
}

func TestSearchBuilder(t *testing.T) {
	ctx := context.Background()
	b, err := local.New(3, distance.MetricL2)
	require.NoError(t, err)
	svc, err := New(b)
	require.NoError(t, err)
	_, err = svc.UpsertBatch(ctx, contracts())
	require.NoError(t, err)

	erc721 := metadata.Eq("type", metadata.String("ERC-721"))

	t.Run("MustExecute", func(t *testing.T) {
		matches := svc.Search(erc20Query).KNN(2).MustExecute(ctx)
		require.Len(t, matches, 2)
		assert.Equal(t, "erc20-a", matches[0].ID)

		assert.Panics(t, func() { svc.Search(erc20Query).KNN(0).MustExecute(ctx) })
	})

	t.Run("Exists", func(t *testing.T) {
		ok, err := svc.Search(erc20Query).Filter(erc1155).Exists(ctx)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = svc.Search(erc20Query).Where(erc721).Exists(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = svc.Search([]float32{1}).Exists(ctx)
		assert.ErrorIs(t, err, ErrInvalidQuery)
	})

	t.Run("First", func(t *testing.T) {
		m, err := svc.Search(erc20Query).Filter(erc1155).First(ctx)
		require.NoError(t, err)
		assert.Equal(t, "erc1155-a", m.ID)

		_, err = svc.Search(erc20Query).Where(erc721).First(ctx)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("StreamStopsEarly", func(t *testing.T) {
		var ids []string
		for m, err := range svc.Search(erc20Query).KNN(5).Stream(ctx) {
			require.NoError(t, err)
			ids = append(ids, m.ID)
			if len(ids) == 2 {
				break
			}
		}
		assert.Equal(t, []string{"erc20-a", "erc20-b"}, ids)

		for _, err := range svc.Search(erc20Query).KNN(0).Stream(ctx) {
			assert.ErrorIs(t, err, ErrInvalidK)
		}
	})
}

func TestService_FilterPushdown(t *testing.T) {
	ctx := context.Background()
	b, err := local.New(3, distance.MetricL2)
	require.NoError(t, err)

	svc, err := New(b)
	require.NoError(t, err)
	_, err = svc.UpsertBatch(ctx, contracts())
	require.NoError(t, err)

	matches, err := svc.Query(ctx, erc20Query, 1, erc1155)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "erc1155-a", matches[0].ID)

	noPush, err := New(b, WithFilterPushdown(false), WithFetchMultiplier(2))
	require.NoError(t, err)
	scanned, err := noPush.Query(ctx, erc20Query, 1, erc1155)
	require.NoError(t, err)
	assert.Equal(t, matches, scanned)
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	b := newRawOnly(t, 3, distance.MetricL2)
	mc := &BasicMetricsCollector{}
	svc, err := New(b, WithMetricsCollector(mc))
	require.NoError(t, err)
	_, err = svc.UpsertBatch(ctx, contracts())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "erc20-a", "missing"))
	require.NoError(t, svc.Delete(ctx))

	matches, err := svc.Query(ctx, []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Len(t, matches, 4)
	for _, m := range matches {
		assert.NotEqual(t, "erc20-a", m.ID)
	}

	stats := mc.GetStats()
	assert.Equal(t, int64(2), stats.DeleteCount)
	assert.Equal(t, int64(2), stats.DeleteItems)
}

func TestService_Close(t *testing.T) {
	ctx := context.Background()
	b := newRawOnly(t, 3, distance.MetricL2)
	svc, err := New(b)
	require.NoError(t, err)

	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())
	assert.Equal(t, 1, b.closed)

	_, err = svc.Query(ctx, []float32{1, 0, 0}, 1, nil)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = svc.UpsertBatch(ctx, contracts())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, svc.Delete(ctx, "x"), ErrClosed)
	_, err = svc.Size(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestService_Metrics(t *testing.T) {
	ctx := context.Background()
	b := newRawOnly(t, 3, distance.MetricL2)
	mc := &BasicMetricsCollector{}
	svc, err := New(b, WithMetricsCollector(mc))
	require.NoError(t, err)

	records := contracts()
	records = append(records, model.Record{ID: "bad", Vector: []float32{1}})
	_, err = svc.UpsertBatch(ctx, records)
	require.NoError(t, err)

	_, err = svc.Query(ctx, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	_, err = svc.Query(ctx, []float32{1, 0, 0}, 0, nil)
	require.Error(t, err)

	stats := mc.GetStats()
	assert.Equal(t, int64(1), stats.UpsertBatchCount)
	assert.Equal(t, int64(6), stats.UpsertItems)
	assert.Equal(t, int64(1), stats.UpsertFailed)
	assert.Equal(t, int64(2), stats.QueryCount)
	assert.Equal(t, int64(1), stats.QueryErrors)
	assert.Equal(t, int64(2), stats.QueryResults)
}

func TestTranslateError(t *testing.T) {
	assert.NoError(t, translateError(nil))

	var dm *ErrDimensionMismatch
	err := translateError(&index.ErrDimensionMismatch{Expected: 3, Actual: 2})
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Expected)
	var idm *index.ErrDimensionMismatch
	assert.ErrorAs(t, err, &idm, "cause must stay reachable")

	var id *ErrInvalidDimension
	require.ErrorAs(t, translateError(&index.ErrInvalidDimension{Dimension: -1}), &id)
	assert.Equal(t, -1, id.Dimension)

	assert.ErrorIs(t, translateError(index.ErrInvalidK), ErrInvalidK)
	assert.ErrorIs(t, translateError(backend.ErrNotFound), ErrNotFound)
	assert.ErrorIs(t, translateError(backend.ErrClosed), ErrClosed)

	timedOut := fmt.Errorf("%w: after 4 attempts: %w", backend.ErrUnavailable, context.DeadlineExceeded)
	assert.ErrorIs(t, translateError(timedOut), ErrBackendUnavailable)

	other := errors.New("boom")
	assert.Equal(t, other, translateError(other))
}
