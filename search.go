package vecsearch

import (
	"context"
	"iter"

	"github.com/hupe1980/vecsearch/metadata"
	"github.com/hupe1980/vecsearch/model"
)

// Search creates a new fluent search builder for the given query vector.
//
// Example:
//
//	matches, err := svc.Search(query).
//	    KNN(10).
//	    Where(metadata.Eq("type", metadata.String("ERC-1155"))).
//	    Execute(ctx)
//
//	// Or with streaming:
//	for m, err := range svc.Search(query).KNN(100).Stream(ctx) {
//	    if err != nil { break }
//	    if m.Distance > threshold { break }
//	    process(m)
//	}
func (s *Service) Search(query []float32) *SearchBuilder {
	return &SearchBuilder{
		svc:   s,
		query: query,
		k:     10, // Default k
	}
}

// SearchBuilder is a fluent builder for constructing search queries.
type SearchBuilder struct {
	svc    *Service
	query  []float32
	k      int
	filter *metadata.FilterSet
}

// KNN sets the number of nearest neighbors to return.
func (sb *SearchBuilder) KNN(k int) *SearchBuilder {
	sb.k = k
	return sb
}

// Filter sets the metadata filter. It replaces conditions added by Where.
func (sb *SearchBuilder) Filter(fs *metadata.FilterSet) *SearchBuilder {
	sb.filter = fs
	return sb
}

// Where adds conditions to the metadata filter.
func (sb *SearchBuilder) Where(filters ...metadata.Filter) *SearchBuilder {
	if sb.filter == nil {
		sb.filter = metadata.NewFilterSet()
	} else {
		sb.filter = metadata.NewFilterSet(append([]metadata.Filter(nil), sb.filter.Filters...)...)
	}
	sb.filter.Filters = append(sb.filter.Filters, filters...)
	return sb
}

// Execute runs the search and returns the results.
func (sb *SearchBuilder) Execute(ctx context.Context) ([]model.Match, error) {
	return sb.svc.Query(ctx, sb.query, sb.k, sb.filter)
}

// MustExecute runs the search, panicking on error.
// Use this only in tests or when you're certain the query is valid.
func (sb *SearchBuilder) MustExecute(ctx context.Context) []model.Match {
	results, err := sb.Execute(ctx)
	if err != nil {
		panic(err)
	}
	return results
}

// Stream returns an iterator over search results.
// Results are yielded in order from nearest to farthest.
// The iterator supports early termination by breaking from the loop.
func (sb *SearchBuilder) Stream(ctx context.Context) iter.Seq2[model.Match, error] {
	return func(yield func(model.Match, error) bool) {
		results, err := sb.Execute(ctx)
		if err != nil {
			yield(model.Match{}, err)
			return
		}
		for _, m := range results {
			if !yield(m, nil) {
				return
			}
		}
	}
}

// First returns only the nearest result, or ErrNotFound if none matched.
func (sb *SearchBuilder) First(ctx context.Context) (model.Match, error) {
	sb.k = 1
	results, err := sb.Execute(ctx)
	if err != nil {
		return model.Match{}, err
	}
	if len(results) == 0 {
		return model.Match{}, ErrNotFound
	}
	return results[0], nil
}

// Exists checks if at least one result matches the search.
func (sb *SearchBuilder) Exists(ctx context.Context) (bool, error) {
	sb.k = 1
	results, err := sb.Execute(ctx)
	if err != nil {
		return false, err
	}
	return len(results) > 0, nil
}
