// Package backend defines the capability set a similarity-search backend
// provides, and the errors backends report.
//
// Implementations:
//
//   - backend/local: in-process exact search over index/flat
//   - backend/remote: HTTP client for a hosted vector-index service
//   - backend/chromem: embedded Chroma-compatible store (chromem-go)
//
// Backends report per-record failures of an upsert through *BatchError and
// environment-level failures (unreachable service, rejected credentials)
// through ErrUnavailable and ErrAuth.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/vecsearch/distance"
	"github.com/hupe1980/vecsearch/metadata"
	"github.com/hupe1980/vecsearch/model"
)

var (
	// ErrUnavailable is returned when a backend cannot be reached or keeps
	// failing after its retry policy is exhausted.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrAuth is returned when a backend rejects the caller's credentials.
	ErrAuth = errors.New("backend authentication failed")

	// ErrNotFound is returned when a named index does not exist.
	ErrNotFound = errors.New("index not found")

	// ErrAlreadyExists is returned when creating an index that exists.
	ErrAlreadyExists = errors.New("index already exists")

	// ErrClosed is returned when a closed backend is used.
	ErrClosed = errors.New("backend closed")
)

// Backend is the capability set every backend provides.
type Backend interface {
	// Name identifies the backend kind in logs.
	Name() string

	// Dimension returns the configured vector dimension.
	Dimension() int

	// Metric returns the distance metric.
	Metric() distance.Metric

	// UpsertBatch inserts or replaces records. Per-record failures are
	// reported through *BatchError; the other records are still applied.
	UpsertBatch(ctx context.Context, records []model.Record) error

	// QueryRaw returns up to k candidates ordered by ascending Distance.
	// k above the backend size is clamped.
	QueryRaw(ctx context.Context, vector []float32, k int) ([]model.Match, error)

	// Delete removes records by id. Absent ids are ignored.
	Delete(ctx context.Context, ids ...string) error

	// Size returns the number of stored records.
	Size(ctx context.Context) (int, error)

	// Close releases resources held by the backend.
	Close() error
}

// FilteredQuerier is implemented by backends that evaluate metadata filters
// themselves. Results must only contain records matching the filter.
type FilteredQuerier interface {
	QueryFiltered(ctx context.Context, vector []float32, k int, filter *metadata.FilterSet) ([]model.Match, error)
}

// ItemError is the failure of one record in a batch.
type ItemError struct {
	// Index is the position of the record in the submitted batch.
	Index int
	// ID is the record id.
	ID string
	// Err is the cause.
	Err error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("record %d (%q): %v", e.Index, e.ID, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

// BatchError reports per-record failures of an otherwise applied batch.
type BatchError struct {
	Items []ItemError
}

func (e *BatchError) Error() string {
	switch len(e.Items) {
	case 0:
		return "batch: no failures"
	case 1:
		return "batch: " + e.Items[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "batch: %d records failed", len(e.Items))
	for i, it := range e.Items {
		if i == 3 {
			fmt.Fprintf(&sb, "; ... (%d more)", len(e.Items)-i)
			break
		}
		sb.WriteString("; ")
		sb.WriteString(it.Error())
	}
	return sb.String()
}

// Unwrap exposes the item causes to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Items))
	for i := range e.Items {
		errs[i] = e.Items[i]
	}
	return errs
}

// Add records a failure.
func (e *BatchError) Add(index int, id string, err error) {
	e.Items = append(e.Items, ItemError{Index: index, ID: id, Err: err})
}

// Offset shifts every item index by n; used when a batch was split into chunks.
func (e *BatchError) Offset(n int) {
	for i := range e.Items {
		e.Items[i].Index += n
	}
}

// ErrOrNil returns e when it holds failures, nil otherwise.
func (e *BatchError) ErrOrNil() error {
	if e == nil || len(e.Items) == 0 {
		return nil
	}
	return e
}
