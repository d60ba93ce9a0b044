package vecsearch

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/vecsearch/backend"
	"github.com/hupe1980/vecsearch/index"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrInvalidQuery is returned for a query the service cannot run: a
	// vector of the wrong dimension or a malformed filter.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrBackendUnavailable is returned when the backend could not be reached.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrAuthFailure is returned when the backend rejected the credentials.
	ErrAuthFailure = errors.New("authentication failure")

	// ErrNotFound is returned when an index or result does not exist.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned when a closed service is used.
	ErrClosed = errors.New("service closed")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrInvalidDimension indicates an invalid configured dimension.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidDimension struct {
	Dimension int
	cause     error
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

func (e *ErrInvalidDimension) Unwrap() error { return e.cause }

func invalidQuery(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidQuery, err)
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Exhausted retries whose last attempt timed out wrap both.
		if !errors.Is(err, backend.ErrUnavailable) {
			return err
		}
	}

	// Environment failures.
	if errors.Is(err, backend.ErrAuth) {
		return fmt.Errorf("%w: %w", ErrAuthFailure, err)
	}
	if errors.Is(err, backend.ErrUnavailable) {
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	if errors.Is(err, backend.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, backend.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	// Dimension and argument normalization.
	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	var id *index.ErrInvalidDimension
	if errors.As(err, &id) {
		return &ErrInvalidDimension{Dimension: id.Dimension, cause: err}
	}
	if errors.Is(err, index.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}

	return err
}
