package index

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vecsearch/distance"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")
	// ErrEmptyID is returned when a record has an empty id.
	ErrEmptyID = errors.New("record id must not be empty")
)

// ErrDimensionMismatch is a named error type for dimension mismatch
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrInvalidDimension reports a configured dimension that is not positive.
type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

// ErrUnsupportedMetric reports an unknown distance metric.
type ErrUnsupportedMetric struct {
	Metric distance.Metric
}

func (e *ErrUnsupportedMetric) Error() string {
	return fmt.Sprintf("unsupported metric: %s", e.Metric)
}

// ErrInvalidMetadata reports metadata that cannot be stored.
type ErrInvalidMetadata struct {
	ID    string
	cause error
}

// NewErrInvalidMetadata wraps the validation failure of record id.
func NewErrInvalidMetadata(id string, cause error) *ErrInvalidMetadata {
	return &ErrInvalidMetadata{ID: id, cause: cause}
}

func (e *ErrInvalidMetadata) Error() string {
	return fmt.Sprintf("invalid metadata for %q: %v", e.ID, e.cause)
}

func (e *ErrInvalidMetadata) Unwrap() error { return e.cause }

// ValidateBasicOptions checks the creation parameters shared by all indexes.
func ValidateBasicOptions(dimension int, metric distance.Metric) error {
	if dimension <= 0 {
		return &ErrInvalidDimension{Dimension: dimension}
	}
	if !metric.Valid() {
		return &ErrUnsupportedMetric{Metric: metric}
	}
	return nil
}

// ValidateVector checks that v has the expected dimension.
func ValidateVector(dimension int, v []float32) error {
	if len(v) != dimension {
		return &ErrDimensionMismatch{Expected: dimension, Actual: len(v)}
	}
	return nil
}
