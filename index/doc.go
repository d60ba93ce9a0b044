// Package index holds what is shared by vector index implementations:
// the error taxonomy of the local store and argument validation helpers.
//
// The only implementation is index/flat, an exact (brute-force) store.
//
// # Errors
//
// Structured errors carry the offending values and are matched with errors.As:
//
//   - *ErrInvalidDimension: configured dimension <= 0
//   - *ErrDimensionMismatch: vector or query length differs from the store dimension
//   - *ErrUnsupportedMetric: unknown distance metric
//   - *ErrInvalidMetadata: record metadata with a non-scalar or non-finite value
//
// Sentinels are matched with errors.Is:
//
//   - ErrInvalidK: k <= 0
//   - ErrEmptyID: record id is empty
package index
