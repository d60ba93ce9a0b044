// Package vectorstore defines the canonical vector storage used by the flat index.
//
// Vectors live in one contiguous []float32 slice indexed by model.Slot, so a
// linear scan walks memory sequentially.
package vectorstore

import (
	"errors"

	"github.com/hupe1980/vecsearch/model"
)

var (
	// ErrWrongDimension is returned when a vector doesn't match the store dimension.
	ErrWrongDimension = errors.New("wrong vector dimension")
	// ErrOutOfBounds is returned for a slot past the end of the store.
	ErrOutOfBounds = errors.New("slot out of bounds")
)

// Store is the canonical storage for vectors.
//
// Implementations must treat the configured dimension as authoritative.
// Callers should assume returned slices may alias internal memory unless the
// implementation documents otherwise.
type Store interface {
	Dimension() int
	GetVector(slot model.Slot) ([]float32, bool)
	SetVector(slot model.Slot, v []float32) error
	Append(v []float32) (model.Slot, error)
}
