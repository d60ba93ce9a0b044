package vectorstore

import (
	"github.com/hupe1980/vecsearch/model"
)

var _ Store = (*ColumnarStore)(nil)

// ColumnarStore is a contiguous vector store.
//
// Vectors are stored back to back in a single []float32 slice:
// vector[slot] = data[slot*dim : (slot+1)*dim].
//
// Thread safety: none. The owning index serializes writers and excludes
// readers during writes.
type ColumnarStore struct {
	dim  int
	data []float32
}

// New creates an empty store with the given dimension and capacity hint
// (in vectors).
func New(dim, capacity int) (*ColumnarStore, error) {
	if dim <= 0 {
		return nil, ErrWrongDimension
	}
	if capacity < 0 {
		capacity = 0
	}
	return &ColumnarStore{
		dim:  dim,
		data: make([]float32, 0, capacity*dim),
	}, nil
}

// Dimension returns the vector dimensionality.
func (s *ColumnarStore) Dimension() int {
	return s.dim
}

// Count returns the number of allocated slots.
func (s *ColumnarStore) Count() int {
	return len(s.data) / s.dim
}

// SizeBytes returns the memory reserved for vector data.
func (s *ColumnarStore) SizeBytes() int64 {
	return int64(cap(s.data)) * 4
}

// GetVector returns the vector stored at slot.
// The returned slice aliases internal memory; do not modify.
func (s *ColumnarStore) GetVector(slot model.Slot) ([]float32, bool) {
	start := int(slot) * s.dim
	end := start + s.dim
	if end > len(s.data) {
		return nil, false
	}
	return s.data[start:end:end], true
}

// SetVector overwrites the vector at an allocated slot.
func (s *ColumnarStore) SetVector(slot model.Slot, v []float32) error {
	if len(v) != s.dim {
		return ErrWrongDimension
	}
	start := int(slot) * s.dim
	if start+s.dim > len(s.data) {
		return ErrOutOfBounds
	}
	copy(s.data[start:start+s.dim], v)
	return nil
}

// Append adds a vector in a new slot and returns it.
func (s *ColumnarStore) Append(v []float32) (model.Slot, error) {
	if len(v) != s.dim {
		return 0, ErrWrongDimension
	}
	slot := model.Slot(len(s.data) / s.dim)
	s.data = append(s.data, v...)
	return slot, nil
}

// Zero clears the vector at slot so a deleted record's values do not linger.
func (s *ColumnarStore) Zero(slot model.Slot) {
	start := int(slot) * s.dim
	if start+s.dim > len(s.data) {
		return
	}
	clear(s.data[start : start+s.dim])
}

// RawData returns the underlying contiguous slice and the dimension.
// The returned slice aliases internal memory; do not modify.
func (s *ColumnarStore) RawData() ([]float32, int) {
	return s.data, s.dim
}
