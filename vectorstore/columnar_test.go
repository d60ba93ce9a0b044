package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecsearch/model"
)

func TestColumnarStore_AppendGetSet(t *testing.T) {
	s, err := New(2, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Dimension())

	a, err := s.Append([]float32{1, 2})
	require.NoError(t, err)
	b, err := s.Append([]float32{3, 4})
	require.NoError(t, err)
	assert.Equal(t, model.Slot(0), a)
	assert.Equal(t, model.Slot(1), b)
	assert.Equal(t, 2, s.Count())

	v, ok := s.GetVector(b)
	require.True(t, ok)
	assert.Equal(t, []float32{3, 4}, v)

	require.NoError(t, s.SetVector(a, []float32{9, 9}))
	v, _ = s.GetVector(a)
	assert.Equal(t, []float32{9, 9}, v)

	s.Zero(a)
	v, _ = s.GetVector(a)
	assert.Equal(t, []float32{0, 0}, v)

	raw, dim := s.RawData()
	assert.Equal(t, 2, dim)
	assert.Equal(t, []float32{0, 0, 3, 4}, raw)
}

func TestColumnarStore_Errors(t *testing.T) {
	_, err := New(0, 1)
	assert.ErrorIs(t, err, ErrWrongDimension)

	s, err := New(3, 0)
	require.NoError(t, err)

	_, err = s.Append([]float32{1})
	assert.ErrorIs(t, err, ErrWrongDimension)

	assert.ErrorIs(t, s.SetVector(5, []float32{1, 2, 3}), ErrOutOfBounds)
	assert.ErrorIs(t, s.SetVector(0, []float32{1}), ErrWrongDimension)

	_, ok := s.GetVector(0)
	assert.False(t, ok)
}

func TestColumnarStore_GetVectorDoesNotGrowIntoNeighbor(t *testing.T) {
	s, _ := New(2, 2)
	_, _ = s.Append([]float32{1, 2})
	_, _ = s.Append([]float32{3, 4})

	v, _ := s.GetVector(0)
	assert.Equal(t, 2, cap(v))
}
