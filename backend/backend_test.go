package backend

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecsearch/index"
)

func TestBatchError(t *testing.T) {
	var be BatchError
	assert.NoError(t, be.ErrOrNil())

	dm := &index.ErrDimensionMismatch{Expected: 3, Actual: 4}
	be.Add(1, "b", dm)
	be.Add(4, "e", index.ErrEmptyID)

	err := be.ErrOrNil()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 records failed")

	var got *index.ErrDimensionMismatch
	assert.ErrorAs(t, err, &got)
	assert.ErrorIs(t, err, index.ErrEmptyID)

	be.Offset(10)
	assert.Equal(t, 11, be.Items[0].Index)
	assert.Equal(t, 14, be.Items[1].Index)
}

func TestBatchError_Single(t *testing.T) {
	be := &BatchError{}
	be.Add(0, "a", errors.New("bad"))
	assert.Equal(t, `batch: record 0 ("a"): bad`, be.Error())
}

func TestBatchError_Truncates(t *testing.T) {
	be := &BatchError{}
	for i := range 5 {
		be.Add(i, "x", errors.New("bad"))
	}
	assert.Contains(t, be.Error(), "(2 more)")
}
