package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecsearch/metadata"
)

func TestInverted_CompileEqAndIn(t *testing.T) {
	ix := New()
	ix.Add(1, metadata.Document{"category": metadata.String("tech"), "status": metadata.String("active")})
	ix.Add(2, metadata.Document{"category": metadata.String("sports"), "status": metadata.String("active")})
	ix.Add(3, metadata.Document{"category": metadata.String("tech"), "status": metadata.String("inactive")})

	bm, ok := ix.Compile(metadata.NewFilterSet(
		metadata.Eq("category", metadata.String("tech")),
		metadata.In("status", metadata.String("active")),
	))
	require.True(t, ok)
	assert.Equal(t, []uint32{1}, bm.ToArray())
}

func TestInverted_CompileSingleFilterReturnsCopy(t *testing.T) {
	ix := New()
	ix.Add(4, metadata.Document{"type": metadata.String("ERC-1155")})

	fs := metadata.NewFilterSet(metadata.Eq("type", metadata.String("ERC-1155")))
	bm, ok := ix.Compile(fs)
	require.True(t, ok)
	bm.Add(99)

	again, ok := ix.Compile(fs)
	require.True(t, ok)
	assert.Equal(t, []uint32{4}, again.ToArray())
}

func TestInverted_NumericKeysShareSpace(t *testing.T) {
	ix := New()
	ix.Add(1, metadata.Document{"year": metadata.Int(2023)})

	bm, ok := ix.Compile(metadata.NewFilterSet(metadata.Eq("year", metadata.Float(2023))))
	require.True(t, ok)
	assert.True(t, bm.Contains(1))
}

func TestInverted_CompileUnindexable(t *testing.T) {
	ix := New()
	ix.Add(1, metadata.Document{"year": metadata.Int(2023)})

	tests := []struct {
		name string
		fs   *metadata.FilterSet
	}{
		{"nil", nil},
		{"empty", metadata.NewFilterSet()},
		{"range only", metadata.NewFilterSet(metadata.Gt("year", metadata.Int(2000)))},
		{"contains only", metadata.NewFilterSet(metadata.Contains("name", "x"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ix.Compile(tt.fs)
			assert.False(t, ok)
		})
	}
}

func TestInverted_CompileMissingValue(t *testing.T) {
	ix := New()
	ix.Add(1, metadata.Document{"category": metadata.String("tech")})

	bm, ok := ix.Compile(metadata.NewFilterSet(metadata.Eq("category", metadata.String("art"))))
	require.True(t, ok)
	assert.True(t, bm.IsEmpty())

	bm, ok = ix.Compile(metadata.NewFilterSet(metadata.In("category", metadata.String("art"), metadata.String("music"))))
	require.True(t, ok)
	assert.True(t, bm.IsEmpty())
}

func TestInverted_UpdateAndRemove(t *testing.T) {
	ix := New()
	oldDoc := metadata.Document{"category": metadata.String("tech")}
	ix.Add(1, oldDoc)

	tech := metadata.NewFilterSet(metadata.Eq("category", metadata.String("tech")))
	sports := metadata.NewFilterSet(metadata.Eq("category", metadata.String("sports")))

	bm, ok := ix.Compile(tech)
	require.True(t, ok)
	assert.True(t, bm.Contains(1))

	newDoc := metadata.Document{"category": metadata.String("sports")}
	ix.Update(1, oldDoc, newDoc)

	bm, _ = ix.Compile(tech)
	assert.False(t, bm.Contains(1), "stale posting after update")

	bm, _ = ix.Compile(sports)
	assert.True(t, bm.Contains(1))

	ix.Remove(1, newDoc)
	bm, _ = ix.Compile(sports)
	assert.False(t, bm.Contains(1))
	assert.Equal(t, 0, ix.Fields())
}
