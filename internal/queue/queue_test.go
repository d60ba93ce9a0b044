package queue

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopK_KeepsBest(t *testing.T) {
	q := NewTopK(3)
	for i, d := range []float32{5, 1, 4, 2, 3, 0.5} {
		q.Offer(Item{Slot: uint32(i), Seq: uint64(i), Distance: d})
	}

	got := q.Sorted()
	require.Len(t, got, 3)
	assert.Equal(t, []float32{0.5, 1, 2}, distances(got))
	assert.Equal(t, 0, q.Len())
}

func TestTopK_TieBreakBySequence(t *testing.T) {
	q := NewTopK(2)
	q.Offer(Item{Slot: 7, Seq: 9, Distance: 1})
	q.Offer(Item{Slot: 3, Seq: 2, Distance: 1})
	q.Offer(Item{Slot: 5, Seq: 4, Distance: 1})

	got := q.Sorted()
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].Seq)
	assert.Equal(t, uint64(4), got[1].Seq)
}

func TestTopK_NaNRanksLast(t *testing.T) {
	nan := float32(math.NaN())

	q := NewTopK(2)
	assert.True(t, q.Offer(Item{Seq: 0, Distance: nan}))
	assert.True(t, q.Offer(Item{Seq: 1, Distance: 10}))
	assert.True(t, q.Offer(Item{Seq: 2, Distance: 20}))

	got := q.Sorted()
	assert.Equal(t, []float32{10, 20}, distances(got))
}

func TestTopK_ZeroK(t *testing.T) {
	q := NewTopK(0)
	assert.False(t, q.Offer(Item{Distance: 1}))
	assert.Empty(t, q.Sorted())
}

func TestTopK_MatchesFullSort(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	all := make([]Item, 500)
	for i := range all {
		all[i] = Item{Slot: uint32(i), Seq: uint64(i), Distance: float32(rng.IntN(50))}
	}

	for _, k := range []int{1, 7, 64, 500, 800} {
		q := NewTopK(k)
		for _, it := range all {
			q.Offer(it)
		}
		want := slices.Clone(all)
		slices.SortFunc(want, Compare)
		if k < len(want) {
			want = want[:k]
		}
		assert.Equal(t, want, q.Sorted(), "k=%d", k)
	}
}

func distances(items []Item) []float32 {
	out := make([]float32, len(items))
	for i := range items {
		out[i] = items[i].Distance
	}
	return out
}
