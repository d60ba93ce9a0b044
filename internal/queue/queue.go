// Package queue provides the bounded priority queue used for exact top-k selection.
package queue

import (
	"cmp"
	"math"
	"slices"
)

// Item is a scored candidate.
type Item struct {
	Slot     uint32  // Slot is the storage position of the candidate.
	Seq      uint64  // Seq is the insertion sequence, used to break distance ties.
	Distance float32 // Distance is the priority; lower is better.
}

// Compare orders items best-first: ascending distance, then ascending sequence.
// NaN distances sort after every finite distance.
func Compare(a, b Item) int {
	aNaN, bNaN := isNaN(a.Distance), isNaN(b.Distance)
	switch {
	case aNaN && !bNaN:
		return 1
	case !aNaN && bNaN:
		return -1
	case !aNaN && !bNaN && a.Distance != b.Distance:
		return cmp.Compare(a.Distance, b.Distance)
	}
	return cmp.Compare(a.Seq, b.Seq)
}

// TopK keeps the k best items seen so far.
//
// It is a max-heap on Compare: the root is the worst retained item, so a new
// candidate only needs one comparison against it to be rejected.
type TopK struct {
	k     int
	items []Item
}

// NewTopK creates a queue retaining at most k items.
func NewTopK(k int) *TopK {
	if k < 0 {
		k = 0
	}
	return &TopK{k: k, items: make([]Item, 0, k)}
}

// Len returns the number of retained items.
func (q *TopK) Len() int { return len(q.items) }

// Offer adds item if it beats the worst retained item (or the queue is not full).
// It reports whether the item was retained.
func (q *TopK) Offer(item Item) bool {
	if q.k == 0 {
		return false
	}
	if len(q.items) < q.k {
		q.items = append(q.items, item)
		q.siftUp(len(q.items) - 1)
		return true
	}
	if Compare(item, q.items[0]) >= 0 {
		return false
	}
	q.items[0] = item
	q.siftDown(0)
	return true
}

// Sorted returns the retained items best-first and empties the queue.
func (q *TopK) Sorted() []Item {
	out := q.items
	q.items = nil
	slices.SortFunc(out, Compare)
	return out
}

// worse reports whether items[i] ranks below items[j].
func (q *TopK) worse(i, j int) bool {
	return Compare(q.items[i], q.items[j]) > 0
}

func (q *TopK) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !q.worse(i, p) {
			return
		}
		q.items[i], q.items[p] = q.items[p], q.items[i]
		i = p
	}
}

func (q *TopK) siftDown(i int) {
	n := len(q.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		r := l + 1
		if r < n && q.worse(r, l) {
			best = r
		}
		if !q.worse(best, i) {
			return
		}
		q.items[i], q.items[best] = q.items[best], q.items[i]
		i = best
	}
}

func isNaN(f float32) bool {
	return math.IsNaN(float64(f))
}
