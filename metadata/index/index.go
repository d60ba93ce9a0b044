// Package index provides a roaring-bitmap inverted index over metadata
// documents, used to narrow filtered scans to a candidate set of slots.
package index

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecsearch/metadata"
)

// Inverted accelerates metadata filtering for equality and membership queries.
//
// Supported operators:
// - OpEqual
// - OpIn (array of Values)
//
// Other operators are ignored during compilation; callers must re-check
// every candidate against the full metadata.FilterSet.
type Inverted struct {
	mu sync.RWMutex

	// key -> valueKey -> slots
	fields map[string]map[string]*roaring.Bitmap
}

// New returns an empty inverted index.
func New() *Inverted {
	return &Inverted{fields: make(map[string]map[string]*roaring.Bitmap)}
}

// Add indexes doc under slot.
func (ix *Inverted) Add(slot uint32, doc metadata.Document) {
	if ix == nil || len(doc) == 0 {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.addLocked(slot, doc)
}

// Remove drops the postings of doc for slot.
func (ix *Inverted) Remove(slot uint32, doc metadata.Document) {
	if ix == nil || len(doc) == 0 {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(slot, doc)
}

// Update replaces the postings of oldDoc with those of newDoc for slot.
func (ix *Inverted) Update(slot uint32, oldDoc, newDoc metadata.Document) {
	if ix == nil {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if oldDoc != nil {
		ix.removeLocked(slot, oldDoc)
	}
	if newDoc != nil {
		ix.addLocked(slot, newDoc)
	}
}

// Fields returns the number of indexed metadata keys.
func (ix *Inverted) Fields() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.fields)
}

func (ix *Inverted) addLocked(slot uint32, doc metadata.Document) {
	for k, v := range doc {
		vm, ok := ix.fields[k]
		if !ok {
			vm = make(map[string]*roaring.Bitmap)
			ix.fields[k] = vm
		}
		vk := v.Key()
		bm, ok := vm[vk]
		if !ok {
			bm = roaring.New()
			vm[vk] = bm
		}
		bm.Add(slot)
	}
}

func (ix *Inverted) removeLocked(slot uint32, doc metadata.Document) {
	for k, v := range doc {
		vm, ok := ix.fields[k]
		if !ok {
			continue
		}
		vk := v.Key()
		bm, ok := vm[vk]
		if !ok {
			continue
		}
		bm.Remove(slot)
		if bm.IsEmpty() {
			delete(vm, vk)
		}
		if len(vm) == 0 {
			delete(ix.fields, k)
		}
	}
}

// Compile intersects the postings of every Eq/In filter in fs and returns the
// resulting candidate slots. ok is false when fs has no indexable filter, in
// which case the caller must scan everything.
//
// The returned bitmap is owned by the caller.
func (ix *Inverted) Compile(fs *metadata.FilterSet) (candidates *roaring.Bitmap, ok bool) {
	if ix == nil || fs.IsEmpty() {
		return nil, false
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	sets := make([]*roaring.Bitmap, 0, len(fs.Filters))

	for _, f := range fs.Filters {
		switch f.Operator {
		case metadata.OpEqual:
			bm := ix.postingsLocked(f.Key, f.Value)
			if bm == nil {
				// Key/value doesn't exist; nothing can match.
				return roaring.New(), true
			}
			sets = append(sets, bm)

		case metadata.OpIn:
			arr, isArr := f.Value.AsArray()
			if !isArr {
				continue
			}
			union := roaring.New()
			for _, vv := range arr {
				if bm := ix.postingsLocked(f.Key, vv); bm != nil {
					union.Or(bm)
				}
			}
			if union.IsEmpty() {
				return union, true
			}
			sets = append(sets, union)
		}
	}

	if len(sets) == 0 {
		return nil, false
	}

	if len(sets) == 1 {
		return sets[0].Clone(), true
	}
	return roaring.FastAnd(sets...), true
}

func (ix *Inverted) postingsLocked(key string, v metadata.Value) *roaring.Bitmap {
	vm, ok := ix.fields[key]
	if !ok {
		return nil
	}
	bm, ok := vm[v.Key()]
	if !ok {
		return nil
	}
	return bm
}
