package model

import (
	"fmt"

	"github.com/hupe1980/vecsearch/metadata"
)

// Slot is a dense, store-local position of a record.
// Slots of deleted records are reused by later inserts.
type Slot uint32

// Record is the unit of storage: a caller-supplied ID, its vector and
// optional scalar metadata.
type Record struct {
	ID       string
	Vector   []float32
	Metadata metadata.Document
}

// String returns a short description of the record.
func (r Record) String() string {
	return fmt.Sprintf("Record(%s, dim=%d, meta=%d)", r.ID, len(r.Vector), len(r.Metadata))
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	vec := make([]float32, len(r.Vector))
	copy(vec, r.Vector)
	return Record{ID: r.ID, Vector: vec, Metadata: r.Metadata.Clone()}
}

// Match is a single search result.
type Match struct {
	// ID is the record identifier.
	ID string
	// Metadata is a copy of the record metadata (nil when the record has none).
	Metadata metadata.Document
	// Distance is the ranking key; lower is closer for every metric.
	Distance float32
	// Score is the metric's native value: cosine similarity, dot product or
	// squared L2 distance.
	Score float32
}

// String returns a short description of the match.
func (m Match) String() string {
	return fmt.Sprintf("Match(%s, score=%.4f)", m.ID, m.Score)
}

// RecordBuilder builds records fluently.
type RecordBuilder struct {
	rec Record
}

// NewRecord starts building a record.
func NewRecord(id string, vec []float32) *RecordBuilder {
	return &RecordBuilder{rec: Record{ID: id, Vector: vec}}
}

// WithMetadata sets one metadata field.
func (b *RecordBuilder) WithMetadata(key string, value metadata.Value) *RecordBuilder {
	if b.rec.Metadata == nil {
		b.rec.Metadata = make(metadata.Document)
	}
	b.rec.Metadata[key] = value
	return b
}

// WithDocument replaces the metadata document.
func (b *RecordBuilder) WithDocument(doc metadata.Document) *RecordBuilder {
	b.rec.Metadata = doc
	return b
}

// Build returns the record.
func (b *RecordBuilder) Build() Record {
	return b.rec
}
