package flat

import "fmt"

// Stats describes the store's occupancy.
type Stats struct {
	Dimension     int
	Metric        string
	Live          int   // live records
	Slots         int   // allocated slots, including free ones
	FreeSlots     int   // slots awaiting reuse
	VectorBytes   int64 // reserved vector memory
	IndexedFields int   // metadata keys in the inverted index
}

// String renders the stats on one line.
func (st Stats) String() string {
	return fmt.Sprintf("dimension=%d metric=%s live=%d slots=%d free=%d vector_bytes=%d indexed_fields=%d",
		st.Dimension, st.Metric, st.Live, st.Slots, st.FreeSlots, st.VectorBytes, st.IndexedFields)
}

// Stats returns statistics about the store.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Dimension:   s.dim,
		Metric:      s.metric.String(),
		Live:        s.live,
		Slots:       len(s.entries),
		FreeSlots:   len(s.free),
		VectorBytes: s.vectors.SizeBytes(),
	}
	if s.filters != nil {
		st.IndexedFields = s.filters.Fields()
	}
	return st
}
