// Package distance provides the vector metrics used by vecsearch.
//
// # Supported Metrics
//
//   - MetricL2: Squared Euclidean distance (no square root, ordering is preserved)
//   - MetricCosine: Cosine similarity, exposed as distance 1 - similarity
//   - MetricDot: Dot product (inner product), exposed as distance -dot
//
// Every metric is reported as a distance where smaller means more similar.
// The metric's native score (squared L2, cosine similarity, dot product) can be
// recovered with DistanceToScore.
//
// # Usage
//
//	fn, _ := distance.Provider(distance.MetricCosine)
//	d := fn(query, vec)                                  // lower is better
//	sim := distance.DistanceToScore(distance.MetricCosine, d)
package distance
