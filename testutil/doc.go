// Package testutil provides testing utilities for vecsearch.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating random vectors and computing exact
// nearest neighbors with a full sort, as ground truth for the heap-based
// top-k selection.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UniformVectors(100, 8) // uniform [0, 1)
//	unit := rng.UnitVectors(100, 8)    // on the unit hypersphere
//
// # Exact Search (Ground Truth)
//
//	results := testutil.ExactTopK(query, dataset, k, distance.SquaredL2)
package testutil
