// Package testutil provides testing utilities for hnswtag.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating random vectors, computing exact
// nearest neighbors, and verifying search recall.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	data := rng.UniformVectors(1000, 128)
//
// # Exact Search (Ground Truth)
//
//	truth := testutil.BruteForceSearch(distance.SpaceL2, data, nil, query, k)
//
// # Recall Verification
//
//	recall := testutil.ComputeRecall(truth, approx)
package testutil
