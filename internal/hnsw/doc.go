// Package hnsw implements Hierarchical Navigable Small World graphs.
//
// The graph is layered over a fixed-capacity store.Store. Insertions from
// many goroutines may run concurrently with each other and with searches.
//
// # Parameters
//
//   - M: max connections per node above layer 0 (2*M at layer 0)
//   - EFConstruction: candidate list size used while linking
//   - ef: candidate list size at query time, raised to k when smaller
//
// # Reference
//
// Malkov & Yashunin, "Efficient and robust approximate nearest neighbor search
// using Hierarchical Navigable Small World graphs", IEEE TPAMI 2018.
package hnsw
