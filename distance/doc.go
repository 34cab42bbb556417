// Package distance provides the vector spaces supported by the index.
//
// # Supported Spaces
//
//   - SpaceL2: squared Euclidean distance (default)
//   - SpaceCosine: 1 - cosine similarity (vectors are normalized on entry)
//   - SpaceIP: 1 - inner product
//
// For every space lower is closer, so the graph code never needs to know
// which one is in use.
//
// # Usage
//
//	fn, _ := distance.Provider(distance.SpaceL2)
//	d := fn(a, b)
package distance
