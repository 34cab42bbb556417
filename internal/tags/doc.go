// Package tags maintains the label/tag table and the filtered sub-graphs built from it.
//
// The table keeps two roaring64 posting lists per key:
//
//	label -> tags
//	tag   -> labels
//
// A sub-graph is an independent HNSW graph over the labels mapped to one tag
// or to the union of several tags. Sub-graphs are never updated in place;
// they are rebuilt by the next materialization of the same key and become
// stale as soon as the tag membership they were built from changes.
package tags
