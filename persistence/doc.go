// Package persistence implements the binary index format.
//
// A stream consists of a fixed envelope around a (possibly compressed) body:
//
//	magic       u32  "HNTG"
//	version     u32
//	compression u8   0=none 1=zstd 2=lz4
//	body length u64  length of the stored body in bytes
//	body             see below
//	checksum    u32  CRC32-C of the uncompressed body
//
// The body holds, in order, the graph parameters, one record per element and
// the tag table:
//
//	dim u32, space u8, capacity u64, M u32, efConstruction u32,
//	count u64, entry point i64 (-1 if empty), max level i32
//	per element: dim x f32, label u64, level u32, deleted u8,
//	             per layer 0..level: n u32, n x u32
//	nLabels u64, per label: label u64, nTags u32, nTags x u64
//	nTags u64,   per tag:   tag u64, nLabels u32, nLabels x u64
//
// All integers and floats are little-endian.
package persistence
