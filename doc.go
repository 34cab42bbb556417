// Package hnswtag provides an in-memory HNSW index for approximate nearest
// neighbor search with tag-filtered sub-graphs.
//
// Elements are float32 vectors identified by caller-chosen uint64 labels.
// Labels can carry any number of uint64 tags. A tag, or a union of tags,
// can be indexed as its own small HNSW sub-graph so that filtered queries
// only ever visit members of the filter.
//
// # Quick Start
//
//	idx, _ := hnswtag.New(distance.SpaceCosine, 384, 100_000)
//	_ = idx.AddItems(ctx, vectors, nil) // labels 0..n-1
//	results, _ := idx.KNNQuery(ctx, queries, 10)
//
// # Tags
//
//	_ = idx.AddTags([]uint64{1, 5, 9}, 42)
//	_ = idx.IndexTagged(ctx, 42)                // build the sub-graph of tag 42
//	res, _ := idx.SearchTagged(ctx, 42, q, 10)  // only labels tagged 42
//
//	_ = idx.IndexCrossTagged(ctx, []uint64{42, 43})
//	res, _ = idx.SearchCrossTagged(ctx, []uint64{42, 43}, q, 10)
//
// A tag set needs more than M members to be indexed. Adding tags marks the
// affected sub-graphs stale; a stale sub-graph must be rebuilt before it can
// be searched again. Sub-graphs that were never built are materialized on
// first search unless WithLazySubgraphs(false) is given.
//
// # Persistence
//
// Save, SaveFile and SaveBlob write the graph and the tag table in a single
// checksummed stream, optionally compressed with zstd or lz4. Sub-graphs are
// not saved. The blobstore package provides local, in-memory, S3 and MinIO
// backends for SaveBlob and LoadBlob.
//
//	_ = idx.SaveFile("index.hnt")
//	idx, _ = hnswtag.LoadFile("index.hnt", distance.SpaceCosine, 384)
//
// # Concurrency
//
// All methods are safe for concurrent use. AddItems and KNNQuery spread
// their work over a worker pool sized by WithNumThreads.
package hnswtag
