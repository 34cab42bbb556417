// Package blobstore provides storage backends for index snapshots.
//
// A BlobStore holds named, immutable blobs. Snapshots are written through
// Create and read back through Open, so an index can be saved to and loaded
// from any backend that implements the interface.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem with mmap reads and atomic renames
//   - MemoryStore: in-memory, for tests
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible services
package blobstore
