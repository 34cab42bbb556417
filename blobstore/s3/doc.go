// Package s3 provides an Amazon S3 implementation of blobstore.BlobStore.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket", func(o *s3.Options) {
//	    o.Prefix = "indexes/"
//	    o.Region = "us-east-1"
//	})
//
//	err = index.SaveBlob(ctx, store, "products.hnsw")
//
// Reads use ranged GETs. Writes stream into a multipart upload with CRC32-C
// object checksums.
package s3
