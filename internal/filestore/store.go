// Package filestore defines the unified interface for object storage backends.
//
// All providers (MinIO / S3, the in-memory store, …) implement the Store
// interface. The shell depends only on this package, never on a specific
// provider package.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	items, err := store.ListObjects(ctx, "uploads", filestore.ListOptions{Prefix: "drop/"})
package filestore

import (
	"context"
	"io"
	"time"
)

// Delimiter is the key separator every provider groups common prefixes on.
const Delimiter = "/"

// Store is the single interface all object storage providers must implement.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources (connections, goroutines, etc.).
	Close() error

	// ListBuckets returns all buckets accessible with the configured credentials.
	ListBuckets(ctx context.Context) ([]BucketInfo, error)

	// ListObjects returns the objects in bucket that match opts, in key order.
	// Common prefixes are included as IsDir entries when opts.Recursive is false.
	ListObjects(ctx context.Context, bucket string, opts ListOptions) ([]ObjectInfo, error)

	// GetObject opens a streaming handle to the object at key inside bucket.
	// The caller MUST call Object.Close() after reading.
	GetObject(ctx context.Context, bucket, key string) (Object, error)

	// StatObject returns metadata for the object at key inside bucket
	// without downloading its content.
	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)

	// PutObject uploads size bytes read from r as the object at key,
	// replacing any existing object.
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64) (*ObjectInfo, error)

	// CopyObject server-side copies srcKey to dstKey within bucket.
	CopyObject(ctx context.Context, bucket, srcKey, dstKey string) error

	// RemoveObject deletes the object at key. Deleting a missing key is not an error.
	RemoveObject(ctx context.Context, bucket, key string) error

	// PresignGetURL returns a time-limited URL that allows anyone to download
	// the object at key inside bucket without credentials.
	PresignGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}
