// Package memory provides an in-process implementation of filestore.Store.
//
// It follows S3 listing semantics closely enough for the shell to run
// against it unchanged: keys are listed in byte order, and a delimited
// listing groups everything past the next "/" into a common prefix.
// It is used by tests and by the "memory" provider for local runs.
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/koustreak/s3shell/internal/errs"
	"github.com/koustreak/s3shell/internal/filestore"
)

// DefaultOwner is reported as the owner of every object unless overridden.
const DefaultOwner = "memory"

type storedObject struct {
	data []byte
	info filestore.ObjectInfo
}

type bucket struct {
	created time.Time
	objects map[string]*storedObject
}

// Store is a goroutine-safe in-memory object store.
type Store struct {
	mu      sync.RWMutex
	owner   string
	buckets map[string]*bucket
	now     func() time.Time
}

// New returns an empty store that reports owner on every object.
func New(owner string) *Store {
	if owner == "" {
		owner = DefaultOwner
	}
	return &Store{
		owner:   owner,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// CreateBucket adds an empty bucket. Creating an existing bucket is a no-op.
func (s *Store) CreateBucket(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[name]; ok {
		return
	}
	s.buckets[name] = &bucket{created: s.now(), objects: make(map[string]*storedObject)}
}

// Keys returns every key in bucket in sorted order.
func (s *Store) Keys(bucketName string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[bucketName]
	if !ok {
		return nil
	}
	return sortedKeys(b)
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) ListBuckets(ctx context.Context) ([]filestore.BucketInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]filestore.BucketInfo, 0, len(s.buckets))
	for name, b := range s.buckets {
		out = append(out, filestore.BucketInfo{Name: name, CreatedAt: b.created})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListObjects(ctx context.Context, bucketName string, opts filestore.ListOptions) ([]filestore.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindTimeout, "failed to list objects", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := s.bucket(bucketName)
	if err != nil {
		return nil, err
	}

	var (
		results []filestore.ObjectInfo
		lastPfx string
	)
	for _, key := range sortedKeys(b) {
		if !strings.HasPrefix(key, opts.Prefix) || key <= opts.Marker {
			continue
		}

		if !opts.Recursive {
			rest := key[len(opts.Prefix):]
			if i := strings.Index(rest, filestore.Delimiter); i >= 0 {
				pfx := opts.Prefix + rest[:i+1]
				if pfx == lastPfx {
					continue
				}
				lastPfx = pfx
				results = append(results, filestore.ObjectInfo{Key: pfx, IsDir: true})
				if opts.Limit > 0 && len(results) >= opts.Limit {
					break
				}
				continue
			}
		}

		results = append(results, b.objects[key].info)
		if opts.Limit > 0 && len(results) >= opts.Limit {
			break
		}
	}
	return results, nil
}

func (s *Store) GetObject(ctx context.Context, bucketName, key string) (filestore.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, err := s.object(bucketName, key)
	if err != nil {
		return nil, err
	}
	info := obj.info
	return &object{
		ReadCloser: io.NopCloser(bytes.NewReader(obj.data)),
		info:       &info,
	}, nil
}

func (s *Store) StatObject(ctx context.Context, bucketName, key string) (*filestore.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, err := s.object(bucketName, key)
	if err != nil {
		return nil, err
	}
	info := obj.info
	return &info, nil
}

func (s *Store) PutObject(ctx context.Context, bucketName, key string, r io.Reader, size int64) (*filestore.ObjectInfo, error) {
	if key == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "empty object key")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindIO, "failed to read object body", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return nil, errs.Newf(errs.ErrKindIO, "short object body: got %d bytes, want %d", len(data), size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.bucket(bucketName)
	if err != nil {
		return nil, err
	}
	sum := md5.Sum(data)
	obj := &storedObject{
		data: data,
		info: filestore.ObjectInfo{
			Key:          key,
			Size:         int64(len(data)),
			ContentType:  "application/octet-stream",
			ETag:         hex.EncodeToString(sum[:]),
			Owner:        s.owner,
			LastModified: s.now(),
		},
	}
	b.objects[key] = obj
	info := obj.info
	return &info, nil
}

func (s *Store) CopyObject(ctx context.Context, bucketName, srcKey, dstKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.object(bucketName, srcKey)
	if err != nil {
		return err
	}
	dst := &storedObject{data: append([]byte(nil), src.data...), info: src.info}
	dst.info.Key = dstKey
	dst.info.LastModified = s.now()
	s.buckets[bucketName].objects[dstKey] = dst
	return nil
}

func (s *Store) RemoveObject(ctx context.Context, bucketName, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.bucket(bucketName)
	if err != nil {
		return err
	}
	delete(b.objects, key)
	return nil
}

func (s *Store) PresignGetURL(ctx context.Context, bucketName, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.object(bucketName, key); err != nil {
		return "", err
	}
	expires := s.now().Add(ttl).Unix()
	return fmt.Sprintf("memory://%s/%s?expires=%d", url.PathEscape(bucketName), url.PathEscape(key), expires), nil
}

var _ filestore.Store = (*Store)(nil)

// bucket and object must be called with s.mu held.
func (s *Store) bucket(name string) (*bucket, error) {
	b, ok := s.buckets[name]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "no such bucket %q", name)
	}
	return b, nil
}

func (s *Store) object(bucketName, key string) (*storedObject, error) {
	b, err := s.bucket(bucketName)
	if err != nil {
		return nil, err
	}
	obj, ok := b.objects[key]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "no such key %q", key)
	}
	return obj, nil
}

func sortedKeys(b *bucket) []string {
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type object struct {
	io.ReadCloser
	info *filestore.ObjectInfo
}

func (o *object) Info() *filestore.ObjectInfo {
	return o.info
}
