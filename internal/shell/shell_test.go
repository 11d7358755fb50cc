package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/koustreak/s3shell/internal/errs"
	"github.com/koustreak/s3shell/internal/filestore"
	"github.com/koustreak/s3shell/internal/filestore/memory"
	"github.com/koustreak/s3shell/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBucket = "files"

func newStore(t *testing.T, objects map[string]string) *memory.Store {
	t.Helper()
	store := memory.New("tester")
	store.CreateBucket(testBucket)
	for key, body := range objects {
		_, err := store.PutObject(context.Background(), testBucket, key, strings.NewReader(body), int64(len(body)))
		require.NoError(t, err)
	}
	return store
}

func newCore(t *testing.T, store filestore.Store, root string) *Core {
	t.Helper()
	return New(store, Options{Bucket: testBucket, Root: root, StagingDir: t.TempDir()})
}

// faultStore fails selected operations and records the order of mutations.
type faultStore struct {
	filestore.Store

	copyErr   error
	removeErr error
	putErr    error

	mu    sync.Mutex
	calls []string
}

func (f *faultStore) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *faultStore) CopyObject(ctx context.Context, bucket, src, dst string) error {
	f.record("copy " + src + " " + dst)
	if f.copyErr != nil {
		return f.copyErr
	}
	return f.Store.CopyObject(ctx, bucket, src, dst)
}

func (f *faultStore) RemoveObject(ctx context.Context, bucket, key string) error {
	f.record("remove " + key)
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.Store.RemoveObject(ctx, bucket, key)
}

func (f *faultStore) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64) (*filestore.ObjectInfo, error) {
	f.record("put " + key)
	if f.putErr != nil {
		return nil, f.putErr
	}
	return f.Store.PutObject(ctx, bucket, key, r, size)
}

func TestList_SkipsOwnMarker(t *testing.T) {
	store := newStore(t, map[string]string{
		"a/":      "",
		"a/b.txt": "0123456789",
	})
	sh := newCore(t, store, "")

	entries, err := sh.List(context.Background(), Path{"a"}, []Field{FieldSize, FieldDirectory})
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Name: "b.txt", Values: []any{int64(10), false}}}, entries)
}

func TestList_MixedEntries(t *testing.T) {
	store := newStore(t, map[string]string{
		"docs/":           "",
		"docs/readme.md":  "hello",
		"docs/img/a.png":  "png",
		"docs/empty/":     "",
		"docsx/other.txt": "x",
	})
	sh := newCore(t, store, "")

	entries, err := sh.List(context.Background(), Path{"docs"}, []Field{FieldDirectory, FieldPermissions, FieldOwner})
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Name: "empty", Values: []any{true, dirMode, "nobody"}},
		{Name: "img", Values: []any{true, dirMode, "nobody"}},
		{Name: "readme.md", Values: []any{false, fileMode, "tester"}},
	}, entries)
}

func TestList_Root(t *testing.T) {
	store := newStore(t, map[string]string{"a/b.txt": "x", "top.txt": "y"})
	sh := newCore(t, store, "")

	entries, err := sh.List(context.Background(), nil, []Field{FieldDirectory})
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Name: "a", Values: []any{true}},
		{Name: "top.txt", Values: []any{false}},
	}, entries)
}

func TestList_ConfinedToRoot(t *testing.T) {
	store := newStore(t, map[string]string{
		"home/alice/":       "",
		"home/alice/f.txt":  "f",
		"home/bob/g.txt":    "g",
		"home/alice2/h.txt": "h",
	})
	sh := newCore(t, store, "home/alice")

	entries, err := sh.List(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "f.txt", entries[0].Name)
}

func TestList_MissingBucket(t *testing.T) {
	sh := New(memory.New(""), Options{Bucket: "absent"})

	_, err := sh.List(context.Background(), nil, nil)
	// a missing bucket is reported by the store as NotFound and keeps that kind
	assert.True(t, errs.IsNotFound(err))
}

func TestStat(t *testing.T) {
	store := newStore(t, map[string]string{
		"a/":          "",
		"a/b.txt":     "0123456789",
		"ab.txt":      "z",
		"implicit/x":  "x",
		"a-sibling/y": "y",
	})
	sh := newCore(t, store, "")
	ctx := context.Background()
	fields := []Field{FieldDirectory, FieldSize, FieldPermissions}

	tests := []struct {
		name string
		path Path
		want []any
	}{
		{"file", Path{"a", "b.txt"}, []any{false, int64(10), fileMode}},
		{"marked directory", Path{"a"}, []any{true, int64(0), dirMode}},
		{"implicit directory", Path{"implicit"}, []any{true, int64(0), dirMode}},
		{"root", nil, []any{true, int64(0), dirMode}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sh.Stat(ctx, tt.path, fields)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, missing := range []Path{{"nope"}, {"a", "b"}, {"ab"}} {
		_, err := sh.Stat(ctx, missing, fields)
		assert.True(t, errs.IsNotFound(err), "stat %v", missing)
	}
}

func TestAccess(t *testing.T) {
	store := newStore(t, map[string]string{"d/": "", "e/f.txt": "x", "g.txt": "y"})
	sh := newCore(t, store, "")
	ctx := context.Background()

	assert.NoError(t, sh.Access(ctx, nil))
	assert.NoError(t, sh.Access(ctx, Path{"d"}))
	assert.NoError(t, sh.Access(ctx, Path{"e"}))
	assert.True(t, errs.IsNotFound(sh.Access(ctx, Path{"missing"})))
	assert.True(t, errs.IsNotFound(sh.Access(ctx, Path{"g.txt"})))
	assert.True(t, errs.IsInvalidInput(sh.Access(ctx, Path{".."})))
}

func TestMakeThenRemoveDirectory(t *testing.T) {
	store := newStore(t, nil)
	sh := newCore(t, store, "")
	ctx := context.Background()

	require.NoError(t, sh.MakeDirectory(ctx, Path{"empty"}))
	assert.Equal(t, []string{"empty/"}, store.Keys(testBucket))

	require.NoError(t, sh.RemoveDirectory(ctx, Path{"empty"}))
	assert.Empty(t, store.Keys(testBucket))
}

func TestMakeDirectory_Root(t *testing.T) {
	sh := newCore(t, newStore(t, nil), "")
	assert.True(t, errs.IsInvalidInput(sh.MakeDirectory(context.Background(), nil)))
}

func TestRemoveDirectory(t *testing.T) {
	tests := []struct {
		name    string
		objects map[string]string
		wantErr func(error) bool
		remain  []string
	}{
		{
			name:   "nothing there is a no-op",
			remain: []string{},
		},
		{
			name:    "subdirectory blocks removal",
			objects: map[string]string{"d/sub/x": "x"},
			wantErr: errs.IsDirectoryNotEmpty,
			remain:  []string{"d/sub/x"},
		},
		{
			name:    "marker plus file blocks removal",
			objects: map[string]string{"d/": "", "d/f.txt": "f"},
			wantErr: errs.IsDirectoryNotEmpty,
			remain:  []string{"d/", "d/f.txt"},
		},
		{
			name:    "lone file without marker blocks removal",
			objects: map[string]string{"d/f.txt": "f"},
			wantErr: errs.IsDirectoryNotEmpty,
			remain:  []string{"d/f.txt"},
		},
		{
			name:    "lone marker is deleted",
			objects: map[string]string{"d/": "", "other.txt": "o"},
			remain:  []string{"other.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t, tt.objects)
			sh := newCore(t, store, "")

			err := sh.RemoveDirectory(context.Background(), Path{"d"})
			if tt.wantErr != nil {
				assert.True(t, tt.wantErr(err), "unexpected error %v", err)
			} else {
				assert.NoError(t, err)
			}
			remain := store.Keys(testBucket)
			if remain == nil {
				remain = []string{}
			}
			assert.Equal(t, tt.remain, remain)
		})
	}
}

func TestRemoveFile(t *testing.T) {
	store := newStore(t, map[string]string{"a/b.txt": "x", "a/c.txt": "y"})
	sh := newCore(t, store, "")

	require.NoError(t, sh.RemoveFile(context.Background(), Path{"a", "b.txt"}))
	assert.Equal(t, []string{"a/c.txt"}, store.Keys(testBucket))
}

func TestRename_File(t *testing.T) {
	store := newStore(t, map[string]string{"x.txt": "payload"})
	sh := newCore(t, store, "")
	ctx := context.Background()

	require.NoError(t, sh.Rename(ctx, Path{"x.txt"}, Path{"y.txt"}))

	_, err := sh.Stat(ctx, Path{"y.txt"}, nil)
	assert.NoError(t, err)
	_, err = sh.Stat(ctx, Path{"x.txt"}, nil)
	assert.True(t, errs.IsNotFound(err))
}

func TestRename_MissingFile(t *testing.T) {
	sh := newCore(t, newStore(t, nil), "")

	err := sh.Rename(context.Background(), Path{"ghost.txt"}, Path{"y.txt"})
	assert.True(t, errs.IsNotFound(err))
}

func TestRename_EmptyDirectory(t *testing.T) {
	store := newStore(t, map[string]string{"dir/": ""})
	sh := newCore(t, store, "")

	require.NoError(t, sh.Rename(context.Background(), Path{"dir"}, Path{"dir2"}))
	assert.Equal(t, []string{"dir2/"}, store.Keys(testBucket))
}

func TestRename_NonEmptyDirectory(t *testing.T) {
	tests := []struct {
		name    string
		objects map[string]string
	}{
		{"two files", map[string]string{"dir/a.txt": "a", "dir/b.txt": "b"}},
		{"marker and file", map[string]string{"dir/": "", "dir/a.txt": "a"}},
		{"subdirectory", map[string]string{"dir/sub/a.txt": "a"}},
		{"single file without marker", map[string]string{"dir/a.txt": "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t, tt.objects)
			sh := newCore(t, store, "")
			before := store.Keys(testBucket)

			err := sh.Rename(context.Background(), Path{"dir"}, Path{"dir2"})
			assert.True(t, errs.IsNotImplemented(err), "unexpected error %v", err)
			assert.Equal(t, before, store.Keys(testBucket))
		})
	}
}

func TestRenameFile_CopyFailureLeavesSource(t *testing.T) {
	fs := &faultStore{Store: newStore(t, map[string]string{"x.txt": "x"}), copyErr: errors.New("copy refused")}
	sh := newCore(t, fs, "")

	err := sh.Rename(context.Background(), Path{"x.txt"}, Path{"y.txt"})
	assert.True(t, errs.IsIO(err))
	assert.Equal(t, []string{"copy x.txt y.txt"}, fs.calls)
	assert.Equal(t, []string{"x.txt"}, fs.Store.(*memory.Store).Keys(testBucket))
}

func TestRenameFile_DeleteFailureLeavesBoth(t *testing.T) {
	fs := &faultStore{Store: newStore(t, map[string]string{"x.txt": "x"}), removeErr: errors.New("delete refused")}
	sh := newCore(t, fs, "")

	err := sh.Rename(context.Background(), Path{"x.txt"}, Path{"y.txt"})
	assert.True(t, errs.IsIO(err))
	assert.Equal(t, []string{"copy x.txt y.txt", "remove x.txt"}, fs.calls)
	assert.Equal(t, []string{"x.txt", "y.txt"}, fs.Store.(*memory.Store).Keys(testBucket))
}

func TestRenameEmptyDirectory_PartialFailure(t *testing.T) {
	fs := &faultStore{Store: newStore(t, map[string]string{"dir/": ""}), putErr: errors.New("put refused")}
	sh := newCore(t, fs, "")

	err := sh.Rename(context.Background(), Path{"dir"}, Path{"dir2"})
	assert.True(t, errs.IsIO(err))
	// both sub-steps were issued; the delete went through, so neither path exists
	assert.ElementsMatch(t, []string{"remove dir/", "put dir2/"}, fs.calls)
	assert.Empty(t, fs.Store.(*memory.Store).Keys(testBucket))
}

func TestRename_RootRejected(t *testing.T) {
	sh := newCore(t, newStore(t, nil), "")
	assert.True(t, errs.IsInvalidInput(sh.Rename(context.Background(), nil, Path{"x"})))
	assert.True(t, errs.IsInvalidInput(sh.Rename(context.Background(), Path{"x"}, nil)))
}

func TestOpenForReading(t *testing.T) {
	body := strings.Repeat("0123456789", 10_000)
	store := newStore(t, map[string]string{"big.bin": body})
	sh := newCore(t, store, "")
	ctx := context.Background()

	r, err := sh.OpenForReading(ctx, Path{"big.bin"})
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), r.Size())

	c := &recordingConsumer{}
	require.NoError(t, waitDone(t, r.Send(ctx, c)))
	assert.Equal(t, body, c.String())

	_, err = sh.OpenForReading(ctx, Path{"missing.bin"})
	assert.True(t, errs.IsNotFound(err))
}

func TestOpenForWriting_RoundTrip(t *testing.T) {
	store := newStore(t, nil)
	sh := newCore(t, store, "home")
	ctx := context.Background()

	w, err := sh.OpenForWriting(ctx, Path{"up", "file.txt"})
	require.NoError(t, err)
	assert.Equal(t, "home/up/file.txt", w.Key())

	_, err = io.Copy(w, bytes.NewReader([]byte("hello world")))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	got, err := sh.Stat(ctx, Path{"up", "file.txt"}, []Field{FieldSize})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(11)}, got)
}

func TestCore_LogsWithBucketContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.New(&logger.Config{Level: "debug", Format: "json", Output: buf})
	sh := New(newStore(t, nil), Options{Bucket: testBucket, Logger: log})

	require.NoError(t, sh.MakeDirectory(context.Background(), Path{"d"}))
	assert.Contains(t, buf.String(), `"bucket":"files"`)
	assert.Contains(t, buf.String(), "directory created")
}
