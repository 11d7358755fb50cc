// Package shell presents a bucket as a directory tree.
//
// Object stores are flat: keys are plain strings and "directories" exist only
// as shared key prefixes. Core translates tree operations onto the store:
//
//   - a Path maps to one key (Translator), directory keys end in "/"
//   - directories are listed with prefix+delimiter queries; an empty
//     directory is kept alive by a zero-length marker object ("dir/")
//   - renames are copy+delete for files, marker swaps for empty directories
//   - downloads stream through a Reader, uploads spool through a Writer
//
// Dropbox wraps any Shell with a one-level drop-folder policy, and Realm
// hands out the Shell configured for each login identity.
//
// Operations on the same path are not serialised against each other; a
// concurrent rename and list may observe either side of the rename, or both.
package shell

import (
	"bytes"
	"context"
	"fmt"

	"github.com/koustreak/s3shell/internal/errs"
	"github.com/koustreak/s3shell/internal/filestore"
	"github.com/koustreak/s3shell/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Shell is the set of filesystem operations a file-transfer engine drives.
// Errors are *errs.Error values with kind NotFound, PermissionDenied,
// DirectoryNotEmpty, NotImplemented, InvalidInput or IO.
type Shell interface {
	List(ctx context.Context, p Path, fields []Field) ([]Entry, error)
	Stat(ctx context.Context, p Path, fields []Field) ([]any, error)
	Access(ctx context.Context, p Path) error
	MakeDirectory(ctx context.Context, p Path) error
	RemoveDirectory(ctx context.Context, p Path) error
	RemoveFile(ctx context.Context, p Path) error
	Rename(ctx context.Context, from, to Path) error
	OpenForReading(ctx context.Context, p Path) (*Reader, error)
	OpenForWriting(ctx context.Context, p Path) (*Writer, error)
}

// Entry is one named row of a directory listing.
type Entry struct {
	Name   string
	Values []any
}

// Options configures a Core shell.
type Options struct {
	// Bucket is the bucket the shell operates on.
	Bucket string

	// Root is an optional key prefix the shell is confined to.
	Root string

	// StagingDir holds upload staging files. Empty means os.TempDir().
	StagingDir string

	// Logger receives operation and failure records. Nil means no logging.
	Logger *logger.Logger
}

// Core is the base Shell over a filestore.Store. It keeps no state between
// calls and is safe for concurrent use.
type Core struct {
	store      filestore.Store
	bucket     string
	tr         Translator
	ix         index
	stagingDir string
	log        *logger.Logger
}

// New returns a Core shell on opts.Bucket.
func New(store filestore.Store, opts Options) *Core {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	tr := NewTranslator(opts.Root)
	return &Core{
		store:      store,
		bucket:     opts.Bucket,
		tr:         tr,
		ix:         index{store: store, bucket: opts.Bucket, tr: tr},
		stagingDir: opts.StagingDir,
		log:        log.With().Str("bucket", opts.Bucket).Str("root", tr.Root()).Logger(),
	}
}

// Translator exposes the path translation in use.
func (c *Core) Translator() Translator {
	return c.tr
}

func (c *Core) MakeDirectory(ctx context.Context, p Path) error {
	if err := c.checkNonRoot(p); err != nil {
		return err
	}
	if err := c.mkdir(ctx, c.tr.Key(p, true)); err != nil {
		return storeErr(err, "mkdir "+c.tr.PublicPath(p))
	}
	c.log.DebugWith("directory created", map[string]any{"path": c.tr.PublicPath(p)})
	return nil
}

// RemoveDirectory deletes an empty directory's marker. A directory with no
// objects at all is already gone and removing it succeeds.
func (c *Core) RemoveDirectory(ctx context.Context, p Path) error {
	if err := c.checkNonRoot(p); err != nil {
		return err
	}

	items, prefix, err := c.ix.probe(ctx, p, 2)
	if err != nil {
		return storeErr(err, "rmdir "+c.tr.PublicPath(p))
	}

	switch {
	case len(items) == 0:
		return nil
	case len(items) == 1 && isMarker(items[0], prefix):
		if err := c.store.RemoveObject(ctx, c.bucket, prefix); err != nil {
			return storeErr(err, "rmdir "+c.tr.PublicPath(p))
		}
		c.log.DebugWith("directory removed", map[string]any{"path": c.tr.PublicPath(p)})
		return nil
	default:
		return errs.Newf(errs.ErrKindDirectoryNotEmpty, "directory %q is not empty", c.tr.PublicPath(p))
	}
}

func (c *Core) RemoveFile(ctx context.Context, p Path) error {
	if err := c.checkNonRoot(p); err != nil {
		return err
	}
	if err := c.store.RemoveObject(ctx, c.bucket, c.tr.Key(p, false)); err != nil {
		return storeErr(err, "remove "+c.tr.PublicPath(p))
	}
	c.log.DebugWith("file removed", map[string]any{"path": c.tr.PublicPath(p)})
	return nil
}

// Rename moves a file or an empty directory. Whether from is a directory is
// decided by probing it as a prefix: nothing under it means a file, a lone
// marker means an empty directory, anything else is a populated directory,
// which cannot be renamed.
func (c *Core) Rename(ctx context.Context, from, to Path) error {
	if err := c.checkNonRoot(from); err != nil {
		return err
	}
	if err := c.checkNonRoot(to); err != nil {
		return err
	}

	items, prefix, err := c.ix.probe(ctx, from, 2)
	if err != nil {
		return storeErr(err, "rename "+c.tr.PublicPath(from))
	}

	switch {
	case len(items) == 0:
		return c.RenameFile(ctx, from, to)
	case len(items) == 1 && isMarker(items[0], prefix):
		return c.RenameEmptyDirectory(ctx, from, to)
	default:
		return errs.Newf(errs.ErrKindNotImplemented, "cannot rename non-empty directory %q", c.tr.PublicPath(from))
	}
}

// RenameFile copies from to to and then deletes from. The delete is only
// issued after the copy succeeded; if it fails both keys remain.
func (c *Core) RenameFile(ctx context.Context, from, to Path) error {
	fromKey := c.tr.Key(from, false)
	toKey := c.tr.Key(to, false)

	if err := c.store.CopyObject(ctx, c.bucket, fromKey, toKey); err != nil {
		return storeErr(err, "rename "+c.tr.PublicPath(from))
	}
	if err := c.store.RemoveObject(ctx, c.bucket, fromKey); err != nil {
		c.log.ErrorWith("rename left source behind", err, map[string]any{"from": fromKey, "to": toKey})
		return storeErr(err, "rename "+c.tr.PublicPath(from))
	}

	c.log.DebugWith("file renamed", map[string]any{"from": c.tr.PublicPath(from), "to": c.tr.PublicPath(to)})
	return nil
}

// RenameEmptyDirectory deletes the source marker and creates the destination
// marker concurrently. It is not atomic: if one side fails, the directory
// may exist at both paths or at neither.
func (c *Core) RenameEmptyDirectory(ctx context.Context, from, to Path) error {
	fromKey := c.tr.Key(from, true)
	toKey := c.tr.Key(to, true)

	// A plain group: one side failing must not cancel the other mid-flight.
	var g errgroup.Group
	g.Go(func() error {
		return c.store.RemoveObject(ctx, c.bucket, fromKey)
	})
	g.Go(func() error {
		return c.mkdir(ctx, toKey)
	})
	if err := g.Wait(); err != nil {
		c.log.ErrorWith("directory rename failed", err, map[string]any{"from": fromKey, "to": toKey})
		return storeErr(err, "rename "+c.tr.PublicPath(from))
	}

	c.log.DebugWith("directory renamed", map[string]any{"from": c.tr.PublicPath(from), "to": c.tr.PublicPath(to)})
	return nil
}

// Access succeeds when anything exists under p. The root is always accessible.
func (c *Core) Access(ctx context.Context, p Path) error {
	if err := c.tr.Validate(p); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}

	items, _, err := c.ix.probe(ctx, p, 1)
	if err != nil {
		return storeErr(err, "access "+c.tr.PublicPath(p))
	}
	if len(items) == 0 {
		return errs.Newf(errs.ErrKindNotFound, "%s: no such directory", c.tr.PublicPath(p))
	}
	return nil
}

func (c *Core) Stat(ctx context.Context, p Path, fields []Field) ([]any, error) {
	rec, err := c.StatRecord(ctx, p)
	if err != nil {
		return nil, err
	}
	return rec.Values(fields), nil
}

// StatRecord is Stat without the field projection.
func (c *Core) StatRecord(ctx context.Context, p Path) (StatRecord, error) {
	if err := c.tr.Validate(p); err != nil {
		return StatRecord{}, err
	}

	rec, ok, err := c.ix.stat(ctx, p)
	if err != nil {
		return StatRecord{}, storeErr(err, "stat "+c.tr.PublicPath(p))
	}
	if !ok {
		return StatRecord{}, errs.Newf(errs.ErrKindNotFound, "%s: no such file or directory", c.tr.PublicPath(p))
	}
	return rec, nil
}

func (c *Core) List(ctx context.Context, p Path, fields []Field) ([]Entry, error) {
	records, err := c.ListRecords(ctx, p)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, len(records))
	for i, rec := range records {
		entries[i] = Entry{Name: rec.Name, Values: rec.Values(fields)}
	}
	return entries, nil
}

// ListRecords is List without the field projection.
func (c *Core) ListRecords(ctx context.Context, p Path) ([]StatRecord, error) {
	if err := c.tr.Validate(p); err != nil {
		return nil, err
	}

	records, err := c.ix.list(ctx, p)
	if err != nil {
		return nil, storeErr(err, "list "+c.tr.PublicPath(p))
	}
	return records, nil
}

func (c *Core) OpenForReading(ctx context.Context, p Path) (*Reader, error) {
	if err := c.checkNonRoot(p); err != nil {
		return nil, err
	}

	obj, err := c.store.GetObject(ctx, c.bucket, c.tr.Key(p, false))
	if err != nil {
		return nil, storeErr(err, "open "+c.tr.PublicPath(p))
	}

	size := int64(-1)
	if info := obj.Info(); info != nil {
		size = info.Size
	}
	return newReader(obj, size), nil
}

func (c *Core) OpenForWriting(ctx context.Context, p Path) (*Writer, error) {
	if err := c.checkNonRoot(p); err != nil {
		return nil, err
	}

	key := c.tr.Key(p, false)
	w, err := newWriter(ctx, c.store, c.bucket, key, c.stagingDir, c.log)
	if err != nil {
		c.log.ErrorWith("staging allocation failed", err, map[string]any{"key": key})
		return nil, err
	}
	return w, nil
}

var _ Shell = (*Core)(nil)

// mkdir uploads an empty marker at key, which already ends in the delimiter.
func (c *Core) mkdir(ctx context.Context, key string) error {
	_, err := c.store.PutObject(ctx, c.bucket, key, bytes.NewReader(nil), 0)
	return err
}

func (c *Core) checkNonRoot(p Path) error {
	if err := c.tr.Validate(p); err != nil {
		return err
	}
	if len(p) == 0 {
		return errs.New(errs.ErrKindInvalidInput, "operation not allowed on the root directory")
	}
	return nil
}

// isMarker reports whether it is the stored marker of the directory prefix.
func isMarker(it filestore.ObjectInfo, prefix string) bool {
	return !it.IsDir && it.Key == prefix
}

// storeErr adds operation context to a store error. NotFound, permission and
// input errors keep their kind; every other failure is an I/O failure.
func storeErr(err error, op string) error {
	switch kind := errs.KindOf(err); kind {
	case errs.ErrKindNotFound, errs.ErrKindPermissionDenied, errs.ErrKindInvalidInput, errs.ErrKindNotImplemented:
		return errs.Wrap(kind, op, err)
	}
	return errs.Wrap(errs.ErrKindIO, fmt.Sprintf("%s: storage failure", op), err)
}
