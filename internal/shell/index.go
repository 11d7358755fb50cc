package shell

import (
	"context"
	"io/fs"
	"strings"
	"time"

	"github.com/koustreak/s3shell/internal/filestore"
)

// Field names one column of a stat record.
type Field string

const (
	FieldSize        Field = "size"
	FieldDirectory   Field = "directory"
	FieldPermissions Field = "permissions"
	FieldHardlinks   Field = "hardlinks"
	FieldModified    Field = "modified"
	FieldOwner       Field = "owner"
	FieldGroup       Field = "group"
)

// AllFields lists every field in the order directory listings print them.
var AllFields = []Field{
	FieldDirectory, FieldPermissions, FieldHardlinks, FieldOwner, FieldGroup, FieldSize, FieldModified,
}

const (
	dirMode  fs.FileMode = 0o755
	fileMode fs.FileMode = 0o644

	// Placeholder for owners and groups the store does not report.
	nobody = "nobody"
)

// StatRecord is the synthesised metadata of one listing entry. The store has
// no notion of link counts or directory timestamps, so HardLinks is always 0
// and Modified is the zero time.
type StatRecord struct {
	Name        string
	IsDir       bool
	Size        int64
	Permissions fs.FileMode
	Owner       string
	Group       string
	HardLinks   int
	Modified    time.Time
}

// Values projects r onto fields, in order. Unknown fields yield nil.
func (r StatRecord) Values(fields []Field) []any {
	out := make([]any, len(fields))
	for i, f := range fields {
		switch f {
		case FieldSize:
			out[i] = r.Size
		case FieldDirectory:
			out[i] = r.IsDir
		case FieldPermissions:
			out[i] = r.Permissions
		case FieldHardlinks:
			out[i] = r.HardLinks
		case FieldModified:
			out[i] = r.Modified
		case FieldOwner:
			out[i] = r.Owner
		case FieldGroup:
			out[i] = r.Group
		}
	}
	return out
}

// index answers listing and stat queries with prefix+delimiter listings.
type index struct {
	store  filestore.Store
	bucket string
	tr     Translator
}

// probe lists up to limit entries directly under the directory form of p.
func (ix index) probe(ctx context.Context, p Path, limit int) ([]filestore.ObjectInfo, string, error) {
	prefix := ix.tr.Key(p, true)
	items, err := ix.store.ListObjects(ctx, ix.bucket, filestore.ListOptions{
		Prefix: prefix,
		Limit:  limit,
	})
	return items, prefix, err
}

// list returns the records directly under p, excluding p's own marker.
func (ix index) list(ctx context.Context, p Path) ([]StatRecord, error) {
	items, prefix, err := ix.probe(ctx, p, 0)
	if err != nil {
		return nil, err
	}

	records := make([]StatRecord, 0, len(items))
	for _, it := range items {
		rec, ok := classify(it, prefix)
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// stat resolves p to a single record. A stored file key sorts ahead of every
// other key sharing its prefix, so one item under the file key settles the
// file case; otherwise any item under the directory key makes p a directory.
// Both queries are bounded to a single item however many siblings share the
// name prefix.
func (ix index) stat(ctx context.Context, p Path) (StatRecord, bool, error) {
	if len(p) == 0 {
		return StatRecord{IsDir: true, Permissions: dirMode, Owner: nobody, Group: nobody}, true, nil
	}

	fileKey := ix.tr.Key(p, false)
	items, err := ix.store.ListObjects(ctx, ix.bucket, filestore.ListOptions{Prefix: fileKey, Limit: 1})
	if err != nil {
		return StatRecord{}, false, err
	}
	if len(items) == 1 && items[0].Key == fileKey && !items[0].IsDir {
		rec, ok := classify(items[0], "")
		return rec, ok, nil
	}

	items, dirKey, err := ix.probe(ctx, p, 1)
	if err != nil {
		return StatRecord{}, false, err
	}
	if len(items) == 0 {
		return StatRecord{}, false, nil
	}
	rec, ok := classify(filestore.ObjectInfo{Key: dirKey, IsDir: true}, "")
	return rec, ok, nil
}

// classify turns one listing item into a StatRecord. It reports false for the
// queried directory's own marker and for items it cannot name.
func classify(it filestore.ObjectInfo, prefix string) (StatRecord, bool) {
	if it.Key == "" || (prefix != "" && it.Key == prefix) {
		return StatRecord{}, false
	}

	rec := StatRecord{Owner: nobody, Group: nobody}

	// A marker reached through a recursive or exact-key query is still a
	// directory.
	if it.IsDir || strings.HasSuffix(it.Key, filestore.Delimiter) {
		rec.IsDir = true
		rec.Permissions = dirMode
		rec.Name = lastSegment(strings.TrimSuffix(it.Key, filestore.Delimiter))
	} else {
		rec.Permissions = fileMode
		rec.Name = lastSegment(it.Key)
		rec.Size = it.Size
		if it.Owner != "" {
			rec.Owner = it.Owner
		}
	}

	if rec.Name == "" {
		return StatRecord{}, false
	}
	return rec, true
}

func lastSegment(key string) string {
	if i := strings.LastIndex(key, filestore.Delimiter); i >= 0 {
		return key[i+1:]
	}
	return key
}
