package shell

import (
	"context"
	"io/fs"
	"sort"

	"github.com/koustreak/s3shell/internal/errs"
	"github.com/koustreak/s3shell/internal/logger"
)

// Permission bits Dropbox reports instead of the base shell's.
const (
	dropboxRead  fs.FileMode = 0o400
	dropboxWrite fs.FileMode = 0o200
	dropboxExec  fs.FileMode = 0o100
)

// Dropbox restricts a Shell to a drop-folder layout: the root holds exactly
// one level of folders, and only the folders named in the upload list accept
// writes, deletes and renames. Folders cannot be created or removed.
type Dropbox struct {
	base          Shell
	uploadFolders map[string]struct{}
	log           *logger.Logger
}

// NewDropbox wraps base. uploadFolders names the top-level folders that are
// writable.
func NewDropbox(base Shell, uploadFolders []string, log *logger.Logger) *Dropbox {
	if log == nil {
		log = logger.Nop()
	}
	folders := make(map[string]struct{}, len(uploadFolders))
	for _, f := range uploadFolders {
		folders[f] = struct{}{}
	}
	return &Dropbox{base: base, uploadFolders: folders, log: log}
}

// UploadFolders returns the writable folder names, sorted.
func (d *Dropbox) UploadFolders() []string {
	out := make([]string, 0, len(d.uploadFolders))
	for f := range d.uploadFolders {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// IsDir reports whether p is one of the top-level folders.
func (d *Dropbox) IsDir(p Path) bool {
	return len(p) == 1
}

// IsWritable reports whether p lives in an upload folder.
func (d *Dropbox) IsWritable(p Path) bool {
	if len(p) == 0 {
		return false
	}
	_, ok := d.uploadFolders[p[0]]
	return ok
}

// Permissions returns the mode bits reported for p.
func (d *Dropbox) Permissions(p Path) fs.FileMode {
	perm := dropboxRead
	if d.IsWritable(p) {
		perm |= dropboxWrite
	}
	if d.IsDir(p) {
		perm |= dropboxExec
	}
	return perm
}

func (d *Dropbox) MakeDirectory(ctx context.Context, p Path) error {
	return d.deny(p, "mkdir", "directories are fixed")
}

func (d *Dropbox) RemoveDirectory(ctx context.Context, p Path) error {
	return d.deny(p, "rmdir", "directories are fixed")
}

func (d *Dropbox) RemoveFile(ctx context.Context, p Path) error {
	if err := d.assertWritable(p, "remove"); err != nil {
		return err
	}
	return d.base.RemoveFile(ctx, p)
}

func (d *Dropbox) Rename(ctx context.Context, from, to Path) error {
	if d.IsDir(from) {
		return d.deny(from, "rename", "directories are fixed")
	}
	if d.IsDir(to) {
		return d.deny(to, "rename", "directories are fixed")
	}
	if err := d.assertWritable(from, "rename"); err != nil {
		return err
	}
	if err := d.assertWritable(to, "rename"); err != nil {
		return err
	}
	return d.base.Rename(ctx, from, to)
}

func (d *Dropbox) OpenForWriting(ctx context.Context, p Path) (*Writer, error) {
	if err := d.assertWritable(p, "write"); err != nil {
		return nil, err
	}
	return d.base.OpenForWriting(ctx, p)
}

func (d *Dropbox) OpenForReading(ctx context.Context, p Path) (*Reader, error) {
	return d.base.OpenForReading(ctx, p)
}

func (d *Dropbox) Access(ctx context.Context, p Path) error {
	return d.base.Access(ctx, p)
}

func (d *Dropbox) Stat(ctx context.Context, p Path, fields []Field) ([]any, error) {
	values, err := d.base.Stat(ctx, p, fields)
	if err != nil {
		return nil, err
	}
	d.rewritePermissions(p, fields, values)
	return values, nil
}

func (d *Dropbox) List(ctx context.Context, p Path, fields []Field) ([]Entry, error) {
	entries, err := d.base.List(ctx, p, fields)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		d.rewritePermissions(p.Child(e.Name), fields, e.Values)
	}
	return entries, nil
}

var _ Shell = (*Dropbox)(nil)

func (d *Dropbox) rewritePermissions(p Path, fields []Field, values []any) {
	for i, f := range fields {
		if f == FieldPermissions && i < len(values) {
			values[i] = d.Permissions(p)
		}
	}
}

// assertWritable allows mutation only of files directly inside an upload
// folder, so the visible tree never grows past one directory level.
func (d *Dropbox) assertWritable(p Path, op string) error {
	switch {
	case !d.IsWritable(p):
		return d.deny(p, op, "not an upload folder")
	case d.IsDir(p):
		return d.deny(p, op, "directories are fixed")
	case len(p) != 2:
		return d.deny(p, op, "nested paths are not allowed")
	}
	return nil
}

// deny logs the refusal for auditing and returns PermissionDenied.
func (d *Dropbox) deny(p Path, op, reason string) error {
	public := p.String()
	d.log.WarnWith("access denied", map[string]any{
		"op":     op,
		"path":   public,
		"reason": reason,
	})
	return errs.Newf(errs.ErrKindPermissionDenied, "%s %s: permission denied", op, public)
}
