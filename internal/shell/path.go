package shell

import (
	"strings"

	"github.com/koustreak/s3shell/internal/errs"
	"github.com/koustreak/s3shell/internal/filestore"
)

// Path is a location in the virtual tree, as segments relative to the
// shell root. The empty Path is the root itself.
type Path []string

// ParsePath splits a slash separated path into segments, dropping empty
// segments so "/a//b/" and "a/b" are the same Path.
func ParsePath(p string) Path {
	var out Path
	for _, seg := range strings.Split(p, filestore.Delimiter) {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// Child returns a new Path with name appended. p is not modified.
func (p Path) Child(name string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, name)
}

func (p Path) String() string {
	return strings.Join(p, filestore.Delimiter)
}

// Translator maps Paths onto object keys under an optional root prefix.
// It is immutable and safe to share.
type Translator struct {
	root string
}

// NewTranslator returns a Translator rooted at root. Leading and trailing
// delimiters on root are ignored.
func NewTranslator(root string) Translator {
	return Translator{root: strings.Trim(root, filestore.Delimiter)}
}

// Root returns the normalised root prefix.
func (t Translator) Root() string {
	return t.root
}

// Key returns the object key for p. Directory keys carry a trailing
// delimiter unless they resolve to the bucket root.
func (t Translator) Key(p Path, isDir bool) string {
	chunks := make([]string, 0, len(p)+2)
	if t.root != "" {
		chunks = append(chunks, t.root)
	}
	chunks = append(chunks, p...)
	if isDir && len(chunks) > 0 {
		chunks = append(chunks, "")
	}
	return strings.Join(chunks, filestore.Delimiter)
}

// PublicPath renders p for messages and logs, without the root prefix.
func (t Translator) PublicPath(p Path) string {
	return p.String()
}

// Validate rejects segments that would make key translation ambiguous.
func (t Translator) Validate(p Path) error {
	for _, seg := range p {
		switch {
		case seg == "", seg == ".", seg == "..":
			return errs.Newf(errs.ErrKindInvalidInput, "invalid path segment %q in %q", seg, t.PublicPath(p))
		case strings.Contains(seg, filestore.Delimiter):
			return errs.Newf(errs.ErrKindInvalidInput, "path segment %q contains %q", seg, filestore.Delimiter)
		}
	}
	return nil
}
