package shell

import (
	"sort"

	"github.com/koustreak/s3shell/internal/errs"
)

// Realm resolves an authenticated identity to its pre-configured Shell. It
// is populated once at startup and read-only afterwards.
type Realm struct {
	shells map[string]Shell
}

// NewRealm copies shells into a new Realm.
func NewRealm(shells map[string]Shell) *Realm {
	m := make(map[string]Shell, len(shells))
	for id, sh := range shells {
		m[id] = sh
	}
	return &Realm{shells: m}
}

// Shell returns the shell bound to identity, or an Unauthorized error.
func (r *Realm) Shell(identity string) (Shell, error) {
	sh, ok := r.shells[identity]
	if !ok {
		return nil, errs.Newf(errs.ErrKindUnauthorized, "unknown identity %q", identity)
	}
	return sh, nil
}

// Identities returns the configured identities, sorted.
func (r *Realm) Identities() []string {
	ids := make([]string, 0, len(r.shells))
	for id := range r.shells {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
