// Package accounts describes the login identities s3shell serves and turns
// them into a shell.Realm.
//
// Accounts come from a Source: a static list (usually from the YAML config)
// or a table in PostgreSQL or MySQL. Every account is bound to one bucket,
// an optional key prefix and a policy:
//
//	accounts:
//	  - identity: alice
//	    bucket: home
//	    root: users/alice
//	    policy: full
//	  - identity: drop
//	    bucket: exchange
//	    policy: dropbox
//	    upload_folders: [incoming]
package accounts

import (
	"context"
	"strings"

	"github.com/koustreak/s3shell/internal/errs"
)

// Policy selects the shell an account is given.
type Policy string

const (
	// PolicyFull grants the plain shell: every operation on the bucket tree.
	PolicyFull Policy = "full"

	// PolicyDropbox grants the drop-folder shell: read everywhere, write only
	// inside UploadFolders, no directory changes.
	PolicyDropbox Policy = "dropbox"
)

// Account is one login identity and the shell it maps to.
type Account struct {
	Identity      string   `yaml:"identity"`
	Bucket        string   `yaml:"bucket"`
	Root          string   `yaml:"root"`
	Policy        Policy   `yaml:"policy"`
	UploadFolders []string `yaml:"upload_folders"`
}

// Validate checks a single account. An empty policy is read as full.
func (a *Account) Validate() error {
	if strings.TrimSpace(a.Identity) == "" {
		return errs.New(errs.ErrKindInvalidInput, "account identity is required")
	}
	if a.Bucket == "" {
		return errs.Newf(errs.ErrKindInvalidInput, "account %q: bucket is required", a.Identity)
	}
	switch a.Policy {
	case "", PolicyFull:
		if len(a.UploadFolders) > 0 {
			return errs.Newf(errs.ErrKindInvalidInput, "account %q: upload_folders requires the dropbox policy", a.Identity)
		}
	case PolicyDropbox:
		for _, f := range a.UploadFolders {
			if f == "" || strings.Contains(f, "/") {
				return errs.Newf(errs.ErrKindInvalidInput, "account %q: upload folder %q must be a single path segment", a.Identity, f)
			}
		}
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "account %q: unknown policy %q", a.Identity, a.Policy)
	}
	return nil
}

// Source loads the configured accounts.
type Source interface {
	Load(ctx context.Context) ([]Account, error)
	Close() error
}

// Static is a Source over a fixed list.
type Static []Account

func (s Static) Load(ctx context.Context) ([]Account, error) {
	out := make([]Account, len(s))
	copy(out, s)
	return out, nil
}

func (s Static) Close() error { return nil }

var _ Source = Static(nil)

// SplitFolders parses the comma separated upload folder column used by the
// SQL sources. Blank entries are dropped.
func SplitFolders(column string) []string {
	if strings.TrimSpace(column) == "" {
		return nil
	}
	parts := strings.Split(column, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
