package accounts

import (
	"fmt"

	"github.com/koustreak/s3shell/internal/errs"
)

// Rows is the cursor shape shared by pgx.Rows and *sql.Rows.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// SelectQuery returns the account query for table. The table name is
// interpolated, so it is checked against a conservative identifier syntax.
func SelectQuery(table string) (string, error) {
	if !validIdentifier(table) {
		return "", errs.Newf(errs.ErrKindInvalidInput, "invalid account table name %q", table)
	}
	return fmt.Sprintf(`
		SELECT identity,
		       bucket,
		       COALESCE(root, ''),
		       COALESCE(policy, ''),
		       COALESCE(upload_folders, '')
		FROM %s
		ORDER BY identity`, table), nil
}

// ScanRows decodes every row of the account query. It does not close rows.
func ScanRows(rows Rows) ([]Account, error) {
	var out []Account
	for rows.Next() {
		var (
			a       Account
			policy  string
			folders string
		)
		if err := rows.Scan(&a.Identity, &a.Bucket, &a.Root, &policy, &folders); err != nil {
			return nil, err
		}
		a.Policy = Policy(policy)
		a.UploadFolders = SplitFolders(folders)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// validIdentifier accepts names like "accounts" or "shell.accounts".
func validIdentifier(name string) bool {
	if name == "" || len(name) > 128 {
		return false
	}
	start := true
	for _, r := range name {
		switch {
		case r == '.':
			if start {
				return false
			}
			start = true
			continue
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case r >= '0' && r <= '9':
			if start {
				return false
			}
		default:
			return false
		}
		start = false
	}
	return !start
}
