package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/koustreak/s3shell/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccount_Validate(t *testing.T) {
	tests := []struct {
		name    string
		account Account
		wantErr bool
	}{
		{"full", Account{Identity: "alice", Bucket: "home"}, false},
		{"explicit full with root", Account{Identity: "alice", Bucket: "home", Root: "users/alice", Policy: PolicyFull}, false},
		{"dropbox", Account{Identity: "drop", Bucket: "x", Policy: PolicyDropbox, UploadFolders: []string{"incoming"}}, false},
		{"dropbox without folders is read-only", Account{Identity: "drop", Bucket: "x", Policy: PolicyDropbox}, false},
		{"missing identity", Account{Bucket: "home"}, true},
		{"blank identity", Account{Identity: "  ", Bucket: "home"}, true},
		{"missing bucket", Account{Identity: "alice"}, true},
		{"unknown policy", Account{Identity: "alice", Bucket: "home", Policy: "admin"}, true},
		{"folders on full", Account{Identity: "alice", Bucket: "home", UploadFolders: []string{"in"}}, true},
		{"nested folder", Account{Identity: "drop", Bucket: "x", Policy: PolicyDropbox, UploadFolders: []string{"in/deep"}}, true},
		{"empty folder", Account{Identity: "drop", Bucket: "x", Policy: PolicyDropbox, UploadFolders: []string{""}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.account.Validate()
			if tt.wantErr {
				assert.True(t, errs.IsInvalidInput(err), "unexpected error %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSplitFolders(t *testing.T) {
	assert.Nil(t, SplitFolders(""))
	assert.Nil(t, SplitFolders("   "))
	assert.Equal(t, []string{"incoming"}, SplitFolders("incoming"))
	assert.Equal(t, []string{"in", "scratch"}, SplitFolders(" in, ,scratch ,"))
}

func TestStatic_LoadReturnsCopy(t *testing.T) {
	src := Static{{Identity: "alice", Bucket: "home"}}

	got, err := src.Load(context.Background())
	require.NoError(t, err)
	got[0].Identity = "mallory"

	assert.Equal(t, "alice", src[0].Identity)
	assert.NoError(t, src.Close())
}

func TestSelectQuery(t *testing.T) {
	q, err := SelectQuery("shell.accounts")
	require.NoError(t, err)
	assert.Contains(t, q, "FROM shell.accounts")
	assert.Contains(t, q, "ORDER BY identity")

	for _, bad := range []string{"", "accounts; DROP TABLE x", "1accounts", "a..b", "accounts.", ".accounts", "acc-ounts"} {
		_, err := SelectQuery(bad)
		assert.True(t, errs.IsInvalidInput(err), "table %q should be rejected", bad)
	}
}

type fakeRows struct {
	data [][]string
	pos  int
	err  error
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	if len(dest) != len(row) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		*(d.(*string)) = row[i]
	}
	return nil
}

func (r *fakeRows) Err() error { return r.err }

func TestScanRows(t *testing.T) {
	rows := &fakeRows{data: [][]string{
		{"alice", "home", "users/alice", "", ""},
		{"drop", "exchange", "", "dropbox", "incoming,scratch"},
	}}

	got, err := ScanRows(rows)
	require.NoError(t, err)
	assert.Equal(t, []Account{
		{Identity: "alice", Bucket: "home", Root: "users/alice"},
		{Identity: "drop", Bucket: "exchange", Policy: PolicyDropbox, UploadFolders: []string{"incoming", "scratch"}},
	}, got)
}

func TestScanRows_IterationError(t *testing.T) {
	cause := errors.New("connection reset")
	_, err := ScanRows(&fakeRows{err: cause})
	assert.ErrorIs(t, err, cause)
}
