package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/koustreak/s3shell/internal/accounts"
	"github.com/koustreak/s3shell/internal/config"
	"github.com/koustreak/s3shell/internal/errs"
	"github.com/koustreak/s3shell/internal/filestore/memory"
	"github.com/koustreak/s3shell/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const memoryConfig = `
store:
  provider: memory
staging:
  dir: %s
accounts:
  - identity: alice
    bucket: home
  - identity: drop
    bucket: home
    policy: dropbox
    upload_folders: [incoming]
`

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "s3shell.yaml")
	data := strings.Replace(memoryConfig, "%s", dir, 1)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

// newTestApp opens the memory-backed app the way run does.
func newTestApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	cfg, err := config.Load(writeConfig(t))
	require.NoError(t, err)

	a, err := open(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	out := &bytes.Buffer{}
	a.stdout = out
	a.stdin = strings.NewReader("")
	return a, out
}

func TestRun_Version(t *testing.T) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}

	code := run(context.Background(), []string{"version"}, nil, stdout, stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "s3shell dev")
}

func TestRun_Usage(t *testing.T) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}

	assert.Equal(t, 2, run(context.Background(), nil, nil, stdout, stderr))
	assert.Contains(t, stderr.String(), "usage: s3shell")
}

func TestRun_MissingConfig(t *testing.T) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	code := run(context.Background(), []string{"-config", missing, "-as", "alice", "ls"}, nil, stdout, stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "failed to read config")
}

func TestRun_ClientCommand(t *testing.T) {
	path := writeConfig(t)
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}

	code := run(context.Background(), []string{"-config", path, "-as", "alice", "mkdir", "/docs"}, nil, stdout, stderr)
	assert.Equal(t, 0, code, stderr.String())

	code = run(context.Background(), []string{"-config", path, "-as", "mallory", "ls"}, nil, stdout, stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "unknown identity")

	code = run(context.Background(), []string{"-config", path, "-as", "alice", "frobnicate"}, nil, stdout, stderr)
	assert.Equal(t, 2, code)
}

func TestCommands_RoundTrip(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.runCommand(ctx, "alice", "mkdir", []string{"/docs"}))

	a.stdin = strings.NewReader("0123456789")
	require.NoError(t, a.runCommand(ctx, "alice", "put", []string{"-", "/docs/a.txt"}))

	out.Reset()
	require.NoError(t, a.runCommand(ctx, "alice", "ls", []string{"/docs"}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	assert.Equal(t, []string{"-rw-r--r--", "0", "memory", "nobody", "10", "-", "a.txt"}, strings.Fields(lines[0]))

	out.Reset()
	require.NoError(t, a.runCommand(ctx, "alice", "stat", []string{"/docs"}))
	assert.Equal(t, "drwxr-xr-x 0 nobody nobody 0 - /docs\n", out.String())

	require.NoError(t, a.runCommand(ctx, "alice", "mv", []string{"/docs/a.txt", "/docs/b.txt"}))

	out.Reset()
	require.NoError(t, a.runCommand(ctx, "alice", "get", []string{"/docs/b.txt"}))
	assert.Equal(t, "0123456789", out.String())

	local := filepath.Join(t.TempDir(), "b.txt")
	require.NoError(t, a.runCommand(ctx, "alice", "get", []string{"/docs/b.txt", local}))
	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	require.NoError(t, a.runCommand(ctx, "alice", "rm", []string{"/docs/b.txt"}))
	require.NoError(t, a.runCommand(ctx, "alice", "rmdir", []string{"/docs"}))
	assert.Empty(t, a.store.(*memory.Store).Keys("home"))
}

func TestCommands_PutFromFile(t *testing.T) {
	a, _ := newTestApp(t)
	local := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(local, []byte("from disk"), 0o600))

	require.NoError(t, a.runCommand(context.Background(), "drop", "put", []string{local, "/incoming/in.txt"}))
	assert.Equal(t, []string{"incoming/in.txt"}, a.store.(*memory.Store).Keys("home"))

	err := a.runCommand(context.Background(), "drop", "put", []string{local, "/outgoing/in.txt"})
	assert.True(t, errs.IsPermissionDenied(err))
}

func TestCommands_ArgumentChecks(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	assert.True(t, errs.IsInvalidInput(a.runCommand(ctx, "alice", "mv", []string{"/only-one"})))
	assert.True(t, errs.IsInvalidInput(a.runCommand(ctx, "alice", "ls", []string{"/a", "/b"})))
	assert.True(t, errs.IsInvalidInput(a.runCommand(ctx, "", "ls", nil)))
	assert.True(t, errs.IsUnauthorized(a.runCommand(ctx, "mallory", "ls", nil)))
}

func TestOpenSource(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Accounts = []accounts.Account{{Identity: "alice", Bucket: "home"}}

	src, err := openSource(context.Background(), cfg)
	require.NoError(t, err)
	list, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)

	cfg.AccountsSource.Driver = "ldap"
	_, err = openSource(context.Background(), cfg)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestCommands_LinkAndBuckets(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()

	a.stdin = strings.NewReader("data")
	require.NoError(t, a.runCommand(ctx, "alice", "put", []string{"-", "/a.txt"}))

	out.Reset()
	require.NoError(t, a.runCommand(ctx, "drop", "link", []string{"/a.txt", "5m"}))
	assert.True(t, strings.HasPrefix(out.String(), "memory://home/a.txt?expires="))

	assert.True(t, errs.IsInvalidInput(a.runCommand(ctx, "alice", "link", []string{"/a.txt", "later"})))

	out.Reset()
	require.NoError(t, a.runCommand(ctx, "", "buckets", nil))
	assert.Contains(t, out.String(), "home")
	assert.True(t, errs.IsInvalidInput(a.runCommand(ctx, "", "buckets", []string{"x"})))
}
