package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/koustreak/s3shell/internal/errs"
	"github.com/koustreak/s3shell/internal/shell"
)

// command is one client subcommand run against an identity's shell.
type command struct {
	args int // required positional arguments
	opt  int // optional positional arguments after the required ones
	run  func(ctx context.Context, a *app, sh shell.Shell, args []string) error
}

var commands = map[string]command{
	"ls":    {0, 1, cmdList},
	"stat":  {1, 0, cmdStat},
	"get":   {1, 1, cmdGet},
	"put":   {2, 0, cmdPut},
	"mv":    {2, 0, cmdMove},
	"rm":    {1, 0, cmdRemove},
	"mkdir": {1, 0, cmdMakeDir},
	"rmdir": {1, 0, cmdRemoveDir},
	"link":  {1, 1, cmdLink},
}

// storeCommands run against the store itself and need no identity.
var storeCommands = map[string]func(ctx context.Context, a *app) error{
	"buckets": cmdBuckets,
}

func (a *app) runCommand(ctx context.Context, identity, name string, args []string) error {
	if run, ok := storeCommands[name]; ok {
		if len(args) != 0 {
			return errs.Newf(errs.ErrKindInvalidInput, "%s takes no arguments", name)
		}
		return run(ctx, a)
	}

	c, ok := commands[name]
	if !ok {
		return errs.Newf(errs.ErrKindInvalidInput, "unknown command %q", name)
	}
	if len(args) < c.args || len(args) > c.args+c.opt {
		return errs.Newf(errs.ErrKindInvalidInput, "%s takes %d to %d arguments, got %d", name, c.args, c.args+c.opt, len(args))
	}
	if identity == "" {
		return errs.New(errs.ErrKindInvalidInput, "-as is required for client commands")
	}

	sh, err := a.realm.Shell(identity)
	if err != nil {
		return err
	}
	return c.run(ctx, a, sh, args)
}

func cmdList(ctx context.Context, a *app, sh shell.Shell, args []string) error {
	var p shell.Path
	if len(args) == 1 {
		p = shell.ParsePath(args[0])
	}

	entries, err := sh.List(ctx, p, shell.AllFields)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 1, ' ', 0)
	for _, e := range entries {
		fmt.Fprintln(tw, strings.Join(formatFields(e.Name, e.Values), "\t"))
	}
	return tw.Flush()
}

func cmdStat(ctx context.Context, a *app, sh shell.Shell, args []string) error {
	p := shell.ParsePath(args[0])
	values, err := sh.Stat(ctx, p, shell.AllFields)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout, strings.Join(formatFields("/"+p.String(), values), " "))
	return err
}

// formatFields renders an AllFields projection as the columns of ls -l.
func formatFields(name string, v []any) []string {
	isDir, _ := v[0].(bool)
	perm, _ := v[1].(fs.FileMode)
	if isDir {
		perm |= fs.ModeDir
	}
	links, _ := v[2].(int)
	owner, _ := v[3].(string)
	group, _ := v[4].(string)
	size, _ := v[5].(int64)
	modified, _ := v[6].(time.Time)

	stamp := "-"
	if !modified.IsZero() {
		stamp = modified.Format(time.DateTime)
	}
	return []string{
		perm.String(),
		strconv.Itoa(links),
		owner,
		group,
		strconv.FormatInt(size, 10),
		stamp,
		name,
	}
}

func cmdGet(ctx context.Context, a *app, sh shell.Shell, args []string) error {
	r, err := sh.OpenForReading(ctx, shell.ParsePath(args[0]))
	if err != nil {
		return err
	}

	out := a.stdout
	if len(args) == 2 && args[1] != "-" {
		f, err := os.Create(args[1])
		if err != nil {
			r.Close()
			return errs.Wrap(errs.ErrKindIO, "failed to create local file", err)
		}
		defer f.Close()
		out = f
	}

	return <-r.Send(ctx, &writerConsumer{w: out})
}

func cmdPut(ctx context.Context, a *app, sh shell.Shell, args []string) error {
	in := a.stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return errs.Wrap(errs.ErrKindIO, "failed to open local file", err)
		}
		defer f.Close()
		in = f
	}

	w, err := sh.OpenForWriting(ctx, shell.ParsePath(args[1]))
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, in); err != nil {
		w.Abort()
		return errs.Wrap(errs.ErrKindIO, "failed to read upload", err)
	}
	return w.Close()
}

func cmdMove(ctx context.Context, a *app, sh shell.Shell, args []string) error {
	return sh.Rename(ctx, shell.ParsePath(args[0]), shell.ParsePath(args[1]))
}

func cmdRemove(ctx context.Context, a *app, sh shell.Shell, args []string) error {
	return sh.RemoveFile(ctx, shell.ParsePath(args[0]))
}

func cmdMakeDir(ctx context.Context, a *app, sh shell.Shell, args []string) error {
	return sh.MakeDirectory(ctx, shell.ParsePath(args[0]))
}

func cmdRemoveDir(ctx context.Context, a *app, sh shell.Shell, args []string) error {
	return sh.RemoveDirectory(ctx, shell.ParsePath(args[0]))
}

func cmdLink(ctx context.Context, a *app, sh shell.Shell, args []string) error {
	l, ok := sh.(shell.Linker)
	if !ok {
		return errs.New(errs.ErrKindNotImplemented, "links are not supported by this shell")
	}

	var ttl time.Duration
	if len(args) == 2 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, "invalid ttl", err)
		}
		ttl = d
	}

	u, err := l.Link(ctx, shell.ParsePath(args[0]), ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout, u)
	return err
}

func cmdBuckets(ctx context.Context, a *app) error {
	buckets, err := a.store.ListBuckets(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 1, ' ', 0)
	for _, b := range buckets {
		created := "-"
		if !b.CreatedAt.IsZero() {
			created = b.CreatedAt.Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\n", created, b.Name)
	}
	return tw.Flush()
}

// writerConsumer sends a download into a plain io.Writer. It never pauses
// the producer.
type writerConsumer struct {
	w io.Writer
}

func (c *writerConsumer) Write(p []byte) (int, error) {
	return c.w.Write(p)
}

func (c *writerConsumer) RegisterProducer(shell.Producer, bool) {}

func (c *writerConsumer) UnregisterProducer() {}

var _ shell.Consumer = (*writerConsumer)(nil)
