package shell

import (
	"context"
	"time"

	"github.com/koustreak/s3shell/internal/errs"
)

// DefaultLinkTTL is used when Link is asked for a non-positive lifetime.
const DefaultLinkTTL = 15 * time.Minute

// Linker is implemented by shells that can hand out a time-limited URL for
// downloading a file directly from the store.
type Linker interface {
	Link(ctx context.Context, p Path, ttl time.Duration) (string, error)
}

// Link returns a presigned download URL for the file at p.
func (c *Core) Link(ctx context.Context, p Path, ttl time.Duration) (string, error) {
	if err := c.checkNonRoot(p); err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}

	key := c.tr.Key(p, false)
	if _, err := c.store.StatObject(ctx, c.bucket, key); err != nil {
		return "", storeErr(err, "link "+c.tr.PublicPath(p))
	}

	u, err := c.store.PresignGetURL(ctx, c.bucket, key, ttl)
	if err != nil {
		return "", storeErr(err, "link "+c.tr.PublicPath(p))
	}
	c.log.DebugWith("link issued", map[string]any{"key": key, "ttl": ttl.String()})
	return u, nil
}

// Link passes through to the wrapped shell; reads are never gated.
func (d *Dropbox) Link(ctx context.Context, p Path, ttl time.Duration) (string, error) {
	l, ok := d.base.(Linker)
	if !ok {
		return "", errs.New(errs.ErrKindNotImplemented, "links are not supported by this shell")
	}
	return l.Link(ctx, p, ttl)
}

var (
	_ Linker = (*Core)(nil)
	_ Linker = (*Dropbox)(nil)
)
