// Package gateway exposes per-identity shells over HTTP.
//
// The gateway trusts a front proxy to authenticate callers and pass the
// identity in a header (X-Shell-Identity by default). Paths under /fs/ are
// shell paths:
//
//	GET    /fs/a/         list a directory as JSON
//	GET    /fs/a/b.txt    download a file (?link=1 returns a presigned URL)
//	HEAD   /fs/a/b.txt    stat
//	PUT    /fs/a/b.txt    upload
//	DELETE /fs/a/b.txt    remove a file (?dir=1 removes an empty directory)
//	POST   /fs/a?mkdir=1  create a directory
//	POST   /fs/a?rename_to=/c
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/koustreak/s3shell/internal/errs"
	"github.com/koustreak/s3shell/internal/filestore"
	"github.com/koustreak/s3shell/internal/logger"
	"github.com/koustreak/s3shell/internal/shell"
)

const (
	// DefaultIdentityHeader carries the caller identity when Options does
	// not name another header.
	DefaultIdentityHeader = "X-Shell-Identity"

	requestIDHeader = "X-Request-ID"
	fsPrefix        = "/fs"
)

// Options configures a Gateway.
type Options struct {
	IdentityHeader string
	Logger         *logger.Logger

	// Store, when set, is pinged by /healthz.
	Store filestore.Store
}

// Gateway routes HTTP requests to the shell of the calling identity.
type Gateway struct {
	realm          *shell.Realm
	store          filestore.Store
	identityHeader string
	log            *logger.Logger
	router         chi.Router
}

// New builds the gateway router over realm.
func New(realm *shell.Realm, opts Options) *Gateway {
	g := &Gateway{
		realm:          realm,
		store:          opts.Store,
		identityHeader: opts.IdentityHeader,
		log:            opts.Logger,
	}
	if g.identityHeader == "" {
		g.identityHeader = DefaultIdentityHeader
	}
	if g.log == nil {
		g.log = logger.Nop()
	}

	r := chi.NewRouter()
	r.Use(g.requestID)
	r.Use(g.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", g.handleHealth)

	r.Route(fsPrefix, func(r chi.Router) {
		r.Use(g.authenticate)
		for _, pattern := range []string{"/", "/*"} {
			r.Get(pattern, g.handleGet)
			r.Head(pattern, g.handleHead)
			r.Put(pattern, g.handlePut)
			r.Delete(pattern, g.handleDelete)
			r.Post(pattern, g.handlePost)
		}
	})

	g.router = r
	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.router.ServeHTTP(w, r)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if g.store != nil {
		if err := g.store.Ping(r.Context()); err != nil {
			logger.FromContext(r.Context()).ErrorWith("store ping failed", err, nil)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"identities": len(g.realm.Identities()),
	})
}

// --- middleware ---

type ctxKey int

const shellKey ctxKey = iota

// requestID tags the request and its logger with an ID, reusing the one the
// caller sent if any.
func (g *Gateway) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		reqLog := g.log.With().Str("request_id", id).Logger()
		next.ServeHTTP(w, r.WithContext(reqLog.WithContext(r.Context())))
	})
}

func (g *Gateway) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		logger.FromContext(r.Context()).Request().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// authenticate resolves the identity header to a shell.
func (g *Gateway) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := r.Header.Get(g.identityHeader)
		if identity == "" {
			writeError(w, r, errs.Newf(errs.ErrKindUnauthorized, "missing %s header", g.identityHeader))
			return
		}
		sh, err := g.realm.Shell(identity)
		if err != nil {
			writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), shellKey, sh)
		reqLog := logger.FromContext(ctx).With().Str("identity", identity).Logger()
		next.ServeHTTP(w, r.WithContext(reqLog.WithContext(ctx)))
	})
}

func shellFrom(ctx context.Context) shell.Shell {
	sh, _ := ctx.Value(shellKey).(shell.Shell)
	return sh
}
