package gateway

import (
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/s3shell/internal/errs"
	"github.com/koustreak/s3shell/internal/logger"
	"github.com/koustreak/s3shell/internal/shell"
)

// listEntry is the JSON form of one directory listing row.
type listEntry struct {
	Name        string    `json:"name"`
	Directory   bool      `json:"directory"`
	Size        int64     `json:"size"`
	Permissions string    `json:"permissions"`
	HardLinks   int       `json:"hardlinks"`
	Owner       string    `json:"owner"`
	Group       string    `json:"group"`
	Modified    time.Time `json:"modified"`
}

type listResponse struct {
	Path    string      `json:"path"`
	Entries []listEntry `json:"entries"`
}

// listFields is the projection the gateway asks the shell for, in the order
// decodeEntry reads it.
var listFields = []shell.Field{
	shell.FieldDirectory,
	shell.FieldSize,
	shell.FieldPermissions,
	shell.FieldHardlinks,
	shell.FieldOwner,
	shell.FieldGroup,
	shell.FieldModified,
}

func decodeEntry(name string, v []any) listEntry {
	e := listEntry{Name: name}
	e.Directory, _ = v[0].(bool)
	e.Size, _ = v[1].(int64)
	if perm, ok := v[2].(fs.FileMode); ok {
		if e.Directory {
			perm |= fs.ModeDir
		}
		e.Permissions = perm.String()
	}
	e.HardLinks, _ = v[3].(int)
	e.Owner, _ = v[4].(string)
	e.Group, _ = v[5].(string)
	e.Modified, _ = v[6].(time.Time)
	return e
}

// requestPath returns the shell path addressed by r.
func requestPath(r *http.Request) shell.Path {
	return shell.ParsePath(strings.TrimPrefix(r.URL.Path, fsPrefix))
}

func (g *Gateway) handleGet(w http.ResponseWriter, r *http.Request) {
	sh := shellFrom(r.Context())
	p := requestPath(r)

	stat, err := sh.Stat(r.Context(), p, listFields)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if isDir, _ := stat[0].(bool); isDir {
		g.serveListing(w, r, sh, p)
		return
	}
	if queryFlag(r, "link") {
		g.serveLink(w, r, sh, p)
		return
	}
	g.serveFile(w, r, sh, p)
}

func (g *Gateway) serveListing(w http.ResponseWriter, r *http.Request, sh shell.Shell, p shell.Path) {
	entries, err := sh.List(r.Context(), p, listFields)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := listResponse{Path: "/" + p.String(), Entries: make([]listEntry, len(entries))}
	for i, e := range entries {
		resp.Entries[i] = decodeEntry(e.Name, e.Values)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) serveFile(w http.ResponseWriter, r *http.Request, sh shell.Shell, p shell.Path) {
	reader, err := sh.OpenForReading(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	if size := reader.Size(); size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)

	c := newResponseConsumer(w)
	if err := <-reader.Send(r.Context(), c); err != nil {
		// headers are out; the client sees a short body
		logger.FromContext(r.Context()).ErrorWith("download interrupted", err, map[string]any{
			"path":  p.String(),
			"bytes": c.Written(),
		})
	}
}

func (g *Gateway) serveLink(w http.ResponseWriter, r *http.Request, sh shell.Shell, p shell.Path) {
	l, ok := sh.(shell.Linker)
	if !ok {
		writeError(w, r, errs.New(errs.ErrKindNotImplemented, "links are not supported"))
		return
	}

	var ttl time.Duration
	if v := r.URL.Query().Get("ttl"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			writeError(w, r, errs.Wrap(errs.ErrKindInvalidInput, "invalid ttl", err))
			return
		}
		ttl = d
	}

	u, err := l.Link(r.Context(), p, ttl)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": "/" + p.String(), "url": u})
}

func (g *Gateway) handleHead(w http.ResponseWriter, r *http.Request) {
	sh := shellFrom(r.Context())
	p := requestPath(r)

	stat, err := sh.Stat(r.Context(), p, listFields)
	if err != nil {
		w.Header().Set("X-Shell-Error", errs.KindOf(err).String())
		w.WriteHeader(statusFor(err))
		return
	}

	e := decodeEntry(p.String(), stat)
	w.Header().Set("X-Shell-Directory", strconv.FormatBool(e.Directory))
	w.Header().Set("X-Shell-Permissions", e.Permissions)
	w.Header().Set("X-Shell-Owner", e.Owner)
	if !e.Directory {
		w.Header().Set("Content-Length", strconv.FormatInt(e.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
}

func (g *Gateway) handlePut(w http.ResponseWriter, r *http.Request) {
	sh := shellFrom(r.Context())
	p := requestPath(r)

	wr, err := sh.OpenForWriting(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}

	n, err := io.Copy(wr, r.Body)
	if err != nil {
		wr.Abort()
		writeError(w, r, errs.Wrap(errs.ErrKindIO, "failed to receive upload body", err))
		return
	}
	if err := wr.CloseContext(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"path": "/" + p.String(), "size": n})
}

func (g *Gateway) handleDelete(w http.ResponseWriter, r *http.Request) {
	sh := shellFrom(r.Context())
	p := requestPath(r)

	var err error
	if queryFlag(r, "dir") {
		err = sh.RemoveDirectory(r.Context(), p)
	} else {
		err = sh.RemoveFile(r.Context(), p)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handlePost(w http.ResponseWriter, r *http.Request) {
	sh := shellFrom(r.Context())
	p := requestPath(r)
	q := r.URL.Query()

	switch {
	case queryFlag(r, "mkdir"):
		if err := sh.MakeDirectory(r.Context(), p); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusCreated)

	case q.Has("rename_to"):
		if err := sh.Rename(r.Context(), p, shell.ParsePath(q.Get("rename_to"))); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, r, errs.New(errs.ErrKindInvalidInput, "POST needs mkdir=1 or rename_to"))
	}
}

func queryFlag(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}
