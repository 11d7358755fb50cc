package shell

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/koustreak/s3shell/internal/errs"
	"github.com/koustreak/s3shell/internal/filestore"
	"github.com/koustreak/s3shell/internal/logger"
)

// uploadChunkSize bounds every read of the staging file during upload.
const uploadChunkSize = 64 << 10

// Writer spools an upload to a local staging file and stores it as a single
// object on Close. Writes are not safe for concurrent use.
type Writer struct {
	ctx    context.Context
	store  filestore.Store
	bucket string
	key    string
	log    *logger.Logger

	file *os.File
	size int64

	once sync.Once
	err  error
}

func newWriter(ctx context.Context, store filestore.Store, bucket, key, stagingDir string, log *logger.Logger) (*Writer, error) {
	f, err := os.CreateTemp(stagingDir, "s3shell-upload-*")
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindIO, "failed to allocate staging file", err)
	}
	return &Writer{
		ctx:    ctx,
		store:  store,
		bucket: bucket,
		key:    key,
		log:    log,
		file:   f,
	}, nil
}

// Key is the object key the upload will be stored at.
func (w *Writer) Key() string {
	return w.key
}

// StagingPath is the local file the upload is spooled to.
func (w *Writer) StagingPath() string {
	return w.file.Name()
}

// Write appends p to the staging file.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	w.size += int64(n)
	if err != nil {
		return n, errs.Wrap(errs.ErrKindIO, "failed to write staging file", err)
	}
	return n, nil
}

// ReadFrom spools everything from r, so io.Copy into a Writer skips the
// intermediate buffer.
func (w *Writer) ReadFrom(r io.Reader) (int64, error) {
	n, err := io.Copy(w.file, r)
	w.size += n
	if err != nil {
		return n, errs.Wrap(errs.ErrKindIO, "failed to write staging file", err)
	}
	return n, nil
}

// Close uploads the staged bytes using the context the writer was opened
// with. See CloseContext.
func (w *Writer) Close() error {
	return w.CloseContext(w.ctx)
}

// CloseContext uploads the staged bytes as the object body and removes the
// staging file. Upload failures are logged and returned; nothing has been
// stored when CloseContext fails. Later calls return the first result.
func (w *Writer) CloseContext(ctx context.Context) error {
	w.once.Do(func() {
		w.err = w.upload(ctx)
	})
	return w.err
}

// Abort discards the staged bytes without uploading.
func (w *Writer) Abort() {
	w.once.Do(func() {
		w.err = errs.New(errs.ErrKindIO, "upload aborted")
		w.file.Close()
		os.Remove(w.file.Name())
	})
}

func (w *Writer) upload(ctx context.Context) error {
	name := w.file.Name()
	defer os.Remove(name)

	if err := w.file.Close(); err != nil {
		return w.fail(errs.Wrap(errs.ErrKindIO, "failed to flush staging file", err))
	}

	f, err := os.Open(name)
	if err != nil {
		return w.fail(errs.Wrap(errs.ErrKindIO, "failed to reopen staging file", err))
	}
	defer f.Close()

	body := &chunkReader{r: f, n: uploadChunkSize}
	if _, err := w.store.PutObject(ctx, w.bucket, w.key, body, w.size); err != nil {
		return w.fail(storeErr(err, "upload of "+w.key+" failed"))
	}

	w.log.DebugWith("upload stored", map[string]any{"key": w.key, "size": w.size})
	return nil
}

func (w *Writer) fail(err error) error {
	w.log.ErrorWith("upload failed", err, map[string]any{
		"bucket": w.bucket,
		"key":    w.key,
		"size":   w.size,
	})
	return err
}

// chunkReader caps every Read at n bytes.
type chunkReader struct {
	r io.Reader
	n int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(p) > c.n {
		p = p[:c.n]
	}
	return c.r.Read(p)
}
