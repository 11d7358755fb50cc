package shell

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/koustreak/s3shell/internal/errs"
)

// Producer is the flow-control side of a transfer. Consumers call these to
// apply backpressure.
type Producer interface {
	PauseProducing()
	ResumeProducing()
	StopProducing()
}

// Consumer receives the bytes of a download. RegisterProducer and
// UnregisterProducer are always called as a pair around the transfer.
type Consumer interface {
	Write(p []byte) (int, error)
	RegisterProducer(p Producer, streaming bool)
	UnregisterProducer()
}

const readChunkSize = 32 << 10

// transport pumps a response body in chunks and owns its flow control.
type transport struct {
	body io.ReadCloser

	mu      sync.Mutex
	cond    *sync.Cond
	paused  bool
	stopped bool

	closeOnce sync.Once
}

func newTransport(body io.ReadCloser) *transport {
	t := &transport{body: body}
	t.cond = sync.NewCond(&t.mu)
	return t
}

func (t *transport) PauseProducing() {
	t.mu.Lock()
	t.paused = true
	t.mu.Unlock()
}

func (t *transport) ResumeProducing() {
	t.mu.Lock()
	t.paused = false
	t.mu.Unlock()
	t.cond.Broadcast()
}

func (t *transport) StopProducing() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.cond.Broadcast()
	t.close()
}

func (t *transport) close() {
	t.closeOnce.Do(func() { t.body.Close() })
}

// gate blocks while paused and reports whether pumping may continue.
func (t *transport) gate() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.paused && !t.stopped {
		t.cond.Wait()
	}
	return !t.stopped
}

// deliver pumps the body into onData until EOF, a read or write failure,
// or a stop, then reports the outcome to onLost exactly once.
func (t *transport) deliver(onData func([]byte) error, onLost func(error)) {
	buf := make([]byte, readChunkSize)
	var reason error
	for {
		if !t.gate() {
			reason = errs.New(errs.ErrKindIO, "transfer stopped")
			break
		}
		n, err := t.body.Read(buf)
		if n > 0 {
			if werr := onData(buf[:n]); werr != nil {
				reason = errs.Wrap(errs.ErrKindIO, "consumer write failed", werr)
				break
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if t.isStopped() {
				reason = errs.New(errs.ErrKindIO, "transfer stopped")
			} else {
				reason = errs.Wrap(errs.ErrKindIO, "connection lost", err)
			}
			break
		}
	}
	t.close()
	onLost(reason)
}

func (t *transport) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Reader bridges an object download to a Consumer. It holds no buffer of its
// own: pause, resume and stop go straight to the body transport.
type Reader struct {
	transport *transport
	size      int64

	mu       sync.Mutex
	sent     bool
	consumer Consumer
	done     chan error
}

func newReader(body io.ReadCloser, size int64) *Reader {
	return &Reader{transport: newTransport(body), size: size}
}

// Size is the object size reported by the store, or -1 when unknown.
func (r *Reader) Size() int64 {
	return r.size
}

// Send streams the object into c. It may be called once; the returned
// channel yields exactly one value when the transfer ends: nil after the
// whole body was delivered, an I/O error when the connection was lost, the
// transfer was stopped, or c failed to accept a chunk. Cancelling ctx stops
// the transfer.
func (r *Reader) Send(ctx context.Context, c Consumer) <-chan error {
	r.mu.Lock()
	if r.sent {
		r.mu.Unlock()
		done := make(chan error, 1)
		done <- errs.New(errs.ErrKindInvalidInput, "Send can only be called once per reader")
		close(done)
		return done
	}
	r.sent = true
	r.consumer = c
	r.done = make(chan error, 1)
	r.mu.Unlock()

	c.RegisterProducer(r, true)
	stopOnCancel := context.AfterFunc(ctx, r.transport.StopProducing)

	go r.transport.deliver(r.dataReceived, func(reason error) {
		stopOnCancel()
		r.connectionLost(reason)
	})
	return r.done
}

// Close releases the download without sending it. It is a no-op once Send
// has been called.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.sent {
		r.sent = true
		r.transport.close()
	}
	return nil
}

func (r *Reader) PauseProducing() {
	r.transport.PauseProducing()
}

func (r *Reader) ResumeProducing() {
	r.transport.ResumeProducing()
}

func (r *Reader) StopProducing() {
	r.transport.StopProducing()
}

func (r *Reader) dataReceived(p []byte) error {
	_, err := r.consumer.Write(p)
	return err
}

func (r *Reader) connectionLost(reason error) {
	r.consumer.UnregisterProducer()
	r.done <- reason
	close(r.done)
}

var _ Producer = (*Reader)(nil)
