package gateway

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/koustreak/s3shell/internal/errs"
	"github.com/koustreak/s3shell/internal/logger"
	"github.com/koustreak/s3shell/internal/shell"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindDirectoryNotEmpty:
		return http.StatusConflict
	case errs.ErrKindNotImplemented:
		return http.StatusNotImplemented
	case errs.ErrKindInvalidInput:
		return http.StatusBadRequest
	case errs.ErrKindUnauthorized:
		return http.StatusUnauthorized
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case errs.ErrKindIO, errs.ErrKindConnectionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).ErrorWith("request failed", err, map[string]any{
			"path":   r.URL.Path,
			"status": status,
		})
	}
	writeJSON(w, status, errorResponse{Error: errs.KindOf(err).String(), Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// responseConsumer feeds a download into an HTTP response, flushing after
// every chunk so the client sees data as it arrives. It never pauses the
// producer: a slow client blocks Write, which holds the pump in place, and a
// failed Write ends the transfer.
type responseConsumer struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu      sync.Mutex
	written int64
}

func newResponseConsumer(w http.ResponseWriter) *responseConsumer {
	return &responseConsumer{w: w, rc: http.NewResponseController(w)}
}

func (c *responseConsumer) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.mu.Lock()
	c.written += int64(n)
	c.mu.Unlock()
	if err != nil {
		return n, err
	}
	// not every writer can flush; the data still goes out when the handler returns
	_ = c.rc.Flush()
	return n, nil
}

func (c *responseConsumer) RegisterProducer(shell.Producer, bool) {}

func (c *responseConsumer) UnregisterProducer() {}

// Written is the number of body bytes handed to the response.
func (c *responseConsumer) Written() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written
}

var _ shell.Consumer = (*responseConsumer)(nil)
