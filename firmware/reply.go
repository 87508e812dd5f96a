package firmware

import (
	"bytes"
	"io"
	"sync"
)

// ReplyWriter serializes everything sent back to the host. It notes
// whether a command already produced its own "ok" line so the manager
// does not acknowledge it twice.
type ReplyWriter struct {
	mu      sync.Mutex
	w       io.Writer
	replied bool
}

// NewReplyWriter wraps the host-bound side of the transport
func NewReplyWriter(w io.Writer) *ReplyWriter {
	return &ReplyWriter{w: w}
}

// Write sends status output produced while dispatching a command
func (r *ReplyWriter) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if bytes.HasPrefix(p, []byte("ok")) {
		r.replied = true
	}
	return r.w.Write(p)
}

// Send writes a line without affecting the acknowledgement state
func (r *ReplyWriter) Send(line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := io.WriteString(r.w, line)
	return err
}

func (r *ReplyWriter) begin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replied = false
}

// finish acknowledges the command unless it already did
func (r *ReplyWriter) finish() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.replied {
		return nil
	}
	_, err := io.WriteString(r.w, "ok\r\n")
	return err
}
