package profiler

import (
	"bytes"
	"sync"
)

// syncWriter lets a test read a buffer that a background logger writes to.
type syncWriter struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}
