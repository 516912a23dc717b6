package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/rhuss/datagem/pkg/transport"
)

// writerState tracks the state of a chunked writer.
type writerState int

const (
	writerIdle      writerState = iota // Initial state, no writes yet
	writerStreaming                    // Begin has committed the headers
	writerClosed                       // A write failed; the client is gone
)

// chunkWriter implements transport.ChunkWriter for the chat endpoint. Each
// chunk is written verbatim to a text/plain body and flushed immediately,
// so the client receives it as its own HTTP chunk.
type chunkWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu    sync.Mutex
	state writerState

	// onBegin is called with the session ID before the headers are
	// committed, for in-flight registry registration.
	onBegin func(sessionID string)
}

var _ transport.ChunkWriter = (*chunkWriter)(nil)

// newChunkWriter creates a chunk writer wrapping an http.ResponseWriter.
// The onBegin callback may be nil.
func newChunkWriter(w http.ResponseWriter, onBegin func(sessionID string)) *chunkWriter {
	return &chunkWriter{
		w:       w,
		rc:      http.NewResponseController(w),
		onBegin: onBegin,
	}
}

// Begin commits the streaming headers and the 200 status.
func (c *chunkWriter) Begin(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != writerIdle {
		return errors.New("chunk writer already started")
	}

	if c.onBegin != nil {
		c.onBegin(sessionID)
		c.onBegin = nil
	}

	h := c.w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	h.Set("X-Content-Type-Options", "nosniff")
	if sessionID != "" {
		h.Set("X-Session-ID", sessionID)
	}
	c.w.WriteHeader(http.StatusOK)
	c.state = writerStreaming

	if err := c.rc.Flush(); err != nil {
		c.state = writerClosed
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

// WriteChunk writes one chunk and flushes it.
func (c *chunkWriter) WriteChunk(chunk string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case writerIdle:
		return errors.New("cannot write chunk: Begin was not called")
	case writerClosed:
		return io.ErrClosedPipe
	}

	if chunk == "" {
		return nil
	}
	if _, err := io.WriteString(c.w, chunk); err != nil {
		c.state = writerClosed
		return fmt.Errorf("failed to write chunk: %w", err)
	}
	if err := c.rc.Flush(); err != nil {
		c.state = writerClosed
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

// started reports whether the headers have been committed.
func (c *chunkWriter) started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != writerIdle
}
