package transport

import (
	"context"

	"github.com/rhuss/datagem/pkg/api"
)

// ChatHandler handles one chat request. The implementation announces the
// session through ChunkWriter.Begin and then writes the answer chunk by
// chunk. An error returned before Begin is reported to the client as a
// JSON error; after Begin the handler reports failures in-stream.
type ChatHandler interface {
	Chat(ctx context.Context, req *api.ChatRequest, w ChunkWriter) error
}

// ChatHandlerFunc is an adapter that allows using an ordinary function
// as a ChatHandler.
type ChatHandlerFunc func(ctx context.Context, req *api.ChatRequest, w ChunkWriter) error

// Chat calls f(ctx, req, w).
func (f ChatHandlerFunc) Chat(ctx context.Context, req *api.ChatRequest, w ChunkWriter) error {
	return f(ctx, req, w)
}

// ChunkWriter abstracts the chunked plain-text output of the chat endpoint.
//
// Begin must be called exactly once before the first chunk; it commits
// the response headers. WriteChunk sends one chunk and flushes it to the
// client. It returns an error once the client has gone away.
type ChunkWriter interface {
	Begin(sessionID string) error
	WriteChunk(chunk string) error
}
