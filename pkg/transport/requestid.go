package transport

import (
	"context"

	"github.com/rhuss/datagem/pkg/api"
)

// RequestID ensures every chat carries a request ID. The HTTP adapter
// already sets one from X-Request-ID; other callers get a fresh ID.
func RequestID() Middleware {
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w ChunkWriter) error {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, api.NewRequestID())
			}
			return next.Chat(ctx, req, w)
		})
	}
}
