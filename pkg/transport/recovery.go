package transport

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/rhuss/datagem/pkg/api"
)

// Recovery turns a panic in the handler into a server error. The stack is
// logged; the client only sees the panic value.
func Recovery() Middleware {
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w ChunkWriter) (err error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("chat handler panicked",
						"request_id", RequestIDFromContext(ctx),
						"panic", r,
						"stack", string(debug.Stack()),
					)
					err = api.NewServerError(fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.Chat(ctx, req, w)
		})
	}
}
