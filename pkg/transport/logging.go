package transport

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rhuss/datagem/pkg/api"
)

// Logging emits one entry per chat when the handler returns. Failed chats
// log at error level; chats stopped by the client log at info.
//
// Method, path and status belong to the HTTP layer and are not logged here.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest, w ChunkWriter) error {
			start := time.Now()
			err := next.Chat(ctx, req, w)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.Int("message_len", len(req.Message)),
				slog.Int("dataset_rows", len(req.Dataset)),
				slog.Duration("duration", time.Since(start)),
			}
			switch {
			case err == nil:
				logger.LogAttrs(ctx, slog.LevelInfo, "chat request completed", attrs...)
			case errors.Is(err, context.Canceled):
				logger.LogAttrs(ctx, slog.LevelInfo, "chat request cancelled", attrs...)
			default:
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "chat request failed", attrs...)
			}
			return err
		})
	}
}
