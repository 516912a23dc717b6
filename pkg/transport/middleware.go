package transport

import "context"

// Middleware decorates a ChatHandler.
type Middleware func(ChatHandler) ChatHandler

// Chain composes middlewares so that Chain(a, b)(h) == a(b(h)): the first
// middleware sees the request first. Nil entries are skipped.
func Chain(middlewares ...Middleware) Middleware {
	return func(h ChatHandler) ChatHandler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			if mw := middlewares[i]; mw != nil {
				h = mw(h)
			}
		}
		return h
	}
}

type requestIDKey struct{}

// RequestIDFromContext returns the request ID stored in ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ContextWithRequestID stores id in ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}
