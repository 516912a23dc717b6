// Package transport defines the handler contract and middleware chain for
// the DataGem HTTP transport.
//
// ChatHandler is the contract between the transport and the streaming
// dispatcher: a chat request goes in and plain-text chunks come out
// through a ChunkWriter. The HTTP adapter in transport/http provides the
// ChunkWriter, which flushes every chunk to the client as it is written.
//
// # Middleware
//
// The middleware chain wraps ChatHandler with cross-cutting concerns.
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID), and structured logging via log/slog.
//
// InFlightRegistry maps session IDs to cancel functions so that a running
// session can be stopped with DELETE /chat/{session_id}.
package transport
