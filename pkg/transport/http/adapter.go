package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/rhuss/datagem/pkg/api"
	"github.com/rhuss/datagem/pkg/credential"
	"github.com/rhuss/datagem/pkg/debug"
	"github.com/rhuss/datagem/pkg/storage"
	"github.com/rhuss/datagem/pkg/tools"
	"github.com/rhuss/datagem/pkg/transport"
)

// WelcomeMessage is returned by GET /.
const WelcomeMessage = "Welcome to the DataGem AI Backend! Send a POST request to /chat to analyze your data."

// Adapter serves the DataGem chat API over HTTP.
// It routes requests to the appropriate handler and serializes responses.
type Adapter struct {
	handler  transport.ChatHandler
	backends Backends
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
}

// Backends are the collaborators behind the read-only endpoints. Every
// field is optional; a missing backend disables its endpoint.
type Backends struct {
	// Pool reports the credential rotation state on /health.
	Pool *credential.Pool

	// Store serves /history.
	Store storage.Store

	// Catalog lists the tool definitions served on /tools.
	Catalog func() []tools.Definition

	// Metrics is mounted at /metrics.
	Metrics http.Handler

	// MCP is mounted at /mcp.
	MCP http.Handler
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
	Validation  api.ValidationConfig
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 10 << 20, // 10 MB
		Validation:  api.DefaultValidationConfig(),
	}
}

// NewAdapter creates an HTTP adapter with the given ChatHandler and backends.
// Middleware is applied to the ChatHandler in the given order.
func NewAdapter(handler transport.ChatHandler, backends Backends, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		handler = transport.Chain(middlewares...)(handler)
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}

	a := &Adapter{
		handler:  handler,
		backends: backends,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	a.mux.HandleFunc("GET /{$}", a.handleRoot)
	a.mux.HandleFunc("POST /chat", a.handleChat)
	a.mux.HandleFunc("POST /chat/{$}", a.handleChat)
	a.mux.HandleFunc("DELETE /chat/{session_id}", a.handleCancel)
	a.mux.HandleFunc("GET /health", a.handleHealth)
	a.mux.HandleFunc("GET /tools", a.handleTools)
	a.mux.HandleFunc("GET /history", a.handleHistory)

	if backends.Metrics != nil {
		a.mux.Handle("GET /metrics", backends.Metrics)
	}
	if backends.MCP != nil {
		a.mux.Handle("/mcp", backends.MCP)
		a.mux.Handle("/mcp/", backends.MCP)
	}

	return a
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest. The returned handler includes
// HTTP-level middleware for request ID propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// InFlight returns the registry of running chat sessions.
func (a *Adapter) InFlight() *transport.InFlightRegistry {
	return a.inflight
}

// httpRequestIDMiddleware is HTTP-level middleware that propagates the
// X-Request-ID header. If present in the request, it is forwarded to
// the response. After the handler runs, it checks the context for a
// request ID (set by the transport-level RequestID middleware) and adds
// it to the response headers if not already set.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = api.NewRequestID()
		}
		r = r.WithContext(transport.ContextWithRequestID(r.Context(), id))
		rw := &requestIDResponseWriter{ResponseWriter: w, r: r}
		next.ServeHTTP(rw, r)
	})
}

// requestIDResponseWriter wraps http.ResponseWriter to inject the
// X-Request-ID header before the first write.
type requestIDResponseWriter struct {
	http.ResponseWriter
	r           *http.Request
	headersSent bool
}

func (w *requestIDResponseWriter) WriteHeader(statusCode int) {
	w.ensureRequestIDHeader()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *requestIDResponseWriter) Write(b []byte) (int, error) {
	w.ensureRequestIDHeader()
	return w.ResponseWriter.Write(b)
}

func (w *requestIDResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *requestIDResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *requestIDResponseWriter) ensureRequestIDHeader() {
	if w.headersSent {
		return
	}
	w.headersSent = true
	if id := transport.RequestIDFromContext(w.r.Context()); id != "" {
		w.ResponseWriter.Header().Set("X-Request-ID", id)
	}
}

// handleRoot handles GET /.
func (a *Adapter) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": WelcomeMessage})
}

// handleChat handles POST /chat.
func (a *Adapter) handleChat(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
				http.StatusUnsupportedMediaType,
			)
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.ChatRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	if apiErr := api.ValidateChatRequest(&req, a.config.Validation); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	req.Identity = storage.DefaultIdentity

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var sessionID string
	cw := newChunkWriter(w, func(id string) {
		sessionID = id
		a.inflight.Register(id, cancel)
	})

	err := a.handler.Chat(ctx, &req, cw)

	if sessionID != "" {
		a.inflight.Remove(sessionID)
	}

	if err != nil {
		a.writeHandlerError(w, cw, err)
	}
}

// handleCancel handles DELETE /chat/{session_id}.
func (a *Adapter) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")
	if !api.ValidateSessionID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("session_id", "malformed session ID"),
			http.StatusBadRequest,
		)
		return
	}

	if !a.inflight.Cancel(id) {
		transport.WriteAPIError(w, api.NewNotFoundError("session "+id+" is not running"))
		return
	}
	debug.Log(debug.Transport, "session cancelled", "session", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth handles GET /health. The service reports "ok" as long as
// it can answer; key exhaustion shows in the counters.
func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := api.HealthStatus{Status: "ok"}
	if a.backends.Pool != nil {
		ps := a.backends.Pool.Status()
		status.ActiveKeyIndex = ps.CurrentIndex + 1
		status.TotalKeys = ps.TotalSlots
		if ps.LastQuotaError != "" {
			msg := ps.LastQuotaError
			status.LastQuotaError = &msg
		}
	}
	writeJSON(w, http.StatusOK, status)
}

// handleTools handles GET /tools.
func (a *Adapter) handleTools(w http.ResponseWriter, r *http.Request) {
	defs := []tools.Definition{}
	if a.backends.Catalog != nil {
		defs = a.backends.Catalog()
	}
	writeJSON(w, http.StatusOK, listResponse[tools.Definition]{Object: "list", Data: defs})
}

// handleHistory handles GET /history.
func (a *Adapter) handleHistory(w http.ResponseWriter, r *http.Request) {
	if a.backends.Store == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "chat history is not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	limit := storage.DefaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			transport.WriteAPIError(w, api.NewInvalidRequestError("limit", "limit must be a positive integer"))
			return
		}
		limit = storage.NormalizeLimit(n)
	}

	user, err := a.backends.Store.GetOrCreateUser(r.Context(), storage.DefaultIdentity)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	msgs, err := a.backends.Store.History(r.Context(), user, limit)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	if msgs == nil {
		msgs = []storage.Message{}
	}
	writeJSON(w, http.StatusOK, listResponse[storage.Message]{Object: "list", Data: msgs})
}

// listResponse is the envelope of list endpoints.
type listResponse[T any] struct {
	Object string `json:"object"`
	Data   []T    `json:"data"`
}

func (a *Adapter) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		transport.WriteAPIError(w, api.NewNotFoundError(err.Error()))
		return
	}
	slog.Error("history lookup failed", "error", err)
	apiErr := transport.AsAPIError(err)
	if apiErr.Type == api.ErrorTypeServerError {
		apiErr = api.NewServerError("failed to load chat history")
	}
	transport.WriteAPIError(w, apiErr)
}

// writeHandlerError writes an error returned by the chat handler. Once the
// body has started, the status is committed, so the error is appended as a
// diagnostic chunk. Otherwise it writes a standard JSON error response.
func (a *Adapter) writeHandlerError(w http.ResponseWriter, cw *chunkWriter, err error) {
	apiErr := transport.AsAPIError(err)
	if cw.started() {
		_ = cw.WriteChunk(api.DiagnosticPrefix + apiErr.Message)
		return
	}

	transport.WriteAPIError(w, apiErr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
