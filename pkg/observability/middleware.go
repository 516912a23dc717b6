package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MetricsMiddleware records datagem_requests_total and
// datagem_request_duration_seconds for every request, and holds
// datagem_streaming_connections_active up while a POST /chat is open.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := RouteLabel(r.URL.Path)
		if route == "chat" && r.Method == http.MethodPost {
			StreamingConnections.Inc()
			defer StreamingConnections.Dec()
		}

		start := time.Now()
		rec := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		RequestsTotal.WithLabelValues(r.Method, statusClass(rec.code()), route).Inc()
		RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// RouteLabel reduces a path to its first segment out of a fixed set, so
// session IDs never become label values.
func RouteLabel(path string) string {
	first, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	switch first {
	case "":
		return "root"
	case "chat", "health", "tools", "history", "metrics", "mcp":
		return first
	}
	return "other"
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// statusWriter remembers the first status code written through it.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Flush passes through so chat chunks reach the client immediately.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
