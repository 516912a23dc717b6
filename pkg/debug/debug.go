// Package debug holds DataGem's process logger setup and category-gated
// debug output.
//
// Categories choose which subsystems log debug lines (DATAGEM_DEBUG or
// logging.debug, comma separated, "all" for everything). The level decides
// how much reaches the handler (DATAGEM_LOG_LEVEL or logging.level). At
// TRACE, generated programs and upstream request bodies are logged too.
//
//	debug.Log(debug.Sandbox, "spawned", "pid", pid, "dir", dir)
package debug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Categories.
const (
	Providers   = "providers"
	Engine      = "engine"
	Tools       = "tools"
	Sandbox     = "sandbox"
	Credentials = "credentials"
	Storage     = "storage"
	Transport   = "transport"
	All         = "all"
)

// LevelTrace sits below slog.LevelDebug.
const LevelTrace = slog.LevelDebug - 4

// enabled is written by Init and read without locking afterwards.
var enabled = parseCategories(os.Getenv("DATAGEM_DEBUG"))

// Options configures the process logger. DATAGEM_DEBUG and
// DATAGEM_LOG_LEVEL override Categories and Level.
type Options struct {
	Categories string
	Level      string
	Format     string    // "text" (default) or "json"
	Output     io.Writer // default os.Stderr
}

// Init installs the default slog logger and the enabled categories.
func Init(opts Options) {
	enabled = parseCategories(envOr("DATAGEM_DEBUG", opts.Categories))

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	ho := &slog.HandlerOptions{Level: ParseLevel(envOr("DATAGEM_LOG_LEVEL", opts.Level))}

	var h slog.Handler = slog.NewTextHandler(out, ho)
	if strings.EqualFold(opts.Format, "json") {
		h = slog.NewJSONHandler(out, ho)
	}
	slog.SetDefault(slog.New(h))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Enabled reports whether category logs debug lines.
func Enabled(category string) bool {
	return enabled[All] || enabled[category]
}

// Log writes a debug line tagged with category, if it is enabled.
func Log(category, msg string, args ...any) {
	if Enabled(category) {
		slog.Debug(msg, append([]any{"debug", category}, args...)...)
	}
}

// Trace is Log at LevelTrace.
func Trace(category, msg string, args ...any) {
	if Enabled(category) {
		slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
	}
}

// TraceIsEnabled reports whether Trace output of category would be shown.
// Use it to skip building large values.
func TraceIsEnabled(category string) bool {
	return Enabled(category) && slog.Default().Enabled(context.Background(), LevelTrace)
}

// Raw prints text to stderr unformatted when TraceIsEnabled(category).
// Multi-line program listings stay readable this way.
func Raw(category, text string) {
	if TraceIsEnabled(category) {
		fmt.Fprintln(os.Stderr, text)
	}
}

// ParseLevel maps TRACE, DEBUG, INFO, WARN(ING) and ERROR to slog levels,
// ignoring case. Anything else is INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Truncate shortens s to maxLen bytes plus "...".
func Truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

func parseCategories(s string) map[string]bool {
	set := map[string]bool{}
	for _, c := range strings.Split(s, ",") {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			set[c] = true
		}
	}
	return set
}
