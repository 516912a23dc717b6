// Command sandbox-server is the remote half of the "remote" and
// "kubernetes" sandbox types. It accepts code over HTTP, runs it with the
// local subprocess executor and answers with the classified result. It is
// deployed inside agent-sandbox pods or on a separate host.
//
// Environment:
//
//	SANDBOX_PORT             listen port, default 8080
//	SANDBOX_MAX_CONCURRENT   parallel executions before 429, default 3
//	SANDBOX_INTERPRETER      interpreter command line, default python3
//	SANDBOX_TIMEOUT_SECONDS  timeout when a request sets none, default 30
//	SANDBOX_MAX_CPU_SECONDS  RLIMIT_CPU per execution, 0 disables
//	SANDBOX_MAX_MEMORY_MB    RLIMIT_AS per execution, 0 disables
//	SANDBOX_ISOLATE_NETWORK  "true" runs executions in a new network namespace
//	DATAGEM_LOG_LEVEL        log level, default INFO
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rhuss/datagem/pkg/debug"
	"github.com/rhuss/datagem/pkg/sandbox"
	"github.com/rhuss/datagem/pkg/sandbox/remote"
)

// maxRequestBytes bounds an execute request, dataset included.
const maxRequestBytes = 64 << 20

func main() {
	debug.Init(debug.Options{Level: os.Getenv("DATAGEM_LOG_LEVEL")})
	if err := run(); err != nil {
		slog.Error("sandbox server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	interpreter := strings.Fields(envOr("SANDBOX_INTERPRETER", "python3"))
	if len(interpreter) == 0 {
		return errors.New("SANDBOX_INTERPRETER is blank")
	}
	if _, err := exec.LookPath(interpreter[0]); err != nil {
		return fmt.Errorf("interpreter %q: %w", interpreter[0], err)
	}

	executor := sandbox.New(sandbox.Config{
		Interpreter: interpreter,
		Timeout:     time.Duration(envOrInt("SANDBOX_TIMEOUT_SECONDS", 30)) * time.Second,
		Limits: sandbox.Limits{
			CPUSeconds:     envOrInt("SANDBOX_MAX_CPU_SECONDS", 0),
			MemoryMB:       envOrInt("SANDBOX_MAX_MEMORY_MB", 0),
			IsolateNetwork: os.Getenv("SANDBOX_ISOLATE_NETWORK") == "true",
		},
	})
	srv := newSandboxServer(executor, runtimeVersion(interpreter), envOrInt("SANDBOX_MAX_CONCURRENT", 3))

	httpSrv := &http.Server{
		Addr:         ":" + envOr("SANDBOX_PORT", "8080"),
		Handler:      srv.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("sandbox server listening",
			"addr", httpSrv.Addr,
			"runtime", srv.runtime,
			"capacity", srv.capacity,
		)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("sandbox server stopping", "busy", srv.busy.Load())
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// sandboxServer runs at most capacity executions at once and rejects the
// rest with 429 so that the caller can try another pod.
type sandboxServer struct {
	runner   sandbox.Runner
	runtime  string
	capacity int
	slots    *semaphore.Weighted
	busy     atomic.Int64
	started  time.Time
}

func newSandboxServer(runner sandbox.Runner, runtime string, capacity int) *sandboxServer {
	capacity = max(capacity, 1)
	return &sandboxServer{
		runner:   runner,
		runtime:  runtime,
		capacity: capacity,
		slots:    semaphore.NewWeighted(int64(capacity)),
		started:  time.Now(),
	}
}

func (s *sandboxServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /execute", s.handleExecute)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func (s *sandboxServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	if !s.slots.TryAcquire(1) {
		writeError(w, http.StatusTooManyRequests,
			fmt.Sprintf("at capacity (%d concurrent executions)", s.capacity))
		return
	}
	defer s.slots.Release(1)
	s.busy.Add(1)
	defer s.busy.Add(-1)

	var req remote.ExecuteRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	debug.Log(debug.Sandbox, "execute request",
		"code", debug.Truncate(req.Code, 120),
		"timeout_seconds", req.TimeoutSeconds,
		"dataset_rows", len(req.Dataset),
	)
	res := s.runner.Execute(r.Context(), sandbox.Request{
		Code:    req.Code,
		Dataset: req.Dataset,
		Timeout: time.Duration(req.TimeoutSeconds) * time.Second,
	})
	slog.Info("execution finished",
		"classification", res.Classification,
		"exit_code", res.ExitCode,
		"duration", res.Duration,
		"stdout_bytes", len(res.Stdout),
	)

	writeJSON(w, http.StatusOK, remote.ExecuteResponse{
		Classification:  string(res.Classification),
		Message:         res.Message,
		Stdout:          res.Stdout,
		Stderr:          res.Stderr,
		ExitCode:        res.ExitCode,
		ExecutionTimeMs: res.Duration.Milliseconds(),
		Truncated:       res.Truncated,
	})
}

type healthResponse struct {
	Status         string `json:"status"`
	RuntimeVersion string `json:"runtime_version"`
	Capacity       int    `json:"capacity"`
	CurrentLoad    int    `json:"current_load"`
	UptimeSecs     int64  `json:"uptime_seconds"`
}

func (s *sandboxServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "healthy",
		RuntimeVersion: s.runtime,
		Capacity:       s.capacity,
		CurrentLoad:    int(s.busy.Load()),
		UptimeSecs:     int64(time.Since(s.started).Seconds()),
	})
}

// runtimeVersion returns the first line of "<interpreter> --version".
func runtimeVersion(interpreter []string) string {
	args := append(interpreter[1:len(interpreter):len(interpreter)], "--version")
	out, err := exec.Command(interpreter[0], args...).Output()
	if err != nil {
		return "unknown"
	}
	first, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return first
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}
