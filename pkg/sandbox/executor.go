package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rhuss/datagem/pkg/debug"
	"github.com/rhuss/datagem/pkg/observability"
)

// Config configures an Executor.
type Config struct {
	// Interpreter is the command used to run the program, e.g. ["python3"]
	// or ["uv", "run", "python"]. The script path is appended.
	Interpreter []string

	// Timeout is the default wall-clock limit per execution.
	Timeout time.Duration

	// Preamble replaces DefaultPreamble when non-empty.
	Preamble string

	// WorkDir is the parent directory for per-execution temp dirs.
	// Empty means os.TempDir().
	WorkDir string

	// Env holds extra KEY=VALUE entries for the child environment.
	Env []string

	Limits Limits
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Interpreter: []string{"python3"},
		Timeout:     DefaultTimeout,
		Limits:      Limits{MaxOutputBytes: DefaultMaxOutputBytes},
	}
}

// Executor runs code in local child processes. It holds no mutable state and
// is safe for concurrent use.
type Executor struct {
	cfg Config
}

var _ Runner = (*Executor)(nil)

// New creates an Executor, filling unset fields from DefaultConfig.
func New(cfg Config) *Executor {
	def := DefaultConfig()
	if len(cfg.Interpreter) == 0 {
		cfg.Interpreter = def.Interpreter
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Preamble == "" {
		cfg.Preamble = DefaultPreamble
	}
	if cfg.Limits.MaxOutputBytes <= 0 {
		cfg.Limits.MaxOutputBytes = def.Limits.MaxOutputBytes
	}
	return &Executor{cfg: cfg}
}

// Execute runs req.Code and classifies the outcome. It never returns an
// error and never leaves the child running: on timeout or when ctx is
// cancelled the whole process group is killed.
func (e *Executor) Execute(ctx context.Context, req Request) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sandbox panic", "panic", r)
			res = launchFailure(fmt.Errorf("internal error: %v", r))
		}
		res.Duration = time.Since(start)
		observability.SandboxExecutionsTotal.WithLabelValues(string(res.Classification)).Inc()
		observability.SandboxDuration.Observe(res.Duration.Seconds())
		debug.Log(debug.Sandbox, "execution finished",
			"classification", res.Classification,
			"exit_code", res.ExitCode,
			"duration_ms", res.Duration.Milliseconds(),
			"stdout_len", len(res.Stdout),
			"stderr_len", len(res.Stderr),
		)
	}()

	timeout := e.cfg.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	tmpDir, err := os.MkdirTemp(e.cfg.WorkDir, "datagem-exec-*")
	if err != nil {
		return launchFailure(fmt.Errorf("create temp dir: %w", err))
	}
	defer os.RemoveAll(tmpDir)

	scriptPath, err := writeWorkspace(tmpDir, e.cfg.Preamble, req.Code, req.Dataset)
	if err != nil {
		return launchFailure(err)
	}
	if debug.TraceIsEnabled(debug.Sandbox) {
		if program, readErr := os.ReadFile(scriptPath); readErr == nil {
			debug.Raw(debug.Sandbox, string(program))
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name, args := e.command(scriptPath)
	cmd := exec.CommandContext(execCtx, name, args...)
	cmd.Dir = tmpDir
	cmd.Env = e.environment(tmpDir)
	cmd.SysProcAttr = sysProcAttr(e.cfg.Limits)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	// Grandchildren holding the pipes open must not block Wait forever.
	cmd.WaitDelay = 2 * time.Second

	stdout := &cappedBuffer{limit: e.cfg.Limits.MaxOutputBytes}
	stderr := &cappedBuffer{limit: e.cfg.Limits.MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()

	res = Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.truncated || stderr.truncated,
	}

	switch {
	case ctx.Err() != nil:
		res.ExitCode = -1
		res.Classification = RuntimeError
		res.Message = "Code execution cancelled."
		return res
	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		res.ExitCode = -1
		res.Classification = Timeout
		res.Message = timeoutMessage(int(timeout.Round(time.Second) / time.Second))
		slog.Warn("sandbox execution timed out", "timeout", timeout)
		return res
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return launchFailure(runErr)
		}
		res.ExitCode = exitErr.ExitCode()
	}

	res.Classification, res.Message = classify(res.Stdout, res.Stderr, res.ExitCode)
	return res
}

// command returns the program and arguments to spawn. CPU and memory limits
// are applied through a shell wrapper so they bind only the child.
func (e *Executor) command(scriptPath string) (string, []string) {
	argv := append(append([]string{}, e.cfg.Interpreter...), scriptPath)

	var ulimits []string
	if e.cfg.Limits.CPUSeconds > 0 {
		ulimits = append(ulimits, "ulimit -t "+strconv.Itoa(e.cfg.Limits.CPUSeconds))
	}
	if e.cfg.Limits.MemoryMB > 0 {
		ulimits = append(ulimits, "ulimit -v "+strconv.Itoa(e.cfg.Limits.MemoryMB*1024))
	}
	if len(ulimits) == 0 {
		return argv[0], argv[1:]
	}

	script := strings.Join(ulimits, " && ") + ` && exec "$@"`
	return "/bin/sh", append([]string{"-c", script, "sandbox"}, argv...)
}

// environment builds the child environment from scratch so that secrets in
// the parent's environment (upstream API keys, database DSNs) never leak.
func (e *Executor) environment(tmpDir string) []string {
	path := os.Getenv("PATH")
	if path == "" {
		path = "/usr/local/bin:/usr/bin:/bin"
	}
	// HOME is kept so matplotlib and friends reuse their caches.
	home := os.Getenv("HOME")
	if home == "" {
		home = tmpDir
	}
	env := []string{
		"PATH=" + path,
		"HOME=" + home,
		"TMPDIR=" + tmpDir,
		"MPLBACKEND=Agg",
		"PYTHONUNBUFFERED=1",
		"PYTHONDONTWRITEBYTECODE=1",
		"LANG=C.UTF-8",
	}
	return append(env, e.cfg.Env...)
}

// launchFailure converts an error raised before or while starting the
// process into a RuntimeError result.
func launchFailure(err error) Result {
	slog.Error("sandbox launch failed", "error", err.Error())
	return Result{
		ExitCode:       -1,
		Classification: RuntimeError,
		Message:        "An unexpected error occurred: " + err.Error(),
	}
}
