package sandbox

import (
	"context"
	"time"

	"github.com/rhuss/datagem/pkg/api"
)

// Classification describes how an execution ended.
type Classification string

const (
	Success       Classification = "success"
	EmptyOutput   Classification = "empty_output"
	Timeout       Classification = "timeout"
	RuntimeError  Classification = "runtime_error"
	DataTypeError Classification = "data_type_error"
)

// DefaultTimeout is the wall-clock limit applied when neither the request
// nor the executor config sets one.
const DefaultTimeout = 30 * time.Second

// Request is one code execution. Requests are not reused.
type Request struct {
	Code    string      `json:"code"`
	Dataset api.Dataset `json:"dataset,omitempty"`

	// Timeout overrides the executor default when positive.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Result is the outcome of one execution. Message is the text returned to
// the model; the other fields are kept for logging and metrics.
type Result struct {
	Stdout         string         `json:"stdout"`
	Stderr         string         `json:"stderr"`
	ExitCode       int            `json:"exit_code"`
	Classification Classification `json:"classification"`
	Message        string         `json:"message"`
	Duration       time.Duration  `json:"duration"`
	Truncated      bool           `json:"truncated,omitempty"`
}

// Runner executes code and never returns an error; failures are encoded in
// the Result. Implementations must be safe for concurrent use.
type Runner interface {
	Execute(ctx context.Context, req Request) Result
}

// Limits bounds the resources of one child process. Zero values disable the
// corresponding limit.
type Limits struct {
	// CPUSeconds caps CPU time (ulimit -t).
	CPUSeconds int

	// MemoryMB caps virtual memory (ulimit -v).
	MemoryMB int

	// IsolateNetwork runs the child in new user and network namespaces so it
	// only sees a loopback interface. Linux only.
	IsolateNetwork bool

	// MaxOutputBytes caps the captured size of stdout and of stderr.
	MaxOutputBytes int
}
