package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/datagem/pkg/sandbox"
)

// Acquirer abstracts how a sandbox worker is obtained. Implementations exist
// for a static URL and for Kubernetes SandboxClaims.
type Acquirer interface {
	// Acquire returns a worker base URL. The release function must be
	// called after execution.
	Acquire(ctx context.Context) (sandboxURL string, release func(), err error)
}

// StaticAcquirer always returns the same worker URL.
type StaticAcquirer struct {
	URL string
}

// Acquire returns the configured URL and a no-op release.
func (a StaticAcquirer) Acquire(_ context.Context) (string, func(), error) {
	return strings.TrimRight(a.URL, "/"), func() {}, nil
}

// Client executes code on remote sandbox workers.
type Client struct {
	acquirer       Acquirer
	httpClient     *http.Client
	defaultTimeout time.Duration
}

var _ sandbox.Runner = (*Client)(nil)

// NewClient creates a Client. defaultTimeout is sent to the worker when a
// request does not set its own.
func NewClient(acquirer Acquirer, defaultTimeout time.Duration) *Client {
	if defaultTimeout <= 0 {
		defaultTimeout = sandbox.DefaultTimeout
	}
	return &Client{
		acquirer: acquirer,
		httpClient: &http.Client{
			// The worker enforces the execution timeout; this only bounds a
			// worker that stops answering.
			Timeout: defaultTimeout + 90*time.Second,
		},
		defaultTimeout: defaultTimeout,
	}
}

// Execute runs req on a worker. Transport failures are reported as
// RuntimeError results, never as errors.
func (c *Client) Execute(ctx context.Context, req sandbox.Request) sandbox.Result {
	start := time.Now()
	timeout := c.defaultTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	sandboxURL, release, err := c.acquirer.Acquire(ctx)
	if err != nil {
		return failure(fmt.Errorf("failed to acquire sandbox: %w", err), start)
	}
	defer release()

	resp, err := c.do(ctx, sandboxURL, &ExecuteRequest{
		Code:           req.Code,
		Dataset:        req.Dataset,
		TimeoutSeconds: int((timeout + time.Second - 1) / time.Second),
	})
	if err != nil {
		slog.Warn("remote sandbox execution failed", "url", sandboxURL, "error", err.Error())
		return failure(err, start)
	}

	return sandbox.Result{
		Stdout:         resp.Stdout,
		Stderr:         resp.Stderr,
		ExitCode:       resp.ExitCode,
		Classification: sandbox.Classification(resp.Classification),
		Message:        resp.Message,
		Duration:       time.Duration(resp.ExecutionTimeMs) * time.Millisecond,
		Truncated:      resp.Truncated,
	}
}

func (c *Client) do(ctx context.Context, sandboxURL string, req *ExecuteRequest) (*ExecuteResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, sandboxURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sandbox request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("sandbox at capacity (HTTP 429)")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sandbox returned HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var out ExecuteResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Classification == "" {
		return nil, fmt.Errorf("sandbox response missing classification")
	}
	return &out, nil
}

func failure(err error, start time.Time) sandbox.Result {
	return sandbox.Result{
		ExitCode:       -1,
		Classification: sandbox.RuntimeError,
		Message:        "An unexpected error occurred: " + err.Error(),
		Duration:       time.Since(start),
	}
}
