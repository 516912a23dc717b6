// Package codeexec provides the run_python_code tool. It hands model-written
// code to a sandbox.Runner together with the dataset of the session the
// provider was built for.
package codeexec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rhuss/datagem/pkg/api"
	"github.com/rhuss/datagem/pkg/debug"
	"github.com/rhuss/datagem/pkg/sandbox"
	"github.com/rhuss/datagem/pkg/tools"
)

// toolParametersJSON is the JSON Schema for the run_python_code parameters.
var toolParametersJSON = json.RawMessage(`{"type":"object","properties":{"code":{"type":"string","description":"Python code to execute. Use print() to return results."}},"required":["code"]}`)

const description = "Execute Python code for data analysis. " +
	"When a dataset is attached it is available as a pandas DataFrame named `df`; " +
	"pandas (pd), numpy (np), matplotlib.pyplot (plt) and seaborn (sns) are already imported. " +
	"Only text written to stdout is returned, so always print() the results."

// Provider implements tools.Provider for run_python_code.
type Provider struct {
	runner  sandbox.Runner
	dataset api.Dataset
	timeout time.Duration
}

var _ tools.Provider = (*Provider)(nil)

// New binds a runner to a session dataset. A nil dataset means the code
// runs with df set to None. A zero timeout uses the runner's default.
func New(runner sandbox.Runner, dataset api.Dataset, timeout time.Duration) *Provider {
	return &Provider{runner: runner, dataset: dataset, timeout: timeout}
}

// Definition returns the tool description handed to the model.
func (p *Provider) Definition() tools.Definition {
	return tools.Definition{
		Name:        tools.RunPythonCode,
		Description: description,
		Parameters:  toolParametersJSON,
	}
}

// Execute runs the code and returns the sandbox message. Sandbox failures
// (timeouts, runtime errors, empty output) come back as text so the model
// can correct its next attempt.
func (p *Provider) Execute(ctx context.Context, arguments string) (string, error) {
	var args struct {
		Code string `json:"code"`
	}
	if err := tools.DecodeArguments(arguments, &args); err != nil {
		return "", err
	}
	if strings.TrimSpace(args.Code) == "" {
		return "", fmt.Errorf("%w: code must not be empty", tools.ErrInvalidArguments)
	}

	res := p.runner.Execute(ctx, sandbox.Request{
		Code:    args.Code,
		Dataset: p.dataset,
		Timeout: p.timeout,
	})

	debug.Log(debug.Tools, "code executed",
		"classification", res.Classification,
		"exit_code", res.ExitCode,
		"duration_ms", res.Duration.Milliseconds(),
		"rows", len(p.dataset),
	)
	return res.Message, nil
}
