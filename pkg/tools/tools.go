package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Name identifies a tool in the model-facing protocol.
type Name string

const (
	// RunPythonCode executes Python against the session dataset.
	RunPythonCode Name = "run_python_code"

	// GoogleSearch answers a search query.
	GoogleSearch Name = "google_search"
)

var (
	// ErrUnknownTool is returned when the model asks for a tool that is not
	// registered.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments is returned when tool arguments cannot be decoded
	// or miss a required field.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// Definition describes a tool to the model. Parameters is a JSON Schema
// object.
type Definition struct {
	Name        Name            `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Provider is a single invokable tool.
type Provider interface {
	// Definition returns the model-facing description of the tool.
	Definition() Definition

	// Execute runs the tool with JSON-encoded arguments and returns the
	// text handed back to the model. Failures the model should see as
	// output are returned as text, not as errors.
	Execute(ctx context.Context, arguments string) (string, error)
}

// DecodeArguments unmarshals JSON-encoded tool arguments into v. An empty
// string decodes as an empty object.
func DecodeArguments(arguments string, v any) error {
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}
	if err := json.Unmarshal([]byte(arguments), v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}
