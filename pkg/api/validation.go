package api

import (
	"encoding/json"
	"fmt"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxMessageSize int
	MaxDatasetRows int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxMessageSize: 64 * 1024,
		MaxDatasetRows: 100_000,
	}
}

// ValidateChatRequest checks a ChatRequest for validity. It returns an
// *APIError describing the first validation failure, or nil if the request is valid.
func ValidateChatRequest(req *ChatRequest, cfg ValidationConfig) *APIError {
	if req == nil {
		return NewInvalidRequestError("", "request body is required")
	}

	if req.Message == "" {
		return NewInvalidRequestError("message", "message is required")
	}

	if cfg.MaxMessageSize > 0 && len(req.Message) > cfg.MaxMessageSize {
		return NewInvalidRequestError("message",
			fmt.Sprintf("message exceeds maximum size of %d bytes", cfg.MaxMessageSize))
	}

	if cfg.MaxDatasetRows > 0 && len(req.Dataset) > cfg.MaxDatasetRows {
		return NewInvalidRequestError("dataset",
			fmt.Sprintf("dataset exceeds maximum of %d rows", cfg.MaxDatasetRows))
	}

	for i, row := range req.Dataset {
		for col, v := range row {
			if !isScalar(v) {
				return NewInvalidRequestError("dataset",
					fmt.Sprintf("row %d column %q: value must be a string, number, boolean or null", i, col))
			}
		}
	}

	return nil
}

// isScalar accepts the values a decoded dataset cell may hold. Bodies are
// decoded with UseNumber so numbers arrive as json.Number.
func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, json.Number, float64, float32, int, int64, int32:
		return true
	}
	return false
}
