package provider

import (
	"github.com/rhuss/datagem/pkg/api"
)

// ValidateCapabilities rejects a request the backend cannot serve before
// any credential is spent on it. The returned error names the offending
// request field in Param.
func ValidateCapabilities(caps ProviderCapabilities, req *ProviderRequest) *api.APIError {
	switch {
	case req.Stream && !caps.Streaming:
		return api.NewInvalidRequestError("stream", "model backend cannot stream replies")
	case len(req.Tools) > 0 && !caps.ToolCalling:
		return api.NewInvalidRequestError("tools", "model backend cannot call tools")
	}
	return nil
}
