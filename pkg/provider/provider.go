package provider

import (
	"context"
)

// Provider is the model backend the engine drives. The credential to use is
// chosen per request by the caller and travels in ProviderRequest.APIKey,
// so one Provider serves every slot of the credential pool.
//
// Implementations are shared by all in-flight chats and must be safe for
// concurrent use.
type Provider interface {
	// Name identifies the backend in logs and metrics, e.g. "gemini".
	Name() string

	Capabilities() ProviderCapabilities

	// Complete runs one model step and returns the whole answer.
	Complete(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error)

	// Stream runs one model step incrementally. The provider owns the
	// returned channel and closes it after the final event or an error
	// event. Errors before the first byte are returned directly.
	Stream(ctx context.Context, req *ProviderRequest) (<-chan ProviderEvent, error)

	// ListModels asks the backend which models apiKey may use.
	ListModels(ctx context.Context, apiKey string) ([]ModelInfo, error)

	Close() error
}
