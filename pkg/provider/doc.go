// Package provider defines the interface for upstream LLM inference
// backends. Adapters (for example gemini) translate the provider types
// below to their backend protocol, keeping wire details out of the engine.
//
// The credential used for a call travels with the request (APIKey) so
// the engine can switch keys between calls without rebuilding the
// provider.
package provider
