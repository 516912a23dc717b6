// Package gemini implements provider.Provider for Google Gemini through its
// OpenAI-compatible Chat Completions endpoint. Any other OpenAI-compatible
// backend can be used by setting a base URL.
package gemini
