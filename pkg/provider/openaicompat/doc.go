// Package openaicompat provides shared code for any OpenAI-compatible Chat
// Completions backend, including the Gemini OpenAI endpoint. It handles
// request serialization, response parsing, SSE chunk streaming, tool call
// argument buffering, and error mapping.
//
// Provider adapters embed the Client from this package and delegate their
// Complete/Stream/ListModels calls to it.
package openaicompat
