// Package api defines the core types shared by the DataGem service.
//
// It covers the chat request accepted at the HTTP boundary, the tabular
// [Dataset] a user attaches to a conversation, the [ConversationTurn] values
// that make up a session transcript, structured errors, and ID generation.
//
// The package performs no I/O. All types serialize to the JSON shapes used by
// the chat, history and health endpoints.
//
// Core types:
//   - [ChatRequest]: a user message plus an optional dataset
//   - [Dataset]: ordered rows of column name to scalar value
//   - [ConversationTurn]: one user, model or tool turn of a transcript
//   - [APIError]: structured error with type, code, param, and message
package api
