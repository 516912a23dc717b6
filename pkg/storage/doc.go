// Package storage defines the persistence contract for chat history and
// the helpers shared by its adapters (memory, sqlite, postgres).
//
// The contract is intentionally narrow: users are looked up or created by
// identity, messages are appended, and history is read back newest first.
// Datasets are never persisted.
package storage
