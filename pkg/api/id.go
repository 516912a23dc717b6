package api

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	sessionIDPrefix  = "sess_"
	toolCallIDPrefix = "call_"
)

var sessionIDPattern = regexp.MustCompile(`^sess_[a-f0-9]{32}$`)

// NewSessionID generates a new chat session ID with the "sess_" prefix
// followed by 32 lowercase hex characters of a random UUID.
func NewSessionID() string {
	return sessionIDPrefix + compactUUID()
}

// NewToolCallID generates an ID for a tool call that arrived from the
// upstream model without one.
func NewToolCallID() string {
	return toolCallIDPrefix + compactUUID()[:24]
}

// NewRequestID generates an ID used to correlate log lines of one HTTP request.
func NewRequestID() string {
	return uuid.NewString()
}

// ValidateSessionID checks whether the given string is a valid session ID.
func ValidateSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func compactUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
