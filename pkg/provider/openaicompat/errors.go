package openaicompat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rhuss/datagem/pkg/api"
)

// statusResourceExhausted is the status Gemini puts in the body of a quota
// error. It marks quota exhaustion regardless of the HTTP code.
const statusResourceExhausted = "RESOURCE_EXHAUSTED"

// MapHTTPError turns a non-2xx answer into an APIError. The backend's own
// message is kept when the body carries one. Quota exhaustion always maps
// to too_many_requests so that api.IsQuotaError triggers a key rotation.
func MapHTTPError(resp *http.Response) *api.APIError {
	msg, status := extractError(resp.Body)
	code := resp.StatusCode
	if strings.EqualFold(status, statusResourceExhausted) {
		code = http.StatusTooManyRequests
	}
	or := func(fallback string) string {
		if msg != "" {
			return msg
		}
		return fallback
	}

	switch code {
	case http.StatusTooManyRequests:
		return api.NewTooManyRequestsError(or("model backend quota or rate limit exceeded"))
	case http.StatusBadRequest:
		return api.NewInvalidRequestError("", or("model backend rejected the request"))
	case http.StatusUnauthorized, http.StatusForbidden:
		return api.NewServerError(or("model backend rejected the API key"))
	case http.StatusNotFound:
		return api.NewNotFoundError(or("model or endpoint not found on backend"))
	}
	return api.NewServerError(or(fmt.Sprintf("model backend returned HTTP %d", code)))
}

// MapNetworkError wraps a failure to reach the backend at all.
func MapNetworkError(err error) *api.APIError {
	return api.NewServerError("cannot reach model backend: " + err.Error())
}

// MapStreamError maps an error object that arrived inside an event stream.
func MapStreamError(e ChatError) *api.APIError {
	msg := e.Message
	if msg == "" {
		msg = "model backend aborted the stream"
	}
	if strings.EqualFold(e.Status, statusResourceExhausted) || codeIs(e.Code, http.StatusTooManyRequests) {
		return api.NewTooManyRequestsError(msg)
	}
	return api.NewServerError(msg)
}

// ExtractErrorMessage returns the message of an error body, or "".
func ExtractErrorMessage(body io.Reader) string {
	msg, _ := extractError(body)
	return msg
}

// extractError reads at most 4 KiB of an error body. OpenAI sends a single
// envelope; Gemini wraps it in a one-element array.
func extractError(body io.Reader) (message, status string) {
	if body == nil {
		return "", ""
	}
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return "", ""
	}

	var one ChatErrorResponse
	if json.Unmarshal(data, &one) == nil && one.Error.Message != "" {
		return one.Error.Message, one.Error.Status
	}
	var many []ChatErrorResponse
	if json.Unmarshal(data, &many) == nil && len(many) > 0 {
		return many[0].Error.Message, many[0].Error.Status
	}
	return "", ""
}

// codeIs compares an error code that may be numeric (Gemini) or a string.
func codeIs(code any, want int) bool {
	switch v := code.(type) {
	case float64:
		return int(v) == want
	case string:
		return v == fmt.Sprint(want)
	}
	return false
}
