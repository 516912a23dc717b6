package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rhuss/datagem/pkg/api"
	"github.com/rhuss/datagem/pkg/debug"
)

// HTTPStatusFromError returns the response status for err.
func HTTPStatusFromError(err *api.APIError) int {
	return err.Type.HTTPStatus()
}

// AsAPIError converts any handler error into an APIError. Quota failures
// that are not already typed become too_many_requests, cancellation and
// deadlines become server errors with a short message.
func AsAPIError(err error) *api.APIError {
	var apiErr *api.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, context.Canceled):
		return api.NewServerError("request cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		return api.NewServerError("request timed out")
	case api.IsQuotaError(err):
		return api.NewTooManyRequestsError(err.Error())
	}
	return api.NewServerError(err.Error())
}

// WriteErrorResponse writes apiErr as {"error": {...}} with the given
// status. Callers pass the status for cases the type does not decide, such
// as 413 and 415 on the chat endpoint.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr}); err != nil {
		debug.Log(debug.Transport, "writing error body failed", "error", err)
	}
}

// WriteAPIError writes apiErr with the status of its type.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, apiErr.Type.HTTPStatus())
}
