// Package httputil holds the JSON response helpers shared by handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "contactsvc/pkg/domain-errors"
)

// ErrorResponse is the JSON error envelope. Description is omitted for
// internal failures so store details never leak to clients.
type ErrorResponse struct {
	Error       string              `json:"error"`
	Description string              `json:"error_description,omitempty"`
	FieldErrors map[string][]string `json:"field_errors,omitempty"`
	RequestID   string              `json:"request_id,omitempty"`
}

// FieldError is a validation failure that carries per-field messages.
type FieldError struct {
	Fields map[string][]string
}

func (e *FieldError) Error() string {
	return "invalid request fields"
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the JSON error envelope.
func WriteError(w http.ResponseWriter, err error) {
	WriteErrorWithRequestID(w, err, "")
}

// WriteErrorWithRequestID is WriteError with the correlation id echoed back.
func WriteErrorWithRequestID(w http.ResponseWriter, err error, requestID string) {
	code := dErrors.CodeOf(err)
	resp := ErrorResponse{
		Error:     string(code),
		RequestID: requestID,
	}
	if code != dErrors.CodeInternal && code != dErrors.CodeInvariantViolation {
		if de, ok := dErrors.As(err); ok {
			resp.Description = de.Message
		}
	}
	var fe *FieldError
	if errors.As(err, &fe) {
		resp.FieldErrors = fe.Fields
	}
	if dErrors.Retryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), resp)
}
