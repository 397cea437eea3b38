package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCodeThroughWrapping(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("reconcile: %w", Wrap(cause, CodeUnavailable, "store unavailable"))

	assert.True(t, HasCode(err, CodeUnavailable))
	assert.False(t, HasCode(err, CodeInternal))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeUnavailable, CodeOf(err))
}

func TestCodeOfPlainErrorIsInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "timeout", err: New(CodeTimeout, "tx timed out"), expected: true},
		{name: "unavailable", err: New(CodeUnavailable, "retries exhausted"), expected: true},
		{name: "conflict", err: New(CodeConflict, "match set changed"), expected: true},
		{name: "invariant violation", err: New(CodeInvariantViolation, "dangling secondary"), expected: false},
		{name: "bad request", err: New(CodeBadRequest, "empty submission"), expected: false},
		{name: "uncoded", err: errors.New("boom"), expected: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Retryable(tt.err))
		})
	}
}

func TestToHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, ToHTTPStatus(CodeValidation))
	assert.Equal(t, http.StatusServiceUnavailable, ToHTTPStatus(CodeUnavailable))
	assert.Equal(t, http.StatusGatewayTimeout, ToHTTPStatus(CodeTimeout))
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(CodeInvariantViolation))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(errors.New("deadlock detected"), CodeConflict, "reconcile conflict")
	assert.Equal(t, "reconcile conflict: deadlock detected", err.Error())
}
