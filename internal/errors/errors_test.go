package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeExtraction(t *testing.T) {
	err := NotFound("document", "d1")
	assert.Equal(t, ErrCodeNotFound, Code(err))
	assert.True(t, IsCode(err, ErrCodeNotFound))

	// Wrapped through fmt still carries the code.
	wrapped := fmt.Errorf("handling request: %w", err)
	assert.Equal(t, ErrCodeNotFound, Code(wrapped))

	// Unknown errors fall back to internal.
	assert.Equal(t, ErrCodeInternal, Code(stderrors.New("boom")))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, ErrCodeExecutionFailed, "executor failed")

	assert.Equal(t, ErrCodeExecutionFailed, Code(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NotFound("document", "d1"), http.StatusNotFound},
		{InvalidInput("reason", "required"), http.StatusBadRequest},
		{New(ErrCodeUnauthorized, "role not allowed"), http.StatusForbidden},
		{New(ErrCodeInvalidTransition, "completed to draft"), http.StatusConflict},
		{New(ErrCodeRequestNotPending, "already decided"), http.StatusConflict},
		{New(ErrCodeConflict, "stale update"), http.StatusConflict},
		{New(ErrCodeExecutionFailed, "downstream failed"), http.StatusUnprocessableEntity},
		{stderrors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), "error: %v", tt.err)
	}
}
