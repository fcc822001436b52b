package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	err := ValidationError("invalid stream id")

	assert.Equal(t, TypeValidation, err.Type)
	assert.Equal(t, "invalid stream id", err.Message)
	assert.Nil(t, err.Cause)
	assert.NotNil(t, err.Context)
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
	assert.Contains(t, err.Error(), "validation")
	assert.Contains(t, err.Error(), "invalid stream id")
}

func TestNotFoundError(t *testing.T) {
	err := NotFoundError("stream not found")

	assert.Equal(t, TypeNotFound, err.Type)
	assert.Equal(t, "stream not found", err.Message)
	assert.Nil(t, err.Cause)
	assert.NotNil(t, err.Context)
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus())
	assert.Contains(t, err.Error(), "not_found")
	assert.Contains(t, err.Error(), "stream not found")
}

func TestCapacityError(t *testing.T) {
	err := CapacityError("server at capacity")

	assert.Equal(t, TypeCapacity, err.Type)
	assert.Equal(t, "server at capacity", err.Message)
	assert.Nil(t, err.Cause)
	assert.NotNil(t, err.Context)
	assert.Equal(t, http.StatusServiceUnavailable, err.HTTPStatus())
	assert.Contains(t, err.Error(), "capacity")
	assert.Contains(t, err.Error(), "server at capacity")
}

func TestInternalError(t *testing.T) {
	cause := fmt.Errorf("websocket upgrade failed")
	err := InternalError("failed to accept viewer", cause)

	assert.Equal(t, TypeInternal, err.Type)
	assert.Equal(t, "failed to accept viewer", err.Message)
	assert.Equal(t, cause, err.Cause)
	assert.NotNil(t, err.Context)
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())
	assert.Contains(t, err.Error(), "internal")
	assert.Contains(t, err.Error(), "failed to accept viewer")
	assert.Contains(t, err.Error(), "websocket upgrade failed")
}

func TestInternalErrorWithoutCause(t *testing.T) {
	err := InternalError("something went wrong", nil)

	assert.Equal(t, TypeInternal, err.Type)
	assert.Nil(t, err.Cause)
	assert.NotContains(t, err.Error(), "<nil>")
}

func TestWithContext(t *testing.T) {
	err := ValidationError("invalid stream id")
	err = err.WithContext("stream_id", "")
	err = err.WithContext("max_length", 128)

	assert.Len(t, err.Context, 2)
	assert.Equal(t, "", err.Context["stream_id"])
	assert.Equal(t, 128, err.Context["max_length"])
}

func TestWithContextChaining(t *testing.T) {
	err := CapacityError("server at capacity").
		WithContext("reason", "global_limit").
		WithContext("remote_ip", "192.0.2.1")

	assert.Len(t, err.Context, 2)
	assert.Equal(t, "global_limit", err.Context["reason"])
	assert.Equal(t, "192.0.2.1", err.Context["remote_ip"])
}

func TestWithContextNilMap(t *testing.T) {
	err := &Error{
		Type:    TypeValidation,
		Message: "test",
		Context: nil,
	}

	err = err.WithContext("key", "value")

	assert.NotNil(t, err.Context)
	assert.Equal(t, "value", err.Context["key"])
}

func TestToResponse(t *testing.T) {
	err := ValidationError("stream id exceeds limit").
		WithContext("stream_id", "abc").
		WithContext("max_length", 128)

	resp := err.ToResponse()

	assert.Equal(t, "stream id exceeds limit", resp.Error)
	assert.Equal(t, TypeValidation, resp.Type)
	assert.Len(t, resp.Context, 2)
	assert.Equal(t, "abc", resp.Context["stream_id"])
	assert.Equal(t, 128, resp.Context["max_length"])
}

func TestToResponseEmptyContext(t *testing.T) {
	err := NotFoundError("stream not found")

	resp := err.ToResponse()

	assert.Equal(t, "stream not found", resp.Error)
	assert.Equal(t, TypeNotFound, resp.Type)
	assert.NotNil(t, resp.Context)
	assert.Empty(t, resp.Context)
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := InternalError("wrapped", cause)

	unwrapped := errors.Unwrap(err)
	assert.Equal(t, cause, unwrapped)
}

func TestUnwrapNil(t *testing.T) {
	err := ValidationError("test")

	unwrapped := errors.Unwrap(err)
	assert.Nil(t, unwrapped)
}

func TestErrorsIs(t *testing.T) {
	rootCause := fmt.Errorf("root")
	wrapped := InternalError("wrapped", rootCause)

	assert.True(t, errors.Is(wrapped, rootCause))
}

func TestErrorsAs(t *testing.T) {
	err := ValidationError("test")

	var target *Error
	require.True(t, errors.As(err, &target))
	assert.Equal(t, TypeValidation, target.Type)
}

func TestAsStructuredErrorWithStructuredError(t *testing.T) {
	original := ValidationError("original")
	result := AsStructuredError(original)

	assert.Equal(t, original, result)
	assert.Equal(t, TypeValidation, result.Type)
}

func TestAsStructuredErrorWithStandardError(t *testing.T) {
	original := fmt.Errorf("standard error")
	result := AsStructuredError(original)

	assert.NotNil(t, result)
	assert.Equal(t, TypeInternal, result.Type)
	assert.Equal(t, "internal server error", result.Message)
	assert.Equal(t, original, result.Cause)
}

func TestAsStructuredErrorWithNil(t *testing.T) {
	assert.Nil(t, AsStructuredError(nil))
}
