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
	err := ValidationError("invalid input")

	assert.Equal(t, TypeValidation, err.Type)
	assert.Equal(t, "invalid input", err.Message)
	assert.Nil(t, err.Cause)
	assert.NotNil(t, err.Context)
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
	assert.Contains(t, err.Error(), "validation")
	assert.Contains(t, err.Error(), "invalid input")
}

func TestUnauthorizedError(t *testing.T) {
	cause := fmt.Errorf("signature invalid")
	err := UnauthorizedError("credential rejected", cause)

	assert.Equal(t, TypeUnauthorized, err.Type)
	assert.Equal(t, cause, err.Cause)
	assert.Equal(t, http.StatusUnauthorized, err.HTTPStatus())
	assert.Contains(t, err.Error(), "unauthorized")
	assert.Contains(t, err.Error(), "signature invalid")
}

func TestNotFoundError(t *testing.T) {
	err := NotFoundError("connection not found")

	assert.Equal(t, TypeNotFound, err.Type)
	assert.Equal(t, "connection not found", err.Message)
	assert.Nil(t, err.Cause)
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus())
	assert.Contains(t, err.Error(), "not_found")
}

func TestQuotaError(t *testing.T) {
	err := QuotaError("connection limit reached")

	assert.Equal(t, TypeQuota, err.Type)
	assert.Equal(t, http.StatusTooManyRequests, err.HTTPStatus())
	assert.Contains(t, err.Error(), "quota")
	assert.Contains(t, err.Error(), "connection limit reached")
}

func TestInternalError(t *testing.T) {
	cause := fmt.Errorf("database connection failed")
	err := InternalError("failed to load preference", cause)

	assert.Equal(t, TypeInternal, err.Type)
	assert.Equal(t, "failed to load preference", err.Message)
	assert.Equal(t, cause, err.Cause)
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())
	assert.Contains(t, err.Error(), "internal")
	assert.Contains(t, err.Error(), "database connection failed")
}

func TestInternalErrorWithoutCause(t *testing.T) {
	err := InternalError("something went wrong", nil)

	assert.Equal(t, TypeInternal, err.Type)
	assert.Nil(t, err.Cause)
	assert.NotContains(t, err.Error(), "<nil>")
}

func TestExternalError(t *testing.T) {
	cause := fmt.Errorf("redis timeout")
	err := ExternalError("failed to record audit event", cause)

	assert.Equal(t, TypeExternal, err.Type)
	assert.Equal(t, cause, err.Cause)
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus())
	assert.Contains(t, err.Error(), "external")
}

func TestWithContext(t *testing.T) {
	err := ValidationError("invalid connection id").
		WithContext("id", "not-a-uuid").
		WithContext("path", "/api/admin")

	assert.Len(t, err.Context, 2)
	assert.Equal(t, "not-a-uuid", err.Context["id"])
	assert.Equal(t, "/api/admin", err.Context["path"])
}

func TestWithContextNilMap(t *testing.T) {
	err := &Error{
		Type:    TypeValidation,
		Message: "test",
		Context: nil,
	}
	err = err.WithContext("key", "value")

	require.NotNil(t, err.Context)
	assert.Equal(t, "value", err.Context["key"])
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := InternalError("wrapper", cause)

	assert.True(t, errors.Is(err, cause))
}

func TestToResponse(t *testing.T) {
	err := QuotaError("too many connections").WithContext("user_id", "u1")
	resp := err.ToResponse()

	assert.Equal(t, "too many connections", resp.Error)
	assert.Equal(t, TypeQuota, resp.Type)
	assert.Equal(t, "u1", resp.Context["user_id"])
}

func TestAsStructuredError(t *testing.T) {
	structured := ValidationError("already structured")
	assert.Same(t, structured, AsStructuredError(structured))

	wrapped := AsStructuredError(fmt.Errorf("plain error"))
	require.NotNil(t, wrapped)
	assert.Equal(t, TypeInternal, wrapped.Type)

	assert.Nil(t, AsStructuredError(nil))
}
