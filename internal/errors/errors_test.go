package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_MessageFormat(t *testing.T) {
	err := NotFound("no tokens stored for user alice")
	assert.Equal(t, "not_found: no tokens stored for user alice", err.Error())

	cause := errors.New("connection refused")
	wrapped := RefreshFailed("refresh failed for alice on twitch", cause)
	assert.Equal(t, "refresh_failed: refresh failed for alice on twitch: connection refused", wrapped.Error())
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := RetriesExhausted("request to /users gave up", cause)

	assert.True(t, errors.Is(err, cause))

	var structured *Error
	require.True(t, errors.As(err, &structured))
	assert.Equal(t, TypeRetriesExhausted, structured.Type)
}

func TestError_UnwrapThroughFmtWrapping(t *testing.T) {
	inner := RequestFailed(http.StatusForbidden, "Invalid scope")
	outer := fmt.Errorf("twitch user lookup: %w", inner)

	assert.True(t, IsType(outer, TypeRequestFailed))

	status, ok := StatusOf(outer)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestError_HTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"not found", NotFound("x"), http.StatusNotFound},
		{"validation", Validation("x"), http.StatusBadRequest},
		{"refresh failed", RefreshFailed("x", nil), http.StatusBadGateway},
		{"retries exhausted", RetriesExhausted("x", nil), http.StatusBadGateway},
		{"request failed carries upstream status", RequestFailed(http.StatusTooManyRequests, "x"), http.StatusTooManyRequests},
		{"request failed without status", &Error{Type: TypeRequestFailed, Message: "x"}, http.StatusBadGateway},
		{"configuration", Configuration("x"), http.StatusInternalServerError},
		{"internal", Internal("x", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestStatusOf_NoStatus(t *testing.T) {
	_, ok := StatusOf(NotFound("x"))
	assert.False(t, ok)

	_, ok = StatusOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestWithContext(t *testing.T) {
	err := Configuration("Twitch OAuth credentials not found").
		WithContext("platform", "twitch")

	assert.Equal(t, "twitch", err.Context["platform"])

	resp := err.ToResponse()
	assert.Equal(t, "Twitch OAuth credentials not found", resp.Error)
	assert.Equal(t, TypeConfiguration, resp.Type)
	assert.Equal(t, "twitch", resp.Context["platform"])
}

func TestAsStructuredError(t *testing.T) {
	assert.Nil(t, AsStructuredError(nil))

	original := NotFound("missing")
	assert.Same(t, original, AsStructuredError(original))

	plain := errors.New("boom")
	converted := AsStructuredError(plain)
	assert.Equal(t, TypeInternal, converted.Type)
	assert.True(t, errors.Is(converted, plain))
}
