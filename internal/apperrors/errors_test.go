package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_MapsKindToHTTPStatus(t *testing.T) {
	cases := []struct {
		kind   Kind
		status int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindAuthorization, http.StatusUnauthorized},
		{KindNotFound, http.StatusNotFound},
		{KindState, http.StatusConflict},
		{KindIntegrity, http.StatusConflict},
		{KindUpstream, http.StatusBadGateway},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, c := range cases {
		err := New(c.kind, "X", "message")
		assert.Equal(t, c.status, err.HTTPStatus)
	}
}

func TestWrap_UnwrapsCause(t *testing.T) {
	cause := errors.New("db exploded")
	err := Wrap(KindInternal, "SVC_DB", "database operation failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "db exploded")
}

func TestAs_ExtractsRegistryError(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", NotFound("bundle", "123"))
	re, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindNotFound, re.Kind)
	assert.Equal(t, "123", re.Details["id"])
}

func TestHTTPStatus_DefaultsTo500ForPlainError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}

func TestWithDetails_Chains(t *testing.T) {
	err := Validation("VAL_X", "bad").WithDetails("a", 1).WithDetails("b", 2)
	assert.Equal(t, 1, err.Details["a"])
	assert.Equal(t, 2, err.Details["b"])
}
