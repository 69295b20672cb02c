package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindAndStatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		kind   Kind
		status int
	}{
		{Unauthenticated("no token"), KindUnauthenticated, http.StatusUnauthorized},
		{Forbidden("nope"), KindForbidden, http.StatusForbidden},
		{NotFound("gone"), KindNotFound, http.StatusNotFound},
		{Validation("bad input"), KindValidation, http.StatusBadRequest},
		{Conflict("already there"), KindConflict, http.StatusConflict},
		{Internal(errors.New("boom")), KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.kind, KindOf(tc.err))
		assert.Equal(t, tc.status, HTTPStatus(tc.err))
	}
}

func TestUnknownErrorsAreInternal(t *testing.T) {
	err := errors.New("something unexpected")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("loading profile: %w", NotFound("student not found"))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(err))
}

func TestInternalHidesCause(t *testing.T) {
	cause := errors.New("pq: connection refused")
	err := Internal(cause)
	assert.NotContains(t, MessageOf(err), "connection refused")
	assert.ErrorIs(t, err, cause)
}
