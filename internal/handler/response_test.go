package handler_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/sakif/blog-feed/internal/apperror"
	"github.com/sakif/blog-feed/internal/handler"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", apperror.ValidationFailed("title", "too short"), http.StatusUnprocessableEntity, "validation_error"},
		{"unauthenticated", apperror.Unauthenticated("Not authenticated."), http.StatusUnauthorized, "unauthenticated"},
		{"forbidden", apperror.Forbidden("Not authorized!"), http.StatusForbidden, "forbidden"},
		{"not found", apperror.NotFound("post", "abc"), http.StatusNotFound, "not_found"},
		{"conflict", apperror.Conflict("user", "a@b.c"), http.StatusConflict, "conflict"},
		{"wrapped not found", fmt.Errorf("service: loading: %w", apperror.NotFound("post", "abc")), http.StatusNotFound, "not_found"},
		{"internal", apperror.Internal(errors.New("disk full")), http.StatusInternalServerError, "internal_error"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := handler.Classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestPublicMessage_HidesInternalCause(t *testing.T) {
	msg, violations := handler.PublicMessage(apperror.Internal(errors.New("SELECT * FROM users failed")))
	assert.Equal(t, "An internal error occurred", msg)
	assert.Nil(t, violations)

	msg, violations = handler.PublicMessage(apperror.Invalid("Validation failed", []apperror.FieldViolation{
		{Field: "title", Message: "too short"},
	}))
	assert.Equal(t, "Validation failed", msg)
	assert.Len(t, violations, 1)
}
