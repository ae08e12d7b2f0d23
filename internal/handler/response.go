package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
//   writeJSON(w, http.StatusOK, data)
//   writeError(w, err)
//
// CONSISTENT ERROR FORMAT:
// Every error response from the API has the same shape:
//   {"error": "not_found", "message": "post not found with id abc123"}
//
// Validation errors add the per-field violations:
//   {"error": "validation_error", "message": "Validation failed, ...",
//    "data": [{"field": "title", "message": "Title must be ..."}]}

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/blog-feed/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string                    `json:"error"`          // Machine-readable error type (e.g., "not_found")
	Message string                    `json:"message"`        // Human-readable description
	Data    []apperror.FieldViolation `json:"data,omitempty"` // Validation details
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// You MUST set headers and status code BEFORE writing the body.
// Once you call w.Write() (which Encode does internally), the headers are sent.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; we can only log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// Classify maps a domain error to its HTTP status and machine-readable code.
// The GraphQL transport uses it too, so both surfaces agree.
//
// errors.Is() walks the whole chain (via Unwrap()), so a service error like
// fmt.Errorf("...: %w", apperror.NotFound(...)) still maps to 404.
func Classify(err error) (status int, code string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusUnprocessableEntity, "validation_error" // 422
	case errors.Is(err, apperror.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated" // 401
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden" // 403
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found" // 404
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict" // 409
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// PublicMessage returns the message safe to show a client. Internal errors
// never leak their cause: it might contain SQL, file paths or hostnames.
func PublicMessage(err error) (string, []apperror.FieldViolation) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || errors.Is(err, apperror.ErrInternal) {
		return "An internal error occurred", nil
	}
	if errors.Is(err, apperror.ErrValidation) {
		return appErr.Message, appErr.Violations
	}
	return appErr.Message, nil
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// WHY HERE AND NOT IN THE SERVICE?
// The service layer does not know about HTTP status codes; the same error
// becomes a GraphQL error extension on the other transport.
func writeError(w http.ResponseWriter, err error) {
	status, code := Classify(err)
	if status == http.StatusInternalServerError {
		// AppError.Error() is the public message; log the wrapped cause.
		cause := err
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Err != nil {
			cause = appErr.Err
		}
		slog.Error("request failed", slog.String("error", cause.Error()))
	}

	message, violations := PublicMessage(err)
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
		Data:    violations,
	})
}

// MaxJSONBytes caps a JSON request body.
const MaxJSONBytes = 1 << 20

// decodeJSON reads a JSON request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "Invalid JSON body")
	}
	return nil
}
