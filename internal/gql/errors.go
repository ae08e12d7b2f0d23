package gql

import (
	"github.com/sakif/blog-feed/internal/handler"
)

// resolverError is what resolvers return instead of a raw service error.
//
// graphql-go copies Extensions() of the original error into the response's
// "extensions" object, so clients get the same code and status as the REST
// surface:
//
//	{"message": "Not authorized!",
//	 "extensions": {"code": "forbidden", "status": 403}}
type resolverError struct {
	message    string
	extensions map[string]any
	cause      error
}

func (e *resolverError) Error() string              { return e.message }
func (e *resolverError) Extensions() map[string]any { return e.extensions }
func (e *resolverError) Unwrap() error              { return e.cause }

func toGraphQLError(err error) error {
	status, code := handler.Classify(err)
	message, violations := handler.PublicMessage(err)

	ext := map[string]any{
		"code":   code,
		"status": status,
	}
	if len(violations) > 0 {
		ext["data"] = violations
	}
	return &resolverError{message: message, extensions: ext, cause: err}
}
