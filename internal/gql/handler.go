package gql

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/graphql-go/graphql"
	"github.com/sakif/blog-feed/internal/handler"
)

// request is the standard GraphQL-over-HTTP body.
type request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName"`
}

// Handler serves POST /graphql.
//
// The caller's identity is NOT resolved here: the Annotate middleware has
// already put it in r.Context(), and that context is passed to every
// resolver as p.Context.
type Handler struct {
	schema graphql.Schema
	logger *slog.Logger
}

func NewHandler(schema graphql.Schema, logger *slog.Logger) *Handler {
	return &Handler{schema: schema, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, handler.MaxJSONBytes)

	var req request
	err := json.NewDecoder(r.Body).Decode(&req)
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		writeResult(w, http.StatusRequestEntityTooLarge, map[string]any{
			"errors": []map[string]any{{
				"message":    "request body too large",
				"extensions": map[string]any{"code": "validation_error", "status": http.StatusRequestEntityTooLarge},
			}},
		})
		return
	}
	if err != nil || req.Query == "" {
		writeResult(w, http.StatusBadRequest, map[string]any{
			"errors": []map[string]any{{
				"message":    "request body must be JSON with a non-empty query",
				"extensions": map[string]any{"code": "validation_error", "status": http.StatusBadRequest},
			}},
		})
		return
	}

	result := graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        r.Context(),
	})
	if result.HasErrors() {
		h.logger.Debug("graphql request had errors", slog.Int("count", len(result.Errors)))
	}

	// Resolver errors are part of a normal GraphQL response: 200 with
	// "errors" next to "data".
	writeResult(w, http.StatusOK, result)
}

func writeResult(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode GraphQL response", slog.String("error", err.Error()))
	}
}
