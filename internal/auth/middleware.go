package auth

import (
	"context"
	"net/http"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. If you use a plain string like
// context.WithValue(ctx, "identity", id), ANY package that knows the string
// can read or shadow your value. Using a package-private type prevents
// collisions: only THIS package can create a key of type contextKey.
type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a copy of ctx carrying id.
//
// The GraphQL transport and tests use this directly; HTTP requests get their
// identity from the Annotate middleware.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity stored in ctx, or the anonymous
// identity if none was stored.
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey).(Identity)
	return id
}

// Annotate is a middleware that resolves the caller's identity on EVERY
// request and stores it in the request context.
//
// It never blocks a request: no 401 even for a forged or expired token.
// Handlers (via the service layer's Guard) decide what anonymity means for
// their operation.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware is a function that takes an http.Handler and returns a new
// http.Handler that wraps the original:
//
//	req → Annotate → Logger → Handler → Logger → Annotate → resp
func Annotate(resolver *Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := resolver.Resolve(r.Header)
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireAuth rejects anonymous requests with 401 Unauthorized.
//
// It must run after Annotate. It is used on account routes (/auth/status,
// /post-image) where no anonymous behaviour exists; post mutations rely on the
// Guard instead so the same rules apply to REST and GraphQL.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IdentityFromContext(r.Context()).Authenticated {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthenticated","message":"Not authenticated."}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
