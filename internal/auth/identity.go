package auth

import (
	"net/http"
	"strings"
)

// Identity is the per-request authentication annotation.
//
// It is a plain immutable value: produced fresh for every request by the
// Resolver, carried through the handler chain in the request context, and
// never cached or persisted. The zero value is the anonymous identity.
type Identity struct {
	Authenticated bool
	UserID        string
}

// Anonymous returns the identity of a caller without valid credentials.
func Anonymous() Identity {
	return Identity{}
}

// Authenticated returns the identity of a verified caller.
func Authenticated(userID string) Identity {
	return Identity{Authenticated: true, UserID: userID}
}

// tokenVerifier is the slice of TokenService the resolver needs.
type tokenVerifier interface {
	Verify(token string) (*Claims, error)
}

// Resolver turns request credentials into an Identity.
//
// NEVER REJECTS:
// Resolve has no error return on purpose. A missing header, a "Basic ..."
// header, an empty token, a forged signature or an expired token all produce
// the anonymous identity. Some endpoints (listing posts) must stay reachable
// without credentials, so only the Guard decides whether anonymity is allowed
// for a given operation.
type Resolver struct {
	tokens tokenVerifier
}

// NewResolver creates a Resolver backed by the given token service.
func NewResolver(tokens *TokenService) *Resolver {
	return &Resolver{tokens: tokens}
}

// Resolve extracts "Authorization: Bearer <token>" from the headers and
// verifies it.
func (r *Resolver) Resolve(h http.Header) Identity {
	token, ok := bearerToken(h.Get("Authorization"))
	if !ok {
		return Anonymous()
	}

	claims, err := r.tokens.Verify(token)
	if err != nil {
		return Anonymous()
	}
	return Authenticated(claims.UserID)
}

// bearerToken extracts the token from an Authorization header value.
// The scheme comparison is case-insensitive (RFC 7235).
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
