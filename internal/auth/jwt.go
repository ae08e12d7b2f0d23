// Package auth provides the credential primitives (password hashing, signed
// identity tokens) and the per-request identity resolution built on them.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. A user signs up (PUT /auth/signup): the password is bcrypt-hashed.
//  2. The user logs in (POST /auth/login): the password is verified and the
//     server issues a signed JWT valid for one hour.
//  3. The client sends the token on every request as
//     "Authorization: Bearer <token>".
//  4. The Annotate middleware resolves the header into an Identity and stores
//     it in the request context. It never rejects a request; the Guard in the
//     service layer decides whether anonymity is acceptable.
//
// WHY JWT?
// JWT (JSON Web Token) is stateless: the server doesn't need to store session
// data. All the information needed (userId, email, expiry) is inside the signed
// token. The signature ensures nobody can tamper with it without the secret key.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: algorithm + token type → {"alg":"HS256","typ":"JWT"}
//	- Payload: claims → {"userId":"...","email":"...","iat":...,"exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenLifetime is how long an issued identity token stays valid.
// It is fixed; there are no refresh tokens.
const TokenLifetime = time.Hour

const tokenIssuer = "blog-feed"

// ErrInvalidToken is wrapped by every Verify failure: bad signature, malformed
// token, wrong algorithm, missing claims or elapsed expiry. Callers that only
// need "valid or not" can check errors.Is(err, ErrInvalidToken).
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the JWT payload.
//
// UserID and Email are our own claims. jwt.RegisteredClaims supplies the
// standard ones (sub, iss, iat, exp). Subject duplicates UserID so generic JWT
// tooling can still tell who the token belongs to.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret key used to sign and verify tokens, and the clock
// used for both issuing and checking expiry. The clock is injectable so tests
// can move time forward instead of sleeping for an hour.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// TokenOption customises a TokenService.
type TokenOption func(*TokenService)

// WithClock replaces time.Now as the token clock.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	s := &TokenService{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue creates and signs a new identity token for the given user.
//
// Token lifetime: TokenLifetime (1 hour) from issuance.
// Signing algorithm: HS256 (HMAC-SHA256), symmetric, same key signs and verifies.
func (s *TokenService) Issue(userID, email string) (string, error) {
	return s.issueWithDuration(userID, email, TokenLifetime)
}

// issueWithDuration signs a token with a custom lifetime. Tests use it to
// mint already-expired tokens.
func (s *TokenService) issueWithDuration(userID, email string, d time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("auth: cannot issue a token without a user id")
	}
	now := s.now()
	c := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Verify parses and verifies a JWT string and returns its claims.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired, measured against the service clock
//   - Issuer matches (prevents tokens from other apps)
//   - Algorithm is HS256 (prevents "alg: none" / algorithm confusion attacks)
//
// Verify has no side effects.
func (s *TokenService) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: unexpected claims", ErrInvalidToken)
	}
	if c.UserID == "" {
		return nil, fmt.Errorf("%w: token has no userId", ErrInvalidToken)
	}
	return c, nil
}
