// Package auth: account password hashing.
//
// BCRYPT IN ONE PARAGRAPH:
// bcrypt is deliberately slow. Each call to GenerateFromPassword picks a
// fresh random salt, runs 2^cost rounds of the Blowfish key schedule and
// returns one printable string. Two accounts with the same password end up
// with different hashes, and there is no separate salt column.
//
// Passwords are stored only as bcrypt hashes in users.password_hash. The
// hash string carries its own salt and cost:
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (12 → 2^12 = 4096 rounds)
//	 version
//
// so an account hashed at an older cost keeps verifying after DefaultCost
// is raised; only new hashes pick up the new cost.
//
// Package docs: https://pkg.go.dev/golang.org/x/crypto/bcrypt
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor for new accounts.
//
// COST TUNING:
// Each step up doubles the time per hash. 12 lands around 250ms on a
// typical server, which a login request absorbs easily. Re-measure on the
// production hardware before changing it: aim for 200-300ms.
const DefaultCost = 12

// maxPasswordBytes is bcrypt's input limit. Longer input would be silently
// truncated, so Hash rejects it.
const maxPasswordBytes = 72

// ErrPasswordMismatch is returned by Verify when the password is wrong.
var ErrPasswordMismatch = errors.New("auth: invalid password")

// PasswordService hashes signup passwords and checks login attempts.
//
// The cost is a field rather than a package constant so tests can build it
// with cost 4 (bcrypt.MinCost) through NewPasswordServiceWithCost. At cost
// 12 every Signup in a test would spend a quarter of a second in bcrypt.
type PasswordService struct {
	cost int
}

// NewPasswordService uses DefaultCost.
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: DefaultCost}
}

// NewPasswordServiceWithCost rejects costs bcrypt would refuse later.
func NewPasswordServiceWithCost(cost int) (*PasswordService, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("auth: bcrypt cost must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, cost)
	}
	return &PasswordService{cost: cost}, nil
}

// Hash returns the bcrypt hash of plaintext, exactly as typed.
//
// The output is self-contained, for example:
//
//	$2a$12$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy
//
// Store it as-is; CompareHashAndPassword reads salt and cost back out of
// it. Input over 72 bytes is an error.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", fmt.Errorf("auth: password must be %d bytes or fewer", maxPasswordBytes)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify compares plaintext with a stored hash: nil on a match,
// ErrPasswordMismatch on a wrong password, another error for a malformed
// hash.
//
// TIMING:
// CompareHashAndPassword re-hashes plaintext with the stored salt and cost,
// then compares with subtle.ConstantTimeCompare. Response time does not
// reveal how much of a guess was right.
//
// Usage:
//
//	if err := ps.Verify(user.PasswordHash, input); errors.Is(err, auth.ErrPasswordMismatch) {
//	    // wrong password
//	}
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrPasswordMismatch
	default:
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
}

// Matches is the login check. It never fails: a wrong password, an empty
// hash (accounts created through GitHub sign-in) and a malformed hash all
// report false.
func (p *PasswordService) Matches(hash, plaintext string) bool {
	if hash == "" {
		return false
	}
	return p.Verify(hash, plaintext) == nil
}
