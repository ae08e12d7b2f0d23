// Package service: account business logic.
//
// AuthService sits between the transports and the repository/auth utilities:
//
//	AuthHandler / GraphQL → AuthService → UserRepository (DB)
//	                                    ↘ PasswordService (bcrypt)
//	                                    ↘ TokenService (JWT)
//
// KEY RESPONSIBILITIES:
//   - Signup: validate, normalize the email, hash the password, create the user
//   - Login: check the password and issue a bearer token
//   - Status: read and update the user's free-text status
//   - GitHub sign-in: link (or create) an account by email, issue the same token
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/sakif/blog-feed/internal/apperror"
	"github.com/sakif/blog-feed/internal/auth"
	"github.com/sakif/blog-feed/internal/model"
	"github.com/sakif/blog-feed/internal/repository"
)

// MinPasswordLength applies after trimming whitespace.
const MinPasswordLength = 5

// Login failures. Both are 401; the messages differ like they always have
// for this API's clients.
const (
	msgUnknownEmail  = "A user with this email could not be found."
	msgWrongPassword = "Wrong password!"
	msgEmailTaken    = "E-Mail address already exists!"
)

// AuthService handles the account business logic.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository  → read/write user records
//   - tokens     *auth.TokenService         → issue bearer tokens
//   - passwords  *auth.PasswordService      → bcrypt hashing
//   - logger     *slog.Logger               → structured logging
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// SignupInput is the payload of a signup request.
type SignupInput struct {
	Email    string
	Password string
	Name     string
}

// AuthResult bundles the user record and the issued token so a handler can
// respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// NormalizeEmail trims and lower-cases an address. Signup and login both
// use it, so "Max@Test.com " and "max@test.com" are the same account.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup creates an account.
//
// The email lookup gives a clean Conflict for the common case; the unique
// index in the store catches the concurrent one and also maps to Conflict.
// The returned user never carries the hash to a client: PasswordHash is
// tagged json:"-".
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*model.User, error) {
	email := NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)

	var violations []apperror.FieldViolation
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		violations = append(violations, apperror.FieldViolation{Field: "email", Message: "Please enter a valid email."})
	}
	// Whitespace does not count toward the minimum, but the password is
	// hashed exactly as typed so Login can compare it unchanged.
	if utf8.RuneCountInString(strings.TrimSpace(in.Password)) < MinPasswordLength {
		violations = append(violations, apperror.FieldViolation{Field: "password", Message: "Password too short!"})
	}
	if name == "" {
		violations = append(violations, apperror.FieldViolation{Field: "name", Message: "Name is required."})
	}
	if len(violations) > 0 {
		return nil, apperror.Invalid(MsgValidationFailed, violations)
	}

	_, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, emailTaken()
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, storeErr("looking up email", err)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("service/auth: hashing password: %w", err))
	}

	user := &model.User{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Status:       model.DefaultStatus,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, emailTaken()
		}
		return nil, storeErr("creating user", err)
	}

	s.logger.Info("user signed up", slog.String("userID", user.ID))
	return user, nil
}

// Login checks the credentials and issues a bearer token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = NormalizeEmail(email)

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated(msgUnknownEmail)
		}
		return nil, storeErr("looking up email", err)
	}

	// Matches is false for an empty hash, so GitHub-only accounts cannot
	// log in with a password.
	if !s.passwords.Matches(user.PasswordHash, password) {
		return nil, apperror.Unauthenticated(msgWrongPassword)
	}

	return s.issue(user)
}

// LoginWithGitHub links a GitHub account to the local account with the same
// email, creating one (without a password) on first sign-in.
func (s *AuthService) LoginWithGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}
	email := NormalizeEmail(gh.AccountEmail())

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, apperror.ErrNotFound) {
		user = &model.User{
			Email:  email,
			Name:   gh.DisplayName(),
			Status: model.DefaultStatus,
		}
		err = s.users.CreateUser(ctx, user)
		if errors.Is(err, apperror.ErrConflict) {
			// Lost a race with a concurrent first sign-in.
			user, err = s.users.GetUserByEmail(ctx, email)
		} else if err == nil {
			s.logger.Info("user created via GitHub",
				slog.String("userID", user.ID),
				slog.String("login", gh.Login),
			)
		}
	}
	if err != nil {
		return nil, storeErr("resolving GitHub user", err)
	}

	return s.issue(user)
}

// GetUser returns the account behind id.
func (s *AuthService) GetUser(ctx context.Context, id auth.Identity) (*model.User, error) {
	if !id.Authenticated {
		return nil, apperror.Unauthenticated(msgNotAuthenticated)
	}
	user, err := s.users.GetUserByID(ctx, id.UserID)
	if err != nil {
		return nil, storeErr("loading user", err)
	}
	return user, nil
}

// GetStatus returns the caller's status text.
func (s *AuthService) GetStatus(ctx context.Context, id auth.Identity) (string, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return "", err
	}
	return user.Status, nil
}

// UpdateStatus replaces the caller's status text.
func (s *AuthService) UpdateStatus(ctx context.Context, id auth.Identity, status string) error {
	if !id.Authenticated {
		return apperror.Unauthenticated(msgNotAuthenticated)
	}
	status = strings.TrimSpace(status)
	if status == "" {
		return apperror.Invalid(MsgValidationFailed, []apperror.FieldViolation{
			{Field: "status", Message: "Status must not be empty."},
		})
	}

	if err := s.users.UpdateStatus(ctx, id.UserID, status); err != nil {
		return storeErr("updating status", err)
	}
	return nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("service/auth: issuing token for %s: %w", user.ID, err))
	}
	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return &AuthResult{User: user, Token: token}, nil
}

func emailTaken() error {
	return &apperror.AppError{
		Err:     apperror.ErrConflict,
		Message: msgEmailTaken,
		Field:   "email",
	}
}
