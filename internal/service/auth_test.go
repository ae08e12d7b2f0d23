package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/sakif/blog-feed/internal/apperror"
	"github.com/sakif/blog-feed/internal/auth"
)

// =========================================================================
// HELPERS
// =========================================================================

func newTestAuthService(t *testing.T, repo *fakeUserRepo) (*AuthService, *auth.TokenService) {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	// Cost 4 is the bcrypt minimum, which keeps tests fast.
	ps, err := auth.NewPasswordServiceWithCost(4)
	if err != nil {
		t.Fatalf("NewPasswordServiceWithCost: %v", err)
	}

	return NewAuthService(repo, ts, ps, quietLogger()), ts
}

func signup(t *testing.T, svc *AuthService, email, password string) string {
	t.Helper()
	u, err := svc.Signup(context.Background(), SignupInput{Email: email, Password: password, Name: "Max"})
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	return u.ID
}

// =========================================================================
// SIGNUP
// =========================================================================

func TestSignup_Success(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)

	user, err := svc.Signup(context.Background(), SignupInput{
		Email:    "  Max@Example.COM ",
		Password: "secret",
		Name:     " Max ",
	})
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	if user.ID == "" {
		t.Error("Signup() did not set an ID")
	}
	if user.Email != "max@example.com" {
		t.Errorf("Email = %q, want normalized %q", user.Email, "max@example.com")
	}
	if user.Name != "Max" {
		t.Errorf("Name = %q, want %q", user.Name, "Max")
	}
	if user.Status != "I'm new here!" {
		t.Errorf("Status = %q, want the default", user.Status)
	}
	if user.PasswordHash == "" || user.PasswordHash == "secret" {
		t.Error("password should be stored hashed")
	}
}

func TestSignup_HashNeverSerialized(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())

	user, err := svc.Signup(context.Background(), SignupInput{Email: "a@b.co", Password: "secret", Name: "A"})
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	out, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	if strings.Contains(string(out), user.PasswordHash) || strings.Contains(strings.ToLower(string(out)), "password") {
		t.Errorf("serialized user leaks the hash: %s", out)
	}
}

func TestSignup_DuplicateEmailConflictsAndCreatesNothing(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)
	signup(t, svc, "max@example.com", "secret")

	_, err := svc.Signup(context.Background(), SignupInput{Email: "MAX@example.com", Password: "other1", Name: "Max 2"})

	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Signup() error = %v, want ErrConflict", err)
	}
	if len(repo.users) != 1 {
		t.Errorf("users = %d, want 1", len(repo.users))
	}
}

func TestSignup_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    SignupInput
		field string
	}{
		{"bad email", SignupInput{Email: "not-an-email", Password: "secret", Name: "Max"}, "email"},
		{"display-name email", SignupInput{Email: "Max <max@example.com>", Password: "secret", Name: "Max"}, "email"},
		{"short password", SignupInput{Email: "max@example.com", Password: " abc ", Name: "Max"}, "password"},
		{"missing name", SignupInput{Email: "max@example.com", Password: "secret", Name: "  "}, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeUserRepo()
			svc, _ := newTestAuthService(t, repo)

			_, err := svc.Signup(context.Background(), tt.in)

			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("Signup() error = %v, want ErrValidation", err)
			}
			if appErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.field)
			}
			if len(repo.users) != 0 {
				t.Error("a user was created despite invalid input")
			}
		})
	}
}

func TestSignup_StoreFailureIsInternal(t *testing.T) {
	repo := newFakeUserRepo()
	repo.createErr = errStoreDown
	svc, _ := newTestAuthService(t, repo)

	_, err := svc.Signup(context.Background(), SignupInput{Email: "a@b.co", Password: "secret", Name: "A"})

	if !errors.Is(err, apperror.ErrInternal) {
		t.Errorf("Signup() error = %v, want ErrInternal", err)
	}
}

// =========================================================================
// LOGIN
// =========================================================================

func TestLogin_Success(t *testing.T) {
	svc, tokens := newTestAuthService(t, newFakeUserRepo())
	id := signup(t, svc, "max@example.com", "secret")

	result, err := svc.Login(context.Background(), " MAX@example.com", "secret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if result.User.ID != id {
		t.Errorf("User.ID = %q, want %q", result.User.ID, id)
	}
	claims, err := tokens.Verify(result.Token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.UserID != id || claims.Email != "max@example.com" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestLogin_PasswordWithSurroundingSpaces(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())
	signup(t, svc, "max@example.com", " secret123 ")

	if _, err := svc.Login(context.Background(), "max@example.com", " secret123 "); err != nil {
		t.Fatalf("Login(as typed) error = %v", err)
	}
	if _, err := svc.Login(context.Background(), "max@example.com", "secret123"); !errors.Is(err, apperror.ErrUnauthenticated) {
		t.Errorf("Login(trimmed) error = %v, want ErrUnauthenticated", err)
	}
}

func TestLogin_Failures(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())
	signup(t, svc, "max@example.com", "secret")

	tests := []struct {
		name, email, password, message string
	}{
		{"unknown email", "nobody@example.com", "secret", msgUnknownEmail},
		{"wrong password", "max@example.com", "wrong!", msgWrongPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tt.email, tt.password)

			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrUnauthenticated) {
				t.Fatalf("Login() error = %v, want ErrUnauthenticated", err)
			}
			if appErr.Message != tt.message {
				t.Errorf("Message = %q, want %q", appErr.Message, tt.message)
			}
		})
	}
}

// =========================================================================
// STATUS
// =========================================================================

func TestStatus_GetAndUpdate(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())
	id := auth.Authenticated(signup(t, svc, "max@example.com", "secret"))

	status, err := svc.GetStatus(context.Background(), id)
	if err != nil || status != "I'm new here!" {
		t.Fatalf("GetStatus() = %q, %v", status, err)
	}

	if err := svc.UpdateStatus(context.Background(), id, "  Busy writing  "); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	status, _ = svc.GetStatus(context.Background(), id)
	if status != "Busy writing" {
		t.Errorf("status = %q, want %q", status, "Busy writing")
	}

	if err := svc.UpdateStatus(context.Background(), id, "   "); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("UpdateStatus(blank) error = %v, want ErrValidation", err)
	}
}

func TestStatus_RequiresAuthentication(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())

	if _, err := svc.GetStatus(context.Background(), auth.Anonymous()); !errors.Is(err, apperror.ErrUnauthenticated) {
		t.Errorf("GetStatus() error = %v, want ErrUnauthenticated", err)
	}
	if err := svc.UpdateStatus(context.Background(), auth.Anonymous(), "x"); !errors.Is(err, apperror.ErrUnauthenticated) {
		t.Errorf("UpdateStatus() error = %v, want ErrUnauthenticated", err)
	}
	if _, err := svc.GetStatus(context.Background(), auth.Authenticated("ghost")); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetStatus(ghost) error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// GITHUB SIGN-IN
// =========================================================================

func TestLoginWithGitHub_CreatesThenLinks(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)
	gh := &auth.GitHubUser{ID: 42, Login: "octocat", Name: "The Octocat", Email: "Octo@GitHub.com"}

	first, err := svc.LoginWithGitHub(context.Background(), gh)
	if err != nil {
		t.Fatalf("LoginWithGitHub() error = %v", err)
	}
	if first.Token == "" || first.User.Email != "octo@github.com" || first.User.Name != "The Octocat" {
		t.Errorf("first sign-in = %+v", first.User)
	}

	second, err := svc.LoginWithGitHub(context.Background(), gh)
	if err != nil {
		t.Fatalf("LoginWithGitHub() second error = %v", err)
	}
	if second.User.ID != first.User.ID || len(repo.users) != 1 {
		t.Error("second sign-in should reuse the same account")
	}

	// A GitHub-only account has no password.
	if _, err := svc.Login(context.Background(), "octo@github.com", ""); !errors.Is(err, apperror.ErrUnauthenticated) {
		t.Errorf("password login to a GitHub account: error = %v, want ErrUnauthenticated", err)
	}
}

func TestLoginWithGitHub_LinksExistingPasswordAccount(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)
	id := signup(t, svc, "octo@github.com", "secret")

	result, err := svc.LoginWithGitHub(context.Background(), &auth.GitHubUser{ID: 1, Login: "octo", Email: "octo@github.com"})
	if err != nil {
		t.Fatalf("LoginWithGitHub() error = %v", err)
	}
	if result.User.ID != id {
		t.Errorf("linked to %q, want existing %q", result.User.ID, id)
	}
}

func TestLoginWithGitHub_NilUser(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())

	if _, err := svc.LoginWithGitHub(context.Background(), nil); err == nil {
		t.Error("LoginWithGitHub(nil) should fail")
	}
}
