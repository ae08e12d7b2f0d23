package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// newFakeGitHub starts a server that plays both the OAuth token endpoint and
// the /user API, and returns a provider pointed at it.
func newFakeGitHub(t *testing.T, userJSON string, userStatus int) *GitHubProvider {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"gho_test","token_type":"bearer"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(userStatus)
		w.Write([]byte(userJSON))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := NewGitHubProvider("client-id", "client-secret", "http://localhost/auth/github/callback")
	p.config.Endpoint = oauth2.Endpoint{
		AuthURL:  srv.URL + "/login/oauth/authorize",
		TokenURL: srv.URL + "/login/oauth/access_token",
	}
	p.userURL = srv.URL + "/user"
	return p
}

func TestGitHubProvider_AuthURLCarriesState(t *testing.T) {
	p := NewGitHubProvider("client-id", "secret", "http://localhost/cb")

	u := p.AuthURL("state-xyz")

	assert.True(t, strings.HasPrefix(u, "https://github.com/login/oauth/authorize"))
	assert.Contains(t, u, "state=state-xyz")
	assert.Contains(t, u, "client_id=client-id")
}

func TestGitHubProvider_Exchange(t *testing.T) {
	p := newFakeGitHub(t, `{"id":42,"login":"octocat","name":"The Octocat","email":""}`, http.StatusOK)

	u, err := p.Exchange(context.Background(), "code-123")
	require.NoError(t, err)

	assert.Equal(t, int64(42), u.ID)
	assert.Equal(t, "The Octocat", u.DisplayName())
	assert.Equal(t, "42+octocat@users.noreply.github.com", u.AccountEmail())
}

func TestGitHubProvider_ExchangeRejectsBadProfile(t *testing.T) {
	t.Run("non-200", func(t *testing.T) {
		p := newFakeGitHub(t, `{}`, http.StatusBadGateway)
		_, err := p.Exchange(context.Background(), "code")
		assert.Error(t, err)
	})

	t.Run("zero id", func(t *testing.T) {
		p := newFakeGitHub(t, `{"id":0,"login":"ghost"}`, http.StatusOK)
		_, err := p.Exchange(context.Background(), "code")
		assert.Error(t, err)
	})
}
