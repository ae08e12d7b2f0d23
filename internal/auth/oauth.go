package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GitHubUser is the portion of the GitHub /user API response we care about.
// The full object is much larger; only these fields are decoded.
//
// API docs: https://docs.github.com/en/rest/users/users#get-the-authenticated-user
type GitHubUser struct {
	ID    int64  `json:"id"`    // GitHub's numeric user ID, stable, never changes
	Login string `json:"login"` // GitHub username
	Name  string `json:"name"`  // Display name (may be empty)
	Email string `json:"email"` // Primary public email (empty if hidden)
}

// DisplayName returns the best name to show for the account.
func (u *GitHubUser) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Login
}

// AccountEmail returns the email used to link the GitHub account to a local
// account. Users who hide their email get GitHub's stable noreply address.
func (u *GitHubUser) AccountEmail() string {
	if u.Email != "" {
		return u.Email
	}
	return fmt.Sprintf("%d+%s@users.noreply.github.com", u.ID, u.Login)
}

// GitHubProvider wraps golang.org/x/oauth2 for the GitHub Authorization Code
// flow. It is an optional second way to obtain the same bearer token that
// email/password login issues.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
//  1. We redirect the user to GitHub's authorization endpoint with our ClientID.
//  2. The user approves the request on GitHub.
//  3. GitHub redirects back to our CallbackURL with a short-lived "code".
//  4. We exchange the code for an access token (server-to-server).
//  5. We use the access token to read the GitHub user profile.
//
// The code-for-token exchange in step 4 is authenticated with ClientSecret
// and never passes through the browser. The GitHub access token is used
// once and dropped: clients only ever see our own JWT.
//
// Package docs: https://pkg.go.dev/golang.org/x/oauth2
type GitHubProvider struct {
	config  *oauth2.Config
	userURL string
}

// NewGitHubProvider creates a GitHubProvider with the given credentials.
//
// ClientID and ClientSecret come from an OAuth App registered under
// https://github.com/settings/developers ("OAuth Apps", "New OAuth App").
// callbackURL must match the "Authorization callback URL" configured there,
// e.g. "http://localhost:8080/auth/github/callback".
//
// Scopes:
//   - "read:user" for the public profile (id, login, name)
//   - "user:email" for the email used to link a local account
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		userURL: "https://api.github.com/user",
	}
}

// AuthURL returns the URL to redirect the user to for authorization.
//
// STATE PARAMETER:
// state is a random value (an xid) that the login handler also stores in a
// short-lived cookie. GitHub echoes it back on the callback, and a request
// whose state does not match the cookie is rejected. That stops a third
// party from completing a sign-in flow it started in someone else's browser.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the authorization code for the GitHub user profile.
//
// STEPS:
//  1. POST the code to GitHub's token endpoint (oauth2.Config.Exchange).
//  2. GET /user with the resulting access token.
//  3. Decode and sanity-check the profile (a zero ID is never valid).
//
// The code is single-use and expires after ten minutes, so a replayed
// callback fails at step 1.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*GitHubUser, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// oauth2.Config.Client returns an *http.Client that adds
	// "Authorization: Bearer <token>" to every request.
	client := p.config.Client(ctx, oauthToken)
	resp, err := client.Get(p.userURL)
	if err != nil {
		return nil, fmt.Errorf("auth: calling GitHub /user API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: GitHub /user API returned status %d", resp.StatusCode)
	}

	var ghUser GitHubUser
	if err := json.NewDecoder(resp.Body).Decode(&ghUser); err != nil {
		return nil, fmt.Errorf("auth: decoding GitHub /user response: %w", err)
	}
	if ghUser.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}
	return &ghUser, nil
}
