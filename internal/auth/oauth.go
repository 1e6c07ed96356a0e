package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const defaultGitHubAPI = "https://api.github.com"

// ErrNoVerifiedEmail means the GitHub account has no verified email, so it
// cannot be matched to a local account.
var ErrNoVerifiedEmail = errors.New("auth: GitHub account has no verified email")

// GitHubUser is the part of the GitHub profile the app uses.
// Email is the primary verified address.
type GitHubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Email string `json:"email"`
}

// githubEmail is one entry of GET /user/emails.
type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GitHubProvider runs the OAuth 2.0 authorization code flow against GitHub:
//  1. AuthURL sends the browser to GitHub with a random state
//  2. GitHub redirects back to the callback with a short-lived code
//  3. Exchange trades the code for a token server-to-server and reads the
//     profile and email with it
type GitHubProvider struct {
	config  *oauth2.Config
	apiBase string
}

// GitHubOption configures a GitHubProvider.
type GitHubOption func(*GitHubProvider)

// WithGitHubEndpoints points the provider at other OAuth and API hosts.
// Tests use it with an httptest server.
func WithGitHubEndpoints(endpoint oauth2.Endpoint, apiBase string) GitHubOption {
	return func(p *GitHubProvider) {
		p.config.Endpoint = endpoint
		p.apiBase = strings.TrimRight(apiBase, "/")
	}
}

// NewGitHubProvider creates a GitHubProvider. callbackURL must match the
// OAuth App's "Authorization callback URL" exactly.
//
// Scopes: read:user for the profile, user:email for hidden addresses.
func NewGitHubProvider(clientID, clientSecret, callbackURL string, opts ...GitHubOption) *GitHubProvider {
	p := &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		apiBase: defaultGitHubAPI,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AuthURL returns the GitHub authorization URL for state. The caller keeps
// state in a cookie and compares it on callback.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for the GitHub profile. When the
// profile hides the email, the primary verified one is read from
// /user/emails. No verified email is ErrNoVerifiedEmail.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*GitHubUser, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// The client adds "Authorization: Bearer <token>" to every request.
	client := p.config.Client(ctx, token)

	var user GitHubUser
	if err := p.getJSON(ctx, client, "/user", &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, errors.New("auth: GitHub returned an invalid user (ID = 0)")
	}

	if user.Email == "" {
		var emails []githubEmail
		if err := p.getJSON(ctx, client, "/user/emails", &emails); err != nil {
			return nil, err
		}
		user.Email = primaryEmail(emails)
	}
	if user.Email == "" {
		return nil, ErrNoVerifiedEmail
	}
	user.Email = strings.ToLower(user.Email)

	return &user, nil
}

func (p *GitHubProvider) getJSON(ctx context.Context, client *http.Client, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+path, nil)
	if err != nil {
		return fmt.Errorf("auth: building GitHub %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("auth: calling GitHub %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: GitHub %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("auth: decoding GitHub %s response: %w", path, err)
	}
	return nil
}

// primaryEmail picks the primary verified address, else the first verified.
func primaryEmail(emails []githubEmail) string {
	fallback := ""
	for _, e := range emails {
		if !e.Verified {
			continue
		}
		if e.Primary {
			return e.Email
		}
		if fallback == "" {
			fallback = e.Email
		}
	}
	return fallback
}
