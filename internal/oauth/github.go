package oauth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2/github"

	"github.com/sakif/codeofclans/internal/model"
)

const githubAPI = "https://api.github.com"

// githubUser is the portion of the GitHub /user API response we care about.
// GitHub returns a much larger object; we only unmarshal the fields we need.
//
// GitHub API docs: https://docs.github.com/en/rest/users/users#get-the-authenticated-user
type githubUser struct {
	ID        subjectID `json:"id"`    // numeric, stable, never changes
	Login     string    `json:"login"` // e.g. "sakif"
	Name      string    `json:"name"`
	Email     string    `json:"email"` // empty when hidden in GitHub settings
	AvatarURL string    `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GitHub is the GitHub OAuth App adapter.
//
// GitHub issues no refresh token, and hides the email from /user unless the
// user made it public, in which case it is read from /user/emails.
type GitHub struct {
	base
}

// NewGitHub creates a GitHub adapter.
//
// You get ClientID and ClientSecret by registering an OAuth App at:
// https://github.com/settings/developers → "OAuth Apps" → "New OAuth App"
//
// The only scope requested is "user:email".
func NewGitHub(cfg Config, opts ...Option) *GitHub {
	return &GitHub{base: newBase(model.ProviderGitHub, cfg, github.Endpoint, []string{"user:email"}, githubAPI, opts)}
}

// AuthURL returns the authorization URL the frontend should open.
func (g *GitHub) AuthURL() string {
	return g.config.AuthCodeURL("")
}

// ExchangeCode trades an authorization code for a GitHub access token.
func (g *GitHub) ExchangeCode(ctx context.Context, code string) (*Tokens, error) {
	return g.exchange(ctx, code)
}

// FetchIdentity loads the GitHub user behind accessToken.
func (g *GitHub) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	var u githubUser
	if err := g.getJSON(ctx, accessToken, "/user", &u); err != nil {
		return nil, fmt.Errorf("oauth/github: %w: %v", g.providerError("Failed to get user data from GitHub"), err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("oauth/github: %w", g.providerError("Failed to get user data from GitHub"))
	}

	email := u.Email
	if email == "" {
		var err error
		email, err = g.primaryEmail(ctx, accessToken)
		if err != nil {
			return nil, fmt.Errorf("oauth/github: %w: %v", g.providerError("Failed to get user email from GitHub"), err)
		}
	}

	return &Identity{
		SubjectID:   string(u.ID),
		Email:       email,
		Username:    u.Login,
		DisplayName: u.Name,
		AvatarURL:   u.AvatarURL,
	}, nil
}

// primaryEmail returns the primary verified address from /user/emails.
//
// A non-2xx answer (token lacks the scope, endpoint disabled) means "no
// email" rather than a failed login. Transport and decode errors still fail.
func (g *GitHub) primaryEmail(ctx context.Context, accessToken string) (string, error) {
	var emails []githubEmail
	if err := g.getJSON(ctx, accessToken, "/user/emails", &emails); err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return "", nil
		}
		return "", err
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", nil
}
