package oauth

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/sakif/codeofclans/internal/model"
)

const googleAPI = "https://www.googleapis.com"

var googleScopes = []string{
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

type googleUser struct {
	ID            subjectID `json:"id"`
	Email         string    `json:"email"`
	VerifiedEmail *bool     `json:"verified_email"`
	Name          string    `json:"name"`
	Picture       string    `json:"picture"`
}

// Google adapts Google's OAuth 2.0 web flow (userinfo v2).
type Google struct {
	base
}

// NewGoogle creates a Google adapter.
func NewGoogle(cfg Config, opts ...Option) *Google {
	return &Google{base: newBase(model.ProviderGoogle, cfg, endpoints.Google, googleScopes, googleAPI, opts)}
}

// AuthURL asks for offline access so Google returns a refresh token, and
// always shows the account chooser.
func (g *Google) AuthURL() string {
	return g.config.AuthCodeURL("",
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

func (g *Google) ExchangeCode(ctx context.Context, code string) (*Tokens, error) {
	return g.exchange(ctx, code)
}

// FetchIdentity loads the Google profile. Google has no handle, so the
// username is the email's local part, or google_<id> when there is no email.
// An address Google marks unverified still seeds the username but is not
// returned as Email, so it can never link to an existing account.
func (g *Google) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	var u googleUser
	if err := g.getJSON(ctx, accessToken, "/oauth2/v2/userinfo", &u); err != nil {
		return nil, fmt.Errorf("oauth/google: %w: %v", g.providerError("Failed to get user data from Google"), err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("oauth/google: %w", g.providerError("Failed to get user data from Google"))
	}

	username := "google_" + string(u.ID)
	if local, _, ok := strings.Cut(u.Email, "@"); ok && local != "" {
		username = local
	}

	email := u.Email
	if u.VerifiedEmail != nil && !*u.VerifiedEmail {
		email = ""
	}

	return &Identity{
		SubjectID:   string(u.ID),
		Email:       email,
		Username:    username,
		DisplayName: u.Name,
		AvatarURL:   u.Picture,
	}, nil
}
