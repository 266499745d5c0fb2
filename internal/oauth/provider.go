// Package oauth adapts GitHub, Google and Discord to one interface.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
//  1. The frontend sends the user to Adapter.AuthURL().
//  2. The provider redirects back to the frontend with a short-lived "code".
//  3. The backend trades the code for provider tokens (ExchangeCode). This is
//     a server-to-server call carrying the client secret.
//  4. The backend calls the provider's user-info API with the access token
//     (FetchIdentity) and gets a normalized Identity.
//
// Adapters never touch the database and never retry. Every failure is an
// apperror.ErrProvider carrying the provider's own message when one exists.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/codeofclans/internal/apperror"
	"github.com/sakif/codeofclans/internal/model"
)

// DefaultTimeout bounds each provider HTTP call when no client is supplied.
const DefaultTimeout = 15 * time.Second

// Adapter is implemented by every supported provider.
type Adapter interface {
	Name() model.Provider
	AuthURL() string
	ExchangeCode(ctx context.Context, code string) (*Tokens, error)
	FetchIdentity(ctx context.Context, accessToken string) (*Identity, error)
}

// Tokens are the provider credentials returned by the token endpoint.
// RefreshToken is empty for providers that don't issue one (GitHub).
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// Identity is a provider user normalized to the fields the resolver needs.
type Identity struct {
	SubjectID   string // provider's stable user id, never empty
	Email       string
	Username    string
	DisplayName string
	AvatarURL   string
}

// Config holds one provider's registered client credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Option customizes an adapter. Tests use it to point adapters at httptest
// servers.
type Option func(*options)

type options struct {
	client   *http.Client
	authURL  string
	tokenURL string
	apiBase  string
}

// WithHTTPClient sets the client used for the token exchange and API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithTimeout sets a per-request timeout on the default client.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.client = &http.Client{Timeout: d} }
}

// WithAuthURL overrides the provider's authorization endpoint.
func WithAuthURL(u string) Option {
	return func(o *options) { o.authURL = u }
}

// WithTokenURL overrides the provider's token endpoint.
func WithTokenURL(u string) Option {
	return func(o *options) { o.tokenURL = u }
}

// WithAPIBaseURL overrides the base URL of the provider's user API.
func WithAPIBaseURL(u string) Option {
	return func(o *options) { o.apiBase = strings.TrimRight(u, "/") }
}

// base holds what every adapter shares: the oauth2 config, the HTTP client
// and the API root.
type base struct {
	name    model.Provider
	config  *oauth2.Config
	client  *http.Client
	apiBase string
}

func newBase(name model.Provider, cfg Config, endpoint oauth2.Endpoint, scopes []string, apiBase string, opts []Option) base {
	o := options{
		client:   &http.Client{Timeout: DefaultTimeout},
		authURL:  endpoint.AuthURL,
		tokenURL: endpoint.TokenURL,
		apiBase:  apiBase,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return base{
		name: name,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  o.authURL,
				TokenURL: o.tokenURL,
				// client_id and client_secret go in the form body.
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client:  o.client,
		apiBase: o.apiBase,
	}
}

func (b *base) Name() model.Provider { return b.name }

// withClient makes x/oauth2 use our client for the token endpoint.
func (b *base) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, b.client)
}

// exchange trades code for tokens through oauth2.Config.Exchange.
func (b *base) exchange(ctx context.Context, code string) (*Tokens, error) {
	if code == "" {
		return nil, apperror.ValidationFailed("code", "Authorization code is required")
	}

	tok, err := b.config.Exchange(b.withClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("oauth/%s: exchanging code: %w", b.name, b.providerError(exchangeMessage(err)))
	}

	return &Tokens{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}, nil
}

// exchangeMessage prefers error_description, then error, from the token
// endpoint's payload.
func exchangeMessage(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch {
		case re.ErrorDescription != "" && re.ErrorCode != "":
			return fmt.Sprintf("%s (Status: %s)", re.ErrorDescription, re.ErrorCode)
		case re.ErrorDescription != "":
			return re.ErrorDescription
		case re.ErrorCode != "":
			return re.ErrorCode
		case re.Response != nil:
			return "Failed to get access token (HTTP " + re.Response.Status + ")"
		}
	}
	return "Failed to get access token"
}

func (b *base) providerError(msg string) *apperror.AppError {
	return apperror.Provider(string(b.name), msg)
}

// statusError is returned by getJSON for non-2xx responses.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// getJSON performs an authenticated GET against the provider API and
// decodes the JSON body into out.
func (b *base) getJSON(ctx context.Context, accessToken, path string, out any) error {
	// oauth2.NewClient wraps our client's transport and adds the
	// "Authorization: Bearer <token>" header to every request.
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	client := oauth2.NewClient(b.withClient(ctx), src)
	client.Timeout = b.client.Timeout

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.apiBase+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// subjectID decodes a provider user id that may arrive as a JSON number
// (GitHub) or a JSON string (Google, Discord).
type subjectID string

func (s *subjectID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = subjectID(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = subjectID(n.String())
	return nil
}
