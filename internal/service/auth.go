// Package service holds the business rules of the identity backend.
//
// Handlers call services; services call the repository Store, the OAuth
// adapters and the token codec. Nothing in here knows about HTTP:
//
//	handler (HTTP) → SessionService → oauth.Adapter (provider)
//	                                ↘ IdentityResolver → repository.Store (DB)
//	                                ↘ auth.TokenService (JWT)
//
// Errors carry an apperror kind so the handler layer can map them to a
// status code in one place.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sakif/codeofclans/internal/apperror"
	"github.com/sakif/codeofclans/internal/auth"
	"github.com/sakif/codeofclans/internal/metrics"
	"github.com/sakif/codeofclans/internal/model"
	"github.com/sakif/codeofclans/internal/oauth"
	"github.com/sakif/codeofclans/internal/repository"
)

// sourceAdmin labels username/password logins in metrics.
const sourceAdmin = "admin"

// TokenPair is what a successful login hands back to the client.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type LoginResult struct {
	TokenPair
	User    *model.AccountDetails
	Outcome Outcome // empty for admin logins
}

type RefreshResult struct {
	AccessToken string
	User        *model.AccountDetails
}

// SessionService issues sessions: OAuth login, token refresh and admin
// login.
//
// DEPENDENCIES (injected via NewSessionService):
//   - providers    *oauth.Registry        → code exchange and user-info
//   - resolver     *IdentityResolver      → provider identity → account
//   - store        repository.Store       → account reads for refresh
//   - tokens       *auth.TokenService     → sign/verify JWTs
//   - credentials  CredentialChecker      → admin username/password check
//   - metrics      metrics.Recorder
//   - logger       *slog.Logger
type SessionService struct {
	providers   *oauth.Registry
	resolver    *IdentityResolver
	store       repository.Store
	tokens      *auth.TokenService
	credentials CredentialChecker
	metrics     metrics.Recorder
	logger      *slog.Logger

	// resolves collapses concurrent logins for the same provider identity.
	resolves singleflight.Group
}

func NewSessionService(
	providers *oauth.Registry,
	resolver *IdentityResolver,
	store repository.Store,
	tokens *auth.TokenService,
	credentials CredentialChecker,
	rec metrics.Recorder,
	logger *slog.Logger,
) *SessionService {
	if rec == nil {
		rec = metrics.NewNoop()
	}
	return &SessionService{
		providers:   providers,
		resolver:    resolver,
		store:       store,
		tokens:      tokens,
		credentials: credentials,
		metrics:     rec,
		logger:      logger,
	}
}

// AuthURL returns the provider's authorization URL.
func (s *SessionService) AuthURL(provider string) (string, error) {
	a, err := s.providers.Get(provider)
	if err != nil {
		return "", err
	}
	return a.AuthURL(), nil
}

// Login completes an OAuth callback:
//
//  1. exchange the code for provider tokens
//  2. fetch and normalise the provider identity
//  3. resolve it to an account, retrying once on a uniqueness conflict
//  4. refuse inactive accounts
//  5. sign an access and a refresh token
func (s *SessionService) Login(ctx context.Context, provider, code string) (res *LoginResult, err error) {
	adapter, err := s.providers.Get(provider)
	if err != nil {
		return nil, err
	}
	name := adapter.Name()
	defer func() { s.metrics.RecordLogin(string(name), failureKind(err)) }()

	start := time.Now()
	tokens, err := adapter.ExchangeCode(ctx, code)
	s.metrics.RecordProviderCall(string(name), "exchange", time.Since(start), err)
	if err != nil {
		s.logger.Warn("code exchange failed", slog.String("provider", string(name)), slog.String("error", err.Error()))
		return nil, fmt.Errorf("service/session: %w", err)
	}

	start = time.Now()
	ident, err := adapter.FetchIdentity(ctx, tokens.AccessToken)
	s.metrics.RecordProviderCall(string(name), "identity", time.Since(start), err)
	if err != nil {
		s.logger.Warn("fetching identity failed", slog.String("provider", string(name)), slog.String("error", err.Error()))
		return nil, fmt.Errorf("service/session: %w", err)
	}

	account, outcome, err := s.resolve(ctx, name, ident, tokens)
	if err != nil {
		return nil, fmt.Errorf("service/session: %w", err)
	}
	if !account.IsActive {
		return nil, apperror.AccountDisabled()
	}

	pair, err := s.issue(account.ID)
	if err != nil {
		return nil, err
	}
	details, err := loadDetails(ctx, s.store, account)
	if err != nil {
		return nil, fmt.Errorf("service/session: %w", err)
	}

	s.logger.Info("user logged in",
		slog.Int64("accountID", account.ID),
		slog.String("provider", string(name)),
		slog.String("outcome", string(outcome)),
	)
	return &LoginResult{TokenPair: *pair, User: details, Outcome: outcome}, nil
}

type resolved struct {
	account *model.Account
	outcome Outcome
}

// resolve runs the resolver under singleflight so that a burst of callbacks
// for the same identity performs one resolution. The shared call is detached
// from the first caller's cancellation. Only the first caller's provider
// tokens are stored; callers that join the flight drop their own.
func (s *SessionService) resolve(ctx context.Context, provider model.Provider, ident *oauth.Identity, tokens *oauth.Tokens) (*model.Account, Outcome, error) {
	key := string(provider) + ":" + ident.SubjectID
	v, err, _ := s.resolves.Do(key, func() (any, error) {
		ctx := context.WithoutCancel(ctx)

		account, outcome, err := s.resolver.Resolve(ctx, provider, ident, tokens)
		if errors.Is(err, apperror.ErrConflict) {
			s.logger.Warn("identity resolve conflict, retrying",
				slog.String("provider", string(provider)),
				slog.String("subject", ident.SubjectID),
			)
			account, outcome, err = s.resolver.Resolve(ctx, provider, ident, tokens)
		}
		if err != nil {
			return nil, err
		}
		s.metrics.RecordResolve(string(provider), string(outcome))
		return resolved{account: account, outcome: outcome}, nil
	})
	if err != nil {
		return nil, "", err
	}
	r := v.(resolved)
	return r.account, r.outcome, nil
}

// Refresh trades a refresh token for a new access token. The refresh token
// itself is not rotated.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (res *RefreshResult, err error) {
	defer func() { s.metrics.RecordRefresh(err == nil) }()

	if strings.TrimSpace(refreshToken) == "" {
		return nil, apperror.ValidationFailed("refresh_token", "This field is required.")
	}

	claims, err := s.tokens.Verify(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.Kind != auth.KindRefresh {
		return nil, apperror.WrongTokenType(string(auth.KindRefresh))
	}

	account, err := s.store.GetAccountByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.AccountNotFound()
		}
		return nil, fmt.Errorf("service/session: loading account %d: %w", claims.AccountID, err)
	}
	if !account.IsActive {
		return nil, apperror.AccountDisabled()
	}

	access, err := s.sign(account.ID, auth.KindAccess)
	if err != nil {
		return nil, err
	}
	details, err := loadDetails(ctx, s.store, account)
	if err != nil {
		return nil, fmt.Errorf("service/session: %w", err)
	}
	return &RefreshResult{AccessToken: access, User: details}, nil
}

// AdminLogin signs in a staff or superuser account with a password.
func (s *SessionService) AdminLogin(ctx context.Context, username, password string) (res *LoginResult, err error) {
	defer func() { s.metrics.RecordLogin(sourceAdmin, failureKind(err)) }()

	if username == "" || password == "" {
		return nil, apperror.ValidationFailed("username", `Must include "username" and "password".`)
	}

	account, err := s.credentials.CheckCredentials(ctx, username, password)
	if err != nil {
		s.logger.Warn("admin login rejected", slog.String("username", username))
		return nil, err
	}
	if !account.IsPrivileged() {
		return nil, apperror.Forbidden("You do not have permission to access the admin area.")
	}

	pair, err := s.issue(account.ID)
	if err != nil {
		return nil, err
	}
	details, err := loadDetails(ctx, s.store, account)
	if err != nil {
		return nil, fmt.Errorf("service/session: %w", err)
	}

	s.logger.Info("admin logged in", slog.Int64("accountID", account.ID))
	return &LoginResult{TokenPair: *pair, User: details}, nil
}

func (s *SessionService) issue(accountID int64) (*TokenPair, error) {
	access, err := s.sign(accountID, auth.KindAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(accountID, auth.KindRefresh)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *SessionService) sign(accountID int64, kind auth.Kind) (string, error) {
	tok, err := s.tokens.Sign(accountID, kind)
	if err != nil {
		return "", fmt.Errorf("service/session: signing %s token for %d: %w", kind, accountID, err)
	}
	s.metrics.RecordTokenIssued(string(kind))
	return tok, nil
}

// failureKind is "" for a nil error and the apperror kind otherwise.
func failureKind(err error) string {
	if err == nil {
		return ""
	}
	return apperror.Kind(err)
}
