package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"

	"github.com/sakif/codeofclans/internal/apperror"
	"github.com/sakif/codeofclans/internal/model"
	"github.com/sakif/codeofclans/internal/oauth"
	"github.com/sakif/codeofclans/internal/repository"
)

// Outcome says how Resolve found the account.
type Outcome string

const (
	OutcomeMatched Outcome = "matched" // (provider, subject) already linked
	OutcomeLinked  Outcome = "linked"  // existing account found by email
	OutcomeCreated Outcome = "created"
)

const (
	referralAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	referralCodeLength = 8
	referralAttempts   = 10
)

// IdentityResolver maps a verified provider identity to exactly one account.
type IdentityResolver struct {
	store   repository.Store
	logger  *slog.Logger
	newCode func() (string, error)
}

func NewIdentityResolver(store repository.Store, logger *slog.Logger) *IdentityResolver {
	return &IdentityResolver{store: store, logger: logger, newCode: randomReferralCode}
}

// Resolve finds or creates the account for ident inside one transaction:
//
//  1. a link with (provider, subject) wins; its tokens are refreshed
//  2. otherwise the lowest-id account with the same non-empty email is
//     reused and its link is pointed at this provider ("last provider wins")
//  3. otherwise a new account and link are created
//
// The avatar is only written when the link has none. A uniqueness violation
// rolls the whole transaction back and surfaces as ErrConflict, so an
// account is never committed without its link.
func (r *IdentityResolver) Resolve(ctx context.Context, provider model.Provider, ident *oauth.Identity, tokens *oauth.Tokens) (*model.Account, Outcome, error) {
	if ident == nil || ident.SubjectID == "" {
		return nil, "", apperror.ValidationFailed("identity", "Provider identity has no subject id")
	}
	if tokens == nil {
		tokens = &oauth.Tokens{}
	}

	var (
		account *model.Account
		outcome Outcome
	)
	err := r.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		account, outcome, err = r.resolve(ctx, tx, provider, ident, tokens)
		return err
	})
	if err != nil {
		return nil, "", fmt.Errorf("service/resolver: %s:%s: %w", provider, ident.SubjectID, err)
	}

	r.logger.Info("identity resolved",
		slog.Int64("accountID", account.ID),
		slog.String("provider", string(provider)),
		slog.String("outcome", string(outcome)),
	)
	return account, outcome, nil
}

func (r *IdentityResolver) resolve(ctx context.Context, tx repository.Store, provider model.Provider, ident *oauth.Identity, tokens *oauth.Tokens) (*model.Account, Outcome, error) {
	link, err := tx.GetLinkByProvider(ctx, provider, ident.SubjectID)
	switch {
	case err == nil:
		applyTokens(link, ident, tokens)
		if err := tx.UpdateLink(ctx, link); err != nil {
			return nil, "", err
		}
		account, err := tx.GetAccountByID(ctx, link.AccountID)
		if err != nil {
			return nil, "", err
		}
		return account, OutcomeMatched, nil
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, "", err
	}

	if ident.Email != "" {
		account, err := tx.FindAccountByEmail(ctx, ident.Email)
		switch {
		case err == nil:
			if err := r.relink(ctx, tx, account, provider, ident, tokens); err != nil {
				return nil, "", err
			}
			return account, OutcomeLinked, nil
		case !errors.Is(err, apperror.ErrNotFound):
			return nil, "", err
		}
	}

	account, err := r.create(ctx, tx, provider, ident, tokens)
	if err != nil {
		return nil, "", err
	}
	return account, OutcomeCreated, nil
}

// relink points account's link at the new provider identity, creating the
// link if the account has none.
func (r *IdentityResolver) relink(ctx context.Context, tx repository.Store, account *model.Account, provider model.Provider, ident *oauth.Identity, tokens *oauth.Tokens) error {
	link, err := tx.GetLinkByAccount(ctx, account.ID)
	if errors.Is(err, apperror.ErrNotFound) {
		return r.createLink(ctx, tx, account.ID, provider, ident, tokens)
	}
	if err != nil {
		return err
	}

	link.Provider = provider
	link.ProviderID = ident.SubjectID
	applyTokens(link, ident, tokens)
	return tx.UpdateLink(ctx, link)
}

func (r *IdentityResolver) create(ctx context.Context, tx repository.Store, provider model.Provider, ident *oauth.Identity, tokens *oauth.Tokens) (*model.Account, error) {
	username, err := uniqueUsername(ctx, tx, ident.Username)
	if err != nil {
		return nil, err
	}
	first, last := splitName(ident.DisplayName)

	account := &model.Account{
		Username:  username,
		Email:     ident.Email,
		FirstName: first,
		LastName:  last,
		IsActive:  true,
	}
	if err := tx.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	if err := r.createLink(ctx, tx, account.ID, provider, ident, tokens); err != nil {
		return nil, err
	}
	return account, nil
}

func (r *IdentityResolver) createLink(ctx context.Context, tx repository.Store, accountID int64, provider model.Provider, ident *oauth.Identity, tokens *oauth.Tokens) error {
	code, err := r.uniqueReferralCode(ctx, tx)
	if err != nil {
		return err
	}

	link := &model.IdentityLink{
		AccountID:    accountID,
		Provider:     provider,
		ProviderID:   ident.SubjectID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		AvatarURL:    ident.AvatarURL,
		ReferralCode: code,
	}
	if provider == model.ProviderGitHub {
		link.GitHubUsername = ident.Username
	}
	return tx.CreateLink(ctx, link)
}

// applyTokens replaces both cached provider tokens with the latest exchange.
// An exchange without a refresh token clears the stored one.
func applyTokens(link *model.IdentityLink, ident *oauth.Identity, tokens *oauth.Tokens) {
	link.AccessToken = tokens.AccessToken
	link.RefreshToken = tokens.RefreshToken
	if link.AvatarURL == "" {
		link.AvatarURL = ident.AvatarURL
	}
}

// uniqueUsername tries base, base_1, base_2, ... until one is free.
func uniqueUsername(ctx context.Context, tx repository.Store, base string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "user"
	}

	candidate := base
	for n := 1; ; n++ {
		taken, err := tx.UsernameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + "_" + strconv.Itoa(n)
	}
}

// splitName splits on the first space: "Ada King Lovelace" is
// ("Ada", "King Lovelace").
func splitName(name string) (first, last string) {
	if name == "" {
		return "", ""
	}
	first, last, _ = strings.Cut(name, " ")
	return first, last
}

func (r *IdentityResolver) uniqueReferralCode(ctx context.Context, tx repository.Store) (string, error) {
	for range referralAttempts {
		code, err := r.newCode()
		if err != nil {
			return "", fmt.Errorf("generating referral code: %w", err)
		}
		taken, err := tx.ReferralCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", apperror.Conflict("referral code", "generated")
}

func randomReferralCode() (string, error) {
	max := big.NewInt(int64(len(referralAlphabet)))
	b := make([]byte, referralCodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = referralAlphabet[n.Int64()]
	}
	return string(b), nil
}
