package service

import (
	"context"
	"errors"

	"github.com/sakif/codeofclans/internal/apperror"
	"github.com/sakif/codeofclans/internal/auth"
	"github.com/sakif/codeofclans/internal/model"
	"github.com/sakif/codeofclans/internal/repository"
)

// CredentialChecker verifies a username and password. Every failure,
// including an unknown username, is ErrInvalidCredentials.
type CredentialChecker interface {
	CheckCredentials(ctx context.Context, username, password string) (*model.Account, error)
}

// PasswordCredentials checks against the bcrypt hash stored on the account.
// Inactive accounts are treated as unknown.
type PasswordCredentials struct {
	accounts  repository.AccountRepository
	passwords *auth.PasswordService
}

var _ CredentialChecker = (*PasswordCredentials)(nil)

func NewPasswordCredentials(accounts repository.AccountRepository, passwords *auth.PasswordService) *PasswordCredentials {
	return &PasswordCredentials{accounts: accounts, passwords: passwords}
}

func (c *PasswordCredentials) CheckCredentials(ctx context.Context, username, password string) (*model.Account, error) {
	account, err := c.accounts.GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidCredentials()
		}
		return nil, err
	}
	if err := c.passwords.Verify(account.PasswordHash, password); err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, apperror.InvalidCredentials()
	}
	return account, nil
}
