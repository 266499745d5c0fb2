package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sakif/codeofclans/internal/apperror"
	"github.com/sakif/codeofclans/internal/auth"
	"github.com/sakif/codeofclans/internal/model"
	"github.com/sakif/codeofclans/internal/repository"
)

// AdminParams describes a locally provisioned administrator.
type AdminParams struct {
	Username string
	Email    string
	Password string
}

// ProvisionAdmin creates a staff superuser with a password and a "local"
// link whose subject is local_<account id>.
func (r *IdentityResolver) ProvisionAdmin(ctx context.Context, passwords *auth.PasswordService, p AdminParams) (*model.Account, error) {
	username := strings.TrimSpace(p.Username)
	if username == "" {
		return nil, apperror.ValidationFailed("username", "Username is required")
	}

	hash, err := passwords.Hash(p.Password)
	if err != nil {
		return nil, err
	}

	var account *model.Account
	err = r.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		taken, err := tx.UsernameExists(ctx, username)
		if err != nil {
			return err
		}
		if taken {
			return apperror.Conflict("account", username)
		}

		account = &model.Account{
			Username:     username,
			Email:        strings.TrimSpace(p.Email),
			IsActive:     true,
			IsStaff:      true,
			IsSuperuser:  true,
			PasswordHash: hash,
		}
		if err := tx.CreateAccount(ctx, account); err != nil {
			return err
		}

		code, err := r.uniqueReferralCode(ctx, tx)
		if err != nil {
			return err
		}
		return tx.CreateLink(ctx, &model.IdentityLink{
			AccountID:    account.ID,
			Provider:     model.ProviderLocal,
			ProviderID:   "local_" + strconv.FormatInt(account.ID, 10),
			Bio:          "Administrator",
			ReferralCode: code,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("service/provision: creating admin %s: %w", username, err)
	}

	r.logger.Info("admin provisioned", slog.Int64("accountID", account.ID), slog.String("username", username))
	return account, nil
}
