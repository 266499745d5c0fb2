// Package repository declares the storage interfaces the services depend on.
//
// Lookups that find nothing return an error wrapping apperror.ErrNotFound.
// Writes that break a uniqueness rule return apperror.ErrConflict.
package repository

import (
	"context"

	"github.com/sakif/codeofclans/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// Normalize clamps Limit into 1..max (default def) and Offset to >= 0.
func (o ListOptions) Normalize(def, max int) ListOptions {
	if o.Limit <= 0 {
		o.Limit = def
	}
	if o.Limit > max {
		o.Limit = max
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

type AccountRepository interface {
	CreateAccount(ctx context.Context, a *model.Account) error
	GetAccountByID(ctx context.Context, id int64) (*model.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*model.Account, error)
	// FindAccountByEmail returns the lowest-id account with exactly this email.
	FindAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	// UpdateAccount writes username, email, names and the three flags.
	UpdateAccount(ctx context.Context, a *model.Account) error
	DeleteAccount(ctx context.Context, id int64) error
	// ListAccounts returns accounts newest first.
	ListAccounts(ctx context.Context, opts ListOptions) ([]model.Account, error)
}

type IdentityRepository interface {
	CreateLink(ctx context.Context, l *model.IdentityLink) error
	UpdateLink(ctx context.Context, l *model.IdentityLink) error
	GetLinkByProvider(ctx context.Context, provider model.Provider, providerID string) (*model.IdentityLink, error)
	GetLinkByAccount(ctx context.Context, accountID int64) (*model.IdentityLink, error)
	GetLinkByReferralCode(ctx context.Context, code string) (*model.IdentityLink, error)
	ReferralCodeExists(ctx context.Context, code string) (bool, error)
}

type FollowRepository interface {
	// Follow returns ErrConflict when the edge already exists.
	Follow(ctx context.Context, followerID, followingID int64) error
	// Unfollow reports whether an edge was removed.
	Unfollow(ctx context.Context, followerID, followingID int64) (bool, error)
	IsFollowing(ctx context.Context, followerID, followingID int64) (bool, error)
	CountFollowers(ctx context.Context, accountID int64) (int, error)
	CountFollowing(ctx context.Context, accountID int64) (int, error)
	ListFollowers(ctx context.Context, accountID int64, opts ListOptions) ([]model.Account, error)
	ListFollowing(ctx context.Context, accountID int64, opts ListOptions) ([]model.Account, error)
}

type CheckInRepository interface {
	// CreateCheckIn returns ErrConflict for a second check-in on the same date.
	CreateCheckIn(ctx context.Context, c *model.CheckIn) error
	LatestCheckIn(ctx context.Context, accountID int64) (*model.CheckIn, error)
	RecentCheckIns(ctx context.Context, accountID int64, limit int) ([]model.CheckIn, error)
}

type ChatRepository interface {
	CreateMessage(ctx context.Context, m *model.ChatMessage) error
	// RecentMessages returns the newest limit messages, oldest first.
	RecentMessages(ctx context.Context, limit int) ([]model.ChatMessage, error)
}

// Store is every repository plus transactions.
type Store interface {
	AccountRepository
	IdentityRepository
	FollowRepository
	CheckInRepository
	ChatRepository

	// InTx runs fn against a Store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	// Calling InTx on a transaction-bound Store reuses the transaction.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
