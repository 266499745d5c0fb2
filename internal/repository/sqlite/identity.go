package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/codeofclans/internal/model"
)

const linkColumns = `id, account_id, provider, provider_id, access_token, refresh_token,
	avatar_url, banner_url, bio, github_username, leetcode_username, xp,
	referral_code, referred_by, created_at, updated_at`

func scanLink(s rowScanner) (*model.IdentityLink, error) {
	var (
		l          model.IdentityLink
		referredBy sql.NullInt64
	)
	if err := s.Scan(
		&l.ID,
		&l.AccountID,
		&l.Provider,
		&l.ProviderID,
		&l.AccessToken,
		&l.RefreshToken,
		&l.AvatarURL,
		&l.BannerURL,
		&l.Bio,
		&l.GitHubUsername,
		&l.LeetCodeUsername,
		&l.XP,
		&l.ReferralCode,
		&referredBy,
		&l.CreatedAt,
		&l.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if referredBy.Valid {
		id := referredBy.Int64
		l.ReferredByAccount = &id
	}
	return &l, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// CreateLink inserts l and sets its ID and timestamps.
//
// Returns apperror.ErrConflict when the account already has a link, when
// (provider, provider_id) is taken, or when the referral code collides.
func (db *DB) CreateLink(ctx context.Context, l *model.IdentityLink) error {
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now

	res, err := db.q.ExecContext(ctx,
		`INSERT INTO identity_links (account_id, provider, provider_id, access_token, refresh_token,
			avatar_url, banner_url, bio, github_username, leetcode_username, xp,
			referral_code, referred_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.AccountID,
		l.Provider,
		l.ProviderID,
		l.AccessToken,
		l.RefreshToken,
		l.AvatarURL,
		l.BannerURL,
		l.Bio,
		l.GitHubUsername,
		l.LeetCodeUsername,
		l.XP,
		l.ReferralCode,
		nullableID(l.ReferredByAccount),
		l.CreatedAt,
		l.UpdatedAt,
	)
	if err != nil {
		return writeErr(err, "inserting identity link", "identity", string(l.Provider)+":"+l.ProviderID)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading identity link id: %w", err)
	}
	l.ID = id
	return nil
}

// UpdateLink writes every mutable column of l and bumps UpdatedAt.
// account_id and referral_code are never rewritten.
func (db *DB) UpdateLink(ctx context.Context, l *model.IdentityLink) error {
	l.UpdatedAt = time.Now().UTC()

	res, err := db.q.ExecContext(ctx,
		`UPDATE identity_links
		 SET provider = ?, provider_id = ?, access_token = ?, refresh_token = ?,
		     avatar_url = ?, banner_url = ?, bio = ?, github_username = ?, leetcode_username = ?,
		     xp = ?, referred_by = ?, updated_at = ?
		 WHERE id = ?`,
		l.Provider,
		l.ProviderID,
		l.AccessToken,
		l.RefreshToken,
		l.AvatarURL,
		l.BannerURL,
		l.Bio,
		l.GitHubUsername,
		l.LeetCodeUsername,
		l.XP,
		nullableID(l.ReferredByAccount),
		l.UpdatedAt,
		l.ID,
	)
	if err != nil {
		return writeErr(err, "updating identity link", "identity", string(l.Provider)+":"+l.ProviderID)
	}
	return requireAffected(res, "identity", strconv.FormatInt(l.ID, 10))
}

func (db *DB) GetLinkByProvider(ctx context.Context, provider model.Provider, providerID string) (*model.IdentityLink, error) {
	l, err := scanLink(db.q.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM identity_links WHERE provider = ? AND provider_id = ?`,
		provider, providerID))
	if err != nil {
		return nil, readErr(err, "identity", string(provider)+":"+providerID)
	}
	return l, nil
}

func (db *DB) GetLinkByAccount(ctx context.Context, accountID int64) (*model.IdentityLink, error) {
	l, err := scanLink(db.q.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM identity_links WHERE account_id = ?`, accountID))
	if err != nil {
		return nil, readErr(err, "identity", "account:"+strconv.FormatInt(accountID, 10))
	}
	return l, nil
}

func (db *DB) GetLinkByReferralCode(ctx context.Context, code string) (*model.IdentityLink, error) {
	l, err := scanLink(db.q.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM identity_links WHERE referral_code = ?`, code))
	if err != nil {
		return nil, readErr(err, "referral code", code)
	}
	return l, nil
}

func (db *DB) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	var n int
	if err := db.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM identity_links WHERE referral_code = ?`, code).Scan(&n); err != nil {
		return false, fmt.Errorf("sqlite: checking referral code: %w", err)
	}
	return n > 0, nil
}
