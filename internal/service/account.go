package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sakif/codeofclans/internal/apperror"
	"github.com/sakif/codeofclans/internal/model"
	"github.com/sakif/codeofclans/internal/repository"
	"github.com/sakif/codeofclans/internal/storage"
)

// ReferralBonus is the XP granted to whoever redeems a referral code.
const ReferralBonus = 100

// loadDetails attaches the identity link and follower counts to a. A missing
// link is not an error; Link is left nil.
func loadDetails(ctx context.Context, store repository.Store, a *model.Account) (*model.AccountDetails, error) {
	d := &model.AccountDetails{Account: a}

	link, err := store.GetLinkByAccount(ctx, a.ID)
	switch {
	case err == nil:
		d.Link = link
	case errors.Is(err, apperror.ErrNotFound):
	default:
		return nil, fmt.Errorf("loading link for account %d: %w", a.ID, err)
	}

	if d.FollowersCount, err = store.CountFollowers(ctx, a.ID); err != nil {
		return nil, err
	}
	if d.FollowingCount, err = store.CountFollowing(ctx, a.ID); err != nil {
		return nil, err
	}
	return d, nil
}

// AccountService owns profile reads and writes, referral redemption and the
// admin account operations.
type AccountService struct {
	store    repository.Store
	uploader storage.Uploader
	logger   *slog.Logger
}

func NewAccountService(store repository.Store, uploader storage.Uploader, logger *slog.Logger) *AccountService {
	if uploader == nil {
		uploader = storage.Disabled{}
	}
	return &AccountService{store: store, uploader: uploader, logger: logger}
}

// Details returns a with its link and counts.
func (s *AccountService) Details(ctx context.Context, a *model.Account) (*model.AccountDetails, error) {
	d, err := loadDetails(ctx, s.store, a)
	if err != nil {
		return nil, fmt.Errorf("service/account: %w", err)
	}
	return d, nil
}

// PublicProfile is another account as seen by the caller.
type PublicProfile struct {
	*model.AccountDetails
	IsFollowing bool
}

// Profile looks up username. viewer may be nil for anonymous callers, in
// which case IsFollowing is false.
func (s *AccountService) Profile(ctx context.Context, username string, viewer *model.Account) (*PublicProfile, error) {
	a, err := s.store.GetAccountByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("service/account: %w", userNotFound(err))
	}

	d, err := loadDetails(ctx, s.store, a)
	if err != nil {
		return nil, fmt.Errorf("service/account: %w", err)
	}

	p := &PublicProfile{AccountDetails: d}
	if viewer != nil {
		p.IsFollowing, err = s.store.IsFollowing(ctx, viewer.ID, a.ID)
		if err != nil {
			return nil, fmt.Errorf("service/account: %w", err)
		}
	}
	return p, nil
}

// Upload is one image file from a profile update form.
type Upload struct {
	Filename string
	Data     []byte
}

// ProfileUpdate carries the fields a PATCH may change. A nil pointer leaves
// the field as it is.
type ProfileUpdate struct {
	Username         *string
	FirstName        *string
	LastName         *string
	Bio              *string
	GitHubUsername   *string
	LeetCodeUsername *string
	Avatar           *Upload
	Banner           *Upload
}

// UpdateProfile applies upd to a. Images are validated then uploaded before
// anything is written, so a rejected file leaves the profile untouched.
func (s *AccountService) UpdateProfile(ctx context.Context, a *model.Account, upd ProfileUpdate) (*model.AccountDetails, error) {
	if upd.Username != nil {
		name := strings.TrimSpace(*upd.Username)
		if name == "" {
			return nil, apperror.ValidationFailed("username", "Username cannot be empty")
		}
		if len(name) > 150 {
			return nil, apperror.ValidationFailed("username", "Username must be at most 150 characters")
		}
		upd.Username = &name
	}

	avatarURL, err := s.upload(ctx, "avatar", storage.KindAvatar, a.ID, upd.Avatar)
	if err != nil {
		return nil, err
	}
	bannerURL, err := s.upload(ctx, "banner", storage.KindBanner, a.ID, upd.Banner)
	if err != nil {
		return nil, err
	}

	var out *model.AccountDetails
	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		acct, err := tx.GetAccountByID(ctx, a.ID)
		if err != nil {
			return err
		}
		setIf(&acct.Username, upd.Username)
		setIf(&acct.FirstName, upd.FirstName)
		setIf(&acct.LastName, upd.LastName)
		if err := tx.UpdateAccount(ctx, acct); err != nil {
			return err
		}

		link, err := tx.GetLinkByAccount(ctx, acct.ID)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return apperror.NotFound("profile", strconv.FormatInt(acct.ID, 10))
			}
			return err
		}
		setIf(&link.Bio, upd.Bio)
		setIf(&link.GitHubUsername, upd.GitHubUsername)
		setIf(&link.LeetCodeUsername, upd.LeetCodeUsername)
		if avatarURL != "" {
			link.AvatarURL = avatarURL
		}
		if bannerURL != "" {
			link.BannerURL = bannerURL
		}
		if err := tx.UpdateLink(ctx, link); err != nil {
			return err
		}

		out, err = loadDetails(ctx, tx, acct)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service/account: updating profile of %d: %w", a.ID, err)
	}

	s.logger.Info("profile updated", slog.Int64("accountID", a.ID))
	return out, nil
}

func (s *AccountService) upload(ctx context.Context, field, kind string, accountID int64, up *Upload) (string, error) {
	if up == nil {
		return "", nil
	}
	ct, err := storage.DetectImage(field, up.Data)
	if err != nil {
		return "", err
	}
	url, err := s.uploader.Upload(ctx, storage.ObjectKey(kind, accountID, ct), up.Data, ct)
	if err != nil {
		if errors.Is(err, apperror.ErrValidation) {
			return "", err
		}
		s.logger.Error("upload failed",
			slog.Int64("accountID", accountID),
			slog.String("field", field),
			slog.String("error", err.Error()),
		)
		return "", apperror.ValidationFailed(field, "Failed to upload file")
	}
	return url, nil
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Delete removes the account and everything attached to it.
func (s *AccountService) Delete(ctx context.Context, accountID int64) error {
	if err := s.store.DeleteAccount(ctx, accountID); err != nil {
		return fmt.Errorf("service/account: deleting %d: %w", accountID, err)
	}
	s.logger.Info("account deleted", slog.Int64("accountID", accountID))
	return nil
}

// RedeemResult reports a successful referral redemption.
type RedeemResult struct {
	XPAwarded  int
	NewTotalXP int
}

// RedeemReferral credits ReferralBonus XP to the redeemer. The referrer gets
// nothing. A code can only be redeemed once per account and never one's own.
func (s *AccountService) RedeemReferral(ctx context.Context, accountID int64, code string) (*RedeemResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperror.ValidationFailed("code", "Referral code is required")
	}

	var res *RedeemResult
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		link, err := tx.GetLinkByAccount(ctx, accountID)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return &apperror.AppError{Err: apperror.ErrNotFound, Message: "User profile not found"}
			}
			return err
		}
		if link.IsReferred() {
			return apperror.ValidationFailed("code", "You have already redeemed a referral code")
		}
		if link.ReferralCode == code {
			return apperror.ValidationFailed("code", "Cannot redeem your own referral code")
		}

		referrer, err := tx.GetLinkByReferralCode(ctx, code)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return &apperror.AppError{Err: apperror.ErrNotFound, Message: "Invalid referral code"}
			}
			return err
		}

		link.ReferredByAccount = &referrer.AccountID
		link.XP += ReferralBonus
		if err := tx.UpdateLink(ctx, link); err != nil {
			return err
		}
		res = &RedeemResult{XPAwarded: ReferralBonus, NewTotalXP: link.XP}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("service/account: redeeming referral: %w", err)
	}

	s.logger.Info("referral redeemed", slog.Int64("accountID", accountID), slog.Int("xp", res.NewTotalXP))
	return res, nil
}

// List returns accounts newest first, with details, for the admin area.
func (s *AccountService) List(ctx context.Context, opts repository.ListOptions) ([]*model.AccountDetails, error) {
	accounts, err := s.store.ListAccounts(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("service/account: listing: %w", err)
	}

	out := make([]*model.AccountDetails, 0, len(accounts))
	for i := range accounts {
		d, err := loadDetails(ctx, s.store, &accounts[i])
		if err != nil {
			return nil, fmt.Errorf("service/account: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}

// ToggleBlock flips is_active on username and returns the new value.
// An admin cannot block themselves.
func (s *AccountService) ToggleBlock(ctx context.Context, actor *model.Account, username string) (bool, error) {
	var active bool
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		target, err := tx.GetAccountByUsername(ctx, username)
		if err != nil {
			return userNotFound(err)
		}
		if target.ID == actor.ID {
			return apperror.ValidationFailed("username", "Cannot block yourself")
		}
		target.IsActive = !target.IsActive
		active = target.IsActive
		return tx.UpdateAccount(ctx, target)
	})
	if err != nil {
		return false, fmt.Errorf("service/account: toggling block on %s: %w", username, err)
	}

	s.logger.Info("account block toggled",
		slog.Int64("actorID", actor.ID),
		slog.String("username", username),
		slog.Bool("active", active),
	)
	return active, nil
}

// userNotFound rewrites a NotFound from a username lookup to the message
// clients expect.
func userNotFound(err error) error {
	if errors.Is(err, apperror.ErrNotFound) {
		return apperror.AccountNotFound()
	}
	return err
}
