package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/codeofclans/internal/apperror"
	"github.com/sakif/codeofclans/internal/model"
	"github.com/sakif/codeofclans/internal/repository"
)

// FollowService manages the follower graph.
type FollowService struct {
	store  repository.Store
	logger *slog.Logger
}

func NewFollowService(store repository.Store, logger *slog.Logger) *FollowService {
	return &FollowService{store: store, logger: logger}
}

// ToggleResult is the state of an edge after a toggle, with the target's
// counts.
type ToggleResult struct {
	IsFollowing    bool
	FollowerCount  int
	FollowingCount int
}

// Toggle follows username if actor does not follow them yet, and unfollows
// otherwise.
func (s *FollowService) Toggle(ctx context.Context, actor *model.Account, username string) (*ToggleResult, error) {
	res := &ToggleResult{}
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		target, err := tx.GetAccountByUsername(ctx, username)
		if err != nil {
			return userNotFound(err)
		}
		if target.ID == actor.ID {
			return apperror.ValidationFailed("username", "Cannot follow yourself")
		}

		removed, err := tx.Unfollow(ctx, actor.ID, target.ID)
		if err != nil {
			return err
		}
		if !removed {
			if err := tx.Follow(ctx, actor.ID, target.ID); err != nil {
				return err
			}
		}
		res.IsFollowing = !removed

		if res.FollowerCount, err = tx.CountFollowers(ctx, target.ID); err != nil {
			return err
		}
		res.FollowingCount, err = tx.CountFollowing(ctx, target.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service/follow: toggling %s: %w", username, err)
	}

	s.logger.Debug("follow toggled",
		slog.Int64("followerID", actor.ID),
		slog.String("username", username),
		slog.Bool("following", res.IsFollowing),
	)
	return res, nil
}

// FollowEntry is one row of a follower or following list. IsFollowing is
// whether the viewer follows that account.
type FollowEntry struct {
	Account     model.Account
	AvatarURL   string
	IsFollowing bool
}

// Followers lists the accounts following username.
func (s *FollowService) Followers(ctx context.Context, username string, viewer *model.Account, opts repository.ListOptions) ([]FollowEntry, error) {
	return s.list(ctx, username, viewer, opts, s.store.ListFollowers)
}

// Following lists the accounts username follows.
func (s *FollowService) Following(ctx context.Context, username string, viewer *model.Account, opts repository.ListOptions) ([]FollowEntry, error) {
	return s.list(ctx, username, viewer, opts, s.store.ListFollowing)
}

type listFunc func(ctx context.Context, accountID int64, opts repository.ListOptions) ([]model.Account, error)

func (s *FollowService) list(ctx context.Context, username string, viewer *model.Account, opts repository.ListOptions, fetch listFunc) ([]FollowEntry, error) {
	target, err := s.store.GetAccountByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("service/follow: %w", userNotFound(err))
	}

	accounts, err := fetch(ctx, target.ID, opts)
	if err != nil {
		return nil, fmt.Errorf("service/follow: listing for %s: %w", username, err)
	}

	out := make([]FollowEntry, 0, len(accounts))
	for _, a := range accounts {
		e := FollowEntry{Account: a}
		if link, err := s.store.GetLinkByAccount(ctx, a.ID); err == nil {
			e.AvatarURL = link.AvatarURL
		}
		if viewer != nil {
			if e.IsFollowing, err = s.store.IsFollowing(ctx, viewer.ID, a.ID); err != nil {
				return nil, fmt.Errorf("service/follow: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, nil
}
