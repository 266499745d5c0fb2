package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sakif/codeofclans/internal/apperror"
	"github.com/sakif/codeofclans/internal/model"
	"github.com/sakif/codeofclans/internal/repository"
)

// StreakLength is the number of days in a reward cycle. Day 8 is day 1 again.
const StreakLength = 7

// DailyRewards maps streak day to XP.
var DailyRewards = map[int]int{1: 5, 2: 10, 3: 15, 4: 20, 5: 25, 6: 30, 7: 35}

// RewardForDay returns the XP for a streak day, 5 for anything out of range.
func RewardForDay(day int) int {
	if xp, ok := DailyRewards[day]; ok {
		return xp
	}
	return DailyRewards[1]
}

// nextStreakDay computes today's streak day from the previous check-in.
func nextStreakDay(last *model.CheckIn, today time.Time) int {
	if last == nil || !last.CheckInDate.Equal(today.AddDate(0, 0, -1)) {
		return 1
	}
	if last.StreakDay >= StreakLength {
		return 1
	}
	return last.StreakDay + 1
}

// RewardService runs the daily check-in.
type RewardService struct {
	store  repository.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewRewardService(store repository.Store, logger *slog.Logger) *RewardService {
	return &RewardService{store: store, logger: logger, now: time.Now}
}

// today is the current UTC calendar date at midnight.
func (s *RewardService) today() time.Time {
	n := s.now().UTC()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

type CheckInResult struct {
	CheckIn   *model.CheckIn
	XPEarned  int
	TotalXP   int
	StreakDay int
}

// Message is the human-readable confirmation.
func (r *CheckInResult) Message() string {
	return "Check-in successful! Day " + strconv.Itoa(r.StreakDay) + " streak"
}

// CheckIn records today's check-in for accountID and credits the reward.
// A second call on the same date fails with a validation error.
func (s *RewardService) CheckIn(ctx context.Context, accountID int64) (*CheckInResult, error) {
	today := s.today()
	var res *CheckInResult

	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		last, err := tx.LatestCheckIn(ctx, accountID)
		switch {
		case errors.Is(err, apperror.ErrNotFound):
			last = nil
		case err != nil:
			return err
		}
		if last != nil && last.CheckInDate.Equal(today) {
			return alreadyCheckedIn()
		}

		day := nextStreakDay(last, today)
		c := &model.CheckIn{
			AccountID:   accountID,
			CheckInDate: today,
			StreakDay:   day,
			XPEarned:    RewardForDay(day),
		}
		if err := tx.CreateCheckIn(ctx, c); err != nil {
			if errors.Is(err, apperror.ErrConflict) {
				return alreadyCheckedIn()
			}
			return err
		}

		link, err := tx.GetLinkByAccount(ctx, accountID)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return apperror.NotFound("profile", strconv.FormatInt(accountID, 10))
			}
			return err
		}
		link.XP += c.XPEarned
		if err := tx.UpdateLink(ctx, link); err != nil {
			return err
		}

		res = &CheckInResult{CheckIn: c, XPEarned: c.XPEarned, TotalXP: link.XP, StreakDay: day}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("service/rewards: checking in %d: %w", accountID, err)
	}

	s.logger.Info("daily check-in",
		slog.Int64("accountID", accountID),
		slog.Int("streakDay", res.StreakDay),
		slog.Int("xp", res.XPEarned),
	)
	return res, nil
}

func alreadyCheckedIn() error {
	return apperror.ValidationFailed("check_in", "Already checked in today")
}

// CheckInStatus summarises an account's streak.
type CheckInStatus struct {
	CheckedInToday bool
	// CurrentStreak is the last streak day if the streak is still alive
	// (last check-in today or yesterday), 0 otherwise.
	CurrentStreak int
	TodayCheckIn  *model.CheckIn
	Recent        []model.CheckIn
}

// Status returns the streak summary and the most recent StreakLength
// check-ins.
func (s *RewardService) Status(ctx context.Context, accountID int64) (*CheckInStatus, error) {
	today := s.today()

	recent, err := s.store.RecentCheckIns(ctx, accountID, StreakLength)
	if err != nil {
		return nil, fmt.Errorf("service/rewards: status of %d: %w", accountID, err)
	}

	st := &CheckInStatus{Recent: recent}
	if len(recent) == 0 {
		return st, nil
	}

	last := recent[0]
	if last.CheckInDate.Equal(today) {
		st.CheckedInToday = true
		st.TodayCheckIn = &recent[0]
	}
	if st.CheckedInToday || last.CheckInDate.Equal(today.AddDate(0, 0, -1)) {
		st.CurrentStreak = last.StreakDay
	}
	return st, nil
}
