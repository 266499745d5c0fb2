package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/codeofclans/internal/apperror"
	"github.com/sakif/codeofclans/internal/model"
	"github.com/sakif/codeofclans/internal/repository"
)

// clock is a settable time source.
type clock struct{ t time.Time }

func newClock() *clock {
	return &clock{t: time.Date(2025, 6, 1, 15, 30, 0, 0, time.UTC)}
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(days int) { c.t = c.t.AddDate(0, 0, days) }

func xpOf(t *testing.T, s repository.Store, id int64) int {
	t.Helper()
	l, err := s.GetLinkByAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("GetLinkByAccount() error = %v", err)
	}
	return l.XP
}

func newTestRewards(t *testing.T) (*RewardService, repository.Store, *clock) {
	t.Helper()
	store := newTestStore(t)
	svc := NewRewardService(store, discardLogger())
	c := newClock()
	svc.now = c.now
	return svc, store, c
}

func TestCheckIn_FullWeekThenWraps(t *testing.T) {
	svc, store, c := newTestRewards(t)
	ctx := context.Background()
	a, _ := seedAccount(t, store, "alice", "")

	wantXP := []int{5, 10, 15, 20, 25, 30, 35, 5}
	total := 0
	for i, xp := range wantXP {
		res, err := svc.CheckIn(ctx, a.ID)
		if err != nil {
			t.Fatalf("day %d CheckIn() error = %v", i+1, err)
		}
		total += xp
		wantDay := i%7 + 1
		if res.StreakDay != wantDay || res.XPEarned != xp || res.TotalXP != total {
			t.Errorf("day %d CheckIn() = day %d, +%d, total %d; want day %d, +%d, total %d",
				i+1, res.StreakDay, res.XPEarned, res.TotalXP, wantDay, xp, total)
		}
		c.advance(1)
	}

	if got := xpOf(t, store, a.ID); got != total {
		t.Errorf("stored XP = %d, want %d", got, total)
	}
}

func TestCheckIn_GapResetsStreak(t *testing.T) {
	svc, store, c := newTestRewards(t)
	ctx := context.Background()
	a, _ := seedAccount(t, store, "alice", "")

	for i := 0; i < 3; i++ {
		if _, err := svc.CheckIn(ctx, a.ID); err != nil {
			t.Fatalf("CheckIn() error = %v", err)
		}
		c.advance(1)
	}
	c.advance(1) // skip a day

	res, err := svc.CheckIn(ctx, a.ID)
	if err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}
	if res.StreakDay != 1 || res.XPEarned != 5 {
		t.Errorf("CheckIn() after gap = day %d +%d, want day 1 +5", res.StreakDay, res.XPEarned)
	}
	if res.Message() != "Check-in successful! Day 1 streak" {
		t.Errorf("Message() = %q", res.Message())
	}
}

func TestCheckIn_SameDayRejected(t *testing.T) {
	svc, store, c := newTestRewards(t)
	ctx := context.Background()
	a, _ := seedAccount(t, store, "alice", "")

	if _, err := svc.CheckIn(ctx, a.ID); err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}
	c.t = c.t.Add(5 * time.Hour) // still the same UTC date

	_, err := svc.CheckIn(ctx, a.ID)
	if !errors.Is(err, apperror.ErrValidation) || apperror.Message(err) != "Already checked in today" {
		t.Fatalf("second CheckIn() error = %v", err)
	}
	if got := xpOf(t, store, a.ID); got != 5 {
		t.Errorf("XP = %d, rejected check-in must not add XP", got)
	}
}

func TestCheckIn_NoProfile(t *testing.T) {
	svc, store, _ := newTestRewards(t)
	bare := &model.Account{Username: "bare", IsActive: true}
	if err := store.CreateAccount(context.Background(), bare); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	if _, err := svc.CheckIn(context.Background(), bare.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("CheckIn() error = %v, want ErrNotFound", err)
	}
	recent, _ := store.RecentCheckIns(context.Background(), bare.ID, 7)
	if len(recent) != 0 {
		t.Error("check-in row must be rolled back with the failed XP update")
	}
}

func TestStatus(t *testing.T) {
	svc, store, c := newTestRewards(t)
	ctx := context.Background()
	a, _ := seedAccount(t, store, "alice", "")

	st, err := svc.Status(ctx, a.ID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.CheckedInToday || st.CurrentStreak != 0 || len(st.Recent) != 0 {
		t.Errorf("fresh Status() = %+v", st)
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.CheckIn(ctx, a.ID); err != nil {
			t.Fatalf("CheckIn() error = %v", err)
		}
		if i == 0 {
			c.advance(1)
		}
	}

	st, _ = svc.Status(ctx, a.ID)
	if !st.CheckedInToday || st.CurrentStreak != 2 || st.TodayCheckIn == nil || len(st.Recent) != 2 {
		t.Errorf("Status() today = %+v", st)
	}

	c.advance(1)
	st, _ = svc.Status(ctx, a.ID)
	if st.CheckedInToday || st.CurrentStreak != 2 {
		t.Errorf("Status() next day = %+v, streak should still be alive", st)
	}

	c.advance(1)
	st, _ = svc.Status(ctx, a.ID)
	if st.CurrentStreak != 0 {
		t.Errorf("Status() after gap = %+v, want streak 0", st)
	}
}

func TestRewardForDay(t *testing.T) {
	for day, want := range map[int]int{1: 5, 4: 20, 7: 35, 0: 5, 9: 5} {
		if got := RewardForDay(day); got != want {
			t.Errorf("RewardForDay(%d) = %d, want %d", day, got, want)
		}
	}
}
