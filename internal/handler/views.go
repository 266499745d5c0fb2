package handler

import (
	"time"

	"github.com/sakif/codeofclans/internal/model"
	"github.com/sakif/codeofclans/internal/service"
)

// dateLayout is how check-in dates appear on the wire.
const dateLayout = "2006-01-02"

// ProfileJSON is the identity link as clients see it. Provider tokens are
// never serialized.
type ProfileJSON struct {
	Provider         string    `json:"provider"`
	AvatarURL        string    `json:"avatar_url"`
	BannerURL        string    `json:"banner_url"`
	Bio              string    `json:"bio"`
	XP               int       `json:"xp"`
	ReferralCode     string    `json:"referral_code"`
	IsReferred       bool      `json:"is_referred"`
	CreatedAt        time.Time `json:"created_at"`
	GitHubUsername   string    `json:"github_username"`
	LeetCodeUsername string    `json:"leetcode_username"`
}

// UserJSON is the account shape every user endpoint returns. Profile is null
// for accounts without a link.
type UserJSON struct {
	ID             int64        `json:"id"`
	Username       string       `json:"username"`
	Email          string       `json:"email"`
	FirstName      string       `json:"first_name"`
	LastName       string       `json:"last_name"`
	Profile        *ProfileJSON `json:"profile"`
	FollowersCount int          `json:"followers_count"`
	FollowingCount int          `json:"following_count"`
	IsStaff        bool         `json:"is_staff"`
	IsSuperuser    bool         `json:"is_superuser"`
	IsActive       bool         `json:"is_active"`
}

func newUserJSON(d *model.AccountDetails) UserJSON {
	a := d.Account
	u := UserJSON{
		ID:             a.ID,
		Username:       a.Username,
		Email:          a.Email,
		FirstName:      a.FirstName,
		LastName:       a.LastName,
		FollowersCount: d.FollowersCount,
		FollowingCount: d.FollowingCount,
		IsStaff:        a.IsStaff,
		IsSuperuser:    a.IsSuperuser,
		IsActive:       a.IsActive,
	}
	if l := d.Link; l != nil {
		u.Profile = &ProfileJSON{
			Provider:         string(l.Provider),
			AvatarURL:        l.AvatarURL,
			BannerURL:        l.BannerURL,
			Bio:              l.Bio,
			XP:               l.XP,
			ReferralCode:     l.ReferralCode,
			IsReferred:       l.IsReferred(),
			CreatedAt:        l.CreatedAt,
			GitHubUsername:   l.GitHubUsername,
			LeetCodeUsername: l.LeetCodeUsername,
		}
	}
	return u
}

// PublicProfileJSON adds the caller's follow state to a user.
type PublicProfileJSON struct {
	UserJSON
	IsFollowing bool `json:"is_following"`
}

type FollowEntryJSON struct {
	Username    string `json:"username"`
	FirstName   string `json:"first_name"`
	AvatarURL   string `json:"avatar_url"`
	IsFollowing bool   `json:"is_following"`
}

func newFollowEntries(entries []service.FollowEntry) []FollowEntryJSON {
	out := make([]FollowEntryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, FollowEntryJSON{
			Username:    e.Account.Username,
			FirstName:   e.Account.FirstName,
			AvatarURL:   e.AvatarURL,
			IsFollowing: e.IsFollowing,
		})
	}
	return out
}

type CheckInJSON struct {
	ID          int64     `json:"id"`
	CheckInDate string    `json:"check_in_date"`
	StreakDay   int       `json:"streak_day"`
	XPEarned    int       `json:"xp_earned"`
	CreatedAt   time.Time `json:"created_at"`
}

func newCheckInJSON(c *model.CheckIn) *CheckInJSON {
	if c == nil {
		return nil
	}
	return &CheckInJSON{
		ID:          c.ID,
		CheckInDate: c.CheckInDate.Format(dateLayout),
		StreakDay:   c.StreakDay,
		XPEarned:    c.XPEarned,
		CreatedAt:   c.CreatedAt,
	}
}
