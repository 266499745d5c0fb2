package model

import "time"

// FollowEdge is a directed follower → followee relationship.
// The pair is unique and an account cannot follow itself.
type FollowEdge struct {
	FollowerID  int64
	FollowingID int64
	CreatedAt   time.Time
}

// CheckIn records one daily check-in. StreakDay runs 1..7 and wraps.
type CheckIn struct {
	ID          int64     `json:"id"`
	AccountID   int64     `json:"-"`
	CheckInDate time.Time `json:"check_in_date"`
	StreakDay   int       `json:"streak_day"`
	XPEarned    int       `json:"xp_earned"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChatMessage is one message posted to the global chat room. Username and
// AvatarURL are filled in from the author's account when messages are read.
type ChatMessage struct {
	ID        int64
	AccountID int64
	Content   string
	CreatedAt time.Time

	Username  string
	AvatarURL string
}
