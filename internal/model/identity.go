package model

import "time"

// Provider identifies where an identity link came from.
type Provider string

const (
	ProviderGitHub  Provider = "github"
	ProviderGoogle  Provider = "google"
	ProviderDiscord Provider = "discord"
	ProviderLocal   Provider = "local"
)

// Valid reports whether p is one of the known providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGitHub, ProviderGoogle, ProviderDiscord, ProviderLocal:
		return true
	}
	return false
}

// IdentityLink binds one Account to its most recently used provider identity.
//
// (Provider, ProviderID) is globally unique. ReferralCode is unique and never
// changes once set. A login through a different provider with the same email
// overwrites Provider/ProviderID in place: the link tracks the last provider
// used, not every provider the person has ever used.
type IdentityLink struct {
	ID                int64
	AccountID         int64
	Provider          Provider
	ProviderID        string
	AccessToken       string
	RefreshToken      string
	AvatarURL         string
	BannerURL         string
	Bio               string
	GitHubUsername    string
	LeetCodeUsername  string
	XP                int
	ReferralCode      string
	ReferredByAccount *int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsReferred reports whether a referral code has already been redeemed.
func (l *IdentityLink) IsReferred() bool {
	return l.ReferredByAccount != nil
}
