// Package model defines the data structures used throughout the application.
package model

import "time"

// Account is the durable principal.
//
// Email is not unique at creation time but is used as the linking key when a
// person signs in through a second provider. PasswordHash is only set for
// locally-provisioned administrators; OAuth accounts never carry one.
type Account struct {
	ID           int64     `json:"id"          db:"id"`
	Username     string    `json:"username"    db:"username"`
	Email        string    `json:"email"       db:"email"`
	FirstName    string    `json:"first_name"  db:"first_name"`
	LastName     string    `json:"last_name"   db:"last_name"`
	IsActive     bool      `json:"is_active"   db:"is_active"`
	IsStaff      bool      `json:"is_staff"    db:"is_staff"`
	IsSuperuser  bool      `json:"is_superuser" db:"is_superuser"`
	PasswordHash string    `json:"-"           db:"password_hash"`
	DateJoined   time.Time `json:"date_joined" db:"date_joined"`
}

// IsPrivileged reports whether the account may use the admin area.
func (a *Account) IsPrivileged() bool {
	return a.IsStaff || a.IsSuperuser
}

// AccountDetails is an Account together with its (optional) identity link and
// follower counts, the shape every user-facing endpoint returns.
type AccountDetails struct {
	Account        *Account
	Link           *IdentityLink // nil when the account has no link yet
	FollowersCount int
	FollowingCount int
}
