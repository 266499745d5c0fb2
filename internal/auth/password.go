package auth

// Admin password hashing.
//
// Only locally-provisioned administrators (created with `server create-admin`)
// carry a password. OAuth accounts leave Account.PasswordHash empty and can
// never pass Verify.
//
// Hash format (the full output of bcrypt.GenerateFromPassword):
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost
//	 version

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/codeofclans/internal/apperror"
)

// defaultCost is the bcrypt work factor used outside tests.
const defaultCost = 12

// maxPasswordLen is bcrypt's input limit; longer input would be truncated.
const maxPasswordLen = 72

// PasswordService hashes and checks admin passwords.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService with the default cost.
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceWithCost creates a PasswordService with a custom bcrypt
// cost. Tests in other packages pass bcrypt.MinCost to keep hashing fast.
func NewPasswordServiceWithCost(cost int) *PasswordService {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	return &PasswordService{cost: cost}
}

// Hash hashes plaintext with bcrypt. Empty passwords and passwords longer than
// 72 bytes are rejected with a validation error.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", apperror.ValidationFailed("password", "password is required")
	}
	if len(plaintext) > maxPasswordLen {
		return "", apperror.ValidationFailed("password", "password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify checks plaintext against a stored hash.
//
// A mismatch, an empty hash (OAuth-only account) or an unparseable hash all
// return apperror.ErrInvalidCredentials. The comparison is constant-time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	if hash == "" {
		return apperror.InvalidCredentials()
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return apperror.InvalidCredentials()
	}
	return fmt.Errorf("auth: comparing password hash: %w: %v", apperror.InvalidCredentials(), err)
}
