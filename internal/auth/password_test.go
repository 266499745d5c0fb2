package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/codeofclans/internal/apperror"
)

func newTestPasswordService() *PasswordService {
	return NewPasswordServiceWithCost(bcrypt.MinCost)
}

// =========================================================================
// Hash TESTS
// =========================================================================

func TestHash_OutputLooksBcrypt(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("password123")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("Hash() does not look like a bcrypt hash: %q", hash)
	}
}

func TestHash_SaltIsRandom(t *testing.T) {
	ps := newTestPasswordService()

	hash1, _ := ps.Hash("same-password")
	hash2, _ := ps.Hash("same-password")

	if hash1 == hash2 {
		t.Error("Hash() produced identical hashes for the same password")
	}
}

func TestHash_Rejects(t *testing.T) {
	ps := newTestPasswordService()

	for name, pw := range map[string]string{
		"empty":    "",
		"73 bytes": strings.Repeat("a", 73),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ps.Hash(pw)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("Hash() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestHash_AcceptsPasswordExactly72Bytes(t *testing.T) {
	ps := newTestPasswordService()

	if _, err := ps.Hash(strings.Repeat("a", 72)); err != nil {
		t.Fatalf("Hash() should accept a 72-byte password, got error: %v", err)
	}
}

func TestNewPasswordServiceWithCost_ClampsToMin(t *testing.T) {
	ps := NewPasswordServiceWithCost(1)
	if ps.cost != bcrypt.MinCost {
		t.Errorf("cost = %d, want %d", ps.cost, bcrypt.MinCost)
	}
}

// =========================================================================
// Verify TESTS
// =========================================================================

func TestVerify_CorrectPassword(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if err := ps.Verify(hash, "correct-horse-battery-staple"); err != nil {
		t.Errorf("Verify() should return nil for a correct password, got: %v", err)
	}
}

func TestVerify_Failures(t *testing.T) {
	ps := newTestPasswordService()
	hash, _ := ps.Hash("the-real-password")

	cases := []struct {
		name      string
		hash      string
		plaintext string
	}{
		{"wrong password", hash, "the-wrong-password"},
		{"empty password", hash, ""},
		{"no hash on account", "", "anything"},
		{"garbage hash", "not-a-valid-bcrypt-hash", "password"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ps.Verify(tc.hash, tc.plaintext)
			if !errors.Is(err, apperror.ErrInvalidCredentials) {
				t.Fatalf("Verify() error = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestHashVerify_RoundTrip(t *testing.T) {
	ps := newTestPasswordService()

	for _, pw := range []string{"hello123", "p@$$w0rd!#%", "пароль-密码", "  padded  "} {
		hash, err := ps.Hash(pw)
		if err != nil {
			t.Fatalf("Hash(%q) error = %v", pw, err)
		}
		if err := ps.Verify(hash, pw); err != nil {
			t.Errorf("Verify() failed for %q: %v", pw, err)
		}
	}
}
