// Package auth provides session tokens, password hashing and the request
// authenticator for the API.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. Client asks GET /api/auth/{provider} for the provider's authorization URL
//  2. Provider redirects back to the frontend with a code
//  3. Frontend POSTs the code to /api/auth/{provider}/callback
//  4. Server exchanges the code, resolves the account, and returns an access
//     token and a refresh token
//  5. Later requests carry "Authorization: Bearer <access token>"; the
//     Authenticator verifies it and re-checks that the account is still active
//
// Tokens are stateless HS256 JWTs:
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Payload: {"user_id":42,"type":"access","sub":"42","iss":"code-of-clans","exp":...}
//
// Nothing is stored server-side. Disabling an account takes effect on the
// next request because the account row is loaded on every use.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/codeofclans/internal/apperror"
)

// Kind tags a token as access or refresh. A token of one kind is never
// accepted where the other is expected.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// DefaultIssuer is used when TokenConfig.Issuer is empty.
const DefaultIssuer = "code-of-clans"

// TokenConfig holds the signing secret and token lifetimes.
type TokenConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenService signs and verifies session tokens.
//
// It holds the HMAC secret key used for both operations.
type TokenService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenService creates a TokenService from cfg.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	return &TokenService{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}, nil
}

// Claims is the JWT payload.
//
// AccountID is duplicated into the standard "sub" claim so generic JWT
// tooling can read it; verification trusts the typed field.
type Claims struct {
	AccountID int64 `json:"user_id"`
	Kind      Kind  `json:"type"`
	jwt.RegisteredClaims
}

// Sign issues a token of the given kind for accountID.
//
// Access tokens use the short lifetime, refresh tokens the long one.
func (s *TokenService) Sign(accountID int64, kind Kind) (string, error) {
	var ttl time.Duration
	switch kind {
	case KindAccess:
		ttl = s.accessTTL
	case KindRefresh:
		ttl = s.refreshTTL
	default:
		return "", fmt.Errorf("auth: unknown token kind %q", kind)
	}

	now := time.Now()
	c := Claims{
		AccountID: accountID,
		Kind:      kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(accountID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    s.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Verify parses and verifies a token string.
//
// Any failure (bad signature, malformed token, algorithm other than HS256,
// foreign issuer, missing or past expiry, missing account id) is reported as
// apperror.ErrInvalidToken. Verify does not look at the kind or at the
// account; that is the caller's job.
func (s *TokenService) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: %w: %v", apperror.InvalidToken(), err)
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims: %w", apperror.InvalidToken())
	}
	if c.AccountID <= 0 {
		return nil, fmt.Errorf("auth: token has no account id: %w", apperror.InvalidToken())
	}

	return c, nil
}
