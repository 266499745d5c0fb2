package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sakif/codeofclans/internal/apperror"
	"github.com/sakif/codeofclans/internal/model"
)

// AccountLoader loads an account by id. Implementations return an error
// wrapping apperror.ErrNotFound when the account does not exist.
type AccountLoader interface {
	GetAccountByID(ctx context.Context, id int64) (*model.Account, error)
}

// Identity is the authenticated caller attached to a request.
type Identity struct {
	Account *model.Account
	Token   string
}

// Authenticator turns an Authorization header into an Identity.
//
// Token verification is pure; the account is loaded on every call so that
// disabling or deleting an account takes effect on the very next request.
type Authenticator struct {
	tokens   *TokenService
	accounts AccountLoader
	recorder ResultRecorder
}

// ResultRecorder receives the outcome of every Authenticate call: "ok",
// "anonymous" or an apperror kind.
type ResultRecorder interface {
	RecordAuthentication(result string)
}

// NewAuthenticator creates an Authenticator. rec may be nil.
func NewAuthenticator(tokens *TokenService, accounts AccountLoader, rec ResultRecorder) *Authenticator {
	return &Authenticator{tokens: tokens, accounts: accounts, recorder: rec}
}

// Authenticate inspects an Authorization header value.
//
//   - empty header, not exactly two space-separated parts, or a scheme other
//     than "Bearer" (any case): (nil, nil), the request is anonymous
//   - signature or expiry failure: ErrInvalidToken
//   - refresh token presented: ErrWrongTokenType
//   - account gone: ErrAccountNotFound
//   - account inactive: ErrAccountDisabled
func (a *Authenticator) Authenticate(ctx context.Context, header string) (*Identity, error) {
	id, err := a.authenticate(ctx, header)
	if a.recorder != nil {
		switch {
		case err != nil:
			a.recorder.RecordAuthentication(apperror.Kind(err))
		case id == nil:
			a.recorder.RecordAuthentication("anonymous")
		default:
			a.recorder.RecordAuthentication("ok")
		}
	}
	return id, err
}

func (a *Authenticator) authenticate(ctx context.Context, header string) (*Identity, error) {
	if header == "" {
		return nil, nil
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, nil
	}
	raw := parts[1]

	claims, err := a.tokens.Verify(raw)
	if err != nil {
		return nil, err
	}
	if claims.Kind != KindAccess {
		return nil, apperror.WrongTokenType(string(KindAccess))
	}

	acct, err := a.accounts.GetAccountByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.AccountNotFound()
		}
		return nil, fmt.Errorf("auth: loading account %d: %w", claims.AccountID, err)
	}
	if !acct.IsActive {
		return nil, apperror.AccountDisabled()
	}

	return &Identity{Account: acct, Token: raw}, nil
}

// contextKey is an unexported type used for context keys in this package,
// so no other package can read or shadow the identity value.
type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the authenticated caller, or (nil, false) for
// anonymous requests.
//
//	id, ok := auth.IdentityFromContext(r.Context())
//	if !ok {
//	    // anonymous user
//	}
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok && id != nil
}

// RequireAuth rejects anonymous requests and requests whose bearer token
// fails authentication.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			writeAuthError(w, err)
			return
		}
		if id == nil {
			writeAuthError(w, apperror.InvalidToken())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// OptionalAuth lets anonymous requests through but still rejects a bearer
// token that was presented and failed.
//
// Use this on public routes like GET /api/auth/users/{username} where a
// logged-in caller additionally sees whether they follow the profile.
func (a *Authenticator) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			writeAuthError(w, err)
			return
		}
		if id != nil {
			r = r.WithContext(WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireQueryToken is RequireAuth for clients that cannot set headers, such
// as a browser opening a WebSocket. The access token travels in the named
// query parameter instead of the Authorization header.
func (a *Authenticator) RequireQueryToken(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.URL.Query().Get(param)
			if token == "" {
				writeAuthError(w, apperror.InvalidToken())
				return
			}
			id, err := a.Authenticate(r.Context(), "Bearer "+token)
			if err == nil && id == nil {
				err = apperror.InvalidToken()
			}
			if err != nil {
				writeAuthError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireStaff must run after RequireAuth. It allows staff and superusers only.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			writeAuthError(w, apperror.InvalidToken())
			return
		}
		if !id.Account.IsPrivileged() {
			writeAuthError(w, apperror.Forbidden("You do not have permission to perform this action."))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeAuthError writes the same {"error","message"} body the handlers use.
// A token that points at a missing account is an authentication failure
// here, not a 404.
func writeAuthError(w http.ResponseWriter, err error) {
	kind := apperror.Kind(err)
	status := apperror.HTTPStatus(err)
	if errors.Is(err, apperror.ErrAccountNotFound) {
		status = http.StatusUnauthorized
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   kind,
		"message": apperror.Message(err),
	})
}
