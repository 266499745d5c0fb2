package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sakif/codeofclans/internal/apperror"
	"github.com/sakif/codeofclans/internal/auth"
	"github.com/sakif/codeofclans/internal/model"
	"github.com/sakif/codeofclans/internal/oauth"
	"github.com/sakif/codeofclans/internal/repository"
	sqliteRepo "github.com/sakif/codeofclans/internal/repository/sqlite"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore returns a migrated in-memory database closed at test end.
func newTestStore(t *testing.T) *sqliteRepo.DB {
	t.Helper()
	db, err := sqliteRepo.New(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService(auth.TokenConfig{
		Secret:     "test-secret-at-least-16-chars!!",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// seedAccount creates an account with a link, bypassing the resolver.
func seedAccount(t *testing.T, store repository.Store, username, email string) (*model.Account, *model.IdentityLink) {
	t.Helper()
	ctx := context.Background()
	a := &model.Account{Username: username, Email: email, IsActive: true}
	if err := store.CreateAccount(ctx, a); err != nil {
		t.Fatalf("seeding account %q: %v", username, err)
	}
	l := &model.IdentityLink{
		AccountID:    a.ID,
		Provider:     model.ProviderGitHub,
		ProviderID:   "seed-" + username,
		ReferralCode: fmt.Sprintf("SEED%04d", a.ID),
	}
	if err := store.CreateLink(ctx, l); err != nil {
		t.Fatalf("seeding link for %q: %v", username, err)
	}
	return a, l
}

// fakeAdapter is an oauth.Adapter that returns canned data.
type fakeAdapter struct {
	name        model.Provider
	tokens      *oauth.Tokens
	ident       *oauth.Identity
	exchangeErr error
	fetchErr    error
	delay       time.Duration

	fetches atomic.Int32
}

var _ oauth.Adapter = (*fakeAdapter)(nil)

func (f *fakeAdapter) Name() model.Provider { return f.name }
func (f *fakeAdapter) AuthURL() string      { return "https://provider.test/authorize?client_id=x" }

func (f *fakeAdapter) ExchangeCode(_ context.Context, code string) (*oauth.Tokens, error) {
	if code == "" {
		return nil, apperror.ValidationFailed("code", "Authorization code is required")
	}
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return f.tokens, nil
}

func (f *fakeAdapter) FetchIdentity(_ context.Context, _ string) (*oauth.Identity, error) {
	f.fetches.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.ident, nil
}

// flakyStore fails the first n CreateAccount calls with a conflict.
type flakyStore struct {
	repository.Store
	mu       *sync.Mutex
	failures *int
}

func newFlakyStore(inner repository.Store, n int) *flakyStore {
	return &flakyStore{Store: inner, mu: &sync.Mutex{}, failures: &n}
}

func (f *flakyStore) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	return f.Store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		return fn(ctx, &flakyStore{Store: tx, mu: f.mu, failures: f.failures})
	})
}

func (f *flakyStore) CreateAccount(ctx context.Context, a *model.Account) error {
	f.mu.Lock()
	fail := *f.failures > 0
	if fail {
		*f.failures--
	}
	f.mu.Unlock()
	if fail {
		return apperror.Conflict("account", a.Username)
	}
	return f.Store.CreateAccount(ctx, a)
}

func countAccounts(t *testing.T, store repository.Store) int {
	t.Helper()
	all, err := store.ListAccounts(context.Background(), repository.ListOptions{Limit: 200})
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	return len(all)
}
