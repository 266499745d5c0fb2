package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"

	"github.com/sakif/codeofclans/internal/apperror"
	"github.com/sakif/codeofclans/internal/model"
	"github.com/sakif/codeofclans/internal/oauth"
)

var referralPattern = regexp.MustCompile(`^[A-Z0-9]{8}$`)

func newTestResolver(t *testing.T) (*IdentityResolver, *flakyStore) {
	t.Helper()
	store := newFlakyStore(newTestStore(t), 0)
	return NewIdentityResolver(store, discardLogger()), store
}

// =========================================================================
// CREATE
// =========================================================================

func TestResolve_CreatesAccountAndLink(t *testing.T) {
	r, store := newTestResolver(t)
	ctx := context.Background()

	ident := &oauth.Identity{
		SubjectID:   "583231",
		Email:       "alice@x.com",
		Username:    "alice",
		DisplayName: "Alice Pleasance Liddell",
		AvatarURL:   "https://avatars/alice.png",
	}
	acct, outcome, err := r.Resolve(ctx, model.ProviderGitHub, ident, &oauth.Tokens{AccessToken: "gho_1"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if outcome != OutcomeCreated {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeCreated)
	}
	if acct.Username != "alice" || acct.Email != "alice@x.com" || !acct.IsActive {
		t.Errorf("account = %+v", acct)
	}
	if acct.FirstName != "Alice" || acct.LastName != "Pleasance Liddell" {
		t.Errorf("name = %q / %q, want split on first space", acct.FirstName, acct.LastName)
	}

	link, err := store.GetLinkByAccount(ctx, acct.ID)
	if err != nil {
		t.Fatalf("GetLinkByAccount() error = %v", err)
	}
	if link.Provider != model.ProviderGitHub || link.ProviderID != "583231" {
		t.Errorf("link identity = %s:%s", link.Provider, link.ProviderID)
	}
	if link.GitHubUsername != "alice" {
		t.Errorf("GitHubUsername = %q, want alice", link.GitHubUsername)
	}
	if link.AccessToken != "gho_1" || link.AvatarURL != "https://avatars/alice.png" {
		t.Errorf("link data = %+v", link)
	}
	if !referralPattern.MatchString(link.ReferralCode) {
		t.Errorf("ReferralCode = %q, want 8 upper-alnum chars", link.ReferralCode)
	}
}

func TestResolve_GitHubHandleOnlyForGitHub(t *testing.T) {
	r, store := newTestResolver(t)

	acct, _, err := r.Resolve(context.Background(), model.ProviderGoogle,
		&oauth.Identity{SubjectID: "g1", Username: "carol"}, &oauth.Tokens{AccessToken: "ya29"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	link, _ := store.GetLinkByAccount(context.Background(), acct.ID)
	if link.GitHubUsername != "" {
		t.Errorf("GitHubUsername = %q, want empty for google", link.GitHubUsername)
	}
}

func TestResolve_UsernameProbing(t *testing.T) {
	r, store := newTestResolver(t)
	seedAccount(t, store, "alice", "first@x.com")
	seedAccount(t, store, "alice_1", "second@x.com")

	acct, outcome, err := r.Resolve(context.Background(), model.ProviderGoogle,
		&oauth.Identity{SubjectID: "g-alice", Email: "third@x.com", Username: "alice"}, &oauth.Tokens{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if outcome != OutcomeCreated || acct.Username != "alice_2" {
		t.Errorf("Resolve() = %q (%s), want alice_2 (created)", acct.Username, outcome)
	}
}

func TestResolve_NoEmailNeverLinks(t *testing.T) {
	r, store := newTestResolver(t)
	ctx := context.Background()

	a, _, err := r.Resolve(ctx, model.ProviderDiscord, &oauth.Identity{SubjectID: "1", Username: "x"}, &oauth.Tokens{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	b, _, err := r.Resolve(ctx, model.ProviderDiscord, &oauth.Identity{SubjectID: "2", Username: "x"}, &oauth.Tokens{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if a.ID == b.ID {
		t.Fatal("identities without email must not share an account")
	}
	if got := countAccounts(t, store); got != 2 {
		t.Errorf("accounts = %d, want 2", got)
	}
}

func TestResolve_MissingSubject(t *testing.T) {
	r, _ := newTestResolver(t)

	_, _, err := r.Resolve(context.Background(), model.ProviderGitHub, &oauth.Identity{}, nil)
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("Resolve() error = %v, want ErrValidation", err)
	}
}

// =========================================================================
// PRIMARY MATCH
// =========================================================================

func TestResolve_PrimaryMatchIsIdempotent(t *testing.T) {
	r, store := newTestResolver(t)
	ctx := context.Background()
	ident := &oauth.Identity{SubjectID: "g-7", Email: "dora@x.com", Username: "dora", AvatarURL: "https://a/1.png"}

	first, _, err := r.Resolve(ctx, model.ProviderGoogle, ident, &oauth.Tokens{AccessToken: "a1", RefreshToken: "r1"})
	if err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}

	// The provider changed the avatar and sent no refresh token this time.
	again := *ident
	again.AvatarURL = "https://a/2.png"
	second, outcome, err := r.Resolve(ctx, model.ProviderGoogle, &again, &oauth.Tokens{AccessToken: "a2"})
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}

	if outcome != OutcomeMatched || second.ID != first.ID {
		t.Fatalf("second Resolve() = %d (%s), want %d (matched)", second.ID, outcome, first.ID)
	}
	if got := countAccounts(t, store); got != 1 {
		t.Errorf("accounts = %d, want 1", got)
	}

	link, _ := store.GetLinkByAccount(ctx, first.ID)
	if link.AccessToken != "a2" {
		t.Errorf("AccessToken = %q, want refreshed a2", link.AccessToken)
	}
	if link.RefreshToken != "" {
		t.Errorf("RefreshToken = %q, want replaced by the empty one from the latest exchange", link.RefreshToken)
	}
	if link.AvatarURL != "https://a/1.png" {
		t.Errorf("AvatarURL = %q, existing avatar must be kept", link.AvatarURL)
	}
}

func TestResolve_PrimaryMatchReplacesRefreshToken(t *testing.T) {
	r, store := newTestResolver(t)
	ctx := context.Background()
	ident := &oauth.Identity{SubjectID: "d-9", Username: "erin"}

	acct, _, err := r.Resolve(ctx, model.ProviderDiscord, ident, &oauth.Tokens{AccessToken: "a1", RefreshToken: "r1"})
	if err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}
	if _, _, err := r.Resolve(ctx, model.ProviderDiscord, ident, &oauth.Tokens{AccessToken: "a2", RefreshToken: "r2"}); err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}

	link, _ := store.GetLinkByAccount(ctx, acct.ID)
	if link.AccessToken != "a2" || link.RefreshToken != "r2" {
		t.Errorf("tokens = %q / %q, want a2 / r2", link.AccessToken, link.RefreshToken)
	}
}

func TestResolve_PrimaryMatchFillsEmptyAvatar(t *testing.T) {
	r, store := newTestResolver(t)
	ctx := context.Background()
	ident := &oauth.Identity{SubjectID: "d-3", Username: "eve"}

	acct, _, _ := r.Resolve(ctx, model.ProviderDiscord, ident, &oauth.Tokens{})
	withAvatar := *ident
	withAvatar.AvatarURL = "https://cdn/eve.png"
	if _, _, err := r.Resolve(ctx, model.ProviderDiscord, &withAvatar, &oauth.Tokens{}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	link, _ := store.GetLinkByAccount(ctx, acct.ID)
	if link.AvatarURL != "https://cdn/eve.png" {
		t.Errorf("AvatarURL = %q, want it filled", link.AvatarURL)
	}
}

// =========================================================================
// EMAIL LINKING
// =========================================================================

func TestResolve_EmailLinksAcrossProviders(t *testing.T) {
	r, store := newTestResolver(t)
	ctx := context.Background()

	gh, _, err := r.Resolve(ctx, model.ProviderGitHub,
		&oauth.Identity{SubjectID: "7", Email: "bob@x.com", Username: "bob", AvatarURL: "https://gh/bob.png"},
		&oauth.Tokens{AccessToken: "gho"})
	if err != nil {
		t.Fatalf("github Resolve() error = %v", err)
	}

	dc, outcome, err := r.Resolve(ctx, model.ProviderDiscord,
		&oauth.Identity{SubjectID: "d-7", Email: "bob@x.com", Username: "bobby", AvatarURL: "https://dc/bob.png"},
		&oauth.Tokens{AccessToken: "dc", RefreshToken: "dcr"})
	if err != nil {
		t.Fatalf("discord Resolve() error = %v", err)
	}

	if outcome != OutcomeLinked || dc.ID != gh.ID {
		t.Fatalf("discord Resolve() = %d (%s), want %d (linked)", dc.ID, outcome, gh.ID)
	}
	if dc.Username != "bob" {
		t.Errorf("username changed to %q", dc.Username)
	}

	link, _ := store.GetLinkByAccount(ctx, gh.ID)
	if link.Provider != model.ProviderDiscord || link.ProviderID != "d-7" {
		t.Errorf("link = %s:%s, want discord:d-7", link.Provider, link.ProviderID)
	}
	if link.AccessToken != "dc" || link.RefreshToken != "dcr" {
		t.Errorf("tokens not replaced: %+v", link)
	}
	if link.AvatarURL != "https://gh/bob.png" {
		t.Errorf("AvatarURL = %q, existing avatar must be kept", link.AvatarURL)
	}
	if _, err := store.GetLinkByProvider(ctx, model.ProviderGitHub, "7"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("github identity should have been overwritten, got %v", err)
	}
	if got := countAccounts(t, store); got != 1 {
		t.Errorf("accounts = %d, want 1", got)
	}
}

func TestResolve_EmailLinkCreatesMissingLink(t *testing.T) {
	r, store := newTestResolver(t)
	ctx := context.Background()

	bare := &model.Account{Username: "legacy", Email: "old@x.com", IsActive: true}
	if err := store.CreateAccount(ctx, bare); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	acct, outcome, err := r.Resolve(ctx, model.ProviderGoogle,
		&oauth.Identity{SubjectID: "g-old", Email: "old@x.com", Username: "old"}, &oauth.Tokens{AccessToken: "t"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if outcome != OutcomeLinked || acct.ID != bare.ID {
		t.Fatalf("Resolve() = %d (%s), want %d (linked)", acct.ID, outcome, bare.ID)
	}
	link, err := store.GetLinkByAccount(ctx, bare.ID)
	if err != nil || link.ProviderID != "g-old" {
		t.Fatalf("link = %+v, %v", link, err)
	}
}

// =========================================================================
// CONCURRENCY AND CONFLICTS
// =========================================================================

func TestResolve_ConcurrentFirstLogin(t *testing.T) {
	r, store := newTestResolver(t)
	ident := &oauth.Identity{SubjectID: "race", Email: "race@x.com", Username: "racer"}

	const n = 10
	ids := make([]int64, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acct, _, err := r.Resolve(context.Background(), model.ProviderGitHub, ident, &oauth.Tokens{AccessToken: "t"})
			errs[i] = err
			if acct != nil {
				ids[i] = acct.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range errs {
		if errs[i] != nil {
			t.Fatalf("Resolve()[%d] error = %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("Resolve()[%d] = account %d, want %d", i, ids[i], ids[0])
		}
	}
	if got := countAccounts(t, store); got != 1 {
		t.Errorf("accounts = %d, want exactly 1", got)
	}
}

func TestResolve_ReferralCollisionRegenerates(t *testing.T) {
	r, store := newTestResolver(t)
	seedAccount(t, store, "taken", "") // holds SEED0001

	codes := []string{"SEED0001", "SEED0001", "FRESH123"}
	r.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	acct, _, err := r.Resolve(context.Background(), model.ProviderGitHub, &oauth.Identity{SubjectID: "x", Username: "newbie"}, &oauth.Tokens{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	link, _ := store.GetLinkByAccount(context.Background(), acct.ID)
	if link.ReferralCode != "FRESH123" {
		t.Errorf("ReferralCode = %q, want FRESH123", link.ReferralCode)
	}
}

func TestResolve_ConflictRollsBackAccount(t *testing.T) {
	r, store := newTestResolver(t)
	seedAccount(t, store, "taken", "")

	// Every generated code collides, so the link can never be created.
	r.newCode = func() (string, error) { return "SEED0001", nil }

	_, _, err := r.Resolve(context.Background(), model.ProviderGitHub, &oauth.Identity{SubjectID: "x", Username: "ghost"}, &oauth.Tokens{})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Resolve() error = %v, want ErrConflict", err)
	}
	if ok, _ := store.UsernameExists(context.Background(), "ghost"); ok {
		t.Error("account without a link was committed")
	}
}

func TestResolve_StoreConflictSurfaces(t *testing.T) {
	r, store := newTestResolver(t)
	*store.failures = 1

	_, _, err := r.Resolve(context.Background(), model.ProviderGitHub, &oauth.Identity{SubjectID: "x", Username: "y"}, &oauth.Tokens{})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Resolve() error = %v, want ErrConflict", err)
	}
}

// =========================================================================
// HELPERS
// =========================================================================

func TestSplitName(t *testing.T) {
	tests := []struct {
		in          string
		first, last string
	}{
		{"", "", ""},
		{"Madonna", "Madonna", ""},
		{"Ada Lovelace", "Ada", "Lovelace"},
		{"Ada King Lovelace", "Ada", "King Lovelace"},
	}
	for _, tt := range tests {
		first, last := splitName(tt.in)
		if first != tt.first || last != tt.last {
			t.Errorf("splitName(%q) = (%q, %q), want (%q, %q)", tt.in, first, last, tt.first, tt.last)
		}
	}
}

func TestRandomReferralCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		c, err := randomReferralCode()
		if err != nil {
			t.Fatalf("randomReferralCode() error = %v", err)
		}
		if !referralPattern.MatchString(c) {
			t.Fatalf("randomReferralCode() = %q", c)
		}
		seen[c] = true
	}
	if len(seen) < 45 {
		t.Errorf("only %d distinct codes out of 50", len(seen))
	}
}
