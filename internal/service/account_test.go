package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sakif/codeofclans/internal/apperror"
	"github.com/sakif/codeofclans/internal/repository"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00")

// fakeUploader records uploads and returns a predictable URL.
type fakeUploader struct {
	keys []string
	err  error
}

func (f *fakeUploader) Upload(_ context.Context, key string, _ []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key+"|"+contentType)
	return "https://cdn.test/" + key, nil
}

func newTestAccountService(t *testing.T) (*AccountService, repository.Store, *fakeUploader) {
	t.Helper()
	store := newTestStore(t)
	up := &fakeUploader{}
	return NewAccountService(store, up, discardLogger()), store, up
}

func strPtr(s string) *string { return &s }

// =========================================================================
// Profile TESTS
// =========================================================================

func TestProfile(t *testing.T) {
	svc, store, _ := newTestAccountService(t)
	ctx := context.Background()
	alice, _ := seedAccount(t, store, "alice", "")
	bob, _ := seedAccount(t, store, "bob", "")
	if err := store.Follow(ctx, bob.ID, alice.ID); err != nil {
		t.Fatalf("Follow() error = %v", err)
	}

	anon, err := svc.Profile(ctx, "alice", nil)
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if anon.IsFollowing || anon.FollowersCount != 1 || anon.FollowingCount != 0 {
		t.Errorf("anonymous Profile() = %+v", anon)
	}

	asBob, err := svc.Profile(ctx, "alice", bob)
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if !asBob.IsFollowing {
		t.Error("bob follows alice, IsFollowing = false")
	}

	_, err = svc.Profile(ctx, "nobody", nil)
	if !errors.Is(err, apperror.ErrNotFound) || apperror.Message(err) != "User not found" {
		t.Errorf("Profile(nobody) error = %v", err)
	}
}

// =========================================================================
// UpdateProfile TESTS
// =========================================================================

func TestUpdateProfile_Fields(t *testing.T) {
	svc, store, _ := newTestAccountService(t)
	alice, _ := seedAccount(t, store, "alice", "")

	d, err := svc.UpdateProfile(context.Background(), alice, ProfileUpdate{
		Username:         strPtr("  alicia "),
		FirstName:        strPtr("Alicia"),
		Bio:              strPtr("gopher"),
		LeetCodeUsername: strPtr("alicia_lc"),
	})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if d.Account.Username != "alicia" || d.Account.FirstName != "Alicia" {
		t.Errorf("account = %+v", d.Account)
	}
	if d.Link.Bio != "gopher" || d.Link.LeetCodeUsername != "alicia_lc" {
		t.Errorf("link = %+v", d.Link)
	}
	if d.Account.LastName != "" || d.Link.GitHubUsername != "" {
		t.Error("fields not in the update must be left alone")
	}
}

func TestUpdateProfile_Uploads(t *testing.T) {
	svc, store, up := newTestAccountService(t)
	alice, _ := seedAccount(t, store, "alice", "")

	d, err := svc.UpdateProfile(context.Background(), alice, ProfileUpdate{
		Avatar: &Upload{Filename: "me.png", Data: pngBytes},
		Banner: &Upload{Filename: "wide.PNG", Data: pngBytes},
	})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if len(up.keys) != 2 {
		t.Fatalf("uploads = %v, want 2", up.keys)
	}
	if !strings.HasPrefix(up.keys[0], "avatars/1/") || !strings.HasSuffix(up.keys[0], ".png|image/png") {
		t.Errorf("avatar upload = %q", up.keys[0])
	}
	if !strings.HasPrefix(d.Link.AvatarURL, "https://cdn.test/avatars/1/") {
		t.Errorf("AvatarURL = %q", d.Link.AvatarURL)
	}
	if !strings.HasPrefix(d.Link.BannerURL, "https://cdn.test/banners/1/") {
		t.Errorf("BannerURL = %q", d.Link.BannerURL)
	}
}

func TestUpdateProfile_KeyIgnoresFilename(t *testing.T) {
	svc, store, up := newTestAccountService(t)
	alice, _ := seedAccount(t, store, "alice", "")

	d, err := svc.UpdateProfile(context.Background(), alice, ProfileUpdate{
		Avatar: &Upload{Filename: "a.png#frag?x=1", Data: pngBytes},
		Banner: &Upload{Filename: "shell.HTML", Data: pngBytes},
	})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	for _, u := range []string{d.Link.AvatarURL, d.Link.BannerURL} {
		if strings.ContainsAny(u, "#?") || !strings.HasSuffix(u, ".png") {
			t.Errorf("stored URL = %q, want a .png key without URL syntax", u)
		}
	}
	if strings.Contains(up.keys[1], ".html") {
		t.Errorf("banner upload = %q", up.keys[1])
	}
}

func TestUpdateProfile_Rejections(t *testing.T) {
	tests := []struct {
		name string
		upd  ProfileUpdate
		fail error
		want error
	}{
		{"empty username", ProfileUpdate{Username: strPtr("  ")}, nil, apperror.ErrValidation},
		{"not an image", ProfileUpdate{Bio: strPtr("x"), Avatar: &Upload{Filename: "a.png", Data: []byte("plain text")}}, nil, apperror.ErrValidation},
		{"storage failure", ProfileUpdate{Bio: strPtr("x"), Banner: &Upload{Filename: "b.png", Data: pngBytes}}, errors.New("connection reset"), apperror.ErrValidation},
		{"username taken", ProfileUpdate{Username: strPtr("bob"), Bio: strPtr("x")}, nil, apperror.ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, up := newTestAccountService(t)
			up.err = tt.fail
			alice, _ := seedAccount(t, store, "alice", "")
			seedAccount(t, store, "bob", "")

			_, err := svc.UpdateProfile(context.Background(), alice, tt.upd)
			if !errors.Is(err, tt.want) {
				t.Fatalf("UpdateProfile() error = %v, want %v", err, tt.want)
			}

			link, _ := store.GetLinkByAccount(context.Background(), alice.ID)
			if link.Bio != "" {
				t.Error("a rejected update must not write anything")
			}
		})
	}
}

func TestUpdateProfile_NoUploaderConfigured(t *testing.T) {
	store := newTestStore(t)
	svc := NewAccountService(store, nil, discardLogger())
	alice, _ := seedAccount(t, store, "alice", "")

	_, err := svc.UpdateProfile(context.Background(), alice, ProfileUpdate{Avatar: &Upload{Filename: "a.png", Data: pngBytes}})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("UpdateProfile() error = %v, want ErrValidation", err)
	}
}

// =========================================================================
// RedeemReferral TESTS
// =========================================================================

func TestRedeemReferral(t *testing.T) {
	svc, store, _ := newTestAccountService(t)
	ctx := context.Background()
	alice, aliceLink := seedAccount(t, store, "alice", "")
	bob, _ := seedAccount(t, store, "bob", "")

	res, err := svc.RedeemReferral(ctx, bob.ID, aliceLink.ReferralCode)
	if err != nil {
		t.Fatalf("RedeemReferral() error = %v", err)
	}
	if res.XPAwarded != 100 || res.NewTotalXP != 100 {
		t.Errorf("RedeemReferral() = %+v", res)
	}

	updated, _ := store.GetLinkByAccount(ctx, bob.ID)
	if updated.ReferredByAccount == nil || *updated.ReferredByAccount != alice.ID {
		t.Errorf("ReferredByAccount = %v, want %d", updated.ReferredByAccount, alice.ID)
	}
	referrer, _ := store.GetLinkByAccount(ctx, alice.ID)
	if referrer.XP != 0 {
		t.Errorf("referrer XP = %d, the referrer gets nothing", referrer.XP)
	}

	tests := []struct {
		name    string
		account int64
		code    string
		want    error
		msg     string
	}{
		{"empty code", alice.ID, " ", apperror.ErrValidation, "Referral code is required"},
		{"already redeemed", bob.ID, aliceLink.ReferralCode, apperror.ErrValidation, "You have already redeemed a referral code"},
		{"own code", alice.ID, aliceLink.ReferralCode, apperror.ErrValidation, "Cannot redeem your own referral code"},
		{"unknown code", alice.ID, "ZZZZZZZZ", apperror.ErrNotFound, "Invalid referral code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RedeemReferral(ctx, tt.account, tt.code)
			if !errors.Is(err, tt.want) {
				t.Fatalf("RedeemReferral() error = %v, want %v", err, tt.want)
			}
			if apperror.Message(err) != tt.msg {
				t.Errorf("message = %q, want %q", apperror.Message(err), tt.msg)
			}
		})
	}
}

// =========================================================================
// ADMIN TESTS
// =========================================================================

func TestToggleBlock(t *testing.T) {
	svc, store, _ := newTestAccountService(t)
	ctx := context.Background()
	admin, _ := seedAccount(t, store, "root", "")
	seedAccount(t, store, "troll", "")

	active, err := svc.ToggleBlock(ctx, admin, "troll")
	if err != nil || active {
		t.Fatalf("ToggleBlock() = %v, %v, want blocked", active, err)
	}
	active, err = svc.ToggleBlock(ctx, admin, "troll")
	if err != nil || !active {
		t.Fatalf("second ToggleBlock() = %v, %v, want unblocked", active, err)
	}

	if _, err := svc.ToggleBlock(ctx, admin, "root"); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("ToggleBlock(self) error = %v, want ErrValidation", err)
	}
	if _, err := svc.ToggleBlock(ctx, admin, "ghost"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("ToggleBlock(ghost) error = %v, want ErrNotFound", err)
	}
}

func TestListAndDelete(t *testing.T) {
	svc, store, _ := newTestAccountService(t)
	ctx := context.Background()
	first, _ := seedAccount(t, store, "first", "")
	seedAccount(t, store, "second", "")

	list, err := svc.List(ctx, repository.ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].Account.Username != "second" || list[0].Link == nil {
		t.Fatalf("List() = %+v, want newest first with links", list)
	}

	if err := svc.Delete(ctx, first.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := svc.Delete(ctx, first.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
	if got := countAccounts(t, store); got != 1 {
		t.Errorf("accounts = %d, want 1", got)
	}
}
