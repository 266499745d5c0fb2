package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/codeofclans/internal/apperror"
	"github.com/sakif/codeofclans/internal/auth"
	"github.com/sakif/codeofclans/internal/model"
	"github.com/sakif/codeofclans/internal/repository"
	"github.com/sakif/codeofclans/internal/service"
	"github.com/sakif/codeofclans/internal/storage"
)

// maxUpdateBody fits an avatar, a banner and the text fields.
const maxUpdateBody = 2*storage.MaxImageSize + maxJSONBody

// AccountHandler serves the current user's account operations and the public
// profile and follow endpoints.
type AccountHandler struct {
	accounts *service.AccountService
	follows  *service.FollowService
	logger   *slog.Logger
}

func NewAccountHandler(accounts *service.AccountService, follows *service.FollowService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, follows: follows, logger: logger}
}

// caller returns the authenticated account. Routes using it sit behind
// RequireAuth, so the fallback only guards against miswiring.
func caller(w http.ResponseWriter, r *http.Request) (*model.Account, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, apperror.InvalidToken())
		return nil, false
	}
	return id.Account, true
}

// viewer returns the caller on optional-auth routes, or nil.
func viewer(r *http.Request) *model.Account {
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		return id.Account
	}
	return nil
}

// profileFields is the JSON form of a profile update. Absent or null fields
// are left unchanged.
type profileFields struct {
	Username         *string `json:"username"`
	FirstName        *string `json:"first_name"`
	LastName         *string `json:"last_name"`
	Bio              *string `json:"bio"`
	GitHubUsername   *string `json:"github_username"`
	LeetCodeUsername *string `json:"leetcode_username"`
}

func (f profileFields) update() service.ProfileUpdate {
	return service.ProfileUpdate{
		Username:         f.Username,
		FirstName:        f.FirstName,
		LastName:         f.LastName,
		Bio:              f.Bio,
		GitHubUsername:   f.GitHubUsername,
		LeetCodeUsername: f.LeetCodeUsername,
	}
}

// HandleUpdate changes the caller's profile.
//
// HTTP: PATCH /api/auth/user/update
//
// Accepts either a JSON body or multipart/form-data. Only the multipart form
// can carry the "avatar" and "banner" image files.
func (h *AccountHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	a, ok := caller(w, r)
	if !ok {
		return
	}

	var (
		upd service.ProfileUpdate
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		upd, err = parseMultipartUpdate(w, r)
	} else {
		var f profileFields
		err = decodeJSON(w, r, &f)
		upd = f.update()
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	d, err := h.accounts.UpdateProfile(r.Context(), a, upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserJSON(d))
}

func parseMultipartUpdate(w http.ResponseWriter, r *http.Request) (service.ProfileUpdate, error) {
	var upd service.ProfileUpdate

	r.Body = http.MaxBytesReader(w, r.Body, maxUpdateBody)
	if err := r.ParseMultipartForm(maxUpdateBody); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return upd, apperror.ValidationFailed("body", "Request body too large")
		}
		return upd, apperror.ValidationFailed("body", "Invalid multipart form")
	}

	form := r.MultipartForm.Value
	field := func(name string) *string {
		if v, ok := form[name]; ok && len(v) > 0 {
			return &v[0]
		}
		return nil
	}
	upd.Username = field("username")
	upd.FirstName = field("first_name")
	upd.LastName = field("last_name")
	upd.Bio = field("bio")
	upd.GitHubUsername = field("github_username")
	upd.LeetCodeUsername = field("leetcode_username")

	var err error
	if upd.Avatar, err = formFile(r.MultipartForm, "avatar"); err != nil {
		return upd, err
	}
	if upd.Banner, err = formFile(r.MultipartForm, "banner"); err != nil {
		return upd, err
	}
	return upd, nil
}

// formFile reads one uploaded file. It reads at most one byte past
// MaxImageSize so the size check downstream still sees an oversized file.
func formFile(form *multipart.Form, name string) (*service.Upload, error) {
	headers := form.File[name]
	if len(headers) == 0 {
		return nil, nil
	}
	fh := headers[0]

	f, err := fh.Open()
	if err != nil {
		return nil, apperror.ValidationFailed(name, "Could not read uploaded file")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, storage.MaxImageSize+1))
	if err != nil {
		return nil, apperror.ValidationFailed(name, "Could not read uploaded file")
	}
	return &service.Upload{Filename: fh.Filename, Data: data}, nil
}

// HandleDelete deletes the caller's account.
//
// HTTP: DELETE /api/auth/user/delete
func (h *AccountHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	a, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.accounts.Delete(r.Context(), a.ID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Account deleted successfully"})
}

type redeemResponse struct {
	Message    string `json:"message"`
	XPAwarded  int    `json:"xp_awarded"`
	NewTotalXP int    `json:"new_total_xp"`
}

// HandleRedeemReferral redeems another user's referral code.
//
// HTTP: POST /api/auth/user/redeem-referral
// Body: {"code": "AB12CD34"}
func (h *AccountHandler) HandleRedeemReferral(w http.ResponseWriter, r *http.Request) {
	a, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.accounts.RedeemReferral(r.Context(), a.ID, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, redeemResponse{
		Message:    "Referral code redeemed successfully",
		XPAwarded:  res.XPAwarded,
		NewTotalXP: res.NewTotalXP,
	})
}

// HandleProfile returns a public profile. Logged-in callers also learn
// whether they follow it.
//
// HTTP: GET /api/auth/users/{username}
func (h *AccountHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.accounts.Profile(r.Context(), chi.URLParam(r, "username"), viewer(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PublicProfileJSON{UserJSON: newUserJSON(p.AccountDetails), IsFollowing: p.IsFollowing})
}

type followResponse struct {
	IsFollowing    bool `json:"is_following"`
	FollowerCount  int  `json:"follower_count"`
	FollowingCount int  `json:"following_count"`
}

// HandleFollow follows or unfollows a user.
//
// HTTP: POST /api/auth/users/{username}/follow
func (h *AccountHandler) HandleFollow(w http.ResponseWriter, r *http.Request) {
	a, ok := caller(w, r)
	if !ok {
		return
	}

	res, err := h.follows.Toggle(r.Context(), a, chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, followResponse{
		IsFollowing:    res.IsFollowing,
		FollowerCount:  res.FollowerCount,
		FollowingCount: res.FollowingCount,
	})
}

// HandleFollowers lists who follows a user.
//
// HTTP: GET /api/auth/users/{username}/followers?limit=20&offset=0
func (h *AccountHandler) HandleFollowers(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.follows.Followers)
}

// HandleFollowing lists who a user follows.
//
// HTTP: GET /api/auth/users/{username}/following?limit=20&offset=0
func (h *AccountHandler) HandleFollowing(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.follows.Following)
}

func (h *AccountHandler) list(
	w http.ResponseWriter,
	r *http.Request,
	fetch func(ctx context.Context, username string, viewer *model.Account, opts repository.ListOptions) ([]service.FollowEntry, error),
) {
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entries, err := fetch(r.Context(), chi.URLParam(r, "username"), viewer(r), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newFollowEntries(entries))
}
