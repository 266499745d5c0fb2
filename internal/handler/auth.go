package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/codeofclans/internal/apperror"
	"github.com/sakif/codeofclans/internal/auth"
	"github.com/sakif/codeofclans/internal/service"
)

// AuthHandler serves the login, refresh and session endpoints.
//
// HANDLER RESPONSIBILITIES:
//   - HandleAuthURL    → tell the frontend where to send the browser
//   - HandleCallback   → trade the provider code for a token pair
//   - HandleRefresh    → trade a refresh token for a new access token
//   - HandleAdminLogin → username/password login for staff
//   - HandleLogout     → acknowledge; tokens are stateless
//   - HandleMe         → the current user
//
// The OAuth state parameter is the frontend's job: it starts the flow and
// receives the redirect, then POSTs the code here.
type AuthHandler struct {
	sessions *service.SessionService
	accounts *service.AccountService
	logger   *slog.Logger
}

func NewAuthHandler(sessions *service.SessionService, accounts *service.AccountService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, accounts: accounts, logger: logger}
}

type authURLResponse struct {
	URL string `json:"url"`
}

type loginResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	User         UserJSON `json:"user"`
}

type refreshResponse struct {
	AccessToken string   `json:"access_token"`
	User        UserJSON `json:"user"`
}

// HandleAuthURL returns the provider's authorization URL.
//
// HTTP: GET /api/auth/{provider}
func (h *AuthHandler) HandleAuthURL(w http.ResponseWriter, r *http.Request) {
	url, err := h.sessions.AuthURL(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authURLResponse{URL: url})
}

// HandleCallback completes an OAuth login.
//
// HTTP: POST /api/auth/{provider}/callback
// Body: {"code": "..."}
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Code == "" {
		writeError(w, r, apperror.ValidationFailed("code", "Authorization code is required"))
		return
	}

	res, err := h.sessions.Login(r.Context(), chi.URLParam(r, "provider"), req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		User:         newUserJSON(res.User),
	})
}

// HandleRefresh issues a new access token.
//
// HTTP: POST /api/auth/refresh
// Body: {"refresh_token": "..."}
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{AccessToken: res.AccessToken, User: newUserJSON(res.User)})
}

// HandleAdminLogin checks a username and password and requires staff or
// superuser rights.
//
// HTTP: POST /api/auth/admin/login
// Body: {"username": "...", "password": "..."}
func (h *AuthHandler) HandleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.sessions.AdminLogin(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		User:         newUserJSON(res.User),
	})
}

// HandleLogout acknowledges a logout.
//
// HTTP: POST /api/auth/logout
//
// Tokens are not tracked server-side, so there is nothing to revoke: the
// client drops its tokens and the access token expires on its own.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		h.logger.Info("user logged out", slog.Int64("accountID", id.Account.ID))
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Successfully logged out"})
}

// HandleMe returns the authenticated user.
//
// HTTP: GET /api/auth/user
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, apperror.InvalidToken())
		return
	}

	d, err := h.accounts.Details(r.Context(), id.Account)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserJSON(d))
}
