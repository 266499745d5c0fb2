package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/codeofclans/internal/service"
)

// AdminHandler serves the staff-only account endpoints. Routes are mounted
// behind RequireAuth and RequireStaff.
type AdminHandler struct {
	accounts *service.AccountService
	logger   *slog.Logger
}

func NewAdminHandler(accounts *service.AccountService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{accounts: accounts, logger: logger}
}

// HandleList lists accounts newest first.
//
// HTTP: GET /api/auth/admin/users?limit=50&offset=0
func (h *AdminHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	details, err := h.accounts.List(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}

	users := make([]UserJSON, 0, len(details))
	for _, d := range details {
		users = append(users, newUserJSON(d))
	}
	writeJSON(w, http.StatusOK, users)
}

type toggleBlockResponse struct {
	Message  string `json:"message"`
	IsActive bool   `json:"is_active"`
}

// HandleToggleBlock blocks an active user or unblocks a blocked one.
//
// HTTP: POST /api/auth/admin/users/{username}/toggle-block
func (h *AdminHandler) HandleToggleBlock(w http.ResponseWriter, r *http.Request) {
	a, ok := caller(w, r)
	if !ok {
		return
	}

	active, err := h.accounts.ToggleBlock(r.Context(), a, chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	msg := "User blocked successfully"
	if active {
		msg = "User unblocked successfully"
	}
	writeJSON(w, http.StatusOK, toggleBlockResponse{Message: msg, IsActive: active})
}
