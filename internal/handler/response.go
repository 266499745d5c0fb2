package handler

// RESPONSE HELPERS:
// Every endpoint answers through writeJSON or writeError so that success and
// failure bodies have one shape each:
//
//	writeJSON(w, http.StatusOK, data)
//	writeError(w, r, err)
//
// Error bodies always look like
//
//	{"error": "account_disabled", "message": "User account is disabled."}
//
// where "error" is the machine-readable kind and "message" is safe to show.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/codeofclans/internal/apperror"
	"github.com/sakif/codeofclans/internal/repository"
)

// maxJSONBody bounds request bodies that are not file uploads.
const maxJSONBody = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error kind (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
	Field   string `json:"field,omitempty"`
}

// MessageResponse is used by endpoints that only confirm an action.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
//
// Headers and status go out before the body: once Encode writes, later
// header changes are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps err to a status code and the standard error body.
//
// errors.Is walks the wrap chain, so a service error such as
//
//	fmt.Errorf("service/session: %w", apperror.AccountDisabled())
//
// still maps to 403 account_disabled. Errors without a kind become a 500 with
// a generic message; the real error is only logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperror.HTTPStatus(err)
	kind := apperror.Kind(err)

	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("requestID", middleware.GetReqID(r.Context())),
			slog.String("error", err.Error()),
		)
		writeJSON(w, status, ErrorResponse{Error: kind, Message: "An internal error occurred"})
		return
	}

	resp := ErrorResponse{Error: kind, Message: apperror.Message(err)}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		resp.Field = appErr.Field
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	err := json.NewDecoder(r.Body).Decode(dst)
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	default:
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperror.ValidationFailed("body", "Request body too large")
		}
		return apperror.ValidationFailed("body", "Invalid JSON body")
	}
}

// listOptions reads ?limit= and ?offset=. Missing values are zero and get
// the repository defaults.
func listOptions(r *http.Request) (repository.ListOptions, error) {
	var opts repository.ListOptions
	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, apperror.ValidationFailed(name, fmt.Sprintf("%s must be a non-negative integer", name))
		}
		*dst = n
	}
	return opts, nil
}
