// Package apperror defines the error taxonomy shared by every layer.
//
// Each failure the identity engine can produce has a sentinel (ErrX) and a
// constructor returning *AppError. Lower layers wrap with %w, the HTTP layer
// recovers the kind with errors.Is and the human-readable text from
// AppError.Message:
//
//	err := fmt.Errorf("service/session: refreshing: %w", apperror.WrongTokenType("refresh"))
//	errors.Is(err, apperror.ErrWrongTokenType) // true
//	apperror.Kind(err)                         // "wrong_token_type"
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation error")
	ErrConflict           = errors.New("conflict")
	ErrForbidden          = errors.New("forbidden")
	ErrProvider           = errors.New("provider error")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrWrongTokenType     = errors.New("wrong token type")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountNotFound is a narrower ErrNotFound: errors.Is matches both.
	ErrAccountNotFound = fmt.Errorf("account %w", ErrNotFound)
)

type AppError struct {
	Err     error  // sentinel identifying the kind
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// AccountNotFound is returned when a user account does not exist, including
// one a still-valid token refers to. Its kind is "account_not_found".
func AccountNotFound() *AppError {
	return &AppError{
		Err:     ErrAccountNotFound,
		Message: "User not found",
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Provider wraps a failure reported by an OAuth provider. The provider's own
// message is kept verbatim so the caller can show it.
func Provider(provider, message string) *AppError {
	return &AppError{
		Err:     ErrProvider,
		Message: fmt.Sprintf("%s: %s", provider, message),
	}
}

func InvalidToken() *AppError {
	return &AppError{
		Err:     ErrInvalidToken,
		Message: "Invalid or expired token",
	}
}

func WrongTokenType(want string) *AppError {
	return &AppError{
		Err:     ErrWrongTokenType,
		Message: fmt.Sprintf("Invalid token type, expected %s token", want),
	}
}

func AccountDisabled() *AppError {
	return &AppError{
		Err:     ErrAccountDisabled,
		Message: "User account is disabled.",
	}
}

func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "Unable to log in with provided credentials.",
	}
}

// kinds is ordered: the first sentinel found in the chain wins.
var kinds = []struct {
	err  error
	name string
}{
	{ErrProvider, "provider_error"},
	{ErrConflict, "conflict"},
	{ErrInvalidToken, "invalid_token"},
	{ErrWrongTokenType, "wrong_token_type"},
	{ErrAccountDisabled, "account_disabled"},
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrForbidden, "forbidden"},
	{ErrAccountNotFound, "account_not_found"},
	{ErrNotFound, "not_found"},
	{ErrValidation, "validation_error"},
}

// Kind returns the machine-readable kind of err, or "internal_error" when err
// carries none of the sentinels above.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal_error"
}

var statuses = map[string]int{
	"provider_error":      http.StatusBadRequest,
	"conflict":            http.StatusConflict,
	"invalid_token":       http.StatusUnauthorized,
	"wrong_token_type":    http.StatusUnauthorized,
	"account_disabled":    http.StatusForbidden,
	"invalid_credentials": http.StatusUnauthorized,
	"forbidden":           http.StatusForbidden,
	"account_not_found":   http.StatusNotFound,
	"not_found":           http.StatusNotFound,
	"validation_error":    http.StatusBadRequest,
}

// HTTPStatus maps err's kind to a response status. Unknown errors are 500.
func HTTPStatus(err error) int {
	if code, ok := statuses[Kind(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// Message returns the human-readable text of the outermost AppError in err's
// chain, or a generic message for errors that carry none.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "an unexpected error occurred"
}
