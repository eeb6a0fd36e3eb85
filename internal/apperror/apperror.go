// Package apperror defines the error taxonomy shared by the service and HTTP layers.
//
// Every failure a workflow can report is one of the sentinels below, wrapped in an
// *AppError that carries the client-facing message. Handlers map the sentinel to a
// status code with errors.Is and render Message; anything that is not an *AppError
// is reported as an internal error with a generic message.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrDuplicateIdentity   = errors.New("duplicate identity")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrRoleMismatch        = errors.New("role mismatch")
	ErrFederatedAuthFailed = errors.New("federated authentication failed")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrNotFound            = errors.New("not found")
	ErrUploadFailed        = errors.New("upload failed")
)

type AppError struct {
	Err     error  // sentinel from the list above
	Message string // human-readable, safe to show to clients
	Field   string // optional: input field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func NotFound(resource string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// DuplicateIdentity is returned when an email is already bound to an account.
func DuplicateIdentity() *AppError {
	return &AppError{
		Err:     ErrDuplicateIdentity,
		Message: "user already exists",
	}
}

// InvalidCredentials deliberately covers both "no such user" and "wrong password".
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "invalid credentials",
	}
}

func RoleMismatch() *AppError {
	return &AppError{
		Err:     ErrRoleMismatch,
		Message: "access denied for this role",
	}
}

// FederatedAuthFailed never says which check failed; callers log the cause.
func FederatedAuthFailed() *AppError {
	return &AppError{
		Err:     ErrFederatedAuthFailed,
		Message: "google authentication failed",
	}
}

func Unauthenticated() *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: "authentication required",
	}
}

// UploadFailed reports a media gateway failure. cause is kept for logging via
// errors.Unwrap chains but never rendered.
func UploadFailed(kind string, cause error) error {
	return fmt.Errorf("%w: %w", &AppError{
		Err:     ErrUploadFailed,
		Message: fmt.Sprintf("%s upload failed", kind),
	}, cause)
}
