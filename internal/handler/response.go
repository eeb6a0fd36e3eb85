package handler

// Every API response uses one envelope:
//
//	{"success": true, "message": "Login successful Ada", "user": {...}}
//	{"success": false, "message": "invalid credentials"}
//
// The frontend branches on success and shows message; user is present only on
// responses that return the caller's record.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/job-portal/internal/apperror"
	"github.com/sakif/job-portal/internal/model"
)

// Envelope is the response body of every /api endpoint.
type Envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	User    *model.PublicUser `json:"user,omitempty"`
}

// writeJSON sends data as JSON with the given status code. Headers must be set
// before WriteHeader; nothing set afterwards reaches the client.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

func writeSuccess(w http.ResponseWriter, status int, message string, user *model.User) {
	env := Envelope{Success: true, Message: message}
	if user != nil {
		env.User = user.Sanitize()
	}
	writeJSON(w, status, env)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrDuplicateIdentity):
		return http.StatusConflict
	case errors.Is(err, apperror.ErrInvalidCredentials):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrRoleMismatch):
		return http.StatusForbidden
	case errors.Is(err, apperror.ErrFederatedAuthFailed), errors.Is(err, apperror.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrUploadFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as a failure envelope.
//
// Only *apperror.AppError messages reach the client. Anything else becomes a
// generic 500; the raw error may carry SQL, hostnames or SDK details.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := statusFor(appErr)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
		}
		writeJSON(w, status, Envelope{Message: appErr.Message})
		return
	}

	logger.Error("internal error",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeJSON(w, http.StatusInternalServerError, Envelope{Message: "internal server error"})
}

// NotFound answers unknown routes with the envelope instead of plain text.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, Envelope{Message: "route not found"})
}

// MethodNotAllowed is the envelope counterpart of chi's default 405.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, Envelope{Message: "method not allowed"})
}

// Health reports liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "job portal API is running"})
}

// TooManyRequests is the rate limiter's response.
func TooManyRequests(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, Envelope{Message: "too many requests, try again later"})
}
