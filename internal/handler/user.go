package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"

	"github.com/rs/xid"

	"github.com/sakif/job-portal/internal/apperror"
	"github.com/sakif/job-portal/internal/auth"
	"github.com/sakif/job-portal/internal/media"
	"github.com/sakif/job-portal/internal/model"
	"github.com/sakif/job-portal/internal/service"
)

const (
	// maxBodySize caps any request body, multipart included.
	maxBodySize = 32 << 20

	stateCookieName = "oauth_state"
	roleCookieName  = "oauth_role"
	stateCookieTTL  = 600
)

// GoogleRedirect is the authorization-code flow. *auth.GoogleProvider satisfies it.
type GoogleRedirect interface {
	RedirectEnabled() bool
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.Identity, error)
}

// UserHandler serves the /user endpoints.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister        → create a local account (no session)
//   - HandleLogin           → check the password, set the session cookie
//   - HandleGoogle          → verify a Google ID token, find-or-create, set the cookie
//   - HandleGoogleLogin     → start the redirect flow with a state cookie
//   - HandleGoogleCallback  → check state, exchange the code, redirect to the frontend
//   - HandleLogout          → clear the session cookie
//   - HandleUpdateProfile   → partial update with optional resume and photo uploads
//   - HandleMe              → return the caller's sanitized record
//
// DEPENDENCY CHAIN:
//   - users   *service.UserService → every workflow and its error mapping source
//   - google  GoogleRedirect       → the authorization-code flow (nil when off)
//   - cookies auth.CookieOptions   → Secure/SameSite flags for APP_ENV
//
// Handlers only decode, call the service once and encode. Business rules and
// their errors come from the service; writeError turns those into statuses.
type UserHandler struct {
	users       *service.UserService
	google      GoogleRedirect // nil when Google sign-in is not configured
	cookies     auth.CookieOptions
	frontendURL string
	logger      *slog.Logger
}

// NewUserHandler creates a UserHandler. frontendURL is where the redirect flow
// sends the browser when it finishes, successfully or not.
func NewUserHandler(
	users *service.UserService,
	google GoogleRedirect,
	cookies auth.CookieOptions,
	frontendURL string,
	logger *slog.Logger,
) *UserHandler {
	return &UserHandler{
		users:       users,
		google:      google,
		cookies:     cookies,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// HandleRegister creates a local account. It does not log the user in.
//
// HTTP: POST /api/v1/user/register
// Body: JSON or multipart with fullName, email, phoneNumber, password, role
// and an optional "file" holding the profile photo.
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	form, err := parseBody(w, r, &in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if form != nil {
		in = service.RegisterInput{
			FullName:    fullName(form),
			Email:       form.Value("email"),
			PhoneNumber: form.Value("phoneNumber"),
			Password:    form.Value("password"),
			Role:        form.Value("role"),
		}
		if in.ProfilePhoto, err = form.File("file"); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}

	if _, err := h.users.Register(r.Context(), in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "User registered successfully", nil)
}

// HandleLogin checks a password and sets the session cookie.
//
// HTTP: POST /api/v1/user/login
func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	form, err := parseBody(w, r, &in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if form != nil {
		in = service.LoginInput{
			Email:    form.Value("email"),
			Password: form.Value("password"),
			Role:     form.Value("role"),
		}
	}

	res, err := h.users.Login(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	auth.SetSessionCookie(w, res.Token, h.cookies)
	writeSuccess(w, http.StatusOK, "Login successful "+res.User.FullName, res.User)
}

type googleRequest struct {
	IDToken string `json:"idToken"`
	Role    string `json:"role"`
}

// HandleGoogle signs in with a Google ID token obtained by the frontend.
//
// HTTP: POST /api/v1/user/google
// Body: {"idToken": "...", "role": "candidate"}
func (h *UserHandler) HandleGoogle(w http.ResponseWriter, r *http.Request) {
	var in googleRequest
	form, err := parseBody(w, r, &in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if form != nil {
		in = googleRequest{IDToken: form.Value("idToken"), Role: form.Value("role")}
	}

	res, err := h.users.GoogleLogin(r.Context(), in.IDToken, in.Role)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	auth.SetSessionCookie(w, res.Token, h.cookies)
	writeSuccess(w, http.StatusOK, "Welcome "+res.User.FullName, res.User)
}

// HandleLogout clears the session cookie. The token itself stays valid until
// it expires; there is no server-side revocation.
//
// HTTP: GET /api/v1/user/logout
func (h *UserHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, h.cookies)
	writeSuccess(w, http.StatusOK, "Logout successful", nil)
}

// HandleUpdateProfile applies a partial update to the caller's record.
//
// HTTP: POST /api/v1/user/profile/update
// Auth: RequireAuth
// Body: multipart (or JSON without files) with any of fullName, email,
// phoneNumber, bio, skills, plus "file" (resume) and "profilePhoto".
func (h *UserHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperror.Unauthenticated())
		return
	}

	var in service.UpdateProfileInput
	form, err := parseBody(w, r, &in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if form != nil {
		in = service.UpdateProfileInput{
			FullName:    fullName(form),
			Email:       form.Value("email"),
			PhoneNumber: form.Value("phoneNumber"),
			Bio:         form.Value("bio"),
			Skills:      form.Value("skills"),
		}
		if in.Resume, err = form.File("file"); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		if in.ProfilePhoto, err = form.File("profilePhoto"); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}

	user, err := h.users.UpdateProfile(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Profile updated successfully", user)
}

// HandleMe returns the caller's sanitized record.
//
// HTTP: GET /api/v1/user/me
// Auth: RequireAuth
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", user)
}

// HandleGoogleLogin starts the redirect flow.
//
// HTTP: GET /api/v1/user/google/login?role=recruiter
//
// A random state is kept in a short-lived cookie and checked on callback so
// only flows started here can complete. The requested role rides along in a
// second cookie because Google will not echo it back.
func (h *UserHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.google == nil || !h.google.RedirectEnabled() {
		writeJSON(w, http.StatusNotFound, Envelope{Message: "google sign-in is not configured"})
		return
	}

	state := xid.New().String()
	h.setFlowCookie(w, stateCookieName, state, stateCookieTTL)
	if role, ok := model.ParseRole(r.URL.Query().Get("role")); ok {
		h.setFlowCookie(w, roleCookieName, string(role), stateCookieTTL)
	}

	http.Redirect(w, r, h.google.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes the redirect flow and sends the browser back
// to the frontend with the session cookie set.
//
// HTTP: GET /api/v1/user/google/callback?code=...&state=...
func (h *UserHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil || !h.google.RedirectEnabled() {
		writeJSON(w, http.StatusNotFound, Envelope{Message: "google sign-in is not configured"})
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("google callback: state mismatch")
		h.redirectToFrontend(w, r, "failed")
		return
	}
	h.setFlowCookie(w, stateCookieName, "", -1)

	var role model.Role
	if c, err := r.Cookie(roleCookieName); err == nil {
		role, _ = model.ParseRole(c.Value)
		h.setFlowCookie(w, roleCookieName, "", -1)
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("google callback: user denied authorization", slog.String("error", errParam))
		h.redirectToFrontend(w, r, "denied")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.redirectToFrontend(w, r, "failed")
		return
	}

	identity, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Warn("google callback: exchange failed", slog.String("error", err.Error()))
		h.redirectToFrontend(w, r, "failed")
		return
	}

	res, err := h.users.LoginWithIdentity(r.Context(), identity, role)
	if err != nil {
		h.logger.Warn("google callback: login failed", slog.String("error", err.Error()))
		h.redirectToFrontend(w, r, "failed")
		return
	}

	auth.SetSessionCookie(w, res.Token, h.cookies)
	h.redirectToFrontend(w, r, "success")
}

func (h *UserHandler) setFlowCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// redirectToFrontend sends the browser back with ?auth=<outcome>, keeping any
// query the configured frontend URL already carries.
func (h *UserHandler) redirectToFrontend(w http.ResponseWriter, r *http.Request, outcome string) {
	target, err := url.Parse(h.frontendURL)
	if err != nil || h.frontendURL == "" {
		target = &url.URL{Path: "/"}
	}
	q := target.Query()
	q.Set("auth", outcome)
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusSeeOther)
}

// formBody is a parsed multipart or urlencoded request.
type formBody struct {
	r *http.Request
}

func (f *formBody) Value(key string) string {
	return f.r.FormValue(key)
}

// File reads an optional upload field. A missing field is (nil, nil).
func (f *formBody) File(field string) (*media.File, error) {
	if f.r.MultipartForm == nil {
		return nil, nil
	}
	file, header, err := f.r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, apperror.ValidationFailed(field, "could not read uploaded file")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, media.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("handler: reading %s: %w", field, err)
	}
	if len(data) > media.MaxFileSize {
		return nil, apperror.ValidationFailed(field, fmt.Sprintf("%s must be %d MB or smaller", field, media.MaxFileSize>>20))
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &media.File{Data: data, Filename: header.Filename}, nil
}

// parseBody decodes a JSON body into dst, or parses a form body and returns it
// for the caller to read field by field. Exactly one of the two happens.
//
// SUPPORTED BODIES:
//   - multipart/form-data                → form, files readable via File
//   - application/x-www-form-urlencoded  → form, no files
//   - anything else                      → JSON into dst
//
// An empty JSON body leaves dst at its zero value; the service's validation
// then names the first missing field. The whole body, files included, is
// capped at maxBodySize.
func parseBody(w http.ResponseWriter, r *http.Request, dst interface{}) (*formBody, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodySize); err != nil {
			return nil, apperror.ValidationFailed("body", "invalid multipart form")
		}
		return &formBody{r: r}, nil
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, apperror.ValidationFailed("body", "invalid form body")
		}
		return &formBody{r: r}, nil
	}

	// JSON field matching is case-insensitive, so "fullname" also fills FullName.
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, apperror.ValidationFailed("body", "invalid JSON body")
	}
	return nil, nil
}

// fullName accepts the camelCase field and the all-lowercase one older
// clients send.
func fullName(f *formBody) string {
	if v := f.Value("fullName"); v != "" {
		return v
	}
	return f.Value("fullname")
}
